package service

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"image/png"
	"net/url"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

const qrImageSize = 256

// buildQR renders the public verification link for an approved document as
// both a URL and a base64 PNG. The link carries the control code and the
// hex encoded emission timestamp.
func (s *Service) buildQR(cdc string, issuedAt time.Time) (string, string, error) {
	emission := hex.EncodeToString([]byte(issuedAt.Format("2006-01-02T15:04:05")))
	qrURL := fmt.Sprintf("%s?nVersion=150&Id=%s&dFeEmiDE=%s",
		s.cfg.Sifen.QRBaseURL, url.QueryEscape(cdc), emission)

	code, err := qr.Encode(qrURL, qr.M, qr.Auto)
	if err != nil {
		return "", "", fmt.Errorf("invoice: encode qr: %w", err)
	}
	code, err = barcode.Scale(code, qrImageSize, qrImageSize)
	if err != nil {
		return "", "", fmt.Errorf("invoice: scale qr: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return "", "", fmt.Errorf("invoice: render qr: %w", err)
	}
	return qrURL, base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
