// Package cdc generates and verifies the 44-digit control code (CDC) that
// binds a fiscal document to its issuer, numbering and emission date. The
// authority recomputes every digit independently, so the layout and the
// weighted modulo-11 check digits must match its scheme exactly.
package cdc

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// Document type codes recognized by the authority.
const (
	DocTypeInvoice    = 1
	DocTypeCreditNote = 5
)

const (
	rucWidth      = 8
	sequenceWidth = 7
	securityWidth = 9

	// CodeLength is the total length of a control code.
	CodeLength = 44
)

var (
	ErrInvalidRUC           = errors.New("cdc: issuer ruc must be 1-8 digits")
	ErrInvalidEstablishment = errors.New("cdc: establishment must be a 3-digit code")
	ErrInvalidPointOfSale   = errors.New("cdc: point of sale must be a 3-digit code")
	ErrInvalidDocumentType  = errors.New("cdc: unknown document type")
	ErrInvalidSequence      = errors.New("cdc: sequence out of range")
	ErrInvalidTaxpayerType  = errors.New("cdc: taxpayer type must be a single digit")
	ErrInvalidEmissionMode  = errors.New("cdc: emission mode must be a single digit")
	ErrInvalidSecurityCode  = errors.New("cdc: security code must be 9 digits")
	ErrMalformedCode        = errors.New("cdc: malformed control code")
)

// Input is the tuple a control code is derived from.
type Input struct {
	IssuerRUC     string // numeric part of the issuer tax id, without check digit
	Establishment string
	PointOfSale   string
	DocumentType  int
	Sequence      int64
	TaxpayerType  int
	IssuedAt      time.Time
	EmissionMode  int
	SecurityCode  string
}

// Generate builds the 44-digit control code:
// ruc(8) dv(1) est(3) pos(3) type(2) seq(7) taxpayer(1) date(8) mode(1) security(9) dv(1).
func Generate(in Input) (string, error) {
	ruc := strings.TrimSpace(in.IssuerRUC)
	if !isDigits(ruc) || len(ruc) == 0 || len(ruc) > rucWidth {
		return "", ErrInvalidRUC
	}
	ruc = pad(ruc, rucWidth)

	est, err := normalizeTriplet(in.Establishment)
	if err != nil {
		return "", ErrInvalidEstablishment
	}
	pos, err := normalizeTriplet(in.PointOfSale)
	if err != nil {
		return "", ErrInvalidPointOfSale
	}

	if in.DocumentType != DocTypeInvoice && in.DocumentType != DocTypeCreditNote {
		return "", ErrInvalidDocumentType
	}
	if in.Sequence < 1 || in.Sequence > 9999999 {
		return "", ErrInvalidSequence
	}
	if in.TaxpayerType < 1 || in.TaxpayerType > 9 {
		return "", ErrInvalidTaxpayerType
	}
	if in.EmissionMode < 1 || in.EmissionMode > 9 {
		return "", ErrInvalidEmissionMode
	}
	security := strings.TrimSpace(in.SecurityCode)
	if !isDigits(security) || len(security) != securityWidth {
		return "", ErrInvalidSecurityCode
	}

	rucDV, err := CheckDigit(ruc)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(CodeLength)
	b.WriteString(ruc)
	b.WriteString(strconv.Itoa(rucDV))
	b.WriteString(est)
	b.WriteString(pos)
	fmt.Fprintf(&b, "%02d", in.DocumentType)
	fmt.Fprintf(&b, "%07d", in.Sequence)
	b.WriteString(strconv.Itoa(in.TaxpayerType))
	b.WriteString(in.IssuedAt.Format("20060102"))
	b.WriteString(strconv.Itoa(in.EmissionMode))
	b.WriteString(security)

	body := b.String()
	finalDV, err := CheckDigit(body)
	if err != nil {
		return "", err
	}

	return body + strconv.Itoa(finalDV), nil
}

// CheckDigit computes the weighted modulo-11 check digit. Weights cycle
// through {2,3,4,5,6,7} starting from the rightmost digit; the result is
// 11 - (sum mod 11), with 11 mapped to 0 and 10 mapped to 1.
func CheckDigit(digits string) (int, error) {
	if len(digits) == 0 || !isDigits(digits) {
		return 0, ErrMalformedCode
	}

	weight := 2
	sum := 0
	for i := len(digits) - 1; i >= 0; i-- {
		sum += int(digits[i]-'0') * weight
		weight++
		if weight > 7 {
			weight = 2
		}
	}

	dv := 11 - (sum % 11)
	switch dv {
	case 11:
		return 0, nil
	case 10:
		return 1, nil
	default:
		return dv, nil
	}
}

// Verify re-validates both embedded check digits of a control code.
func Verify(code string) bool {
	if len(code) != CodeLength || !isDigits(code) {
		return false
	}

	rucDV, err := CheckDigit(code[:rucWidth])
	if err != nil || int(code[rucWidth]-'0') != rucDV {
		return false
	}

	finalDV, err := CheckDigit(code[:CodeLength-1])
	if err != nil {
		return false
	}
	return int(code[CodeLength-1]-'0') == finalDV
}

// Components are the decoded positional fields of a control code.
type Components struct {
	IssuerRUC     string
	Establishment string
	PointOfSale   string
	DocumentType  int
	Sequence      int64
	TaxpayerType  int
	IssuedAt      time.Time
	EmissionMode  int
	SecurityCode  string
}

// Parse decodes a verified control code back into its fields.
func Parse(code string) (Components, error) {
	if !Verify(code) {
		return Components{}, ErrMalformedCode
	}

	docType, _ := strconv.Atoi(code[15:17])
	seq, _ := strconv.ParseInt(code[17:24], 10, 64)
	issuedAt, err := time.Parse("20060102", code[25:33])
	if err != nil {
		return Components{}, ErrMalformedCode
	}

	return Components{
		IssuerRUC:     strings.TrimLeft(code[:8], "0"),
		Establishment: code[9:12],
		PointOfSale:   code[12:15],
		DocumentType:  docType,
		Sequence:      seq,
		TaxpayerType:  int(code[24] - '0'),
		IssuedAt:      issuedAt,
		EmissionMode:  int(code[33] - '0'),
		SecurityCode:  code[34:43],
	}, nil
}

// NewSecurityCode draws a random 9-digit security block.
func NewSecurityCode() (string, error) {
	max := big.NewInt(1000000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%09d", n.Int64()), nil
}

func normalizeTriplet(value string) (string, error) {
	value = strings.TrimSpace(value)
	if !isDigits(value) || len(value) == 0 || len(value) > 3 {
		return "", ErrMalformedCode
	}
	return pad(value, 3), nil
}

func pad(value string, width int) string {
	return strings.Repeat("0", width-len(value)) + value
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
