// Package sifen talks to the tax authority's SOAP services over mutual TLS.
// Transport and parse failures never surface as raw errors; they come back as
// typed results carrying the CodeCommFailure sentinel so callers can keep the
// document retry-eligible.
package sifen

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/arandulabs/kuatia/internal/config"
	"github.com/arandulabs/kuatia/internal/fiscal/sign"
	"github.com/beevik/etree"
	"go.uber.org/zap"
)

const (
	pathSubmit      = "/de/ws/sync/recibe.wsdl"
	pathSubmitBatch = "/de/ws/async/recibe-lote.wsdl"
	pathQuery       = "/de/ws/consultas/consulta.wsdl"
	pathQueryBatch  = "/de/ws/consultas/consulta-lote.wsdl"

	// batchInProcessCode means the batch was received but not yet processed.
	batchInProcessCode = "0361"

	maxResponseBytes = 4 << 20
)

var ErrEmptyDocument = errors.New("sifen: empty document")

// Client is the authority client. It performs no retries; retry policy
// belongs to the invoice lifecycle, which knows the document state.
type Client struct {
	http      *http.Client
	baseURL   string
	log       *zap.Logger
	requestID atomic.Int64
}

func NewClient(cfg config.Config, keystore *sign.Keystore, log *zap.Logger) *Client {
	transport := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: cfg.Sifen.ConnectTimeout}).DialContext,
		TLSHandshakeTimeout: cfg.Sifen.ConnectTimeout,
	}
	cert, err := keystore.TLSCertificate()
	switch {
	case err == nil:
		transport.TLSClientConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	case errors.Is(err, sign.ErrKeystoreNotConfigured):
		log.Warn("sifen client running without a client certificate")
	default:
		log.Error("sifen keystore unusable, running without a client certificate", zap.Error(err))
	}

	c := &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Sifen.ReadTimeout,
		},
		baseURL: cfg.Sifen.BaseURL,
		log:     log.Named("sifen.client"),
	}
	c.requestID.Store(time.Now().Unix())
	return c
}

// Submit sends one signed document through the synchronous reception service.
func (c *Client) Submit(ctx context.Context, signedXML []byte) (*Response, error) {
	if len(signedXML) == 0 {
		return nil, ErrEmptyDocument
	}

	body, err := envelope(submitRequest{
		Xmlns:    sifenNamespace,
		ID:       c.nextRequestID(),
		Document: rawXML{Content: stripXMLHeader(signedXML)},
	})
	if err != nil {
		return nil, err
	}

	root, err := c.post(ctx, pathSubmit, body)
	if err != nil {
		c.log.Warn("submit failed", zap.Error(err))
		return &Response{Code: CodeCommFailure, Message: err.Error()}, nil
	}

	resp := &Response{
		Code:     elementText(root, "dCodRes"),
		Message:  elementText(root, "dMsgRes"),
		CDC:      documentID(root),
		Protocol: elementText(root, "dProtAut"),
	}
	if resp.Code == "" {
		c.log.Warn("submit response carried no result code")
		return &Response{Code: CodeCommFailure, Message: "response carried no result code"}, nil
	}
	return resp, nil
}

// SubmitBatch packs the documents into the zip container and sends them
// through the asynchronous reception service.
func (c *Client) SubmitBatch(ctx context.Context, docs [][]byte) (*BatchResponse, error) {
	container, err := buildBatchContainer(docs)
	if err != nil {
		return nil, err
	}

	body, err := envelope(batchSubmitRequest{
		Xmlns:     sifenNamespace,
		ID:        c.nextRequestID(),
		Container: container,
	})
	if err != nil {
		return nil, err
	}

	root, err := c.post(ctx, pathSubmitBatch, body)
	if err != nil {
		c.log.Warn("batch submit failed", zap.Error(err))
		return &BatchResponse{Code: CodeCommFailure, Message: err.Error()}, nil
	}

	return &BatchResponse{
		Code:        elementText(root, "dCodRes"),
		Message:     elementText(root, "dMsgRes"),
		BatchNumber: elementText(root, "dProtConsLote"),
	}, nil
}

// QueryByCDC asks the authority for the current state of one document.
func (c *Client) QueryByCDC(ctx context.Context, cdc string) (*StatusResponse, error) {
	if cdc == "" {
		return nil, ErrEmptyDocument
	}

	body, err := envelope(queryRequest{
		Xmlns: sifenNamespace,
		ID:    c.nextRequestID(),
		CDC:   cdc,
	})
	if err != nil {
		return nil, err
	}

	root, err := c.post(ctx, pathQuery, body)
	if err != nil {
		c.log.Warn("query failed", zap.String("cdc", cdc), zap.Error(err))
		return &StatusResponse{Code: CodeCommFailure, Message: err.Error()}, nil
	}

	return &StatusResponse{
		Code:     elementText(root, "dCodRes"),
		Message:  elementText(root, "dMsgRes"),
		Status:   elementText(root, "dEstRes"),
		Protocol: elementText(root, "dProtAut"),
	}, nil
}

// QueryBatch fetches the per-document outcomes of a previously submitted
// batch.
func (c *Client) QueryBatch(ctx context.Context, batchNumber string) (*BatchStatusResponse, error) {
	if batchNumber == "" {
		return nil, ErrEmptyDocument
	}

	body, err := envelope(batchQueryRequest{
		Xmlns:       sifenNamespace,
		ID:          c.nextRequestID(),
		BatchNumber: batchNumber,
	})
	if err != nil {
		return nil, err
	}

	root, err := c.post(ctx, pathQueryBatch, body)
	if err != nil {
		c.log.Warn("batch query failed", zap.String("batch_number", batchNumber), zap.Error(err))
		return &BatchStatusResponse{Code: CodeCommFailure, Message: err.Error()}, nil
	}

	resp := &BatchStatusResponse{
		Code:    elementText(root, "dCodRes"),
		Message: elementText(root, "dMsgRes"),
	}
	resp.InProcess = resp.Code == batchInProcessCode
	for _, item := range findDescendants(root, "gResProcLote") {
		resp.Results = append(resp.Results, BatchItemResult{
			CDC:      documentID(item),
			Code:     elementText(item, "dCodRes"),
			Message:  elementText(item, "dMsgRes"),
			Protocol: elementText(item, "dProtAut"),
		})
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*etree.Element, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d", res.StatusCode)
	}
	return parseBody(raw)
}

func (c *Client) nextRequestID() int64 {
	return c.requestID.Add(1)
}

// documentID reads the CDC echo, which some services tag Id and others id.
func documentID(el *etree.Element) string {
	if id := elementText(el, "Id"); id != "" {
		return id
	}
	return elementText(el, "id")
}

// stripXMLHeader drops the XML declaration so the document can be nested
// inside the envelope.
func stripXMLHeader(doc []byte) []byte {
	trimmed := bytes.TrimLeft(doc, " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte("<?xml")) {
		if end := bytes.Index(trimmed, []byte("?>")); end >= 0 {
			return bytes.TrimLeft(trimmed[end+2:], " \t\r\n")
		}
	}
	return trimmed
}

func findDescendants(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, child := range el.ChildElements() {
		if child.Tag == tag {
			out = append(out, child)
			continue
		}
		out = append(out, findDescendants(child, tag)...)
	}
	return out
}
