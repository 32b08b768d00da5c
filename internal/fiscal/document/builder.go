package document

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arandulabs/kuatia/internal/config"
	"github.com/arandulabs/kuatia/internal/fiscal/cdc"
	"github.com/shopspring/decimal"
)

const (
	namespace     = "http://ekuatia.set.gov.py/sifen/xsd"
	formatVersion = "150"
)

// Tolerance for cross-checking header totals against re-summed line blocks.
var totalsTolerance = decimal.New(1, -4)

var (
	ErrMissingIssuer    = errors.New("document: incomplete issuer configuration")
	ErrMissingRecipient = errors.New("document: recipient name is required")
	ErrNoLines          = errors.New("document: at least one line is required")
	ErrInvalidLine      = errors.New("document: invalid line")
	ErrInvalidCDC       = errors.New("document: control code failed verification")
	ErrTotalsMismatch   = errors.New("document: header totals do not match line sums")
)

// Party identifies the document recipient.
type Party struct {
	RUC     string
	Name    string
	Address string
	Email   string
}

// Line is one taxable item.
type Line struct {
	Code        string
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Discount    decimal.Decimal
	TaxRate     int // 0, 5 or 10
}

// Totals is the monetary breakdown the caller derived from its lines. The
// builder re-derives the same figures from the line blocks and refuses to
// emit a document where the two disagree.
type Totals struct {
	Subtotal decimal.Decimal
	Tax5     decimal.Decimal
	Tax10    decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// Input is a fully computed invoice ready for XML assembly.
type Input struct {
	CDC          string
	DocType      int
	Number       string
	IssuedAt     time.Time
	Currency     string
	SecurityCode string
	Recipient    Party
	Lines        []Line
	Totals       Totals
}

// Result carries the unsigned XML and the signature reference target.
type Result struct {
	XML []byte
	ID  string
}

// Builder assembles fiscal XML documents for a configured issuer.
type Builder struct {
	issuer config.IssuerConfig
}

func NewBuilder(cfg config.Config) *Builder {
	return &Builder{issuer: cfg.Issuer}
}

// Build validates the input and produces the unsigned rDE document.
// Validation failures here are caller bugs and never reach the network.
func (b *Builder) Build(in Input) (*Result, error) {
	if err := b.validateIssuer(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Recipient.Name) == "" {
		return nil, ErrMissingRecipient
	}
	if len(in.Lines) == 0 {
		return nil, ErrNoLines
	}
	if !cdc.Verify(in.CDC) {
		return nil, ErrInvalidCDC
	}

	lineItems := make([]item, 0, len(in.Lines))
	sums := Totals{}
	for i, line := range in.Lines {
		block, lineTotals, err := buildItem(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidLine, i+1, err)
		}
		lineItems = append(lineItems, block)
		sums.Subtotal = sums.Subtotal.Add(lineTotals.Subtotal)
		sums.Tax5 = sums.Tax5.Add(lineTotals.Tax5)
		sums.Tax10 = sums.Tax10.Add(lineTotals.Tax10)
		sums.Discount = sums.Discount.Add(lineTotals.Discount)
		sums.Total = sums.Total.Add(lineTotals.Total)
	}

	if err := crossCheck(in.Totals, sums); err != nil {
		return nil, err
	}

	doc := rde{
		Xmlns:   namespace,
		Version: formatVersion,
		DE: de{
			ID: in.CDC,
			Operation: operation{
				EmissionMode:     b.issuer.EmissionMode,
				EmissionModeDesc: emissionModeDesc(b.issuer.EmissionMode),
				SecurityCode:     in.SecurityCode,
			},
			Stamp: stamp{
				DocType:       in.DocType,
				DocTypeDesc:   docTypeDesc(in.DocType),
				Timbrado:      b.issuer.Timbrado,
				Establishment: b.issuer.Establishment,
				PointOfSale:   b.issuer.PointOfSale,
				Number:        in.Number,
				TimbradoStart: b.issuer.TimbradoStart,
			},
			General: general{
				IssuedAt: in.IssuedAt.Format("2006-01-02T15:04:05"),
				Currency: currencyOrDefault(in.Currency),
				Issuer: issuer{
					RUC:          b.issuer.RUC,
					RUCCheck:     b.rucCheckDigit(),
					TaxpayerType: b.issuer.TaxpayerType,
					LegalName:    b.issuer.LegalName,
					TradeName:    b.issuer.TradeName,
					Address:      b.issuer.Address,
					City:         b.issuer.City,
					Email:        b.issuer.Email,
				},
				Recipient: buildRecipient(in.Recipient),
			},
			Items:  items{Items: lineItems},
			Totals: buildTotals(sums),
		},
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("document: marshal: %w", err)
	}

	return &Result{
		XML: append([]byte(xml.Header), out...),
		ID:  in.CDC,
	}, nil
}

func (b *Builder) validateIssuer() error {
	required := []string{
		b.issuer.RUC,
		b.issuer.LegalName,
		b.issuer.Address,
		b.issuer.Establishment,
		b.issuer.PointOfSale,
		b.issuer.Timbrado,
	}
	for _, field := range required {
		if strings.TrimSpace(field) == "" {
			return ErrMissingIssuer
		}
	}
	return nil
}

// Leading zeros never change the rightmost-weighted checksum, so the raw RUC
// digits can be used without padding.
func (b *Builder) rucCheckDigit() int {
	dv, err := cdc.CheckDigit(strings.TrimSpace(b.issuer.RUC))
	if err != nil {
		return 0
	}
	return dv
}

// buildItem re-derives the line amounts from quantity, price and discount.
func buildItem(line Line) (item, Totals, error) {
	if strings.TrimSpace(line.Description) == "" {
		return item{}, Totals{}, errors.New("description is required")
	}
	if !line.Quantity.IsPositive() {
		return item{}, Totals{}, errors.New("quantity must be positive")
	}
	if line.UnitPrice.IsNegative() {
		return item{}, Totals{}, errors.New("unit price must not be negative")
	}
	if line.Discount.IsNegative() {
		return item{}, Totals{}, errors.New("discount must not be negative")
	}
	if line.TaxRate != 0 && line.TaxRate != 5 && line.TaxRate != 10 {
		return item{}, Totals{}, fmt.Errorf("unsupported tax rate %d", line.TaxRate)
	}

	gross := line.Quantity.Mul(line.UnitPrice)
	subtotal := gross.Sub(line.Discount)
	if subtotal.IsNegative() {
		return item{}, Totals{}, errors.New("discount exceeds line amount")
	}
	tax := subtotal.Mul(decimal.NewFromInt(int64(line.TaxRate))).Div(decimal.NewFromInt(100))

	lineTotals := Totals{
		Subtotal: subtotal,
		Discount: line.Discount,
		Total:    subtotal.Add(tax),
	}
	switch line.TaxRate {
	case 5:
		lineTotals.Tax5 = tax
	case 10:
		lineTotals.Tax10 = tax
	}

	return item{
		Code:        line.Code,
		Description: line.Description,
		Quantity:    line.Quantity.String(),
		UnitPrice:   amount(line.UnitPrice),
		Discount:    amount(line.Discount),
		Subtotal:    amount(subtotal),
		VAT: itemVAT{
			Rate:   line.TaxRate,
			Base:   amount(subtotal),
			Amount: amount(tax),
		},
	}, lineTotals, nil
}

func crossCheck(header, sums Totals) error {
	pairs := []struct {
		name   string
		header decimal.Decimal
		summed decimal.Decimal
	}{
		{"subtotal", header.Subtotal, sums.Subtotal},
		{"tax5", header.Tax5, sums.Tax5},
		{"tax10", header.Tax10, sums.Tax10},
		{"discount", header.Discount, sums.Discount},
		{"total", header.Total, sums.Total},
	}
	for _, pair := range pairs {
		if pair.header.Sub(pair.summed).Abs().GreaterThan(totalsTolerance) {
			return fmt.Errorf("%w: %s header=%s lines=%s",
				ErrTotalsMismatch, pair.name, pair.header, pair.summed)
		}
	}
	return nil
}

func buildRecipient(p Party) recipient {
	nature := 2
	if strings.TrimSpace(p.RUC) != "" {
		nature = 1
	}
	return recipient{
		Nature:  nature,
		RUC:     p.RUC,
		Name:    p.Name,
		Address: p.Address,
		Email:   p.Email,
	}
}

func buildTotals(sums Totals) totals {
	exempt := sums.Subtotal
	var sub5, sub10 decimal.Decimal
	if sums.Tax5.IsPositive() {
		sub5 = sums.Tax5.Mul(decimal.NewFromInt(20)) // base of the 5% bucket
		exempt = exempt.Sub(sub5)
	}
	if sums.Tax10.IsPositive() {
		sub10 = sums.Tax10.Mul(decimal.NewFromInt(10)) // base of the 10% bucket
		exempt = exempt.Sub(sub10)
	}

	tax := sums.Tax5.Add(sums.Tax10)
	return totals{
		ExemptSubtotal: amount(exempt),
		Subtotal5:      amount(sub5),
		Subtotal10:     amount(sub10),
		Subtotal:       amount(sums.Subtotal),
		Discount:       amount(sums.Discount),
		VAT5:           amount(sums.Tax5),
		VAT10:          amount(sums.Tax10),
		VAT:            amount(tax),
		GrandTotal:     amount(sums.Total),
	}
}

func amount(d decimal.Decimal) string {
	return d.StringFixed(4)
}

func docTypeDesc(docType int) string {
	switch docType {
	case cdc.DocTypeInvoice:
		return "Factura electrónica"
	case cdc.DocTypeCreditNote:
		return "Nota de crédito electrónica"
	default:
		return "Documento electrónico"
	}
}

func emissionModeDesc(mode int) string {
	switch mode {
	case 1:
		return "Normal"
	case 2:
		return "Contingencia"
	default:
		return "Normal"
	}
}

func currencyOrDefault(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return "PYG"
	}
	return currency
}
