package cdc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput() Input {
	return Input{
		IssuerRUC:     "80012345",
		Establishment: "001",
		PointOfSale:   "002",
		DocumentType:  DocTypeInvoice,
		Sequence:      1234567,
		TaxpayerType:  2,
		IssuedAt:      time.Date(2024, 5, 17, 10, 30, 0, 0, time.UTC),
		EmissionMode:  1,
		SecurityCode:  "123456789",
	}
}

func TestGenerateLayout(t *testing.T) {
	code, err := Generate(validInput())
	require.NoError(t, err)
	require.Len(t, code, CodeLength)

	assert.Equal(t, "80012345", code[:8])
	assert.Equal(t, "001", code[9:12])
	assert.Equal(t, "002", code[12:15])
	assert.Equal(t, "01", code[15:17])
	assert.Equal(t, "1234567", code[17:24])
	assert.Equal(t, "2", string(code[24]))
	assert.Equal(t, "20240517", code[25:33])
	assert.Equal(t, "1", string(code[33]))
	assert.Equal(t, "123456789", code[34:43])
}

func TestGenerateDeterministic(t *testing.T) {
	first, err := Generate(validInput())
	require.NoError(t, err)
	second, err := Generate(validInput())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGenerateShortRUCIsZeroPadded(t *testing.T) {
	in := validInput()
	in.IssuerRUC = "4186"
	code, err := Generate(in)
	require.NoError(t, err)
	assert.Equal(t, "00004186", code[:8])
	assert.True(t, Verify(code))
}

func TestCheckDigitKnownValues(t *testing.T) {
	cases := []struct {
		digits string
		want   int
	}{
		{"80012345", 3},
		{"00000001", 9},
		{"00000000", 0},
		{"4186", 6},
	}
	for _, tc := range cases {
		got, err := CheckDigit(tc.digits)
		require.NoError(t, err, tc.digits)
		assert.Equal(t, tc.want, got, tc.digits)
	}
}

func TestCheckDigitRejectsNonNumeric(t *testing.T) {
	_, err := CheckDigit("12a45")
	assert.ErrorIs(t, err, ErrMalformedCode)

	_, err = CheckDigit("")
	assert.ErrorIs(t, err, ErrMalformedCode)
}

func TestVerifyRoundTrip(t *testing.T) {
	code, err := Generate(validInput())
	require.NoError(t, err)
	assert.True(t, Verify(code))
}

func TestVerifyDetectsAnySingleDigitMutation(t *testing.T) {
	code, err := Generate(validInput())
	require.NoError(t, err)

	for i := 0; i < len(code); i++ {
		mutated := []byte(code)
		mutated[i] = '0' + (mutated[i]-'0'+1)%10
		assert.False(t, Verify(string(mutated)), "mutation at position %d went undetected", i)
	}
}

func TestVerifyRejectsWrongLength(t *testing.T) {
	assert.False(t, Verify(""))
	assert.False(t, Verify("123"))

	code, err := Generate(validInput())
	require.NoError(t, err)
	assert.False(t, Verify(code+"0"))
	assert.False(t, Verify(code[:CodeLength-1]))
}

func TestGenerateValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Input)
		want   error
	}{
		{"empty ruc", func(in *Input) { in.IssuerRUC = "" }, ErrInvalidRUC},
		{"ruc too long", func(in *Input) { in.IssuerRUC = "123456789" }, ErrInvalidRUC},
		{"ruc with letters", func(in *Input) { in.IssuerRUC = "80A12345" }, ErrInvalidRUC},
		{"bad establishment", func(in *Input) { in.Establishment = "12345" }, ErrInvalidEstablishment},
		{"bad point of sale", func(in *Input) { in.PointOfSale = "x" }, ErrInvalidPointOfSale},
		{"unknown document type", func(in *Input) { in.DocumentType = 99 }, ErrInvalidDocumentType},
		{"zero sequence", func(in *Input) { in.Sequence = 0 }, ErrInvalidSequence},
		{"sequence overflow", func(in *Input) { in.Sequence = 10000000 }, ErrInvalidSequence},
		{"bad taxpayer type", func(in *Input) { in.TaxpayerType = 0 }, ErrInvalidTaxpayerType},
		{"bad emission mode", func(in *Input) { in.EmissionMode = 0 }, ErrInvalidEmissionMode},
		{"short security code", func(in *Input) { in.SecurityCode = "1234" }, ErrInvalidSecurityCode},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, err := Generate(in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	in := validInput()
	code, err := Generate(in)
	require.NoError(t, err)

	got, err := Parse(code)
	require.NoError(t, err)
	assert.Equal(t, in.IssuerRUC, got.IssuerRUC)
	assert.Equal(t, in.Establishment, got.Establishment)
	assert.Equal(t, in.PointOfSale, got.PointOfSale)
	assert.Equal(t, in.DocumentType, got.DocumentType)
	assert.Equal(t, in.Sequence, got.Sequence)
	assert.Equal(t, in.TaxpayerType, got.TaxpayerType)
	assert.Equal(t, in.IssuedAt.Format("20060102"), got.IssuedAt.Format("20060102"))
	assert.Equal(t, in.EmissionMode, got.EmissionMode)
	assert.Equal(t, in.SecurityCode, got.SecurityCode)
}

func TestNewSecurityCode(t *testing.T) {
	code, err := NewSecurityCode()
	require.NoError(t, err)
	assert.Len(t, code, 9)

	in := validInput()
	in.SecurityCode = code
	_, err = Generate(in)
	assert.NoError(t, err)
}
