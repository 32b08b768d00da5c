// Package document assembles the canonical XML representation of a fiscal
// document (rDE) submitted to the tax authority.
package document

import "encoding/xml"

// rde is the XML root wrapping a single electronic document.
type rde struct {
	XMLName xml.Name `xml:"rDE"`
	Xmlns   string   `xml:"xmlns,attr"`
	Version string   `xml:"dVerFor"`
	DE      de       `xml:"DE"`
}

// de carries the document body; Id is the 44-digit control code and the
// signature reference target.
type de struct {
	ID        string    `xml:"Id,attr"`
	Operation operation `xml:"gOpeDE"`
	Stamp     stamp     `xml:"gTimb"`
	General   general   `xml:"gDatGralOpe"`
	Items     items     `xml:"gDtipDE"`
	Totals    totals    `xml:"gTotSub"`
}

// operation holds emission metadata.
type operation struct {
	EmissionMode     int    `xml:"iTipEmi"`
	EmissionModeDesc string `xml:"dDesTipEmi"`
	SecurityCode     string `xml:"dCodSeg"`
}

// stamp holds the authorization stamp and document numbering.
type stamp struct {
	DocType       int    `xml:"iTiDE"`
	DocTypeDesc   string `xml:"dDesTiDE"`
	Timbrado      string `xml:"dNumTim"`
	Establishment string `xml:"dEst"`
	PointOfSale   string `xml:"dPunExp"`
	Number        string `xml:"dNumDoc"`
	TimbradoStart string `xml:"dFeIniT,omitempty"`
}

type general struct {
	IssuedAt  string    `xml:"dFeEmiDE"`
	Currency  string    `xml:"cMoneOpe"`
	Issuer    issuer    `xml:"gEmis"`
	Recipient recipient `xml:"gDatRec"`
}

type issuer struct {
	RUC          string `xml:"dRucEm"`
	RUCCheck     int    `xml:"dDVEmi"`
	TaxpayerType int    `xml:"iTipCont"`
	LegalName    string `xml:"dNomEmi"`
	TradeName    string `xml:"dNomFanEmi,omitempty"`
	Address      string `xml:"dDirEmi"`
	City         string `xml:"dDesCiuEmi"`
	Email        string `xml:"dEmailE,omitempty"`
}

type recipient struct {
	Nature  int    `xml:"iNatRec"` // 1 taxpayer, 2 final consumer
	RUC     string `xml:"dRucRec,omitempty"`
	Name    string `xml:"dNomRec"`
	Address string `xml:"dDirRec,omitempty"`
	Email   string `xml:"dEmailRec,omitempty"`
}

type items struct {
	Items []item `xml:"gCamItem"`
}

// item is one invoice line; amounts are re-derived from quantity, price and
// discount so the totals block can be cross-checked by re-summing.
type item struct {
	Code        string  `xml:"dCodInt,omitempty"`
	Description string  `xml:"dDesProSer"`
	Quantity    string  `xml:"dCantProSer"`
	UnitPrice   string  `xml:"dPUniProSer"`
	Discount    string  `xml:"dDescItem"`
	Subtotal    string  `xml:"dTotOpeItem"`
	VAT         itemVAT `xml:"gCamIVA"`
}

type itemVAT struct {
	Rate   int    `xml:"dTasaIVA"`
	Base   string `xml:"dBasGravIVA"`
	Amount string `xml:"dLiqIVAItem"`
}

// totals is the aggregate block; every field is derivable by re-summing the
// item blocks.
type totals struct {
	ExemptSubtotal string `xml:"dSubExe"`
	Subtotal5      string `xml:"dSub5"`
	Subtotal10     string `xml:"dSub10"`
	Subtotal       string `xml:"dTotOpe"`
	Discount       string `xml:"dTotDesc"`
	VAT5           string `xml:"dIVA5"`
	VAT10          string `xml:"dIVA10"`
	VAT            string `xml:"dTotIVA"`
	GrandTotal     string `xml:"dTotGralOpe"`
}
