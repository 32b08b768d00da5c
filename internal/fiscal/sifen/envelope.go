package sifen

import (
	"encoding/xml"
	"fmt"

	"github.com/beevik/etree"
)

const (
	soapNamespace  = "http://www.w3.org/2003/05/soap-envelope"
	sifenNamespace = "http://ekuatia.set.gov.py/sifen/xsd"
)

type soapEnvelope struct {
	XMLName xml.Name `xml:"env:Envelope"`
	Xmlns   string   `xml:"xmlns:env,attr"`
	Body    soapBody `xml:"env:Body"`
}

type soapBody struct {
	Payload any
}

func (b soapBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(b.Payload); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

// submitRequest wraps one signed document for the synchronous reception
// operation. Document carries the raw signed XML untouched; re-encoding it
// would break the signature.
type submitRequest struct {
	XMLName  xml.Name `xml:"rEnviDe"`
	Xmlns    string   `xml:"xmlns,attr"`
	ID       int64    `xml:"dId"`
	Document rawXML   `xml:"xDE"`
}

type batchSubmitRequest struct {
	XMLName   xml.Name `xml:"rEnvioLote"`
	Xmlns     string   `xml:"xmlns,attr"`
	ID        int64    `xml:"dId"`
	Container string   `xml:"xDE"` // base64 zip of signed documents
}

type queryRequest struct {
	XMLName xml.Name `xml:"rEnviConsDe"`
	Xmlns   string   `xml:"xmlns,attr"`
	ID      int64    `xml:"dId"`
	CDC     string   `xml:"dCDC"`
}

type batchQueryRequest struct {
	XMLName     xml.Name `xml:"rEnviConsLoteDe"`
	Xmlns       string   `xml:"xmlns,attr"`
	ID          int64    `xml:"dId"`
	BatchNumber string   `xml:"dProtConsLote"`
}

// rawXML embeds pre-rendered XML verbatim; re-encoding a signed document
// would break its signature.
type rawXML struct {
	Content []byte `xml:",innerxml"`
}

// envelope renders a full SOAP 1.2 envelope around the payload.
func envelope(payload any) ([]byte, error) {
	out, err := xml.Marshal(soapEnvelope{
		Xmlns: soapNamespace,
		Body:  soapBody{Payload: payload},
	})
	if err != nil {
		return nil, fmt.Errorf("sifen: build envelope: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// parseBody extracts the first element of the SOAP body from a response.
func parseBody(raw []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("sifen: parse response: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "Envelope" {
		return nil, fmt.Errorf("sifen: response is not a soap envelope")
	}
	body := findChild(root, "Body")
	if body == nil {
		return nil, fmt.Errorf("sifen: response has no soap body")
	}
	children := body.ChildElements()
	if len(children) == 0 {
		return nil, fmt.Errorf("sifen: soap body is empty")
	}
	return children[0], nil
}

// elementText finds a descendant by local name, ignoring prefixes.
func elementText(el *etree.Element, tag string) string {
	if found := findDescendant(el, tag); found != nil {
		return found.Text()
	}
	return ""
}

func findChild(el *etree.Element, tag string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == tag {
			return child
		}
	}
	return nil
}

func findDescendant(el *etree.Element, tag string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == tag {
			return child
		}
		if found := findDescendant(child, tag); found != nil {
			return found
		}
	}
	return nil
}
