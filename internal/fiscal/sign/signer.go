package sign

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
)

const (
	dsigNamespace      = "http://www.w3.org/2000/09/xmldsig#"
	canonicalAlgorithm = "http://www.w3.org/2001/10/xml-exc-c14n#"
	signatureAlgorithm = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	digestAlgorithm    = "http://www.w3.org/2001/04/xmlenc#sha256"
	envelopedTransform = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

var (
	ErrReferenceNotFound = errors.New("sign: reference target not found in document")
	ErrNoSignature       = errors.New("sign: document carries no signature")
	ErrDigestMismatch    = errors.New("sign: reference digest does not match document content")
	ErrInvalidSignature  = errors.New("sign: signature value does not verify")
)

// Signer produces enveloped signatures over fiscal documents. The signature
// element is appended to the document root and references the element whose
// Id attribute matches the control code.
type Signer struct {
	keystore *Keystore
}

func NewSigner(keystore *Keystore) *Signer {
	return &Signer{keystore: keystore}
}

// Sign parses the document, digests the element identified by refID and
// appends the detached-reference signature to the root.
func (s *Signer) Sign(docXML []byte, refID string) ([]byte, error) {
	key, cert, err := s.keystore.Load()
	if err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(docXML); err != nil {
		return nil, fmt.Errorf("sign: parse document: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("sign: empty document")
	}

	target := findByID(root, refID)
	if target == nil {
		return nil, ErrReferenceNotFound
	}

	canonicalizer := dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")
	digest, err := digestElement(canonicalizer, target)
	if err != nil {
		return nil, err
	}

	signature := etree.NewElement("Signature")
	signature.CreateAttr("xmlns", dsigNamespace)

	signedInfo := signature.CreateElement("SignedInfo")
	signedInfo.CreateElement("CanonicalizationMethod").
		CreateAttr("Algorithm", canonicalAlgorithm)
	signedInfo.CreateElement("SignatureMethod").
		CreateAttr("Algorithm", signatureAlgorithm)

	reference := signedInfo.CreateElement("Reference")
	reference.CreateAttr("URI", "#"+refID)
	transforms := reference.CreateElement("Transforms")
	transforms.CreateElement("Transform").
		CreateAttr("Algorithm", envelopedTransform)
	transforms.CreateElement("Transform").
		CreateAttr("Algorithm", canonicalAlgorithm)
	reference.CreateElement("DigestMethod").
		CreateAttr("Algorithm", digestAlgorithm)
	reference.CreateElement("DigestValue").
		SetText(base64.StdEncoding.EncodeToString(digest))

	signedInfoDigest, err := digestElement(canonicalizer, signedInfo)
	if err != nil {
		return nil, err
	}
	signatureValue, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, signedInfoDigest)
	if err != nil {
		return nil, fmt.Errorf("sign: rsa sign: %w", err)
	}
	signature.CreateElement("SignatureValue").
		SetText(base64.StdEncoding.EncodeToString(signatureValue))

	keyInfo := signature.CreateElement("KeyInfo")
	keyInfo.CreateElement("X509Data").
		CreateElement("X509Certificate").
		SetText(base64.StdEncoding.EncodeToString(cert.Raw))

	root.AddChild(signature)
	return doc.WriteToBytes()
}

// Verify checks the enveloped signature of a signed document against the
// certificate it embeds.
func Verify(signedXML []byte) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signedXML); err != nil {
		return fmt.Errorf("sign: parse document: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("sign: empty document")
	}

	signature := findSignature(root)
	if signature == nil {
		return ErrNoSignature
	}

	signedInfo := signature.FindElement("SignedInfo")
	reference := signature.FindElement("SignedInfo/Reference")
	digestValue := signature.FindElement("SignedInfo/Reference/DigestValue")
	signatureValue := signature.FindElement("SignatureValue")
	certValue := signature.FindElement("KeyInfo/X509Data/X509Certificate")
	if signedInfo == nil || reference == nil || digestValue == nil ||
		signatureValue == nil || certValue == nil {
		return ErrNoSignature
	}

	refID := strings.TrimPrefix(reference.SelectAttrValue("URI", ""), "#")
	target := findByID(root, refID)
	if target == nil {
		return ErrReferenceNotFound
	}

	// Enveloped transform: the signature itself is excluded from the digest.
	if parent := signature.Parent(); parent != nil {
		parent.RemoveChild(signature)
	}

	canonicalizer := dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")
	digest, err := digestElement(canonicalizer, target)
	if err != nil {
		return err
	}
	wantDigest, err := base64.StdEncoding.DecodeString(strings.TrimSpace(digestValue.Text()))
	if err != nil {
		return fmt.Errorf("sign: decode digest: %w", err)
	}
	if !bytes.Equal(digest, wantDigest) {
		return ErrDigestMismatch
	}

	certDER, err := base64.StdEncoding.DecodeString(strings.TrimSpace(certValue.Text()))
	if err != nil {
		return fmt.Errorf("sign: decode certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("sign: parse certificate: %w", err)
	}
	publicKey, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return ErrUnsupportedKey
	}

	signedInfoDigest, err := digestElement(canonicalizer, signedInfo)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signatureValue.Text()))
	if err != nil {
		return fmt.Errorf("sign: decode signature value: %w", err)
	}
	if err := rsa.VerifyPKCS1v15(publicKey, crypto.SHA256, signedInfoDigest, sig); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

func digestElement(canonicalizer dsig.Canonicalizer, el *etree.Element) ([]byte, error) {
	canonical, err := canonicalizer.Canonicalize(el)
	if err != nil {
		return nil, fmt.Errorf("sign: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return sum[:], nil
}

func findByID(el *etree.Element, id string) *etree.Element {
	if id == "" {
		return nil
	}
	if el.SelectAttrValue("Id", "") == id {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := findByID(child, id); found != nil {
			return found
		}
	}
	return nil
}

func findSignature(el *etree.Element) *etree.Element {
	if el.Tag == "Signature" && el.NamespaceURI() == dsigNamespace {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := findSignature(child); found != nil {
			return found
		}
	}
	return nil
}
