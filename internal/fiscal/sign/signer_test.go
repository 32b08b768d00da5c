package sign

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

const keystorePassword = "changeit"

func writeTestKeystore(t *testing.T) string {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:   "ARANDU LABS S.A.",
			SerialNumber: "RUC80012345-3",
		},
		NotBefore:   time.Now().Add(-time.Hour),
		NotAfter:    time.Now().Add(24 * time.Hour),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(certDER)
	require.NoError(t, err)

	bundle, err := pkcs12.Modern.Encode(key, cert, nil, keystorePassword)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "issuer.p12")
	require.NoError(t, os.WriteFile(path, bundle, 0o600))
	return path
}

func testDocument() []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8"?>
<rDE xmlns="http://ekuatia.set.gov.py/sifen/xsd">
  <dVerFor>150</dVerFor>
  <DE Id="01800123453001002010000042220240517112345678903">
    <gTimb>
      <dNumTim>12345678</dNumTim>
      <dNumDoc>0000042</dNumDoc>
    </gTimb>
  </DE>
</rDE>`)
}

const testRefID = "01800123453001002010000042220240517112345678903"

func TestSignAndVerify(t *testing.T) {
	ks := NewKeystoreFromFile(writeTestKeystore(t), keystorePassword)
	signer := NewSigner(ks)

	signed, err := signer.Sign(testDocument(), testRefID)
	require.NoError(t, err)

	out := string(signed)
	assert.Contains(t, out, "<Signature")
	assert.Contains(t, out, `URI="#`+testRefID+`"`)
	assert.Contains(t, out, "<X509Certificate>")

	assert.NoError(t, Verify(signed))
}

func TestSignIsDeterministicOverContent(t *testing.T) {
	ks := NewKeystoreFromFile(writeTestKeystore(t), keystorePassword)
	signer := NewSigner(ks)

	first, err := signer.Sign(testDocument(), testRefID)
	require.NoError(t, err)
	second, err := signer.Sign(testDocument(), testRefID)
	require.NoError(t, err)

	// RSASSA-PKCS1-v1_5 is deterministic for a fixed key and digest.
	assert.Equal(t, first, second)
}

func TestVerifyDetectsTampering(t *testing.T) {
	ks := NewKeystoreFromFile(writeTestKeystore(t), keystorePassword)
	signer := NewSigner(ks)

	signed, err := signer.Sign(testDocument(), testRefID)
	require.NoError(t, err)

	tampered := strings.Replace(string(signed), "0000042", "0000043", 1)
	require.NotEqual(t, string(signed), tampered)

	assert.ErrorIs(t, Verify([]byte(tampered)), ErrDigestMismatch)
}

func TestVerifyRejectsUnsignedDocument(t *testing.T) {
	assert.ErrorIs(t, Verify(testDocument()), ErrNoSignature)
}

func TestSignUnknownReference(t *testing.T) {
	ks := NewKeystoreFromFile(writeTestKeystore(t), keystorePassword)
	signer := NewSigner(ks)

	_, err := signer.Sign(testDocument(), "does-not-exist")
	assert.ErrorIs(t, err, ErrReferenceNotFound)
}

func TestKeystoreNotConfigured(t *testing.T) {
	signer := NewSigner(NewKeystoreFromFile("", ""))
	_, err := signer.Sign(testDocument(), testRefID)
	assert.ErrorIs(t, err, ErrKeystoreNotConfigured)
}

func TestKeystoreWrongPassword(t *testing.T) {
	ks := NewKeystoreFromFile(writeTestKeystore(t), "wrong")
	_, _, err := ks.Load()
	assert.Error(t, err)
}

func TestTLSCertificate(t *testing.T) {
	ks := NewKeystoreFromFile(writeTestKeystore(t), keystorePassword)
	cert, err := ks.TLSCertificate()
	require.NoError(t, err)
	require.Len(t, cert.Certificate, 1)
	assert.NotNil(t, cert.PrivateKey)
	assert.Equal(t, "ARANDU LABS S.A.", cert.Leaf.Subject.CommonName)
}
