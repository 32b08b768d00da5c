// Package sign applies the enveloped XML signature the authority requires on
// every fiscal document, using the issuer's PKCS#12 credential bundle.
package sign

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/arandulabs/kuatia/internal/config"
	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

var (
	ErrKeystoreNotConfigured = errors.New("sign: keystore path is not configured")
	ErrUnsupportedKey        = errors.New("sign: keystore does not hold an RSA private key")
)

// Keystore loads the signing credentials from a PKCS#12 bundle. The bundle is
// read and decrypted once; every signer and the mTLS transport share the same
// parsed material.
type Keystore struct {
	path     string
	password string

	once    sync.Once
	key     *rsa.PrivateKey
	cert    *x509.Certificate
	caCerts []*x509.Certificate
	err     error
}

func NewKeystore(cfg config.Config) *Keystore {
	return &Keystore{
		path:     cfg.Sifen.KeystorePath,
		password: cfg.Sifen.KeystorePassword,
	}
}

// NewKeystoreFromFile builds a keystore outside the fx graph, for tooling and
// tests.
func NewKeystoreFromFile(path, password string) *Keystore {
	return &Keystore{path: path, password: password}
}

// Load decodes the bundle on first use and returns the cached credentials.
func (k *Keystore) Load() (*rsa.PrivateKey, *x509.Certificate, error) {
	k.once.Do(func() {
		if k.path == "" {
			k.err = ErrKeystoreNotConfigured
			return
		}

		raw, err := os.ReadFile(k.path)
		if err != nil {
			k.err = fmt.Errorf("sign: read keystore: %w", err)
			return
		}

		key, cert, caCerts, err := pkcs12.DecodeChain(raw, k.password)
		if err != nil {
			k.err = fmt.Errorf("sign: decode keystore: %w", err)
			return
		}

		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			k.err = ErrUnsupportedKey
			return
		}

		k.key = rsaKey
		k.cert = cert
		k.caCerts = caCerts
	})
	return k.key, k.cert, k.err
}

// TLSCertificate exposes the same credential as a client certificate for the
// mutual TLS channel to the authority.
func (k *Keystore) TLSCertificate() (tls.Certificate, error) {
	key, cert, err := k.Load()
	if err != nil {
		return tls.Certificate{}, err
	}

	chain := [][]byte{cert.Raw}
	for _, ca := range k.caCerts {
		chain = append(chain, ca.Raw)
	}
	return tls.Certificate{
		Certificate: chain,
		PrivateKey:  key,
		Leaf:        cert,
	}, nil
}
