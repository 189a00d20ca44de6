package kalshi

// auth.go — Kalshi request signing.
//
// Every request carries three headers:
//   KALSHI-ACCESS-KEY        the API key id
//   KALSHI-ACCESS-TIMESTAMP  unix milliseconds
//   KALSHI-ACCESS-SIGNATURE  base64(RSA-PSS-SHA256(ts + METHOD + path))
//
// The signed path is the full API path without query string, e.g.
// "/trade-api/v2/portfolio/balance".

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Signer holds the API key id and the RSA private key used to sign
// requests.
type Signer struct {
	keyID string
	key   *rsa.PrivateKey
	now   func() time.Time
}

// NewSigner parses a PEM-encoded RSA private key (PKCS#1 or PKCS#8).
func NewSigner(keyID string, keyPEM []byte) (*Signer, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("kalshi.NewSigner: no PEM block in key material")
	}

	var key *rsa.PrivateKey
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		key = k
	} else if k8, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rk, ok := k8.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("kalshi.NewSigner: key is %T, want RSA", k8)
		}
		key = rk
	} else {
		return nil, fmt.Errorf("kalshi.NewSigner: parse private key: %w", err)
	}

	return &Signer{keyID: keyID, key: key, now: time.Now}, nil
}

// NewSignerFromFile loads the key from a PEM file on disk.
func NewSignerFromFile(keyID, path string) (*Signer, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kalshi.NewSignerFromFile: %w", err)
	}
	return NewSigner(keyID, pemBytes)
}

// Apply signs method+path at the current timestamp and sets the three
// access headers on req.
func (s *Signer) Apply(req *http.Request, method, path string) error {
	ts := strconv.FormatInt(s.now().UnixMilli(), 10)
	sig, err := s.sign(ts, method, path)
	if err != nil {
		return err
	}
	req.Header.Set("KALSHI-ACCESS-KEY", s.keyID)
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", sig)
	return nil
}

// Headers returns the three access headers for a request that is not
// built through Client, e.g. a websocket upgrade.
func (s *Signer) Headers(method, path string) (http.Header, error) {
	ts := strconv.FormatInt(s.now().UnixMilli(), 10)
	sig, err := s.sign(ts, method, path)
	if err != nil {
		return nil, err
	}
	h := make(http.Header)
	h.Set("KALSHI-ACCESS-KEY", s.keyID)
	h.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	h.Set("KALSHI-ACCESS-SIGNATURE", sig)
	return h, nil
}

// sign produces the base64 PSS signature over ts || METHOD || path.
func (s *Signer) sign(ts, method, path string) (string, error) {
	msg := ts + strings.ToUpper(method) + path
	digest := sha256.Sum256([]byte(msg))

	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", fmt.Errorf("kalshi: sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks a signature produced by sign. Used in tests; PSS is
// randomized so signatures can only be checked, not compared.
func (s *Signer) Verify(ts, method, path, sigB64 string) error {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return fmt.Errorf("kalshi: decode signature: %w", err)
	}
	msg := ts + strings.ToUpper(method) + path
	digest := sha256.Sum256([]byte(msg))
	return rsa.VerifyPSS(&s.key.PublicKey, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
}
