package kalshi_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afuentes7/kalshibot/internal/adapters/kalshi"
)

func testKeyPEM(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

func TestSigner_HeadersCarrySignedTriple(t *testing.T) {
	signer, err := kalshi.NewSigner("key-id-1", testKeyPEM(t))
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "https://example.com/trade-api/v2/portfolio/balance", nil)
	require.NoError(t, err)
	require.NoError(t, signer.Apply(req, http.MethodGet, "/trade-api/v2/portfolio/balance"))

	assert.Equal(t, "key-id-1", req.Header.Get("KALSHI-ACCESS-KEY"))
	ts := req.Header.Get("KALSHI-ACCESS-TIMESTAMP")
	sig := req.Header.Get("KALSHI-ACCESS-SIGNATURE")
	require.NotEmpty(t, ts)
	require.NotEmpty(t, sig)

	// PSS es aleatorio: no se compara, se verifica.
	assert.NoError(t, signer.Verify(ts, http.MethodGet, "/trade-api/v2/portfolio/balance", sig))
	// La firma cubre method+path: otro path no verifica.
	assert.Error(t, signer.Verify(ts, http.MethodGet, "/trade-api/v2/portfolio/positions", sig))
	assert.Error(t, signer.Verify(ts, http.MethodDelete, "/trade-api/v2/portfolio/balance", sig))
}

func TestNewSigner_PKCS8(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	_, err = kalshi.NewSigner("key-id-2", pemBytes)
	assert.NoError(t, err)
}

func TestNewSigner_RejectsGarbage(t *testing.T) {
	_, err := kalshi.NewSigner("key", []byte("not pem at all"))
	assert.Error(t, err)
}
