package kalshi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.elections.kalshi.com/trade-api/v2"

	// Rate limits al 60% de los límites del tier básico.
	// Reads: 10/s → 6/s. Writes (create/amend/cancel): 5/s → 3/s.
	readRatePerSec  = 6
	writeRatePerSec = 3

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client es el HTTP client de Kalshi con firma, rate limiting y retries.
type Client struct {
	http         *http.Client
	baseURL      string
	signer       *Signer
	readLimiter  *rate.Limiter
	writeLimiter *rate.Limiter
}

// NewClient crea un Client firmado. Si baseURL está vacío usa producción.
func NewClient(baseURL string, signer *Signer) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http:         &http.Client{Timeout: 10 * time.Second},
		baseURL:      baseURL,
		signer:       signer,
		readLimiter:  rate.NewLimiter(readRatePerSec, 5),
		writeLimiter: rate.NewLimiter(writeRatePerSec, 2),
	}
}

// get hace un GET firmado. path puede llevar query string; la firma cubre
// solo el path sin query.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doWithRetry(ctx, c.readLimiter, http.MethodGet, path, nil, out)
}

// post hace un POST JSON firmado.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.doWithRetry(ctx, c.writeLimiter, http.MethodPost, path, body, out)
}

// put hace un PUT JSON firmado.
func (c *Client) put(ctx context.Context, path string, body, out any) error {
	return c.doWithRetry(ctx, c.writeLimiter, http.MethodPut, path, body, out)
}

// del hace un DELETE firmado.
func (c *Client) del(ctx context.Context, path string, out any) error {
	return c.doWithRetry(ctx, c.writeLimiter, http.MethodDelete, path, nil, out)
}

// doWithRetry ejecuta la request con backoff exponencial. Las cabeceras de
// firma se regeneran en cada intento para que el timestamp no caduque.
func (c *Client) doWithRetry(ctx context.Context, limiter *rate.Limiter, method, path string, reqBody, out any) error {
	var bodyBytes []byte
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("kalshi: marshal body: %w", err)
		}
		bodyBytes = b
	}

	signPath, err := pathWithoutQuery(path)
	if err != nil {
		return fmt.Errorf("kalshi: bad path %q: %w", path, err)
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("kalshi: rate limiter: %w", err)
		}

		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("kalshi: new request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if err := c.signer.Apply(req, method, signPath); err != nil {
			return fmt.Errorf("kalshi: sign request: %w", err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("kalshi: request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			slog.Warn("kalshi: rate limited by API", "attempt", attempt+1, "path", signPath)
			c.sleep(ctx, attempt)
			continue
		}
		if resp.StatusCode >= 500 {
			if attempt == maxRetries {
				return fmt.Errorf("kalshi: server error %d after %d retries: %s", resp.StatusCode, maxRetries, respBody)
			}
			c.sleep(ctx, attempt)
			continue
		}
		if resp.StatusCode >= 400 {
			return &APIError{Status: resp.StatusCode, Body: string(respBody)}
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("kalshi: decode response: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("kalshi: exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

// pathWithoutQuery strips the query string; Kalshi signs the bare path
// prefixed with /trade-api/v2.
func pathWithoutQuery(path string) (string, error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	return "/trade-api/v2" + u.Path, nil
}

// APIError is a non-retryable 4xx response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kalshi: client error %d: %s", e.Status, e.Body)
}
