package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxResponseSize bounds how much of the endpoint response is read.
const maxResponseSize = 1 << 20

// HTTPProvider fetches credentials from the application backend with a GET request.
//
// The backend answers either with the bare credential object or wrapped in the
// usual {"data": {...}} envelope.
type HTTPProvider struct {
	url         string
	httpClient  *http.Client
	bearerToken string
	headers     map[string]string
	logger      *slog.Logger
}

// HTTPOption is a functional option for configuring an HTTPProvider
type HTTPOption func(*HTTPProvider)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(p *HTTPProvider) {
		p.httpClient = client
	}
}

// WithBearerToken sends "Authorization: Bearer <token>" with each request
func WithBearerToken(token string) HTTPOption {
	return func(p *HTTPProvider) {
		p.bearerToken = token
	}
}

// WithHeader adds a custom header to each request
func WithHeader(key, value string) HTTPOption {
	return func(p *HTTPProvider) {
		if p.headers == nil {
			p.headers = make(map[string]string)
		}
		p.headers[key] = value
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(p *HTTPProvider) {
		p.logger = logger
	}
}

// NewHTTPProvider creates a provider for the given credential endpoint URL.
func NewHTTPProvider(url string, opts ...HTTPOption) *HTTPProvider {
	p := &HTTPProvider{
		url: url,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

func (p *HTTPProvider) Fetch(ctx context.Context) (*Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.bearerToken)
	}
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrFetchFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Warn("credential endpoint returned error", "url", p.url, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %s: %s", ErrFetchFailed, resp.Status, bytes.TrimSpace(body))
	}

	cred, err := decodeCredential(body)
	if err != nil {
		return nil, err
	}
	if err := cred.Validate(); err != nil {
		return nil, err
	}

	p.logger.Debug("fetched upload credential", "endpoint", cred.Endpoint, "expiration", cred.Expiration.Time)
	return cred, nil
}

func decodeCredential(body []byte) (*Credential, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	payload := body
	if len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		payload = env.Data
	}

	var cred Credential
	if err := json.Unmarshal(payload, &cred); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	return &cred, nil
}
