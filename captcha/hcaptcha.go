// Package captcha provides an hCaptcha siteverify client. The engine
// treats the verifier as an external dependency and fails closed when it
// is unreachable.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultEndpoint = "https://hcaptcha.com/siteverify"

// ErrVerifierUnavailable wraps transport and decode failures talking to
// the verification service.
var ErrVerifierUnavailable = errors.New("captcha verifier unavailable")

// HCaptcha verifies CAPTCHA assertion tokens against the hCaptcha
// siteverify endpoint. Safe for concurrent use.
type HCaptcha struct {
	secret   string
	endpoint string
	client   *http.Client
}

// Option customizes an HCaptcha client.
type Option func(*HCaptcha)

// WithEndpoint overrides the siteverify URL. Intended for tests.
func WithEndpoint(endpoint string) Option {
	return func(h *HCaptcha) { h.endpoint = endpoint }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(h *HCaptcha) { h.client = client }
}

// NewHCaptcha creates a verifier with the given account secret. Every
// request is bounded by timeout; zero selects 5 seconds.
func NewHCaptcha(secret string, timeout time.Duration, opts ...Option) *HCaptcha {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	h := &HCaptcha{
		secret:   secret,
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type siteverifyResponse struct {
	Success bool `json:"success"`
}

// Verify checks an assertion token for the given client IP. A false
// result means the assertion was rejected; an error means the service
// could not be consulted at all.
func (h *HCaptcha) Verify(ctx context.Context, assertion, clientIP string) (bool, error) {
	if assertion == "" {
		return false, nil
	}

	form := url.Values{}
	form.Set("secret", h.secret)
	form.Set("response", assertion)
	if clientIP != "" {
		form.Set("remoteip", clientIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := h.client.Do(req)
	if err != nil {
		return false, errors.Join(ErrVerifierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, ErrVerifierUnavailable
	}

	var decoded siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return false, errors.Join(ErrVerifierUnavailable, err)
	}

	return decoded.Success, nil
}
