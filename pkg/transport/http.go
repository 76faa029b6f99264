package transport

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// HTTPConfig configures an HTTPTransport.
type HTTPConfig struct {
	// BaseURL of the repository service, e.g. "https://siu.example.com/services/api".
	BaseURL string

	// SessionID is the JSESSIONID cookie value used to authenticate every
	// request. The repository has no token refresh; a stale session simply
	// yields remote errors.
	SessionID string

	// TLSVerify controls certificate verification. Default: true.
	TLSVerify *bool

	// RequestTimeout bounds one fired HTTP request. This is independent of
	// the Caller deadline: the Caller abandons polls, this aborts the
	// underlying request. Default: 60 seconds.
	RequestTimeout time.Duration

	// Logger (optional).
	Logger hclog.Logger
}

// Validate checks if the configuration is valid.
func (c *HTTPConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	parsed, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("base URL must use http or https scheme, got: %s", parsed.Scheme)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must be non-negative, got: %v", c.RequestTimeout)
	}
	return nil
}

// HTTPTransport implements Transport over net/http. The first Attempt for a
// request fires it on a goroutine and reports pending; subsequent identical
// Attempts poll the completion slot. One request is tracked at a time,
// matching the one-call-in-flight contract of the Caller above it.
type HTTPTransport struct {
	cfg    HTTPConfig
	client *http.Client
	logger hclog.Logger

	mu       sync.Mutex
	inflight *firedRequest
}

// firedRequest is the completion slot for the request currently in flight.
type firedRequest struct {
	key  string
	done chan struct{}
	raw  any
	err  error
}

// Compile-time check.
var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates an HTTPTransport, applying defaults.
func NewHTTPTransport(cfg HTTPConfig) (*HTTPTransport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transport config: %w", err)
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	transport := &http.Transport{}
	if cfg.TLSVerify != nil && !*cfg.TLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &HTTPTransport{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: transport,
		},
		logger: cfg.Logger.Named("http-transport"),
	}, nil
}

// Attempt fires the request on first call, then polls it. Attempting a
// different request while one is in flight is a contract violation and
// fails rather than queueing.
func (t *HTTPTransport) Attempt(path string, body []byte, h Header) (any, bool, error) {
	key := requestKey(path, body)

	t.mu.Lock()
	fr := t.inflight
	if fr != nil && fr.key != key {
		// A slot left behind by an abandoned call is reclaimed once its
		// request has completed; until then new requests are refused.
		select {
		case <-fr.done:
			t.logger.Debug("discarding completed abandoned request", "key", fr.key)
			t.inflight = nil
			fr = nil
		default:
		}
	}
	if fr == nil {
		fr = &firedRequest{key: key, done: make(chan struct{})}
		t.inflight = fr
		t.mu.Unlock()
		go t.execute(fr, path, body, h)
		return nil, false, nil
	}
	t.mu.Unlock()

	if fr.key != key {
		return nil, false, fmt.Errorf("another call is already in flight")
	}

	select {
	case <-fr.done:
		t.mu.Lock()
		t.inflight = nil
		t.mu.Unlock()
		return fr.raw, true, fr.err
	default:
		return nil, false, nil
	}
}

// execute performs the HTTP exchange and fills the completion slot.
func (t *HTTPTransport) execute(fr *firedRequest, path string, body []byte, h Header) {
	defer close(fr.done)

	requestID := uuid.New().String()
	method := http.MethodGet
	var bodyReader io.Reader
	if body != nil {
		method = http.MethodPost
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, t.cfg.BaseURL+path, bodyReader)
	if err != nil {
		fr.err = fmt.Errorf("failed to create request: %w", err)
		return
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if t.cfg.SessionID != "" {
		req.AddCookie(&http.Cookie{Name: "JSESSIONID", Value: t.cfg.SessionID})
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range h {
		req.Header.Set(k, v)
	}

	t.logger.Debug("firing request", "method", method, "path", path, "request_id", requestID)

	resp, err := t.client.Do(req)
	if err != nil {
		fr.err = fmt.Errorf("request failed: %w", err)
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		fr.err = fmt.Errorf("failed to read response: %w", err)
		return
	}

	t.logger.Debug("request completed", "path", path, "status", resp.StatusCode,
		"bytes", len(respBody), "request_id", requestID)

	fr.raw = parseResponse(resp, respBody)
}

// parseResponse converts the wire response into the raw value handed to
// envelope normalization. Remote failures become error-shaped values rather
// than Go errors so the Caller surfaces them as error envelopes.
func parseResponse(resp *http.Response, body []byte) any {
	isJSON := strings.Contains(resp.Header.Get("Content-Type"), "json")

	var parsed any
	if isJSON && len(body) > 0 {
		if err := json.Unmarshal(body, &parsed); err != nil {
			return map[string]any{
				"error": fmt.Sprintf("unparseable response: %v", err),
			}
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// The repository reports failures in its own envelope; keep that
		// error field when present, otherwise synthesize one from the status.
		if m, ok := parsed.(map[string]any); ok {
			if _, hasErr := m["error"]; hasErr {
				return m
			}
		}
		return map[string]any{
			"error": fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	if isJSON {
		return parsed
	}

	// Raw content (file reads): pass the text through as a scalar.
	return string(body)
}

// requestKey identifies a request so repeated Attempts with identical
// arguments poll rather than re-fire.
func requestKey(path string, body []byte) string {
	return path + "\x00" + string(body)
}
