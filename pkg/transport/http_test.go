package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// attemptUntilDone polls the transport until the fired request completes.
func attemptUntilDone(t *testing.T, tr *HTTPTransport, path string, body []byte, h Header) any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		raw, done, err := tr.Attempt(path, body, h)
		require.NoError(t, err)
		if done {
			return raw
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("request never resolved")
	return nil
}

func newHTTPTransport(t *testing.T, baseURL string) *HTTPTransport {
	t.Helper()
	tr, err := NewHTTPTransport(HTTPConfig{
		BaseURL:   baseURL,
		SessionID: "abc123",
	})
	require.NoError(t, err)
	return tr
}

func TestHTTPTransport_GetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/irv/42", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		cookie, err := r.Cookie("JSESSIONID")
		require.NoError(t, err)
		assert.Equal(t, "abc123", cookie.Value)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"contents": map[string]any{"id": "42", "name": "doc"},
		})
	}))
	defer server.Close()

	tr := newHTTPTransport(t, server.URL)
	raw := attemptUntilDone(t, tr, "/irv/42", nil, nil)

	m, ok := raw.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, m, "contents")
}

func TestHTTPTransport_PostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "reports", body["name"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"id": "f1", "name": "reports"})
	}))
	defer server.Close()

	tr := newHTTPTransport(t, server.URL)
	raw := attemptUntilDone(t, tr, "/folder/1/childs", []byte(`{"name":"reports"}`), nil)

	m, ok := raw.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "f1", m["id"])
}

func TestHTTPTransport_HeaderOverride(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/plain; charset=utf-8", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":"ok"}`))
	}))
	defer server.Close()

	tr := newHTTPTransport(t, server.URL)
	attemptUntilDone(t, tr, "/file/1/write", []byte("hello"), Header{
		"Content-Type": "text/plain; charset=utf-8",
	})
}

func TestHTTPTransport_PendingThenDone(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1"}`))
	}))
	defer server.Close()

	tr := newHTTPTransport(t, server.URL)

	raw, done, err := tr.Attempt("/irv/1", nil, nil)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Nil(t, raw)

	// Identical re-attempts stay pending until the server answers.
	_, done, err = tr.Attempt("/irv/1", nil, nil)
	require.NoError(t, err)
	assert.False(t, done)

	close(release)
	raw = attemptUntilDone(t, tr, "/irv/1", nil, nil)
	m, ok := raw.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1", m["id"])
}

func TestHTTPTransport_RejectsSecondCallInFlight(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte("ok"))
	}))
	defer server.Close()
	defer close(release)

	tr := newHTTPTransport(t, server.URL)

	_, done, err := tr.Attempt("/irv/1", nil, nil)
	require.NoError(t, err)
	assert.False(t, done)

	_, _, err = tr.Attempt("/irv/2", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in flight")
}

func TestHTTPTransport_RecoversAfterAbandonedCall(t *testing.T) {
	release := make(chan struct{})
	slowDone := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/irv/slow" {
			<-release
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"slow"}`))
			close(slowDone)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"fast"}`))
	}))
	defer server.Close()

	tr := newHTTPTransport(t, server.URL)

	// Fire a request that outlives its caller and stop polling it.
	_, done, err := tr.Attempt("/irv/slow", nil, nil)
	require.NoError(t, err)
	assert.False(t, done)

	// While it genuinely runs, a different request is refused.
	_, _, err = tr.Attempt("/irv/fast", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in flight")

	close(release)
	<-slowDone

	// Once the abandoned request completes, its slot is reclaimed and a
	// different request goes through.
	deadline := time.Now().Add(5 * time.Second)
	for {
		raw, done, err := tr.Attempt("/irv/fast", nil, nil)
		if err == nil && done {
			m, ok := raw.(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "fast", m["id"])
			break
		}
		if !time.Now().Before(deadline) {
			t.Fatalf("transport never recovered: done=%v err=%v", done, err)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHTTPTransport_RemoteErrorShapes(t *testing.T) {
	t.Run("error envelope passes through", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"object not found"}`))
		}))
		defer server.Close()

		tr := newHTTPTransport(t, server.URL)
		raw := attemptUntilDone(t, tr, "/irv/404", nil, nil)
		m, ok := raw.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "object not found", m["error"])
	})

	t.Run("bare status becomes an error shape", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("upstream broken"))
		}))
		defer server.Close()

		tr := newHTTPTransport(t, server.URL)
		raw := attemptUntilDone(t, tr, "/irv/1", nil, nil)
		m, ok := raw.(map[string]any)
		require.True(t, ok)
		assert.Contains(t, m["error"], "status 502")
		assert.Contains(t, m["error"], "upstream broken")
	})
}

func TestHTTPTransport_RawContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("file body"))
	}))
	defer server.Close()

	tr := newHTTPTransport(t, server.URL)
	raw := attemptUntilDone(t, tr, "/file/1/read", nil, nil)
	assert.Equal(t, "file body", raw)
}

func TestHTTPConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     HTTPConfig
		wantErr string
	}{
		{"missing base URL", HTTPConfig{}, "base URL is required"},
		{"bad scheme", HTTPConfig{BaseURL: "ftp://x"}, "http or https"},
		{"valid", HTTPConfig{BaseURL: "https://siu.example.com/services/api"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
