package starstore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edms-forge/starstore/pkg/transport"
)

// recordedCall is one attempt seen by the stub transport.
type recordedCall struct {
	Path   string
	Body   string
	Header transport.Header
}

// stubTransport answers every attempt immediately from handle. A nil handle
// leaves the call pending forever, which exercises the timeout path.
type stubTransport struct {
	handle func(path string, body []byte) any
	calls  []recordedCall
}

func (s *stubTransport) Attempt(path string, body []byte, h transport.Header) (any, bool, error) {
	s.calls = append(s.calls, recordedCall{Path: path, Body: string(body), Header: h})
	if s.handle == nil {
		return nil, false, nil
	}
	return s.handle(path, body), true, nil
}

// paths returns the distinct request paths in call order.
func (s *stubTransport) paths() []string {
	out := make([]string, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c.Path)
	}
	return out
}

func newTestClient(t *testing.T, s *stubTransport) *Client {
	t.Helper()
	caller, err := transport.NewCaller(transport.CallerConfig{
		Transport:        s,
		Timeout:          50 * time.Millisecond,
		PollInterval:     time.Millisecond,
		ClockSampleEvery: 1,
	})
	require.NoError(t, err)

	client, err := NewClient(Config{Caller: caller})
	require.NoError(t, err)
	return client
}

// decodeBody parses a recorded JSON request body.
func decodeBody(t *testing.T, body string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &m))
	return m
}

func TestNewClient_RequiresCaller(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Caller")
}

func TestCurrentUser(t *testing.T) {
	s := &stubTransport{handle: func(path string, body []byte) any {
		require.Equal(t, "/user/current", path)
		require.Nil(t, body)
		return map[string]any{"contents": map[string]any{"id": "u1", "login": "reporter"}}
	}}
	c := newTestClient(t, s)

	user, err := c.CurrentUser()
	require.NoError(t, err)
	login, _ := user.String("login")
	require.Equal(t, "reporter", login)
}
