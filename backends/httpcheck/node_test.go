package httpcheck

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/statusboard/poll"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		node    string
		url     string
		opts    []Option
		wantErr string
	}{
		{"empty name", "", "http://localhost", nil, "name cannot be empty"},
		{"no scheme", "api", "localhost:8080", nil, "scheme"},
		{"invalid url", "api", "http://[::1", nil, "invalid URL"},
		{"odd labels", "api", "http://localhost", []Option{WithLabels("env")}, "even number"},
		{"odd headers", "api", "http://localhost", []Option{WithHeaders("X")}, "even number"},
		{"zero timeout", "api", "http://localhost", []Option{WithTimeout(0)}, "timeout must be positive"},
		{"bad method", "api", "http://localhost", []Option{WithMethod("DELETE")}, "method must be"},
		{"interval too short", "api", "http://localhost", []Option{WithInterval(500 * time.Millisecond)}, "at least 1 second"},
		{"interval too long", "api", "http://localhost", []Option{WithInterval(2 * time.Hour)}, "exceed 1 hour"},
		{"nil client", "api", "http://localhost", []Option{WithClient(nil)}, "client cannot be nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.node, tt.url, tt.opts...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	n, err := New("payments", "https://payments.internal/health",
		WithLabels("env", "prod", "team", "billing"),
		WithGroup("edge"),
		WithMethod("head"),
		WithInterval(30*time.Second),
	)
	require.NoError(t, err)

	assert.Equal(t, Type, n.Type())
	assert.Equal(t, "payments", n.Key())
	assert.Equal(t, "payments", n.Name())
	assert.Equal(t, "edge", n.GroupName())
	assert.Equal(t, "https://payments.internal/health", n.URL())
	assert.Equal(t, http.MethodHead, n.method)
	assert.Equal(t, defaultTimeout, n.timeout)

	require.Len(t, n.DataPollers(), 1)
	assert.Equal(t, 30*time.Second, n.check.Interval())

	labels := n.Labels()
	labels["env"] = "dev"
	assert.Equal(t, "prod", n.Labels()["env"])
}

func TestNode_NoDataIsUnknown(t *testing.T) {
	n, err := New("api", "http://localhost", WithBaseOptions(poll.WithNodeLogger(quietLogger())))
	require.NoError(t, err)

	_, ok := n.Last()
	assert.False(t, ok)
	assert.Equal(t, poll.StatusUnknown, n.ComputeStatus().Status)
}

func TestNode_Poll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case "/degraded":
			_, _ = w.Write([]byte(`{"status":"degraded"}`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	tests := []struct {
		path       string
		want       poll.Status
		wantReason string
	}{
		{"/ok", poll.StatusGood, ""},
		{"/degraded", poll.StatusWarning, "HTTP 200"},
		{"/missing", poll.StatusCritical, "HTTP 503"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			n, err := New("api", server.URL+tt.path,
				WithHeaders("Authorization", "token"),
				WithBaseOptions(poll.WithNodeLogger(quietLogger())),
			)
			require.NoError(t, err)
			require.NoError(t, n.Poll(context.Background(), true))

			res, ok := n.Last()
			require.True(t, ok)
			assert.Equal(t, tt.want, res.Status)
			assert.Positive(t, res.Latency)

			h := n.ComputeStatus()
			assert.Equal(t, tt.want, h.Status)
			assert.Equal(t, tt.wantReason, h.Reason)
		})
	}
}

// TestNode_Unreachable verifies a transport failure is a Critical result
// rather than a cache error.
func TestNode_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	n, err := New("api", url,
		WithTimeout(time.Second),
		WithBaseOptions(poll.WithNodeLogger(quietLogger())),
	)
	require.NoError(t, err)
	require.NoError(t, n.Poll(context.Background(), true))

	res, ok := n.Last()
	require.True(t, ok)
	assert.Equal(t, poll.StatusCritical, res.Status)
	assert.Zero(t, res.StatusCode)
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, poll.StatusCritical, n.ComputeStatus().Status)
}

// TestNode_ExtractorPanic verifies a panicking extractor yields Critical with
// a correlation id.
func TestNode_ExtractorPanic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	n, err := New("api", server.URL,
		WithExtractor(func(body []byte, statusCode int) poll.Status {
			panic("boom")
		}),
		WithBaseOptions(poll.WithNodeLogger(quietLogger())),
	)
	require.NoError(t, err)
	require.NoError(t, n.Poll(context.Background(), true))

	res, ok := n.Last()
	require.True(t, ok)
	assert.Equal(t, poll.StatusCritical, res.Status)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Error, "extractor panic (correlation_id: ")
	assert.NotContains(t, res.Error, "boom")
}
