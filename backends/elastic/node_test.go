package elastic

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

func clusterServer(t *testing.T, health string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/_cluster/health":
			_, _ = w.Write([]byte(health))
		case "/":
			_, _ = w.Write([]byte(`{"name":"es-1","cluster_name":"logs","cluster_uuid":"abc","version":{"number":"8.13.0"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestNode(t *testing.T, rawURL string, opts ...Option) *Node {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append(opts, WithBaseOptions(poll.WithNodeLogger(logger)))
	n, err := New("logs", rawURL, opts...)
	require.NoError(t, err)
	return n
}

func TestNew_Validation(t *testing.T) {
	_, err := New("", "http://es:9200")
	assert.ErrorContains(t, err, "key cannot be empty")

	_, err = New("logs", "es:9200/")
	assert.ErrorContains(t, err, "must be absolute")
}

func TestNode_Entries(t *testing.T) {
	n := newTestNode(t, "http://es:9200/", WithInterval(10*time.Second))
	assert.Equal(t, "http://es:9200", n.baseURL)
	assert.Equal(t, 10*time.Second, n.health.Interval())
	assert.Equal(t, 40*time.Second, n.info.Interval())
}

func TestNode_Status(t *testing.T) {
	tests := []struct {
		name       string
		health     string
		want       poll.Status
		wantReason string
	}{
		{"green", `{"cluster_name":"logs","status":"green","number_of_nodes":3}`, poll.StatusGood, ""},
		{"yellow", `{"status":"yellow","unassigned_shards":4}`, poll.StatusWarning, "cluster yellow: 4 unassigned shards"},
		{"red", `{"status":"red","unassigned_shards":12}`, poll.StatusCritical, "cluster red: 12 unassigned shards"},
		{"timed out", `{"status":"green","timed_out":true}`, poll.StatusWarning, "cluster health request timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := clusterServer(t, tt.health)
			n := newTestNode(t, server.URL)
			require.NoError(t, n.Poll(context.Background(), true))

			h := n.ComputeStatus()
			assert.Equal(t, tt.want, h.Status)
			assert.Equal(t, tt.wantReason, h.Reason)

			info, ok := n.Info()
			require.True(t, ok)
			assert.Equal(t, "logs", info.ClusterName)
			assert.Equal(t, "8.13.0", info.Version.Number)
		})
	}
}

func TestNode_Credentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "elastic" || pass != "changeme" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"status":"green"}`))
	}))
	defer server.Close()

	n := newTestNode(t, server.URL, WithCredentials("elastic", "changeme"))
	require.NoError(t, n.Poll(context.Background(), true))
	h, ok := n.Health()
	require.True(t, ok)
	assert.Equal(t, "green", h.Status)

	anon := newTestNode(t, server.URL)
	require.Error(t, anon.Poll(context.Background(), true))
	assert.Equal(t, poll.StatusCritical, anon.ComputeStatus().Status)
}

func TestNode_BadJSON(t *testing.T) {
	server := clusterServer(t, `<html>proxy error</html>`)
	n := newTestNode(t, server.URL)

	err := n.Poll(context.Background(), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")

	_, ok := n.Health()
	assert.False(t, ok)
}
