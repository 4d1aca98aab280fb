package haproxy

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/statusboard/poll"
)

func newTestNode(t *testing.T, group, key, rawURL string, opts ...Option) *Node {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append(opts, WithBaseOptions(poll.WithNodeLogger(logger)))
	n, err := New(group, key, rawURL, opts...)
	require.NoError(t, err)
	return n
}

func statsServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestCSVURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://lb1:8404/stats", "http://lb1:8404/stats;csv"},
		{"http://lb1:8404/stats;csv", "http://lb1:8404/stats;csv"},
		{"http://lb1/haproxy?stats", "http://lb1/haproxy?stats;csv"},
		{"http://lb1/haproxy?stats;csv", "http://lb1/haproxy?stats;csv"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := csvURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := csvURL("lb1/stats")
	assert.ErrorContains(t, err, "must be absolute")
	_, err = New("edge", "", "http://lb1/stats")
	assert.ErrorContains(t, err, "key cannot be empty")
}

func TestNode_Status(t *testing.T) {
	const header = "# pxname,svname,status,check_status\n"
	tests := []struct {
		name       string
		rows       string
		want       poll.Status
		wantReason string
	}{
		{
			name: "all up",
			rows: "web,FRONTEND,OPEN,\nweb,web1,UP,L7OK\nweb,web2,no check,\nweb,BACKEND,UP,\n",
			want: poll.StatusGood,
		},
		{
			name:       "server down",
			rows:       "web,web1,UP,L7OK\nweb,web2,DOWN,L4CON\n",
			want:       poll.StatusCritical,
			wantReason: "web/web2 is DOWN (L4CON)",
		},
		{
			name:       "server in maintenance",
			rows:       "web,web1,UP,L7OK\nweb,web2,MAINT,\n",
			want:       poll.StatusMaintenance,
			wantReason: "web/web2 in MAINT",
		},
		{
			name:       "drain does not hide down",
			rows:       "web,web1,DRAIN,\nweb,web2,DOWN,\n",
			want:       poll.StatusCritical,
			wantReason: "web/web2 is DOWN",
		},
		{
			name:       "nolb",
			rows:       "web,web1,NOLB,\n",
			want:       poll.StatusWarning,
			wantReason: "web/web1 not accepting new sessions",
		},
		{
			name: "frontend stop ignored",
			rows: "web,FRONTEND,STOP,\nweb,web1,UP,\n",
			want: poll.StatusGood,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := statsServer(t, header+tt.rows)
			n := newTestNode(t, "edge", "lb1", server.URL+"/stats", WithCredentials("admin", "secret"))
			require.NoError(t, n.Poll(context.Background(), true))

			h := n.ComputeStatus()
			assert.Equal(t, tt.want, h.Status)
			assert.Contains(t, h.Reason, tt.wantReason)
		})
	}
}

func TestNode_Unauthorized(t *testing.T) {
	server := statsServer(t, "")
	n := newTestNode(t, "edge", "lb1", server.URL+"/stats")

	err := n.Poll(context.Background(), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	_, ok := n.Stats()
	assert.False(t, ok)
	assert.Equal(t, poll.StatusCritical, n.ComputeStatus().Status)
}

// TestNode_GroupRollup verifies a group of instances rolls up through the
// registry.
func TestNode_GroupRollup(t *testing.T) {
	up := statsServer(t, "# pxname,svname,status\nweb,web1,UP\n")
	down := statsServer(t, "# pxname,svname,status\nweb,web1,DOWN\n")

	reg := poll.NewRegistry()
	lb1 := newTestNode(t, "edge", "lb1", up.URL+"/stats", WithCredentials("admin", "secret"))
	lb2 := newTestNode(t, "edge", "lb2", down.URL+"/stats", WithCredentials("admin", "secret"), WithName("LB 2"))
	require.True(t, reg.Register(lb1))
	require.True(t, reg.Register(lb2))

	for _, n := range []*Node{lb1, lb2} {
		require.NoError(t, n.Poll(context.Background(), true))
	}

	groups := reg.Groups(Type)
	require.Len(t, groups, 1)
	assert.Equal(t, "edge", groups[0].Name)
	assert.Len(t, groups[0].Members, 2)

	h := groups[0].ComputeStatus()
	assert.Equal(t, poll.StatusCritical, h.Status)
	assert.Equal(t, "LB 2: web/web1 is DOWN", h.Reason)
}
