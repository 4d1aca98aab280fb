// Package mock serves fake backends for the statusboard demo: JSON health
// endpoints, HAProxy stats pages and an Elasticsearch cluster. Every fake
// cycles through healthy and unhealthy states so transitions show up in the
// API and on NATS.
package mock

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// state tracks the current step and next change time of one fake.
type state struct {
	idx          int
	nextChangeAt time.Time
}

// Server holds the cycling state of every fake it has served.
type Server struct {
	mu        sync.Mutex
	states    map[string]*state
	minPeriod time.Duration
	maxPeriod time.Duration
	jitter    bool
	logger    *slog.Logger
}

// New creates a Server whose fakes change state every 20-60 seconds.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		states:    make(map[string]*state),
		minPeriod: 20 * time.Second,
		maxPeriod: 60 * time.Second,
		jitter:    true,
		logger:    logger,
	}
}

var (
	healthStatuses  = []string{"ok", "degraded", "down"}
	clusterStatuses = []string{"green", "yellow", "red"}
	serverStates    = []string{"UP", "UP", "DOWN", "MAINT"}
)

// Handler returns the routes:
//
//	GET /health?svc=&env=          {"status": "ok|degraded|down"}
//	GET /haproxy/{lb}/stats;csv    HAProxy CSV export, three web servers
//	GET /es/_cluster/health        Elasticsearch cluster health
//	GET /es/                       Elasticsearch root info
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Get("/haproxy/{lb}/{page}", s.handleHAProxy)
	r.Get("/es/_cluster/health", s.handleClusterHealth)
	r.Get("/es/", s.handleClusterInfo)
	r.Get("/es", s.handleClusterInfo)
	return r
}

// step returns the current index for key, advancing it when its change
// time has passed.
func (s *Server) step(key string, n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[key]
	if !ok {
		s.states[key] = &state{nextChangeAt: time.Now().Add(s.period())}
		return 0
	}
	if time.Now().After(st.nextChangeAt) {
		prev := st.idx
		st.idx = (st.idx + 1) % n
		st.nextChangeAt = time.Now().Add(s.period())
		s.logger.Info("mock state change", "fake", key, "from", prev, "to", st.idx)
	}
	return st.idx
}

func (s *Server) period() time.Duration {
	spread := s.maxPeriod - s.minPeriod
	if spread <= 0 {
		return s.minPeriod
	}
	return s.minPeriod + rand.N(spread)
}

func (s *Server) latency() {
	if s.jitter {
		time.Sleep(time.Duration(50+rand.IntN(150)) * time.Millisecond)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	svc := r.URL.Query().Get("svc")
	env := r.URL.Query().Get("env")
	s.latency()

	status := healthStatuses[s.step("health/"+svc+"-"+env, len(healthStatuses))]
	writeJSON(w, map[string]string{"svc": svc, "env": env, "status": status}, s.logger)
}

func (s *Server) handleHAProxy(w http.ResponseWriter, r *http.Request) {
	lb := chi.URLParam(r, "lb")
	s.latency()

	var b strings.Builder
	b.WriteString("# pxname,svname,qcur,qmax,scur,smax,slim,stot,bin,bout,status,weight,lastchg,check_status,\n")
	b.WriteString("web,FRONTEND,,,4,20,2000,500,0,0,OPEN,,,,\n")
	for i := 1; i <= 3; i++ {
		srv := fmt.Sprintf("web%d", i)
		st := serverStates[s.step("haproxy/"+lb+"/"+srv, len(serverStates))]
		check := "L7OK"
		if st == "DOWN" {
			check = "L4CON"
		}
		fmt.Fprintf(&b, "web,%s,0,0,%d,10,,100,0,0,%s,1,30,%s,\n", srv, i, st, check)
	}
	b.WriteString("web,BACKEND,0,0,4,20,200,500,0,0,UP,3,3600,,\n")

	w.Header().Set("Content-Type", "text/csv")
	_, _ = w.Write([]byte(b.String()))
}

func (s *Server) handleClusterHealth(w http.ResponseWriter, _ *http.Request) {
	s.latency()
	status := clusterStatuses[s.step("elastic/health", len(clusterStatuses))]

	unassigned := 0
	switch status {
	case "yellow":
		unassigned = 5
	case "red":
		unassigned = 12
	}
	writeJSON(w, map[string]any{
		"cluster_name":          "demo",
		"status":                status,
		"timed_out":             false,
		"number_of_nodes":       3,
		"number_of_data_nodes":  3,
		"active_primary_shards": 10,
		"active_shards":         20 - unassigned,
		"unassigned_shards":     unassigned,
	}, s.logger)
}

func (s *Server) handleClusterInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"name":         "es-demo-1",
		"cluster_name": "demo",
		"cluster_uuid": "demo-uuid",
		"version":      map[string]string{"number": "8.15.0"},
	}, s.logger)
}

func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to write response", "error", err)
	}
}
