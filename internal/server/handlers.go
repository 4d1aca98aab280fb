package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jpalmerr/statusboard/poll"
)

// maxPollBody bounds poll-now request bodies.
const maxPollBody = 64 << 10

func (s *Server) handleNodes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.GetAll(), s.logger)
}

// nodeView is the live view of one node.
type nodeView struct {
	Type    string           `json:"type"`
	Key     string           `json:"key"`
	Name    string           `json:"name"`
	Group   string           `json:"group,omitempty"`
	Health  poll.Health      `json:"health"`
	Entries []poll.EntryInfo `json:"entries,omitempty"`
}

func viewOf(n poll.Node, withEntries bool) nodeView {
	v := nodeView{
		Type:   n.Type(),
		Key:    n.Key(),
		Name:   n.Name(),
		Health: n.ComputeStatus(),
	}
	if gm, ok := n.(poll.GroupMember); ok {
		v.Group = gm.GroupName()
	}
	if withEntries {
		for _, e := range n.DataPollers() {
			v.Entries = append(v.Entries, e.Info())
		}
	}
	return v
}

type moduleView struct {
	poll.ModuleSummary
	Members []nodeView `json:"members"`
}

func (s *Server) handleModule(w http.ResponseWriter, r *http.Request) {
	nodeType := chi.URLParam(r, "type")
	nodes := s.registry.AllOfType(nodeType)
	if len(nodes) == 0 {
		s.writeError(w, r, http.StatusNotFound, "unknown node type: "+nodeType)
		return
	}

	view := moduleView{ModuleSummary: s.registry.ModuleStatus(nodeType)}
	for _, n := range nodes {
		view.Members = append(view.Members, viewOf(n, false))
	}
	writeJSON(w, http.StatusOK, view, s.logger)
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	nodeType, key := chi.URLParam(r, "type"), chi.URLParam(r, "key")
	n := s.registry.Find(nodeType, key)
	if n == nil {
		s.writeError(w, r, http.StatusNotFound, poll.ErrNotFound.Error()+": "+nodeType+"/"+key)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(n, true), s.logger)
}

type groupView struct {
	Name    string      `json:"name"`
	Health  poll.Health `json:"health"`
	Members []string    `json:"members"`
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	groups := s.registry.Groups(chi.URLParam(r, "type"))
	out := make([]groupView, 0, len(groups))
	for _, g := range groups {
		gv := groupView{Name: g.Name, Health: g.ComputeStatus()}
		for _, m := range g.Members {
			gv.Members = append(gv.Members, m.Key())
		}
		out = append(out, gv)
	}
	writeJSON(w, http.StatusOK, out, s.logger)
}

type cachesView struct {
	Scheduler schedulerView    `json:"scheduler"`
	Totals    poll.Totals      `json:"totals"`
	Entries   []poll.EntryInfo `json:"entries"`
}

type schedulerView struct {
	State    string    `json:"state"`
	LastScan time.Time `json:"last_scan"`
}

func (s *Server) handleCaches(w http.ResponseWriter, _ *http.Request) {
	view := cachesView{
		Totals:  poll.CacheTotals(),
		Entries: s.registry.Entries(),
	}
	if s.poller != nil {
		view.Scheduler = schedulerView{
			State:    s.poller.State().String(),
			LastScan: s.poller.LastScan(),
		}
	}
	if view.Entries == nil {
		view.Entries = []poll.EntryInfo{}
	}
	writeJSON(w, http.StatusOK, view, s.logger)
}

// pollRequest is the body of a poll-now request. An empty key list polls
// every node of the type.
type pollRequest struct {
	Keys          []string `json:"keys"`
	CorrelationID string   `json:"correlation_id"`
}

type pollResponse struct {
	CorrelationID string             `json:"correlation_id"`
	Results       []poll.PollOutcome `json:"results"`
}

func (s *Server) handlePoll(wait bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.poller == nil {
			s.writeError(w, r, http.StatusServiceUnavailable, "poller not running")
			return
		}
		if s.limiter != nil && !s.limiter.Allow() {
			s.writeError(w, r, http.StatusTooManyRequests, "poll rate limit exceeded")
			return
		}

		var body pollRequest
		dec := json.NewDecoder(io.LimitReader(r.Body, maxPollBody))
		if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		nodeType := chi.URLParam(r, "type")
		keys := body.Keys
		if len(keys) == 0 {
			for _, n := range s.registry.AllOfType(nodeType) {
				keys = append(keys, n.Key())
			}
			if len(keys) == 0 {
				s.writeError(w, r, http.StatusNotFound, "unknown node type: "+nodeType)
				return
			}
		}

		correlationID := body.CorrelationID
		if correlationID == "" {
			correlationID = requestIDFrom(r.Context())
		}

		results := s.poller.Poll(r.Context(), poll.PollRequest{
			Type:          nodeType,
			Keys:          keys,
			CorrelationID: correlationID,
			Wait:          wait,
			Timeout:       s.pollTimeout,
		})

		code := http.StatusOK
		if !wait {
			code = http.StatusAccepted
		}
		writeJSON(w, code, pollResponse{CorrelationID: correlationID, Results: results}, s.logger)
	}
}
