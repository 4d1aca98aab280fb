package poll

import (
	"slices"
	"strings"
	"sync"
)

type nodeID struct {
	nodeType string
	key      string
}

func idOf(nodeType, key string) nodeID {
	return nodeID{nodeType: strings.ToLower(nodeType), key: strings.ToLower(key)}
}

// Registry is the append-only set of nodes known to a polling service.
//
// Nodes are registered at start-up and looked up by (type, key) afterwards;
// lookups are case-insensitive. Iteration order is registration order.
type Registry struct {
	mu    sync.RWMutex
	nodes []Node
	index map[nodeID]Node
	types []string
}

// NewRegistry creates an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{index: make(map[nodeID]Node)}
}

// Register adds n unless a node with the same type and key is already
// present, in which case it returns false and leaves the registry unchanged.
func (r *Registry) Register(n Node) bool {
	if n == nil {
		return false
	}
	id := idOf(n.Type(), n.Key())

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[id]; exists {
		return false
	}
	r.index[id] = n
	r.nodes = append(r.nodes, n)
	// types keep the spelling of their first node
	if !slices.ContainsFunc(r.types, func(t string) bool { return strings.EqualFold(t, n.Type()) }) {
		r.types = append(r.types, n.Type())
	}
	return true
}

// Find returns the node registered under (nodeType, key), or nil.
func (r *Registry) Find(nodeType, key string) Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index[idOf(nodeType, key)]
}

// All returns every registered node.
func (r *Registry) All() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.nodes)
}

// AllOfType returns the nodes of one module.
func (r *Registry) AllOfType(nodeType string) []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Node
	for _, n := range r.nodes {
		if strings.EqualFold(n.Type(), nodeType) {
			out = append(out, n)
		}
	}
	return out
}

// Types returns the registered node types in first-registration order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.types)
}

// Len returns the number of registered nodes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Entries returns the diagnostics snapshot of every entry of every node.
func (r *Registry) Entries() []EntryInfo {
	var out []EntryInfo
	for _, n := range r.All() {
		for _, e := range n.DataPollers() {
			out = append(out, e.Info())
		}
	}
	return out
}

// Groups collects the nodes of nodeType that implement [GroupMember] into
// groups, ordered by first appearance.
func (r *Registry) Groups(nodeType string) []Group {
	var groups []Group
	pos := make(map[string]int)
	for _, n := range r.AllOfType(nodeType) {
		gm, ok := n.(GroupMember)
		if !ok || gm.GroupName() == "" {
			continue
		}
		name := gm.GroupName()
		i, seen := pos[name]
		if !seen {
			i = len(groups)
			pos[name] = i
			groups = append(groups, Group{Type: n.Type(), Name: name})
		}
		groups[i].Members = append(groups[i].Members, n)
	}
	return groups
}

// ModuleSummary is the rollup of every node of one type.
type ModuleSummary struct {
	Type   string `json:"type"`
	Health Health `json:"health"`
	Counts Counts `json:"counts"`
	Nodes  int    `json:"nodes"`
}

// ModuleStatus rolls up every node of nodeType.
func (r *Registry) ModuleStatus(nodeType string) ModuleSummary {
	nodes := r.AllOfType(nodeType)
	items := make([]Health, len(nodes))
	for i, n := range nodes {
		h := n.ComputeStatus()
		if h.Reason != "" {
			h.Reason = n.Name() + ": " + h.Reason
		}
		items[i] = h
	}

	summary := ModuleSummary{
		Type:   nodeType,
		Counts: Count(items),
		Nodes:  len(nodes),
	}
	if len(items) == 0 {
		summary.Health = Health{Status: StatusUnknown, Reason: "no nodes"}
	} else {
		summary.Health = Rollup(items)
	}
	return summary
}
