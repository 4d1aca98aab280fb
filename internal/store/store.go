package store

import "time"

// NodeSnapshot is the stored view of one node's health.
//
// Snapshots are what the REST API lists and what SSE subscribers receive.
// They are decoupled from the poll package's live types so that readers never
// touch backend state.
type NodeSnapshot struct {
	// Type is the backend kind, e.g. "sql" or "haproxy".
	Type string `json:"type"`

	// Key identifies the node within its type.
	Key string `json:"key"`

	// Name is the display name.
	Name string `json:"name"`

	// Group is the cluster or group the node belongs to, if any.
	Group string `json:"group,omitempty"`

	// Status is the node's rolled-up status name (e.g. "good", "critical").
	Status string `json:"status"`

	// Reason explains a non-good status.
	Reason string `json:"reason,omitempty"`

	// Labels carries key-value metadata for grouping and filtering.
	Labels map[string]string `json:"labels,omitempty"`

	// UpdatedAt is when the snapshot was taken.
	UpdatedAt time.Time `json:"updated_at"`
}

// ID returns the store key "type/key".
func (s NodeSnapshot) ID() string {
	return s.Type + "/" + s.Key
}

// Store defines the interface for storing and subscribing to node snapshots.
//
// Store implementations must be safe for concurrent access. The pub/sub
// mechanism pushes snapshots to connected clients (e.g. via Server-Sent Events).
type Store interface {
	// Update stores a snapshot, notifies all subscribers and returns the
	// snapshot it replaced, if any.
	Update(snap NodeSnapshot) (prev NodeSnapshot, existed bool)

	// Get returns the snapshot stored for (nodeType, key).
	Get(nodeType, key string) (NodeSnapshot, bool)

	// GetAll returns every stored snapshot ordered by type then key.
	GetAll() []NodeSnapshot

	// Subscribe returns a channel that receives snapshot updates.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan NodeSnapshot

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan NodeSnapshot)
}
