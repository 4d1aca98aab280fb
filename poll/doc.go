// Package poll is the polling core of statusboard: cached metric entries,
// the nodes that own them, the registry they live in and the scheduler that
// keeps them fresh.
//
// The main components are:
//
//   - [Cache]: one metric of one node, with single-flight refresh and staleness
//   - [Base]: shared node bookkeeping, embedded by every backend
//   - [Registry]: the set of known nodes, indexed by (type, key)
//   - [Scheduler]: periodic and on-demand refresh under a concurrency budget
//   - [Status] and [Health]: the ordered health states and their rollup rules
//
// # Declaring a node
//
// A backend embeds [*Base] and declares its entries with [Cached]:
//
//	type Node struct {
//	    *poll.Base
//	    version *poll.Cache[int]
//	}
//
//	func New(key string, db *sql.DB) *Node {
//	    n := &Node{Base: poll.NewBase("sql", key, "")}
//	    n.version = poll.Cached(n.Base, "version", fetchVersion(db),
//	        poll.WithInterval(time.Minute))
//	    return n
//	}
//
// Readers never trigger fetches; they read the last good value through
// [Cache.GetSafe] and derive status from it.
package poll
