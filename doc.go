// Package statusboard is an embeddable infrastructure status service.
//
// Statusboard polls heterogeneous backends (PostgreSQL, Redis, HAProxy,
// Elasticsearch, plain HTTP health endpoints) on their own cadence, caches
// what it fetched, and rolls per-metric health up into node, group and
// module status that is cheap to read at any time.
//
// # Quick Start
//
// Build nodes with the backend packages and hand them to [New]:
//
//	db, _ := sqlnode.Connect(ctx, "primary", "postgres://monitor@db1/postgres")
//	api, _ := httpcheck.New("api", "https://api.example.com/health")
//
//	svc, _ := statusboard.New(statusboard.WithNodes(db, api))
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	svc.Start(ctx) // blocks until ctx is cancelled
//
// # Configuration
//
// Statusboard uses functional options:
//
//	svc, err := statusboard.New(
//	    statusboard.WithNodes(nodes...),
//	    statusboard.WithTickInterval(time.Second),
//	    statusboard.WithPort(9090),
//	    statusboard.WithMaxConcurrency(20),
//	    statusboard.WithNATS("nats://localhost:4222", ""),
//	)
//
// The config package builds the same service from a YAML file.
//
// # Architecture
//
//   - poll: cache entries, node base, status rollups, registry and scheduler
//   - backends/...: one package per backend kind
//   - internal/store: in-memory snapshot store with pub/sub for live updates
//   - internal/server: HTTP API, poll-now endpoints, Server-Sent Events, /metrics
//   - internal/notify: NATS publisher for status transitions
//   - internal/fetch: pooled HTTP client shared by HTTP-based backends
//
// The internal packages are not part of the public API and may change
// without notice.
package statusboard
