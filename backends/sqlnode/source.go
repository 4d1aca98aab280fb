package sqlnode

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// replicationMinVersion is the first server version exposing replay_lag in
// pg_stat_replication.
const replicationMinVersion = 100000

// Version identifies the server build.
type Version struct {
	Num    int    `json:"num"`
	String string `json:"string"`
}

// Connections counts client backends against the configured limit.
type Connections struct {
	Active int `json:"active"`
	Idle   int `json:"idle"`
	Total  int `json:"total"`
	Max    int `json:"max"`
}

// Utilization returns Total/Max, or zero when the limit is unknown.
func (c Connections) Utilization() float64 {
	if c.Max <= 0 {
		return 0
	}
	return float64(c.Total) / float64(c.Max)
}

// Database is one non-template database and its on-disk size.
type Database struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
}

// Replica is one standby streaming from this server.
type Replica struct {
	Name  string        `json:"name"`
	Addr  string        `json:"addr"`
	State string        `json:"state"`
	Lag   time.Duration `json:"lag"`
}

// Source runs the monitoring queries against one server.
type Source interface {
	Version(ctx context.Context) (Version, error)
	Connections(ctx context.Context) (Connections, error)
	Databases(ctx context.Context) ([]Database, error)
	Replication(ctx context.Context) ([]Replica, error)
	Close()
}

const (
	versionQuery = `SELECT current_setting('server_version_num')::int, version()`

	connectionsQuery = `SELECT
		count(*) FILTER (WHERE state = 'active'),
		count(*) FILTER (WHERE state = 'idle'),
		count(*),
		current_setting('max_connections')::int
	FROM pg_stat_activity
	WHERE backend_type = 'client backend'`

	databasesQuery = `SELECT datname, pg_database_size(datname)
	FROM pg_database
	WHERE NOT datistemplate
	ORDER BY datname`

	replicationQuery = `SELECT
		application_name,
		COALESCE(client_addr::text, ''),
		COALESCE(state, ''),
		COALESCE(EXTRACT(EPOCH FROM replay_lag), 0)::float8
	FROM pg_stat_replication
	ORDER BY application_name`
)

// PoolSource is a [Source] backed by a pgx connection pool.
type PoolSource struct {
	pool *pgxpool.Pool
}

// NewPoolSource parses dsn and creates a pool. Connections are opened lazily,
// so an unreachable server surfaces as fetch errors rather than here.
func NewPoolSource(ctx context.Context, dsn string, maxConns int32) (*PoolSource, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlnode: failed to parse connection string: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = make(map[string]string)
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "statusboard"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("sqlnode: failed to initialize pool: %w", err)
	}
	return &PoolSource{pool: pool}, nil
}

func (s *PoolSource) Version(ctx context.Context) (Version, error) {
	var v Version
	if err := s.pool.QueryRow(ctx, versionQuery).Scan(&v.Num, &v.String); err != nil {
		return Version{}, fmt.Errorf("query version: %w", err)
	}
	return v, nil
}

func (s *PoolSource) Connections(ctx context.Context) (Connections, error) {
	var c Connections
	if err := s.pool.QueryRow(ctx, connectionsQuery).Scan(&c.Active, &c.Idle, &c.Total, &c.Max); err != nil {
		return Connections{}, fmt.Errorf("query connections: %w", err)
	}
	return c, nil
}

func (s *PoolSource) Databases(ctx context.Context) ([]Database, error) {
	rows, err := s.pool.Query(ctx, databasesQuery)
	if err != nil {
		return nil, fmt.Errorf("query databases: %w", err)
	}
	dbs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Database])
	if err != nil {
		return nil, fmt.Errorf("scan databases: %w", err)
	}
	return dbs, nil
}

func (s *PoolSource) Replication(ctx context.Context) ([]Replica, error) {
	rows, err := s.pool.Query(ctx, replicationQuery)
	if err != nil {
		return nil, fmt.Errorf("query replication: %w", err)
	}
	replicas, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Replica, error) {
		var (
			r       Replica
			seconds float64
		)
		if err := row.Scan(&r.Name, &r.Addr, &r.State, &seconds); err != nil {
			return Replica{}, err
		}
		r.Lag = time.Duration(seconds * float64(time.Second))
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan replication: %w", err)
	}
	return replicas, nil
}

// Close releases the pool.
func (s *PoolSource) Close() {
	s.pool.Close()
}
