package haproxy

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Row types reported in the svname column for aggregate rows.
const (
	Frontend = "FRONTEND"
	Backend  = "BACKEND"
)

// Row is one line of the stats CSV export.
type Row struct {
	Proxy       string `json:"proxy"`
	Server      string `json:"server"`
	Status      string `json:"status"`
	Sessions    int64  `json:"sessions"`
	MaxSessions int64  `json:"max_sessions"`
	Limit       int64  `json:"limit"`
	CheckStatus string `json:"check_status,omitempty"`
	LastChange  int64  `json:"last_change"`
	Weight      int64  `json:"weight"`
}

// IsServer reports whether the row describes a real server rather than a
// frontend or backend aggregate.
func (r Row) IsServer() bool {
	return r.Server != Frontend && r.Server != Backend
}

// State returns the first word of the status, dropping transition counters
// such as "UP 1/3".
func (r Row) State() string {
	state, _, _ := strings.Cut(strings.TrimSpace(r.Status), " ")
	return strings.ToUpper(state)
}

// Stats is the parsed stats export of one instance.
type Stats struct {
	Rows []Row `json:"rows"`
}

// Servers returns the server rows in export order.
func (s Stats) Servers() []Row {
	var out []Row
	for _, r := range s.Rows {
		if r.IsServer() {
			out = append(out, r)
		}
	}
	return out
}

var errNoHeader = errors.New("stats export has no header")

// ParseStats parses the body of a ";csv" stats request. The header line
// starts with "# " and names the columns; columns are looked up by name so
// newer HAProxy versions with extra columns parse the same.
func ParseStats(body []byte) (Stats, error) {
	body = bytes.TrimPrefix(bytes.TrimSpace(body), []byte("# "))
	if len(body) == 0 {
		return Stats{}, errNoHeader
	}

	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return Stats{}, fmt.Errorf("read stats header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"pxname", "svname", "status"} {
		if _, ok := cols[required]; !ok {
			return Stats{}, fmt.Errorf("stats header missing %q column", required)
		}
	}

	var stats Stats
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Stats{}, fmt.Errorf("read stats row: %w", err)
		}
		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(record) {
				return ""
			}
			return record[i]
		}
		number := func(name string) int64 {
			n, _ := strconv.ParseInt(field(name), 10, 64)
			return n
		}
		stats.Rows = append(stats.Rows, Row{
			Proxy:       field("pxname"),
			Server:      field("svname"),
			Status:      field("status"),
			Sessions:    number("scur"),
			MaxSessions: number("smax"),
			Limit:       number("slim"),
			CheckStatus: field("check_status"),
			LastChange:  number("lastchg"),
			Weight:      number("weight"),
		})
	}
	return stats, nil
}
