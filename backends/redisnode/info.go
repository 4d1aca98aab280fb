package redisnode

import (
	"bufio"
	"strconv"
	"strings"
)

// Info is the parsed output of the INFO command.
type Info map[string]string

// ParseInfo parses INFO output. Section headers, blank lines and lines
// without a colon are skipped.
func ParseInfo(raw string) Info {
	info := make(Info)
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		info[key] = value
	}
	return info
}

// Int returns the integer value of key, or zero.
func (i Info) Int(key string) int64 {
	v, err := strconv.ParseInt(i[key], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// Role returns "master" or "slave".
func (i Info) Role() string { return i["role"] }

// Version returns the server version.
func (i Info) Version() string { return i["redis_version"] }

// MemoryUtilization returns used_memory/maxmemory, or zero when no limit is
// set.
func (i Info) MemoryUtilization() float64 {
	limit := i.Int("maxmemory")
	if limit <= 0 {
		return 0
	}
	return float64(i.Int("used_memory")) / float64(limit)
}
