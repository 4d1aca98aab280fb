// Package fetch provides the pooled HTTP client shared by the HTTP-based
// backends (haproxy, elastic, httpcheck).
package fetch
