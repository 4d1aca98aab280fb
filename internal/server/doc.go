// Package server provides the HTTP API for statusboard.
//
// The API is consumed by the dashboard UI and by scripts: it lists node
// snapshots, exposes live node and module health, runs poll-now requests and
// streams updates over Server-Sent Events. Routes are mounted on a chi router;
// see [Server] for the full list.
package server
