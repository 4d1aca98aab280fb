// Standalone fake backends for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/statusboard serve -c example/config.yaml
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jpalmerr/statusboard/example/mock"
)

func main() {
	fmt.Println("Fake backends starting on :9999")
	fmt.Println("  /health?svc=&env=     ok -> degraded -> down")
	fmt.Println("  /haproxy/{lb}/stats   web1..web3 UP/DOWN/MAINT")
	fmt.Println("  /es                   green -> yellow -> red")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := http.ListenAndServe(":9999", mock.New(logger).Handler()); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
