// Command example runs statusboard against in-process fake backends.
//
//	go run ./example
//
// Then browse http://localhost:8080/api/nodes or
// http://localhost:8080/api/groups/haproxy.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/statusboard"
	"github.com/jpalmerr/statusboard/backends/elastic"
	"github.com/jpalmerr/statusboard/backends/haproxy"
	"github.com/jpalmerr/statusboard/backends/httpcheck"
	"github.com/jpalmerr/statusboard/example/mock"
	"github.com/jpalmerr/statusboard/poll"
)

const mockAddr = "localhost:9999"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	go func() {
		if err := http.ListenAndServe(mockAddr, mock.New(logger).Handler()); err != nil {
			logger.Error("mock server error", "error", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	base := "http://" + mockAddr

	// 2 services x 2 envs = 4 checks from one declaration
	checks, err := httpcheck.NewGrid("API", base+"/health?svc={{.svc}}&env={{.env}}",
		map[string][]string{
			"svc": {"users", "orders"},
			"env": {"prod", "staging"},
		},
		httpcheck.WithGroup("api"),
		httpcheck.WithExtractor(httpcheck.JSONFieldExtractor("status")),
		httpcheck.WithInterval(5*time.Second),
	)
	if err != nil {
		logger.Error("failed to create check grid", "error", err)
		os.Exit(1)
	}

	nodes := make([]poll.Node, 0, len(checks)+3)
	for _, c := range checks {
		nodes = append(nodes, c)
	}

	for _, key := range []string{"lb1", "lb2"} {
		lb, err := haproxy.New("edge", key, base+"/haproxy/"+key+"/stats",
			haproxy.WithInterval(5*time.Second))
		if err != nil {
			logger.Error("failed to create load balancer", "key", key, "error", err)
			os.Exit(1)
		}
		nodes = append(nodes, lb)
	}

	es, err := elastic.New("demo", base+"/es", elastic.WithName("Demo Cluster"))
	if err != nil {
		logger.Error("failed to create elastic node", "error", err)
		os.Exit(1)
	}
	nodes = append(nodes, es)

	svc, err := statusboard.New(
		statusboard.WithNodes(nodes...),
		statusboard.WithTitle("Statusboard Demo"),
		statusboard.WithPort(8080),
		statusboard.WithTickInterval(time.Second),
		statusboard.WithLogger(logger),
		statusboard.WithStatusCallback(func(r statusboard.StatusResult) {
			if r.Changed() {
				fmt.Printf("  %-8s %-24s %s -> %s  %s\n", r.Type, r.Name, r.Previous, r.Status, r.Reason)
			}
		}),
	)
	if err != nil {
		logger.Error("failed to create statusboard", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  Statusboard Demo")
	fmt.Println()
	fmt.Println("  API:      http://localhost:8080/api/nodes")
	fmt.Println("  Groups:   http://localhost:8080/api/groups/haproxy")
	fmt.Println("  Events:   http://localhost:8080/api/sse")
	fmt.Println("  Metrics:  http://localhost:8080/metrics")
	fmt.Println()
	fmt.Println("  Nodes: 4 HTTP checks (grid), 2 HAProxy, 1 Elasticsearch")
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		logger.Error("statusboard error", "error", err)
		os.Exit(1)
	}
}
