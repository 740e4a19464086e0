package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/jordanhubbard/chitti/internal/app"
	"github.com/jordanhubbard/chitti/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

// runHealthCheck performs an HTTP health check against the given address.
// addr should be in the form ":port" or "host:port".
func runHealthCheck(addr string) error {
	resp, err := http.Get(fmt.Sprintf("http://localhost%s/healthz", addr))
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

func main() {
	// Built-in health check mode for container HEALTHCHECK.
	if len(os.Args) > 1 && os.Args[1] == "-healthcheck" {
		addr := os.Getenv("CHITTI_LISTEN_ADDR")
		if addr == "" {
			addr = ":8000"
		}
		if err := runHealthCheck(addr); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}

	if err := app.LoadEnvFile(app.EnvFile()); err != nil {
		fmt.Fprintf(os.Stderr, "env file: %v\n", err)
		os.Exit(1)
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Diagnostics go to stderr so command output on stdout stays clean.
	logger := logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stderr})

	ctx := context.Background()
	srv, err := app.NewServer(ctx, cfg, app.Options{Version: version, Logger: logger})
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup error: %v\n", err)
		os.Exit(1)
	}

	root := newRootCmd(&shell{cfg: cfg, srv: srv})
	err = root.ExecuteContext(ctx)
	if cerr := srv.Close(ctx); cerr != nil {
		logger.Warn("close error", "error", cerr.Error())
	}
	if err != nil {
		os.Exit(1)
	}
}
