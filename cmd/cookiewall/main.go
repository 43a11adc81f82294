// Command cookiewall inspects cookie consent banners and tracking cookies.
//
// Usage:
//
//	cookiewall -url https://example.com -decline   # one inspection, JSON on stdout
//	cookiewall -url https://example.com -static    # HTTP only, no browser
//	cookiewall -config warden.yaml                 # serve the HTTP API
//	cookiewall -config warden.yaml -mcp            # serve MCP over stdio
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/cookiewall/warden"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to warden.yaml config file")
	pageURL := flag.String("url", "", "inspect a single URL and print the result")
	declineFlag := flag.Bool("decline", false, "with -url: decline the consent banner")
	static := flag.Bool("static", false, "with -url: inspect the raw HTTP response only")
	listen := flag.String("listen", "", "HTTP listen address (overrides config)")
	mcpStdio := flag.Bool("mcp", false, "serve MCP tools over stdio")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := warden.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = warden.LoadConfigFile(*configPath); err != nil {
			logger.Error("cookiewall: fatal", "error", err)
			os.Exit(1)
		}
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	var err error
	switch {
	case *pageURL != "":
		if *static {
			cfg.Browser.Stealth = "http"
		}
		err = runInspect(ctx, logger, cfg, *pageURL, warden.InspectOptions{Decline: *declineFlag, Static: *static})
	case *mcpStdio:
		err = runMCP(ctx, logger, cfg)
	default:
		err = runServer(ctx, logger, cfg)
	}
	if err != nil {
		logger.Error("cookiewall: fatal", "error", err)
		os.Exit(1)
	}
}

func start(ctx context.Context, logger *slog.Logger, cfg *warden.Config) (*warden.Warden, error) {
	w, err := warden.New(ctx, cfg, warden.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func runInspect(ctx context.Context, logger *slog.Logger, cfg *warden.Config, pageURL string, opts warden.InspectOptions) error {
	w, err := start(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer w.Close()

	insp, err := w.Inspect(ctx, pageURL, opts)
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(insp)
}

func runMCP(ctx context.Context, logger *slog.Logger, cfg *warden.Config) error {
	w, err := start(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer w.Close()

	srv := mcp.NewServer(&mcp.Implementation{Name: "cookiewall", Version: version}, nil)
	w.RegisterMCP(srv)
	logger.Info("cookiewall: serving MCP over stdio")
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}

func runServer(ctx context.Context, logger *slog.Logger, cfg *warden.Config) error {
	w, err := start(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer w.Close()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           w.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Inspections wait for navigation and decline settles.
		WriteTimeout: cfg.Browser.NavTimeout + 60*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("cookiewall: server starting", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("cookiewall: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("cookiewall: shutdown", "error", err)
	}
	return nil
}
