package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"depot/internal/service"
	"depot/internal/sigv4"
	"depot/internal/storage"
)

func Run(ctx context.Context) error {
	fsRoot := flag.String("fs-root", ".", "directory to store bucket and object data")
	host := flag.String("host", "localhost", "address to bind the HTTP listener to")
	port := flag.String("port", "8014", "HTTP listen port")
	accessKey := flag.String("access-key", "", "access key ID; if empty, requests are not authenticated; required alongside --secret-key")
	secretKey := flag.String("secret-key", "", "secret access key; required alongside --access-key")
	region := flag.String("region", "us-east-1", "signing region advertised by GetBucketLocation")
	baseDomain := flag.String("base-domain", "", "enable virtual-hosted-style addressing for hosts ending in this suffix")

	flag.Parse()

	slog.SetDefault(slog.New(newLogHandler()))

	absRoot, err := filepath.Abs(*fsRoot)
	if err != nil {
		return fmt.Errorf("failed to resolve fs-root: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return fmt.Errorf("failed to create fs-root: %w", err)
	}

	engine, err := storage.NewFilesystemBackend(ctx, absRoot)
	if err != nil {
		return fmt.Errorf("failed to open storage backend: %w", err)
	}
	defer engine.Close()

	opts := []service.ConfigOption{
		service.WithStorageEngine(engine),
		service.WithRegion(*region),
		service.WithBaseDomain(*baseDomain),
	}
	if *accessKey == "" && *secretKey != "" {
		return fmt.Errorf("--access-key is required when --secret-key is set")
	}
	if *accessKey != "" {
		if *secretKey == "" {
			return fmt.Errorf("--secret-key is required when --access-key is set")
		}
		opts = append(opts, service.WithAuthEngine(sigv4.NewSigV4Engine(sigv4.Credential{
			AccessKeyID:     *accessKey,
			SecretAccessKey: *secretKey,
		}, *region)))
	}

	cfg := service.NewConfig(opts...)
	srv, err := service.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create depot server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              *host + ":" + *port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		return httpServer.Shutdown(context.Background())
	})
	eg.Go(func() error {
		slog.Info("starting depot HTTP server", "addr", httpServer.Addr, "fs-root", absRoot)
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	return eg.Wait()
}

// newLogHandler builds a charmbracelet/log handler whose level is driven
// by DEPOT_LOG_LEVEL (spec.md §6's RUST_LOG analogue), and installs it as
// the slog default so internal/service's structured logging goes through
// the same sink as the teacher's cmd/silo/main.go sets up.
func newLogHandler() *log.Logger {
	level := log.InfoLevel
	switch os.Getenv("DEPOT_LOG_LEVEL") {
	case "debug":
		level = log.DebugLevel
	case "warn":
		level = log.WarnLevel
	case "error":
		level = log.ErrorLevel
	}

	return log.NewWithOptions(os.Stdout, log.Options{
		Level:           level,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    true,
	})
}

func main() {
	if err := Run(context.Background()); err != nil {
		slog.Error("depot exited with error", "error", err)
		os.Exit(1)
	}
}
