package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"yatube/internal/config"
	"yatube/internal/db"
	"yatube/internal/server"
)

var logLevel = new(slog.LevelVar)

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging (LevelInfo)")
	veryVerbose := flag.Bool("vv", false, "Enable very verbose logging (LevelDebug)")
	flag.Parse()

	setupLogging(*verbose, *veryVerbose)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("main: Invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.LogLevel != "" && !*verbose && !*veryVerbose {
		if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			slog.Warn("main: Ignoring unknown LOG_LEVEL", "value", cfg.LogLevel)
		}
	}

	dsn := cfg.DBPath
	if cfg.DBDriver == "postgres" {
		dsn = cfg.DatabaseURL
	}
	slog.Debug("main: Opening database", "driver", cfg.DBDriver)
	database, err := db.Open(cfg.DBDriver, dsn)
	if err != nil {
		slog.Error("main: Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close(database)

	srv, err := server.New(database, cfg)
	if err != nil {
		slog.Error("main: Failed to initialize server", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(os.Stdout),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("main: Listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("main: Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("main: Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("main: Graceful shutdown failed", "error", err)
	}
}

// setupLogging installs a JSON logger on stdout. The level is warn unless
// raised by -v or -vv.
func setupLogging(verbose, veryVerbose bool) {
	logLevel.Set(slog.LevelWarn)
	if veryVerbose {
		logLevel.Set(slog.LevelDebug)
	} else if verbose {
		logLevel.Set(slog.LevelInfo)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
	slog.Debug("main: Log level set", "level", logLevel.Level().String())
}
