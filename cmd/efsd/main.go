// efsd is the electronic flight strip daemon: it ingests telemetry from the
// radar client, maintains flight state and strip placements through the
// declarative rule engine, and serves the strip displays over HTTP and
// WebSocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vatefs/efsd/internal/api"
	"github.com/vatefs/efsd/internal/config"
	"github.com/vatefs/efsd/internal/feed"
	"github.com/vatefs/efsd/internal/flight"
	"github.com/vatefs/efsd/internal/refdata"
	"github.com/vatefs/efsd/internal/roles"
	"github.com/vatefs/efsd/internal/rules"
	"github.com/vatefs/efsd/internal/strips"
	"github.com/vatefs/efsd/internal/websocket"
	"github.com/vatefs/efsd/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting efsd",
		logger.String("own_callsign", cfg.Station.OwnCallsign),
		logger.String("mode", cfg.Station.Mode),
		logger.Strings("home_airports", cfg.Station.HomeAirports),
	)

	ref, err := refdata.Open(cfg.RefData.DatabasePath, log)
	if err != nil {
		log.Error("Failed to load reference data", logger.Error(err))
		os.Exit(1)
	}

	eval := rules.NewEvaluator(cfg, ref, log)
	store := strips.NewStore(cfg.Geometry.MinGapPx, log)
	machine := flight.NewMachine(cfg, ref, eval, store, log)
	resolver := roles.NewResolver(cfg.Station.HomeAirports, log)
	dispatcher := feed.NewDispatcher(cfg, machine, resolver, eval, log)
	wsServer := websocket.NewServer(log)

	router := api.NewRouter(machine, dispatcher, wsServer, cfg, log)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Shutting down", logger.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("HTTP server failed", logger.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Shutdown did not complete cleanly", logger.Error(err))
	}
	wsServer.Close()
	log.Info("Stopped")
}
