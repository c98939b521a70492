package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"datamarket/config"
	"datamarket/core"
	"datamarket/crypto"
	"datamarket/native/market"
	"datamarket/observability/logging"
	"datamarket/rpc"
	"datamarket/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("DATAMARKET_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.Setup("marketd", env, logging.Options{
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	instanceID := uuid.NewString()
	logger = logger.With(slog.String("instance", instanceID))

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	node, err := core.NewNode(db, core.Config{
		OfferTimeout: cfg.OfferTimeout,
		MaxDataIDs:   cfg.MaxDataIDs,
		EventBuffer:  cfg.EventBuffer,
	})
	if err != nil {
		logger.Error("Failed to initialise node", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.SettlementHandlers {
		handlerAddr := market.TokenHandlerAddress()
		node.Handlers().Register(handlerAddr, market.NewTokenHandler(node.State()))
		logger.Info("Registered token settlement handler",
			slog.String("address", crypto.NewAddress(crypto.DXPrefix, handlerAddr[:]).String()))
	}

	rpcServer := rpc.NewServer(node, rpc.Options{
		RequestsPerMinute: cfg.RequestsPerMinute,
		Burst:             cfg.RequestBurst,
		AuthIssuer:        cfg.AuthIssuer,
		AuthAudience:      cfg.AuthAudience,
	})

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Handle("/rpc", rpcServer)

	server := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Starting JSON-RPC server",
			slog.String("address", cfg.RPCAddress),
			slog.String("network", cfg.NetworkName))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", slog.Any("error", err))
	}
}
