package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bryanwahyu/petri/internal/bootstrap"
	"github.com/bryanwahyu/petri/internal/config"
	"github.com/bryanwahyu/petri/internal/infra/httpserver"
	"github.com/bryanwahyu/petri/internal/infra/logging"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// wire stores, clients and services
	app, err := bootstrap.New(ctx, cfg, os.Stderr)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()
	logger := logging.For(app.Logger, logging.ChannelSystem)

	// event hub for dashboards
	hub := httpserver.NewHub(logging.For(app.Logger, logging.ChannelEvents))
	go hub.Run(ctx)

	// follow index writes from other processes
	go func() {
		if err := app.Watch(ctx); err != nil {
			logger.Error("index watch stopped", "error", err)
		}
	}()

	// init router
	router := httpserver.NewRouter(ctx, httpserver.Deps{
		Lifecycle:      app.Lifecycle,
		Index:          app.Index,
		API:            app.API,
		Advisor:        app.Advisor,
		Hub:            hub,
		Logger:         logging.For(app.Logger, logging.ChannelHTTP),
		Checkers:       app.Checkers,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		APIKey:         cfg.Server.APIKey,
		RateCapacity:   cfg.Server.RateLimit.Capacity,
		RateRefill:     cfg.Server.RateLimit.RefillRate,
	})
	mux := chi.NewRouter()
	mux.Mount("/", router)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: /api/v1/events is a long-lived websocket
		IdleTimeout: 60 * time.Second,
	}

	// run server
	go func() {
		logger.Info("server listening", "addr", addr, "backend", cfg.Index.Backend, "advisor", cfg.Advisor.Provider)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down server...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	// stop background runs, the hub and the watcher
	cancel()
	router.Close()
}
