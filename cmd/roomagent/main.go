package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/svaddadi/roomagent/internal/app"
	"github.com/svaddadi/roomagent/internal/config"
	"github.com/svaddadi/roomagent/internal/policy"
	"github.com/svaddadi/roomagent/internal/room"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("config error: %v", err)
		return 1
	}

	ctx := context.Background()
	built, err := app.Build(ctx, cfg)
	if err != nil {
		log.Printf("build error: %v", err)
		return 1
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			log.Printf("cleanup: %v", err)
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: built.API.Router(),
	}

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	built.Sessions.StartJanitor(runCtx, 5*time.Second)

	go func() {
		log.Printf("ops server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("listen error: %v", err)
		}
	}()

	agentDone := make(chan error, 1)
	go func() {
		agentDone <- built.Orchestrator.Run(runCtx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigCh:
		log.Printf("shutdown signal received: %v", sig)
		runCancel()
		select {
		case <-agentDone:
		case <-time.After(cfg.ShutdownTimeout):
			log.Printf("session did not stop within %s", cfg.ShutdownTimeout)
		}
	case err := <-agentDone:
		runCancel()
		var connectErr *room.ConnectError
		switch {
		case err == nil:
			log.Printf("session ended")
		case errors.As(err, &connectErr):
			msg, _ := policy.RedactSecrets(err.Error())
			log.Printf("fatal: %s", msg)
			exitCode = 1
		default:
			msg, _ := policy.RedactSecrets(err.Error())
			log.Printf("session error: %s", msg)
			exitCode = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
	return exitCode
}
