// Package main runs the development backend.
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

	"github.com/mylxsw/asteria/log"
	"github.com/supremeagent/promptrunner/internal/config"
	"github.com/supremeagent/promptrunner/internal/httpapi"
	"github.com/supremeagent/promptrunner/internal/models"
	"github.com/supremeagent/promptrunner/pkg/backend"
	"github.com/supremeagent/promptrunner/pkg/executor"
	"github.com/supremeagent/promptrunner/pkg/store"
)

func main() {
	configPath := flag.String("config", "", "Server config file (YAML)")
	addr := flag.String("addr", "", "Server address (overrides config)")
	flag.Parse()

	cfg, err := config.LoadServerConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	handler, service, err := buildHandler(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	router := httpapi.NewRouter(handler, httpapi.RouterOptions{RequireAuth: cfg.Auth.Require})

	server := &http.Server{Addr: cfg.Addr, Handler: router}

	go func() {
		log.Infof("Starting server on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	service.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
	log.Info("Server stopped")
}

func buildHandler(cfg *models.ServerConfig) (*httpapi.Handler, *backend.Service, error) {
	stepDelay, err := config.ParseDuration(cfg.Executor.StepDelay)
	if err != nil {
		return nil, nil, err
	}
	expire, err := config.ParseDuration(cfg.Store.ExpireAfterDone)
	if err != nil {
		return nil, nil, err
	}
	ping, err := config.ParseDuration(cfg.Stream.PingInterval)
	if err != nil {
		return nil, nil, err
	}
	accessTTL, err := config.ParseDuration(cfg.Auth.AccessTTL)
	if err != nil {
		return nil, nil, err
	}
	refreshTTL, err := config.ParseDuration(cfg.Auth.RefreshTTL)
	if err != nil {
		return nil, nil, err
	}

	tools := make([]executor.Tool, 0, len(cfg.Executor.Tools))
	for _, t := range cfg.Executor.Tools {
		tools = append(tools, executor.Tool{Name: t.Name, Keywords: t.Keywords})
	}
	registry := executor.NewRegistry()
	registry.Register(executor.Scripted, executor.NewScriptedFactory(executor.ScriptOptions{Tools: tools, StepDelay: stepDelay}))

	service := backend.NewWithOptions(backend.Options{
		Registry:   registry,
		EventStore: store.NewMemoryEventStoreWithExpiration(expire),
	})

	auth, err := httpapi.NewAuthenticator(httpapi.AuthOptions{
		Secret:     cfg.Auth.Secret,
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
		Users:      cfg.Auth.Users,
	})
	if err != nil {
		return nil, nil, err
	}

	handler := httpapi.NewHandler(httpapi.HandlerOptions{
		Service:      service,
		Auth:         auth,
		PingInterval: ping,
	})
	return handler, service, nil
}
