package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/roundtable-ai/roundtable/a2a"
	"github.com/roundtable-ai/roundtable/config"
	"github.com/roundtable-ai/roundtable/llms"
	"github.com/roundtable-ai/roundtable/observability"
	"github.com/roundtable-ai/roundtable/server"
	"github.com/roundtable-ai/roundtable/session"
	"github.com/roundtable-ai/roundtable/supervisor"
	"github.com/roundtable-ai/roundtable/team"
)

// ServeCmd starts the supervisor server.
type ServeCmd struct {
	Agents string `help:"Comma-separated agent URLs (overrides config and env)."`
	Host   string `help:"Host to bind (overrides config)."`
	Port   int    `help:"Port to listen on (overrides config)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	log := slog.Default()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Session store
	var store session.Store
	idle := time.Duration(cfg.Sessions.IdleTimeout) * time.Second
	switch {
	case cfg.Sessions.Enabled != nil && !*cfg.Sessions.Enabled:
		store = nil
	case cfg.Sessions.Store == "sqlite":
		store, err = session.NewSQLStore(cfg.Sessions.Path, idle, log)
		if err != nil {
			return err
		}
	default:
		store = session.NewMemoryStore(idle, log)
	}
	var sessions *session.Bridge
	if store != nil {
		sessions = session.NewBridge(store, idle, log)
		defer sessions.Close()
	}

	// LLM provider for selection
	var completer team.Completer
	providers := llms.NewRegistry()
	if cfg.Supervisor.LLM != "" {
		llmCfg := cfg.LLMs[cfg.Supervisor.LLM]
		provider, err := providers.CreateFromConfig(cfg.Supervisor.LLM, &llmCfg)
		if err != nil {
			return fmt.Errorf("failed to create LLM provider: %w", err)
		}
		completer = provider
		log.Info("selection LLM ready",
			"provider", cfg.Supervisor.LLM, "model", provider.Model())
	} else {
		log.Warn("no selection LLM configured, selection falls back to deterministic rules")
	}
	defer func() {
		if err := providers.Close(); err != nil {
			log.Warn("failed to close LLM providers", "error", err)
		}
	}()

	// Observability
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(promRegistry)
	tracer, err := observability.NewTracer(&cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			log.Warn("failed to shut down tracer", "error", err)
		}
	}()

	// Team
	clientCfg := &a2a.ClientConfig{
		Timeout: time.Duration(cfg.Supervisor.CallTimeout) * time.Second,
	}
	reg := team.NewAgentRegistry(clientCfg, log)
	defer func() {
		if err := reg.CloseAll(); err != nil {
			log.Warn("failed to close agent connections", "error", err)
		}
	}()

	var direct []string
	if c.Agents != "" {
		direct = strings.Split(c.Agents, ",")
	}
	urls := config.ResolveAgentURLs(direct, cfg)
	if len(urls) == 0 {
		log.Warn("no agents configured, team starts empty")
	}
	reg.RegisterConfigured(ctx, urls)
	metrics.SetTeamSize(reg.Count())

	roster := team.NewRoster(cfg.Roster)
	selector := team.NewSelector(reg, roster, completer, log)
	engine := team.NewEngine(cfg.Supervisor.Name, reg, selector, sessions, metrics, tracer, log)
	manager := team.NewManager(reg, roster, sessions, metrics, log)

	streaming := cfg.Supervisor.Streaming == nil || *cfg.Supervisor.Streaming
	handler := supervisor.NewHandler(cfg.Supervisor.Name, cfg.Supervisor.Description,
		streaming, engine, manager, log)

	srv := server.New(&cfg.Server, handler, manager, promRegistry, log)

	// Shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Info("shutting down", "signal", sig.String())
		case <-ctx.Done():
		}
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}()

	log.Info("supervisor starting",
		"name", cfg.Supervisor.Name, "agents", reg.Count(), "addr", srv.Addr())
	return srv.Start()
}
