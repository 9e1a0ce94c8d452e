// Command orquestrad runs the agent orchestration daemon: an intent router,
// three LLM-backed agents behind a circuit breaker, session history in a
// key-value store, and the HTTP gateway in front of all of it.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/orquestra-labs/orquestra/internal/config"
	"github.com/orquestra-labs/orquestra/internal/logger"
	"github.com/orquestra-labs/orquestra/internal/metrics"
	"github.com/orquestra-labs/orquestra/pkg/agents"
	"github.com/orquestra-labs/orquestra/pkg/breaker"
	"github.com/orquestra-labs/orquestra/pkg/classifier"
	"github.com/orquestra-labs/orquestra/pkg/gateway"
	"github.com/orquestra-labs/orquestra/pkg/history"
	"github.com/orquestra-labs/orquestra/pkg/llm"
	"github.com/orquestra-labs/orquestra/pkg/orchestrator"
	"github.com/orquestra-labs/orquestra/pkg/registry"
	"github.com/orquestra-labs/orquestra/pkg/router"
	"github.com/orquestra-labs/orquestra/pkg/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file (JSON)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, using environment variables")
	}

	cfg, err := config.NewLoader(*configPath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	appLogger, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: true,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Close()
	log := appLogger.GetZerolog()

	log.Info().Str("backend", cfg.Store.Backend).Int("port", cfg.Gateway.Port).Msg("Starting orquestrad")

	m := metrics.New()

	kv, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer kv.Close()

	janitor := store.NewJanitor(kv, time.Duration(cfg.Store.SweepSeconds)*time.Second, log)
	janitor.Start()
	defer janitor.Stop()

	apiKey := providerKey(cfg.Classifier.Provider)
	if apiKey == "" {
		log.Warn().Str("provider", cfg.Classifier.Provider).Msg("No API credential configured, classifier calls will fail")
	}

	classifierProvider, err := llm.NewProvider(cfg.Classifier.Provider, apiKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create classifier provider")
	}
	agentProvider, err := llm.NewProvider(cfg.Agents.Provider, providerKey(cfg.Agents.Provider))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create agent provider")
	}

	table := router.DefaultTable()
	if cfg.SynonymsFile != "" {
		loaded, err := router.LoadTable(cfg.SynonymsFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.SynonymsFile).Msg("Failed to load synonym table")
		}
		table = loaded
	}
	resolver := router.NewResolver(table, kv, log, m)

	if cfg.SynonymsFile != "" {
		watcher, err := router.NewTableWatcher(cfg.SynonymsFile, resolver, log)
		if err != nil {
			log.Warn().Err(err).Msg("Synonym table hot reload disabled")
		} else {
			defer watcher.Stop()
		}
	}

	cls := classifier.New(classifierProvider, resolver.CanonicalNames(), classifier.Config{
		Model:       cfg.Classifier.Model,
		Temperature: cfg.Classifier.Temperature,
		Timeout:     time.Duration(cfg.Classifier.TimeoutSeconds) * time.Second,
	})

	rtr := router.New(cls, resolver, router.RetryConfig{
		MaxAttempts: cfg.Classifier.MaxAttempts,
		BackoffBase: time.Duration(cfg.Classifier.BackoffBaseMs) * time.Millisecond,
		BackoffMax:  time.Duration(cfg.Classifier.BackoffMaxMs) * time.Millisecond,
	}, log, m)

	reg, err := registry.New(agents.All(agentProvider, agents.Config{
		Model:       cfg.Agents.Model,
		Temperature: cfg.Agents.Temperature,
		MaxAttempts: cfg.Agents.MaxAttempts,
		Timeout:     time.Duration(cfg.Agents.TimeoutSeconds) * time.Second,
	})...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build agent registry")
	}

	brk := breaker.New(kv, breaker.Config{
		MaxFailures: cfg.Breaker.MaxFailures,
		OpenTTL:     time.Duration(cfg.Breaker.OpenTTLSeconds) * time.Second,
	}, log, m)

	hist := history.New(kv, history.Config{
		MaxTurns:   cfg.History.MaxTurns,
		SessionTTL: time.Duration(cfg.History.SessionTTLSeconds) * time.Second,
	}, log)

	orch := orchestrator.New(rtr, reg, brk, hist, log, m)

	srv, err := gateway.NewServer(gateway.Config{
		Host:            cfg.Gateway.Host,
		Port:            cfg.Gateway.Port,
		APIKey:          cfg.Gateway.APIKey,
		Router:          rtr,
		Registry:        reg,
		Breaker:         brk,
		Orchestrator:    orch,
		History:         hist,
		Store:           kv,
		ClassifierReady: apiKey != "",
		Metrics:         m,
		Logger:          log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gateway server")
	}

	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start gateway server")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("Shutdown signal received")
	if err := srv.Stop(); err != nil {
		log.Error().Err(err).Msg("Gateway shutdown failed")
	}
	log.Info().Msg("orquestrad stopped")
}

// openStore selects the key-value backend from configuration.
func openStore(cfg *config.Config) (store.KeyValue, error) {
	switch cfg.Store.Backend {
	case "redis":
		return store.NewRedisFromURL(cfg.Store.RedisURL)
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.Store.Backend)
	}
}

// providerKey reads the credential for an LLM provider from the environment.
func providerKey(provider string) string {
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	default:
		return ""
	}
}
