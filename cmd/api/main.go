// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-orchestrator/internal/agent"
	"github.com/capitalize-ai/chat-orchestrator/internal/cache"
	"github.com/capitalize-ai/chat-orchestrator/internal/config"
	"github.com/capitalize-ai/chat-orchestrator/internal/contextmgr"
	"github.com/capitalize-ai/chat-orchestrator/internal/conversation"
	"github.com/capitalize-ai/chat-orchestrator/internal/function"
	"github.com/capitalize-ai/chat-orchestrator/internal/handler"
	"github.com/capitalize-ai/chat-orchestrator/internal/llm"
	"github.com/capitalize-ai/chat-orchestrator/internal/model"
	natsclient "github.com/capitalize-ai/chat-orchestrator/internal/nats"
	"github.com/capitalize-ai/chat-orchestrator/internal/service"
	"github.com/capitalize-ai/chat-orchestrator/internal/tokenizer"
	"github.com/capitalize-ai/chat-orchestrator/pkg/logger"
	"github.com/capitalize-ai/chat-orchestrator/pkg/tracing"
)

const serviceName = "chat-orchestrator"

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	log.Info("starting API server", zap.String("provider", cfg.LLMProvider))

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, serviceName, cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	var (
		natsClient    *natsclient.Client
		streamManager *natsclient.StreamManager
		transcripts   service.TranscriptStore
	)
	if cfg.NATSURL != "" {
		var err error
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			Name:     serviceName,
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return err
		}
		defer natsClient.Close()

		streamManager = natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			return fmt.Errorf("failed to ensure stream: %w", err)
		}
		transcripts = streamManager
	}

	tok := tokenizer.NewCharEstimator()
	registry := model.NewMethodRegistry()

	backend, err := llm.NewBackend(llm.Provider(cfg.LLMProvider), llm.Options{
		APIKey:        cfg.APIKey(),
		Model:         cfg.LLMModel,
		BaseURL:       cfg.LLMBaseURL,
		ContextWindow: cfg.ContextWindow,
		AgentName:     cfg.AgentName,
		Tokenizer:     tok,
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("failed to create backend: %w", err)
	}

	a, err := agent.New(agent.Options{
		Name:          cfg.AgentName,
		Backend:       backend,
		SystemPrompt:  cfg.SystemPrompt,
		TokenSettings: cfg.TokenSettings(),
		Tokenizer:     tok,
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	generators, err := buildGenerators(cfg, tok, registry)
	if err != nil {
		return err
	}

	managers, err := buildContextManagers(cfg, a, log)
	if err != nil {
		return err
	}

	functionCache, err := buildCache(ctx, cfg, natsClient, registry)
	if err != nil {
		return err
	}

	observers := conversation.Observers{conversation.NewLogObserver(log), service.MetricsObserver{}}
	if streamManager != nil {
		observers = append(observers, streamManager)
	}

	conversationSvc, err := service.NewConversationService(service.Blueprint{
		Agent:             a,
		ContextManagers:   managers,
		Generators:        generators,
		Cache:             functionCache,
		MaxAutoCallRounds: cfg.MaxAutoCallRounds,
		OpeningPrompt:     cfg.OpeningPrompt,
	}, transcripts, observers, log)
	if err != nil {
		return err
	}
	defer conversationSvc.Close()
	messageSvc := service.NewMessageService(conversationSvc, log)

	router := handler.NewRouter(handler.RouterConfig{
		Health:            handler.NewHealthHandler(natsClient, backend.Name()),
		Conversations:     handler.NewConversationHandler(conversationSvc, log),
		Messages:          handler.NewMessageHandler(messageSvc, log),
		JWTSecret:         cfg.JWTSecret,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		AllowedOrigins:    cfg.AllowedOrigins,
		Logger:            log,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

func buildGenerators(cfg *config.Config, tok model.Tokenizer, registry *model.MethodRegistry) ([]function.Generator, error) {
	var (
		factory *function.Factory
		err     error
	)
	if cfg.FunctionParamsFile != "" {
		factory, err = function.LoadFactoryFile(cfg.FunctionParamsFile, tok)
	} else {
		factory, err = function.NewFactory(defaultParams, nil, tok)
	}
	if err != nil {
		return nil, err
	}

	items, err := builtinFunctions(factory, registry)
	if err != nil {
		return nil, err
	}

	return []function.Generator{
		function.NewStaticGenerator(items,
			function.WithName("builtin"),
			function.WithKeywordRanking(function.KeywordRanker{SearchDepth: function.DefaultSearchDepth}),
		),
	}, nil
}

func buildContextManagers(cfg *config.Config, a *agent.Agent, log *logger.Logger) ([]contextmgr.Manager, error) {
	if cfg.ContextItemsFile == "" {
		return nil, nil
	}
	items, err := contextmgr.LoadItemsFile(cfg.ContextItemsFile)
	if err != nil {
		return nil, err
	}
	m, err := contextmgr.NewAgentManager("context", items, a, log)
	if err != nil {
		return nil, err
	}
	return []contextmgr.Manager{m}, nil
}

func buildCache(ctx context.Context, cfg *config.Config, nc *natsclient.Client, registry *model.MethodRegistry) (conversation.FunctionCache, error) {
	switch cfg.FunctionCache {
	case config.CacheMemory:
		return cache.NewMapCache(), nil
	case config.CacheLRU:
		return cache.NewLRUCache(cfg.FunctionCacheSize, cfg.FunctionCacheTTL)
	case config.CacheNATS:
		return natsclient.NewKVCache(ctx, nc, cfg.FunctionCacheBucket, cfg.FunctionCacheTTL, registry)
	}
	return nil, nil
}
