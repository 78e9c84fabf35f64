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

	"github.com/ekaya-inc/intentgate/migrations"
	"github.com/ekaya-inc/intentgate/pkg/auth"
	"github.com/ekaya-inc/intentgate/pkg/catalog"
	"github.com/ekaya-inc/intentgate/pkg/config"
	"github.com/ekaya-inc/intentgate/pkg/cube"
	"github.com/ekaya-inc/intentgate/pkg/database"
	"github.com/ekaya-inc/intentgate/pkg/handlers"
	"github.com/ekaya-inc/intentgate/pkg/llm"
	"github.com/ekaya-inc/intentgate/pkg/logging"
	"github.com/ekaya-inc/intentgate/pkg/mcp"
	"github.com/ekaya-inc/intentgate/pkg/mcp/tools"
	"github.com/ekaya-inc/intentgate/pkg/middleware"
	"github.com/ekaya-inc/intentgate/pkg/services"
	"github.com/ekaya-inc/intentgate/pkg/validator"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("catalog_source", cfg.Catalog.Source),
		zap.Bool("llm_available", cfg.LLM.IsAvailable()),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.Bool("engine_available", cfg.Engine.IsAvailable()),
		zap.String("engine_url", logging.SanitizeURL(cfg.Engine.BaseURL)),
		zap.Bool("mcp_enabled", cfg.MCP.Enabled),
		zap.Bool("auth_enabled", cfg.Auth.Enabled()))

	source, closeSource, err := catalogSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	holder, err := catalog.NewHolder(ctx, source, logger)
	if err != nil {
		return fmt.Errorf("initial catalog load: %w", err)
	}
	go holder.Watch(ctx, cfg.Catalog.ReloadInterval)

	extractor, err := intentExtractor(cfg, logger)
	if err != nil {
		return err
	}

	var engine services.QueryEngine
	if cfg.Engine.IsAvailable() {
		client, err := cube.NewClient(cube.Config{
			BaseURL:   config.ResolveURLForDocker(cfg.Engine.BaseURL),
			APISecret: cfg.Engine.APISecret,
			Timeout:   cfg.Engine.Timeout,
			MaxRows:   cfg.Engine.MaxRows,
			Timezone:  cfg.Engine.Timezone,

			ContinueWaitAttempts: cfg.Engine.ContinueWaitAttempts,
			ContinueWaitDelay:    cfg.Engine.ContinueWaitDelay,
		}, logger)
		if err != nil {
			return fmt.Errorf("engine client: %w", err)
		}
		engine = client
	} else {
		logger.Warn("No engine configured; queries are compiled but never executed")
	}

	opts := validator.DefaultOptions()
	opts.RequireSnapshotTimeRange = cfg.Validation.RequireSnapshotTimeRange
	opts.UseCatalogDefaultTimeDimension = cfg.Validation.UseCatalogDefaultTimeDimension
	opts.SuggestionLimit = cfg.Validation.SuggestionLimit
	opts.Location = cfg.Location()

	queryService := services.NewQueryService(holder, extractor, engine, opts, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, holder, logger).RegisterRoutes(mux)

	// /api and /mcp share a mux so auth wraps both in one place.
	api := http.NewServeMux()
	handlers.NewCatalogHandler(holder, logger).RegisterRoutes(api)
	handlers.NewIntentsHandler(queryService, logger).RegisterRoutes(api)

	if cfg.MCP.Enabled {
		mcpServer := mcp.NewServer("intentgate", cfg.Version, logger)
		tools.RegisterHealthTool(mcpServer.MCP(), cfg.Version, holder)
		tools.RegisterIntentTools(mcpServer.MCP(), &tools.ToolDeps{
			Catalogs:     holder,
			QueryService: queryService,
			AllowExecute: engine != nil,
		})
		handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(api)
	}

	guarded, err := authGuard(ctx, cfg, api, logger)
	if err != nil {
		return err
	}
	mux.Handle("/api/", guarded)
	mux.Handle("/mcp", guarded)

	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Execution waits on the model and the engine.
		WriteTimeout: cfg.LLM.Timeout + cfg.Engine.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("Starting intentgate",
		zap.String("addr", srv.Addr),
		zap.String("catalog_version", holder.Current().Version()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// catalogSource opens the configured catalog source. The returned func
// releases any connection it holds.
func catalogSource(ctx context.Context, cfg *config.Config, logger *zap.Logger) (catalog.Source, func(), error) {
	if cfg.Catalog.Source != config.CatalogSourcePostgres {
		return catalog.NewFileSource(cfg.Catalog.Path), func() {}, nil
	}

	url := cfg.Database.URL()
	if err := database.RunMigrations(url, migrations.FS, logger); err != nil {
		return nil, nil, err
	}
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            url,
		MaxConnections: cfg.Database.MaxConnections,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return catalog.NewPostgresSource(db.Pool), db.Close, nil
}

// intentExtractor builds the model-backed extractor, or returns nil when no
// model is configured so that only intent compilation is served.
func intentExtractor(cfg *config.Config, logger *zap.Logger) (services.IntentExtractor, error) {
	if !cfg.LLM.IsAvailable() {
		logger.Warn("No language model configured; /api/query and ask_question are disabled")
		return nil, nil
	}

	client, err := llm.NewClientFromConfig(&llm.Config{
		Provider:  cfg.LLM.Provider,
		Endpoint:  config.ResolveURLForDocker(cfg.LLM.BaseURL),
		Model:     cfg.LLM.Model,
		APIKey:    cfg.LLM.APIKey,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}

	guarded := llm.NewGuardedClient(client, llm.NewCircuitBreaker(llm.DefaultCircuitBreakerConfig()))
	return services.NewIntentExtractor(guarded, services.ExtractorConfig{
		Temperature: cfg.LLM.Temperature,
	}, logger), nil
}

// authGuard wraps next with bearer-token verification when auth is configured.
func authGuard(ctx context.Context, cfg *config.Config, next http.Handler, logger *zap.Logger) (http.Handler, error) {
	if !cfg.Auth.Enabled() {
		logger.Warn("Auth disabled; /api and /mcp accept unauthenticated requests")
		return next, nil
	}

	verifier, err := auth.NewJWKSClient(ctx, &auth.JWKSConfig{
		JWKSEndpoints: map[string]string{cfg.Auth.Issuer: config.ResolveURLForDocker(cfg.Auth.JWKSURL)},
		Audience:      cfg.Auth.Audience,
	})
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	return auth.NewMiddleware(verifier, cfg.Auth.RequiredScope, logger).RequireAuth(next), nil
}
