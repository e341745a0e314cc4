// Package kagami is the public API for embedding the Kagami digital twin server.
//
// Consumers import this package to construct and run the server without
// forking it:
//
//	app, err := kagami.New(
//	    kagami.WithVersion(version),
//	    kagami.WithLogger(logger),
//	    kagami.WithEventHook(myHook{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: kagami (root) imports
// internal/*, but internal/* never imports kagami (root). Public types
// (Decision, Warning, etc.) are standalone structs with no internal imports;
// conversion helpers live here because this is the only file that sees both
// sides of the boundary.
package kagami

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/kagami-ai/kagami/internal/auth"
	"github.com/kagami-ai/kagami/internal/config"
	"github.com/kagami-ai/kagami/internal/intervene"
	"github.com/kagami-ai/kagami/internal/mcp"
	"github.com/kagami-ai/kagami/internal/model"
	"github.com/kagami-ai/kagami/internal/server"
	"github.com/kagami-ai/kagami/internal/service/twin"
	"github.com/kagami-ai/kagami/internal/state"
	"github.com/kagami-ai/kagami/internal/store"
	"github.com/kagami-ai/kagami/internal/telemetry"
)

// App is the Kagami server lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	srv          *server.Server
	svc          *twin.Service
	pg           *store.Postgres // nil when using the JSON-file store
	cooldown     *intervene.Cooldown
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the Kagami server. It loads configuration, opens the
// decision log, wires all subsystems, and returns a ready-to-run App.
// It does NOT start any goroutines or accept HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.SlogLevel(),
		}))
		slog.SetDefault(logger)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.apiKey != "" {
		cfg.APIKey = o.apiKey
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("kagami starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Open the decision log: Postgres when DATABASE_URL is set, otherwise
	// the JSON-file-backed memory store.
	var (
		log store.Log
		pg  *store.Postgres
	)
	if cfg.DatabaseURL != "" {
		pg, err = store.NewPostgres(context.Background(), cfg.DatabaseURL, logger)
		if err != nil {
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("store: %w", err)
		}
		log = pg
		logger.Info("decision log: postgres")
	} else {
		log, err = store.NewMemory(context.Background(), store.NewJSONFile(cfg.DecisionsFile()))
		if err != nil {
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("store: %w", err)
		}
		logger.Info("decision log: json file", "path", cfg.DecisionsFile())
	}

	// Create JWT manager and API key hash when auth is configured.
	var (
		jwtMgr     *auth.JWTManager
		apiKeyHash string
	)
	if cfg.APIKey != "" {
		jwtMgr, err = auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
		if err != nil {
			closeStore(pg)
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("auth: %w", err)
		}
		apiKeyHash, err = auth.HashAPIKey(cfg.APIKey)
		if err != nil {
			closeStore(pg)
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("auth: hash api key: %w", err)
		}
	} else {
		logger.Warn("auth: disabled (no KAGAMI_API_KEY)")
	}

	// Cognitive state monitor.
	monitor := state.NewMonitor()

	// Intervention engine with the cooldown tracker so each rule honors its
	// advisory delay window across repeated checks.
	cooldown := intervene.NewCooldown()
	guard := intervene.New(log, logger, intervene.WithCooldown(cooldown))

	// Twin service with event hook adapters.
	twinOpts := []twin.Option{twin.WithInterventionEngine(guard)}
	if len(o.eventHooks) > 0 {
		hooks := make([]twin.DecisionHook, len(o.eventHooks))
		for i, h := range o.eventHooks {
			hooks[i] = &eventHookAdapter{hook: h}
		}
		twinOpts = append(twinOpts, twin.WithDecisionHooks(hooks...))
	}
	svc := twin.New(log, monitor, logger, twinOpts...)

	// MCP server.
	mcpSrv := mcp.New(svc, version, logger)

	// HTTP server.
	srv := server.New(server.ServerConfig{
		Service:             svc,
		Logger:              logger,
		JWTMgr:              jwtMgr,
		APIKeyHash:          apiKeyHash,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	return &App{
		cfg:          cfg,
		srv:          srv,
		svc:          svc,
		pg:           pg,
		cooldown:     cooldown,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Service exposes the twin service for embedded use (logging decisions
// directly without going through HTTP or MCP).
func (a *App) Service() *twin.Service {
	return a.svc
}

// Run starts the HTTP server and blocks until ctx is cancelled or a fatal
// server error occurs. On return, Shutdown is called automatically —
// callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

// Shutdown drains in-flight HTTP requests, then closes the store and the
// OTEL providers.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("kagami shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	_ = a.cooldown.Close()
	closeStore(a.pg)
	_ = a.otelShutdown(context.Background())

	a.logger.Info("kagami stopped")
	return nil
}

func closeStore(pg *store.Postgres) {
	if pg != nil {
		pg.Close()
	}
}

// ── Adapters and type converters ───────────────────────────────────────────────

// eventHookAdapter wraps a kagami.EventHook to satisfy twin.DecisionHook.
// It converts internal model types to public kagami types at the boundary.
type eventHookAdapter struct {
	hook EventHook
}

func (a *eventHookAdapter) OnDecisionLogged(ctx context.Context, rec model.DecisionRecord, check intervene.Result) error {
	return a.hook.OnDecisionLogged(ctx, toPublicDecision(rec), toPublicCheck(check))
}

// toPublicDecision converts an internal model.DecisionRecord to the public
// kagami.Decision. Lives here because this is the only file that imports
// both sides of the boundary.
func toPublicDecision(rec model.DecisionRecord) Decision {
	return Decision{
		ID:           rec.ID,
		Timestamp:    rec.Timestamp,
		Decision:     rec.Decision,
		Reason:       rec.Reason,
		Alternatives: rec.Alternatives,
		Constraints:  rec.Constraints,
		Outcome:      rec.Outcome,
		OutcomeAt:    rec.OutcomeTimestamp,
		Tags:         rec.Tags,
	}
}

// toPublicCheck converts an internal intervene.Result to the public
// kagami.CheckResult.
func toPublicCheck(res intervene.Result) CheckResult {
	warnings := make([]Warning, len(res.AllWarnings))
	for i, w := range res.AllWarnings {
		warnings[i] = Warning{
			Rule:         w.Rule,
			Severity:     w.Severity,
			Message:      w.Message,
			DelaySeconds: w.DelaySeconds,
		}
	}
	return CheckResult{
		ShouldIntervene: res.ShouldIntervene,
		AllowOverride:   res.AllowOverride,
		Warnings:        warnings,
	}
}
