package kagami

import (
	"context"
	"log/slog"
)

// EventHook receives decision lifecycle notifications. Hooks run
// asynchronously after the record is stored; a slow or failing hook never
// blocks or fails the write.
type EventHook interface {
	OnDecisionLogged(ctx context.Context, d Decision, check CheckResult) error
}

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port        int
	dataDir     string
	databaseURL string
	apiKey      string
	logger      *slog.Logger
	version     string
	eventHooks  []EventHook
}

// WithPort overrides the TCP port from config (KAGAMI_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDataDir overrides the JSON-file store directory (KAGAMI_DATA_DIR env var).
func WithDataDir(dir string) Option {
	return func(o *resolvedOptions) { o.dataDir = dir }
}

// WithDatabaseURL overrides the Postgres connection string (DATABASE_URL env var).
// A non-empty URL selects the Postgres store instead of the JSON file.
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithAPIKey overrides the API key (KAGAMI_API_KEY env var).
// A non-empty key enables JWT auth on the HTTP API.
func WithAPIKey(key string) Option {
	return func(o *resolvedOptions) { o.apiKey = key }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithEventHook registers an event hook to receive decision lifecycle
// notifications. Multiple hooks may be registered; all receive every event.
func WithEventHook(hook EventHook) Option {
	return func(o *resolvedOptions) { o.eventHooks = append(o.eventHooks, hook) }
}
