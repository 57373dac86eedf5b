package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/rickgao/basemap-orders/internal/api"
	"github.com/rickgao/basemap-orders/internal/auth"
	"github.com/rickgao/basemap-orders/internal/config"
	"github.com/rickgao/basemap-orders/internal/database"
	"github.com/rickgao/basemap-orders/internal/events"
	"github.com/rickgao/basemap-orders/internal/ledger"
	"github.com/rickgao/basemap-orders/internal/model"
	"github.com/rickgao/basemap-orders/internal/poller"
	"github.com/rickgao/basemap-orders/internal/progress"
	"github.com/rickgao/basemap-orders/internal/results"
)

// commonFlags are accepted by every command that talks to the API.
type commonFlags struct {
	configPath string
	envFile    string
}

func newFlagSet(name string) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cf := &commonFlags{}
	fs.StringVar(&cf.configPath, "config", "", "path to YAML config file (defaults apply when empty)")
	fs.StringVar(&cf.envFile, "env-file", auth.DefaultEnvFile, "dotenv file consulted for "+auth.EnvAPIKey)
	return fs, cf
}

// app holds the components built from configuration.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	client *api.Client

	db        *sql.DB
	store     *ledger.Store
	hub       *progress.Hub
	publisher *events.Publisher
	fetcher   *results.Fetcher
}

// newApp loads configuration and credentials and builds the API client. The
// optional components are built by the with* methods.
func newApp(cf *commonFlags) (*app, error) {
	cfg, err := config.LoadAndValidate(cf.configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	creds, err := auth.LoadCredentials(cfg.API.APIKey, cf.envFile)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"config", cf.configPath,
		"base_url", cfg.API.BaseURL,
		"api_key", creds.Redacted(),
		"api_key_source", creds.Source,
	)

	client := api.NewClient(
		cfg.API.BaseURL,
		creds.APIKey,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.Retries(), cfg.API.RetryBackoff),
	)

	return &app{cfg: cfg, logger: logger, client: client}, nil
}

// withLedger connects the order ledger when a database is configured.
func (a *app) withLedger(ctx context.Context) error {
	if !a.cfg.Database.Enabled() {
		return nil
	}

	a.logger.Info("connecting to ledger database",
		"host", a.cfg.Database.Host,
		"port", a.cfg.Database.Port,
		"database", a.cfg.Database.Name,
	)

	db, err := database.Open(ctx, a.cfg.Database)
	if err != nil {
		return fmt.Errorf("connect ledger: %w", err)
	}

	store, err := ledger.NewStoreWithSchema(ctx, db)
	if err != nil {
		db.Close()
		return err
	}

	a.db = db
	a.store = store
	return nil
}

// withPolling builds the components that consume poll results.
func (a *app) withPolling(ctx context.Context, fetch bool) error {
	if err := a.withLedger(ctx); err != nil {
		return err
	}

	if a.cfg.Progress.Addr != "" {
		a.hub = progress.NewHub(a.logger)
	}

	if a.cfg.Events.URL != "" {
		pub, err := events.Dial(a.cfg.Events.URL, a.cfg.Events.Queue, a.logger)
		if err != nil {
			return err
		}
		a.publisher = pub
	}

	if fetch {
		opts := []results.FetcherOption{results.WithLogger(a.logger)}
		mirror, err := results.NewS3MirrorFromConfig(ctx, a.cfg.Mirror)
		if err != nil {
			return err
		}
		if mirror != nil {
			opts = append(opts, results.WithMirror(mirror))
		}
		a.fetcher = results.NewFetcher(a.cfg.Mirror.DownloadDir, opts...)
	}

	return nil
}

// observer fans notifications out to every configured consumer. The returned
// func flushes queued notifications and must be called once polling stops.
func (a *app) observer() (poller.ProgressObserver, func()) {
	obs := progress.Multi{progress.NewLogObserver(a.logger)}
	flush := func() {}

	if a.hub != nil {
		obs = append(obs, a.hub)
	}
	if a.store != nil {
		async := progress.NewAsync(ledger.NewProgressRecorder(a.store, a.logger))
		obs = append(obs, async)
		flush = async.Close
	}
	if a.publisher != nil {
		obs = append(obs, a.publisher)
	}

	return obs, flush
}

func (a *app) pollerConfig() poller.Config {
	return poller.Config{
		Interval:    a.cfg.Poller.Interval,
		MaxAttempts: a.cfg.Poller.MaxAttempts,
	}
}

// serveProgress runs the progress server until ctx is done.
func (a *app) serveProgress(ctx context.Context) error {
	if a.hub == nil {
		return nil
	}

	go a.hub.Run(ctx)

	srv := progress.NewServer(a.cfg.Progress.Addr, a.cfg.Progress.Path, a.hub, a.healthHandler())
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting progress server", "addr", a.cfg.Progress.Addr, "path", a.cfg.Progress.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *app) healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if a.db != nil {
			if err := a.db.PingContext(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["ledger"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["ledger"] = "connected"
			}
		}
		if a.hub != nil {
			health.Components["progress_clients"] = a.hub.Clients()
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})
}

// finish records, publishes and fetches a terminal result.
func (a *app) finish(ctx context.Context, res *poller.Result) error {
	if a.store != nil {
		if err := a.store.RecordOutcome(ctx, res.Handle.ID, res.State, res.Manifest); err != nil {
			a.logger.Warn("failed to record outcome", "order_id", res.Handle.ID, "error", err)
		}
	}
	if a.publisher != nil {
		if err := a.publisher.PublishOutcome(ctx, res); err != nil {
			a.logger.Warn("failed to publish outcome", "order_id", res.Handle.ID, "error", err)
		}
	}
	if a.fetcher != nil && len(res.Manifest) > 0 {
		fetched, err := a.fetcher.Fetch(ctx, res.Handle.ID, res.Manifest)
		a.logger.Info("artifacts fetched",
			"order_id", res.Handle.ID,
			"fetched", len(fetched),
			"total", len(res.Manifest),
		)
		if err != nil {
			return fmt.Errorf("fetch results of %s: %w", res.Handle.ID, err)
		}
	}
	return nil
}

func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Debug("closing event publisher", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

// readSpec decodes an order spec from path ("-" reads stdin).
func readSpec(path string, stdin io.Reader) (*model.OrderSpec, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var spec model.OrderSpec
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode order spec %s: %w", path, err)
	}
	return &spec, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// exitCode maps terminal failures onto distinct process exit codes.
func exitCode(err error) int {
	var (
		subErr     *poller.SubmissionError
		timeoutErr *poller.TimeoutError
		transErr   *poller.TransportError
		failedErr  *orderFailedError
	)
	switch {
	case errors.As(err, &failedErr):
		return 3
	case errors.As(err, &timeoutErr):
		return 4
	case errors.As(err, &transErr):
		return 5
	case errors.As(err, &subErr), errors.Is(err, model.ErrInvalidSpec):
		return 6
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

// orderFailedError reports an order that finished without results.
type orderFailedError struct {
	orderID string
	state   model.OrderState
}

func (e *orderFailedError) Error() string {
	return fmt.Sprintf("order %s finished in state %s", e.orderID, e.state)
}
