package cli

import (
	"io"
	"log/slog"

	"github.com/roach88/ataa/internal/allocate"
	"github.com/roach88/ataa/internal/auth"
	"github.com/roach88/ataa/internal/clock"
	"github.com/roach88/ataa/internal/config"
	"github.com/roach88/ataa/internal/matching"
	"github.com/roach88/ataa/internal/metrics"
	"github.com/roach88/ataa/internal/model"
	"github.com/roach88/ataa/internal/orchestrator"
	"github.com/roach88/ataa/internal/predict"
	"github.com/roach88/ataa/internal/queue"
	"github.com/roach88/ataa/internal/rules"
	"github.com/roach88/ataa/internal/scoring"
	"github.com/roach88/ataa/internal/store"
	"github.com/roach88/ataa/internal/syncclient"
)

// App is one tier's wired services, built from its config.
type App struct {
	Config  *config.Config
	Store   *store.Store
	Clock   clock.Clock
	IDs     model.IDGenerator
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Rules   rules.Rules

	// Queue is nil on the core.
	Queue    *queue.Queue
	Recorder queue.Recorder

	Scorer       *scoring.Scorer
	Predictor    *predict.Predictor
	Optimizer    *allocate.Optimizer
	Matching     *matching.Engine
	Orchestrator *orchestrator.Orchestrator

	// Client is nil on the core.
	Client *syncclient.Client
}

// newLogger returns a text logger at Info, or Debug under --verbose.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads --config and --env-file and applies --db.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.Config, opts.EnvFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	return cfg, nil
}

// openApp loads the config, opens the store and wires every service for
// the configured tier. Callers must Close the returned App.
func openApp(opts *RootOptions, logOut io.Writer) (*App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := newLogger(opts, logOut)

	r := rules.Defaults()
	if cfg.RulesFile != "" {
		r, err = rules.Load(cfg.RulesFile)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load rules", err)
		}
	}
	if cfg.Allocation.MaxHouseholds > 0 {
		r.Allocation.MaxHouseholds = cfg.Allocation.MaxHouseholds
	}

	policy, err := orchestrator.PolicyByName(cfg.Sync.ConflictPolicy)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid conflict policy", err)
	}

	logger.Debug("opening database", "path", cfg.Database, "tier", cfg.Tier)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	a := &App{
		Config:  cfg,
		Store:   st,
		Clock:   opts.Clock,
		IDs:     opts.IDs,
		Logger:  logger,
		Metrics: metrics.New(),
		Rules:   r,
	}
	if a.Clock == nil {
		a.Clock = clock.System{}
	}
	if a.IDs == nil {
		a.IDs = model.UUIDv7Generator{}
	}

	if cfg.Syncs() {
		a.Queue = queue.New(a.Clock, logger)
		a.Recorder = a.Queue
	} else {
		a.Recorder = queue.Direct{Clock: a.Clock}
	}

	a.Scorer = scoring.New(st, &a.Rules, a.Clock, logger, a.Metrics)
	a.Predictor = predict.New(st, &a.Rules, a.Clock, logger)
	a.Optimizer = allocate.New(st, &a.Rules, a.Recorder, a.IDs, a.Clock, logger, a.Metrics)
	a.Matching = matching.New(st, nil, a.Recorder, a.IDs, a.Clock, logger, a.Metrics)

	var relay *queue.Queue
	if cfg.Tier == config.TierHub && cfg.Sync.Relay {
		relay = a.Queue
	}
	var autoMatch *matching.Engine
	if cfg.Sync.AutoMatch {
		autoMatch = a.Matching
	}
	a.Orchestrator = orchestrator.New(st, policy, relay, autoMatch, a.IDs, a.Clock, logger, a.Metrics,
		orchestrator.Options{Relay: relay != nil, PullExchange: cfg.PullsExchange()})

	if cfg.Syncs() {
		a.Client, err = syncclient.New(syncclient.Config{
			BaseURL:       cfg.Upstream.URL,
			HubID:         cfg.HubID,
			ZoneID:        cfg.ZoneID,
			Username:      cfg.Upstream.Username,
			Password:      cfg.Upstream.Password,
			LoginTimeout:  cfg.Upstream.LoginTimeout,
			SyncTimeout:   cfg.Upstream.SyncTimeout,
			TokenMargin:   cfg.Upstream.TokenMargin,
			TokenLifetime: cfg.Upstream.TokenLifetime,
		}, st, a.Queue, a.IDs, a.Clock, logger, a.Metrics)
		if err != nil {
			st.Close()
			return nil, WrapExitError(ExitCommandError, "failed to build sync client", err)
		}
	}
	return a, nil
}

// authServices builds the token issuer and account authenticator of a
// serving tier.
func (a *App) authServices() (*auth.Issuer, *auth.Authenticator, error) {
	issuer, err := auth.NewIssuer(a.Config.Auth.Secret, a.Config.Auth.TokenTTL, a.Clock)
	if err != nil {
		return nil, nil, err
	}
	return issuer, auth.NewAuthenticator(a.Config.Auth.Accounts, issuer), nil
}

// requireClient fails commands that need an upstream on the core.
func (a *App) requireClient() error {
	if a.Client == nil {
		return NewExitError(ExitCommandError, "the core tier has no upstream")
	}
	return nil
}

func (a *App) Close() error {
	return a.Store.Close()
}
