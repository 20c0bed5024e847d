package main

import (
	"errors"
	"fmt"
	"time"

	"herald/internal/archive"
	"herald/internal/config"
	"herald/internal/engage"
	"herald/internal/httpx"
	"herald/internal/insights"
	"herald/internal/logging"
	"herald/internal/neynar"
	"herald/internal/platform"
	"herald/internal/publish"
	"herald/internal/rotation"
	"herald/internal/store/ledger"
	"herald/internal/xclient"
)

var errWritesDisabled = errors.New("writes disabled: missing platform credentials")

// app holds every component wired from one configuration.
type app struct {
	cfg     config.Config
	loc     *time.Location
	adapter platform.Adapter
	writes  bool

	ledger    *ledger.DB
	pool      *rotation.FilePool
	history   *rotation.HistoryStore
	state     *publish.StateStore
	publisher *publish.Service
	dedup     *engage.Deduplicator
	driver    *engage.Driver
	rotator   *archive.Rotator
	refresher *insights.Refresher
	digester  *insights.Digester
}

func loadApp() (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return newApp(cfg)
}

func newApp(cfg config.Config) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		logging.Warn("timezone_fallback", logging.Fields{"timezone": cfg.Timezone, "error": err.Error()})
	}
	a := &app{cfg: cfg, loc: loc}

	a.adapter, err = newAdapter(cfg)
	if err != nil {
		return nil, err
	}
	a.writes = cfg.WriteEnabled()
	if !a.writes {
		logging.Warn("writes_disabled", logging.Fields{"platform": a.adapter.Name(), "reason": "missing credentials"})
	}

	a.ledger, err = ledger.Open(cfg.Paths.Ledger)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	a.pool = rotation.NewFilePool(cfg.Paths.Messages)
	a.history = rotation.NewHistoryStore(cfg.Paths.History, cfg.Rotation.Window)
	a.state = publish.NewStateStore(cfg.Paths.State)
	gate, err := publish.NewGate(a.state, cfg.Publish.Interval.Std(), cfg.Publish.Odds, nil)
	if err != nil {
		logging.Warn("publish_state_unreadable", logging.Fields{"error": err.Error()})
	}
	a.publisher = publish.NewService(a.adapter, gate, rotation.NewSelector(a.pool, a.history, nil), publish.Options{
		LogPath:         cfg.Paths.Log,
		LogTimeLayout:   cfg.Publish.LogTimeLayout,
		Location:        loc,
		CommitOnPublish: cfg.Rotation.CommitOnPublish,
		Ledger:          a.ledger,
	})

	e := cfg.Engagement
	a.dedup, err = engage.NewDeduplicator(cfg.Paths.Interactions, e.HistoryCap, platform.Like, a.adapter.ShareReaction())
	if err != nil {
		logging.Warn("interaction_history_unreadable", logging.Fields{"error": err.Error()})
	}
	a.driver = engage.NewDriver(a.adapter, a.dedup, engage.Options{
		Accounts:          e.Accounts,
		Mode:              e.Mode,
		PageSize:          e.PageSize,
		Lookback:          e.Lookback.Std(),
		MaxActionsPerRun:  e.MaxActionsPerRun,
		MaxPerDay:         e.MaxPerDay,
		ActionDelay:       e.ActionDelay.Std(),
		RateLimitCooldown: e.RateLimitCooldown.Std(),
		Location:          loc,
		Ledger:            a.ledger,
	})

	targets := []archive.Target{
		{Name: "history", Path: a.history.Path(), Reset: a.history.Reset},
		{Name: "log", Path: cfg.Paths.Log, Reset: archive.TruncateFile(cfg.Paths.Log)},
	}
	if cfg.Archive.IncludeInteractions {
		targets = append(targets, archive.Target{Name: "interactions", Path: a.dedup.Path(), Reset: a.dedup.Reset})
	}
	a.rotator = archive.NewRotator(loc, targets...)

	in := cfg.Insights
	store := insights.NewStore(cfg.Paths.Insights, in.Retention.Std(), in.MaxItems)
	a.refresher = insights.NewRefresher(a.adapter, store, a.driver, in.PerAccount, in.Window.Std())
	a.digester = insights.NewDigester(a.adapter, store, a.state, a.ledger, in.Window.Std(), in.TopN, loc)
	return a, nil
}

func newAdapter(cfg config.Config) (platform.Adapter, error) {
	opts := httpx.Options{
		RPS:        cfg.API.RPS,
		Burst:      cfg.API.Burst,
		MaxRetries: cfg.API.MaxRetries,
		Timeout:    cfg.API.Timeout.Std(),
	}
	switch cfg.Platform {
	case "farcaster", "":
		f := cfg.Farcaster
		return neynar.New(f.BaseURL, f.APIKey, f.SignerUUID, opts), nil
	case "twitter":
		t := cfg.Twitter
		return xclient.New(t.BaseURL, t.BearerToken, xclient.OAuth1{
			ConsumerKey:    t.ConsumerKey,
			ConsumerSecret: t.ConsumerSecret,
			AccessToken:    t.AccessToken,
			AccessSecret:   t.AccessSecret,
		}, t.UserID, opts), nil
	default:
		return nil, fmt.Errorf("unknown platform %q", cfg.Platform)
	}
}

func (a *app) requireWrites() error {
	if !a.writes {
		return errWritesDisabled
	}
	return nil
}

func (a *app) Close() {
	if a.ledger != nil {
		_ = a.ledger.Close()
	}
}
