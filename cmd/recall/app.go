package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/p-n-ai/pai-recall/internal/deck"
	"github.com/p-n-ai/pai-recall/internal/grader"
	"github.com/p-n-ai/pai-recall/internal/platform/cache"
	"github.com/p-n-ai/pai-recall/internal/platform/config"
	"github.com/p-n-ai/pai-recall/internal/platform/database"
	"github.com/p-n-ai/pai-recall/internal/platform/logger"
	"github.com/p-n-ai/pai-recall/internal/srs"
	"github.com/p-n-ai/pai-recall/internal/store"
	"github.com/p-n-ai/pai-recall/internal/study"
)

// storeInitError marks failures to open the review store. They are the only
// errors that exit with status 1.
type storeInitError struct {
	err error
}

func (e *storeInitError) Error() string { return "opening review store: " + e.err.Error() }

func (e *storeInitError) Unwrap() error { return e.err }

// app holds what one command invocation opened. close releases it on every
// exit path.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	envFile  string
	decksDir string

	cfg    *config.Config
	store  store.Store
	cache  *cache.Cache
	engine *study.Engine
	report deck.LoadReport
}

// loadConfig reads and validates configuration and installs the logger.
func (a *app) loadConfig() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	var files []string
	if a.envFile != "" {
		files = append(files, a.envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}
	if a.decksDir != "" {
		cfg.DecksDir = a.decksDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.SetDefault(logger.New(cfg.Log, a.errOut))
	a.cfg = cfg
	return cfg, nil
}

// open builds the study engine over the configured store and loads the
// deck directory.
func (a *app) open(ctx context.Context) (*study.Engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}

	sched, err := srs.NewScheduler(srs.Config{
		DefaultEasiness: cfg.SRS.DefaultEasiness,
		MinEasiness:     cfg.SRS.MinEasiness,
		MaxEasiness:     cfg.SRS.MaxEasiness,
		MaxIntervalDays: cfg.SRS.MaxIntervalDays,
		Location:        time.Local,
	})
	if err != nil {
		return nil, err
	}

	st, err := a.openStore(ctx, cfg, sched)
	if err != nil {
		return nil, &storeInitError{err: err}
	}
	a.store = st

	var deckCache deck.Cache
	if cfg.HasCache() {
		c, err := cache.New(ctx, cfg.Cache.URL, time.Duration(cfg.Cache.TTLHours)*time.Hour)
		if err != nil {
			slog.Warn("deck cache unavailable, parsing every file", "error", err)
		} else {
			a.cache = c
			deckCache = c
		}
	}

	seed := cfg.Session.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	eng, err := study.NewEngine(study.EngineConfig{
		Store:     st,
		Scheduler: sched,
		Grader: grader.New(grader.Config{
			LongAnswerChars: cfg.Grading.LongAnswerChars,
			TokenRatio:      cfg.Grading.TokenRatio,
		}),
		Loader:             deck.NewLoader(deck.LoaderOptions{Cache: deckCache}),
		Rand:               rand.New(rand.NewPCG(seed, seed>>1|1)),
		SessionLimit:       cfg.Session.Limit,
		ProblemMinAttempts: cfg.Session.ProblemMinAttempts,
	})
	if err != nil {
		return nil, err
	}

	rep, err := eng.LoadDecks(ctx, cfg.DecksDir)
	if err != nil {
		return nil, err
	}
	a.engine = eng
	a.report = rep
	return eng, nil
}

func (a *app) openStore(ctx context.Context, cfg *config.Config, sched *srs.Scheduler) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return store.NewMemoryStore(sched), nil
	case config.DriverPostgres:
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		s, err := store.NewPostgresStore(ctx, db.Pool, sched)
		if err != nil {
			db.Close()
			return nil, err
		}
		return s, nil
	default:
		s, err := store.OpenSQLite(ctx, cfg.Store.Path, sched)
		if err != nil {
			return nil, err
		}
		if rec := s.Recovered(); rec != nil {
			fmt.Fprintf(a.errOut, "Warning: the review store was unreadable and has been reset. The old file was kept at %s.\n", rec.MovedTo)
		}
		return s, nil
	}
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Error("closing review store", "error", err)
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			slog.Error("closing deck cache", "error", err)
		}
	}
}
