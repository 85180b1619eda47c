package main

import (
	"context"
	"fmt"

	"github.com/cf-ai-ledger-go/internal/config"
	"github.com/cf-ai-ledger-go/internal/handlers"
	"github.com/cf-ai-ledger-go/internal/i18n"
	"github.com/cf-ai-ledger-go/internal/middleware"
	"github.com/cf-ai-ledger-go/internal/services/ai"
	"github.com/cf-ai-ledger-go/internal/services/assistant"
	"github.com/cf-ai-ledger-go/internal/services/cache"
	"github.com/cf-ai-ledger-go/internal/services/learning"
	"github.com/cf-ai-ledger-go/internal/services/memory"
	"github.com/cf-ai-ledger-go/internal/services/objectstore"
	"github.com/cf-ai-ledger-go/internal/services/storage"
	"github.com/sirupsen/logrus"
)

// app holds the wired components shared by every subcommand
type app struct {
	cfg       *config.Config
	log       *logrus.Logger
	metrics   *middleware.Metrics
	storage   *storage.Manager
	memory    *memory.Service
	learner   *learning.Learner
	limiter   *middleware.UserRateLimiter
	localizer *i18n.Localizer
	assistant *assistant.Service
}

func newApp(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*app, error) {
	metrics := middleware.NewMetrics()

	storageManager, err := storage.NewManager(ctx, &cfg.Storage, metrics, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	objects, err := objectstore.New(ctx, &cfg.ObjectStore, log)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}

	aiService, err := ai.New(&cfg.AI, metrics, log)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize AI service: %w", err)
	}

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize i18n: %w", err)
	}

	memOpts := memory.OptionsFromConfig(&cfg.Memory)
	memOpts.Metrics = metrics
	mem := memory.NewService(memOpts, log)

	learnOpts := learning.OptionsFromConfig(cfg)
	learnOpts.Metrics = metrics
	learner := learning.NewLearner(learning.Dependencies{
		Store:     storageManager,
		Memory:    mem,
		Extractor: aiService,
		Objects:   objects,
		Cache:     cache.NewCache(&cfg.Cache, metrics, log),
	}, learnOpts, log)

	limiter := middleware.NewRateLimiter(&cfg.RateLimit, metrics, log)

	chat := assistant.NewService(mem, learner, aiService, limiter, localizer, assistant.Options{
		Timeout:      cfg.AI.Timeout,
		HistoryLimit: cfg.Memory.HistoryLimit,
		Metrics:      metrics,
	}, log)

	return &app{
		cfg:       cfg,
		log:       log,
		metrics:   metrics,
		storage:   storageManager,
		memory:    mem,
		learner:   learner,
		limiter:   limiter,
		localizer: localizer,
		assistant: chat,
	}, nil
}

func (a *app) services() handlers.Services {
	return handlers.Services{
		Memory:    a.memory,
		Learner:   a.learner,
		Assistant: a.assistant,
		Localizer: a.localizer,
		Metrics:   a.metrics,
	}
}

// newSweeper schedules memory expiry with learner expiry as a follow-up job
func (a *app) newSweeper() *memory.Sweeper {
	sweeper := memory.NewSweeper(a.memory, a.cfg.Memory.SweepSchedule, a.log)
	sweeper.AddJob("learnings", a.learner.CleanExpiredData)
	return sweeper
}

func (a *app) Close() {
	if err := a.storage.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close storage")
	}
}
