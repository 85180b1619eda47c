package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cf-ai-ledger-go/internal/handlers"
	"github.com/cf-ai-ledger-go/internal/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const activeUsersInterval = 5 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot with the metrics and privacy HTTP endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.serve(ctx)
	},
}

func (a *app) serve(ctx context.Context) error {
	log := a.log
	log.Info("Starting assistant...")

	go a.limiter.Run(ctx)

	sweeper := a.newSweeper()
	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	defer sweeper.Stop()

	go a.trackActiveUsers(ctx, activeUsersInterval)

	router := middleware.NewRouter(a.cfg.Monitoring.Metrics.Path)
	handlers.NewPrivacyHandler(a.services(), a.cfg.Monitoring.AdminToken, log).Register(router)

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Bot.Enabled {
		bot, err := tgbotapi.NewBotAPI(a.cfg.Bot.Token)
		if err != nil {
			return fmt.Errorf("failed to create bot: %w", err)
		}
		bot.Debug = a.cfg.Logging.Level == "debug"
		log.WithField("username", bot.Self.UserName).Info("Bot authorized")

		updates, err := a.updates(bot, router)
		if err != nil {
			return err
		}
		dispatcher := handlers.NewDispatcher(bot, a.services(), a.cfg.Bot.MaxUploadSize, log)
		g.Go(func() error {
			a.runUpdates(ctx, bot, updates, dispatcher)
			return nil
		})
	} else {
		log.Info("Bot disabled; serving HTTP endpoints only")
	}

	if a.cfg.Monitoring.Metrics.Enabled || a.cfg.Bot.Webhook.Enabled {
		server := middleware.NewServer(a.cfg.Monitoring.Metrics.Port, router)
		g.Go(func() error {
			log.WithFields(logrus.Fields{
				"port": a.cfg.Monitoring.Metrics.Port,
				"path": a.cfg.Monitoring.Metrics.Path,
			}).Info("Starting HTTP server")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutdown signal received")
		return nil
	})

	err := g.Wait()
	log.Info("Assistant stopped")
	return err
}

// updates returns the update channel, registering the webhook route when
// webhooks are enabled and falling back to long polling otherwise
func (a *app) updates(bot *tgbotapi.BotAPI, router *mux.Router) (tgbotapi.UpdatesChannel, error) {
	if !a.cfg.Bot.Webhook.Enabled {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = a.cfg.Bot.UpdateTimeout
		a.log.Info("Using long polling")
		return bot.GetUpdatesChan(u), nil
	}

	path := "/" + bot.Token
	webhook, err := tgbotapi.NewWebhook(a.cfg.Bot.Webhook.URL + path)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook: %w", err)
	}
	if _, err := bot.Request(webhook); err != nil {
		return nil, fmt.Errorf("failed to set webhook: %w", err)
	}

	ch := make(chan tgbotapi.Update, bot.Buffer)
	router.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		update, err := bot.HandleUpdate(r)
		if err != nil {
			a.log.WithError(err).Warn("Rejected webhook update")
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		select {
		case ch <- *update:
		case <-r.Context().Done():
		}
	}).Methods(http.MethodPost)

	a.log.WithField("url", a.cfg.Bot.Webhook.URL).Info("Webhook set")
	return ch, nil
}

// runUpdates dispatches each update on its own goroutine until ctx ends,
// then waits for in-flight handlers
func (a *app) runUpdates(ctx context.Context, bot *tgbotapi.BotAPI, updates tgbotapi.UpdatesChannel, dispatcher *handlers.Dispatcher) {
	var wg sync.WaitGroup
	defer func() {
		if a.cfg.Bot.Webhook.Enabled {
			if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
				a.log.WithError(err).Error("Failed to delete webhook")
			}
		} else {
			bot.StopReceivingUpdates()
		}
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				dispatcher.HandleUpdate(ctx, update)
			}()
		}
	}
}

func (a *app) trackActiveUsers(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.metrics.SetActiveUsers(a.memory.UserCount())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.metrics.SetActiveUsers(a.memory.UserCount())
		}
	}
}
