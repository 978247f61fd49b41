package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"katha/internal/api"
	"katha/internal/config"
	"katha/internal/confirm"
	"katha/internal/database"
	"katha/internal/feed"
	"katha/internal/notifications"
	"katha/internal/session"
	"katha/internal/utils"
	"katha/internal/vote"
)

// app is everything a command needs, built once per run.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *utils.MetricsCollector
	store   *database.Store
	client  *api.Client
	session *session.Session
	guard   *confirm.Guard
	feed    *feed.Feed
	votes   *vote.Reconciler
	notices *notifications.Service
}

type appSlotKey struct{}

// appSlot carries the app from setupApp to the run functions and back to
// main, which closes it.
type appSlot struct {
	app *app
}

func withAppSlot(ctx context.Context, slot *appSlot) context.Context {
	return context.WithValue(ctx, appSlotKey{}, slot)
}

func appSlotFrom(ctx context.Context) *appSlot {
	if ctx == nil {
		return nil
	}
	slot, _ := ctx.Value(appSlotKey{}).(*appSlot)
	return slot
}

// withApp adapts a run function to cobra, handing it the app built by
// setupApp.
func withApp(run func(*app, *cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		slot := appSlotFrom(cmd.Context())
		if slot == nil || slot.app == nil {
			return fmt.Errorf("%s: client is not set up", cmd.CommandPath())
		}
		return run(slot.app, cmd, args)
	}
}

func newApp(cfg *config.Config, store *database.Store, confirmer confirm.Confirmer, logger *slog.Logger) *app {
	metrics := utils.NewMetricsCollector()
	gw := api.NewGateway(cfg.Client.APIBaseURL, database.NewTokenStore(store),
		api.WithTimeout(cfg.Client.RequestTimeout),
		api.WithLogger(logger),
		api.WithMetrics(metrics),
	)
	client := api.NewClient(gw)
	sess := session.New(client, store, logger)
	guard := confirm.NewGuard(confirmer, logger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		store:   store,
		client:  client,
		session: sess,
		guard:   guard,
		feed:    feed.New(client, sess, store, guard, logger),
		votes:   vote.NewReconciler(client, sess, logger, metrics),
		notices: notifications.NewService(client, sess, logger),
	}
}

// setupApp loads configuration, applies the root flags and opens the local
// store.
func setupApp(cmd *cobra.Command, _ []string) error {
	slot := appSlotFrom(cmd.Context())
	if slot == nil {
		return fmt.Errorf("%s: no app slot in context", cmd.CommandPath())
	}
	if slot.app != nil {
		return nil
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if flagAPIURL != "" {
		normalized, err := config.NormalizeBaseURL(flagAPIURL)
		if err != nil {
			return fmt.Errorf("--api-url: %w", err)
		}
		cfg.Client.APIBaseURL = normalized
	}
	if flagStateDir != "" {
		cfg.Client.StateDir = flagStateDir
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}

	logger := utils.NewLogger(cfg.Env, cfg.LogLevel, os.Stderr)
	store, err := database.Open(database.Config{Path: cfg.Client.StateDir})
	if err != nil {
		return err
	}

	confirmer := confirm.ForTerminal(flagYes, os.Stdin.Fd(), cmd.InOrStdin(), cmd.ErrOrStderr())
	slot.app = newApp(cfg, store, confirmer, logger)
	logger.Debug("client ready",
		"api_root", cfg.Client.APIBaseURL,
		"state_dir", cfg.Client.StateDir,
		"logged_in", slot.app.session.IsLoggedIn(),
	)
	return nil
}

// close releases the local store.
func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing local store", "error", err)
	}
}

func (s *appSlot) close() {
	if s.app != nil {
		s.app.close()
		s.app = nil
	}
}
