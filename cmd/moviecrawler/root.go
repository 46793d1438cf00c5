package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/movie-catalog-crawler/internal/app"
	"github.com/JakeFAU/movie-catalog-crawler/internal/config"
	"github.com/JakeFAU/movie-catalog-crawler/internal/logging"
)

// sessionKeyType is the key for storing the session in the command context.
type sessionKeyType string

const sessionKey sessionKeyType = "session"

// session carries what PersistentPreRunE loaded to the subcommands.
type session struct {
	cfg    config.Config
	logger *zap.Logger
}

// newApp is the application factory. It's a variable so tests can swap it.
var newApp = app.New

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "moviecrawler",
		Short: "Crawls a movie chart into a catalog and serves it over HTTP.",
		Long: `moviecrawler discovers title pages on a movie listing, extracts each
title's fields, and inserts every new title into the configured store.
The serve command exposes the stored catalog as a read-only JSON API.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), sessionKey, &session{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if s, err := resolveSession(cmd.Context()); err == nil {
				_ = s.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env vars use the MOVIECRAWL_ prefix)")
	cmd.AddCommand(newCrawlCmd(), newServeCmd())
	return cmd
}

func resolveSession(ctx context.Context) (*session, error) {
	s, ok := ctx.Value(sessionKey).(*session)
	if !ok || s == nil {
		return nil, errors.New("configuration not loaded")
	}
	return s, nil
}

// withApp opens the application services, runs fn and closes them again.
func withApp(cmd *cobra.Command, fn func(s *session, a *app.App) error) error {
	s, err := resolveSession(cmd.Context())
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		// Closing must still work after a signal canceled the command context.
		if cerr := a.Close(context.WithoutCancel(cmd.Context())); cerr != nil {
			s.logger.Warn("error closing application services", zap.Error(cerr))
		}
	}()
	return fn(s, a)
}
