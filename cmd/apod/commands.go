package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"apod_fetcher/internal/config"
	"apod_fetcher/internal/domain"
	"apod_fetcher/internal/publisher"
	"apod_fetcher/internal/scheduler"
)

// app carries what every subcommand needs once the config is loaded.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "apod",
		Short:         "Fetch the Astronomy Picture of the Day, with an offline cache",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = setupLogger(cmd.ErrOrStderr(), cfg.LogLevel)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "config.yaml", "path to config file")

	root.AddCommand(
		a.fetchCmd(),
		a.lastGoodCmd(),
		a.watchCmd(),
		a.pruneCmd(),
	)
	return root
}

func (a *app) fetchCmd() *cobra.Command {
	var dateStr, out string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the resource for a date (latest by default), falling back to the last good one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var date *time.Time
			if dateStr != "" {
				d, err := domain.ParseDate(dateStr)
				if err != nil {
					return err
				}
				date = &d
			}

			svc, closeFn, err := a.fetchService()
			if err != nil {
				return err
			}
			defer closeFn()

			res, media, err := svc.Fetch(cmd.Context(), date)
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), res, media, out)
		},
	}
	cmd.Flags().StringVar(&dateStr, "date", "", "resource date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the media bytes to this file")
	return cmd
}

func (a *app) lastGoodCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "last-good",
		Short: "Show the last successfully loaded resource",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeFn, err := a.fetchService()
			if err != nil {
				return err
			}
			defer closeFn()

			res, media, err := svc.FetchLastGood(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), res, media, out)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the media bytes to this file")
	return cmd
}

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Refresh the latest resource periodically until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeFn, err := a.fetchService()
			if err != nil {
				return err
			}
			defer closeFn()

			a.logger.Info("starting refresher",
				"cache", a.cfg.Cache.Driver,
				"interval", a.cfg.Refresh.Interval,
			)
			return scheduler.NewScheduler(svc, a.cfg.Refresh.Interval, a.cfg.Refresh.Timeout, a.logger).
				Start(cmd.Context())
		},
	}
}

func (a *app) pruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove every cached resource except the last good one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeStore, err := a.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			ctx := cmd.Context()
			var keep []time.Time
			if date, ok := store.ReadLastGoodDate(ctx); ok {
				keep = append(keep, date)
			}

			removed, err := store.Prune(ctx, keep)
			if err != nil {
				return fmt.Errorf("prune cache: %w", err)
			}
			a.logger.Info("pruned cache", "removed", removed, "kept", len(keep))
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d cached resource(s)\n", removed)
			return nil
		},
	}
}

// emit optionally saves the media and prints the resource as JSON,
// indented when stdout is a terminal.
func (a *app) emit(w io.Writer, res *domain.Resource, media []byte, out string) error {
	if out != "" {
		if err := os.WriteFile(out, media, 0o644); err != nil {
			return fmt.Errorf("write media: %w", err)
		}
		a.logger.Info("wrote media", "path", out, "bytes", len(media))
	}

	enc := json.NewEncoder(w)
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(publisher.NewResourceMessage(res))
}

func setupLogger(w io.Writer, level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel}))
}
