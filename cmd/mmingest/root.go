package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/mmingest"
)

type rootOptions struct {
	configPath string
	collection string
	offline    bool
	cfg        mmingest.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "mmingest",
		Short: "Decompose documents into content records and index them",
		Long: `mmingest splits PDFs, slide decks, images, spreadsheets and text files
into content records (text blocks, tables, images and slides), exports the
extracted tables and images next to them, and indexes the records into a
named SQLite collection.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := mmingest.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("offline") {
				cfg.Offline = opts.offline
			}
			if opts.collection == "" {
				opts.collection = cfg.Collection
			}
			opts.cfg = cfg
			setupLogging(cmd.ErrOrStderr(), cfg.LogLevel)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (YAML or JSON)")
	root.PersistentFlags().StringVar(&opts.collection, "collection", "", "index collection (default from config)")
	root.PersistentFlags().BoolVar(&opts.offline, "offline", false, "skip hosted description and embedding models")

	root.AddCommand(
		newIngestCmd(opts),
		newIngestDirCmd(opts),
		newRecordsCmd(opts),
		newCollectionsCmd(opts),
	)
	return root
}

// setupLogging installs the structured JSON logger.
func setupLogging(w io.Writer, level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
	})))
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
