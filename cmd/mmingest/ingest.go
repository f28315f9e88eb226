package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/mmingest"
)

type ingestFlags struct {
	noIndex bool
	rebuild bool
}

func (f *ingestFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.noIndex, "no-index", false, "print records as JSON instead of indexing them")
	cmd.Flags().BoolVar(&f.rebuild, "rebuild", false, "empty the collection before indexing")
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	flags := &ingestFlags{}
	cmd := &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Ingest one or more files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, opts, flags, func(e *mmingest.Engine, iopts []mmingest.IngestOption) (*mmingest.Result, error) {
				return e.Ingest(cmd.Context(), args, iopts...)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newIngestDirCmd(opts *rootOptions) *cobra.Command {
	flags := &ingestFlags{}
	cmd := &cobra.Command{
		Use:   "ingest-dir DIR",
		Short: "Ingest every regular file of a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, opts, flags, func(e *mmingest.Engine, iopts []mmingest.IngestOption) (*mmingest.Result, error) {
				return e.IngestDir(cmd.Context(), args[0], iopts...)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

type ingestFunc func(*mmingest.Engine, []mmingest.IngestOption) (*mmingest.Result, error)

func runIngest(cmd *cobra.Command, opts *rootOptions, flags *ingestFlags, run ingestFunc) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()
	cmd.SetContext(ctx)

	var engineOpts []mmingest.Option
	if flags.noIndex {
		engineOpts = append(engineOpts, mmingest.WithoutIndex())
	}
	e, err := mmingest.New(opts.cfg, engineOpts...)
	if err != nil {
		return err
	}
	defer e.Close()

	ingestOpts := []mmingest.IngestOption{mmingest.WithCollection(opts.collection)}
	if flags.rebuild {
		ingestOpts = append(ingestOpts, mmingest.WithRebuild())
	}

	res, err := run(e, ingestOpts)
	if err != nil {
		return err
	}
	for _, fe := range res.Errors {
		slog.Error("ingest: file failed", "path", fe.Path, "error", fe.Err)
	}

	out := cmd.OutOrStdout()
	if flags.noIndex {
		return writeJSON(out, res.Records)
	}
	fmt.Fprintf(out, "run %s: %d records, %d nodes into %q (%d files failed), artifacts in %s\n",
		res.RunID, len(res.Records), res.Nodes, res.Collection, len(res.Errors), res.Dir)
	return nil
}
