package main

import (
	"github.com/spf13/cobra"

	"github.com/brunobiangulo/mmingest"
)

func newRecordsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "records",
		Short: "Print the records of a collection as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openIndex(opts)
			if err != nil {
				return err
			}
			defer e.Close()

			recs, err := e.Records(cmd.Context(), opts.collection)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), recs)
		},
	}
}

func newCollectionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List index collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openIndex(opts)
			if err != nil {
				return err
			}
			defer e.Close()

			cols, err := e.Collections(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), cols)
		},
	}
}

// openIndex opens an Engine for reading the index only; no hosted model is
// contacted.
func openIndex(opts *rootOptions) (*mmingest.Engine, error) {
	cfg := opts.cfg
	cfg.Offline = true
	return mmingest.New(cfg)
}
