package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func newMutationsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mutations",
		Short: "Inspect mutation fed collections",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "state <dataset>",
		Short: "Show the last import of a collection and whether the next file is available",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, c.cfg)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			ds, err := a.service.LoadDataset(args[0])
			if err != nil {
				return err
			}
			last, next, err := a.mutations.State(ctx, ds.Catalogue, ds.Entity, ds.Source.Application)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"last": last, "haveNext": next})
		},
	})
	return cmd
}
