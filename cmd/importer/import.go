package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/gobimport/internal/importer"
	"github.com/JonMunkholm/gobimport/internal/mutations"
)

func newImportCmd(c *cli) *cobra.Command {
	var (
		useMutations bool
		wait         bool
		mode         string
	)

	cmd := &cobra.Command{
		Use:   "import <dataset>",
		Short: "Run the import of a dataset definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if wait && !useMutations {
				return errors.New("--wait requires --mutations")
			}
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

			var msg *importer.Message
			switch {
			case wait:
				msg, err = a.mutations.WaitForNext(ctx, ds, importer.NewWaitBackOff(c.cfg.Mutations.WaitMax))
			case useMutations:
				msg, err = a.mutations.Run(ctx, ds)
			default:
				msg, err = a.client.Run(ctx, ds, mutations.Mode(mode))
			}
			if msg != nil {
				slog.Info("import summary",
					"process_id", msg.Header.ProcessID,
					"contents", msg.ContentsRef,
					"summary", msg.Summary,
				)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&useMutations, "mutations", false, "import the next file of a mutation fed source")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the next mutation file to be published")
	cmd.Flags().StringVar(&mode, "mode", string(mutations.ModeFull), "import mode written to the message header")
	return cmd
}
