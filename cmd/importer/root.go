package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/gobimport/internal/config"
	"github.com/JonMunkholm/gobimport/internal/logging"
)

// cli holds the state shared by the subcommands.
type cli struct {
	envFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:          "importer",
		Short:        "Import civic register datasets",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
	}
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(
		newImportCmd(c),
		newMutationsCmd(c),
		newServeCmd(c),
	)
	return root
}

func (c *cli) load() error {
	// A missing dotenv file is normal outside development.
	if err := godotenv.Load(c.envFile); err == nil {
		slog.Debug("loaded env file", "path", c.envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())

	c.cfg = cfg
	return nil
}
