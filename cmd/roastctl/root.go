package main

import (
	"roast-machine/internal/app"
	"roast-machine/internal/config"
	"roast-machine/pkg/logger"

	"github.com/spf13/cobra"
)

type cli struct {
	verbose bool
	app     *app.App
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "roastctl",
		Short:         "Roast Machine maintenance tool",
		Long:          `roastctl generates, inspects and shares jokes using the same configuration as the server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.app != nil {
				c.app.Close()
			}
		},
	}

	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		c.generateCmd(),
		c.listCmd(),
		c.showCmd(),
		c.shareCmd(),
		c.statsCmd(),
	)

	return root
}

// setup loads configuration without the serving checks so commands that never
// call the model still work without MODEL_BASE_URL.
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Read()
	if err != nil {
		return err
	}

	level := "warn"
	if c.verbose {
		level = "debug"
	}
	logger.Init(level, logger.Console(cmd.ErrOrStderr()))

	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	c.app = a

	return nil
}
