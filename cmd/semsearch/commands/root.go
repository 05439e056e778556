// Package commands implements the semsearch command line.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCmd creates the root command. Without a subcommand it starts the TUI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "semsearch [files...]",
		Short: "Semantic text search over an embedded document collection",
		Long: `semsearch embeds short texts into vectors, keeps them in a vector store
and ranks them by cosine similarity to a natural-language query.

Running it without a subcommand opens the interactive search UI. Any .txt
files given as arguments are chunked and added before the UI starts.

Configuration is read from --config, ./semsearch.yaml or
~/.config/semsearch/config.yaml (created with defaults on first run).
A .env file in the working directory is loaded for API keys.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts, args)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	cmd.AddCommand(
		NewTUICmd(opts),
		NewSearchCmd(opts),
		NewAddCmd(opts),
		NewMCPCmd(opts),
		NewVersionCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
