// Package cmd provides CLI command implementations
package cmd

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/DecoyVal/pkg/config"
)

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "decoyval",
		Short: "DecoyVal - target/decoy validation of scored hits",
		Long: `DecoyVal validates scored target/decoy hit lists. It estimates the
posterior error probability of every score, builds the FDR, FNR and
confidence curves, and returns the score threshold meeting the requested
criterion for every category of hits.

Categories too sparse to be validated on their own are pooled into a
single "grouped" distribution.`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text or json")

	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newSummarizeCmd())
	return rootCmd
}

// loadConfig merges defaults, the --config file, DECOYVAL_* variables and
// the command's flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(config.DefaultSources(path, cmd.Flags())...)
}

// newLogger builds the command logger, writing to w.
func newLogger(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var out io.Writer = w
	if cfg.Format == "text" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func openInput(path string) (*os.File, error) {
	if path == "-" {
		return os.Stdin, nil
	}
	return os.Open(path)
}
