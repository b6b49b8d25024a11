package main

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/itstheanurag/snipexec/internal/config"
)

var (
	configFlag   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "snipexec",
	Short: "snipexec - run untrusted code snippets in a sandbox",
	Long: `snipexec compiles and runs short programs in rs, cpp, hs, c, py, js, sh,
go and java inside a sandbox with a wall-clock budget, and returns their
output as a single bounded text.

Configuration is read from snipexec.yaml and SNIPEXEC_* environment variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to config file (default: ./snipexec.yaml, /etc/snipexec/snipexec.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "Log level (debug, info, warn, error)")
}

func newLogger(out io.Writer) (*zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(logLevelFlag)
	if err != nil {
		return nil, err
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(zerolog.ConsoleWriter{Out: out}).Level(level).With().Timestamp().Logger()
	return &logger, nil
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(configFlag)
}
