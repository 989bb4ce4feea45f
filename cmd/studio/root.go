package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/scigo-studio/internal/config"
	"github.com/YuminosukeSato/scigo-studio/pkg/errors"
	"github.com/YuminosukeSato/scigo-studio/pkg/log"
)

var (
	configPath string
	logLevel   string

	cfg    config.Config
	logger log.Logger
)

var closeLogs = func() error { return nil }

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "studio",
	Short: "Upload a CSV, train a random forest, download the model",
	Long: `studio trains a random forest classifier on tabular data.

"studio serve" exposes upload, train and download over HTTP;
"studio train" runs the same pipeline once on a local file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
		}
		cfg = loaded

		level, err := log.ParseLevel(cfg.Log.Level)
		if err != nil {
			return errors.NewValidationError("log.level", err.Error(), cfg.Log.Level)
		}
		w, closer := log.NewWriter(log.OutputConfig{
			Format:     cfg.Log.Format,
			Console:    cmd.ErrOrStderr(),
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		})
		closeLogs = closer

		zl := log.NewZerologLogger(w, level)
		log.SetLogger(zl)
		log.SetupLogger(w, level)
		errors.SetZerologWarnFunc(zl.WarnFunc())
		logger = zl.With(log.ComponentKey, "cmd."+cmd.Name())
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLogs()
	},
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		_ = closeLogs()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
}
