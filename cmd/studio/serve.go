package main

import (
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/scigo-studio/internal/history"
	"github.com/YuminosukeSato/scigo-studio/internal/httpapi"
	"github.com/YuminosukeSato/scigo-studio/internal/studio"
	"github.com/YuminosukeSato/scigo-studio/pkg/errors"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve upload, train and download over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAddr != "" {
			host, port, err := net.SplitHostPort(serveAddr)
			if err != nil {
				return errors.NewValidationError("addr", err.Error(), serveAddr)
			}
			p, err := strconv.Atoi(port)
			if err != nil {
				return errors.NewValidationError("addr", "port must be a number", serveAddr)
			}
			cfg.Server.Host, cfg.Server.Port = host, p
		}

		sessionOpts := []studio.SessionOption{
			studio.WithLogger(logger),
			studio.WithDefaults(trainDefaults()),
		}
		var apiOpts []httpapi.Option
		if cfg.History.Enabled {
			store, err := history.Open(cfg.History.Path)
			if err != nil {
				return err
			}
			defer store.Close()
			sessionOpts = append(sessionOpts, studio.WithRunRecorder(store))
			apiOpts = append(apiOpts, httpapi.WithHistory(store))
		}
		apiOpts = append(apiOpts, httpapi.WithLogger(logger))

		server := httpapi.NewServer(cfg.Server, studio.NewSession(sessionOpts...), apiOpts...)

		errCh := make(chan error, 1)
		go func() { errCh <- server.Start() }()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(stop)

		select {
		case err := <-errCh:
			return err
		case sig := <-stop:
			logger.Info("Received signal", "signal", sig.String())
		}
		if err := server.Stop(); err != nil {
			return err
		}
		return <-errCh
	},
}

func trainDefaults() studio.TrainOptions {
	return studio.TrainOptions{
		TargetColumn: cfg.Training.TargetColumn,
		TestSize:     cfg.Training.TestSize,
		Seed:         cfg.Training.Seed,
		NEstimators:  cfg.Training.NEstimators,
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address host:port (default from config, 0.0.0.0:8000)")
	rootCmd.AddCommand(serveCmd)
}
