package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/algovids/algovids-agent/internal/api"
	"github.com/algovids/algovids-agent/internal/config"
)

var serveHost string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		startTime := time.Now()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		a.logger.Info("starting algovids agent",
			"version", config.Version,
			"data_dir", a.cfg.DataDir(),
			"work_dir", a.cfg.WorkDir(),
			"model", a.cfg.Model(),
			"max_renders", a.cfg.MaxRenders(),
		)

		probeCtx, probeCancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		if avail := a.probe.Get(probeCtx); !avail.Available {
			a.logger.Warn("media processor unavailable, renders will fail", "error", avail.Error)
		}
		probeCancel()

		if a.cfg.DefaultCredential() == "" {
			a.logger.Warn("no default AI credential configured; requests must send " + api.CredentialHeader)
		}

		apiServer := api.NewServer(api.ServerConfig{
			Host:              serveHost,
			Port:              a.cfg.Port(),
			Renders:           a.renders,
			Translator:        a.translator,
			Probe:             a.probe,
			DefaultCredential: a.cfg.DefaultCredential(),
			Version:           config.Version,
			Logger:            a.logger,
			StartTime:         startTime,
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- apiServer.Start()
		}()

		fmt.Printf("\n  Algovids agent %s listening on http://%s\n\n", config.Version, apiServer.Addr())

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			a.logger.Info("received shutdown signal", "signal", sig)
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("HTTP server error: %w", err)
			}
		}

		a.logger.Info("initiating graceful shutdown")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("failed to shutdown HTTP server", "error", err)
		}

		a.logger.Info("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "interface to bind")
}
