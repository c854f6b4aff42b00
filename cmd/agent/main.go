package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/algovids/algovids-agent/internal/config"
	"github.com/algovids/algovids-agent/internal/db"
	"github.com/algovids/algovids-agent/internal/ffmpeg"
	"github.com/algovids/algovids-agent/internal/gemini"
	"github.com/algovids/algovids-agent/internal/logging"
	"github.com/algovids/algovids-agent/internal/montage"
	"github.com/algovids/algovids-agent/internal/planner"
	"github.com/algovids/algovids-agent/internal/render"
	"github.com/algovids/algovids-agent/internal/translate"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:           "agent",
	Short:         "AI-assisted short-form video montage agent",
	Version:       fmt.Sprintf("%s (%s, %s)", config.Version, config.GitCommit, config.BuildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file seeding the environment")
	rootCmd.AddCommand(serveCmd, renderCmd, compileCmd, translateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app is the wired render stack shared by serve and render.
type app struct {
	cfg        config.Config
	logger     *slog.Logger
	database   *db.DB
	renders    *render.Service
	translator *translate.Service
	probe      *ffmpeg.CachedProbe
}

func newApp() (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	runner := ffmpeg.NewExecRunner(logger)
	compressor := ffmpeg.NewCompressor(cfg.FFmpegPath(), runner, logger)

	plannerCfg := planner.DefaultConfig(logging.WithComponent(logger, "planner"))
	plannerCfg.Model = cfg.Model()
	plannerCfg.ReadyTimeout = cfg.ReadyTimeout()
	clients := gemini.NewClientFactory(logger)
	segmentPlanner := planner.New(plannerCfg, clients)

	renders := render.NewService(
		render.NewRepository(database.Conn()),
		compressor,
		segmentPlanner,
		montage.NewEmitter(cfg.FFmpegPath()),
		runner,
		render.Options{
			WorkDir:       cfg.WorkDir(),
			MaxConcurrent: cfg.MaxRenders(),
			RenderTimeout: cfg.RenderTimeout(),
		},
		logger,
	)

	return &app{
		cfg:        cfg,
		logger:     logger,
		database:   database,
		renders:    renders,
		translator: translate.NewService(clients, cfg.Model(), logger),
		probe:      ffmpeg.NewCachedProbe(cfg.FFmpegPath(), logger),
	}, nil
}

func (a *app) Close() error {
	return a.database.Close()
}
