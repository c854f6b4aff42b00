package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/algovids/algovids-agent/internal/ffmpeg"
	"github.com/algovids/algovids-agent/internal/render"
	"github.com/algovids/algovids-agent/internal/translate"
)

// RenderService is the part of render.Service the API drives.
type RenderService interface {
	Render(ctx context.Context, req render.Request) (*render.Result, error)
	Get(ctx context.Context, id string) (*render.Record, error)
	List(ctx context.Context, limit int) ([]*render.Record, error)
	Delete(ctx context.Context, id string) error
}

// Translator is the part of translate.Service the API drives.
type Translator interface {
	Translate(ctx context.Context, req translate.Request) (*translate.Result, error)
}

// Prober reports media-processor availability.
type Prober interface {
	Get(ctx context.Context) ffmpeg.Availability
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Host              string
	Port              int
	Renders           RenderService
	Translator        Translator
	Probe             Prober
	DefaultCredential string
	Version           string
	Logger            *slog.Logger
	StartTime         time.Time
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}

	return &Server{
		httpServer: &http.Server{
			Addr:        fmt.Sprintf("%s:%d", host, cfg.Port),
			Handler:     router,
			ReadTimeout: 15 * time.Second,
			// Renders hold the connection for minutes.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
