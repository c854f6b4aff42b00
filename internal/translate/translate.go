// Package translate rewrites narration text into another language using the
// same generative service the planner talks to.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/algovids/algovids-agent/internal/logging"
	"github.com/algovids/algovids-agent/internal/planner"
)

const (
	DefaultLanguage = "Hindi"

	textMIMEType = "text/plain"
)

var (
	ErrEmptyText         = errors.New("text is required")
	ErrMissingCredential = planner.ErrMissingCredential
)

type Request struct {
	Text       string
	Language   string
	Credential string
}

type Result struct {
	Original   string
	Translated string
	Language   string
}

// Service runs one deterministic text generation per translation.
type Service struct {
	newClient planner.ClientFactory
	model     string
	logger    *slog.Logger
}

func NewService(factory planner.ClientFactory, model string, logger *slog.Logger) *Service {
	if model == "" {
		model = planner.DefaultModel
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{newClient: factory, model: model, logger: logging.WithComponent(logger, "translate")}
}

func (s *Service) Translate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	if strings.TrimSpace(req.Credential) == "" {
		return nil, ErrMissingCredential
	}
	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = DefaultLanguage
	}

	client, err := s.newClient(ctx, req.Credential)
	if err != nil {
		return nil, fmt.Errorf("open ai client: %w", err)
	}
	defer client.Close()

	body, err := client.Generate(ctx, planner.GenerateRequest{
		Model:            s.model,
		Prompt:           Prompt(language, req.Text),
		Temperature:      0,
		ResponseMIMEType: textMIMEType,
	})
	if err != nil {
		return nil, fmt.Errorf("generate translation: %w", err)
	}

	translated := strings.TrimSpace(body)
	if translated == "" {
		return nil, errors.New("generate translation: empty response")
	}

	s.logger.Info("text translated", "language", language, "chars_in", len([]rune(req.Text)), "chars_out", len([]rune(translated)))
	return &Result{Original: req.Text, Translated: translated, Language: language}, nil
}

// Prompt asks for the bare translation of text.
func Prompt(language, text string) string {
	return fmt.Sprintf("Translate the following text to %s. Only return the translated text without any additional explanation or comments:\n\n%s", language, text)
}
