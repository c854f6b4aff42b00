// Package gemini adapts the Google generative AI SDK to the planner's Client.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/algovids/algovids-agent/internal/logging"
	"github.com/algovids/algovids-agent/internal/planner"
)

// Client is a planner.Client backed by one genai.Client.
type Client struct {
	gc     *genai.Client
	logger *slog.Logger
}

// NewClientFactory returns a planner.ClientFactory that opens a Gemini client
// per credential.
func NewClientFactory(logger *slog.Logger, opts ...option.ClientOption) planner.ClientFactory {
	if logger == nil {
		logger = logging.Discard()
	}
	return func(ctx context.Context, credential string) (planner.Client, error) {
		// The cache client drops WithHTTPClient and authenticates with the key option.
		all := append([]option.ClientOption{
			option.WithAPIKey(credential),
			option.WithHTTPClient(newHTTPClient(credential, nil)),
		}, opts...)
		gc, err := genai.NewClient(ctx, all...)
		if err != nil {
			return nil, fmt.Errorf("gemini: new client: %w", classify(err))
		}
		return &Client{gc: gc, logger: logging.WithComponent(logger, "gemini")}, nil
	}
}

func (c *Client) Upload(ctx context.Context, path string) (*planner.Asset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gemini: open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	mimeType := MIMEType(path)
	file, err := c.gc.UploadFile(ctx, "", f, &genai.UploadFileOptions{
		DisplayName: filepath.Base(path),
		MIMEType:    mimeType,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: upload %s: %w", filepath.Base(path), classify(err))
	}

	c.logger.Info("uploaded asset",
		"file", filepath.Base(path),
		"asset", file.Name,
		"size", humanize.Bytes(uint64(size)),
		"mime", mimeType,
	)
	return toAsset(file), nil
}

func (c *Client) Get(ctx context.Context, name string) (*planner.Asset, error) {
	file, err := c.gc.GetFile(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("gemini: get %s: %w", name, classify(err))
	}
	return toAsset(file), nil
}

func (c *Client) Generate(ctx context.Context, req planner.GenerateRequest) (string, error) {
	model := c.gc.GenerativeModel(req.Model)
	model.SetTemperature(req.Temperature)
	model.ResponseMIMEType = req.ResponseMIMEType

	parts := make([]genai.Part, 0, len(req.Assets)+1)
	for _, a := range req.Assets {
		parts = append(parts, genai.FileData{MIMEType: a.MIMEType, URI: a.URI})
	}
	parts = append(parts, genai.Text(req.Prompt))

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini: generate: %w", classify(err))
	}
	return responseText(resp)
}

func (c *Client) Delete(ctx context.Context, name string) error {
	if err := c.gc.DeleteFile(ctx, name); err != nil {
		return fmt.Errorf("gemini: delete %s: %w", name, err)
	}
	c.logger.Debug("deleted asset", "asset", name)
	return nil
}

func (c *Client) Close() error {
	return c.gc.Close()
}

var errEmptyResponse = errors.New("gemini: response has no text")

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errEmptyResponse
	}
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		if sb.Len() > 0 {
			break
		}
	}
	if sb.Len() == 0 {
		return "", errEmptyResponse
	}
	return sb.String(), nil
}

func toAsset(f *genai.File) *planner.Asset {
	a := &planner.Asset{Name: f.Name, URI: f.URI, MIMEType: f.MIMEType}
	switch f.State {
	case genai.FileStateActive:
		a.State = planner.AssetActive
	case genai.FileStateFailed:
		a.State = planner.AssetFailed
	default:
		a.State = planner.AssetPending
	}
	return a
}

var fallbackMIME = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
}

// MIMEType guesses an upload MIME type from the file extension.
func MIMEType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := fallbackMIME[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return "application/octet-stream"
}
