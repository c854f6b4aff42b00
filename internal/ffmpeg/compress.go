package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

const (
	// ProxyHeight is the target height of the analysis proxy (480p).
	ProxyHeight = 480
	// ProxyVideoBitrate keeps the upload small enough for reliable analysis.
	ProxyVideoBitrate = "500k"
)

// argv is the simplest Invocation.
type argv struct {
	program string
	args    []string
}

func (a argv) Program() string     { return a.program }
func (a argv) Arguments() []string { return a.args }

// Compressor produces reduced, audio-less proxies of source videos.
type Compressor struct {
	binary string
	runner Runner
	logger *slog.Logger
}

func NewCompressor(binary string, runner Runner, logger *slog.Logger) *Compressor {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Compressor{binary: binary, runner: runner, logger: logger}
}

// ProxyArgs returns the argument vector that writes the proxy of src to dst.
func ProxyArgs(src, dst string) []string {
	return []string{
		"-y",
		"-i", src,
		"-vf", fmt.Sprintf("scale=-2:%d", ProxyHeight),
		"-b:v", ProxyVideoBitrate,
		"-an",
		dst,
	}
}

// Compress writes a 480p, audio-stripped proxy of src to dst, overwriting any
// existing file, and returns dst. A failed transcode is reported as an error
// and never leaves a usable-looking proxy behind.
func (c *Compressor) Compress(ctx context.Context, src, dst string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create proxy dir: %w", err)
	}

	c.logger.Info("compressing video for analysis", "source", filepath.Base(src), "proxy", filepath.Base(dst))

	res := c.runner.Run(ctx, argv{program: c.binary, args: ProxyArgs(src, dst)})
	if err := ResultError(res); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("compress %s: %w", filepath.Base(src), err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return "", fmt.Errorf("proxy not written: %w", err)
	}

	c.logger.Info("proxy ready",
		"size", humanize.Bytes(uint64(info.Size())),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return dst, nil
}
