package montage

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/algovids/algovids-agent/internal/ffmpeg"
)

// OutputFilename is the name of the rendered file inside its render directory.
const OutputFilename = "final_output.mp4"

var normalize = ffmpeg.NormalizePath

// Mode records which strategy produced a command.
type Mode string

const (
	ModeMontage  Mode = "montage"
	ModeFallback Mode = "fallback"
)

// Encoder holds the fixed codec and container settings.
type Encoder struct {
	VideoCodec   string
	Preset       string
	PixelFormat  string
	AudioCodec   string
	AudioBitrate string
}

var DefaultEncoder = Encoder{
	VideoCodec:   "libx264",
	Preset:       "fast",
	PixelFormat:  "yuv420p",
	AudioCodec:   "aac",
	AudioBitrate: "192k",
}

// Command is a structured media-processor invocation. It is never passed
// through a shell; String exists for logs and the CLI only.
type Command struct {
	Binary string   `json:"program"`
	Args   []string `json:"args"`
	Mode   Mode     `json:"mode"`
	Output string   `json:"output"`
}

func (c *Command) Program() string     { return c.Binary }
func (c *Command) Arguments() []string { return c.Args }

// String renders the command in POSIX shell quoting.
func (c *Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, shellQuote(c.Binary))
	for _, a := range c.Args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

// Emitter builds render commands.
type Emitter struct {
	Binary  string
	Encoder Encoder
}

func NewEmitter(binary string) *Emitter {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Emitter{Binary: binary, Encoder: DefaultEncoder}
}

// Emit returns the full montage command when fg is non-nil, otherwise the
// two-input fallback. output is the destination file.
func (e *Emitter) Emit(fg *FilterGraph, assets Assets, output string) (*Command, error) {
	if fg == nil {
		return e.Fallback(assets, output)
	}
	return e.Montage(fg, output)
}

// Montage names all four inputs (bgm looped), applies the filter graph and
// maps its two outputs to the encoder.
func (e *Emitter) Montage(fg *FilterGraph, output string) (*Command, error) {
	if fg == nil || fg.Expression == "" {
		return nil, errors.New("filter graph is empty")
	}
	if len(fg.Inputs) != 4 {
		return nil, fmt.Errorf("filter graph expects 4 inputs, got %d", len(fg.Inputs))
	}
	out, err := normalize(output)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}

	args := []string{"-y"}
	for _, in := range fg.Inputs {
		if in.Loop {
			args = append(args, "-stream_loop", "-1")
		}
		args = append(args, "-i", in.Path)
	}
	args = append(args,
		"-filter_complex", fg.Expression,
		"-map", "["+fg.VideoOut+"]",
		"-map", "["+fg.AudioOut+"]",
		"-c:v", e.Encoder.VideoCodec,
		"-preset", e.Encoder.Preset,
		"-pix_fmt", e.Encoder.PixelFormat,
		"-c:a", e.Encoder.AudioCodec,
		"-b:a", e.Encoder.AudioBitrate,
		out,
	)

	return e.build(args, ModeMontage, out)
}

// Fallback uses only video and narration, re-encodes the video and stops at
// the shorter stream.
func (e *Emitter) Fallback(assets Assets, output string) (*Command, error) {
	video, err := normalize(assets.Video)
	if err != nil {
		return nil, fmt.Errorf("video: %w", err)
	}
	narration, err := normalize(assets.Narration)
	if err != nil {
		return nil, fmt.Errorf("narration: %w", err)
	}
	out, err := normalize(output)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}

	args := []string{
		"-y",
		"-i", video,
		"-i", narration,
		"-c:v", e.Encoder.VideoCodec,
		"-shortest",
		out,
	}
	return e.build(args, ModeFallback, out)
}

func (e *Emitter) build(args []string, mode Mode, out string) (*Command, error) {
	if strings.TrimSpace(e.Binary) == "" {
		return nil, errors.New("media processor binary is empty")
	}
	for _, a := range append([]string{e.Binary}, args...) {
		if strings.ContainsRune(a, 0) {
			return nil, fmt.Errorf("argument contains NUL byte: %q", a)
		}
	}
	if filepath.Ext(out) == "" {
		return nil, fmt.Errorf("output %q has no container extension", out)
	}
	return &Command{Binary: e.Binary, Args: args, Mode: mode, Output: out}, nil
}

// shellQuote wraps s in single quotes unless it only holds safe characters.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
			strings.ContainsRune("-_./:=,+@%", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
