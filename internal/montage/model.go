// Package montage turns a narration-aligned segment plan into the media
// processor invocation that assembles the final cut.
package montage

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
)

// MaxSegments bounds a plan so its filter expression stays far below the
// per-argument limit of exec (128 KiB on Linux).
const MaxSegments = 500

var (
	ErrEmptyPlan       = errors.New("segment plan is empty")
	ErrInvalidSegment  = errors.New("invalid segment")
	ErrTooManySegments = errors.New("segment plan is too long")
)

// AssetKind identifies the role a file plays in a render.
type AssetKind string

const (
	KindVideo     AssetKind = "video"
	KindNarration AssetKind = "narration"
	KindSFX       AssetKind = "sfx"
	KindBGM       AssetKind = "bgm"
)

// MediaAsset is a caller-owned file on disk. The render core only reads it.
type MediaAsset struct {
	Path string    `json:"path"`
	Kind AssetKind `json:"kind"`
}

// Assets bundles the four inputs of a render.
type Assets struct {
	Video     string `json:"video_path" yaml:"video"`
	Narration string `json:"audio_path" yaml:"narration"`
	SFX       string `json:"sfx_path" yaml:"sfx"`
	BGM       string `json:"bgm_path" yaml:"bgm"`
}

// List returns the assets in input order: video, narration, sfx, bgm.
func (a Assets) List() []MediaAsset {
	return []MediaAsset{
		{Path: a.Video, Kind: KindVideo},
		{Path: a.Narration, Kind: KindNarration},
		{Path: a.SFX, Kind: KindSFX},
		{Path: a.BGM, Kind: KindBGM},
	}
}

// Missing returns the kinds whose path is empty.
func (a Assets) Missing() []AssetKind {
	var missing []AssetKind
	for _, m := range a.List() {
		if strings.TrimSpace(m.Path) == "" {
			missing = append(missing, m.Kind)
		}
	}
	return missing
}

// CheckExist stats every asset and reports the first one that is absent or a directory.
func (a Assets) CheckExist() error {
	for _, m := range a.List() {
		info, err := os.Stat(m.Path)
		if err != nil {
			return fmt.Errorf("%s file not found: %s", m.Kind, m.Path)
		}
		if info.IsDir() {
			return fmt.Errorf("%s path is a directory: %s", m.Kind, m.Path)
		}
	}
	return nil
}

// Segment is one [Start, End) range of the source video, in seconds.
type Segment struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
}

// Duration returns End-Start.
func (s Segment) Duration() float64 { return s.End - s.Start }

// Validate enforces 0 <= Start < End with finite bounds.
func (s Segment) Validate() error {
	if math.IsNaN(s.Start) || math.IsNaN(s.End) || math.IsInf(s.Start, 0) || math.IsInf(s.End, 0) {
		return fmt.Errorf("%w: non-finite bound", ErrInvalidSegment)
	}
	if s.Start < 0 {
		return fmt.Errorf("%w: start %v is negative", ErrInvalidSegment, s.Start)
	}
	if s.End <= s.Start {
		return fmt.Errorf("%w: end %v must be greater than start %v", ErrInvalidSegment, s.End, s.Start)
	}
	return nil
}

// Plan is an ordered sequence of segments in playback order.
type Plan []Segment

// Validate rejects empty or oversized plans and plans with any invalid segment.
func (p Plan) Validate() error {
	if len(p) == 0 {
		return ErrEmptyPlan
	}
	if len(p) > MaxSegments {
		return fmt.Errorf("%w: %d segments, limit %d", ErrTooManySegments, len(p), MaxSegments)
	}
	for i, s := range p {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
	}
	return nil
}

// TotalDuration is the length of the assembled cut in seconds.
func (p Plan) TotalDuration() float64 {
	var total float64
	for _, s := range p {
		total += s.Duration()
	}
	return total
}

// Clone returns a copy so callers cannot mutate a returned plan.
func (p Plan) Clone() Plan {
	if p == nil {
		return nil
	}
	out := make(Plan, len(p))
	copy(out, p)
	return out
}
