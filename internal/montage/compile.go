package montage

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	VideoOutLabel = "outv"
	AudioOutLabel = "outa"
)

// MixSettings controls the 3-track audio mix.
type MixSettings struct {
	NarrationGain     float64
	SFXGain           float64
	BGMGain           float64
	DropoutTransition int // seconds
}

// DefaultMix: narration 5.0, sound effects 1.0, background music 0.1.
var DefaultMix = MixSettings{
	NarrationGain:     5.0,
	SFXGain:           1.0,
	BGMGain:           0.1,
	DropoutTransition: 2,
}

// Input is one media-processor input in the order the filter graph expects.
type Input struct {
	Path string
	// Loop makes the processor repeat the input indefinitely.
	Loop bool
}

// FilterGraph is the compiled expression together with the inputs and output
// labels it refers to.
type FilterGraph struct {
	Inputs     []Input
	Expression string
	VideoOut   string
	AudioOut   string
	Segments   int
}

// Compile builds the filter graph for plan over assets using DefaultMix.
func Compile(assets Assets, plan Plan) (*FilterGraph, error) {
	return CompileWithMix(assets, plan, DefaultMix)
}

// CompileWithMix trims each segment out of input 0, concatenates them in plan
// order and mixes narration (1), sfx (2) and looped bgm (3). The output is a
// pure function of its arguments.
func CompileWithMix(assets Assets, plan Plan, mix MixSettings) (*FilterGraph, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	inputs := make([]Input, 0, 4)
	for _, m := range assets.List() {
		p, err := normalize(m.Path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.Kind, err)
		}
		inputs = append(inputs, Input{Path: p, Loop: m.Kind == KindBGM})
	}

	var b strings.Builder
	for i, seg := range plan {
		fmt.Fprintf(&b, "[0:v]trim=start=%s:end=%s,setpts=PTS-STARTPTS[v%d];",
			formatSeconds(seg.Start), formatSeconds(seg.End), i)
	}
	for i := range plan {
		fmt.Fprintf(&b, "[v%d]", i)
	}
	fmt.Fprintf(&b, "concat=n=%d:v=1:a=0[%s];", len(plan), VideoOutLabel)

	fmt.Fprintf(&b, "[1:a]volume=%s[a_narr];", formatGain(mix.NarrationGain))
	fmt.Fprintf(&b, "[2:a]volume=%s[a_sfx];", formatGain(mix.SFXGain))
	fmt.Fprintf(&b, "[3:a]volume=%s[a_bgm];", formatGain(mix.BGMGain))
	fmt.Fprintf(&b, "[a_narr][a_sfx][a_bgm]amix=inputs=3:duration=first:dropout_transition=%d[%s]",
		mix.DropoutTransition, AudioOutLabel)

	return &FilterGraph{
		Inputs:     inputs,
		Expression: b.String(),
		VideoOut:   VideoOutLabel,
		AudioOut:   AudioOutLabel,
		Segments:   len(plan),
	}, nil
}

// formatSeconds renders the shortest exact decimal form: 2 -> "2", 5.25 -> "5.25".
func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatGain keeps one decimal for whole numbers (5 -> "5.0").
func formatGain(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
