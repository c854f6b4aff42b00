package api

import (
	"time"

	"github.com/algovids/algovids-agent/internal/ffmpeg"
	"github.com/algovids/algovids-agent/internal/montage"
	"github.com/algovids/algovids-agent/internal/render"
)

type HealthResponse struct {
	Status  string               `json:"status"`
	Version string               `json:"version"`
	UptimeS int64                `json:"uptime_s"`
	FFmpeg  *ffmpeg.Availability `json:"ffmpeg,omitempty"`
}

// GenerateVideoRequest names the four caller-owned input files.
type GenerateVideoRequest struct {
	VideoPath string `json:"video_path"`
	AudioPath string `json:"audio_path"`
	SFXPath   string `json:"sfx_path"`
	BGMPath   string `json:"bgm_path"`
}

func (r GenerateVideoRequest) Assets() montage.Assets {
	return montage.Assets{Video: r.VideoPath, Narration: r.AudioPath, SFX: r.SFXPath, BGM: r.BGMPath}
}

type GenerateVideoResponse struct {
	Message   string       `json:"message"`
	RenderID  string       `json:"render_id"`
	VideoPath string       `json:"video_path"`
	Mode      montage.Mode `json:"mode"`
	Segments  int          `json:"segments"`
}

type TranslateRequest struct {
	Text string `json:"text"`
}

type TranslateResponse struct {
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text"`
	Language       string `json:"language"`
}

type RenderResponse struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	Mode         string          `json:"mode,omitempty"`
	VideoPath    string          `json:"video_path"`
	AudioPath    string          `json:"audio_path"`
	SFXPath      string          `json:"sfx_path"`
	BGMPath      string          `json:"bgm_path"`
	Segments     []SegmentResult `json:"segments,omitempty"`
	SegmentCount int             `json:"segment_count"`
	PlanDuration float64         `json:"plan_duration_s"`
	OutputPath   string          `json:"output_path,omitempty"`
	Error        string          `json:"error,omitempty"`
	ElapsedMs    int64           `json:"elapsed_ms"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
}

type SegmentResult struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type RendersResponse struct {
	Renders []RenderResponse `json:"renders"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func RenderToResponse(r *render.Record) RenderResponse {
	resp := RenderResponse{
		ID:           r.ID,
		Status:       r.Status,
		Mode:         string(r.Mode),
		VideoPath:    r.Assets.Video,
		AudioPath:    r.Assets.Narration,
		SFXPath:      r.Assets.SFX,
		BGMPath:      r.Assets.BGM,
		SegmentCount: r.SegmentCount,
		PlanDuration: r.PlanDuration,
		OutputPath:   r.OutputPath,
		Error:        r.Error,
		ElapsedMs:    r.ElapsedMs,
		CreatedAt:    r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    r.UpdatedAt.Format(time.RFC3339),
	}
	for _, s := range r.Plan {
		resp.Segments = append(resp.Segments, SegmentResult{Start: s.Start, End: s.End})
	}
	return resp
}
