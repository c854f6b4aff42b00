package render

import (
	"time"

	"github.com/google/uuid"

	"github.com/algovids/algovids-agent/internal/montage"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Record is one render as kept in history.
type Record struct {
	ID           string         `json:"id"`
	Status       string         `json:"status"`
	Mode         montage.Mode   `json:"mode,omitempty"`
	Assets       montage.Assets `json:"assets"`
	Plan         montage.Plan   `json:"plan,omitempty"`
	SegmentCount int            `json:"segment_count"`
	PlanDuration float64        `json:"plan_duration"`
	OutputPath   string         `json:"output_path,omitempty"`
	Error        string         `json:"error,omitempty"`
	ElapsedMs    int64          `json:"elapsed_ms"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// IsTerminal reports whether the render has finished, successfully or not.
func (r *Record) IsTerminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

func NewID() string {
	return uuid.NewString()
}
