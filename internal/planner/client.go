package planner

import (
	"context"
	"errors"
)

// ErrServiceOverloaded marks a transient overload reported by the AI service.
// Client implementations wrap it so the planner can back off and retry.
var ErrServiceOverloaded = errors.New("ai service overloaded")

// AssetState is the processing state of an uploaded asset.
type AssetState int

const (
	AssetPending AssetState = iota
	AssetActive
	AssetFailed
)

func (s AssetState) String() string {
	switch s {
	case AssetActive:
		return "active"
	case AssetFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Asset is a handle to a file held in the AI service's asset store.
type Asset struct {
	Name     string
	URI      string
	MIMEType string
	State    AssetState
}

// GenerateRequest is one structured generation call. Content order is
// Assets (in order) followed by Prompt.
type GenerateRequest struct {
	Model            string
	Assets           []*Asset
	Prompt           string
	Temperature      float32
	ResponseMIMEType string
}

// Client is the AI service boundary used by the planner.
type Client interface {
	Upload(ctx context.Context, path string) (*Asset, error)
	Get(ctx context.Context, name string) (*Asset, error)
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	Delete(ctx context.Context, name string) error
	Close() error
}

// ClientFactory opens a Client for one resolved credential.
type ClientFactory func(ctx context.Context, credential string) (Client, error)
