package route

import (
	"context"
	"fmt"
	"os"
)

// FileProvider serves a fixed GeoJSON payload from disk for every request.
// Used for demos and the simulator.
type FileProvider struct {
	path string
}

// NewFileProvider checks path is readable and returns a provider for it.
func NewFileProvider(path string) (*FileProvider, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("route: %w", err)
	}
	return &FileProvider{path: path}, nil
}

// Name implements Provider.
func (p *FileProvider) Name() string {
	return "file"
}

// Fetch implements Provider.
func (p *FileProvider) Fetch(ctx context.Context, _ Request) (Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, WrapError(p.Name(), err)
	}
	return data, nil
}
