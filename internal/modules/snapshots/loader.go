// Package snapshots loads portfolio snapshots from JSON or YAML documents.
package snapshots

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/aristath/tierfolio/internal/domain"
)

// Format is a snapshot document encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension. Unknown extensions are JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// FormatFromContentType picks the format from an HTTP Content-Type header
func FormatFromContentType(contentType string) Format {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "yaml") {
		return FormatYAML
	}
	return FormatJSON
}

// Parse decodes a snapshot. Unknown JSON fields are rejected so that typos in
// field names do not silently zero a value.
func Parse(data []byte, format Format) (*domain.Snapshot, error) {
	var snapshot domain.Snapshot

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&snapshot); err != nil {
			return nil, fmt.Errorf("failed to parse YAML snapshot: %w", err)
		}
	case FormatJSON, "":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&snapshot); err != nil {
			return nil, fmt.Errorf("failed to parse JSON snapshot: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported snapshot format: %s", format)
	}

	if snapshot.Currency == "" {
		snapshot.Currency = domain.CurrencyEUR
	}
	return &snapshot, nil
}

// FileProvider reads the snapshot from a file on every call
type FileProvider struct {
	path string
	log  zerolog.Logger
}

// NewFileProvider creates a provider for the snapshot file at path
func NewFileProvider(path string, log zerolog.Logger) *FileProvider {
	return &FileProvider{
		path: path,
		log:  log.With().Str("component", "snapshot_file").Logger(),
	}
}

// Path returns the snapshot file path
func (p *FileProvider) Path() string {
	return p.path
}

// LoadSnapshot implements domain.SnapshotProvider
func (p *FileProvider) LoadSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	snapshot, err := Parse(data, FormatFromPath(p.path))
	if err != nil {
		return nil, err
	}

	p.log.Debug().
		Str("path", p.path).
		Int("holdings", len(snapshot.Holdings)).
		Msg("Loaded snapshot")

	return snapshot, nil
}
