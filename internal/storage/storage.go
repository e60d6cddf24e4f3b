// Package storage archives metrics export snapshots.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when an export ID is not in the archive.
var ErrNotFound = errors.New("export not found")

// DefaultListLimit caps ListExports when no limit is given.
const DefaultListLimit = 50

// ExportRecord is one archived metrics export. Payload holds the full
// export document as produced by the collector.
type ExportRecord struct {
	ID            string          `json:"id"`
	CreatedAt     time.Time       `json:"createdAt"`
	TotalMessages int             `json:"totalMessages"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// ListOptions pages through archived exports, newest first.
type ListOptions struct {
	Limit  int
	Offset int
}

// Normalized returns opts with the default limit applied and negative
// offsets clamped.
func (o ListOptions) Normalized() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// ExportStore persists export snapshots.
type ExportStore interface {
	SaveExport(ctx context.Context, rec *ExportRecord) error
	GetExport(ctx context.Context, id string) (*ExportRecord, error)
	// ListExports returns records without their payload.
	ListExports(ctx context.Context, opts ListOptions) ([]*ExportRecord, error)
	Close() error
}
