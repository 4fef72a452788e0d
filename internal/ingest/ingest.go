// Package ingest turns uploaded log files into persisted normalized events.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/chinda73971177/soc/internal/normalize"
	"github.com/chinda73971177/soc/internal/store"
)

// DefaultMaxBytes bounds one uploaded file.
const DefaultMaxBytes = 50 * 1024 * 1024

// ErrTooLarge is returned when an upload exceeds the size bound.
var ErrTooLarge = errors.New("upload exceeds size limit")

// ErrUnsupportedType is returned for file extensions the normalizer does not
// handle.
var ErrUnsupportedType = errors.New("unsupported file type")

var allowedExtensions = map[string]bool{
	".log":  true,
	".txt":  true,
	".json": true,
	".csv":  true,
}

// Report summarizes one ingested upload.
type Report struct {
	Filename string `json:"filename"`
	Total    int    `json:"total_records"`
	Indexed  int    `json:"indexed"`
	Errors   int    `json:"errors"`
}

// Service ingests uploads: size check, lossy UTF-8 decode, normalization,
// persistence.
type Service struct {
	normalizer *normalize.Normalizer
	events     store.EventStore
	maxBytes   int64
	logger     *slog.Logger

	// OnIngest, when set, observes per-upload indexed and failed counts.
	OnIngest func(indexed, failed int)
}

// NewService creates an ingest service. A non-positive maxBytes uses
// DefaultMaxBytes.
func NewService(normalizer *normalize.Normalizer, events store.EventStore, maxBytes int64, logger *slog.Logger) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Service{normalizer: normalizer, events: events, maxBytes: maxBytes, logger: logger}
}

// Ingest reads one uploaded file and persists its normalized events.
// Undecodable bytes are replaced rather than rejected; a file that yields no
// records at all is an error.
func (s *Service) Ingest(ctx context.Context, filename string, r io.Reader) (*Report, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrTooLarge, s.maxBytes)
	}

	content := strings.ToValidUTF8(string(data), "�")
	events, err := s.normalizer.Normalize(content, filename)
	if err != nil {
		return nil, err
	}

	indexed, failed, err := s.events.InsertEvents(ctx, events)
	if err != nil {
		return nil, fmt.Errorf("failed to persist events: %w", err)
	}

	if s.OnIngest != nil {
		s.OnIngest(indexed, failed)
	}

	report := &Report{Filename: filename, Total: len(events), Indexed: indexed, Errors: failed}
	s.logger.Info("upload ingested",
		"filename", filename, "total", report.Total, "indexed", indexed, "errors", failed)
	return report, nil
}
