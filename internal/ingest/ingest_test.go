package ingest

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chinda73971177/soc/internal/normalize"
	"github.com/chinda73971177/soc/internal/store"
)

func newService(t *testing.T, maxBytes int64) (*Service, *store.MemoryStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := store.NewMemoryStore(0)
	return NewService(normalize.New(logger), mem, maxBytes, logger), mem
}

func TestIngestSyslogUpload(t *testing.T) {
	s, mem := newService(t, 0)

	content := "Jan 15 10:30:00 web01 sshd[1234]: Failed password for root\n" +
		"Jan 15 10:30:05 web01 sshd[1234]: error: maximum authentication attempts exceeded\n"
	report, err := s.Ingest(context.Background(), "auth.log", strings.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, "auth.log", report.Filename)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Indexed)
	assert.Zero(t, report.Errors)
	assert.Len(t, mem.Events(), 2)
}

func TestIngestJSONUpload(t *testing.T) {
	s, _ := newService(t, 0)

	content := `[{"message":"disk warning","host":"db01","severity":"medium"}]`
	report, err := s.Ingest(context.Background(), "events.json", strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
}

func TestIngestRejectsUnsupportedExtension(t *testing.T) {
	s, _ := newService(t, 0)
	_, err := s.Ingest(context.Background(), "dump.pcap", strings.NewReader("data"))
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestIngestRejectsOversizedUpload(t *testing.T) {
	s, _ := newService(t, 16)
	_, err := s.Ingest(context.Background(), "big.log", strings.NewReader(strings.Repeat("x", 64)))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestIngestEmptyFileIsAnError(t *testing.T) {
	s, _ := newService(t, 0)
	_, err := s.Ingest(context.Background(), "empty.log", strings.NewReader("   \n  \n"))
	assert.ErrorIs(t, err, normalize.ErrNoRecords)
}

func TestIngestReplacesInvalidUTF8(t *testing.T) {
	s, mem := newService(t, 0)

	content := "plain line with bad byte \xff here\n"
	report, err := s.Ingest(context.Background(), "mixed.log", strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)

	events := mem.Events()
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Message, "�")
}
