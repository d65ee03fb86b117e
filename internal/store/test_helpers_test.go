package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/braid/internal/model"
)

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// createTestStore creates a new file-backed store in a temp dir with
// deterministic ids and a fixed clock.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	base := []Option{
		WithIDGenerator(NewSequenceGenerator("inv")),
		WithClock(func() time.Time { return testEpoch }),
	}
	s, err := Open(path, append(base, opts...)...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mustRecord creates a record of the given kind.
func mustRecord(t *testing.T, s *Store, name string, kind model.Kind) model.Record {
	t.Helper()
	rec, err := s.CreateRecord(context.Background(), nil, model.Record{Name: name, Kind: kind})
	require.NoError(t, err)
	return rec
}
