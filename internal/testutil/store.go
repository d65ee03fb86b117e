package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/braid/internal/model"
	"github.com/roach88/braid/internal/store"
)

// NewStore opens a SQLite store in t.TempDir() with sequential ids
// ("inv-1", "inv-2", ...) and a StepClock. Closed on test cleanup.
func NewStore(t testing.TB, opts ...store.Option) *store.Store {
	t.Helper()
	base := []store.Option{
		store.WithIDGenerator(store.NewSequenceGenerator("inv")),
		store.WithClock(NewStepClock(0).Now),
	}
	s, err := store.Open(filepath.Join(t.TempDir(), "braid.db"), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Graph creates records and edges by name for compact test setup.
type Graph struct {
	t     testing.TB
	store *store.Store
	ids   map[string]int64
}

// NewGraph creates an empty graph builder over s.
func NewGraph(t testing.TB, s *store.Store) *Graph {
	return &Graph{t: t, store: s, ids: make(map[string]int64)}
}

// Record creates a record with the given name and kind and remembers its id.
func (g *Graph) Record(name string, kind model.Kind) model.Record {
	g.t.Helper()
	rec, err := g.store.CreateRecord(context.Background(), nil, model.Record{Name: name, Kind: kind})
	require.NoError(g.t, err)
	g.ids[name] = rec.ID
	return rec
}

// Chain creates records named names (kind data) linked in order:
// names[0] -> names[1] -> ... Existing names are reused.
func (g *Graph) Chain(names ...string) {
	g.t.Helper()
	for i, name := range names {
		if _, ok := g.ids[name]; !ok {
			g.Record(name, model.KindData)
		}
		if i > 0 {
			g.Edge(names[i-1], name)
		}
	}
}

// Edge links two named records, predecessor first.
func (g *Graph) Edge(from, to string) {
	g.t.Helper()
	_, err := g.store.AddDerivation(context.Background(), nil, g.ID(from), g.ID(to))
	require.NoError(g.t, err)
}

// ID returns the id of a named record.
func (g *Graph) ID(name string) int64 {
	g.t.Helper()
	id, ok := g.ids[name]
	require.True(g.t, ok, "no record named %q", name)
	return id
}

// Get re-reads a named record.
func (g *Graph) Get(name string) model.Record {
	g.t.Helper()
	rec, found, err := g.store.GetRecord(context.Background(), nil, g.ID(name))
	require.NoError(g.t, err)
	require.True(g.t, found)
	return rec
}
