package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/stretchr/testify/require"

	"rdfchain/pkg/rdf"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return Open(dbm.NewMemDB(), 8)
}

func sampleGraph() *rdf.Graph {
	g := rdf.NewGraph()
	g.Add(rdf.Triple{
		Subject:   rdf.IRI("http://example.org/widget1"),
		Predicate: rdf.IRI("http://example.org/hasBatch"),
		Object:    rdf.NewStringLiteral("batch-42"),
	})
	return g
}

func TestStore_AddThenQueryRoundTrips(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddGraph("urn:block:1", sampleGraph()))

	g, ok, err := s.Query("urn:block:1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, g.Len())
}

func TestStore_QueryMissingGraphReturnsFalse(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.Query("urn:block:999")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_RemoveGraphDeletesIt(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddGraph("urn:block:1", sampleGraph()))
	require.NoError(t, s.RemoveGraph("urn:block:1"))

	_, ok, err := s.Query("urn:block:1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_NamedGraphsSorted(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddGraph("urn:block:2", sampleGraph()))
	require.NoError(t, s.AddGraph("urn:block:10", sampleGraph()))
	require.NoError(t, s.AddGraph("urn:block:1", sampleGraph()))

	names, err := s.NamedGraphs()
	require.NoError(t, err)
	require.Equal(t, []string{"urn:block:1", "urn:block:10", "urn:block:2"}, names)
}

func TestStore_BackupAndRestoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddGraph("urn:block:1", sampleGraph()))

	dir := t.TempDir()
	path, err := s.Backup(dir, time.Unix(1000, 0), 5)
	require.NoError(t, err)
	require.FileExists(t, path)

	restored := newTestStore(t)
	require.NoError(t, restored.Restore(path))

	g, ok, err := restored.Query("urn:block:1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, g.Len())
}

func TestStore_BackupRotationPrunesOldFiles(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddGraph("urn:block:1", sampleGraph()))

	dir := t.TempDir()
	for i := 0; i < 5; i++ {
		_, err := s.Backup(dir, time.Unix(int64(1000+i), 0), 2)
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var backups int
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".nq" {
			backups++
		}
	}
	require.Equal(t, 2, backups)
}

func TestStore_ListBackupsReturnsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddGraph("urn:block:1", sampleGraph()))

	dir := t.TempDir()
	oldest, err := s.Backup(dir, time.Unix(1000, 0), 0)
	require.NoError(t, err)
	newest, err := s.Backup(dir, time.Unix(2000, 0), 0)
	require.NoError(t, err)

	paths, err := s.ListBackups(dir)
	require.NoError(t, err)
	require.Equal(t, []string{newest, oldest}, paths)
}

func TestStore_RestoreFailsOnMissingFile(t *testing.T) {
	s := newTestStore(t)
	err := s.Restore(filepath.Join(t.TempDir(), "does-not-exist.nq"))
	require.Error(t, err)
}

func TestStore_RestoreFailsOnCorruptedFile(t *testing.T) {
	s := newTestStore(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.nq")
	require.NoError(t, os.WriteFile(path, []byte("not a valid n-quads document <<<"), 0o644))

	err := s.Restore(path)
	require.Error(t, err)

	_, ok, qerr := s.Query("urn:block:1")
	require.NoError(t, qerr)
	require.False(t, ok)
}
