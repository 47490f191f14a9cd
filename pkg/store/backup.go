package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"rdfchain/pkg/rdf"
)

const backupFilePrefix = "backup-"
const backupFileSuffix = ".nq"

// Backup dumps every named graph to a single N-Quads file under dir,
// writing to a temporary file first and renaming into place so a crash
// mid-dump never leaves a partial backup visible under its final name.
// It then prunes old backups beyond retention, keeping the most recent.
func (s *Store) Backup(dir string, at time.Time, retention int) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("store: create backup dir: %w", err)
	}

	names, err := s.NamedGraphs()
	if err != nil {
		return "", fmt.Errorf("store: backup: list graphs: %w", err)
	}

	var quads []rdf.Quad
	for _, iri := range names {
		g, ok, err := s.Query(iri)
		if err != nil {
			return "", fmt.Errorf("store: backup: read graph %q: %w", iri, err)
		}
		if !ok {
			continue
		}
		for _, t := range g.Sorted() {
			quads = append(quads, rdf.Quad{Triple: t, GraphName: iri})
		}
	}

	finalName := filepath.Join(dir, backupFilePrefix+strconv.FormatInt(at.UnixNano(), 10)+backupFileSuffix)
	tmp, err := os.CreateTemp(dir, "backup-*.tmp")
	if err != nil {
		return "", fmt.Errorf("store: backup: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	writeErr := func() error {
		defer tmp.Close()
		if err := rdf.SerializeNQuads(tmp, quads); err != nil {
			return err
		}
		return tmp.Sync()
	}()
	if writeErr != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("store: backup: write: %w", writeErr)
	}

	if err := os.Rename(tmpPath, finalName); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("store: backup: rename into place: %w", err)
	}

	if retention > 0 {
		if err := pruneBackups(dir, retention); err != nil {
			logger.Printf("backup rotation: %v", err)
		}
	}
	return finalName, nil
}

// ListBackups returns every backup file under dir, newest first.
func (s *Store) ListBackups(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: list backups: %w", err)
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), backupFilePrefix) || !strings.HasSuffix(e.Name(), backupFileSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("store: stat backup %q: %w", e.Name(), err)
		}
		files = append(files, fileInfo{path: filepath.Join(dir, e.Name()), modTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })

	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out, nil
}

func pruneBackups(dir string, retention int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("list backup dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), backupFilePrefix) && strings.HasSuffix(e.Name(), backupFileSuffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names) // nanosecond timestamps sort lexically in time order
	if len(names) <= retention {
		return nil
	}
	for _, n := range names[:len(names)-retention] {
		if err := os.Remove(filepath.Join(dir, n)); err != nil {
			return fmt.Errorf("remove old backup %q: %w", n, err)
		}
	}
	return nil
}

// Restore replaces the store's contents with the graphs recorded in an
// N-Quads dump produced by Backup. Quads with no graph name are restored
// into the default graph's IRI, "".
func (s *Store) Restore(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("store: restore: open %q: %w", path, err)
	}
	defer f.Close()

	quads, err := rdf.ParseNQuads(f)
	if err != nil {
		return fmt.Errorf("store: restore: parse %q: %w", path, err)
	}

	byGraph := map[string]*rdf.Graph{}
	for _, q := range quads {
		g, ok := byGraph[q.GraphName]
		if !ok {
			g = rdf.NewGraph()
			byGraph[q.GraphName] = g
		}
		g.Add(q.Triple)
	}
	existing, err := s.NamedGraphs()
	if err != nil {
		return fmt.Errorf("store: restore: list graphs: %w", err)
	}
	for _, iri := range existing {
		if _, keep := byGraph[iri]; !keep {
			if err := s.RemoveGraph(iri); err != nil {
				return fmt.Errorf("store: restore: remove graph %q: %w", iri, err)
			}
		}
	}
	for iri, g := range byGraph {
		if err := s.AddGraph(iri, g); err != nil {
			return fmt.Errorf("store: restore: add graph %q: %w", iri, err)
		}
	}
	return nil
}
