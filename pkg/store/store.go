// Package store persists committed named graphs in an embedded
// key-value database and serves them back out, with an LRU cache over
// frequently queried graph IRIs and a backup/restore path that dumps
// the whole dataset to N-Quads.
package store

import (
	"bytes"
	"container/list"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	dbm "github.com/cometbft/cometbft-db"

	"rdfchain/pkg/rdf"
)

var logger = log.New(log.Writer(), "[Store] ", log.LstdFlags)

const graphKeyPrefix = "graph:"

func graphKey(iri string) []byte {
	return []byte(graphKeyPrefix + iri)
}

func graphIRIFromKey(key []byte) (string, bool) {
	s := string(key)
	if !strings.HasPrefix(s, graphKeyPrefix) {
		return "", false
	}
	return strings.TrimPrefix(s, graphKeyPrefix), true
}

// Store is a named-graph quad store backed by an embedded KV database.
// It assumes single-writer access from the commit pipeline, matching
// the underlying database's own durability contract: writes use SetSync
// so a crash right after a successful call never loses the write.
type Store struct {
	db dbm.DB

	cacheMu  sync.Mutex
	cacheCap int
	cacheLRU *list.List
	cacheMap map[string]*list.Element
}

type cacheEntry struct {
	iri   string
	graph *rdf.Graph
}

// Open wraps an already-opened embedded database. Callers typically
// construct db via dbm.NewGoLevelDB(name, dir) for production or
// dbm.NewMemDB() for tests.
func Open(db dbm.DB, cacheCapacity int) *Store {
	if cacheCapacity <= 0 {
		cacheCapacity = 256
	}
	return &Store{
		db:       db,
		cacheCap: cacheCapacity,
		cacheLRU: list.New(),
		cacheMap: make(map[string]*list.Element),
	}
}

// AddGraph persists graph under iri, overwriting any existing graph
// with the same name, and refreshes the cache entry.
func (s *Store) AddGraph(iri string, graph *rdf.Graph) error {
	var buf bytes.Buffer
	quads := make([]rdf.Quad, 0, graph.Len())
	for _, t := range graph.Sorted() {
		quads = append(quads, rdf.Quad{Triple: t})
	}
	if err := rdf.SerializeNQuads(&buf, quads); err != nil {
		return fmt.Errorf("store: serialize graph %q: %w", iri, err)
	}
	if err := s.db.SetSync(graphKey(iri), buf.Bytes()); err != nil {
		return fmt.Errorf("store: persist graph %q: %w", iri, err)
	}
	s.cachePut(iri, graph)
	return nil
}

// RemoveGraph deletes the named graph, if present.
func (s *Store) RemoveGraph(iri string) error {
	if err := s.db.DeleteSync(graphKey(iri)); err != nil {
		return fmt.Errorf("store: remove graph %q: %w", iri, err)
	}
	s.cacheEvict(iri)
	return nil
}

// Query returns the named graph's triples, or (nil, false) if absent.
func (s *Store) Query(iri string) (*rdf.Graph, bool, error) {
	if g, ok := s.cacheGet(iri); ok {
		return g, true, nil
	}
	raw, err := s.db.Get(graphKey(iri))
	if err != nil {
		return nil, false, fmt.Errorf("store: read graph %q: %w", iri, err)
	}
	if raw == nil {
		return nil, false, nil
	}
	quads, err := rdf.ParseNQuads(bytes.NewReader(raw))
	if err != nil {
		return nil, false, fmt.Errorf("store: parse stored graph %q: %w", iri, err)
	}
	g := rdf.NewGraph()
	for _, q := range quads {
		g.Add(q.Triple)
	}
	s.cachePut(iri, g)
	return g, true, nil
}

// NamedGraphs returns every persisted graph IRI, sorted.
func (s *Store) NamedGraphs() ([]string, error) {
	start := []byte(graphKeyPrefix)
	end := prefixUpperBound(start)
	it, err := s.db.Iterator(start, end)
	if err != nil {
		return nil, fmt.Errorf("store: iterate graphs: %w", err)
	}
	defer it.Close()

	var out []string
	for ; it.Valid(); it.Next() {
		if iri, ok := graphIRIFromKey(it.Key()); ok {
			out = append(out, iri)
		}
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("store: iterator error: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

// prefixUpperBound returns the smallest key that is strictly greater
// than every key sharing prefix, for use as an Iterator end bound.
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff bytes; unbounded scan
}

func (s *Store) cacheGet(iri string) (*rdf.Graph, bool) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	el, ok := s.cacheMap[iri]
	if !ok {
		return nil, false
	}
	s.cacheLRU.MoveToFront(el)
	return el.Value.(*cacheEntry).graph, true
}

func (s *Store) cachePut(iri string, g *rdf.Graph) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if el, ok := s.cacheMap[iri]; ok {
		el.Value.(*cacheEntry).graph = g
		s.cacheLRU.MoveToFront(el)
		return
	}
	el := s.cacheLRU.PushFront(&cacheEntry{iri: iri, graph: g})
	s.cacheMap[iri] = el
	for s.cacheLRU.Len() > s.cacheCap {
		oldest := s.cacheLRU.Back()
		if oldest == nil {
			break
		}
		s.cacheLRU.Remove(oldest)
		delete(s.cacheMap, oldest.Value.(*cacheEntry).iri)
	}
}

func (s *Store) cacheEvict(iri string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if el, ok := s.cacheMap[iri]; ok {
		s.cacheLRU.Remove(el)
		delete(s.cacheMap, iri)
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
