// Package index is an optional Postgres-backed secondary index mapping
// an entity IRI (any RDF subject or object that is itself an IRI) to the
// set of block indices whose payload mentions it. pkg/store answers
// "what is graph N" directly; this package answers "which blocks
// mention this entity", which pkg/trace needs to walk a subject's
// history without scanning every committed graph.
package index

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"rdfchain/pkg/block"
	"rdfchain/pkg/rdf"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var logger = log.New(log.Writer(), "[Index] ", log.LstdFlags)

// Index is a connection-pooled handle to the secondary index database.
type Index struct {
	db *sql.DB
}

// Open connects to dsn (a postgres:// connection string), verifies the
// connection, and returns a ready handle. Callers run MigrateUp before
// first use.
func Open(dsn string) (*Index, error) {
	if dsn == "" {
		return nil, fmt.Errorf("index: dsn must not be empty")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("index: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	return &Index{db: db}, nil
}

func (idx *Index) Close() error {
	return idx.db.Close()
}

// migration is one embedded .sql file, applied in filename order.
type migration struct {
	version string
	sql     string
}

func (idx *Index) loadMigrations() ([]migration, error) {
	var migrations []migration
	err := fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}
		content, err := migrationsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		migrations = append(migrations, migration{
			version: strings.TrimSuffix(d.Name(), ".sql"),
			sql:     string(content),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].version < migrations[j].version })
	return migrations, nil
}

// MigrateUp applies every pending embedded migration, tracked in a
// schema_migrations table it creates on first run.
func (idx *Index) MigrateUp(ctx context.Context) error {
	migrations, err := idx.loadMigrations()
	if err != nil {
		return fmt.Errorf("index: load migrations: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := idx.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				return fmt.Errorf("index: scan applied migration: %w", err)
			}
			applied[v] = true
		}
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		logger.Printf("applying migration %s", m.version)
		tx, err := idx.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("index: begin migration %s: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("index: apply migration %s: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)`, m.version, time.Now()); err != nil {
			tx.Rollback()
			return fmt.Errorf("index: record migration %s: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("index: commit migration %s: %w", m.version, err)
		}
	}
	return nil
}

// IndexBlock records every IRI appearing as a subject or object of b's
// committed graph against b.Index, so later lookups against any of
// those entities find this block.
func (idx *Index) IndexBlock(ctx context.Context, b block.Block, graph *rdf.Graph) error {
	entities := entityIRIs(graph)
	if len(entities) == 0 {
		return nil
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entity_block_index (entity_iri, block_index)
		VALUES ($1, $2)
		ON CONFLICT (entity_iri, block_index) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("index: prepare insert: %w", err)
	}
	defer stmt.Close()

	for entity := range entities {
		if _, err := stmt.ExecContext(ctx, entity, b.Index); err != nil {
			return fmt.Errorf("index: insert (%s, %d): %w", entity, b.Index, err)
		}
	}
	return tx.Commit()
}

// entityIRIs collects the distinct subject/object IRIs appearing in g.
func entityIRIs(g *rdf.Graph) map[string]struct{} {
	out := make(map[string]struct{})
	for _, t := range g.Triples() {
		if iri, ok := t.Subject.(rdf.IRI); ok {
			out[string(iri)] = struct{}{}
		}
		if iri, ok := t.Object.(rdf.IRI); ok {
			out[string(iri)] = struct{}{}
		}
	}
	return out
}

// BlocksForEntity returns every block index that mentions entityIRI, in
// ascending order.
func (idx *Index) BlocksForEntity(ctx context.Context, entityIRI string) ([]uint64, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT block_index FROM entity_block_index
		WHERE entity_iri = $1
		ORDER BY block_index ASC`, entityIRI)
	if err != nil {
		return nil, fmt.Errorf("index: query entity %s: %w", entityIRI, err)
	}
	defer rows.Close()

	var indices []uint64
	for rows.Next() {
		var i uint64
		if err := rows.Scan(&i); err != nil {
			return nil, fmt.Errorf("index: scan: %w", err)
		}
		indices = append(indices, i)
	}
	return indices, rows.Err()
}
