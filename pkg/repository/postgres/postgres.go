// Package postgres stores reference cases in PostgreSQL with the pgvector extension.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/domain/interfaces"
	"github.com/secmon-lab/argus/pkg/domain/model"
)

const (
	defaultTablePrefix = "argus_"
	uniqueViolation    = pq.ErrorCode("23505")
)

type Postgres struct {
	db        *sql.DB
	reference *referenceRepository
	namespace *namespaceRepository
}

var _ interfaces.Repository = &Postgres{}

type Option func(*Postgres)

// WithTablePrefix changes the prefix of the "references" and "namespaces" tables
func WithTablePrefix(prefix string) Option {
	return func(p *Postgres) {
		p.reference.tables = newTables(prefix)
		p.namespace.tables = newTables(prefix)
	}
}

// WithCategoryRegistry sets the registry used to validate reference metadata
func WithCategoryRegistry(registry *model.CategoryRegistry) Option {
	return func(p *Postgres) {
		p.reference.registry = registry
	}
}

type tables struct {
	prefix     string
	references string
	namespaces string
}

func newTables(prefix string) tables {
	return tables{
		prefix:     prefix,
		references: pq.QuoteIdentifier(prefix + "references"),
		namespaces: pq.QuoteIdentifier(prefix + "namespaces"),
	}
}

func (t tables) index(name string) string {
	return pq.QuoteIdentifier(t.prefix + "references_" + name)
}

// New connects to PostgreSQL. The schema must be created by Migrate beforehand.
func New(ctx context.Context, dsn string, opts ...Option) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open postgres connection")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to connect to postgres")
	}

	t := newTables(defaultTablePrefix)
	nsRepo := &namespaceRepository{db: db, tables: t}
	p := &Postgres{
		db:        db,
		namespace: nsRepo,
		reference: &referenceRepository{
			db:         db,
			tables:     t,
			namespaces: nsRepo,
			registry:   model.DefaultCategoryRegistry(),
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Postgres) Reference() interfaces.ReferenceRepository {
	return p.reference
}

func (p *Postgres) Namespace() interfaces.NamespaceRepository {
	return p.namespace
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// Migrate creates the pgvector extension, tables and indexes. A dimension of 0 creates an
// untyped vector column without the HNSW index.
func (p *Postgres) Migrate(ctx context.Context, dimension int) error {
	t := p.reference.tables
	column := "vector"
	if dimension > 0 {
		column = fmt.Sprintf("vector(%d)", dimension)
	}

	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL
		)`, t.namespaces),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id         TEXT PRIMARY KEY,
			namespace  TEXT NOT NULL,
			category   TEXT NOT NULL,
			embedding  %s NOT NULL,
			metadata   JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`, t.references, column),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (namespace, category, created_at)`,
			t.index("ns_category"), t.references),
	}
	if dimension > 0 {
		statements = append(statements, fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`,
			t.index("embedding"), t.references))
	}

	for _, stmt := range statements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return goerr.Wrap(err, "failed to apply postgres schema", goerr.V("statement", stmt))
		}
	}
	return nil
}
