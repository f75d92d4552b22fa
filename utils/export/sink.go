package export

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/kris-hansen/workbench/utils/config"
	"github.com/kris-hansen/workbench/utils/fileutil"
	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"
)

// Sink stores exported documents.
type Sink interface {
	Write(ctx context.Context, docs []Document) error
}

const defaultFileConcurrency = 4

// FileSink writes each document to its own Markdown file in Dir.
type FileSink struct {
	Dir         string
	Concurrency int
}

// PathFor returns the file a document is written to.
func (s FileSink) PathFor(doc Document) string {
	return filepath.Join(s.Dir, fmt.Sprintf("unit-%03d-%s.md", doc.Index+1, doc.ID[:min(8, len(doc.ID))]))
}

// Write stores docs concurrently. The first failure cancels the writes not
// yet started.
func (s FileSink) Write(ctx context.Context, docs []Document) error {
	limit := s.Concurrency
	if limit <= 0 {
		limit = defaultFileConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content := "# " + doc.Title + "\n\n" + doc.Content
			if err := fileutil.WriteFile(s.PathFor(doc), []byte(content)); err != nil {
				return fmt.Errorf("error writing document %s: %w", doc.ID, err)
			}
			config.DebugLog("[Export] wrote %s", s.PathFor(doc))
			return nil
		})
	}
	return g.Wait()
}

const defaultTable = "workbench_documents"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PostgresSink inserts documents into a Postgres table.
type PostgresSink struct {
	db    *sql.DB
	table string
}

// OpenPostgres opens a sink for dsn. The connection is established lazily.
func OpenPostgres(dsn, table string) (*PostgresSink, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sink, err := NewPostgresSink(db, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return sink, nil
}

// NewPostgresSink wraps an open database. An empty table uses the default.
func NewPostgresSink(db *sql.DB, table string) (*PostgresSink, error) {
	if table == "" {
		table = defaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresSink{db: db, table: table}, nil
}

// Close closes the underlying database.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

func (s *PostgresSink) createTableSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL DEFAULT '',
	unit_index INTEGER NOT NULL,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, pq.QuoteIdentifier(s.table))
}

func (s *PostgresSink) insertSQL() string {
	return fmt.Sprintf(`INSERT INTO %s (id, run_id, unit_index, title, content)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET run_id = EXCLUDED.run_id, title = EXCLUDED.title, content = EXCLUDED.content`,
		pq.QuoteIdentifier(s.table))
}

// Write creates the table if needed and inserts docs in order inside one
// transaction.
func (s *PostgresSink) Write(ctx context.Context, docs []Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.createTableSQL()); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	stmt, err := tx.PrepareContext(ctx, s.insertSQL())
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		if _, err := stmt.ExecContext(ctx, d.ID, d.RunID, d.Index, d.Title, d.Content); err != nil {
			return fmt.Errorf("insert document %s: %w", d.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	config.VerboseLog("Stored %d documents in %s", len(docs), s.table)
	return nil
}
