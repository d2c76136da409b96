// Package pgsource reads corpus documents from PostgreSQL.
package pgsource

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nsriram/docsearch/internal/ingestion"
	"github.com/nsriram/docsearch/pkg/resilience"
)

// Source runs Query, which must return (filename, content) rows in a stable
// order.
type Source struct {
	DB      *sql.DB
	Query   string
	Timeout time.Duration
}

func (s Source) Name() string { return "postgres" }

func (s Source) Load(ctx context.Context) ([]ingestion.Document, error) {
	if strings.TrimSpace(s.Query) == "" {
		return nil, fmt.Errorf("postgres source: empty query")
	}
	return resilience.Call(ctx, s.Timeout, "postgres source", func(ctx context.Context) ([]ingestion.Document, error) {
		rows, err := s.DB.QueryContext(ctx, s.Query)
		if err != nil {
			return nil, fmt.Errorf("querying documents: %w", err)
		}
		defer rows.Close()
		return scan(rows)
	})
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scan(rows rowScanner) ([]ingestion.Document, error) {
	var docs []ingestion.Document
	for rows.Next() {
		var filename, content sql.NullString
		if err := rows.Scan(&filename, &content); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		doc := ingestion.Document{
			ingestion.FieldFilename: filename.String,
			ingestion.FieldContent:  content.String,
			ingestion.FieldTitle:    ingestion.TitleOrBase([]byte(content.String), filename.String),
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w", err)
	}
	return docs, nil
}
