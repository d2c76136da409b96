// Package corpus holds ingested documents under a fixed Schema and assigns
// them sequential ids.
package corpus

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	apperrors "github.com/nsriram/docsearch/pkg/errors"
)

// FieldKind distinguishes tokenized text fields from exact-match keyword
// fields.
type FieldKind int

const (
	FieldUnknown FieldKind = iota
	FieldText
	FieldKeyword
)

func (k FieldKind) String() string {
	switch k {
	case FieldText:
		return "text"
	case FieldKeyword:
		return "keyword"
	default:
		return "unknown"
	}
}

// Schema is the ordered set of declared fields. It is immutable once built.
type Schema struct {
	text    []string
	keyword []string
	kinds   map[string]FieldKind
}

// NewSchema validates that every name is non-empty and unique across both
// kinds.
func NewSchema(textFields, keywordFields []string) (*Schema, error) {
	if len(textFields)+len(keywordFields) == 0 {
		return nil, fmt.Errorf("%w: schema declares no fields", apperrors.ErrSchemaViolation)
	}
	s := &Schema{
		text:    slices.Clone(textFields),
		keyword: slices.Clone(keywordFields),
		kinds:   make(map[string]FieldKind, len(textFields)+len(keywordFields)),
	}
	add := func(name string, kind FieldKind) error {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: empty field name", apperrors.ErrSchemaViolation)
		}
		if _, dup := s.kinds[name]; dup {
			return fmt.Errorf("%w: field %q declared twice", apperrors.ErrSchemaViolation, name)
		}
		s.kinds[name] = kind
		return nil
	}
	for _, f := range textFields {
		if err := add(f, FieldText); err != nil {
			return nil, err
		}
	}
	for _, f := range keywordFields {
		if err := add(f, FieldKeyword); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// MustSchema is NewSchema for static declarations; it panics on error.
func MustSchema(textFields, keywordFields []string) *Schema {
	s, err := NewSchema(textFields, keywordFields)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) TextFields() []string    { return slices.Clone(s.text) }
func (s *Schema) KeywordFields() []string { return slices.Clone(s.keyword) }

func (s *Schema) Kind(field string) FieldKind {
	return s.kinds[field]
}

func (s *Schema) Has(field string) bool {
	_, ok := s.kinds[field]
	return ok
}

// Validate reports the first field of fields the schema does not declare,
// in sorted order so the error is deterministic.
func (s *Schema) Validate(fields map[string]string) error {
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		if !s.Has(name) {
			return fmt.Errorf("%w: field %q is not declared", apperrors.ErrSchemaViolation, name)
		}
	}
	return nil
}

// Document is a stored record. Fields holds values verbatim; a field absent
// from the map is treated as empty.
type Document struct {
	ID     int               `json:"id"`
	Fields map[string]string `json:"fields"`
}

// Corpus is an append-only document store. It is safe for concurrent use.
type Corpus struct {
	schema *Schema

	mu   sync.RWMutex
	docs []Document
}

func New(schema *Schema) *Corpus {
	return &Corpus{schema: schema}
}

func (c *Corpus) Schema() *Schema { return c.schema }

// Add validates fields and stores a copy under the next id.
func (c *Corpus) Add(fields map[string]string) (int, error) {
	if err := c.schema.Validate(fields); err != nil {
		return -1, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id := len(c.docs)
	c.docs = append(c.docs, Document{ID: id, Fields: maps.Clone(fields)})
	return id, nil
}

// AddAll validates the whole batch before storing any of it, then assigns
// ids in batch order. It returns the assigned ids.
func (c *Corpus) AddAll(batch []map[string]string) ([]int, error) {
	for i, fields := range batch {
		if err := c.schema.Validate(fields); err != nil {
			return nil, fmt.Errorf("document %d of batch: %w", i, err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int, len(batch))
	for i, fields := range batch {
		ids[i] = len(c.docs)
		c.docs = append(c.docs, Document{ID: ids[i], Fields: maps.Clone(fields)})
	}
	return ids, nil
}

// Documents returns the stored documents in id order. The slice is a copy;
// the field maps are shared and must not be modified.
func (c *Corpus) Documents() []Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.docs)
}

func (c *Corpus) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}
