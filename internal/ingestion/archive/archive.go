// Package archive extracts markdown documents from zip archives, such as a
// repository snapshot downloaded from a code host.
package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/nsriram/docsearch/internal/ingestion"
)

var defaultExtensions = []string{".md", ".mdx"}

type Config struct {
	Extensions []string
	// StripRoot drops the first path component, the archive's top-level
	// directory.
	StripRoot bool
}

// Source loads an archive from disk.
type Source struct {
	Path string
	Cfg  Config
}

func (s Source) Name() string { return "archive:" + s.Path }

func (s Source) Load(ctx context.Context) ([]ingestion.Document, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	return Read(ctx, f, info.Size(), s.Cfg)
}

// Read extracts documents from a zip held in r, in archive entry order.
// Invalid UTF-8 bytes are dropped from contents.
func Read(ctx context.Context, r io.ReaderAt, size int64, cfg Config) ([]ingestion.Document, error) {
	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = defaultExtensions
	}
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("reading zip: %w", err)
	}
	logger := slog.Default().With("component", "archive")

	var docs []ingestion.Document
	for _, file := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if file.FileInfo().IsDir() || !hasExtension(file.Name, exts) {
			continue
		}
		name := file.Name
		if cfg.StripRoot {
			_, rest, found := strings.Cut(name, "/")
			if !found {
				rest = ""
			}
			name = rest
		}
		if name == "" {
			continue
		}
		raw, err := readFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file.Name, err)
		}
		content := strings.ToValidUTF8(string(raw), "")
		doc := ingestion.Document{
			ingestion.FieldFilename: name,
			ingestion.FieldContent:  content,
			ingestion.FieldTitle:    ingestion.TitleOrBase([]byte(content), name),
		}
		if section, _, nested := strings.Cut(name, "/"); nested {
			doc[ingestion.FieldSection] = section
		}
		docs = append(docs, doc)
	}
	logger.Debug("archive read", "entries", len(zr.File), "documents", len(docs))
	return docs, nil
}

func readFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// hasExtension matches case-sensitively, so ".md" does not admit "README.MD".
func hasExtension(name string, exts []string) bool {
	for _, ext := range exts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
