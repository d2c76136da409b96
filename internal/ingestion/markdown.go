package ingestion

import (
	"bytes"
	"path"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// Title returns the text of the first level-1 heading in src, or "".
func Title(src []byte) string {
	doc := markdown.Parser().Parse(text.NewReader(src))
	var title string
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok || h.Level != 1 {
			return ast.WalkContinue, nil
		}
		title = headingText(h, src)
		return ast.WalkStop, nil
	})
	return title
}

func headingText(h *ast.Heading, src []byte) string {
	var buf bytes.Buffer
	ast.Walk(h, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := n.(*ast.Text); ok {
			buf.Write(t.Segment.Value(src))
			if t.SoftLineBreak() {
				buf.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(buf.String())
}

// TitleOrBase falls back to the base name of filename without extension.
func TitleOrBase(src []byte, filename string) string {
	if t := Title(src); t != "" {
		return t
	}
	base := path.Base(filename)
	return strings.TrimSuffix(base, path.Ext(base))
}
