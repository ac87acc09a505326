// Package document extracts plain text from source documents for planning.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MaxDocumentBytes bounds how much of a file is read.
const MaxDocumentBytes = 10 << 20

// ErrTooLarge is returned for files over MaxDocumentBytes.
var ErrTooLarge = errors.New("document: file too large")

// Load reads the file at path and returns its text. Markdown files are
// reduced to their textual content; anything else is read as plain text.
func Load(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxDocumentBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	if len(data) > MaxDocumentBytes {
		return "", ErrTooLarge
	}

	if IsMarkdown(path) {
		return MarkdownText(data), nil
	}
	return PlainText(data), nil
}

// IsMarkdown reports whether path has a Markdown extension.
func IsMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".mdown":
		return true
	}
	return false
}

// PlainText normalises line endings and strips a UTF-8 byte order mark.
func PlainText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	s := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.TrimSpace(s)
}

// MarkdownText returns the text of a Markdown document. Headings and
// paragraphs become blank-line separated blocks and list items become
// lines, so the result splits into paragraphs the same way plain text does.
// Raw HTML is dropped.
func MarkdownText(src []byte) string {
	src = bytes.TrimPrefix(src, []byte("\xef\xbb\xbf"))
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil

		case *ast.Text:
			if !entering {
				return ast.WalkContinue, nil
			}
			b.Write(node.Segment.Value(src))
			if node.HardLineBreak() {
				b.WriteByte('\n')
			} else if node.SoftLineBreak() {
				b.WriteByte(' ')
			}

		case *ast.String:
			if entering {
				b.Write(node.Value)
			}

		case *ast.AutoLink:
			if entering {
				b.Write(node.Label(src))
			}

		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if !entering {
				return ast.WalkContinue, nil
			}
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				segment := lines.At(i)
				b.Write(segment.Value(src))
			}
			b.WriteString("\n")
			return ast.WalkSkipChildren, nil

		case *ast.Heading, *ast.Paragraph:
			if !entering {
				b.WriteString("\n\n")
			}

		case *ast.TextBlock:
			if !entering {
				b.WriteString("\n")
			}

		case *ast.List:
			if !entering {
				b.WriteString("\n")
			}

		case *ast.ThematicBreak:
			if entering {
				b.WriteString("\n")
			}
		}
		return ast.WalkContinue, nil
	})

	return collapseBlankLines(b.String())
}

// collapseBlankLines trims each line and keeps at most one blank line
// between blocks.
func collapseBlankLines(s string) string {
	var out []string
	blank := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(out) > 0 && !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
