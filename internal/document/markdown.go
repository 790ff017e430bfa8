package document

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var mdNumberedTitle = regexp.MustCompile(`^(\d+(?:\.\d+)*)\.?\s+(.+)$`)

// markdownBlock is one emitted line with its heading level (0 for body text).
type markdownBlock struct {
	text  string
	level int
	page  int
}

func walkMarkdown(src []byte) ([]markdownBlock, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var blocks []markdownBlock
	page := 1
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.ThematicBreak:
			page++
			return ast.WalkSkipChildren, nil
		case *ast.Heading:
			blocks = append(blocks, markdownBlock{
				text:  strings.TrimSpace(blockText(node, src)),
				level: node.Level,
				page:  page,
			})
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.TextBlock, *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				t := strings.TrimSpace(string(seg.Value(src)))
				if t == "" {
					continue
				}
				blocks = append(blocks, markdownBlock{text: t, page: page})
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk markdown: %w", err)
	}
	return blocks, nil
}

func blockText(n ast.Node, src []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.Write(seg.Value(src))
	}
	return sb.String()
}

// LinesFromMarkdown turns a Markdown file into a line sequence. Thematic
// breaks start a new page; headings get font rank 7-level.
func LinesFromMarkdown(r io.Reader, id string) (*Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read markdown: %w", err)
	}
	blocks, err := walkMarkdown(src)
	if err != nil {
		return nil, err
	}

	doc := &Document{ID: id, Lines: make([]Line, 0, len(blocks))}
	for i, b := range blocks {
		ln := Line{Index: i, Page: b.page, Text: b.text}
		if b.level > 0 {
			rank := 7 - b.level
			ln.FontRank = &rank
		}
		doc.Lines = append(doc.Lines, ln)
	}
	return doc, nil
}

// OutlineFromMarkdown derives an outline from Markdown headings. A leading
// dotted number becomes the heading's numbering.
func OutlineFromMarkdown(r io.Reader) (*Outline, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read markdown: %w", err)
	}
	blocks, err := walkMarkdown(src)
	if err != nil {
		return nil, err
	}

	var entries []OutlineEntry
	for _, b := range blocks {
		if b.level == 0 || b.text == "" {
			continue
		}
		e := OutlineEntry{Title: b.text, Level: b.level}
		if m := mdNumberedTitle.FindStringSubmatch(b.text); m != nil {
			e.Numbering = m[1]
			e.Title = m[2]
		}
		entries = append(entries, e)
	}
	return FromEntries(entries)
}
