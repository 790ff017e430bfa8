package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackzampolin/headloc/internal/api"
	"github.com/jackzampolin/headloc/internal/document"
)

func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// loadDocument reads lines from JSON or Markdown. Documents without an ID
// are named after the file.
func loadDocument(path, id string) (*document.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open lines: %w", err)
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var doc *document.Document
	if isMarkdown(path) {
		doc, err = document.LinesFromMarkdown(f, name)
	} else {
		doc, err = document.LoadLines(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	switch {
	case id != "":
		doc.ID = id
	case doc.ID == "":
		doc.ID = name
	}
	return doc, nil
}

// loadOutline reads an outline from JSON or Markdown headings.
func loadOutline(path string) (*document.Outline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open outline: %w", err)
	}
	defer f.Close()

	var ol *document.Outline
	if isMarkdown(path) {
		ol, err = document.OutlineFromMarkdown(f)
	} else {
		ol, err = document.LoadOutline(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ol, nil
}

// textView renders a value for text output.
type textView struct {
	render func(w io.Writer)
}

func (v textView) RenderText(w io.Writer) error {
	v.render(w)
	return nil
}

// emit writes data in the structured format, or calls render for text.
func emit(data any, render func(w io.Writer)) error {
	if api.IsStructuredOutput() {
		return api.Output(data)
	}
	return api.Output(textView{render: render})
}
