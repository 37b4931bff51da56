// Package render converts post bodies from Markdown to the HTML stored
// alongside the raw source on the remote.
package render

import (
	"bytes"
	"fmt"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

// DefaultHighlightStyle is the chroma style used when none is configured.
const DefaultHighlightStyle = "github"

// Options configures a Renderer.
type Options struct {
	HighlightStyle string
}

// Renderer turns Markdown into HTML. It holds no per-call state and is safe
// for concurrent use.
type Renderer struct {
	md goldmark.Markdown
}

// New builds a Renderer with tables, footnotes, definition lists, a [TOC]
// marker, code highlighting and abbreviations enabled.
func New(opts Options) *Renderer {
	style := opts.HighlightStyle
	if style == "" {
		style = DefaultHighlightStyle
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.Table,
			extension.Strikethrough,
			extension.Footnote,
			extension.DefinitionList,
			highlighting.NewHighlighting(
				highlighting.WithStyle(style),
				highlighting.WithFormatOptions(chromahtml.WithClasses(true)),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithASTTransformers(util.Prioritized(tocTransformer{}, 100)),
		),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
		),
	)
	return &Renderer{md: md}
}

// Render converts markdown to HTML.
func (r *Renderer) Render(markdown string) (string, error) {
	source, abbrs := extractAbbreviations(markdown)

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("render: convert: %w", err)
	}
	if len(abbrs) == 0 {
		return buf.String(), nil
	}
	out, err := applyAbbreviations(buf.String(), abbrs)
	if err != nil {
		return "", fmt.Errorf("render: abbreviations: %w", err)
	}
	return out, nil
}
