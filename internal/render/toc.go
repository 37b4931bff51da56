package render

import (
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

const tocMarker = "[TOC]"

// tocTransformer replaces a paragraph consisting only of [TOC] with a
// nested list of the document's headings.
type tocTransformer struct{}

func (tocTransformer) Transform(doc *ast.Document, reader text.Reader, _ parser.Context) {
	src := reader.Source()

	var markers []ast.Node
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if isTOCMarker(n, src) {
			markers = append(markers, n)
		}
	}
	if len(markers) == 0 {
		return
	}

	tree, err := toc.Inspect(doc, src)
	if err != nil {
		return
	}

	for _, marker := range markers {
		list := toc.RenderList(tree)
		if list == nil {
			doc.RemoveChild(doc, marker)
			continue
		}
		list.SetAttributeString("class", []byte("toc"))
		doc.ReplaceChild(doc, marker, list)
	}
}

func isTOCMarker(n ast.Node, src []byte) bool {
	p, ok := n.(*ast.Paragraph)
	if !ok {
		return false
	}
	lines := p.Lines()
	if lines.Len() != 1 {
		return false
	}
	seg := lines.At(0)
	return strings.TrimSpace(string(seg.Value(src))) == tocMarker
}
