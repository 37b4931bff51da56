package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_Extensions(t *testing.T) {
	r := New(Options{})
	src := strings.Join([]string{
		"[TOC]",
		"",
		"# Intro",
		"",
		"| a | b |",
		"|---|---|",
		"| 1 | 2 |",
		"",
		"Term",
		": Definition",
		"",
		"Note[^1].",
		"",
		"[^1]: The footnote.",
		"",
		"```go",
		"func main() {}",
		"```",
	}, "\n")

	out, err := r.Render(src)
	require.NoError(t, err)

	assert.Contains(t, out, `<h1 id="intro">Intro</h1>`)
	assert.Contains(t, out, `class="toc"`)
	assert.Contains(t, out, `href="#intro"`)
	assert.NotContains(t, out, "[TOC]")
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "<dl>")
	assert.Contains(t, out, "footnote")
	assert.Contains(t, out, `class="chroma"`)
}

func TestRender_Deterministic(t *testing.T) {
	r := New(Options{HighlightStyle: "monokai"})
	src := "# Title\n\nSome *text* with `code`.\n"
	first, err := r.Render(src)
	require.NoError(t, err)
	second, err := r.Render(src)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRender_TOCWithoutHeadingsIsDropped(t *testing.T) {
	out, err := New(Options{}).Render("[TOC]\n\nplain paragraph\n")
	require.NoError(t, err)
	assert.NotContains(t, out, "[TOC]")
	assert.Contains(t, out, "<p>plain paragraph</p>")
}

func TestRender_Abbreviations(t *testing.T) {
	src := "The HTML spec and `HTML` in code.\n\n*[HTML]: Hyper Text Markup Language\n"
	out, err := New(Options{}).Render(src)
	require.NoError(t, err)

	assert.Contains(t, out, `<abbr title="Hyper Text Markup Language">HTML</abbr> spec`)
	assert.Contains(t, out, "<code>HTML</code>")
	assert.NotContains(t, out, "*[HTML]")
}

func TestExtractAbbreviations(t *testing.T) {
	src, abbrs := extractAbbreviations("text\n*[W3C]: World Wide Web Consortium\n*[CSS]:  Cascading Style Sheets  \nmore\n")
	assert.Equal(t, "text\nmore\n", src)
	assert.Equal(t, map[string]string{
		"W3C": "World Wide Web Consortium",
		"CSS": "Cascading Style Sheets",
	}, abbrs)
}

func TestExtractAbbreviations_SkipsFencedCode(t *testing.T) {
	in := "```md\n*[W3C]: keep me\n```\n~~~~\n*[API]: also kept\n~~~\n~~~~\n*[CSS]: Cascading Style Sheets\n"
	src, abbrs := extractAbbreviations(in)
	assert.Equal(t, "```md\n*[W3C]: keep me\n```\n~~~~\n*[API]: also kept\n~~~\n~~~~\n", src)
	assert.Equal(t, map[string]string{"CSS": "Cascading Style Sheets"}, abbrs)
}

func TestRender_AbbreviationSyntaxInCodeBlock(t *testing.T) {
	src := "Write it like this:\n\n```\n*[HTML]: Hyper Text Markup Language\n```\n"
	out, err := New(Options{}).Render(src)
	require.NoError(t, err)

	assert.Contains(t, out, "*[HTML]:")
	assert.Contains(t, out, "Hyper Text Markup Language")
	assert.NotContains(t, out, "<abbr")
}

func TestApplyAbbreviations_WholeWordsOnly(t *testing.T) {
	out, err := applyAbbreviations("<p>API and APIs</p>", map[string]string{"API": "Application Programming Interface"})
	require.NoError(t, err)
	assert.Equal(t, `<p><abbr title="Application Programming Interface">API</abbr> and APIs</p>`, out)
}
