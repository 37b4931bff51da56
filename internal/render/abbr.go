package render

import (
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var abbrDefRe = regexp.MustCompile(`^\*\[([^\]\n]+)\]:[ \t]*(.*?)[ \t]*\r?\n?$`)

// extractAbbreviations removes "*[ABBR]: Expansion" lines from source and
// returns the definitions found. A later definition wins. Lines inside fenced
// code blocks are kept verbatim.
func extractAbbreviations(source string) (string, map[string]string) {
	var (
		out   strings.Builder
		abbrs map[string]string
		fence string
	)
	for _, line := range strings.SplitAfter(source, "\n") {
		if fence != "" {
			if closesFence(line, fence) {
				fence = ""
			}
			out.WriteString(line)
			continue
		}
		if f := openingFence(line); f != "" {
			fence = f
			out.WriteString(line)
			continue
		}
		m := abbrDefRe.FindStringSubmatch(line)
		if m == nil {
			out.WriteString(line)
			continue
		}
		if key := strings.TrimSpace(m[1]); key != "" {
			if abbrs == nil {
				abbrs = make(map[string]string)
			}
			abbrs[key] = m[2]
		}
	}
	if abbrs == nil {
		return source, nil
	}
	return out.String(), abbrs
}

// openingFence returns the run of backticks or tildes that opens a fenced
// code block on line, or "" when line is not a fence.
func openingFence(line string) string {
	trimmed, ok := trimFenceIndent(line)
	if !ok || len(trimmed) < 3 || (trimmed[0] != '`' && trimmed[0] != '~') {
		return ""
	}
	n := 0
	for n < len(trimmed) && trimmed[n] == trimmed[0] {
		n++
	}
	if n < 3 {
		return ""
	}
	if trimmed[0] == '`' && strings.Contains(trimmed[n:], "`") {
		return ""
	}
	return trimmed[:n]
}

func closesFence(line, fence string) bool {
	trimmed, ok := trimFenceIndent(line)
	if !ok {
		return false
	}
	n := 0
	for n < len(trimmed) && trimmed[n] == fence[0] {
		n++
	}
	return n >= len(fence) && strings.TrimSpace(trimmed[n:]) == ""
}

// trimFenceIndent strips up to three leading spaces. Deeper indentation is an
// indented code block, not a fence.
func trimFenceIndent(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, " ")
	return trimmed, len(line)-len(trimmed) <= 3
}

// applyAbbreviations wraps whole-word occurrences of each abbreviation in
// rendered text with <abbr title="...">. Text inside code, pre and existing
// abbr elements is left alone.
func applyAbbreviations(rendered string, abbrs map[string]string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rendered))
	if err != nil {
		return "", err
	}

	keys := make([]string, 0, len(abbrs))
	for k := range abbrs {
		keys = append(keys, k)
	}
	// Longest first so overlapping abbreviations prefer the fuller match.
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = regexp.QuoteMeta(k)
	}
	re := regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)

	body := doc.Find("body")
	for _, n := range body.Nodes {
		wrapAbbreviations(n, re, abbrs)
	}
	return body.Html()
}

func wrapAbbreviations(n *html.Node, re *regexp.Regexp, abbrs map[string]string) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Code, atom.Pre, atom.Abbr, atom.Script, atom.Style:
			return
		}
	}

	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.TextNode {
			splitTextNode(c, re, abbrs)
		} else {
			wrapAbbreviations(c, re, abbrs)
		}
		c = next
	}
}

func splitTextNode(n *html.Node, re *regexp.Regexp, abbrs map[string]string) {
	locs := re.FindAllStringIndex(n.Data, -1)
	if len(locs) == 0 {
		return
	}
	parent := n.Parent
	text := n.Data
	last := 0
	for _, loc := range locs {
		if loc[0] > last {
			parent.InsertBefore(&html.Node{Type: html.TextNode, Data: text[last:loc[0]]}, n)
		}
		word := text[loc[0]:loc[1]]
		abbr := &html.Node{
			Type:     html.ElementNode,
			Data:     "abbr",
			DataAtom: atom.Abbr,
			Attr:     []html.Attribute{{Key: "title", Val: abbrs[word]}},
		}
		abbr.AppendChild(&html.Node{Type: html.TextNode, Data: word})
		parent.InsertBefore(abbr, n)
		last = loc[1]
	}
	if last < len(text) {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: text[last:]}, n)
	}
	parent.RemoveChild(n)
}
