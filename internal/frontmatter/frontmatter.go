// Package frontmatter extracts and strips the metadata block at the top of a
// Markdown post.
package frontmatter

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/adrg/frontmatter"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/starford/halosync/internal/apperr"
)

const (
	yamlDelim = "---"
	tomlDelim = "+++"
)

// FrontMatter holds the fields a post declares in its metadata block.
type FrontMatter struct {
	Title      string
	Tags       []string
	Categories []string
	Cover      string
	Sticky     bool
	Date       *time.Time
	Abbrlink   string

	// Keys lists the declared keys in source order (sorted for TOML blocks).
	Keys []string
	// Raw holds every declared field as decoded.
	Raw map[string]any
}

// Has reports whether key was declared, whatever its value.
func (fm *FrontMatter) Has(key string) bool {
	_, ok := fm.Raw[key]
	return ok
}

type envelope struct {
	Title      string     `yaml:"title" toml:"title"`
	Tags       StringList `yaml:"tags" toml:"tags"`
	Categories StringList `yaml:"categories" toml:"categories"`
	Cover      string     `yaml:"cover" toml:"cover"`
	Date       *Timestamp `yaml:"date" toml:"date"`
	Abbrlink   string     `yaml:"abbrlink" toml:"abbrlink"`
}

// block captures the delimited text handed over by adrg/frontmatter so the
// same bytes can be decoded into both the typed envelope and the raw map.
type block struct {
	data   []byte
	format string
}

func capture(format string) frontmatter.UnmarshalFunc {
	return func(data []byte, v interface{}) error {
		b, ok := v.(*block)
		if !ok {
			return fmt.Errorf("frontmatter: unexpected target %T", v)
		}
		b.data = append([]byte(nil), data...)
		b.format = format
		return nil
	}
}

var formats = []*frontmatter.Format{
	frontmatter.NewFormat(yamlDelim, yamlDelim, capture("yaml")),
	frontmatter.NewFormat(tomlDelim, tomlDelim, capture("toml")),
}

// Parse locates the front-matter block of content and decodes it.
// It returns apperr.ErrNoFrontMatter when no block is present or the block
// declares nothing; decode failures are returned wrapped.
func Parse(content []byte) (*FrontMatter, error) {
	if Strip(string(content)) == string(content) {
		return nil, apperr.ErrNoFrontMatter
	}

	var b block
	if _, err := frontmatter.Parse(bytes.NewReader(content), &b, formats...); err != nil {
		return nil, fmt.Errorf("frontmatter: %w", err)
	}
	if len(bytes.TrimSpace(b.data)) == 0 {
		return nil, apperr.ErrNoFrontMatter
	}

	var (
		env  envelope
		raw  map[string]any
		keys []string
		err  error
	)
	switch b.format {
	case "toml":
		raw, keys, err = decodeTOML(b.data, &env)
	default:
		raw, keys, err = decodeYAML(b.data, &env)
	}
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, apperr.ErrNoFrontMatter
	}

	fm := &FrontMatter{
		Title:      strings.TrimSpace(env.Title),
		Tags:       env.Tags.unique(),
		Categories: env.Categories.unique(),
		Cover:      env.Cover,
		Abbrlink:   strings.TrimSpace(env.Abbrlink),
		Keys:       keys,
		Raw:        raw,
	}
	fm.Sticky = fm.Has("sticky")
	if env.Date != nil {
		t := env.Date.Time
		fm.Date = &t
	}
	return fm, nil
}

func decodeYAML(data []byte, env *envelope) (map[string]any, []string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("frontmatter: decode yaml: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, nil, errors.New("frontmatter: yaml block is not a mapping")
	}

	var keys []string
	for i := 0; i+1 < len(root.Content); i += 2 {
		keys = append(keys, root.Content[i].Value)
	}

	var raw map[string]any
	if err := root.Decode(&raw); err != nil {
		return nil, nil, fmt.Errorf("frontmatter: decode yaml: %w", err)
	}
	if err := root.Decode(env); err != nil {
		return nil, nil, fmt.Errorf("frontmatter: decode yaml fields: %w", err)
	}
	return raw, keys, nil
}

func decodeTOML(data []byte, env *envelope) (map[string]any, []string, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("frontmatter: decode toml: %w", err)
	}
	if err := toml.Unmarshal(data, env); err != nil {
		return nil, nil, fmt.Errorf("frontmatter: decode toml fields: %w", err)
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return raw, keys, nil
}

// Strip removes the first front-matter block from content, from its opening
// delimiter through the next matching delimiter. Content without a closing
// delimiter is returned unchanged.
func Strip(content string) string {
	delim := yamlDelim
	if strings.HasPrefix(strings.TrimLeft(content, " \t\r\n\ufeff"), tomlDelim) {
		delim = tomlDelim
	}

	start := strings.Index(content, delim)
	if start < 0 {
		return content
	}
	rest := content[start+len(delim):]
	end := strings.Index(rest, delim)
	if end < 0 {
		return content
	}
	return content[:start] + rest[end+len(delim):]
}
