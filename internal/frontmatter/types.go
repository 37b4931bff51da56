package frontmatter

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StringList accepts a YAML sequence (nested sequences are flattened, as Hexo
// writes hierarchical categories) or a single scalar.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	out, err := collectScalars(node, nil)
	if err != nil {
		return err
	}
	*l = out
	return nil
}

func collectScalars(node *yaml.Node, out []string) ([]string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return out, nil
		}
		return append(out, node.Value), nil
	case yaml.SequenceNode:
		for _, child := range node.Content {
			var err error
			if out, err = collectScalars(child, out); err != nil {
				return nil, err
			}
		}
		return out, nil
	case yaml.AliasNode:
		return collectScalars(node.Alias, out)
	default:
		return nil, fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
	}
}

// unique trims entries, drops empty ones and removes repeats, keeping the
// first occurrence.
func (l StringList) unique() []string {
	out := make([]string, 0, len(l))
	seen := make(map[string]struct{}, len(l))
	for _, s := range l {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Timestamp is a post date written in one of the layouts static site
// generators emit. Values without a zone are read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses s with the first matching layout.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (ts *Timestamp) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: date must be a scalar", node.Line)
	}
	t, err := ParseTimestamp(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	ts.Time = t
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler; the TOML decoder hands
// dates over through it.
func (ts *Timestamp) UnmarshalText(text []byte) error {
	t, err := ParseTimestamp(string(text))
	if err != nil {
		return err
	}
	ts.Time = t
	return nil
}
