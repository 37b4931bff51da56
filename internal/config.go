package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2/styles"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/halosync/internal/halo"
	"github.com/starford/halosync/internal/render"
)

// Auth modes of the status feed.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

var colorRe = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Config represents the application configuration. The file is JSON; it is
// read through the YAML decoder so YAML files work too.
type Config struct {
	HaloSite       string        `yaml:"haloSite"`
	UserToken      string        `yaml:"userToken"`
	Published      *bool         `yaml:"published"`
	LogLevel       slog.Level    `yaml:"logLevel"`
	RequestDelay   time.Duration `yaml:"requestDelay"`
	StatePath      string        `yaml:"statePath"`
	AllowComment   bool          `yaml:"allowComment"`
	Visible        string        `yaml:"visible"`
	TaxonomyColor  string        `yaml:"taxonomyColor"`
	HighlightStyle string        `yaml:"highlightStyle"`
	Status         StatusConfig  `yaml:"status"`
}

// Validate validates the configuration and normalises the site URL.
func (c *Config) Validate() error {
	c.HaloSite = strings.TrimRight(strings.TrimSpace(c.HaloSite), "/")

	if err := validation.ValidateStruct(c,
		validation.Field(&c.HaloSite, validation.Required, is.URL, validation.Match(regexp.MustCompile(`^https?://`)).Error("must start with http:// or https://")),
		validation.Field(&c.UserToken, validation.Required),
		validation.Field(&c.Published, validation.NotNil),
		validation.Field(&c.RequestDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.Visible, validation.Required, validation.In(halo.VisiblePublic, halo.VisibleInternal, halo.VisiblePrivate)),
		validation.Field(&c.TaxonomyColor, validation.Required, validation.Match(colorRe)),
		validation.Field(&c.HighlightStyle, validation.Required, validation.By(knownStyle)),
	); err != nil {
		return err
	}
	return c.Status.Validate()
}

// Publish reports whether posts are published after create or update.
func (c *Config) Publish() bool {
	return c.Published != nil && *c.Published
}

func knownStyle(value any) error {
	name, _ := value.(string)
	if _, ok := styles.Registry[strings.ToLower(name)]; !ok {
		return errors.New("unknown highlight style")
	}
	return nil
}

// StatusConfig configures the live status feed served in watch mode.
//
// AuthMode controls how the feed is protected:
//   - "disabled" (default): no authentication required.
//   - "token": Bearer token authentication; Token must be non-empty.
type StatusConfig struct {
	Listen   string `yaml:"listen"`
	AuthMode string `yaml:"authMode"`
	Token    string `yaml:"token"`
}

// Validate validates the status feed configuration.
func (c *StatusConfig) Validate() error {
	if c.AuthMode == "" {
		c.AuthMode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.AuthMode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.AuthMode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("status: authMode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when the status feed requires a token.
func (c *StatusConfig) AuthEnabled() bool {
	return c.AuthMode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
// Published stays nil: the file must set it.
func NewDefaultConfig() *Config {
	return &Config{
		LogLevel:       slog.LevelInfo,
		RequestDelay:   100 * time.Millisecond,
		AllowComment:   true,
		Visible:        halo.VisiblePublic,
		TaxonomyColor:  "#ffffff",
		HighlightStyle: render.DefaultHighlightStyle,
		Status: StatusConfig{
			AuthMode: AuthModeDisabled,
		},
	}
}
