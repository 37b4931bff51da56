package internal

import (
	"io"
	"time"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config       *Config
	root         string
	listen       string
	debounce     time.Duration
	historyLimit int
	out          io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithRoot sets the posts folder to sync.
func WithRoot(root string) Option {
	return func(a *application) {
		a.root = root
	}
}

// WithListen sets the status feed address for watch mode, overriding the
// configured one.
func WithListen(addr string) Option {
	return func(a *application) {
		a.listen = addr
	}
}

// WithDebounce sets the quiet period before watch mode syncs changed files.
func WithDebounce(d time.Duration) Option {
	return func(a *application) {
		a.debounce = d
	}
}

// WithHistoryLimit sets how many runs History prints.
func WithHistoryLimit(n int) Option {
	return func(a *application) {
		a.historyLimit = n
	}
}

// WithOutput sets where History prints its table.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.out = w
	}
}
