package store

import (
	"log/slog"
	"regexp"
	"strings"
	"time"
)

const (
	DefaultProject  = "brd"
	DefaultDebounce = 100 * time.Millisecond
)

var projectPrefixRe = regexp.MustCompile(`^[a-z0-9]{3}$`)

type options struct {
	project  string
	logger   *slog.Logger
	debounce time.Duration
	watch    bool
	newID    func(prefix string) (string, error)
}

type Option func(*options)

// WithProject sets the id prefix. Invalid prefixes fall back to DefaultProject.
func WithProject(prefix string) Option {
	return func(o *options) {
		prefix = strings.ToLower(strings.TrimSpace(prefix))
		if projectPrefixRe.MatchString(prefix) {
			o.project = prefix
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithWatchDebounce sets how long file events must settle before the store
// re-reads changes made by other processes.
func WithWatchDebounce(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// WithoutWatch disables cross-process change detection.
func WithoutWatch() Option {
	return func(o *options) { o.watch = false }
}

// withIDSource replaces the random id generator.
func withIDSource(fn func(prefix string) (string, error)) Option {
	return func(o *options) { o.newID = fn }
}

func buildOptions(opts []Option) options {
	o := options{
		project:  DefaultProject,
		logger:   slog.Default(),
		debounce: DefaultDebounce,
		watch:    true,
		newID:    newIssueID,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
