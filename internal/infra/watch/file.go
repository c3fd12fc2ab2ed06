package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Option configures a watcher.
type Option func(*options)

type options struct {
	debounce time.Duration
	logger   *slog.Logger
}

// WithDebounceDuration sets the debounce duration.
func WithDebounceDuration(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

// WithLogger sets the logger used for watch errors.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{debounce: DefaultDebounceDuration, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// File calls onChange when the file at path is written, created, renamed or removed
// by anyone, this process included. It watches the parent directory so the
// temp-file-and-rename writes of the file store are seen. Blocks until ctx is done.
func File(ctx context.Context, path string, onChange func(), opts ...Option) error {
	o := buildOptions(opts)

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	dir := filepath.Dir(abs)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	deb := NewDebouncer(o.debounce)
	defer deb.Cancel()

	target := filepath.Base(abs)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				deb.Trigger(onChange)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			o.logger.Warn("index file watch error", "path", abs, "err", err)
		}
	}
}
