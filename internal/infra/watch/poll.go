package watch

import (
	"context"
	"time"
)

// DefaultPollInterval is used when Store gets a non-positive interval.
const DefaultPollInterval = 2 * time.Second

// Fingerprinter exposes a value that changes whenever the stored data changes.
type Fingerprinter interface {
	Fingerprint(ctx context.Context) (string, error)
}

// Store polls src every interval and calls onChange when its fingerprint moves.
// The first successful read only sets the baseline. Blocks until ctx is done.
func Store(ctx context.Context, src Fingerprinter, interval time.Duration, onChange func(), opts ...Option) error {
	o := buildOptions(opts)
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		last string
		seen bool
	)
	check := func() {
		fp, err := src.Fingerprint(ctx)
		if err != nil {
			if ctx.Err() == nil {
				o.logger.Warn("index store poll failed", "err", err)
			}
			return
		}
		if seen && fp != last {
			onChange()
		}
		last, seen = fp, true
	}

	check()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			check()
		}
	}
}
