package dedupe

// Option configures a Deduper built by New.
type Option func(*window)

// WithMaxSize sets how many IDs are remembered. Once full, recording a new
// ID forgets the oldest one. maxSize <= 0 keeps every ID.
func WithMaxSize(maxSize int) Option {
	return func(w *window) {
		w.maxSize = maxSize
	}
}
