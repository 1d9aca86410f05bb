package dedupe

// defaultMaxTrackedKeys bounds memory in the default configuration; a
// household deployment tracks a handful of contacts, so the cap is generous.
const defaultMaxTrackedKeys = 10000

// Option applies a configuration option to the in-memory deduper.
type Option func(*inMemoryDeduper)

// WithMaxSize caps the number of tracked keys. Zero or negative disables the
// cap and eviction entirely.
func WithMaxSize(n int) Option {
	return func(d *inMemoryDeduper) {
		d.maxSize = n
	}
}
