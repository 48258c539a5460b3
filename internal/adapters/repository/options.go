package repository

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithRetention bounds the number of stored batches. Once exceeded, the
// oldest finished batches are dropped; running batches are always kept.
func WithRetention(n int) Option {
	return func(s *MemoryStore) {
		if n > 0 {
			s.retention = n
		}
	}
}
