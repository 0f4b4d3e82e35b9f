package keylock

// Option applies a configuration option to the Locker.
type Option func(*keyed)

// WithMaxKeys caps the number of distinct keys held or awaited at once.
// Zero or negative means unbounded.
func WithMaxKeys(n int) Option {
	return func(l *keyed) {
		l.maxKeys = n
	}
}
