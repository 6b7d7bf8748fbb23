package treefs

import "sync"

// Lazy is a once-initialized cell. The first Get computes the value; later calls,
// including concurrent ones, observe the same value and error. It is never reset.
type Lazy[T any] struct {
	once sync.Once
	val  T
	err  error
}

// Get returns the memoized result of fn, calling it on first use only.
func (l *Lazy[T]) Get(fn func() (T, error)) (T, error) {
	l.once.Do(func() {
		l.val, l.err = fn()
	})
	return l.val, l.err
}

// Set stores v as the result if the cell has not been computed yet.
// Adapters use it to seed a child's cell from information learned while listing its parent.
func (l *Lazy[T]) Set(v T) {
	l.once.Do(func() {
		l.val = v
	})
}
