package tradesync

import "time"

const (
	// DefaultFreshness applies when neither Options nor the call sets a window.
	DefaultFreshness = 30 * time.Second
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
