package pool

import "errors"

var (
	// ErrStopped is returned by operations on a stopped pool.
	ErrStopped = errors.New("peer pool stopped")

	// ErrNoAddresses is returned when the address source yields nothing.
	ErrNoAddresses = errors.New("no peer addresses available")
)
