package bootstrap

import "errors"

var (
	// ErrResolver is wrapped by every resolution failure.
	ErrResolver = errors.New("seed resolution failed")

	// ErrNoSeeds is returned by a SeedSource with an empty seed list.
	ErrNoSeeds = errors.New("no seeds configured")
)
