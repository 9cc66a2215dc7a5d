package ports

import (
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// Stream creates a deterministic RNG for one unit of work (e.g. one protein),
	// so resampling results do not depend on scheduling order.
	Stream(baseSeed int64, stageName, unitKey string) *rand.Rand
}
