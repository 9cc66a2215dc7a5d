// Package rng provides deterministic random streams keyed by unit of work.
package rng

import (
	"math/rand"
)

// Streams implements ports.RNGPort. A stream depends only on the base seed,
// stage and unit key, never on scheduling order.
type Streams struct{}

// NewStreams creates a stream factory
func NewStreams() *Streams {
	return &Streams{}
}

// Stream creates a deterministic RNG stream for one stage and unit
func (s *Streams) Stream(baseSeed int64, stageName, unitKey string) *rand.Rand {
	seed := baseSeed
	if stageName != "" {
		seed = seed*31 + int64(hashString(stageName))
	}
	if unitKey != "" {
		seed = seed*31 + int64(hashString(unitKey))
	}
	return rand.New(rand.NewSource(seed))
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c) // djb2
	}
	return hash
}
