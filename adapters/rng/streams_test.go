package rng

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamsAreKeyed(t *testing.T) {
	s := NewStreams()
	a := s.Stream(42, "permutation", "P1|trt").Int63()
	b := s.Stream(42, "permutation", "P1|trt").Int63()
	c := s.Stream(42, "permutation", "P2|trt").Int63()
	d := s.Stream(43, "permutation", "P1|trt").Int63()

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
}
