package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"math"
	"sort"
)

// Hash is a hex-encoded SHA-256 digest
type Hash string

func (h Hash) String() string { return string(h) }

func (h Hash) IsEmpty() bool { return h == "" }

// Short returns the first 12 hex characters, enough for cache keys and logs.
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

type (
	TableHash    Hash
	StrategyHash Hash
)

func (h TableHash) String() string    { return Hash(h).String() }
func (h StrategyHash) String() string { return Hash(h).String() }

// Hasher feeds length-prefixed fields into SHA-256, so adjacent fields can
// never run together ("ab","c" and "a","bc" hash differently).
type Hasher struct {
	h   hash.Hash
	buf [8]byte
}

// NewHasher starts a digest
func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

// String adds one string field
func (h *Hasher) String(s string) *Hasher {
	h.Int(int64(len(s)))
	h.h.Write([]byte(s))
	return h
}

// Int adds one integer field
func (h *Hasher) Int(v int64) *Hasher {
	binary.LittleEndian.PutUint64(h.buf[:], uint64(v))
	h.h.Write(h.buf[:])
	return h
}

// Float adds the exact bits of v. All NaNs hash alike.
func (h *Hasher) Float(v float64) *Hasher {
	bits := math.Float64bits(v)
	if math.IsNaN(v) {
		bits = math.Float64bits(math.NaN())
	}
	binary.LittleEndian.PutUint64(h.buf[:], bits)
	h.h.Write(h.buf[:])
	return h
}

// Sum returns the digest
func (h *Hasher) Sum() Hash {
	return Hash(hex.EncodeToString(h.h.Sum(nil)))
}

// ComputeStrategyHash hashes named parameters in key order.
func ComputeStrategyHash(params map[string]interface{}) StrategyHash {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := NewHasher().Int(int64(len(keys)))
	for _, k := range keys {
		h.String(k).String(fmt.Sprintf("%T:%v", params[k], params[k]))
	}
	return StrategyHash(h.Sum())
}
