// Package hash maps cache keys to 64-bit hashes and hashes to shard indices.
//
// Every request frame carries the key's hash, and the same hash selects the
// shard that owns the key, so both sides of the protocol have to agree on the
// function. The hash is XXH64 with seed 0.
//
// Example usage:
//
//	r, err := hash.NewRouter(4, hash.KeyHashingDecimal)
//	if err != nil {
//		log.Fatal(err)
//	}
//	h, shard := r.Route([]byte("user:123"))
//	fmt.Printf("hash=%x shard=%d\n", h, shard)
//
// The router guarantees that:
//   - The same key always maps to the same shard for a given shard count
//   - The hash embedded in the frame is the one used for routing
package hash

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// KeyHashing selects how key bytes are turned into the XXH64 input.
type KeyHashing string

const (
	// KeyHashingDecimal hashes the key rendered as comma-separated decimal
	// byte values ("hi" becomes "104,105"). Clusters shared with existing
	// clients of the protocol place keys this way.
	KeyHashingDecimal KeyHashing = "decimal"

	// KeyHashingRaw hashes the raw key bytes.
	KeyHashingRaw KeyHashing = "raw"
)

// Modes lists every supported KeyHashing value.
var Modes = []KeyHashing{KeyHashingDecimal, KeyHashingRaw}

// Sum64 computes the 64-bit hash of key under the given mode.
// An unrecognised mode falls back to KeyHashingDecimal.
func Sum64(key []byte, mode KeyHashing) uint64 {
	if mode == KeyHashingRaw {
		return xxhash.Sum64(key)
	}
	return xxhash.Sum64(decimalForm(key))
}

// decimalForm renders key as "b0,b1,...,bn" in base 10.
func decimalForm(key []byte) []byte {
	if len(key) == 0 {
		return nil
	}
	buf := make([]byte, 0, len(key)*4)
	for i, b := range key {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendUint(buf, uint64(b), 10)
	}
	return buf
}

// ShardOf returns hash mod shardCount. shardCount must be positive.
func ShardOf(hash uint64, shardCount int) int {
	return int(hash % uint64(shardCount))
}

// Router routes keys to one of a fixed number of shards.
// A Router is immutable and safe for concurrent use.
type Router struct {
	mode   KeyHashing
	shards int
}

// NewRouter creates a Router over shardCount shards.
//
// Returns an error if shardCount is not positive or mode is unknown.
func NewRouter(shardCount int, mode KeyHashing) (*Router, error) {
	if shardCount <= 0 {
		return nil, fmt.Errorf("shard count must be positive: %d", shardCount)
	}
	if mode != KeyHashingDecimal && mode != KeyHashingRaw {
		return nil, fmt.Errorf("unknown key hashing mode: %q", mode)
	}
	return &Router{mode: mode, shards: shardCount}, nil
}

// Route returns the hash of key and the index of the shard that owns it.
func (r *Router) Route(key []byte) (uint64, int) {
	h := Sum64(key, r.mode)
	return h, ShardOf(h, r.shards)
}

// Shards returns the number of shards the router distributes over.
func (r *Router) Shards() int {
	return r.shards
}

// Mode returns the key hashing mode.
func (r *Router) Mode() KeyHashing {
	return r.mode
}
