// Package shardline collects the public building blocks of the sharded cache
// client.
//
// # Components
//
// Client (pkg/client):
//   - Connects to every shard up front; construction fails if any shard fails
//   - One connection per shard, shared by all goroutines
//   - Requests are pipelined; responses resolve the oldest pending request
//   - Get, Put and Del with context-aware variants, plus Do for raw requests
//
// Protocol (pkg/protocol):
//   - Encodes and decodes GET, PUT and DELETE frames
//   - Maps error codes to ErrorKind values usable with errors.Is
//   - Delivery framing (one read is one response) or an opt-in 4-byte length prefix
//   - Text commands for tools: "GET k", "PUT k v 60", "DEL k"
//
// Hashing (pkg/hash):
//   - XXH64 with seed 0
//   - Keys are hashed as raw bytes or, by default, as their comma-joined
//     decimal form to stay compatible with existing clusters
//   - Shard index is hash mod shard count
//
// Configuration (pkg/config):
//   - Client settings from defaults and CACHEMIR_* environment variables
//   - Shard server settings from flags, overridden by the environment
//   - Validation of ports, shard counts and modes
//
// Cache (pkg/cache):
//   - Byte records with optional expiry and a background sweep
//   - Key, value and memory limits reported as protocol error kinds
//
// # Error Handling
//
// Failures are returned, never retried:
//   - *protocol.ServerError when a shard answers with an error status
//   - *client.TransportError when a shard's stream fails
//   - client.ErrProtocolDesync when a response arrives with nothing pending
//   - client.ErrClosed after Close
//
// A connection that fails stays failed; every later request on it returns
// the same error.
//
// # Thread Safety
//
// Client, Router and Cache are safe for concurrent use.
package shardline
