// Package shardline is a client runtime for a sharded in-memory cache that
// speaks a small fixed binary protocol.
//
// A cluster is a set of independent shard servers on consecutive ports of one
// host. The client hashes every key with XXH64, picks the shard from the hash
// and pipelines requests over one persistent connection per shard. Shards
// answer in request order and responses carry no identifier, so each
// connection matches them to requests with a FIFO queue.
//
// # Architecture Overview
//
//   - Client: one connection per shard, pipelined requests, typed errors
//   - Router: deterministic key to shard mapping
//   - Protocol: GET/PUT/DELETE request frames and status-byte responses
//   - Development shard: an in-process or standalone server for local use
//   - Configuration: environment variables for the client, flags for shards
//
// # Quick Start
//
// Shards:
//
//	./shardline-server -base-port 3000 -shards 4
//
// Client:
//
//	import "github.com/cachemir/shardline/pkg/client"
//
//	c, err := client.Connect("localhost", 3000, 4)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Close()
//
//	err = c.Put([]byte("hello"), []byte("world"), 10*time.Second)
//	value, err := c.Get([]byte("hello"))
//	err = c.Del([]byte("hello"))
//
// # Wire Protocol
//
// Requests (multi-byte integers: hash big-endian, lengths and TTL little-endian):
//
//	GET    0x00 | hash(8) | key
//	PUT    0x01 | hash(8) | ttl(4) | keyLen(4) | key | valueLen(4) | value
//	DELETE 0x02 | hash(8) | key
//
// Responses start with a status byte. Non-zero is success and a GET success
// carries the value in the remaining bytes. Zero is failure, followed by one
// error code byte (KeyTooLong, ValueTooLong, OutOfMemory, RecordEmpty,
// TtlExpired, RecordNotFound, NotEnoughBytes, NoReturn, CommandNotFound).
//
// # Configuration
//
// Client configuration via environment variables:
//
//	CACHEMIR_HOST=cache.internal CACHEMIR_BASE_PORT=3000 CACHEMIR_SHARDS=8 ./app
//
// # Package Structure
//
//   - pkg/client: Client, connections and the response sequencer
//   - pkg/protocol: Frame codec, error kinds and framing modes
//   - pkg/hash: XXH64 key hashing and shard selection
//   - pkg/cache: Record store behind a development shard
//   - pkg/config: Client and server configuration
//   - internal/server: Development shard server and cluster
//   - cmd/server: Shard cluster executable
//   - cmd/client-example: Example client and one-shot command runner
//
// For detailed documentation of individual packages, see their respective godoc pages.
package shardline
