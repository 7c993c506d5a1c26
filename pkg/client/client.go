// Package client provides the client runtime for a sharded cache cluster that
// speaks the fixed binary frame protocol.
//
// A Client holds exactly one persistent connection per shard. Each key is
// hashed, the hash picks the shard, and the request frame (which carries the
// hash) is written on that shard's connection. Responses carry no request
// identifier: each connection keeps its outstanding requests in a FIFO queue
// and the next response always belongs to the oldest one. Many requests may
// be in flight on one connection at a time.
//
// Key Features:
//   - Deterministic shard selection (XXH64 of the key, modulo shard count)
//   - Pipelined requests with strict per-connection response ordering
//   - All-or-nothing construction: every shard connects or New fails
//   - Typed failures: *protocol.ServerError, *TransportError, ErrProtocolDesync
//   - Thread-safe operations
//
// Basic Usage:
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
//	_, err = c.Get([]byte("hello"))
//	if errors.Is(err, protocol.RecordNotFound) {
//		// gone
//	}
//
// There is no retry, reconnection or request cancellation. A connection that
// fails stays failed, and every request on it returns the error that ended it.
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net"
	"sync"
	"time"

	"github.com/cachemir/shardline/pkg/config"
	"github.com/cachemir/shardline/pkg/hash"
	"github.com/cachemir/shardline/pkg/protocol"
)

// DialFunc opens the stream to one shard.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Option customises a Client.
type Option func(*options)

type options struct {
	dial   DialFunc
	logger *log.Logger
}

// WithDialer replaces the TCP dialer used to reach shards.
func WithDialer(dial DialFunc) Option {
	return func(o *options) { o.dial = dial }
}

// WithLogger sets the logger for connection events. Defaults to log.Default();
// a nil logger keeps the default.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Client is connected to every shard of a cluster.
// It is safe for concurrent use by multiple goroutines.
type Client struct {
	config    *config.ClientConfig // Client configuration
	router    *hash.Router         // Key to shard mapping
	logger    *log.Logger          // Connection event log
	conns     []*conn              // One connection per shard, by index
	closeOnce sync.Once            // Guards Close
}

// Connect creates a Client for shards reachable at host:basePort+i, using
// default settings for everything else.
func Connect(host string, basePort, shards int, opts ...Option) (*Client, error) {
	cfg := config.DefaultClientConfig()
	cfg.Host = host
	cfg.BasePort = basePort
	cfg.Shards = shards
	return New(cfg, opts...)
}

// New validates cfg and connects to every shard.
//
// Either every connection succeeds and a ready Client is returned, or all
// connections made so far are closed and the error lists each failed shard
// as a *TransportError (joined with errors.Join).
func New(cfg *config.ClientConfig, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	router, err := hash.NewRouter(cfg.Shards, cfg.KeyHashing)
	if err != nil {
		return nil, err
	}

	o := options{logger: log.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dial == nil {
		dialer := &net.Dialer{}
		o.dial = dialer.DialContext
	}

	c := &Client{
		config: cfg,
		router: router,
		logger: o.logger,
	}
	if err := c.connectAll(o.dial); err != nil {
		return nil, err
	}
	return c, nil
}

// connectAll dials every shard concurrently.
func (c *Client) connectAll(dial DialFunc) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(c.config.ConnTimeout)*time.Second)
	defer cancel()

	conns := make([]*conn, c.config.Shards)
	errs := make([]error, c.config.Shards)

	var wg sync.WaitGroup
	for i := range conns {
		wg.Add(1)
		go func(shard int) {
			defer wg.Done()

			addr := c.config.Address(shard)
			nc, err := dial(ctx, "tcp", addr)
			if err != nil {
				errs[shard] = &TransportError{Shard: shard, Addr: addr, Err: err}
				return
			}
			conns[shard] = newConn(nc, shard, addr, c.config.Framing, c.config.ReadBufferSize, c.logger)
		}(i)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		for _, cn := range conns {
			if cn != nil {
				cn.close()
			}
		}
		return err
	}

	for i := range conns {
		c.logger.Printf("Connected to shard %d at %s", i, c.config.Address(i))
	}
	c.conns = conns
	return nil
}

// Get returns the value stored under key.
//
// Server-side failures are returned as *protocol.ServerError, for example
// errors.Is(err, protocol.RecordNotFound) for a missing key.
func (c *Client) Get(key []byte) ([]byte, error) {
	return c.GetContext(context.Background(), key)
}

// GetContext is Get that stops waiting when ctx ends.
func (c *Client) GetContext(ctx context.Context, key []byte) ([]byte, error) {
	resp, err := c.Do(ctx, protocol.NewGet(0, key))
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// Put stores value under key. ttl is rounded up to whole seconds; 0 means
// the record does not expire.
func (c *Client) Put(key, value []byte, ttl time.Duration) error {
	return c.PutContext(context.Background(), key, value, ttl)
}

// PutContext is Put that stops waiting when ctx ends.
func (c *Client) PutContext(ctx context.Context, key, value []byte, ttl time.Duration) error {
	secs, err := ttlSeconds(ttl)
	if err != nil {
		return err
	}
	_, err = c.Do(ctx, protocol.NewPut(0, key, value, secs))
	return err
}

// Del removes key.
func (c *Client) Del(key []byte) error {
	return c.DelContext(context.Background(), key)
}

// DelContext is Del that stops waiting when ctx ends.
func (c *Client) DelContext(ctx context.Context, key []byte) error {
	_, err := c.Do(ctx, protocol.NewDelete(0, key))
	return err
}

// Do routes req by its key, overwriting req.Hash with the routing hash,
// sends it and waits for the response. A response with a failure status is
// returned as a *protocol.ServerError.
//
// When ctx ends before the response arrives Do returns ctx.Err(); the request
// has still been sent and the shard will still execute it.
func (c *Client) Do(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	h, shard := c.router.Route(req.Key)
	req.Hash = h

	frame, err := req.Encode()
	if err != nil {
		return nil, err
	}

	resp, err := c.conns[shard].roundTrip(ctx, req.Op, frame)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp, nil
}

func ttlSeconds(ttl time.Duration) (uint32, error) {
	if ttl < 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidTTL, ttl)
	}

	secs := ttl / time.Second
	if ttl%time.Second != 0 {
		secs++
	}
	if secs > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidTTL, ttl)
	}
	return uint32(secs), nil
}

// Shard returns the index of the shard that owns key.
func (c *Client) Shard(key []byte) int {
	_, shard := c.router.Route(key)
	return shard
}

// Shards returns the number of shards.
func (c *Client) Shards() int {
	return c.router.Shards()
}

// Pending returns how many requests on the given shard's connection have
// been sent and not yet resolved.
func (c *Client) Pending(shard int) int {
	return c.conns[shard].pendingCount()
}

// Close closes every shard connection. Requests still waiting fail with
// ErrClosed, as do all later requests.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		var wg sync.WaitGroup
		for _, cn := range c.conns {
			wg.Add(1)
			go func(cn *conn) {
				defer wg.Done()
				cn.close()
			}(cn)
		}
		wg.Wait()
	})
	return nil
}
