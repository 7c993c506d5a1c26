package client

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned for requests on a closed client, and to requests
	// still pending when Close was called.
	ErrClosed = errors.New("client closed")

	// ErrProtocolDesync means a shard sent a response while no request was
	// pending on the connection. The connection is unusable afterwards.
	ErrProtocolDesync = errors.New("protocol desync: response without pending request")

	// ErrInvalidTTL is returned for a negative ttl or one that does not fit
	// the 32-bit seconds field.
	ErrInvalidTTL = errors.New("invalid ttl")
)

// TransportError reports a connection that could not be established or was
// lost. It is terminal for that shard's connection.
type TransportError struct {
	Err   error  // Underlying network error
	Addr  string // Shard address
	Shard int    // Shard index
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("shard %d (%s): %v", e.Shard, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
