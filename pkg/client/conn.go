package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/cachemir/shardline/pkg/protocol"
)

// conn is the single persistent connection to one shard.
//
// Writers hold writeMu across queueing a request and writing its frame, so
// the queue order is the write order and no response can arrive before its
// request is queued. The read loop only takes the sequencer's lock, so a
// writer blocked on a full socket never stalls response handling.
type conn struct {
	nc      net.Conn         // Underlying stream
	logger  *log.Logger      // Destination for connection events
	done    chan struct{}    // Closed when the read loop exits
	addr    string           // Shard address
	framing protocol.Framing // Frame delimiting
	seq     sequencer        // Pending requests in send order
	shard   int              // Shard index
	bufSize int              // Bytes per read in delivery framing
	writeMu sync.Mutex       // Serializes enqueue+write pairs
}

func newConn(nc net.Conn, shard int, addr string, framing protocol.Framing, bufSize int, logger *log.Logger) *conn {
	c := &conn{
		nc:      nc,
		logger:  logger,
		done:    make(chan struct{}),
		addr:    addr,
		framing: framing,
		shard:   shard,
		bufSize: bufSize,
	}
	go c.readLoop()
	return c
}

// roundTrip sends frame and waits for the matching response.
//
// If ctx ends first the request stays queued, since the shard will still
// answer it; that response is discarded when it arrives.
func (c *conn) roundTrip(ctx context.Context, op protocol.Opcode, frame []byte) (*protocol.Response, error) {
	p := newPending(op)
	if err := c.enqueueAndSend(p, frame); err != nil {
		return nil, err
	}

	select {
	case r := <-p.done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// enqueueAndSend queues p and writes its frame as one step. A failed write
// leaves the stream in an unknown state, so it fails the connection, and p
// with it.
func (c *conn) enqueueAndSend(p *pending, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.seq.push(p); err != nil {
		return err
	}

	if err := protocol.WriteFrame(c.nc, frame, c.framing); err != nil {
		c.fail(&TransportError{Shard: c.shard, Addr: c.addr, Err: err})
	}
	return nil
}

func (c *conn) readLoop() {
	defer close(c.done)

	var err error
	if c.framing == protocol.FramingLengthPrefixed {
		err = c.readFrames()
	} else {
		err = c.readDeliveries()
	}
	c.fail(err)
}

func (c *conn) readDeliveries() error {
	buf := make([]byte, c.bufSize)
	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			if derr := c.seq.deliver(buf[:n]); derr != nil {
				return c.terminal(derr)
			}
		}
		if err != nil {
			return c.terminal(err)
		}
	}
}

func (c *conn) readFrames() error {
	r := bufio.NewReaderSize(c.nc, c.bufSize)
	for {
		frame, err := protocol.ReadFrame(r)
		if err != nil {
			return c.terminal(err)
		}
		if derr := c.seq.deliverFrame(frame); derr != nil {
			return c.terminal(derr)
		}
	}
}

// terminal turns the error that ended the read loop into the connection's
// terminal error.
func (c *conn) terminal(err error) error {
	if errors.Is(err, ErrProtocolDesync) {
		return fmt.Errorf("shard %d (%s): %w", c.shard, c.addr, err)
	}
	if errors.Is(err, ErrClosed) {
		return err
	}
	return &TransportError{Shard: c.shard, Addr: c.addr, Err: err}
}

// fail makes err terminal: pending requests resolve with it, later requests
// are rejected with it, and the stream is closed.
func (c *conn) fail(err error) {
	if !c.seq.fail(err) {
		return
	}

	switch {
	case errors.Is(err, ErrClosed):
	case errors.Is(err, ErrProtocolDesync):
		c.logger.Printf("Closing connection to shard %d: %v", c.shard, err)
	default:
		c.logger.Printf("Lost connection to shard %d: %v", c.shard, err)
	}

	if cerr := c.nc.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		c.logger.Printf("Error closing connection: %v", cerr)
	}
}

// close fails pending requests with ErrClosed and waits for the read loop.
func (c *conn) close() {
	c.fail(ErrClosed)
	<-c.done
}

// pendingCount returns the number of requests awaiting a response.
func (c *conn) pendingCount() int {
	return c.seq.Len()
}
