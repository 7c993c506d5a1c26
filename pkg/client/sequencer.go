package client

import (
	"sync"

	"github.com/cachemir/shardline/pkg/protocol"
)

// result is the outcome delivered to a pending request.
type result struct {
	resp *protocol.Response
	err  error
}

// pending is one request that has been written and awaits its response.
// done is buffered so resolving never blocks, even for abandoned waits.
type pending struct {
	done chan result
	op   protocol.Opcode
}

func newPending(op protocol.Opcode) *pending {
	return &pending{op: op, done: make(chan result, 1)}
}

// sequencer matches responses on one connection to pending requests purely
// by order: the oldest pending request owns the next response.
//
// Every pending request leaves the queue exactly once, either through a
// response or through fail.
type sequencer struct {
	queue   []*pending // Oldest first
	partial []byte     // Start of a response frame awaiting more bytes
	err     error      // Terminal error, nil while usable
	mu      sync.Mutex
}

// push appends p to the queue. It fails with the terminal error once the
// sequencer has failed.
func (s *sequencer) push(p *pending) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.queue = append(s.queue, p)
	return nil
}

func (s *sequencer) popLocked() *pending {
	p := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return p
}

// deliver consumes one read from the connection. Frames whose length follows
// from the pending request's opcode are split out of merged reads and joined
// across split reads; a successful GET takes the rest of the read.
//
// Returns ErrProtocolDesync if bytes remain with no request pending.
func (s *sequencer) deliver(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	data := chunk
	if len(s.partial) > 0 {
		data = append(s.partial, chunk...)
		s.partial = nil
	}

	for len(data) > 0 {
		if len(s.queue) == 0 {
			return ErrProtocolDesync
		}

		p := s.queue[0]
		n, ok := protocol.ResponseLength(p.op, data)
		if !ok {
			s.partial = append([]byte(nil), data...)
			return nil
		}

		s.popLocked()
		resp, err := protocol.DecodeResponse(p.op, data[:n])
		p.done <- result{resp: resp, err: err}
		data = data[n:]
	}
	return nil
}

// deliverFrame resolves the oldest pending request with one complete frame.
//
// Returns ErrProtocolDesync if no request is pending.
func (s *sequencer) deliverFrame(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	if len(s.queue) == 0 {
		return ErrProtocolDesync
	}

	p := s.popLocked()
	resp, err := protocol.DecodeResponse(p.op, frame)
	p.done <- result{resp: resp, err: err}
	return nil
}

// fail makes err terminal and resolves every pending request with it.
// Only the first call has an effect; it reports whether this was that call.
func (s *sequencer) fail(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return false
	}
	s.err = err
	for _, p := range s.queue {
		p.done <- result{err: err}
	}
	s.queue = nil
	s.partial = nil
	return true
}

// Len returns the number of requests sent but not yet resolved.
func (s *sequencer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
