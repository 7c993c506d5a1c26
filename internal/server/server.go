// Package server implements a development cache shard speaking the binary
// frame protocol.
//
// It exists so the client can be exercised end to end: tests, examples and
// local clusters run it, production deployments run their own cache engine.
//
// Architecture:
//   - One Server per shard, each with its own cache.Cache
//   - A Cluster starts Servers on consecutive ports (basePort+i)
//   - Every connection is served by one goroutine that answers requests in
//     the order they arrive, which is what the client's FIFO matching needs
//
// Example usage:
//
//	srv := server.New("127.0.0.1:3000", server.Options{Framing: protocol.FramingDelivery})
//	if err := srv.Start(); err != nil {
//		log.Fatal(err)
//	}
//
// Handled opcodes: GET, PUT, DELETE. Anything else is answered with
// CommandNotFound, short frames with NotEnoughBytes.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/cachemir/shardline/pkg/cache"
	"github.com/cachemir/shardline/pkg/protocol"
)

const (
	minReadBufferSize = 64 * 1024
	putOverhead       = 1 + 8 + 4 + 4 + 4 // opcode, hash, ttl, key and value lengths
)

// Options configures a single shard server.
type Options struct {
	Framing  protocol.Framing // Frame delimiting (default: delivery)
	LogLevel string           // "debug" logs every request
	Limits   cache.Limits     // Record limits of the shard's store
}

type handler func(*protocol.Request) *protocol.Response

// Server is one development cache shard.
type Server struct {
	cache    *cache.Cache                // The shard's store
	listener net.Listener                // TCP listener, nil until Listen
	conns    map[net.Conn]struct{}       // Open client connections
	handlers map[protocol.Opcode]handler // Opcode dispatch
	addr     string                      // Address to listen on
	opts     Options                     // Shard options
	mu       sync.Mutex                  // Protects listener, conns, closed
	closed   bool                        // Set by Stop
}

// New creates a Server that will listen on addr. It does not listen until
// Listen or Start is called.
func New(addr string, opts Options) *Server {
	if opts.Framing == "" {
		opts.Framing = protocol.FramingDelivery
	}

	s := &Server{
		cache: cache.New(opts.Limits),
		conns: make(map[net.Conn]struct{}),
		addr:  addr,
		opts:  opts,
	}
	s.handlers = map[protocol.Opcode]handler{
		protocol.OpGet:    s.handleGet,
		protocol.OpPut:    s.handlePut,
		protocol.OpDelete: s.handleDelete,
	}
	return s
}

// Listen binds the server's TCP listener.
func (s *Server) Listen() error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(context.Background(), "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	log.Printf("Shard listening on %s", listener.Addr())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start listens and then serves until Stop is called.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Serve accepts connections until Stop is called, handling each one in its
// own goroutine. It returns nil after Stop.
func (s *Server) Serve() error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()

	if listener == nil {
		return fmt.Errorf("server is not listening")
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			log.Printf("Failed to accept connection: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		go s.ServeConn(conn)
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Stop closes the listener and every open connection and stops the store's
// background sweep.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.cache.Close()

	for conn := range s.conns {
		if err := conn.Close(); err != nil {
			log.Printf("Error closing connection: %v", err)
		}
	}

	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Stats returns the shard's store statistics.
func (s *Server) Stats() cache.Stats {
	return s.cache.Stats()
}

// ServeConn answers requests on conn until it fails or the server stops.
//
// With delivery framing every read is one request, so clients must not let
// their frames merge; length-prefixed framing has no such requirement.
func (s *Server) ServeConn(conn net.Conn) {
	if !s.track(conn) {
		_ = conn.Close()
		return
	}
	defer func() {
		s.untrack(conn)
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Printf("Error closing connection: %v", err)
		}
	}()

	if s.opts.Framing == protocol.FramingLengthPrefixed {
		s.serveLengthPrefixed(conn)
		return
	}
	s.serveDelivery(conn)
}

func (s *Server) serveDelivery(conn net.Conn) {
	limits := s.opts.Limits
	size := putOverhead + limits.MaxKeyLength + limits.MaxValueLength + 1
	if size < minReadBufferSize {
		size = minReadBufferSize
	}
	buf := make([]byte, size)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if werr := protocol.WriteFrame(conn, s.Handle(buf[:n]), protocol.FramingDelivery); werr != nil {
				log.Printf("Failed to write response: %v", werr)
				return
			}
		}
		if err != nil {
			s.logReadError(err)
			return
		}
	}
}

func (s *Server) serveLengthPrefixed(conn net.Conn) {
	r := bufio.NewReader(conn)
	for {
		frame, err := protocol.ReadFrame(r)
		if err != nil {
			s.logReadError(err)
			return
		}

		if err := protocol.WriteFrame(conn, s.Handle(frame), protocol.FramingLengthPrefixed); err != nil {
			log.Printf("Failed to write response: %v", err)
			return
		}
	}
}

func (s *Server) logReadError(err error) {
	if s.isClosed() || errors.Is(err, net.ErrClosed) {
		return
	}
	if s.opts.LogLevel == "debug" {
		log.Printf("Connection ended: %v", err)
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// Handle decodes one request frame, executes it and returns the encoded
// response frame.
func (s *Server) Handle(frame []byte) []byte {
	req, err := protocol.DecodeRequest(frame)
	if err != nil {
		kind := protocol.NotEnoughBytes
		if errors.Is(err, protocol.ErrUnknownOpcode) {
			kind = protocol.CommandNotFound
		}
		if s.opts.LogLevel == "debug" {
			log.Printf("Rejected frame: %v", err)
		}
		return protocol.Failure(kind).Encode(protocol.OpGet)
	}

	resp := s.executeCommand(req)
	if s.opts.LogLevel == "debug" {
		log.Printf("%s key=%q hash=%016x ok=%t", req.Op, req.Key, req.Hash, resp.OK)
	}
	return resp.Encode(req.Op)
}

// executeCommand dispatches a decoded request to its handler.
func (s *Server) executeCommand(req *protocol.Request) *protocol.Response {
	if handler, ok := s.handlers[req.Op]; ok {
		return handler(req)
	}
	return protocol.Failure(protocol.CommandNotFound)
}

func (s *Server) handleGet(req *protocol.Request) *protocol.Response {
	value, err := s.cache.Get(req.Key)
	if err != nil {
		return failure(err)
	}
	return &protocol.Response{OK: true, Value: value}
}

func (s *Server) handlePut(req *protocol.Request) *protocol.Response {
	ttl := time.Duration(req.TTL) * time.Second
	if err := s.cache.Set(req.Key, req.Value, ttl); err != nil {
		return failure(err)
	}
	return &protocol.Response{OK: true}
}

func (s *Server) handleDelete(req *protocol.Request) *protocol.Response {
	if err := s.cache.Del(req.Key); err != nil {
		return failure(err)
	}
	return &protocol.Response{OK: true}
}

func failure(err error) *protocol.Response {
	var kind protocol.ErrorKind
	if errors.As(err, &kind) {
		return protocol.Failure(kind)
	}
	return protocol.Failure(protocol.UnknownError)
}
