// Package protocol implements the fixed-layout binary frames exchanged with
// cache shards.
//
// Requests carry no identifier: a shard answers the requests on one
// connection strictly in the order it received them, and the client matches
// responses to requests by position alone.
//
// Request layouts (hash big-endian, every length and ttl little-endian):
//
//	GET     0x00 | hash(8) | key
//	PUT     0x01 | hash(8) | ttl(4) | key-length(4) | key | value-length(4) | value
//	DELETE  0x02 | hash(8) | key
//
// Response layout:
//
//	status(1) | payload         status != 0, payload only for GET
//	0x00      | error-code(1)   see ErrorKind
//
// PUT and DELETE successes are exactly one byte and failures exactly two.
//
// The endianness mix is part of the wire contract and must not be
// normalised.
//
// Example usage:
//
//	req := protocol.NewPut(h, []byte("user:123"), []byte("john_doe"), 60)
//	frame, err := req.Encode()
//	if err != nil {
//		log.Fatal(err)
//	}
//	err = protocol.WriteFrame(conn, frame, protocol.FramingDelivery)
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame layout constants
const (
	hashOffset    = 1
	requestHeader = 1 + 8 // opcode + hash
	putHeader     = requestHeader + 4 + 4
	lengthSize    = 4
	maxUint32     = 1<<32 - 1
)

// Response status bytes
const (
	StatusError   byte = 0
	StatusSuccess byte = 1
)

var (
	// ErrShortFrame is returned when a frame ends before its fixed fields do.
	ErrShortFrame = errors.New("frame too short")

	// ErrUnknownOpcode is returned when a request starts with an opcode
	// outside GET, PUT and DELETE.
	ErrUnknownOpcode = errors.New("unknown opcode")

	// ErrTrailingBytes is returned when a PUT frame is longer than its
	// declared key and value lengths.
	ErrTrailingBytes = errors.New("trailing bytes after frame")
)

// Opcode identifies the operation of a request frame.
type Opcode uint8

// Opcodes understood by cache shards.
const (
	OpGet    Opcode = 0 // GET key - fetch a value
	OpPut    Opcode = 1 // PUT key value ttl - store a value
	OpDelete Opcode = 2 // DELETE key - remove a value
)

func (o Opcode) String() string {
	switch o {
	case OpGet:
		return "GET"
	case OpPut:
		return "PUT"
	case OpDelete:
		return "DELETE"
	default:
		return fmt.Sprintf("Opcode(%d)", uint8(o))
	}
}

// Valid reports whether o is one of the defined opcodes.
func (o Opcode) Valid() bool {
	return o <= OpDelete
}

// Request is a decoded request frame.
// Hash must be the routing hash of Key; shards do not recompute it.
type Request struct {
	Key   []byte // Key bytes, not length-checked by the client
	Value []byte // PUT only
	Hash  uint64 // Routing hash of Key
	TTL   uint32 // PUT only, seconds; 0 means no expiry
	Op    Opcode // Operation to perform
}

// NewGet builds a GET request.
func NewGet(hash uint64, key []byte) *Request {
	return &Request{Op: OpGet, Hash: hash, Key: key}
}

// NewPut builds a PUT request with a ttl in seconds.
func NewPut(hash uint64, key, value []byte, ttl uint32) *Request {
	return &Request{Op: OpPut, Hash: hash, Key: key, Value: value, TTL: ttl}
}

// NewDelete builds a DELETE request.
func NewDelete(hash uint64, key []byte) *Request {
	return &Request{Op: OpDelete, Hash: hash, Key: key}
}

// Encode converts the request into its wire frame.
//
// Returns an error only if the opcode is unknown or, for PUT, a key or value
// is too long to be described by a 32-bit length field.
func (r *Request) Encode() ([]byte, error) {
	switch r.Op {
	case OpGet, OpDelete:
		buf := make([]byte, 0, requestHeader+len(r.Key))
		buf = append(buf, byte(r.Op))
		buf = binary.BigEndian.AppendUint64(buf, r.Hash)
		return append(buf, r.Key...), nil
	case OpPut:
		if uint64(len(r.Key)) > maxUint32 || uint64(len(r.Value)) > maxUint32 {
			return nil, fmt.Errorf("data too large")
		}
		buf := make([]byte, 0, putHeader+len(r.Key)+lengthSize+len(r.Value))
		buf = append(buf, byte(r.Op))
		buf = binary.BigEndian.AppendUint64(buf, r.Hash)
		buf = binary.LittleEndian.AppendUint32(buf, r.TTL)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r.Key)))
		buf = append(buf, r.Key...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r.Value)))
		return append(buf, r.Value...), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownOpcode, r.Op)
	}
}

// DecodeRequest parses a request frame. Key and Value alias data.
//
// GET and DELETE keys run to the end of data, so data must hold exactly one
// frame.
func DecodeRequest(data []byte) (*Request, error) {
	if len(data) == 0 {
		return nil, ErrShortFrame
	}

	op := Opcode(data[0])
	if !op.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOpcode, op)
	}
	if len(data) < requestHeader {
		return nil, fmt.Errorf("%w: %s header needs %d bytes, got %d", ErrShortFrame, op, requestHeader, len(data))
	}

	req := &Request{
		Op:   op,
		Hash: binary.BigEndian.Uint64(data[hashOffset:requestHeader]),
	}

	if op != OpPut {
		req.Key = data[requestHeader:]
		return req, nil
	}

	return decodePut(req, data)
}

func decodePut(req *Request, data []byte) (*Request, error) {
	if len(data) < putHeader {
		return nil, fmt.Errorf("%w: PUT header needs %d bytes, got %d", ErrShortFrame, putHeader, len(data))
	}
	req.TTL = binary.LittleEndian.Uint32(data[requestHeader:])
	keyLen := uint64(binary.LittleEndian.Uint32(data[requestHeader+4:]))

	offset := uint64(putHeader)
	if offset+keyLen+lengthSize > uint64(len(data)) {
		return nil, fmt.Errorf("%w: key data truncated", ErrShortFrame)
	}
	req.Key = data[offset : offset+keyLen]
	offset += keyLen

	valueLen := uint64(binary.LittleEndian.Uint32(data[offset:]))
	offset += lengthSize
	if offset+valueLen > uint64(len(data)) {
		return nil, fmt.Errorf("%w: value data truncated", ErrShortFrame)
	}
	req.Value = data[offset : offset+valueLen]
	offset += valueLen

	if offset != uint64(len(data)) {
		return nil, fmt.Errorf("%w: %d", ErrTrailingBytes, uint64(len(data))-offset)
	}
	return req, nil
}

// Response is a decoded response frame.
type Response struct {
	Value []byte // GET payload when OK
	Code  byte   // Raw error code when !OK
	OK    bool   // Status byte was nonzero
}

// DecodeResponse parses a response frame produced for a request with the
// given opcode. The GET payload is copied out of data.
//
// data must hold exactly one frame: a successful PUT or DELETE is the status
// byte alone and a failure is two bytes. On a delivery-framed stream any
// further bytes belong to the next response (see ResponseLength).
func DecodeResponse(op Opcode, data []byte) (*Response, error) {
	if len(data) == 0 {
		return nil, ErrShortFrame
	}

	if data[0] != StatusError {
		resp := &Response{OK: true}
		if op == OpGet {
			resp.Value = append([]byte{}, data[1:]...)
		}
		return resp, nil
	}

	if len(data) < 2 {
		return nil, fmt.Errorf("%w: error response without code", ErrShortFrame)
	}
	return &Response{Code: data[1]}, nil
}

// ResponseLength reports how many leading bytes of buffered form the next
// response frame for a request with opcode op.
//
// Error responses are always two bytes and PUT/DELETE successes one byte, so
// those frames can be split out of merged reads and completed across split
// reads. A successful GET carries no length, so it is taken to extend to the
// end of buffered. ok is false when more bytes are needed.
func ResponseLength(op Opcode, buffered []byte) (n int, ok bool) {
	switch {
	case len(buffered) == 0:
		return 0, false
	case buffered[0] == StatusError:
		if len(buffered) < 2 {
			return 0, false
		}
		return 2, true
	case op == OpGet:
		return len(buffered), true
	default:
		return 1, true
	}
}

// Encode converts the response into its wire frame for a request with the
// given opcode.
func (r *Response) Encode(op Opcode) []byte {
	if !r.OK {
		return []byte{StatusError, r.Code}
	}
	if op != OpGet {
		return []byte{StatusSuccess}
	}
	buf := make([]byte, 0, 1+len(r.Value))
	buf = append(buf, StatusSuccess)
	return append(buf, r.Value...)
}

// Err returns nil for a successful response and a *ServerError otherwise.
func (r *Response) Err() error {
	if r.OK {
		return nil
	}
	return &ServerError{Kind: KindOf(r.Code), Code: r.Code}
}

// Failure builds an error response for kind.
func Failure(kind ErrorKind) *Response {
	return &Response{Code: byte(kind)}
}
