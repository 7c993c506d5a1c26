package protocol

import "fmt"

// ErrorKind is a server-side failure reason carried by an error response.
// Its value is the wire error code for every kind except UnknownError.
type ErrorKind uint8

// Error kinds in wire-code order. Codes past the table map to UnknownError.
const (
	KeyTooLong      ErrorKind = iota // 0
	ValueTooLong                     // 1
	OutOfMemory                      // 2
	RecordEmpty                      // 3
	TTLExpired                       // 4
	RecordNotFound                   // 5
	NotEnoughBytes                   // 6
	NoReturn                         // 7
	CommandNotFound                  // 8
	UnknownError                     // any other code
)

var kindNames = [...]string{
	KeyTooLong:      "KeyTooLong",
	ValueTooLong:    "ValueTooLong",
	OutOfMemory:     "OutOfMemory",
	RecordEmpty:     "RecordEmpty",
	TTLExpired:      "TtlExpired",
	RecordNotFound:  "RecordNotFound",
	NotEnoughBytes:  "NotEnoughBytes",
	NoReturn:        "NoReturn",
	CommandNotFound: "CommandNotFound",
	UnknownError:    "UnknownError",
}

// KindOf maps a wire error code to its ErrorKind.
func KindOf(code byte) ErrorKind {
	if code < byte(UnknownError) {
		return ErrorKind(code)
	}
	return UnknownError
}

func (k ErrorKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[UnknownError]
}

// Error makes every kind usable as an errors.Is target.
func (k ErrorKind) Error() string {
	return k.String()
}

// ServerError is the error a shard reported for one request.
//
// Example:
//
//	_, err := c.Get([]byte("missing"))
//	if errors.Is(err, protocol.RecordNotFound) {
//		// not cached
//	}
type ServerError struct {
	Kind ErrorKind // Decoded kind
	Code byte      // Code as received
}

func (e *ServerError) Error() string {
	if e.Kind == UnknownError {
		return fmt.Sprintf("server error: %s (code %d)", e.Kind, e.Code)
	}
	return fmt.Sprintf("server error: %s", e.Kind)
}

// Unwrap exposes the kind so errors.Is(err, protocol.RecordNotFound) works.
func (e *ServerError) Unwrap() error {
	return e.Kind
}
