package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	exactArgsForGet = 2
	exactArgsForDel = 2
	minArgsForPut   = 3
	maxArgsForPut   = 4
)

// ParseTextCommand parses a human-readable command into a Request.
// This is useful for debugging and command-line tools.
// Supports GET, PUT and DEL (or DELETE); the returned Request has no hash,
// callers route it before encoding.
//
// Example:
//
//	req, err := protocol.ParseTextCommand("PUT mykey myvalue 60")
//	if err != nil {
//		log.Fatal(err)
//	}
//	// req.Op == OpPut, req.Key == "mykey", req.Value == "myvalue", req.TTL == 60
func ParseTextCommand(line string) (*Request, error) {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmdStr := strings.ToUpper(parts[0])

	switch cmdStr {
	case "GET":
		return parseGetCommand(parts)
	case "PUT", "SET":
		return parsePutCommand(parts)
	case "DEL", "DELETE":
		return parseDelCommand(parts)
	default:
		return nil, fmt.Errorf("unknown command: %s", cmdStr)
	}
}

func parseGetCommand(parts []string) (*Request, error) {
	if len(parts) != exactArgsForGet {
		return nil, fmt.Errorf("GET requires exactly 1 argument")
	}
	return &Request{Op: OpGet, Key: []byte(parts[1])}, nil
}

func parsePutCommand(parts []string) (*Request, error) {
	if len(parts) < minArgsForPut || len(parts) > maxArgsForPut {
		return nil, fmt.Errorf("PUT requires a key, a value and an optional ttl")
	}

	req := &Request{
		Op:    OpPut,
		Key:   []byte(parts[1]),
		Value: []byte(parts[2]),
	}

	if len(parts) == maxArgsForPut {
		ttl, err := strconv.ParseUint(parts[3], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid ttl %q: %w", parts[3], err)
		}
		req.TTL = uint32(ttl)
	}

	return req, nil
}

func parseDelCommand(parts []string) (*Request, error) {
	if len(parts) != exactArgsForDel {
		return nil, fmt.Errorf("DEL requires exactly 1 argument")
	}
	return &Request{Op: OpDelete, Key: []byte(parts[1])}, nil
}
