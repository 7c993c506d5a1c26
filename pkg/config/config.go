// Package config provides configuration management for shardline clients and
// the development shard server.
//
// The package supports configuration through multiple sources with the following precedence:
//  1. Command-line flags (highest priority, server only)
//  2. Environment variables
//  3. Default values (lowest priority)
//
// A cluster is addressed by a host, a base port and a shard count: shard i
// listens on host:basePort+i.
//
// Example client usage:
//
//	cfg := config.LoadClientConfig()
//	cfg.Shards = 4
//	c, err := client.New(cfg)
//
// Environment variables are prefixed with "CACHEMIR_" and use uppercase names.
// For example, the shard count can be set with CACHEMIR_SHARDS=4.
package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"

	"golang.org/x/exp/slices"

	"github.com/cachemir/shardline/pkg/hash"
	"github.com/cachemir/shardline/pkg/protocol"
)

// Default configuration constants
const (
	DefaultHost           = "localhost"
	DefaultBasePort       = 3000
	DefaultShards         = 4
	DefaultConnTimeoutSec = 5
	DefaultReadBufferSize = DefaultMaxValueLength + 64*1024 // Holds a GET response at the largest default value
	DefaultMaxKeyLength   = 1024
	DefaultMaxValueLength = 1024 * 1024
	DefaultMaxMemory      = 256 * 1024 * 1024
	maxPort               = 65535
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

// ClientConfig holds all configuration options for a client instance.
//
// Configuration sources (in order of precedence):
//  1. Programmatic configuration
//  2. Environment variables: CACHEMIR_HOST, CACHEMIR_BASE_PORT, CACHEMIR_SHARDS, etc.
//  3. Default values
type ClientConfig struct {
	Host           string           // Shard host (default: "localhost")
	KeyHashing     hash.KeyHashing  // How keys are fed to the hash (default: decimal)
	Framing        protocol.Framing // Frame delimiting (default: delivery)
	BasePort       int              // Port of shard 0 (default: 3000)
	Shards         int              // Number of shards (default: 4)
	ConnTimeout    int              // Dial timeout in seconds (default: 5)
	ReadBufferSize int              // Bytes per socket read (default: 1 MiB + 64 KiB)
}

// ServerConfig holds the configuration of a development shard cluster.
type ServerConfig struct {
	Host           string           // Host address to bind to (default: "0.0.0.0")
	LogLevel       string           // Log level: debug, info, warn, error (default: "info")
	Framing        protocol.Framing // Frame delimiting (default: delivery)
	BasePort       int              // Port of shard 0 (default: 3000)
	Shards         int              // Number of shard listeners (default: 4)
	MaxKeyLength   int              // Longest accepted key (default: 1 KiB)
	MaxValueLength int              // Longest accepted value (default: 1 MiB)
	MaxMemory      int64            // Byte budget per shard (default: 256 MiB)
}

// DefaultClientConfig returns a ClientConfig with default values only.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Host:           DefaultHost,
		BasePort:       DefaultBasePort,
		Shards:         DefaultShards,
		ConnTimeout:    DefaultConnTimeoutSec,
		ReadBufferSize: DefaultReadBufferSize,
		KeyHashing:     hash.KeyHashingDecimal,
		Framing:        protocol.FramingDelivery,
	}
}

// LoadClientConfig creates a ClientConfig by loading values from environment
// variables, with sensible defaults.
//
// Environment variables:
//
//	CACHEMIR_HOST: Shard host
//	CACHEMIR_BASE_PORT: Port of shard 0
//	CACHEMIR_SHARDS: Number of shards
//	CACHEMIR_CONN_TIMEOUT: Dial timeout in seconds
//	CACHEMIR_READ_BUFFER: Bytes per socket read
//	CACHEMIR_KEY_HASHING: "decimal" or "raw"
//	CACHEMIR_FRAMING: "delivery" or "length-prefixed"
func LoadClientConfig() *ClientConfig {
	config := DefaultClientConfig()

	if host := os.Getenv("CACHEMIR_HOST"); host != "" {
		config.Host = host
	}

	envInt("CACHEMIR_BASE_PORT", &config.BasePort)
	envInt("CACHEMIR_SHARDS", &config.Shards)
	envInt("CACHEMIR_CONN_TIMEOUT", &config.ConnTimeout)
	envInt("CACHEMIR_READ_BUFFER", &config.ReadBufferSize)

	if mode := os.Getenv("CACHEMIR_KEY_HASHING"); mode != "" {
		config.KeyHashing = hash.KeyHashing(mode)
	}

	if framing := os.Getenv("CACHEMIR_FRAMING"); framing != "" {
		config.Framing = protocol.Framing(framing)
	}

	return config
}

// LoadServerConfig creates a ServerConfig by loading values from command-line
// flags and environment variables, with sensible defaults.
//
// Command-line flags:
//
//	-host, -base-port, -shards, -log-level, -max-key, -max-value, -max-memory, -framing
//
// Environment variables override flags left at their defaults:
//
//	CACHEMIR_HOST, CACHEMIR_BASE_PORT, CACHEMIR_SHARDS, CACHEMIR_FRAMING
func LoadServerConfig() *ServerConfig {
	config := &ServerConfig{
		Host:           "0.0.0.0",
		LogLevel:       "info",
		Framing:        protocol.FramingDelivery,
		BasePort:       DefaultBasePort,
		Shards:         DefaultShards,
		MaxKeyLength:   DefaultMaxKeyLength,
		MaxValueLength: DefaultMaxValueLength,
		MaxMemory:      DefaultMaxMemory,
	}

	framing := string(config.Framing)
	flag.StringVar(&config.Host, "host", config.Host, "Server host")
	flag.IntVar(&config.BasePort, "base-port", config.BasePort, "Port of shard 0")
	flag.IntVar(&config.Shards, "shards", config.Shards, "Number of shards")
	flag.StringVar(&config.LogLevel, "log-level", config.LogLevel, "Log level (debug, info, warn, error)")
	flag.IntVar(&config.MaxKeyLength, "max-key", config.MaxKeyLength, "Maximum key length in bytes")
	flag.IntVar(&config.MaxValueLength, "max-value", config.MaxValueLength, "Maximum value length in bytes")
	flag.Int64Var(&config.MaxMemory, "max-memory", config.MaxMemory, "Byte budget per shard")
	flag.StringVar(&framing, "framing", framing, "Framing (delivery, length-prefixed)")
	flag.Parse()
	config.Framing = protocol.Framing(framing)

	if host := os.Getenv("CACHEMIR_HOST"); host != "" {
		config.Host = host
	}
	envInt("CACHEMIR_BASE_PORT", &config.BasePort)
	envInt("CACHEMIR_SHARDS", &config.Shards)
	if f := os.Getenv("CACHEMIR_FRAMING"); f != "" {
		config.Framing = protocol.Framing(f)
	}

	return config
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Address returns the "host:port" address of the given shard.
//
// Example:
//
//	cfg := &ClientConfig{Host: "localhost", BasePort: 3000}
//	addr := cfg.Address(2) // Returns "localhost:3002"
func (c *ClientConfig) Address(shard int) string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.BasePort+shard))
}

// Address returns the listen address of the given shard.
func (c *ServerConfig) Address(shard int) string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.BasePort+shard))
}

// Validate checks if the ClientConfig contains valid values.
//
// Validation rules:
//   - Host must be non-empty
//   - Shards must be positive
//   - Every shard port (BasePort .. BasePort+Shards-1) must be within 1..65535
//   - ConnTimeout and ReadBufferSize must be positive
//   - KeyHashing and Framing must be known modes
//
// Returns:
//   - nil if configuration is valid
//   - Error describing the first validation failure found
func (c *ClientConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host must be specified")
	}

	if err := validateShardRange(c.BasePort, c.Shards); err != nil {
		return err
	}

	if c.ConnTimeout < 1 {
		return fmt.Errorf("connection timeout must be positive: %d", c.ConnTimeout)
	}

	if c.ReadBufferSize < 1 {
		return fmt.Errorf("read buffer size must be positive: %d", c.ReadBufferSize)
	}

	if !slices.Contains(hash.Modes, c.KeyHashing) {
		return fmt.Errorf("invalid key hashing mode: %q", c.KeyHashing)
	}

	if !slices.Contains(protocol.FramingModes, c.Framing) {
		return fmt.Errorf("invalid framing: %q", c.Framing)
	}

	return nil
}

// Validate checks if the ServerConfig contains valid values.
//
// Returns:
//   - nil if configuration is valid
//   - Error describing the first validation failure found
func (c *ServerConfig) Validate() error {
	if err := validateShardRange(c.BasePort, c.Shards); err != nil {
		return err
	}

	if c.MaxKeyLength < 1 {
		return fmt.Errorf("max key length must be positive: %d", c.MaxKeyLength)
	}

	if c.MaxValueLength < 0 {
		return fmt.Errorf("max value length must be non-negative: %d", c.MaxValueLength)
	}

	if c.MaxMemory < 1 {
		return fmt.Errorf("max memory must be positive: %d", c.MaxMemory)
	}

	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	if !slices.Contains(protocol.FramingModes, c.Framing) {
		return fmt.Errorf("invalid framing: %q", c.Framing)
	}

	return nil
}

func validateShardRange(basePort, shards int) error {
	if shards < 1 {
		return fmt.Errorf("shard count must be positive: %d", shards)
	}

	if basePort < 1 || basePort > maxPort {
		return fmt.Errorf("invalid base port: %d", basePort)
	}

	if last := basePort + shards - 1; last > maxPort {
		return fmt.Errorf("shard %d would listen on invalid port %d", shards-1, last)
	}

	return nil
}
