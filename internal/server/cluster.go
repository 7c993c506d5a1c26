package server

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/cachemir/shardline/pkg/cache"
	"github.com/cachemir/shardline/pkg/config"
)

// Cluster runs one Server per shard on consecutive ports.
type Cluster struct {
	servers []*Server
	wg      sync.WaitGroup
}

// NewCluster creates the shard servers described by cfg without starting them.
func NewCluster(cfg *config.ServerConfig) *Cluster {
	opts := Options{
		Framing:  cfg.Framing,
		LogLevel: cfg.LogLevel,
		Limits: cache.Limits{
			MaxKeyLength:   cfg.MaxKeyLength,
			MaxValueLength: cfg.MaxValueLength,
			MaxMemory:      cfg.MaxMemory,
		},
	}

	c := &Cluster{servers: make([]*Server, cfg.Shards)}
	for i := range c.servers {
		c.servers[i] = New(cfg.Address(i), opts)
	}
	return c
}

// Start binds every shard and serves them in the background. If any shard
// fails to bind, every shard is stopped and the error returned.
func (c *Cluster) Start() error {
	for i, srv := range c.servers {
		if err := srv.Listen(); err != nil {
			for _, s := range c.servers {
				_ = s.Stop()
			}
			return fmt.Errorf("shard %d: %w", i, err)
		}
	}

	for i, srv := range c.servers {
		c.wg.Add(1)
		go func(i int, srv *Server) {
			defer c.wg.Done()
			if err := srv.Serve(); err != nil {
				log.Printf("Shard %d stopped: %v", i, err)
			}
		}(i, srv)
	}
	return nil
}

// Stop stops every shard and waits for their accept loops to exit.
func (c *Cluster) Stop() error {
	var errs []error
	for i, srv := range c.servers {
		if err := srv.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("shard %d: %w", i, err))
		}
	}
	c.wg.Wait()
	return errors.Join(errs...)
}

// Shard returns the server of shard i.
func (c *Cluster) Shard(i int) *Server {
	return c.servers[i]
}

// Size returns the number of shards.
func (c *Cluster) Size() int {
	return len(c.servers)
}
