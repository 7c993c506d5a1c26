package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/cachemir/shardline/pkg/client"
	"github.com/cachemir/shardline/pkg/config"
	"github.com/cachemir/shardline/pkg/protocol"
)

// With arguments, runs them as one text command (GET k, PUT k v [ttl], DEL k).
// Without, runs a short put/get/del walkthrough.
func main() {
	cfg := config.LoadClientConfig()

	c, err := client.New(cfg)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer c.Close()

	if len(os.Args) > 1 {
		if err := runCommand(c, strings.Join(os.Args[1:], " ")); err != nil {
			log.Fatal(err)
		}
		return
	}

	fmt.Printf("=== Connected to %d shards at %s ===\n", c.Shards(), cfg.Address(0))

	key := []byte("hello")
	fmt.Printf("key %q lives on shard %d\n", key, c.Shard(key))

	if err := c.Put(key, []byte("world"), 10*time.Second); err != nil {
		log.Printf("PUT failed: %v", err)
	} else {
		fmt.Println("✓ PUT hello = world (ttl 10s)")
	}

	if value, err := c.Get(key); err != nil {
		log.Printf("GET failed: %v", err)
	} else {
		fmt.Printf("✓ GET hello = %s\n", value)
	}

	if err := c.Del(key); err != nil {
		log.Printf("DEL failed: %v", err)
	} else {
		fmt.Println("✓ DEL hello")
	}

	_, err = c.Get(key)
	switch {
	case errors.Is(err, protocol.RecordNotFound):
		fmt.Println("✓ GET hello = <not found>")
	case err != nil:
		log.Printf("GET failed: %v", err)
	default:
		log.Printf("GET hello still returns a value")
	}

	fmt.Println("\n=== Example Complete ===")
}

func runCommand(c *client.Client, line string) error {
	req, err := protocol.ParseTextCommand(line)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Op, req.Key, err)
	}

	if req.Op == protocol.OpGet {
		fmt.Printf("%s\n", resp.Value)
	} else {
		fmt.Println("OK")
	}
	return nil
}
