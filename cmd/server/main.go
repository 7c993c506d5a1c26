package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cachemir/shardline/internal/server"
	"github.com/cachemir/shardline/pkg/config"
)

func main() {
	cfg := config.LoadServerConfig()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Printf("Starting %d shards with config: %+v", cfg.Shards, cfg)

	cluster := server.NewCluster(cfg)
	if err := cluster.Start(); err != nil {
		log.Fatalf("Cluster failed to start: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutting down shards...")

	if err := cluster.Stop(); err != nil {
		log.Printf("Error stopping shards: %v", err)
	}

	log.Println("Shards stopped")
}
