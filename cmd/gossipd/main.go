package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/thrylos-labs/go-gossip/config"
	"github.com/thrylos-labs/go-gossip/node"
)

func main() {
	var (
		dataDir    = flag.String("data", "", "data directory (overrides config default)")
		listenPort = flag.Int("port", 0, "P2P listen port (overrides config default)")
		bootstrap  = flag.String("bootstrap", "", "comma-separated bootstrap peer multiaddrs")
		apiAddr    = flag.String("api", "", "HTTP API listen address (overrides config default)")
		logLevel   = flag.String("log-level", "", "log level (debug, info, warn, error)")
		enablePush = flag.Bool("enable-push", false, "push small artifacts inline instead of advertising")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *listenPort != 0 {
		cfg.P2P.ListenPort = *listenPort
	}
	if *bootstrap != "" {
		cfg.P2P.BootstrapPeers = strings.Split(*bootstrap, ",")
	}
	if *apiAddr != "" {
		cfg.API.ListenAddr = *apiAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *enablePush {
		cfg.Gossip.EnableArtifactPush = true
	}

	n, err := node.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create node: %v", err)
	}

	if err := n.Start(); err != nil {
		log.Fatalf("Failed to start node: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	if err := n.Stop(); err != nil {
		log.Printf("Error during shutdown: %v", err)
		os.Exit(1)
	}
}
