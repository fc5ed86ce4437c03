package config

import (
	"time"
)

type Config struct {
	// Node configuration
	NodeID   string `json:"node_id"`
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`

	// Network configuration
	P2P P2PConfig `json:"p2p"`

	// Dissemination configuration
	Gossip GossipConfig `json:"gossip"`

	// API configuration
	API APIConfig `json:"api"`
}

type P2PConfig struct {
	ListenPort     int      `json:"listen_port"`
	BootstrapPeers []string `json:"bootstrap_peers"`
	MaxPeers       int      `json:"max_peers"`
	Rendezvous     string   `json:"rendezvous"`
}

type GossipConfig struct {
	// EnableArtifactPush controls whether small artifacts are sent inline
	// instead of as adverts. Artifacts larger than ArtifactPushThreshold
	// bytes are always advertised.
	EnableArtifactPush    bool `json:"enable_artifact_push"`
	ArtifactPushThreshold int  `json:"artifact_push_threshold"`

	// PeerCheckInterval is how often a broadcast task re-scans the peer
	// set for peers not yet confirmed at their latest connection.
	PeerCheckInterval time.Duration `json:"peer_check_interval"`

	// SlotTableThreshold is the number of concurrently used slots above
	// which a warning is logged. Not a hard limit.
	SlotTableThreshold uint64 `json:"slot_table_threshold"`
}

type APIConfig struct {
	ListenAddr string `json:"listen_addr"`
	EnableCORS bool   `json:"enable_cors"`
}

// Load returns a default configuration
// TODO: Add file-based configuration loading
func Load() (*Config, error) {
	return &Config{
		NodeID:   "gossip-node",
		DataDir:  "./data",
		LogLevel: "info",
		P2P: P2PConfig{
			ListenPort:     9000,
			BootstrapPeers: []string{},
			MaxPeers:       50,
			Rendezvous:     "thrylos-gossip",
		},
		Gossip: GossipConfig{
			EnableArtifactPush:    false,
			ArtifactPushThreshold: 5 * 1024,
			PeerCheckInterval:     5 * time.Second,
			SlotTableThreshold:    30_000,
		},
		API: APIConfig{
			ListenAddr: ":8547",
			EnableCORS: true,
		},
	}, nil
}
