// Package node wires the validated pools, the libp2p transport, and one
// dissemination sender per artifact kind into a runnable unit.
package node

import (
	"context"
	"fmt"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/thrylos-labs/go-gossip/api"
	"github.com/thrylos-labs/go-gossip/config"
	"github.com/thrylos-labs/go-gossip/core/artifact"
	"github.com/thrylos-labs/go-gossip/network"
	"github.com/thrylos-labs/go-gossip/network/p2p"
	"github.com/thrylos-labs/go-gossip/network/sender"
	"github.com/thrylos-labs/go-gossip/storage"
)

var log = logging.Logger("gossip/node")

// Node runs the outbound dissemination subsystem: per-kind validated
// pools fed by the validation pipeline, and per-kind senders fanning
// updates out to the peer set.
type Node struct {
	cfg *config.Config

	store *storage.Store
	p2p   *p2p.Manager
	api   *api.Server

	pools   map[artifact.Kind]*storage.BadgerPool
	events  map[artifact.Kind]chan sender.Event
	senders map[artifact.Kind]*sender.Sender

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// New creates a node from configuration. Start must be called before
// artifacts are announced.
func New(cfg *config.Config) (*Node, error) {
	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}

	mgr, err := p2p.NewManager(&cfg.P2P)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create P2P manager: %w", err)
	}

	n := &Node{
		cfg:     cfg,
		store:   store,
		p2p:     mgr,
		pools:   make(map[artifact.Kind]*storage.BadgerPool),
		events:  make(map[artifact.Kind]chan sender.Event),
		senders: make(map[artifact.Kind]*sender.Sender),
	}

	for _, kind := range artifact.Kinds() {
		pool := storage.NewValidatedPool(store, kind)
		events := make(chan sender.Event, 1000)

		n.pools[kind] = pool
		n.events[kind] = events
		n.senders[kind] = sender.New(cfg.Gossip, kind, pool, mgr, events, sender.NewMetrics())
	}

	n.api = api.NewServer(cfg.API.ListenAddr, cfg.API.EnableCORS, n)
	return n, nil
}

// Start brings up the transport, the senders, and the API server.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return fmt.Errorf("node already started")
	}

	if lvl, err := logging.LevelFromString(n.cfg.LogLevel); err == nil {
		logging.SetAllLoggers(lvl)
	} else {
		log.Warnf("Invalid log level %q, keeping defaults", n.cfg.LogLevel)
	}

	if err := n.p2p.Start(); err != nil {
		return fmt.Errorf("failed to start P2P manager: %w", err)
	}

	// Inbound updates are decoded and logged only; receive-side
	// processing belongs to the consensus manager's receive half.
	for _, kind := range artifact.Kinds() {
		route := network.UpdateRoute(kind)
		n.p2p.SetUpdateHandler(route, func(from peer.ID, body []byte) {
			u, err := network.UnmarshalUpdate(body)
			if err != nil {
				log.Debugf("Malformed update from %s: %v", from, err)
				return
			}
			log.Debugw("received update", "from", from, "slot", u.SlotNumber, "commit", u.CommitID)
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	for _, s := range n.senders {
		n.wg.Add(1)
		go func(s *sender.Sender) {
			defer n.wg.Done()
			s.Run(ctx)
		}(s)
	}

	go func() {
		if err := n.api.Start(); err != nil {
			log.Errorf("API server stopped: %v", err)
		}
	}()

	n.started = true
	log.Infof("Node %s started, peer ID %s", n.cfg.NodeID, n.p2p.GetHostID())
	return nil
}

// Stop shuts the node down: event streams close, senders drain, then
// the transport and store are released.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.started {
		return nil
	}

	for _, ch := range n.events {
		close(ch)
	}
	n.wg.Wait()
	n.cancel()

	if err := n.api.Stop(); err != nil {
		log.Warnf("Error stopping API server: %v", err)
	}
	if err := n.p2p.Stop(); err != nil {
		log.Warnf("Error stopping P2P manager: %v", err)
	}
	if err := n.store.Close(); err != nil {
		return fmt.Errorf("failed to close artifact store: %w", err)
	}

	n.started = false
	log.Infof("Node %s stopped", n.cfg.NodeID)
	return nil
}

// Announce stores a newly validated artifact and emits its advert
// event. Called by the validation pipeline.
func (n *Node) Announce(a *artifact.Artifact) error {
	pool, ok := n.pools[a.Kind]
	if !ok {
		return fmt.Errorf("unknown artifact kind %q", a.Kind)
	}
	if err := pool.Put(a); err != nil {
		return fmt.Errorf("failed to store artifact %s: %w", a.ID, err)
	}

	n.events[a.Kind] <- sender.AdvertEvent(artifact.NewAdvert(a))
	return nil
}

// Purge removes an artifact from the validated pool and cancels its
// broadcast. Called by the validation pipeline.
func (n *Node) Purge(kind artifact.Kind, id artifact.ID) error {
	pool, ok := n.pools[kind]
	if !ok {
		return fmt.Errorf("unknown artifact kind %q", kind)
	}
	if err := pool.Remove(id); err != nil {
		return fmt.Errorf("failed to remove artifact %s: %w", id, err)
	}

	n.events[kind] <- sender.PurgeEvent(id)
	return nil
}

// Status implements api.StatusSource.
func (n *Node) Status() map[string]interface{} {
	return map[string]interface{}{
		"node_id":         n.cfg.NodeID,
		"peer_id":         n.p2p.GetHostID().String(),
		"listen_addrs":    n.p2p.GetListenAddresses(),
		"connected_peers": n.p2p.GetPeerCount(),
	}
}

// MetricsSnapshot implements api.StatusSource.
func (n *Node) MetricsSnapshot() map[string]map[string]interface{} {
	out := map[string]map[string]interface{}{
		"network": n.p2p.GetMetrics().GetSnapshot(),
	}
	for kind, s := range n.senders {
		out["sender/"+string(kind)] = s.Metrics().Snapshot()
	}
	return out
}
