// Package p2p is the libp2p-backed implementation of the transport
// capability: it maintains the peer set with per-connection identifiers
// and pushes serialized updates to peers over per-route streams.
package p2p

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/multiformats/go-multiaddr"
	"golang.org/x/time/rate"

	"github.com/thrylos-labs/go-gossip/config"
	gossipnet "github.com/thrylos-labs/go-gossip/network"
)

var log = logging.Logger("gossip/p2p")

// NetworkMetrics tracks transport-level activity.
type NetworkMetrics struct {
	mu sync.RWMutex

	MessagesSent       int64
	MessagesReceived   int64
	ConnectionAttempts int64
	FailedConnections  int64
	PeerCount          int64
}

func (nm *NetworkMetrics) IncrementMessagesSent() {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.MessagesSent++
}

func (nm *NetworkMetrics) IncrementMessagesReceived() {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.MessagesReceived++
}

func (nm *NetworkMetrics) IncrementConnectionAttempts() {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.ConnectionAttempts++
}

func (nm *NetworkMetrics) IncrementFailedConnections() {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.FailedConnections++
}

func (nm *NetworkMetrics) UpdatePeerCount(count int64) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.PeerCount = count
}

func (nm *NetworkMetrics) GetSnapshot() map[string]interface{} {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	return map[string]interface{}{
		"messages_sent":       nm.MessagesSent,
		"messages_received":   nm.MessagesReceived,
		"connection_attempts": nm.ConnectionAttempts,
		"failed_connections":  nm.FailedConnections,
		"peer_count":          nm.PeerCount,
	}
}

// Manager manages the libp2p host and implements the transport
// capability consumed by the senders.
type Manager struct {
	Host   host.Host
	Ctx    context.Context
	Cancel context.CancelFunc
	DHT    *dht.IpfsDHT

	listenPort     int
	bootstrapPeers []multiaddr.Multiaddr
	rendezvous     string

	// Connection identifier tracking: every libp2p connect event gets
	// the next identifier, so a reconnect shows up as a new ConnID for
	// the same peer.
	connSeq uint64
	connIDs map[peer.ID]gossipnet.ConnID
	connsMu sync.RWMutex

	rateLimiter *rate.Limiter
	metrics     *NetworkMetrics

	healthTicker *time.Ticker
}

// NewManager initializes a new libp2p manager.
func NewManager(cfg *config.P2PConfig) (*Manager, error) {
	ctx, cancel := context.WithCancel(context.Background())

	var bootstrapPeers []multiaddr.Multiaddr
	for _, addr := range cfg.BootstrapPeers {
		maddr, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			log.Warnf("Invalid bootstrap peer address %s: %v", addr, err)
			continue
		}
		bootstrapPeers = append(bootstrapPeers, maddr)
	}

	opts := []libp2p.Option{
		libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", cfg.ListenPort)),
		libp2p.NATPortMap(),
		libp2p.EnableRelay(),
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	log.Infof("Libp2p host created with Peer ID: %s, listening on: %s", h.ID(), h.Addrs())

	kademliaDHT, err := dht.New(ctx, h, dht.Mode(dht.ModeServer))
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("failed to create DHT: %w", err)
	}

	if err = kademliaDHT.Bootstrap(ctx); err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("failed to bootstrap DHT: %w", err)
	}

	m := &Manager{
		Host:           h,
		Ctx:            ctx,
		Cancel:         cancel,
		DHT:            kademliaDHT,
		listenPort:     cfg.ListenPort,
		bootstrapPeers: bootstrapPeers,
		rendezvous:     cfg.Rendezvous,
		connIDs:        make(map[peer.ID]gossipnet.ConnID),
		rateLimiter:    rate.NewLimiter(rate.Limit(100), 200), // 100 msgs/sec with burst of 200
		metrics:        &NetworkMetrics{},
	}

	m.trackConnections()
	return m, nil
}

// trackConnections registers the notifiee that assigns connection
// identifiers. Identifiers increase strictly across connect events.
func (m *Manager) trackConnections() {
	m.Host.Network().Notify(&network.NotifyBundle{
		ConnectedF: func(_ network.Network, c network.Conn) {
			m.connsMu.Lock()
			m.connSeq++
			id := m.connSeq
			m.connIDs[c.RemotePeer()] = gossipnet.ConnID(id)
			m.connsMu.Unlock()
			log.Debugf("Peer %s connected, conn id %d", c.RemotePeer(), id)
		},
		DisconnectedF: func(n network.Network, c network.Conn) {
			// Keep the entry while other connections to the peer remain.
			if len(n.ConnsToPeer(c.RemotePeer())) > 0 {
				return
			}
			m.connsMu.Lock()
			delete(m.connIDs, c.RemotePeer())
			m.connsMu.Unlock()
			log.Debugf("Peer %s disconnected", c.RemotePeer())
		},
	})
}

// Start starts the P2P services: bootstrap connections, discovery, and
// health monitoring.
func (m *Manager) Start() error {
	m.connectToBootstrapPeersWithRetry()

	m.startMDNSDiscovery()
	m.startDHTDiscovery()

	m.startPeerCountMonitor()

	log.Info("P2P services started successfully")
	return nil
}

// Stop gracefully shuts down the P2P manager.
func (m *Manager) Stop() error {
	log.Info("Shutting down P2P services...")

	if m.healthTicker != nil {
		m.healthTicker.Stop()
	}

	m.Cancel()

	if m.DHT != nil {
		if err := m.DHT.Close(); err != nil {
			log.Warnf("Error closing DHT: %v", err)
		}
	}

	if err := m.Host.Close(); err != nil {
		return fmt.Errorf("error closing libp2p host: %w", err)
	}

	log.Info("P2P services shut down successfully")
	return nil
}

// Peers returns the currently connected peers with their live
// connection identifiers. Implements the transport capability.
func (m *Manager) Peers() []gossipnet.PeerConn {
	m.connsMu.RLock()
	defer m.connsMu.RUnlock()

	var peers []gossipnet.PeerConn
	for _, p := range m.Host.Network().Peers() {
		if m.Host.Network().Connectedness(p) != network.Connected {
			continue
		}
		connID, ok := m.connIDs[p]
		if !ok {
			// Connect event not observed yet.
			continue
		}
		peers = append(peers, gossipnet.PeerConn{Peer: p, Conn: connID})
	}
	return peers
}

// Push delivers one request to a peer over a per-route stream. An error
// means the peer is not currently deliverable; callers retry.
// Implements the transport capability.
func (m *Manager) Push(ctx context.Context, to peer.ID, req gossipnet.Request) error {
	if !m.rateLimiter.Allow() {
		return fmt.Errorf("rate limit exceeded pushing to %s", to)
	}

	if m.Host.Network().Connectedness(to) != network.Connected {
		return fmt.Errorf("peer %s not connected", to)
	}

	stream, err := m.Host.NewStream(ctx, to, protocol.ID(req.Route))
	if err != nil {
		return fmt.Errorf("failed to open stream to %s: %w", to, err)
	}
	defer stream.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := stream.SetWriteDeadline(deadline); err != nil {
			log.Debugf("Failed to set write deadline for %s: %v", to, err)
		}
	}

	if _, err := stream.Write(req.Body); err != nil {
		stream.Reset()
		return fmt.Errorf("failed to push to %s: %w", to, err)
	}

	m.metrics.IncrementMessagesSent()
	return stream.CloseWrite()
}

// SetUpdateHandler registers a handler for inbound update envelopes on
// one route. The handler receives the raw envelope; decoding and
// receive-side processing are up to the caller.
func (m *Manager) SetUpdateHandler(route string, handler func(from peer.ID, body []byte)) {
	m.Host.SetStreamHandler(protocol.ID(route), func(s network.Stream) {
		defer s.Close()

		body, err := io.ReadAll(s)
		if err != nil {
			log.Debugf("Error reading update stream from %s: %v", s.Conn().RemotePeer(), err)
			s.Reset()
			return
		}

		m.metrics.IncrementMessagesReceived()
		handler(s.Conn().RemotePeer(), body)
	})
}

// connectToBootstrapPeersWithRetry connects to bootstrap peers with
// retry logic.
func (m *Manager) connectToBootstrapPeersWithRetry() {
	var wg sync.WaitGroup

	for _, addr := range m.bootstrapPeers {
		pi, err := peer.AddrInfoFromP2pAddr(addr)
		if err != nil {
			log.Warnf("Invalid bootstrap peer address %s: %v", addr, err)
			continue
		}
		if pi.ID == m.Host.ID() {
			continue // Don't connect to self
		}

		wg.Add(1)
		go func(pi peer.AddrInfo) {
			defer wg.Done()
			m.connectWithRetry(pi, 3)
		}(*pi)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("Bootstrap peer connection attempts completed")
	case <-time.After(30 * time.Second):
		log.Warn("Bootstrap peer connection attempts timed out")
	}
}

// connectWithRetry attempts to connect to a peer with retry logic.
func (m *Manager) connectWithRetry(pi peer.AddrInfo, maxRetries int) {
	for attempt := 1; attempt <= maxRetries; attempt++ {
		m.metrics.IncrementConnectionAttempts()

		connectCtx, connectCancel := context.WithTimeout(m.Ctx, 10*time.Second)
		err := m.Host.Connect(connectCtx, pi)
		connectCancel()

		if err == nil {
			log.Infof("Connected to peer: %s (attempt %d)", pi.ID, attempt)
			return
		}

		m.metrics.IncrementFailedConnections()
		log.Warnf("Failed to connect to peer %s (attempt %d/%d): %v", pi.ID, attempt, maxRetries, err)

		if attempt < maxRetries {
			backoff := time.Duration(attempt*attempt) * time.Second
			select {
			case <-time.After(backoff):
			case <-m.Ctx.Done():
				return
			}
		}
	}

	log.Warnf("Failed to connect to peer %s after %d attempts", pi.ID, maxRetries)
}

// startPeerCountMonitor periodically refreshes the peer count metric.
func (m *Manager) startPeerCountMonitor() {
	m.healthTicker = time.NewTicker(30 * time.Second)

	go func() {
		for {
			select {
			case <-m.healthTicker.C:
				m.metrics.UpdatePeerCount(int64(len(m.Host.Network().Peers())))
			case <-m.Ctx.Done():
				return
			}
		}
	}()
}

// GetPeerCount returns the number of connected peers.
func (m *Manager) GetPeerCount() int {
	return len(m.Host.Network().Peers())
}

// GetHostID returns this node's peer ID.
func (m *Manager) GetHostID() peer.ID {
	return m.Host.ID()
}

// GetListenAddresses returns the addresses the host is listening on.
func (m *Manager) GetListenAddresses() []multiaddr.Multiaddr {
	return m.Host.Addrs()
}

// GetMetrics returns current transport metrics.
func (m *Manager) GetMetrics() *NetworkMetrics {
	return m.metrics
}

// GetStats returns transport statistics including metrics.
func (m *Manager) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"peer_id":         m.Host.ID().String(),
		"listen_port":     m.listenPort,
		"connected_peers": len(m.Host.Network().Peers()),
		"bootstrap_peers": len(m.bootstrapPeers),
	}

	for k, v := range m.metrics.GetSnapshot() {
		stats[k] = v
	}
	return stats
}
