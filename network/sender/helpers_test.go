package sender

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/thrylos-labs/go-gossip/config"
	"github.com/thrylos-labs/go-gossip/core/artifact"
	"github.com/thrylos-labs/go-gossip/network"
	"github.com/thrylos-labs/go-gossip/storage"
)

// pushRecord is one accepted push observed by the fake transport.
type pushRecord struct {
	to  peer.ID
	req network.Request
}

// fakeTransport is an in-memory transport capability with a mutable
// peer set and per-peer scripted failures.
type fakeTransport struct {
	mu       sync.Mutex
	peers    []network.PeerConn
	failures map[peer.ID]int // remaining Push failures per peer
	pushes   []pushRecord
	pushCh   chan pushRecord
}

func newFakeTransport(peers ...network.PeerConn) *fakeTransport {
	return &fakeTransport{
		peers:    peers,
		failures: make(map[peer.ID]int),
		pushCh:   make(chan pushRecord, 128),
	}
}

func (f *fakeTransport) setPeers(peers ...network.PeerConn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peers = peers
}

func (f *fakeTransport) setFailures(p peer.ID, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[p] = n
}

func (f *fakeTransport) Peers() []network.PeerConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]network.PeerConn(nil), f.peers...)
}

func (f *fakeTransport) Push(ctx context.Context, to peer.ID, req network.Request) error {
	f.mu.Lock()
	if f.failures[to] > 0 {
		f.failures[to]--
		f.mu.Unlock()
		return fmt.Errorf("peer %s unreachable", to)
	}
	rec := pushRecord{to: to, req: req}
	f.pushes = append(f.pushes, rec)
	f.mu.Unlock()

	select {
	case f.pushCh <- rec:
	default:
	}
	return nil
}

func (f *fakeTransport) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

// fakePool is an in-memory validated pool.
type fakePool struct {
	mu        sync.Mutex
	artifacts []*artifact.Artifact
}

func newFakePool(artifacts ...*artifact.Artifact) *fakePool {
	return &fakePool{artifacts: artifacts}
}

func (f *fakePool) GetAllValidated() ([]*artifact.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*artifact.Artifact(nil), f.artifacts...), nil
}

func (f *fakePool) GetValidated(id artifact.ID) (*artifact.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.artifacts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, storage.ErrNotFound
}

// testConfig returns gossip configuration with a short reconciliation
// interval so broadcast tests settle quickly.
func testConfig() config.GossipConfig {
	return config.GossipConfig{
		EnableArtifactPush:    false,
		ArtifactPushThreshold: 5 * 1024,
		PeerCheckInterval:     10 * time.Millisecond,
		SlotTableThreshold:    30_000,
	}
}

func newTestSender(cfg config.GossipConfig, pool storage.ValidatedPool, transport network.Transport, events <-chan Event) *Sender {
	return New(cfg, artifact.KindBlock, pool, transport, events, NewMetrics())
}

func snapshotInt(m *Metrics, key string) int64 {
	v, ok := m.Snapshot()[key]
	if !ok {
		return -1
	}
	return v.(int64)
}
