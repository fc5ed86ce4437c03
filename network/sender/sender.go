// Package sender implements the outbound half of the artifact
// dissemination protocol: one event loop per artifact kind that assigns
// a slot to every actively broadcast artifact, runs one broadcast task
// per artifact, and tears broadcast state down on purge.
//
// Delivery semantics are exactly-once-active, not exactly-once-delivered:
// at most one broadcast task runs per artifact identity, and each task
// keeps re-driving delivery to peers whose live connection has not yet
// confirmed the update.
package sender

import (
	"context"
	"fmt"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/thrylos-labs/go-gossip/config"
	"github.com/thrylos-labs/go-gossip/core/artifact"
	"github.com/thrylos-labs/go-gossip/network"
	"github.com/thrylos-labs/go-gossip/storage"
)

var log = logging.Logger("gossip/sender")

// Sender drives dissemination for one artifact kind. It exclusively
// owns the active-advert map and the slot manager; both are touched
// only from the Run loop.
type Sender struct {
	kind  artifact.Kind
	route string
	cfg   config.GossipConfig

	pool      storage.ValidatedPool
	transport network.Transport
	events    <-chan Event
	metrics   *Metrics

	slots    *slotManager
	commitID network.CommitID
	active   map[artifact.ID]activeAdvert
}

// activeAdvert is the record of one running broadcast: the cancel
// handle of its task and the slot reserved for it. It exists exactly
// while the artifact is in the active map.
type activeAdvert struct {
	cancel context.CancelFunc
	slot   network.SlotNumber
}

// New creates a sender for one artifact kind. A zero PeerCheckInterval
// falls back to the 5 second default.
func New(cfg config.GossipConfig, kind artifact.Kind, pool storage.ValidatedPool, transport network.Transport, events <-chan Event, metrics *Metrics) *Sender {
	if cfg.PeerCheckInterval <= 0 {
		cfg.PeerCheckInterval = 5 * time.Second
	}
	return &Sender{
		kind:      kind,
		route:     network.UpdateRoute(kind),
		cfg:       cfg,
		pool:      pool,
		transport: transport,
		events:    events,
		metrics:   metrics,
		slots:     newSlotManager(cfg.SlotTableThreshold, metrics),
		active:    make(map[artifact.ID]activeAdvert),
	}
}

// Kind returns the artifact kind this sender disseminates.
func (s *Sender) Kind() artifact.Kind {
	return s.kind
}

// Metrics returns the sender's metrics set. Safe for concurrent use.
func (s *Sender) Metrics() *Metrics {
	return s.metrics
}

// Run replays the validated pool, then consumes advert and purge events
// until the event stream is closed or ctx is canceled. The commit id
// increments once per processed event, replayed startup events
// included.
func (s *Sender) Run(ctx context.Context) {
	// A restarted node still has validated artifacts on disk; they must
	// be re-broadcast.
	replay, err := s.pool.GetAllValidated()
	if err != nil {
		// The storage capability is contractually infallible from this
		// component's view; a failing startup read means the pool is
		// broken and the node cannot disseminate.
		panic(fmt.Sprintf("reading validated pool for %q on startup: %v", s.kind, err))
	}
	for _, a := range replay {
		s.handleAdvert(ctx, artifact.NewAdvert(a))
		s.commitID++
	}

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case ev, ok := <-s.events:
			if !ok {
				s.shutdown()
				return
			}
			switch ev.Type {
			case EventAdvert:
				s.handleAdvert(ctx, ev.Advert)
			case EventPurge:
				s.handlePurge(ev.ID)
			}
			s.commitID++
		}
	}
}

// handleAdvert starts a broadcast for a newly advertised artifact.
// Duplicate adverts for an already active identity are dropped.
func (s *Sender) handleAdvert(ctx context.Context, adv *artifact.Advert) {
	if _, ok := s.active[adv.ID]; ok {
		s.metrics.incrementDupAdverts()
		log.Debugw("duplicate advert", "kind", s.kind, "id", adv.ID)
		return
	}

	s.metrics.incrementNewAdverts()
	slot := s.slots.takeFreeSlot()

	taskCtx, cancel := context.WithCancel(ctx)
	s.active[adv.ID] = activeAdvert{cancel: cancel, slot: slot}

	go s.broadcast(taskCtx, s.commitID, slot, adv)
}

// handlePurge cancels the broadcast for a purged artifact and returns
// its slot. Purges for identities never seen or already purged are
// dropped.
func (s *Sender) handlePurge(id artifact.ID) {
	rec, ok := s.active[id]
	if !ok {
		s.metrics.incrementDupPurges()
		log.Debugw("purge for inactive artifact", "kind", s.kind, "id", id)
		return
	}

	s.metrics.incrementActivePurges()
	delete(s.active, id)
	rec.cancel()
	s.slots.giveSlot(rec.slot)
}

// shutdown cancels every running broadcast and returns their slots.
func (s *Sender) shutdown() {
	for id, rec := range s.active {
		rec.cancel()
		s.slots.giveSlot(rec.slot)
		delete(s.active, id)
	}
}
