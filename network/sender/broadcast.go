package sender

import (
	"context"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/thrylos-labs/go-gossip/core/artifact"
	"github.com/thrylos-labs/go-gossip/network"
	"github.com/thrylos-labs/go-gossip/storage"
)

// broadcast disseminates one artifact to every live peer until the
// sender cancels it on purge. Peer membership and connection
// identifiers change over time, so a single fire-and-forget send is not
// enough: the task keeps re-checking which peers are not yet confirmed
// at their latest connection and re-drives delivery to them.
func (s *Sender) broadcast(ctx context.Context, commitID network.CommitID, slot network.SlotNumber, adv *artifact.Advert) {
	update := &network.Update{
		SlotNumber: slot,
		CommitID:   commitID,
	}

	// Payload selection happens exactly once: push the artifact inline
	// when enabled and small enough, advertise otherwise.
	if s.cfg.EnableArtifactPush && adv.Size <= s.cfg.ArtifactPushThreshold {
		a, err := s.pool.GetValidated(adv.ID)
		switch {
		case err == nil:
			update.Artifact = a.Data
		case err == storage.ErrNotFound:
			// The artifact can legitimately disappear between the advert
			// event and this read (local eviction).
			log.Warnw("artifact missing from validated pool, sending advert instead",
				"kind", s.kind, "id", adv.ID)
			update.Advert = adv
		default:
			log.Warnw("failed to read artifact from validated pool, sending advert instead",
				"kind", s.kind, "id", adv.ID, "err", err)
			update.Advert = adv
		}
	} else {
		update.Advert = adv
	}

	body, err := update.Marshal()
	if err != nil {
		// The envelope is built entirely from values this package
		// constructed; failing to serialize it is a programming defect.
		panic(fmt.Sprintf("serializing update for artifact %s: %v", adv.ID, err))
	}
	req := network.Request{Route: s.route, Body: body}

	// delivered records the connection identifier a peer last confirmed
	// this update on; inFlight bounds attempts to one per peer.
	delivered := make(map[peer.ID]network.ConnID)
	inFlight := make(map[peer.ID]struct{})
	results := make(chan transmitResult)

	ticker := time.NewTicker(s.cfg.PeerCheckInterval)
	defer ticker.Stop()

	s.reconcilePeers(ctx, req, delivered, inFlight, results)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reconcilePeers(ctx, req, delivered, inFlight, results)
		case res := <-results:
			delete(inFlight, res.peer)
			delivered[res.peer] = res.conn
			s.metrics.incrementDelivered()
		}
	}
}

// reconcilePeers scans the current peer set and starts a transmitter for
// every peer not yet confirmed at its live connection. A peer with a
// recorded delivery at an older connection identifier has reconnected
// and must be re-targeted.
func (s *Sender) reconcilePeers(ctx context.Context, req network.Request, delivered map[peer.ID]network.ConnID, inFlight map[peer.ID]struct{}, results chan<- transmitResult) {
	for _, pc := range s.transport.Peers() {
		if conn, ok := delivered[pc.Peer]; ok && conn == pc.Conn {
			continue
		}
		if _, ok := inFlight[pc.Peer]; ok {
			continue
		}

		inFlight[pc.Peer] = struct{}{}
		s.metrics.incrementSendToPeer()
		go transmit(ctx, s.transport, pc, req, results)
	}
}
