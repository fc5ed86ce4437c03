package sender

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/thrylos-labs/go-gossip/network"
)

const (
	minBackoffInterval = 250 * time.Millisecond
	maxBackoffInterval = 10 * time.Second
	// The multiplier is chosen such that the sum of all intervals is
	// about 100 seconds: (1.1^25 - 1) / (1.1 - 1) ~= 98.
	backoffIntervalMultiplier = 1.1
	maxElapsedTime            = 5 * time.Minute
)

// newBackoffPolicy returns the randomized exponential schedule used
// between delivery attempts.
func newBackoffPolicy() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = minBackoffInterval
	bo.RandomizationFactor = 0.1
	bo.Multiplier = backoffIntervalMultiplier
	bo.MaxInterval = maxBackoffInterval
	bo.MaxElapsedTime = maxElapsedTime
	bo.Reset()
	return bo
}

// transmitResult reports one confirmed delivery: the peer and the
// connection identifier it was confirmed on.
type transmitResult struct {
	peer peer.ID
	conn network.ConnID
}

// transmit pushes one serialized update to a peer until the transport
// accepts it, then reports the connection identifier it was confirming.
// It never fails: unreachable peers are retried with exponential
// backoff for as long as the broadcast is alive. The backoff schedule
// only governs spacing; once exhausted the transmitter keeps retrying
// at the max elapsed time.
func transmit(ctx context.Context, transport network.Transport, pc network.PeerConn, req network.Request, results chan<- transmitResult) {
	bo := newBackoffPolicy()

	for {
		if err := transport.Push(ctx, pc.Peer, req); err == nil {
			select {
			case results <- transmitResult{peer: pc.Peer, conn: pc.Conn}:
			case <-ctx.Done():
			}
			return
		}
		if ctx.Err() != nil {
			return
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			wait = maxElapsedTime
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}
