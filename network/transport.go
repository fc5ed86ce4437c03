// Package network defines the wire contract of the dissemination
// protocol and the transport capability the senders are built on.
package network

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"
)

// ConnID identifies a specific transport-layer connection instance to a
// peer. A reconnect yields a new, strictly larger identifier; a sender
// uses this to detect that a previously confirmed delivery belongs to a
// dead connection.
type ConnID uint64

// PeerConn is one entry of the current peer set: a connected peer and
// the identifier of its live connection.
type PeerConn struct {
	Peer peer.ID
	Conn ConnID
}

// Request is one message push addressed to a per-kind route.
type Request struct {
	Route string
	Body  []byte
}

// Transport is the connection fabric capability. Implementations must be
// safe for concurrent use; Push may be called by many transmitters at
// once.
type Transport interface {
	// Peers returns the currently connected peers with their live
	// connection identifiers.
	Peers() []PeerConn

	// Push delivers a request to a peer. An error means the peer is not
	// currently deliverable, not a protocol failure; callers are
	// expected to retry.
	Push(ctx context.Context, to peer.ID, req Request) error
}
