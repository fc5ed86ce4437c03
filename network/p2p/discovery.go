package p2p

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/libp2p/go-libp2p/p2p/discovery/routing"
)

// HandlePeerFound handles newly discovered peers via mDNS.
func (m *Manager) HandlePeerFound(pi peer.AddrInfo) {
	log.Debugf("Discovered new peer via mDNS: %s", pi.ID)
	if pi.ID == m.Host.ID() {
		return
	}
	go func() {
		connectCtx, connectCancel := context.WithTimeout(m.Ctx, 10*time.Second)
		defer connectCancel()
		if err := m.Host.Connect(connectCtx, pi); err != nil {
			log.Debugf("Failed to connect to mDNS discovered peer %s: %v", pi.ID, err)
		} else {
			log.Infof("Connected to mDNS discovered peer %s", pi.ID)
		}
	}()
}

// startMDNSDiscovery starts local network peer discovery.
func (m *Manager) startMDNSDiscovery() {
	service := mdns.NewMdnsService(m.Host, m.rendezvous, m)
	if err := service.Start(); err != nil {
		log.Warnf("Failed to start mDNS discovery: %v", err)
	} else {
		log.Info("mDNS discovery started")
	}
}

// startDHTDiscovery starts DHT-based peer discovery.
func (m *Manager) startDHTDiscovery() {
	routingDiscovery := routing.NewRoutingDiscovery(m.DHT)
	routingDiscovery.Advertise(m.Ctx, m.rendezvous)

	go func() {
		for {
			select {
			case <-m.Ctx.Done():
				return
			case <-time.After(30 * time.Second):
				peerChan, err := routingDiscovery.FindPeers(m.Ctx, m.rendezvous)
				if err != nil {
					log.Warnf("DHT peer discovery failed: %v", err)
					continue
				}
				for pi := range peerChan {
					if pi.ID == m.Host.ID() || len(pi.Addrs) == 0 {
						continue
					}
					log.Debugf("Discovered peer via DHT: %s", pi.ID)
					go func(pi peer.AddrInfo) {
						connectCtx, connectCancel := context.WithTimeout(m.Ctx, 10*time.Second)
						defer connectCancel()
						if err := m.Host.Connect(connectCtx, pi); err != nil {
							log.Debugf("Failed to connect to DHT discovered peer %s: %v", pi.ID, err)
						} else {
							log.Infof("Connected to DHT discovered peer %s", pi.ID)
						}
					}(pi)
				}
			}
		}
	}()
	log.Info("DHT discovery started")
}
