package sender

import (
	"github.com/thrylos-labs/go-gossip/core/artifact"
)

// EventType distinguishes the dissemination events a sender consumes.
type EventType int

const (
	// EventAdvert announces a newly validated artifact.
	EventAdvert EventType = iota
	// EventPurge withdraws an artifact from dissemination.
	EventPurge
)

// Event is one item of the ordered event stream feeding a sender. The
// validation pipeline produces adverts when artifacts enter the pool and
// purges when they leave it.
type Event struct {
	Type   EventType
	Advert *artifact.Advert // set for EventAdvert
	ID     artifact.ID      // set for EventPurge
}

// AdvertEvent wraps an advert for the event stream.
func AdvertEvent(adv *artifact.Advert) Event {
	return Event{Type: EventAdvert, Advert: adv}
}

// PurgeEvent wraps a purge for the event stream.
func PurgeEvent(id artifact.ID) Event {
	return Event{Type: EventPurge, ID: id}
}
