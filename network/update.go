package network

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/thrylos-labs/go-gossip/core/artifact"
)

// SlotNumber identifies one broadcast's logical channel. Slots are a
// scarce, reusable resource; peers bound their per-sender advert state
// by slot.
type SlotNumber uint64

// CommitID is a monotonic counter over dissemination events processed by
// one sender, attached to outgoing updates as a logical clock.
type CommitID uint64

// Update is the envelope pushed to peers: exactly one of Advert or
// Artifact is set, wrapped with the slot and commit id of the sending
// broadcast.
type Update struct {
	SlotNumber SlotNumber       `cbor:"slot_number"`
	CommitID   CommitID         `cbor:"commit_id"`
	Advert     *artifact.Advert `cbor:"advert,omitempty"`
	Artifact   []byte           `cbor:"artifact,omitempty"`
}

// Marshal serializes the update for the wire.
func (u *Update) Marshal() ([]byte, error) {
	body, err := cbor.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize update: %w", err)
	}
	return body, nil
}

// UnmarshalUpdate decodes a wire envelope.
func UnmarshalUpdate(data []byte) (*Update, error) {
	var u Update
	if err := cbor.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("failed to decode update: %w", err)
	}
	return &u, nil
}

// UpdateRoute returns the per-kind route updates are pushed to.
func UpdateRoute(kind artifact.Kind) string {
	return fmt.Sprintf("/%s/update", kind)
}
