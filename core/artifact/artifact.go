// Package artifact defines the validated data items subject to
// dissemination and the lightweight adverts that describe them.
package artifact

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// IDLength is the byte length of an artifact identity.
const IDLength = 32

// ID uniquely identifies one artifact within its kind. It is the
// BLAKE2b-256 digest of the artifact payload and is never reused while
// the artifact is actively broadcast.
type ID [IDLength]byte

// ComputeID derives the identity of an artifact payload.
func ComputeID(data []byte) ID {
	return ID(blake2b.Sum256(data))
}

// IDFromBytes converts a raw digest into an ID.
func IDFromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != IDLength {
		return id, fmt.Errorf("invalid artifact ID length: got %d, want %d", len(b), IDLength)
	}
	copy(id[:], b)
	return id, nil
}

// IDFromString parses a hex-encoded artifact ID.
func IDFromString(s string) (ID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, fmt.Errorf("invalid artifact ID %q: %w", s, err)
	}
	return IDFromBytes(b)
}

// String returns the hex encoding of the ID.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns a copy of the raw digest.
func (id ID) Bytes() []byte {
	b := make([]byte, IDLength)
	copy(b, id[:])
	return b
}

// IsZero reports whether the ID is the zero digest.
func (id ID) IsZero() bool {
	return id == ID{}
}

// MarshalJSON encodes the ID as a hex string.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON decodes the ID from a hex string.
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := IDFromString(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Kind names a category of artifacts. Each kind has its own validated
// pool, its own sender, and its own wire route.
type Kind string

const (
	KindBlock       Kind = "block"
	KindCertificate Kind = "certificate"
)

// Kinds lists every artifact kind a node disseminates.
func Kinds() []Kind {
	return []Kind{KindBlock, KindCertificate}
}

// Artifact is a locally validated data item.
type Artifact struct {
	Kind      Kind   `cbor:"kind" json:"kind"`
	ID        ID     `cbor:"id" json:"id"`
	Attribute []byte `cbor:"attribute,omitempty" json:"attribute,omitempty"`
	Data      []byte `cbor:"data" json:"data"`
}

// New builds an artifact for a validated payload, deriving its identity
// from the payload bytes.
func New(kind Kind, attribute, data []byte) *Artifact {
	return &Artifact{
		Kind:      kind,
		ID:        ComputeID(data),
		Attribute: attribute,
		Data:      data,
	}
}

// Equal reports whether two artifacts are identical.
func (a *Artifact) Equal(other *Artifact) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.Kind == other.Kind &&
		a.ID == other.ID &&
		bytes.Equal(a.Attribute, other.Attribute) &&
		bytes.Equal(a.Data, other.Data)
}

// Advert is a lightweight description of an artifact, sent in place of
// the full payload so peers can decide whether to pull it.
type Advert struct {
	ID        ID     `cbor:"id" json:"id"`
	Size      int    `cbor:"size" json:"size"`
	Attribute []byte `cbor:"attribute,omitempty" json:"attribute,omitempty"`
}

// NewAdvert derives the advert for an artifact.
func NewAdvert(a *Artifact) *Advert {
	return &Advert{
		ID:        a.ID,
		Size:      len(a.Data),
		Attribute: a.Attribute,
	}
}
