package artifact

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeID(t *testing.T) {
	id1 := ComputeID([]byte("payload"))
	id2 := ComputeID([]byte("payload"))
	id3 := ComputeID([]byte("other payload"))

	require.Equal(t, id1, id2, "identity must be deterministic")
	require.NotEqual(t, id1, id3)
	require.False(t, id1.IsZero())
}

func TestIDStringRoundtrip(t *testing.T) {
	id := ComputeID([]byte("payload"))

	parsed, err := IDFromString(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	require.Len(t, id.String(), 2*IDLength)
}

func TestIDFromBytes(t *testing.T) {
	id := ComputeID([]byte("payload"))

	parsed, err := IDFromBytes(id.Bytes())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	_, err = IDFromBytes([]byte{0x01, 0x02})
	require.Error(t, err)
}

func TestIDFromStringInvalid(t *testing.T) {
	_, err := IDFromString("not-hex")
	require.Error(t, err)

	_, err = IDFromString("abcd") // valid hex, wrong length
	require.Error(t, err)
}

func TestIDJSON(t *testing.T) {
	id := ComputeID([]byte("payload"))

	data, err := json.Marshal(id)
	require.NoError(t, err)
	require.Equal(t, `"`+id.String()+`"`, string(data))

	var decoded ID
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, id, decoded)
}

func TestNewDerivesIdentityFromPayload(t *testing.T) {
	a := New(KindBlock, []byte("attr"), []byte("payload"))

	require.Equal(t, KindBlock, a.Kind)
	require.Equal(t, ComputeID([]byte("payload")), a.ID)
	require.Equal(t, []byte("attr"), a.Attribute)
}

func TestNewAdvert(t *testing.T) {
	a := New(KindCertificate, []byte("attr"), []byte("certificate payload"))
	adv := NewAdvert(a)

	require.Equal(t, a.ID, adv.ID)
	require.Equal(t, len(a.Data), adv.Size)
	require.Equal(t, a.Attribute, adv.Attribute)
}

func TestArtifactEqual(t *testing.T) {
	a := New(KindBlock, nil, []byte("payload"))
	b := New(KindBlock, nil, []byte("payload"))
	c := New(KindBlock, nil, []byte("other"))

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
	require.False(t, a.Equal(nil))
}
