package sender

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/thrylos-labs/go-gossip/core/artifact"
	"github.com/thrylos-labs/go-gossip/network"
)

func testAdvert(payload string) *artifact.Advert {
	return artifact.NewAdvert(artifact.New(artifact.KindBlock, nil, []byte(payload)))
}

func TestDuplicateAdvertIsDropped(t *testing.T) {
	s := newTestSender(testConfig(), newFakePool(), newFakeTransport(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	adv := testAdvert("block-1")
	s.handleAdvert(ctx, adv)
	s.handleAdvert(ctx, adv)

	require.Len(t, s.active, 1)
	require.Equal(t, int64(1), snapshotInt(s.metrics, "new_adverts"))
	require.Equal(t, int64(1), snapshotInt(s.metrics, "duplicate_adverts"))
}

func TestAdvertsThenPurge(t *testing.T) {
	s := newTestSender(testConfig(), newFakePool(), newFakeTransport(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := testAdvert("block-1")
	s.handleAdvert(ctx, first)
	s.handleAdvert(ctx, testAdvert("block-2"))
	s.handleAdvert(ctx, testAdvert("block-3"))
	require.Len(t, s.active, 3)

	s.handlePurge(first.ID)
	require.Len(t, s.active, 2)
	require.NotContains(t, s.active, first.ID)
	require.Equal(t, int64(1), snapshotInt(s.metrics, "active_purges"))

	// The purged broadcast's slot (0) is recycled before a new one is
	// minted.
	require.Equal(t, network.SlotNumber(0), s.slots.takeFreeSlot())
}

func TestDuplicatePurgeIsNoop(t *testing.T) {
	s := newTestSender(testConfig(), newFakePool(), newFakeTransport(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	adv := testAdvert("block-1")
	s.handleAdvert(ctx, adv)

	s.handlePurge(adv.ID)
	s.handlePurge(adv.ID)
	s.handlePurge(testAdvert("never-seen").ID)

	require.Equal(t, int64(1), snapshotInt(s.metrics, "active_purges"))
	require.Equal(t, int64(2), snapshotInt(s.metrics, "duplicate_purges"))

	// The slot was returned exactly once.
	require.Len(t, s.slots.freeSlots, 1)
	require.Equal(t, int64(0), snapshotInt(s.metrics, "slots_in_use"))
}

func TestEventLoopCommitID(t *testing.T) {
	events := make(chan Event, 16)
	s := newTestSender(testConfig(), newFakePool(), newFakeTransport(), events)

	first := testAdvert("block-1")
	events <- AdvertEvent(first)
	events <- AdvertEvent(testAdvert("block-2"))
	events <- AdvertEvent(testAdvert("block-3"))
	events <- PurgeEvent(first.ID)
	close(events)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sender did not drain the event stream")
	}

	// One increment per processed event.
	require.Equal(t, network.CommitID(4), s.commitID)
	require.Equal(t, int64(3), snapshotInt(s.metrics, "new_adverts"))
	require.Equal(t, int64(1), snapshotInt(s.metrics, "active_purges"))

	// Shutdown returned every slot.
	require.Equal(t, int64(0), snapshotInt(s.metrics, "slots_in_use"))
	require.Empty(t, s.active)
}

func TestStartupReplay(t *testing.T) {
	pool := newFakePool(
		artifact.New(artifact.KindBlock, nil, []byte("replayed-1")),
		artifact.New(artifact.KindBlock, nil, []byte("replayed-2")),
	)

	events := make(chan Event)
	close(events)

	s := newTestSender(testConfig(), pool, newFakeTransport(), events)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sender did not finish startup replay")
	}

	// Replayed events count toward the commit id too.
	require.Equal(t, network.CommitID(2), s.commitID)
	require.Equal(t, int64(2), snapshotInt(s.metrics, "new_adverts"))
}

func TestContextCancelStopsEventLoop(t *testing.T) {
	events := make(chan Event)
	s := newTestSender(testConfig(), newFakePool(), newFakeTransport(), events)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	events <- AdvertEvent(testAdvert("block-1"))
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sender did not stop on context cancellation")
	}

	require.Empty(t, s.active)
	require.Equal(t, int64(0), snapshotInt(s.metrics, "slots_in_use"))
}
