package socket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTrackerFixture(ttl time.Duration) (*Registry, *TypingTracker) {
	registry := NewRegistry(nil)
	router := NewRouter(registry, nil)
	return registry, NewTypingTracker(registry, router, ttl)
}

func TestMarkTypingBroadcastsToEveryMemberIncludingTypist(t *testing.T) {
	registry, tracker := newTrackerFixture(time.Hour)
	a, b := newFakePeer("a", 8), newFakePeer("b", 8)
	registry.Join("doc1", alice, a)
	registry.Join("doc1", bob, b)

	typers := tracker.MarkTyping("doc1", alice)
	assert.Equal(t, []string{"Alice"}, typers)
	assert.Equal(t, []string{"Alice"}, typingLabels(t, a.next(t)))
	assert.Equal(t, []string{"Alice"}, typingLabels(t, b.next(t)))

	tracker.MarkTyping("doc1", bob)
	assert.Equal(t, []string{"Alice", "bob@example.com"}, typingLabels(t, a.next(t)))
}

func TestMarkTypingWithoutSessionIsNoop(t *testing.T) {
	registry, tracker := newTrackerFixture(time.Hour)
	assert.Empty(t, tracker.MarkTyping("doc1", alice))
	assert.Equal(t, 0, registry.Sessions())
}

func TestMarkTypingIgnoresUserWithoutPresence(t *testing.T) {
	registry, tracker := newTrackerFixture(time.Hour)
	a := newFakePeer("a", 8)
	registry.Join("doc1", alice, a)

	assert.Empty(t, tracker.MarkTyping("doc1", bob))
	assert.Empty(t, tracker.TypersOf("doc1"))
	a.expectNone(t)
}

func TestTypingRecordExpiresAfterTTL(t *testing.T) {
	registry, tracker := newTrackerFixture(50 * time.Millisecond)
	a := newFakePeer("a", 8)
	registry.Join("doc1", alice, a)

	tracker.MarkTyping("doc1", alice)
	assert.Equal(t, []string{"Alice"}, typingLabels(t, a.next(t)))
	assert.Empty(t, typingLabels(t, a.next(t)))
	assert.Empty(t, tracker.TypersOf("doc1"))
}

func TestTypingRefreshIsNotUndoneByEarlierExpiry(t *testing.T) {
	const ttl = 300 * time.Millisecond
	registry, tracker := newTrackerFixture(ttl)
	registry.Join("doc1", alice, newFakePeer("a", 64))

	tracker.MarkTyping("doc1", alice)
	time.Sleep(ttl / 2)
	refreshedAt := time.Now()
	tracker.MarkTyping("doc1", alice)

	// Past the first record's deadline, before the refreshed one.
	time.Sleep(ttl*5/4 - ttl/2)
	require.Less(t, time.Since(refreshedAt), ttl, "test host too slow to observe the window")
	assert.Equal(t, []string{"Alice"}, tracker.TypersOf("doc1"))

	require.Eventually(t, func() bool {
		return len(tracker.TypersOf("doc1")) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(refreshedAt), ttl)
}

func TestExpireIgnoresSupersededGeneration(t *testing.T) {
	registry, tracker := newTrackerFixture(time.Hour)
	registry.Join("doc1", alice, newFakePeer("a", 64))

	s := registry.acquire("doc1", false)
	first := tracker.mark(s, alice.ID, alice.Label())
	second := tracker.mark(s, alice.ID, alice.Label())
	registry.release(s)

	assert.False(t, tracker.Expire("doc1", alice.ID, first))
	assert.Equal(t, []string{"Alice"}, tracker.TypersOf("doc1"))

	assert.True(t, tracker.Expire("doc1", alice.ID, second))
	assert.Empty(t, tracker.TypersOf("doc1"))
	assert.False(t, tracker.Expire("doc1", alice.ID, second))
}

func TestClearRemovesRecordAndBroadcasts(t *testing.T) {
	registry, tracker := newTrackerFixture(time.Hour)
	a := newFakePeer("a", 8)
	registry.Join("doc1", alice, a)
	tracker.MarkTyping("doc1", alice)
	a.drain()

	assert.Empty(t, tracker.Clear("doc1", alice.ID))
	assert.Empty(t, typingLabels(t, a.next(t)))

	// Clearing again still reports the (empty) typers to the session.
	tracker.Clear("doc1", alice.ID)
	assert.Empty(t, typingLabels(t, a.next(t)))
}

func TestSessionTeardownStopsTypingTimers(t *testing.T) {
	registry, tracker := newTrackerFixture(20 * time.Millisecond)
	registry.Join("doc1", alice, newFakePeer("a", 8))
	tracker.MarkTyping("doc1", alice)

	registry.Leave("doc1", "a")
	assert.Equal(t, 0, registry.Sessions())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, registry.Sessions(), "a stale expiry must not resurrect the session")
}
