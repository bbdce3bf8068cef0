package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, *captureReporter) {
	t.Helper()

	reporter := &captureReporter{}
	return newRegistry(testConfig(), reporter), reporter
}

func TestPlaceCreatesSessionForFirstPlayer(t *testing.T) {
	reg, _ := newTestRegistry(t)
	c1 := newTestClient("alice-id")

	reg.place(c1, "Alice")

	sess := c1.session.Load()
	require.NotNil(t, sess)

	require.Eventually(t, func() bool {
		return sess.connectedCount() == 1
	}, time.Second, 5*time.Millisecond)

	sessions, players := reg.counts()
	assert.Equal(t, 1, sessions)
	assert.Equal(t, 1, players)
}

func TestPlacePairsSecondPlayer(t *testing.T) {
	reg, _ := newTestRegistry(t)
	c1 := newTestClient("alice-id")
	c2 := newTestClient("bob-id")

	// Back-to-back placement, with no window for the first session's loop
	// to run: the queued join already counts as a taken seat, so the
	// second player must land in the same session rather than spill into
	// a fresh one.
	reg.place(c1, "")
	reg.place(c2, "")

	assert.Same(t, c1.session.Load(), c2.session.Load())

	require.Eventually(t, func() bool {
		return c1.session.Load().connectedCount() == 2
	}, time.Second, 5*time.Millisecond)

	// Seated joins release their reservations, so occupancy settles at the
	// connected count instead of double-counting.
	assert.Equal(t, 2, c1.session.Load().occupancy())

	sessions, players := reg.counts()
	assert.Equal(t, 1, sessions)
	assert.Equal(t, 2, players)
}

func TestPlacePrefersIdentityMatchOverMatchmaking(t *testing.T) {
	reg, _ := newTestRegistry(t)
	c1 := newTestClient("alice-id")
	c2 := newTestClient("bob-id")

	reg.place(c1, "")
	reg.place(c2, "")
	require.Same(t, c1.session.Load(), c2.session.Load())
	require.Eventually(t, func() bool {
		return c1.session.Load().connectedCount() == 2
	}, time.Second, 5*time.Millisecond)

	original := c1.session.Load()

	// A reconnecting identity lands back in its own session even though
	// another seat might be open elsewhere.
	lone := newTestClient("carol-id")
	reg.place(lone, "")
	require.Eventually(t, func() bool {
		return lone.session.Load().connectedCount() == 1
	}, time.Second, 5*time.Millisecond)

	c1b := newTestClient("alice-id")
	reg.place(c1b, "")

	assert.Same(t, original, c1b.session.Load())
}

func TestPlaceFullSessionsSpillToNewOne(t *testing.T) {
	reg, _ := newTestRegistry(t)
	c1 := newTestClient("alice-id")
	c2 := newTestClient("bob-id")
	c3 := newTestClient("carol-id")

	// Three arrivals in a burst: the first two pair up and the third spills,
	// even before any session loop has seated its joins.
	reg.place(c1, "")
	reg.place(c2, "")
	reg.place(c3, "")

	assert.Same(t, c1.session.Load(), c2.session.Load())
	assert.NotSame(t, c1.session.Load(), c3.session.Load())

	require.Eventually(t, func() bool {
		_, players := reg.counts()
		return players == 3
	}, time.Second, 5*time.Millisecond)

	sessions, _ := reg.counts()
	assert.Equal(t, 2, sessions)
}

func TestRemoveForgetsSession(t *testing.T) {
	reg, _ := newTestRegistry(t)

	s := reg.create()
	sessions, _ := reg.counts()
	require.Equal(t, 1, sessions)

	reg.remove(s.id)
	sessions, _ = reg.counts()
	assert.Equal(t, 0, sessions)
}
