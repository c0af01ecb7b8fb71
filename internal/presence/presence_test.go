package presence

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) (*Tracker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tracker := NewTrackerWithClient(client)
	t.Cleanup(func() { tracker.Close() })

	return tracker, mr
}

func TestConnectedDisconnected(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	online, err := tracker.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.False(t, online, "expected user to start offline")

	n, err := tracker.Connected(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "expected one connection after first connect")

	n, err = tracker.Connected(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n, "expected second connection to be counted")

	online, err = tracker.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.True(t, online, "expected user to be online with live connections")

	n, err = tracker.Disconnected(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "expected one connection to remain")

	online, err = tracker.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.True(t, online, "expected user to remain online with one connection")

	n, err = tracker.Disconnected(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "expected no connections to remain")

	online, err = tracker.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.False(t, online, "expected user to be offline after last disconnect")
}

func TestPresenceExpires(t *testing.T) {
	tracker, mr := newTestTracker(t)
	ctx := context.Background()

	_, err := tracker.Connected(ctx, 7)
	require.NoError(t, err)

	mr.FastForward(defaultTTL * 2)

	online, err := tracker.IsOnline(ctx, 7)
	require.NoError(t, err)
	assert.False(t, online, "expected presence entry to age out")
}

func TestHeartbeat(t *testing.T) {
	tracker, mr := newTestTracker(t)
	ctx := context.Background()

	err := tracker.Heartbeat(ctx, 9)
	assert.Error(t, err, "expected heartbeat without connection to fail")

	_, err = tracker.Connected(ctx, 9)
	require.NoError(t, err)

	mr.FastForward(defaultTTL / 2)
	require.NoError(t, tracker.Heartbeat(ctx, 9))

	mr.FastForward(defaultTTL / 2)
	online, err := tracker.IsOnline(ctx, 9)
	require.NoError(t, err)
	assert.True(t, online, "expected heartbeat to extend presence TTL")
}
