package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestManagerEnforcesSessionCap(t *testing.T) {
	m := NewManager(nil, zap.NewNop(), 2, time.Minute)
	ctx := context.Background()

	first := newTestSession(t, newFakeConn(), &fakeConnector{channel: newFakeChannel()})
	second := newTestSession(t, newFakeConn(), &fakeConnector{channel: newFakeChannel()})
	second.ID = "sid-2"
	third := newTestSession(t, newFakeConn(), &fakeConnector{channel: newFakeChannel()})
	third.ID = "sid-3"

	require.NoError(t, m.Register(ctx, first))
	require.NoError(t, m.Register(ctx, second))
	assert.Error(t, m.Register(ctx, third))
	assert.Equal(t, 2, m.ActiveCount())
}

func TestManagerRemove(t *testing.T) {
	m := NewManager(nil, zap.NewNop(), 10, time.Minute)
	ctx := context.Background()

	s := newTestSession(t, newFakeConn(), &fakeConnector{channel: newFakeChannel()})
	require.NoError(t, m.Register(ctx, s))

	m.Remove(ctx, s.ID)
	assert.Equal(t, 0, m.ActiveCount())

	_, exists := m.Get(s.ID)
	assert.False(t, exists)

	// removing again is a no-op
	m.Remove(ctx, s.ID)
}

func TestManagerCleanupStale(t *testing.T) {
	m := NewManager(nil, zap.NewNop(), 10, 10*time.Millisecond)
	ctx := context.Background()

	s := newTestSession(t, newFakeConn(), &fakeConnector{channel: newFakeChannel()})
	require.NoError(t, m.Register(ctx, s))

	time.Sleep(20 * time.Millisecond)
	m.CleanupStale(ctx)
	assert.Equal(t, 0, m.ActiveCount())
}

func TestNewIDIsUnique(t *testing.T) {
	assert.NotEqual(t, NewID(), NewID())
}
