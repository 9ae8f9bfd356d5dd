package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Luismorlan/famfeed/cache"
	"github.com/Luismorlan/famfeed/engine"
	"github.com/Luismorlan/famfeed/remote"
)

func TestSeedDemoFamily_EngineAttaches(t *testing.T) {
	store := remote.NewMemoryStore()
	require.NoError(t, seedDemoFamily(context.Background(), store, "u1", time.Date(2025, 5, 16, 1, 0, 0, 0, time.UTC)))

	fileCache, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	e, err := engine.New(engine.Config{Remote: store, Cache: fileCache})
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Start("u1"))
	require.Eventually(t, func() bool {
		s := e.Current()
		return s.Group != nil && len(s.Members) == 1
	}, 2*time.Second, 5*time.Millisecond)

	s := e.Current()
	assert.Equal(t, engine.StatusGroupAttached, s.Status)
	assert.Equal(t, demoGroupID, s.Group.GroupID)
	assert.Equal(t, "u1", s.Group.HostUserID)
	assert.Equal(t, "u1", s.Members[0].UID)
}

func TestDemoCloser(t *testing.T) {
	assert.NoError(t, demoCloser.CloseSession(context.Background(), engine.SessionEnded{UID: "u1"}))
}
