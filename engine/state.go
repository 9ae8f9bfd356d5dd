package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Luismorlan/famfeed/model"
)

type Status int

const (
	StatusDetached Status = iota
	// Cache loaded and published, remote listeners not attached yet.
	StatusBootstrapping
	// One group listener active, member listeners follow the roster.
	StatusGroupAttached
	// Listeners torn down after the account or group disappeared remotely.
	StatusSuspended
)

func (s Status) String() string {
	switch s {
	case StatusDetached:
		return "DETACHED"
	case StatusBootstrapping:
		return "BOOTSTRAPPING"
	case StatusGroupAttached:
		return "GROUP_ATTACHED"
	case StatusSuspended:
		return "SUSPENDED"
	}
	return "UNKNOWN"
}

// State is one published snapshot of everything the engine knows. A State is
// never modified after it is published; readers may hold on to it freely.
type State struct {
	// Version increases by one with every publish.
	Version uint64
	Status  Status

	User  *model.User
	Group *model.Group
	// Posts is every post of Group, ascending by CreatedAt.
	Posts []*model.Post
	// Members holds the loaded profiles of the roster, in join order.
	Members []*model.User
}

func emptyState() *State {
	return &State{Posts: []*model.Post{}, Members: []*model.User{}}
}

// StateChannels fans published states out to any number of readers. Each
// connection holds at most one pending State: a slow reader skips straight to
// the newest one instead of blocking the engine.
type StateChannels struct {
	// connectionMap maps connection id to its channel.
	connectionMap map[string]chan *State

	latest *State

	// Adding/Removing a connection and pushing must grab the write lock since
	// pushing also replaces latest. Reading latest grabs the read lock.
	mu sync.RWMutex
}

func NewStateChannels() *StateChannels {
	return &StateChannels{
		connectionMap: make(map[string]chan *State),
		latest:        emptyState(),
		mu:            sync.RWMutex{},
	}
}

// cleanUp a single connection when the context terminates.
func (sc *StateChannels) cleanUp(ctx context.Context, chID string) {
	<-ctx.Done()

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if ch, ok := sc.connectionMap[chID]; ok {
		delete(sc.connectionMap, chID)
		close(ch)
	}
}

// AddNewConnection returns a channel that immediately holds the latest State
// and then every newer one. The channel is closed once ctx is done.
// Thread-safe
func (sc *StateChannels) AddNewConnection(ctx context.Context) (<-chan *State, string) {
	chID := "state_channel_" + uuid.New().String()
	ch := make(chan *State, 1)

	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.connectionMap[chID] = ch
	ch <- sc.latest

	// Spin up a background garbage collector.
	go sc.cleanUp(ctx, chID)

	return ch, chID
}

// Thread-safe
func (sc *StateChannels) GetActiveConnectionsCount() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return len(sc.connectionMap)
}

// Thread-safe
func (sc *StateChannels) Latest() *State {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.latest
}

// Push records s as the latest state and hands it to every connection,
// replacing whatever the connection had not consumed yet.
// Thread-safe
func (sc *StateChannels) Push(s *State) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.latest = s
	for _, ch := range sc.connectionMap {
		select {
		case ch <- s:
			continue
		default:
		}
		// Drop the stale pending state. Only Push sends, and it holds the
		// lock, so there is room afterwards.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}
