package session

import (
	"context"

	"github.com/pkg/errors"
)

// SyncEngine is the part of *engine.Engine the session drives.
type SyncEngine interface {
	Bootstrap(ctx context.Context) error
	Start(uid string) error
	Detach()
}

// Bootstrapper brings a session up: cached state is published first so the
// UI is never empty, then the remote listeners take over.
type Bootstrapper struct {
	Engine SyncEngine

	// Listeners start only after every channel here is closed, e.g.
	// Terminator.Ready.
	WaitFor []<-chan struct{}
}

func NewBootstrapper(e SyncEngine, waitFor ...<-chan struct{}) *Bootstrapper {
	return &Bootstrapper{Engine: e, WaitFor: waitFor}
}

func (b *Bootstrapper) Start(ctx context.Context, uid string) error {
	if err := b.Engine.Bootstrap(ctx); err != nil {
		return errors.Wrap(err, "fail to bootstrap from cache")
	}
	for _, ready := range b.WaitFor {
		select {
		case <-ready:
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "session modules never became ready")
		}
	}
	if err := b.Engine.Start(uid); err != nil {
		return errors.Wrapf(err, "fail to start session for %s", uid)
	}
	return nil
}
