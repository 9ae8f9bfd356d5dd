package session

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"

	"github.com/Luismorlan/famfeed/engine"
	Logger "github.com/Luismorlan/famfeed/utils/log"
)

// SessionCloser signs the user out of whatever holds their credentials.
type SessionCloser interface {
	CloseSession(ctx context.Context, ev engine.SessionEnded) error
}

type SessionCloserFunc func(ctx context.Context, ev engine.SessionEnded) error

func (f SessionCloserFunc) CloseSession(ctx context.Context, ev engine.SessionEnded) error {
	return f(ctx, ev)
}

// TokenRevoker is satisfied by the Firebase auth client.
type TokenRevoker interface {
	RevokeRefreshTokens(ctx context.Context, uid string) error
}

// RevokeTokensCloser signs the user out everywhere by revoking their refresh
// tokens. An account that no longer exists has nothing left to revoke.
func RevokeTokensCloser(r TokenRevoker) SessionCloser {
	return SessionCloserFunc(func(ctx context.Context, ev engine.SessionEnded) error {
		if ev.UID == "" {
			return nil
		}
		if err := r.RevokeRefreshTokens(ctx, ev.UID); err != nil {
			return errors.Wrapf(err, "fail to revoke tokens of %s", ev.UID)
		}
		return nil
	})
}

// Terminator ends the session whenever the engine reports that the account or
// its group is gone: listeners are detached and the closer runs once per
// event.
type Terminator struct {
	Module

	Engine   SyncEngine
	Closer   SessionCloser
	EventBus *gochannel.GoChannel

	ready     chan struct{}
	readyOnce sync.Once
}

func NewTerminator(e SyncEngine, closer SessionCloser, bus *gochannel.GoChannel) *Terminator {
	return &Terminator{Engine: e, Closer: closer, EventBus: bus, ready: make(chan struct{})}
}

// Ready is closed once the terminator is subscribed to session.ended. The bus
// drops messages nobody subscribed to yet, so listeners must not start before.
func (t *Terminator) Ready() <-chan struct{} {
	return t.ready
}

func (t *Terminator) RunModule(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	messages, err := t.EventBus.Subscribe(ctx, engine.TopicSessionEnded)
	if err != nil {
		return err
	}
	t.readyOnce.Do(func() { close(t.ready) })

	for msg := range messages {
		msg.Ack()

		ev, err := engine.DecodeSessionEnded(msg)
		if err != nil {
			Logger.Log.Errorf("fail to decode session end event: %v", err)
			continue
		}
		t.Engine.Detach()
		if t.Closer != nil {
			if err := t.Closer.CloseSession(ctx, ev); err != nil {
				Logger.Log.Errorf("fail to close session of %s: %v", ev.UID, err)
				continue
			}
		}
		Logger.Log.WithField("uid", ev.UID).Infof("session closed after %s listener reported: %s", ev.Source, ev.Reason)
	}

	return nil
}

func (t *Terminator) Name() string {
	return "terminator"
}

func (t *Terminator) Shutdown() {}
