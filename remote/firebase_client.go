package remote

import (
	"context"
	"time"

	"firebase.google.com/go/v4/db"
	"firebase.google.com/go/v4/errorutils"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	Logger "github.com/Luismorlan/famfeed/utils/log"
)

const (
	DefaultPollInterval = 2 * time.Second
)

// FirebaseClient talks to a Firebase Realtime Database. The admin SDK has no
// streaming listener, so Subscribe polls with ETags: an unchanged node costs a
// 304 and produces no event.
type FirebaseClient struct {
	client       *db.Client
	pollInterval time.Duration

	// newBackOff builds the reconnect policy for one subscription.
	newBackOff func() backoff.BackOff
}

func NewFirebaseClient(client *db.Client, pollInterval time.Duration) *FirebaseClient {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &FirebaseClient{
		client:       client,
		pollInterval: pollInterval,
		newBackOff:   NewReconnectBackOff,
	}
}

// NewReconnectBackOff is exponential backoff with jitter that never gives up:
// a listener keeps reconnecting until its context is cancelled.
func NewReconnectBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	return b
}

func (c *FirebaseClient) Subscribe(ctx context.Context, path string) (<-chan Event, error) {
	ref := c.client.NewRef(path)
	out := make(chan Event, 1)
	go c.poll(ctx, ref, path, out)
	return out, nil
}

func (c *FirebaseClient) poll(ctx context.Context, ref *db.Ref, path string, out chan<- Event) {
	defer close(out)

	log := Logger.Log.WithFields(logrus.Fields{"path": path})
	bo := c.newBackOff()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	etag := ""
	for {
		var (
			value   interface{}
			changed bool
			newEtag string
			err     error
		)
		if etag == "" {
			newEtag, err = ref.GetWithETag(ctx, &value)
			changed = true
		} else {
			changed, newEtag, err = ref.GetIfChanged(ctx, etag, &value)
		}

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			err = classifyError(err, path)
			if errors.Is(err, ErrPermissionDenied) {
				// The server cancels listeners on access loss; so do we.
				send(ctx, out, Event{Path: path, Err: err})
				return
			}
			wait := bo.NextBackOff()
			log.WithField("retry_in", wait).Warnf("listener poll failed: %v", err)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}
		bo.Reset()

		if changed {
			etag = newEtag
			ev := Event{Path: path, Value: value}
			if value == nil {
				ev = Event{Path: path, Err: errors.Wrap(ErrNotFound, path)}
			}
			if !send(ctx, out, ev) {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *FirebaseClient) SetValue(ctx context.Context, path string, value interface{}) error {
	if err := c.client.NewRef(path).Set(ctx, value); err != nil {
		return classifyError(err, path)
	}
	return nil
}

func (c *FirebaseClient) DeleteValue(ctx context.Context, path string) error {
	if err := c.client.NewRef(path).Delete(ctx); err != nil {
		return classifyError(err, path)
	}
	return nil
}

// classifyError maps SDK errors onto the package sentinels.
func classifyError(err error, path string) error {
	switch {
	case errorutils.IsPermissionDenied(err), errorutils.IsUnauthenticated(err):
		return errors.Wrapf(ErrPermissionDenied, "%s: %v", path, err)
	case errorutils.IsNotFound(err):
		return errors.Wrapf(ErrNotFound, "%s: %v", path, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return errors.Wrapf(ErrTransport, "%s: %v", path, err)
	}
}

func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
