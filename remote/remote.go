package remote

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound means the record does not exist (any more) at the path.
	ErrNotFound = errors.New("remote record not found")
	// ErrPermissionDenied means the caller lost access to the path.
	ErrPermissionDenied = errors.New("remote access denied")
	// ErrTransport wraps network level failures that are worth retrying.
	ErrTransport = errors.New("remote transport failure")
)

// Event is a single delivery on a subscription: either the full current value
// at the path or an error. Value is the JSON-decoded tree (maps, strings,
// float64, bool).
type Event struct {
	Path  string
	Value interface{}
	Err   error
}

// Client is the remote store collaborator consumed by the engine and the
// gateway. Every call is independently fallible.
type Client interface {
	// Subscribe streams snapshots of path. The first event carries the current
	// value. The channel is closed once ctx is done or the subscription is
	// cancelled by the server (after delivering the error that caused it).
	Subscribe(ctx context.Context, path string) (<-chan Event, error)

	SetValue(ctx context.Context, path string, value interface{}) error

	DeleteValue(ctx context.Context, path string) error
}

// IsSessionFatal reports whether err means the account or group is gone for
// the signed-in user, as opposed to a failure that can be retried.
func IsSessionFatal(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrPermissionDenied)
}

// IsPermanent reports whether retrying a write that failed with err is
// pointless.
func IsPermanent(err error) bool {
	return IsSessionFatal(err) || errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
