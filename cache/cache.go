package cache

import (
	"context"

	"github.com/pkg/errors"

	"github.com/Luismorlan/famfeed/model"
)

const (
	userSlot  = "current_user"
	groupSlot = "current_group"
)

// Store is the warm-start cache: one slot for the signed-in user and one for
// their group. Slots are last-write-wins and never expire by themselves. The
// two slots are not kept consistent with each other; the cache is only a hint
// until the first remote snapshot arrives.
//
// Load* returns (nil, nil) for an empty or unreadable slot.
type Store interface {
	SaveUser(ctx context.Context, u *model.User) error
	LoadUser(ctx context.Context) (*model.User, error)
	RemoveUser(ctx context.Context) error

	SaveGroup(ctx context.Context, g *model.Group) error
	LoadGroup(ctx context.Context) (*model.Group, error)
	RemoveGroup(ctx context.Context) error
}

// Purge empties both slots. The group slot is cleared even if clearing the
// user slot failed.
func Purge(ctx context.Context, s Store) error {
	userErr := s.RemoveUser(ctx)
	groupErr := s.RemoveGroup(ctx)
	if userErr != nil {
		return errors.Wrap(userErr, "fail to remove user slot")
	}
	if groupErr != nil {
		return errors.Wrap(groupErr, "fail to remove group slot")
	}
	return nil
}
