package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/Luismorlan/famfeed/engine"
	"github.com/Luismorlan/famfeed/model"
	"github.com/Luismorlan/famfeed/remote"
	"github.com/Luismorlan/famfeed/session"
	Logger "github.com/Luismorlan/famfeed/utils/log"
)

const demoGroupID = "demo"

// seedDemoFamily makes uid the host of a one-member family in store, so the
// local API has a user and a group to serve without a real database.
func seedDemoFamily(ctx context.Context, store *remote.MemoryStore, uid string, now time.Time) error {
	groupID := demoGroupID
	user := &model.User{
		UID:          uid,
		Nickname:     uid,
		BirthdayDate: now.UTC(),
		Gender:       model.GenderOther,
		GroupID:      &groupID,
		RegisterDate: now.UTC(),
	}
	group := &model.Group{
		GroupID:    groupID,
		GroupName:  "demo family",
		HostUserID: uid,
		InviteCode: "DEMO",
		Members:    map[string]string{uid: model.FormatTimestamp(now)},
	}
	if err := store.SetValue(ctx, model.UserPath(uid), model.EncodeUser(user)); err != nil {
		return errors.Wrap(err, "fail to seed demo user")
	}
	if err := store.SetValue(ctx, model.GroupPath(groupID), model.EncodeGroup(group)); err != nil {
		return errors.Wrap(err, "fail to seed demo group")
	}
	return nil
}

// demoCloser has no credentials to revoke.
var demoCloser = session.SessionCloserFunc(func(ctx context.Context, ev engine.SessionEnded) error {
	Logger.Log.WithField("uid", ev.UID).Info("demo session closed")
	return nil
})
