package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Luismorlan/famfeed/cache"
	"github.com/Luismorlan/famfeed/model"
	"github.com/Luismorlan/famfeed/remote"
	Logger "github.com/Luismorlan/famfeed/utils/log"
)

func (e *Engine) onUserEvent(sub *subscription, ev remote.Event) {
	if ev.Err != nil {
		e.onListenerError(sub, SourceUser, ev.Err)
		return
	}
	user, ok := model.DecodeUser(ev.Value)
	if !ok {
		Logger.Log.WithField("uid", sub.key).Warn("ignoring undecodable user snapshot")
		emit(e.bus, TopicDecodeDropped, DecodeDropped{Source: SourceUser, Key: sub.key})
		return
	}

	e.mu.Lock()
	if !e.isLiveLocked(sub, e.userSub) {
		e.mu.Unlock()
		return
	}
	e.user = user
	ctx, cancel := e.cacheContext()
	if err := e.cache.SaveUser(ctx, user); err != nil {
		Logger.Log.Errorf("fail to cache user %s: %v", user.UID, err)
	}
	if user.HasGroup() {
		if err := e.attachLocked(*user.GroupID); err != nil {
			Logger.Log.Errorf("fail to attach group of user %s: %v", user.UID, err)
		}
	} else if e.groupSub != nil {
		// Left the group: stop observing it and forget the cached copy.
		e.detachGroupLocked()
		e.setGroupLocked(nil)
		e.status = StatusBootstrapping
		if err := e.cache.RemoveGroup(ctx); err != nil {
			Logger.Log.Errorf("fail to remove cached group: %v", err)
		}
	}
	cancel()
	e.publishLocked()
	e.mu.Unlock()

	emit(e.bus, TopicSnapshotApplied, SnapshotApplied{Source: SourceUser, Key: sub.key})
}

func (e *Engine) onGroupEvent(sub *subscription, ev remote.Event) {
	if ev.Err != nil {
		e.onListenerError(sub, SourceGroup, ev.Err)
		return
	}
	group, ok := model.DecodeGroup(ev.Value)
	if !ok {
		Logger.Log.WithField("group_id", sub.key).Warn("ignoring undecodable group snapshot")
		emit(e.bus, TopicDecodeDropped, DecodeDropped{Source: SourceGroup, Key: sub.key})
		return
	}

	e.mu.Lock()
	if !e.isLiveLocked(sub, e.groupSub) {
		e.mu.Unlock()
		return
	}
	e.setGroupLocked(group)
	ctx, cancel := e.cacheContext()
	if err := e.cache.SaveGroup(ctx, group); err != nil {
		Logger.Log.Errorf("fail to cache group %s: %v", group.GroupID, err)
	}
	cancel()
	e.reconcileMembersLocked()
	e.publishLocked()
	uid := e.uid
	applied := SnapshotApplied{
		Source:  SourceGroup,
		Key:     sub.key,
		Posts:   len(e.posts),
		Members: len(group.Members),
	}
	e.mu.Unlock()

	emit(e.bus, TopicSnapshotApplied, applied)
	e.mirrorToday(group, uid)
}

func (e *Engine) onMemberEvent(sub *subscription, ev remote.Event) {
	e.mu.Lock()
	if !e.isLiveLocked(sub, e.memberSubs[sub.key]) {
		e.mu.Unlock()
		return
	}
	if ev.Err != nil {
		if remote.IsSessionFatal(ev.Err) {
			// A vanished member only loses their profile entry; the roster is
			// owned by the group record.
			if _, ok := e.members[sub.key]; ok {
				delete(e.members, sub.key)
				e.publishLocked()
			}
		} else {
			Logger.Log.WithField("uid", sub.key).Warnf("member listener error: %v", ev.Err)
		}
		e.mu.Unlock()
		return
	}
	user, ok := model.DecodeUser(ev.Value)
	if !ok {
		e.mu.Unlock()
		Logger.Log.WithField("uid", sub.key).Warn("ignoring undecodable member snapshot")
		emit(e.bus, TopicDecodeDropped, DecodeDropped{Source: SourceMember, Key: sub.key})
		return
	}
	e.members[sub.key] = user
	e.publishLocked()
	e.mu.Unlock()

	emit(e.bus, TopicSnapshotApplied, SnapshotApplied{Source: SourceMember, Key: sub.key})
}

// reconcileMembersLocked makes the member listeners match the roster of the
// current group exactly. Running it twice for the same roster changes nothing.
func (e *Engine) reconcileMembersLocked() {
	roster := e.group.RosterSet()
	for uid, sub := range e.memberSubs {
		if _, ok := roster[uid]; ok {
			continue
		}
		sub.cancel()
		delete(e.memberSubs, uid)
		delete(e.members, uid)
	}
	for uid := range roster {
		if _, ok := e.memberSubs[uid]; ok {
			continue
		}
		sub, err := e.listenLocked(uid, model.UserPath(uid), e.onMemberEvent)
		if err != nil {
			Logger.Log.Errorf("fail to listen to member %s: %v", uid, err)
			continue
		}
		e.memberSubs[uid] = sub
	}
}

func (e *Engine) onListenerError(sub *subscription, source string, err error) {
	if !remote.IsSessionFatal(err) {
		Logger.Log.WithFields(logrus.Fields{
			"source": source,
			"key":    sub.key,
		}).Warnf("listener error: %v", err)
		return
	}
	e.endSession(sub, source, err)
}

// endSession handles the account or the group disappearing: readers see no
// user, nothing survives in the cache, and one SessionEnded event goes out.
func (e *Engine) endSession(sub *subscription, source string, reason error) {
	e.mu.Lock()
	if !e.isLiveLocked(sub, e.userSub) && !e.isLiveLocked(sub, e.groupSub) {
		e.mu.Unlock()
		return
	}
	uid := e.uid
	e.teardownLocked()
	e.clearLocked()
	ctx, cancel := e.cacheContext()
	if err := cache.Purge(ctx, e.cache); err != nil {
		Logger.Log.Errorf("fail to purge cache: %v", err)
	}
	cancel()
	e.status = StatusSuspended
	e.publishLocked()
	e.mu.Unlock()

	Logger.Log.WithFields(logrus.Fields{
		"uid":    uid,
		"source": source,
	}).Warnf("session ended: %v", reason)
	emit(e.bus, TopicSessionEnded, SessionEnded{
		UID:    uid,
		Source: source,
		Reason: reason.Error(),
		At:     e.now().UTC(),
	})
}

// mirrorToday copies the newest image the signed-in user posted today for the
// widget. Runs in the background and never affects the published state.
func (e *Engine) mirrorToday(group *model.Group, uid string) {
	if e.mirror == nil || uid == "" {
		return
	}
	today := model.DateKeyOf(e.now())
	posts := model.PostsOn(group, today, uid)
	if len(posts) == 0 {
		return
	}
	newest := posts[len(posts)-1]
	go func() {
		ctx, cancel := context.WithTimeout(e.baseCtx, mirrorTimeout)
		defer cancel()
		if err := e.mirror.SaveFromURL(ctx, today, newest.PostID, newest.ImageURL); err != nil {
			Logger.Log.WithField("post_id", newest.PostID).Errorf("fail to mirror today's image: %v", err)
			emit(e.bus, TopicMirrorFailed, MirrorFailed{
				Day:    today.String(),
				PostID: newest.PostID,
				Error:  err.Error(),
			})
		}
	}()
}
