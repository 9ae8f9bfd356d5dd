package engine

import (
	"context"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Luismorlan/famfeed/cache"
	"github.com/Luismorlan/famfeed/model"
	"github.com/Luismorlan/famfeed/remote"
	Logger "github.com/Luismorlan/famfeed/utils/log"
)

const (
	cacheTimeout  = 5 * time.Second
	mirrorTimeout = 60 * time.Second
)

// Mirror copies the image of a post somewhere the home-screen widget can read
// it. Satisfied by *mirror.LocalMirror.
type Mirror interface {
	SaveFromURL(ctx context.Context, day model.DateKey, postID, url string) error
}

type Config struct {
	Remote remote.Client
	Cache  cache.Store
	// Optional.
	Mirror Mirror
	// Optional. Receives the events listed in topics.go.
	Bus message.Publisher
	// Defaults to time.Now.
	Now func() time.Time
}

// subscription is one live remote listener. A callback only touches engine
// state while its subscription is still the one installed for its key and
// was opened in the current epoch.
type subscription struct {
	key    string
	token  uint64
	epoch  uint64
	cancel context.CancelFunc
}

// Engine keeps the signed-in user, their group and the group's members in
// sync with the remote store and publishes every change as an immutable State.
//
// All state below mu is written by one goroutine at a time: listener
// callbacks, Attach, Start and Detach all serialize on mu, and a State is
// published before mu is released.
type Engine struct {
	remote remote.Client
	cache  cache.Store
	mirror Mirror
	bus    message.Publisher
	now    func() time.Time
	states *StateChannels

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu         sync.Mutex
	status     Status
	uid        string
	user       *model.User
	group      *model.Group
	posts      []*model.Post
	members    map[string]*model.User
	userSub    *subscription
	groupSub   *subscription
	memberSubs map[string]*subscription
	epoch      uint64
	nextToken  uint64
	version    uint64
}

func New(cfg Config) (*Engine, error) {
	if cfg.Remote == nil {
		return nil, errors.New("engine requires a remote client")
	}
	if cfg.Cache == nil {
		return nil, errors.New("engine requires a cache store")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		remote:     cfg.Remote,
		cache:      cfg.Cache,
		mirror:     cfg.Mirror,
		bus:        cfg.Bus,
		now:        now,
		states:     NewStateChannels(),
		baseCtx:    ctx,
		baseCancel: cancel,
		status:     StatusDetached,
		posts:      []*model.Post{},
		members:    make(map[string]*model.User),
		memberSubs: make(map[string]*subscription),
	}, nil
}

// Current returns the latest published State. Never nil.
func (e *Engine) Current() *State {
	return e.states.Latest()
}

func (e *Engine) StateChannels() *StateChannels {
	return e.states
}

// Bootstrap publishes whatever the cache holds so readers have something to
// show before the first remote snapshot. It only acts on a detached engine.
func (e *Engine) Bootstrap(ctx context.Context) error {
	user, err := e.cache.LoadUser(ctx)
	if err != nil {
		Logger.Log.Warnf("fail to load cached user, starting cold: %v", err)
	}
	group, err := e.cache.LoadGroup(ctx)
	if err != nil {
		Logger.Log.Warnf("fail to load cached group, starting cold: %v", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusDetached {
		return errors.Errorf("bootstrap on engine in status %s", e.status)
	}
	e.user = user
	e.setGroupLocked(group)
	e.status = StatusBootstrapping
	e.publishLocked()
	Logger.Log.WithFields(logrus.Fields{
		"cached_user":  user != nil,
		"cached_group": group != nil,
	}).Info("engine bootstrapped from cache")
	return nil
}

// Start attaches the signed-in user listener. Calling it again for the same
// uid is a no-op; a different uid replaces the previous session.
func (e *Engine) Start(uid string) error {
	if uid == "" {
		return errors.New("start requires a uid")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.userSub != nil && e.uid == uid {
		return nil
	}
	if e.userSub != nil || (e.user != nil && e.user.UID != uid) {
		// Previous account, nothing of it may leak into this session.
		e.teardownLocked()
		e.clearLocked()
	}
	e.uid = uid
	if e.status == StatusDetached || e.status == StatusSuspended {
		e.status = StatusBootstrapping
	}

	sub, err := e.listenLocked(uid, model.UserPath(uid), e.onUserEvent)
	if err != nil {
		return errors.Wrapf(err, "fail to listen to user %s", uid)
	}
	e.userSub = sub

	// The cached profile already names the group, no need to wait for the
	// first user snapshot.
	if e.user != nil && e.user.HasGroup() {
		if err := e.attachLocked(*e.user.GroupID); err != nil {
			return err
		}
	}
	e.publishLocked()
	return nil
}

// Attach makes groupID the one observed group. Attaching the group that is
// already attached is a no-op.
func (e *Engine) Attach(groupID string) error {
	if groupID == "" {
		return errors.New("attach requires a group id")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.attachLocked(groupID); err != nil {
		return err
	}
	e.publishLocked()
	return nil
}

// Detach cancels every listener and publishes the empty state. Safe to call
// from any goroutine, any number of times.
func (e *Engine) Detach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardownLocked()
	e.clearLocked()
	e.uid = ""
	e.status = StatusDetached
	e.publishLocked()
}

// Close detaches and releases every background goroutine.
func (e *Engine) Close() {
	e.Detach()
	e.baseCancel()
}

// AttachedGroup returns the id of the group whose listener is live.
func (e *Engine) AttachedGroup() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.groupSub == nil {
		return "", false
	}
	return e.groupSub.key, true
}

// MemberSubscriptions returns the uids with a live member listener.
func (e *Engine) MemberSubscriptions() map[string]struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	uids := make(map[string]struct{}, len(e.memberSubs))
	for uid := range e.memberSubs {
		uids[uid] = struct{}{}
	}
	return uids
}

func (e *Engine) attachLocked(groupID string) error {
	if e.groupSub != nil && e.groupSub.key == groupID {
		return nil
	}
	e.detachGroupLocked()
	if e.group != nil && e.group.GroupID != groupID {
		e.setGroupLocked(nil)
	}
	sub, err := e.listenLocked(groupID, model.GroupPath(groupID), e.onGroupEvent)
	if err != nil {
		return errors.Wrapf(err, "fail to listen to group %s", groupID)
	}
	e.groupSub = sub
	e.status = StatusGroupAttached
	Logger.Log.WithField("group_id", groupID).Info("group attached")
	return nil
}

// listenLocked opens a subscription on path and dispatches its events to
// handle on a dedicated goroutine, so events of one source stay in order.
func (e *Engine) listenLocked(key, path string, handle func(*subscription, remote.Event)) (*subscription, error) {
	ctx, cancel := context.WithCancel(e.baseCtx)
	ch, err := e.remote.Subscribe(ctx, path)
	if err != nil {
		cancel()
		return nil, err
	}
	e.nextToken++
	sub := &subscription{key: key, token: e.nextToken, epoch: e.epoch, cancel: cancel}
	go func() {
		for ev := range ch {
			handle(sub, ev)
		}
	}()
	return sub, nil
}

func (e *Engine) isLiveLocked(sub, installed *subscription) bool {
	return installed != nil && sub.token == installed.token && sub.epoch == e.epoch
}

func (e *Engine) detachGroupLocked() {
	if e.groupSub != nil {
		e.groupSub.cancel()
		e.groupSub = nil
	}
	for uid, sub := range e.memberSubs {
		sub.cancel()
		delete(e.memberSubs, uid)
	}
	e.members = make(map[string]*model.User)
}

// teardownLocked cancels every listener and moves to a new epoch so anything
// they still deliver is ignored.
func (e *Engine) teardownLocked() {
	if e.userSub != nil {
		e.userSub.cancel()
		e.userSub = nil
	}
	e.detachGroupLocked()
	e.epoch++
}

func (e *Engine) clearLocked() {
	e.user = nil
	e.setGroupLocked(nil)
	e.members = make(map[string]*model.User)
}

func (e *Engine) setGroupLocked(g *model.Group) {
	e.group = g
	e.posts = model.FlattenPosts(g)
}

func (e *Engine) publishLocked() {
	e.version++
	members := []*model.User{}
	for _, uid := range e.group.Roster() {
		if u, ok := e.members[uid]; ok {
			members = append(members, u)
		}
	}
	e.states.Push(&State{
		Version: e.version,
		Status:  e.status,
		User:    e.user,
		Group:   e.group,
		Posts:   e.posts,
		Members: members,
	})
}

func (e *Engine) cacheContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cacheTimeout)
}
