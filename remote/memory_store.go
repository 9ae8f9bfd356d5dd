package remote

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MemoryStore is an in-process remote store with realtime-database semantics:
// a JSON tree addressed by slash separated paths, empty nodes vanish, and each
// subscriber sees the latest full value at its path. It backs tests and the
// -remote=memory mode of cmd/famfeed.
type MemoryStore struct {
	mu sync.Mutex

	root map[string]interface{}

	// subs maps subscription id to subscriber.
	subs map[string]*memorySubscriber

	// revoked paths answer every read and write with ErrPermissionDenied.
	revoked map[string]bool

	// writeFailures makes writes under a path prefix fail with the given error.
	writeFailures map[string]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		root:          map[string]interface{}{},
		subs:          map[string]*memorySubscriber{},
		revoked:       map[string]bool{},
		writeFailures: map[string]error{},
	}
}

// memorySubscriber keeps only the newest undelivered event. Snapshots are full
// values, so a slow reader skipping intermediate ones still converges while
// writers never block on it.
type memorySubscriber struct {
	path string

	mu      sync.Mutex
	pending *Event
	closing bool
	notify  chan struct{}
}

func (s *memorySubscriber) offer(ev Event, closing bool) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.pending = &ev
	s.closing = closing
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *memorySubscriber) take() (*Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := s.pending
	s.pending = nil
	return ev, s.closing
}

func (m *MemoryStore) Subscribe(ctx context.Context, path string) (<-chan Event, error) {
	path = cleanPath(path)
	if path == "" {
		return nil, errors.New("empty subscription path")
	}

	id := uuid.NewString()
	sub := &memorySubscriber{path: path, notify: make(chan struct{}, 1)}

	m.mu.Lock()
	m.subs[id] = sub
	first, closing := m.eventLocked(path)
	sub.offer(first, closing)
	m.mu.Unlock()

	out := make(chan Event, 1)
	go func() {
		defer close(out)
		defer m.unsubscribe(id)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.notify:
			}
			ev, closing := sub.take()
			if ev != nil {
				select {
				case out <- *ev:
				case <-ctx.Done():
					return
				}
			}
			if closing {
				return
			}
		}
	}()
	return out, nil
}

func (m *MemoryStore) unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, id)
}

func (m *MemoryStore) SetValue(ctx context.Context, path string, value interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path = cleanPath(path)
	if path == "" {
		return errors.New("refusing to write the root node")
	}
	normalized, err := normalize(value)
	if err != nil {
		return errors.Wrapf(err, "fail to encode value for %s", path)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeCheckLocked(path); err != nil {
		return err
	}
	m.setLocked(path, normalized)
	// Offered under mu so subscribers see writes in store order.
	m.notifyLocked(path)
	return nil
}

func (m *MemoryStore) DeleteValue(ctx context.Context, path string) error {
	return m.SetValue(ctx, path, nil)
}

// Get returns a copy of the value at path, nil when absent.
func (m *MemoryStore) Get(path string) interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, _ := normalize(lookup(m.root, splitPath(cleanPath(path))))
	return v
}

// SubscriberCount returns the number of live subscriptions on exactly path.
func (m *MemoryStore) SubscriberCount(path string) int {
	path = cleanPath(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, s := range m.subs {
		if s.path == path {
			count++
		}
	}
	return count
}

// Revoke denies access to path and everything below it. Live subscriptions
// there receive ErrPermissionDenied and are cancelled.
func (m *MemoryStore) Revoke(path string) {
	path = cleanPath(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[path] = true
	m.notifyLocked(path)
}

// FailWrites makes every write at or below path fail with err until cleared
// with a nil err.
func (m *MemoryStore) FailWrites(path string, err error) {
	path = cleanPath(path)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.writeFailures, path)
		return
	}
	m.writeFailures[path] = err
}

// notifyLocked offers the current value to every subscriber whose path is
// related to changed. offer never blocks, so it is safe under mu.
func (m *MemoryStore) notifyLocked(changed string) {
	for _, s := range m.subs {
		if !related(s.path, changed) {
			continue
		}
		ev, closing := m.eventLocked(s.path)
		s.offer(ev, closing)
	}
}

func (m *MemoryStore) eventLocked(path string) (Event, bool) {
	if m.isRevokedLocked(path) {
		return Event{Path: path, Err: errors.Wrap(ErrPermissionDenied, path)}, true
	}
	v := lookup(m.root, splitPath(path))
	if v == nil {
		return Event{Path: path, Err: errors.Wrap(ErrNotFound, path)}, false
	}
	copied, _ := normalize(v)
	return Event{Path: path, Value: copied}, false
}

func (m *MemoryStore) isRevokedLocked(path string) bool {
	for p := range m.revoked {
		if p == path || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func (m *MemoryStore) writeCheckLocked(path string) error {
	if m.isRevokedLocked(path) {
		return errors.Wrap(ErrPermissionDenied, path)
	}
	for p, err := range m.writeFailures {
		if p == path || strings.HasPrefix(path, p+"/") {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) setLocked(path string, value interface{}) {
	parts := splitPath(path)
	setIn(m.root, parts, value)
}

// setIn writes value under parts, creating intermediate nodes, and prunes
// nodes left empty, the way the realtime database never stores empty maps.
func setIn(node map[string]interface{}, parts []string, value interface{}) {
	key := parts[0]
	if len(parts) == 1 {
		if isEmpty(value) {
			delete(node, key)
		} else {
			node[key] = value
		}
		return
	}
	child, ok := node[key].(map[string]interface{})
	if !ok {
		if isEmpty(value) {
			return
		}
		child = map[string]interface{}{}
		node[key] = child
	}
	setIn(child, parts[1:], value)
	if len(child) == 0 {
		delete(node, key)
	}
}

func lookup(node interface{}, parts []string) interface{} {
	cur := node
	for _, p := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur, ok = m[p]
		if !ok {
			return nil
		}
	}
	return cur
}

func isEmpty(v interface{}) bool {
	if v == nil {
		return true
	}
	if m, ok := v.(map[string]interface{}); ok {
		return len(m) == 0
	}
	return false
}

// normalize round-trips v through JSON so stored values have exactly the
// shapes a real client decodes (float64 numbers, map[string]interface{}).
func normalize(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func related(a, b string) bool {
	return a == b || strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}

func cleanPath(p string) string {
	return strings.Trim(p, "/")
}

func splitPath(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
