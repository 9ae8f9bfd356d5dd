package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDatabase serves the subset of the Realtime Database REST protocol the
// admin SDK uses: ETag reads, conditional reads, PUT and DELETE.
type fakeDatabase struct {
	mu       sync.Mutex
	values   map[string]string
	versions map[string]int
	// status forces every request on a path to fail with that code.
	status map[string]int
	// reads counts GETs per path.
	reads map[string]int
}

func newFakeDatabase() *fakeDatabase {
	return &fakeDatabase{
		values:   map[string]string{},
		versions: map[string]int{},
		status:   map[string]int{},
		reads:    map[string]int{},
	}
}

func (d *fakeDatabase) put(path, body string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[path] = body
	d.versions[path]++
}

func (d *fakeDatabase) remove(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.values, path)
	d.versions[path]++
}

func (d *fakeDatabase) fail(path string, code int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if code == 0 {
		delete(d.status, path)
		return
	}
	d.status[path] = code
}

func (d *fakeDatabase) readCount(path string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads[path]
}

func (d *fakeDatabase) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("ns") != "famfeed" {
		http.Error(w, `{"error":"unknown namespace"}`, http.StatusBadRequest)
		return
	}
	path := strings.Trim(strings.TrimSuffix(r.URL.Path, ".json"), "/")

	d.mu.Lock()
	defer d.mu.Unlock()
	if r.Method == http.MethodGet {
		d.reads[path]++
	}
	if code, ok := d.status[path]; ok {
		w.WriteHeader(code)
		fmt.Fprintf(w, `{"error":"forced %d"}`, code)
		return
	}

	switch r.Method {
	case http.MethodGet:
		etag := fmt.Sprintf("v%d", d.versions[path])
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		body, ok := d.values[path]
		if !ok {
			body = "null"
		}
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, body)
	case http.MethodPut:
		data, _ := ioutil.ReadAll(r.Body)
		d.values[path] = string(data)
		d.versions[path]++
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		delete(d.values, path)
		d.versions[path]++
		fmt.Fprint(w, "null")
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestFirebaseClient(t *testing.T) (*FirebaseClient, *fakeDatabase) {
	t.Helper()
	fake := newFakeDatabase()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	// A non-https database URL puts the SDK in emulator mode against server.
	app, err := firebase.NewApp(context.Background(), &firebase.Config{
		DatabaseURL: fmt.Sprintf("localhost:%s?ns=famfeed", u.Port()),
		ProjectID:   "famfeed-test",
	})
	require.NoError(t, err)
	database, err := app.Database(context.Background())
	require.NoError(t, err)

	client := NewFirebaseClient(database, 10*time.Millisecond)
	client.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(5 * time.Millisecond) }
	return client, fake
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no event")
	}
	return Event{}
}

func assertQuiet(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case ev, ok := <-ch:
		assert.Failf(t, "unexpected delivery", "event %+v open %v", ev, ok)
	case <-time.After(100 * time.Millisecond):
	}
}

func assertClosed(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "subscription stayed open")
	}
}

func TestFirebaseClient_OneEventPerChange(t *testing.T) {
	client, fake := newTestFirebaseClient(t)
	fake.put("groups/G1", `{"groupName":"family"}`)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := client.Subscribe(ctx, "groups/G1")
	require.NoError(t, err)

	ev := receive(t, ch)
	require.NoError(t, ev.Err)
	assert.Equal(t, "groups/G1", ev.Path)
	assert.Equal(t, map[string]interface{}{"groupName": "family"}, ev.Value)

	// Unchanged polls answer 304 and stay silent.
	reads := fake.readCount("groups/G1")
	assertQuiet(t, ch)
	assert.Greater(t, fake.readCount("groups/G1"), reads)

	fake.put("groups/G1", `{"groupName":"renamed"}`)
	ev = receive(t, ch)
	require.NoError(t, ev.Err)
	assert.Equal(t, map[string]interface{}{"groupName": "renamed"}, ev.Value)
	assertQuiet(t, ch)

	cancel()
	assertClosed(t, ch)
}

func TestFirebaseClient_DeletedNodeIsNotFoundOnce(t *testing.T) {
	client, fake := newTestFirebaseClient(t)
	fake.put("users/u1", `{"uid":"u1"}`)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := client.Subscribe(ctx, "users/u1")
	require.NoError(t, err)
	require.NoError(t, receive(t, ch).Err)

	fake.remove("users/u1")
	ev := receive(t, ch)
	assert.True(t, IsSessionFatal(ev.Err))
	assert.ErrorIs(t, ev.Err, ErrNotFound)
	assertQuiet(t, ch)

	fake.put("users/u1", `{"uid":"u1","nickname":"back"}`)
	ev = receive(t, ch)
	require.NoError(t, ev.Err)
	assert.Equal(t, "back", ev.Value.(map[string]interface{})["nickname"])
}

func TestFirebaseClient_AccessLossClosesSubscription(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			client, fake := newTestFirebaseClient(t)
			fake.put("groups/G1", `{"groupName":"family"}`)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			ch, err := client.Subscribe(ctx, "groups/G1")
			require.NoError(t, err)
			require.NoError(t, receive(t, ch).Err)

			fake.fail("groups/G1", code)
			ev := receive(t, ch)
			assert.ErrorIs(t, ev.Err, ErrPermissionDenied)
			assertClosed(t, ch)
		})
	}
}

func TestFirebaseClient_SurvivesServerErrors(t *testing.T) {
	client, fake := newTestFirebaseClient(t)
	fake.put("groups/G1", `{"groupName":"family"}`)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := client.Subscribe(ctx, "groups/G1")
	require.NoError(t, err)
	require.NoError(t, receive(t, ch).Err)

	fake.fail("groups/G1", http.StatusInternalServerError)
	reads := fake.readCount("groups/G1")
	require.Eventually(t, func() bool { return fake.readCount("groups/G1") >= reads+3 }, 2*time.Second, 5*time.Millisecond)
	// Transport failures are retried, never delivered.
	assertQuiet(t, ch)

	fake.put("groups/G1", `{"groupName":"recovered"}`)
	fake.fail("groups/G1", 0)
	ev := receive(t, ch)
	require.NoError(t, ev.Err)
	assert.Equal(t, map[string]interface{}{"groupName": "recovered"}, ev.Value)
}

func TestFirebaseClient_Writes(t *testing.T) {
	client, fake := newTestFirebaseClient(t)
	ctx := context.Background()

	require.NoError(t, client.SetValue(ctx, "groups/G1/postsByDate/2025-05-16/p1", map[string]interface{}{"postId": "p1"}))
	fake.mu.Lock()
	stored := fake.values["groups/G1/postsByDate/2025-05-16/p1"]
	fake.mu.Unlock()
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stored), &decoded))
	assert.Equal(t, "p1", decoded["postId"])

	require.NoError(t, client.DeleteValue(ctx, "groups/G1/postsByDate/2025-05-16/p1"))
	fake.mu.Lock()
	_, ok := fake.values["groups/G1/postsByDate/2025-05-16/p1"]
	fake.mu.Unlock()
	assert.False(t, ok)

	fake.fail("groups/G2", http.StatusForbidden)
	err := client.SetValue(ctx, "groups/G2", map[string]interface{}{"groupName": "x"})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.True(t, IsPermanent(err))
}
