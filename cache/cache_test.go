package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Luismorlan/famfeed/model"
)

func testUser(nickname string) *model.User {
	gid := "G1"
	return &model.User{
		UID:          "u1",
		Nickname:     nickname,
		BirthdayDate: time.Date(1990, 1, 2, 0, 0, 0, 0, time.UTC),
		Gender:       model.GenderMale,
		GroupID:      &gid,
		RegisterDate: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}

func testGroup() *model.Group {
	t0 := time.Date(2025, 5, 16, 1, 0, 0, 0, time.UTC)
	return &model.Group{
		GroupID:    "G1",
		GroupName:  "family",
		HostUserID: "u1",
		InviteCode: "ABCD",
		Members:    map[string]string{"u1": "2025-05-01T00:00:00Z"},
		PostsByDate: map[model.DateKey]map[string]*model.Post{
			model.DateKeyOf(t0): {"p1": {
				PostID: "p1", UserID: "u1", Nickname: "dad",
				ImageURL: "https://img/p1.jpg", CreatedAt: t0,
				Comments: map[string]*model.Comment{},
			}},
		},
	}
}

// exerciseStore runs the slot contract against any backend.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	u, err := s.LoadUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, u)

	require.NoError(t, s.SaveUser(ctx, testUser("first")))
	require.NoError(t, s.SaveUser(ctx, testUser("second")))
	u, err = s.LoadUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "second", u.Nickname)

	require.NoError(t, s.SaveGroup(ctx, testGroup()))
	g, err := s.LoadGroup(ctx)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "G1", g.GroupID)
	assert.Len(t, model.FlattenPosts(g), 1)

	require.NoError(t, s.RemoveUser(ctx))
	u, err = s.LoadUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, u)

	// Removing twice is fine.
	require.NoError(t, s.RemoveUser(ctx))

	require.NoError(t, s.SaveUser(ctx, testUser("third")))
	require.NoError(t, Purge(ctx, s))
	u, _ = s.LoadUser(ctx)
	g, _ = s.LoadGroup(ctx)
	assert.Nil(t, u)
	assert.Nil(t, g)
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestFileStore_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.SaveGroup(ctx, testGroup()))

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	g, err := reopened.LoadGroup(ctx)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "family", g.GroupName)
}

func TestFileStore_CorruptSlotReadsAsEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, groupSlot+slotFileExt), []byte("{oops"), 0o600))
	g, err := s.LoadGroup(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, g)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s, err := NewRedisStore(client, "famfeed")
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestRedisStore_NoExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s, err := NewRedisStore(client, "famfeed")
	require.NoError(t, err)
	require.NoError(t, s.SaveUser(context.Background(), testUser("dad")))
	mr.FastForward(365 * 24 * time.Hour)

	u, err := s.LoadUser(context.Background())
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, time.Duration(0), mr.TTL("famfeed__current_user"))
}

func TestRedisKeyParser(t *testing.T) {
	p := RedisKeyParser{delimiter: "__"}
	key, err := p.EncodeSlotKey("ns", "current_user")
	require.NoError(t, err)
	assert.Equal(t, "ns__current_user", key)

	// Ids holding the delimiter could alias another namespace's slot.
	_, err = p.EncodeSlotKey("bad__ns", "x")
	assert.Error(t, err)
	_, err = p.EncodeSlotKey("ns", "")
	assert.Error(t, err)
	_, err = NewRedisStore(nil, "bad__ns")
	assert.Error(t, err)
	_, err = NewRedisStore(nil, "")
	assert.Error(t, err)
}
