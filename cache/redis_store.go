package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Luismorlan/famfeed/model"
	Logger "github.com/Luismorlan/famfeed/utils/log"
)

// RedisKeyParser joins a namespace and a slot name. Neither may contain the
// delimiter, so distinct pairs never collide on one key.
type RedisKeyParser struct {
	delimiter string
}

func (r RedisKeyParser) ValidateId(id string) bool {
	return id != "" && !strings.Contains(id, r.delimiter)
}

func (r RedisKeyParser) EncodeSlotKey(namespace, slot string) (string, error) {
	if !r.ValidateId(namespace) || !r.ValidateId(slot) {
		return "", fmt.Errorf("invalid namespace or slot: %q, %q", namespace, slot)
	}
	return fmt.Sprintf("%s%s%s", namespace, r.delimiter, slot), nil
}

// RedisStore keeps the two slots as plain keys without TTL under namespace.
type RedisStore struct {
	inner    *redis.Client
	userKey  string
	groupKey string
}

func NewRedisStore(client *redis.Client, namespace string) (*RedisStore, error) {
	parser := RedisKeyParser{delimiter: "__"}
	userKey, err := parser.EncodeSlotKey(namespace, userSlot)
	if err != nil {
		return nil, err
	}
	groupKey, err := parser.EncodeSlotKey(namespace, groupSlot)
	if err != nil {
		return nil, err
	}
	return &RedisStore{inner: client, userKey: userKey, groupKey: groupKey}, nil
}

func (r *RedisStore) SaveUser(ctx context.Context, u *model.User) error {
	data, err := model.MarshalUser(u)
	if err != nil {
		return errors.Wrap(err, "fail to encode user")
	}
	return errors.Wrap(r.inner.Set(ctx, r.userKey, data, 0).Err(), "fail to save user slot")
}

func (r *RedisStore) LoadUser(ctx context.Context) (*model.User, error) {
	data, err := r.get(ctx, r.userKey)
	if err != nil || data == nil {
		return nil, err
	}
	u, ok := model.UnmarshalUser(data)
	if !ok {
		Logger.Log.WithFields(logrus.Fields{"key": r.userKey}).Warn("discarding undecodable cache slot")
		return nil, nil
	}
	return u, nil
}

func (r *RedisStore) RemoveUser(ctx context.Context) error {
	return errors.Wrap(r.inner.Del(ctx, r.userKey).Err(), "fail to remove user slot")
}

func (r *RedisStore) SaveGroup(ctx context.Context, g *model.Group) error {
	data, err := model.MarshalGroup(g)
	if err != nil {
		return errors.Wrap(err, "fail to encode group")
	}
	return errors.Wrap(r.inner.Set(ctx, r.groupKey, data, 0).Err(), "fail to save group slot")
}

func (r *RedisStore) LoadGroup(ctx context.Context) (*model.Group, error) {
	data, err := r.get(ctx, r.groupKey)
	if err != nil || data == nil {
		return nil, err
	}
	g, ok := model.UnmarshalGroup(data)
	if !ok {
		Logger.Log.WithFields(logrus.Fields{"key": r.groupKey}).Warn("discarding undecodable cache slot")
		return nil, nil
	}
	return g, nil
}

func (r *RedisStore) RemoveGroup(ctx context.Context) error {
	return errors.Wrap(r.inner.Del(ctx, r.groupKey).Err(), "fail to remove group slot")
}

func (r *RedisStore) get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.inner.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "fail to read %s", key)
	}
	return data, nil
}
