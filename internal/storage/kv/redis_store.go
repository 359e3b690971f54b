package kv

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	redisVersionKey = "__version"
	redisConflict   = -1
)

// every key is a hash {v, data}; versions come from one INCR counter
var (
	setScript = redis.NewScript(`
local v = redis.call('INCR', KEYS[2])
redis.call('HSET', KEYS[1], 'v', v, 'data', ARGV[1])
return v`)

	casScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if not cur then cur = '0' end
if cur ~= ARGV[2] then return -1 end
local v = redis.call('INCR', KEYS[2])
redis.call('HSET', KEYS[1], 'v', v, 'data', ARGV[1])
return v`)

	cadScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if not cur or cur ~= ARGV[1] then return -1 end
redis.call('DEL', KEYS[1])
return 1`)
)

// RedisOptions connection settings for RedisStore.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	PoolSize  int
	Namespace string
}

// RedisStore state store backed by Redis, suitable when several engine
// replicas share one state.
type RedisStore struct {
	client    *redis.Client
	namespace string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis %s", opts.Addr)
	}

	return &RedisStore{client: client, namespace: opts.Namespace}, nil
}

func (s *RedisStore) key(k string) string {
	return s.namespace + k
}

func (s *RedisStore) Get(ctx context.Context, key string) (Item, error) {
	vals, err := s.client.HMGet(ctx, s.key(key), "v", "data").Result()
	if err != nil {
		return Item{}, errors.Wrapf(err, "redis get %s", key)
	}
	if len(vals) != 2 || vals[0] == nil {
		return Item{}, ErrNotFound
	}

	version, err := strconv.ParseUint(toString(vals[0]), 10, 64)
	if err != nil {
		return Item{}, errors.Wrapf(err, "parse version of %s", key)
	}

	return Item{Value: []byte(toString(vals[1])), Version: version}, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) (uint64, error) {
	v, err := setScript.Run(ctx, s.client, []string{s.key(key), s.key(redisVersionKey)}, value).Int64()
	if err != nil {
		return 0, errors.Wrapf(err, "redis set %s", key)
	}
	return uint64(v), nil
}

func (s *RedisStore) CompareAndSet(ctx context.Context, key string, value []byte, version uint64) (uint64, error) {
	keys := []string{s.key(key), s.key(redisVersionKey)}
	v, err := casScript.Run(ctx, s.client, keys, value, strconv.FormatUint(version, 10)).Int64()
	if err != nil {
		return 0, errors.Wrapf(err, "redis cas %s", key)
	}
	if v == redisConflict {
		return 0, errors.Wrapf(ErrConflict, "set %s at version %d", key, version)
	}
	return uint64(v), nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return errors.Wrapf(err, "redis delete %s", key)
	}
	return nil
}

func (s *RedisStore) CompareAndDelete(ctx context.Context, key string, version uint64) error {
	v, err := cadScript.Run(ctx, s.client, []string{s.key(key)}, strconv.FormatUint(version, 10)).Int64()
	if err != nil {
		return errors.Wrapf(err, "redis cad %s", key)
	}
	if v == redisConflict {
		return errors.Wrapf(ErrConflict, "delete %s at version %d", key, version)
	}
	return nil
}

func (s *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.key(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		k := strings.TrimPrefix(iter.Val(), s.namespace)
		if k == redisVersionKey {
			continue
		}
		keys = append(keys, k)
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrapf(err, "redis scan %s", prefix)
	}
	sort.Strings(keys)

	return keys, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}
