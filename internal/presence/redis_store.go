package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nfrund/hackchat/internal/domain"
)

// putScript replaces the user's entry and moves the connection index.
var putScript = redis.NewScript(`
local prev = redis.call('HGET', KEYS[1], ARGV[1])
if prev then
  local p = cjson.decode(prev)
  if p.connectionId ~= ARGV[2] then
    redis.call('HDEL', KEYS[2], p.connectionId)
  end
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
redis.call('HSET', KEYS[2], ARGV[2], ARGV[1])
return prev
`)

// removeScript deletes the entry only while ARGV[1] still owns it.
var removeScript = redis.NewScript(`
local uid = redis.call('HGET', KEYS[2], ARGV[1])
if not uid then
  return false
end
redis.call('HDEL', KEYS[2], ARGV[1])
local cur = redis.call('HGET', KEYS[1], uid)
if not cur then
  return false
end
local c = cjson.decode(cur)
if c.connectionId ~= ARGV[1] then
  return false
end
redis.call('HDEL', KEYS[1], uid)
return cur
`)

// RedisStore keeps presence in two Redis hashes so several processes can
// share one view. Both scripts run atomically on the server.
type RedisStore struct {
	client   redis.UniversalClient
	usersKey string
	connsKey string
}

// NewRedisStore creates a store whose keys are namespaced by prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{
		client:   client,
		usersKey: prefix + ":presence:users",
		connsKey: prefix + ":presence:conns",
	}
}

func (s *RedisStore) keys() []string {
	return []string{s.usersKey, s.connsKey}
}

func (s *RedisStore) Put(ctx context.Context, entry domain.PresenceEntry) (*domain.PresenceEntry, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal presence entry: %w", err)
	}
	raw, err := putScript.Run(ctx, s.client, s.keys(), entry.UserID, entry.ConnectionID, data).Text()
	return decodeEntry(raw, err)
}

func (s *RedisStore) RemoveIfCurrent(ctx context.Context, connID string) (*domain.PresenceEntry, error) {
	raw, err := removeScript.Run(ctx, s.client, s.keys(), connID).Text()
	return decodeEntry(raw, err)
}

func (s *RedisStore) Get(ctx context.Context, userID string) (*domain.PresenceEntry, error) {
	raw, err := s.client.HGet(ctx, s.usersKey, userID).Result()
	return decodeEntry(raw, err)
}

func (s *RedisStore) List(ctx context.Context) ([]domain.PresenceEntry, error) {
	vals, err := s.client.HVals(ctx, s.usersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list presence: %w", err)
	}
	out := make([]domain.PresenceEntry, 0, len(vals))
	for _, v := range vals {
		var e domain.PresenceEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, fmt.Errorf("decode presence entry: %w", err)
		}
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

func decodeEntry(raw string, err error) (*domain.PresenceEntry, error) {
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis presence: %w", err)
	}
	var e domain.PresenceEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("decode presence entry: %w", err)
	}
	return &e, nil
}
