package typing

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Store holds the set of typing users per room.
type Store interface {
	// Add inserts userID and reports whether it was absent.
	Add(ctx context.Context, roomID, userID string) (bool, error)
	// Remove deletes userID and reports whether it was present.
	Remove(ctx context.Context, roomID, userID string) (bool, error)
	List(ctx context.Context, roomID string) ([]string, error)
}

// MemoryStore is the single-process Store.
type MemoryStore struct {
	mu    sync.Mutex
	rooms map[string]map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]map[string]struct{})}
}

func (s *MemoryStore) Add(_ context.Context, roomID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, ok := s.rooms[roomID]
	if !ok {
		users = make(map[string]struct{})
		s.rooms[roomID] = users
	}
	if _, exists := users[userID]; exists {
		return false, nil
	}
	users[userID] = struct{}{}
	return true, nil
}

func (s *MemoryStore) Remove(_ context.Context, roomID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, ok := s.rooms[roomID]
	if !ok {
		return false, nil
	}
	if _, exists := users[userID]; !exists {
		return false, nil
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(s.rooms, roomID)
	}
	return true, nil
}

func (s *MemoryStore) List(_ context.Context, roomID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.rooms[roomID]))
	for u := range s.rooms[roomID] {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

// RedisStore keeps one Redis set per room.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(roomID string) string {
	return s.prefix + ":typing:" + roomID
}

func (s *RedisStore) Add(ctx context.Context, roomID, userID string) (bool, error) {
	n, err := s.client.SAdd(ctx, s.key(roomID), userID).Result()
	if err != nil {
		return false, fmt.Errorf("redis typing add: %w", err)
	}
	return n == 1, nil
}

func (s *RedisStore) Remove(ctx context.Context, roomID, userID string) (bool, error) {
	n, err := s.client.SRem(ctx, s.key(roomID), userID).Result()
	if err != nil {
		return false, fmt.Errorf("redis typing remove: %w", err)
	}
	return n == 1, nil
}

func (s *RedisStore) List(ctx context.Context, roomID string) ([]string, error) {
	users, err := s.client.SMembers(ctx, s.key(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis typing list: %w", err)
	}
	sort.Strings(users)
	return users, nil
}
