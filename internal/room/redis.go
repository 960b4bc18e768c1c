package room

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key the Redis store writes.
const DefaultRedisPrefix = "chat:"

// RedisStore keeps rooms in Redis so several server nodes share them.
//
// Key layout, under the prefix:
//
//	room:<id>           JSON encoded Room
//	room:members:<id>   set of user ids
//	user:rooms:<user>   set of room ids
//	rooms:all           set of every room id
//
// Every mutation checks the room under WATCH and writes in one MULTI/EXEC
// transaction, so a concurrent change from another node aborts the EXEC and
// the mutation is retried against the new state.
type RedisStore struct {
	client redis.UniversalClient
	prefix string

	// beforeExec runs between the checks and EXEC; tests use it to
	// interleave a competing mutation.
	beforeExec func(op string)
}

// maxTxAttempts bounds optimistic retries of one mutation.
const maxTxAttempts = 16

// NewRedisStore wraps client. An empty prefix means DefaultRedisPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) roomKey(id string) string      { return s.prefix + "room:" + id }
func (s *RedisStore) membersKey(id string) string   { return s.prefix + "room:members:" + id }
func (s *RedisStore) userRoomsKey(id string) string { return s.prefix + "user:rooms:" + id }
func (s *RedisStore) allRoomsKey() string           { return s.prefix + "rooms:all" }

func (s *RedisStore) CreateRoom(ctx context.Context, r Room) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	key := s.roomKey(r.ID)
	err = s.watch(ctx, "create", func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("check room: %w", err)
		}
		if n > 0 {
			return ErrRoomExists
		}
		s.hook("create")
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, s.allRoomsKey(), r.ID)
			return nil
		})
		return err
	}, key)
	if err != nil && !errors.Is(err, ErrRoomExists) {
		return fmt.Errorf("create room: %w", err)
	}
	return err
}

func (s *RedisStore) GetRoom(ctx context.Context, id string) (Room, error) {
	data, err := s.client.Get(ctx, s.roomKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Room{}, ErrRoomNotFound
	}
	if err != nil {
		return Room{}, fmt.Errorf("get room: %w", err)
	}
	var r Room
	if err := json.Unmarshal(data, &r); err != nil {
		return Room{}, fmt.Errorf("unmarshal room: %w", err)
	}
	return r, nil
}

func (s *RedisStore) ListRooms(ctx context.Context) ([]Room, error) {
	ids, err := s.client.SMembers(ctx, s.allRoomsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	if len(ids) == 0 {
		return []Room{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.roomKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load rooms: %w", err)
	}
	out := make([]Room, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var r Room
		if err := json.Unmarshal([]byte(str), &r); err != nil {
			return nil, fmt.Errorf("unmarshal room: %w", err)
		}
		out = append(out, r)
	}
	sortRooms(out)
	return out, nil
}

func (s *RedisStore) DeleteRoom(ctx context.Context, id string) error {
	err := s.watch(ctx, "delete", func(tx *redis.Tx) error {
		if err := mustExist(ctx, tx, s.roomKey(id)); err != nil {
			return err
		}
		members, err := tx.SMembers(ctx, s.membersKey(id)).Result()
		if err != nil {
			return fmt.Errorf("load members: %w", err)
		}
		s.hook("delete")
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.roomKey(id), s.membersKey(id))
			pipe.SRem(ctx, s.allRoomsKey(), id)
			for _, userID := range members {
				pipe.SRem(ctx, s.userRoomsKey(userID), id)
			}
			return nil
		})
		return err
	}, s.roomKey(id), s.membersKey(id))
	if err != nil && !errors.Is(err, ErrRoomNotFound) {
		return fmt.Errorf("delete room: %w", err)
	}
	return err
}

func (s *RedisStore) AddMember(ctx context.Context, roomID, userID string) (bool, error) {
	return s.setMember(ctx, "add", roomID, userID, true)
}

func (s *RedisStore) RemoveMember(ctx context.Context, roomID, userID string) (bool, error) {
	return s.setMember(ctx, "remove", roomID, userID, false)
}

// setMember updates both indices for one membership. Watching the room and
// member keys makes the EXEC fail if the room is deleted or its members
// change after the existence check.
func (s *RedisStore) setMember(ctx context.Context, op, roomID, userID string, join bool) (bool, error) {
	var changed *redis.IntCmd
	err := s.watch(ctx, op, func(tx *redis.Tx) error {
		if err := mustExist(ctx, tx, s.roomKey(roomID)); err != nil {
			return err
		}
		s.hook(op)
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if join {
				changed = pipe.SAdd(ctx, s.membersKey(roomID), userID)
				pipe.SAdd(ctx, s.userRoomsKey(userID), roomID)
			} else {
				changed = pipe.SRem(ctx, s.membersKey(roomID), userID)
				pipe.SRem(ctx, s.userRoomsKey(userID), roomID)
			}
			return nil
		})
		return err
	}, s.roomKey(roomID), s.membersKey(roomID))
	if errors.Is(err, ErrRoomNotFound) {
		return false, err
	}
	if err != nil {
		return false, fmt.Errorf("%s member: %w", op, err)
	}
	return changed.Val() > 0, nil
}

func (s *RedisStore) Members(ctx context.Context, roomID string) ([]string, error) {
	if err := mustExist(ctx, s.client, s.roomKey(roomID)); err != nil {
		return nil, err
	}
	return s.sortedSet(ctx, s.membersKey(roomID))
}

func (s *RedisStore) RoomsOf(ctx context.Context, userID string) ([]string, error) {
	return s.sortedSet(ctx, s.userRoomsKey(userID))
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// watch runs fn under WATCH on keys, retrying while another client wins
// the race to EXEC.
func (s *RedisStore) watch(ctx context.Context, op string, fn func(*redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("%s: %w after %d attempts", op, redis.TxFailedErr, maxTxAttempts)
}

func (s *RedisStore) hook(op string) {
	if s.beforeExec != nil {
		s.beforeExec(op)
	}
}

type existsChecker interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

func mustExist(ctx context.Context, c existsChecker, key string) error {
	n, err := c.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("check room: %w", err)
	}
	if n == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (s *RedisStore) sortedSet(ctx context.Context, key string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", key, err)
	}
	sort.Strings(ids)
	return ids, nil
}
