package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key prefixes for BadgerDB storage. Ids are joined with a NUL byte so a
// prefix scan for one room never matches another room whose id shares a
// prefix.
const (
	badgerRoomPrefix     = "room:"
	badgerMemberPrefix   = "member:"
	badgerUserRoomPrefix = "userroom:"
	badgerSep            = "\x00"

	badgerMaxRetries = 3
)

// BadgerStore keeps rooms in an embedded BadgerDB. Every mutation runs in a
// single transaction covering both membership indices.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens the database at path. An empty path opens an
// in-memory database.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func badgerRoomKey(id string) []byte {
	return []byte(badgerRoomPrefix + id)
}

func badgerMemberKey(roomID, userID string) []byte {
	return []byte(badgerMemberPrefix + roomID + badgerSep + userID)
}

func badgerUserRoomKey(userID, roomID string) []byte {
	return []byte(badgerUserRoomPrefix + userID + badgerSep + roomID)
}

// update retries fn when a concurrent transaction conflicts with it.
func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < badgerMaxRetries; i++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func requireRoom(txn *badger.Txn, id string) error {
	ok, err := exists(txn, badgerRoomKey(id))
	if err != nil {
		return fmt.Errorf("get room: %w", err)
	}
	if !ok {
		return ErrRoomNotFound
	}
	return nil
}

// suffixes returns what follows prefix in every key starting with it.
func suffixes(txn *badger.Txn, prefix []byte) []string {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	out := []string{}
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		out = append(out, string(it.Item().Key()[len(prefix):]))
	}
	return out
}

func (s *BadgerStore) CreateRoom(_ context.Context, r Room) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	return s.update(func(txn *badger.Txn) error {
		ok, err := exists(txn, badgerRoomKey(r.ID))
		if err != nil {
			return fmt.Errorf("get room: %w", err)
		}
		if ok {
			return ErrRoomExists
		}
		return txn.Set(badgerRoomKey(r.ID), data)
	})
}

func (s *BadgerStore) GetRoom(_ context.Context, id string) (Room, error) {
	var r Room
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerRoomKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrRoomNotFound
		}
		if err != nil {
			return fmt.Errorf("get room: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		})
	})
	if err != nil {
		return Room{}, err
	}
	return r, nil
}

func (s *BadgerStore) ListRooms(_ context.Context) ([]Room, error) {
	out := []Room{}
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(badgerRoomPrefix)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r Room
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return fmt.Errorf("unmarshal room: %w", err)
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortRooms(out)
	return out, nil
}

func (s *BadgerStore) DeleteRoom(_ context.Context, id string) error {
	return s.update(func(txn *badger.Txn) error {
		if err := requireRoom(txn, id); err != nil {
			return err
		}
		members := suffixes(txn, []byte(badgerMemberPrefix+id+badgerSep))
		for _, userID := range members {
			if err := txn.Delete(badgerMemberKey(id, userID)); err != nil {
				return fmt.Errorf("delete member: %w", err)
			}
			if err := txn.Delete(badgerUserRoomKey(userID, id)); err != nil {
				return fmt.Errorf("delete user mapping: %w", err)
			}
		}
		return txn.Delete(badgerRoomKey(id))
	})
}

func (s *BadgerStore) AddMember(_ context.Context, roomID, userID string) (bool, error) {
	var added bool
	err := s.update(func(txn *badger.Txn) error {
		added = false
		if err := requireRoom(txn, roomID); err != nil {
			return err
		}
		ok, err := exists(txn, badgerMemberKey(roomID, userID))
		if err != nil {
			return fmt.Errorf("get member: %w", err)
		}
		if ok {
			return nil
		}
		if err := txn.Set(badgerMemberKey(roomID, userID), nil); err != nil {
			return fmt.Errorf("set member: %w", err)
		}
		if err := txn.Set(badgerUserRoomKey(userID, roomID), nil); err != nil {
			return fmt.Errorf("set user mapping: %w", err)
		}
		added = true
		return nil
	})
	return added, err
}

func (s *BadgerStore) RemoveMember(_ context.Context, roomID, userID string) (bool, error) {
	var removed bool
	err := s.update(func(txn *badger.Txn) error {
		removed = false
		if err := requireRoom(txn, roomID); err != nil {
			return err
		}
		ok, err := exists(txn, badgerMemberKey(roomID, userID))
		if err != nil {
			return fmt.Errorf("get member: %w", err)
		}
		if !ok {
			return nil
		}
		if err := txn.Delete(badgerMemberKey(roomID, userID)); err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
		if err := txn.Delete(badgerUserRoomKey(userID, roomID)); err != nil {
			return fmt.Errorf("delete user mapping: %w", err)
		}
		removed = true
		return nil
	})
	return removed, err
}

func (s *BadgerStore) Members(_ context.Context, roomID string) ([]string, error) {
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		if err := requireRoom(txn, roomID); err != nil {
			return err
		}
		out = suffixes(txn, []byte(badgerMemberPrefix+roomID+badgerSep))
		return nil
	})
	return out, err
}

func (s *BadgerStore) RoomsOf(_ context.Context, userID string) ([]string, error) {
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		out = suffixes(txn, []byte(badgerUserRoomPrefix+userID+badgerSep))
		return nil
	})
	return out, err
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
