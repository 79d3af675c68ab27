// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// setSep separates a set key from its members. Each member is its own badger
// entry tagged with the set generation it was added under.
const setSep = "\x00"

// setExpSuffix names the entry that carries an expiring set's TTL and
// current generation.
const setExpSuffix = "\x01"

// purgeBatch bounds how many members one cleanup transaction deletes.
const purgeBatch = 256

// maxTxnRetries bounds optimistic retries on badger write conflicts.
const maxTxnRetries = 8

// BadgerStore is an embedded single-node Store. Badger expires entries natively,
// which gives the same hard-TTL semantics as Redis.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a store at path. An empty path opens an
// in-memory instance.
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

func (s *BadgerStore) Close() error { return s.db.Close() }

func (s *BadgerStore) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger: closed")
	}
	return nil
}

func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %s: %w", key, err)
	}
	return out, nil
}

func (s *BadgerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.SetEntry(entry(key, value, ttl))
	})
}

func (s *BadgerStore) Delete(ctx context.Context, keys ...string) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
			if err := txn.Delete([]byte(k + setExpSuffix)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.purgeMembers(ctx, k, func([]byte) bool { return true }); err != nil {
			return err
		}
	}
	return nil
}

func (s *BadgerStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var n int64
	err := s.update(ctx, func(txn *badger.Txn) error {
		n = 0
		item, err := txn.Get([]byte(key))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if n, err = strconv.ParseInt(string(raw), 10, 64); err != nil {
				return fmt.Errorf("counter %s is not an integer: %w", key, err)
			}
			if ttl <= 0 && item.ExpiresAt() > 0 {
				// Keep the existing deadline like INCR does.
				ttl = time.Until(time.Unix(int64(item.ExpiresAt()), 0))
			}
		}
		n++
		return txn.SetEntry(entry(key, []byte(strconv.FormatInt(n, 10)), ttl))
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// AddToSet writes only the member and the set's expiry marker, so the cost of
// an add does not grow with the set. A ttl > 0 refreshes the marker; members
// tagged with an older generation are hidden once the marker has expired.
func (s *BadgerStore) AddToSet(ctx context.Context, key, member string, ttl time.Duration) error {
	var fresh bool
	var gen string
	err := s.update(ctx, func(txn *badger.Txn) error {
		var err error
		fresh = false
		gen, err = setGeneration(txn, key)
		if err != nil {
			return err
		}
		if ttl > 0 {
			if gen == "" {
				gen = strconv.FormatInt(time.Now().UnixNano(), 36)
				fresh = true
			}
			if err := txn.SetEntry(entry(key+setExpSuffix, []byte(gen), ttl)); err != nil {
				return err
			}
		}
		return txn.SetEntry(entry(key+setSep+member, []byte(gen), 0))
	})
	if err != nil || !fresh {
		return err
	}
	// Members of an expired generation are already filtered on read; a failed
	// purge only delays reclaiming them.
	_ = s.purgeMembers(ctx, key, func(v []byte) bool {
		return len(v) > 0 && string(v) != gen
	})
	return nil
}

func (s *BadgerStore) RemoveFromSet(ctx context.Context, key, member string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.Delete([]byte(key + setSep + member))
	})
}

func (s *BadgerStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	var members []string
	err := s.db.View(func(txn *badger.Txn) error {
		gen, err := setGeneration(txn, key)
		if err != nil {
			return err
		}
		return scanMembers(txn, key, func(member string, v []byte) bool {
			if len(v) == 0 || string(v) == gen {
				members = append(members, member)
			}
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("badger members %s: %w", key, err)
	}
	return members, nil
}

// purgeMembers deletes the members of key whose tag matches stale, in bounded
// batches so large sets never exceed a single transaction.
func (s *BadgerStore) purgeMembers(ctx context.Context, key string, stale func(v []byte) bool) error {
	for {
		var batch []string
		err := s.db.View(func(txn *badger.Txn) error {
			return scanMembers(txn, key, func(member string, v []byte) bool {
				if stale(v) {
					batch = append(batch, member)
				}
				return len(batch) < purgeBatch
			})
		})
		if err != nil || len(batch) == 0 {
			return err
		}
		err = s.update(ctx, func(txn *badger.Txn) error {
			for _, m := range batch {
				k := []byte(key + setSep + m)
				item, err := txn.Get(k)
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				v, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				if !stale(v) {
					continue
				}
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(batch) < purgeBatch {
			return nil
		}
	}
}

// update runs fn in a read-write transaction, retrying on optimistic conflicts.
// A transaction is discarded rather than committed once ctx is done.
func (s *BadgerStore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.commit(ctx, fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("badger: giving up after %d conflicts: %w", maxTxnRetries, err)
}

func (s *BadgerStore) commit(ctx context.Context, fn func(txn *badger.Txn) error) error {
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return txn.Commit()
}

func entry(key string, value []byte, ttl time.Duration) *badger.Entry {
	e := badger.NewEntry([]byte(key), value)
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return e
}

// setGeneration returns the live generation of an expiring set, or "" when the
// set has no expiry marker.
func setGeneration(txn *badger.Txn, key string) (string, error) {
	item, err := txn.Get([]byte(key + setExpSuffix))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	v, err := item.ValueCopy(nil)
	return string(v), err
}

// scanMembers calls fn for each member of key with its generation tag until fn
// returns false.
func scanMembers(txn *badger.Txn, key string, fn func(member string, v []byte) bool) error {
	prefix := []byte(key + setSep)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		v, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if !fn(string(item.Key()[len(prefix):]), v) {
			return nil
		}
	}
	return nil
}
