package store

import (
	"context"
	"fmt"
	"maps"

	"github.com/usdfg/arena/internal/pkg/common"
	"github.com/usdfg/arena/internal/pkg/matchmaker"
	bolt "go.etcd.io/bbolt"
)

func (s *Store) Lock(_ context.Context, wallet string) (string, error) {
	var target string

	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, common.LocksBucket)
		if err != nil {
			return err
		}

		target = string(b.Get([]byte(wallet)))

		return nil
	})
	if err != nil {
		return "", err
	}

	return target, nil
}

// SetLock writes the wallet's lock target; an empty target clears it.
func (s *Store) SetLock(ctx context.Context, wallet, target string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, common.LocksBucket)
		if err != nil {
			return err
		}

		if target == "" {
			//nolint:wrapcheck
			return b.Delete([]byte(wallet))
		}

		//nolint:wrapcheck
		return b.Put([]byte(wallet), []byte(target))
	})
	if err != nil {
		return fmt.Errorf("failed to set lock for %s: %w", wallet, err)
	}

	s.publishLocks(ctx)

	return nil
}

func (s *Store) Locks(_ context.Context) (map[string]string, error) {
	locks := map[string]string{}

	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, common.LocksBucket)
		if err != nil {
			return err
		}

		//nolint:wrapcheck
		return b.ForEach(func(k, v []byte) error {
			locks[string(k)] = string(v)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return locks, nil
}

func (s *Store) SubscribeLocks(ctx context.Context) <-chan map[string]string {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	initial, err := s.Locks(ctx)
	if err != nil {
		initial = map[string]string{}
	}

	return s.lockSubs.subscribe(ctx, initial)
}

func (s *Store) publishLocks(ctx context.Context) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	snapshot, err := s.Locks(ctx)
	if err != nil {
		return
	}

	s.lockSubs.publish(maps.Clone(snapshot))
}

func (s *Store) SaveFriendlyResult(_ context.Context, r matchmaker.FriendlyResult) error {
	key := fmt.Sprintf("%s|%d", r.MatchID, r.ReportedAt.UnixNano())

	//nolint:wrapcheck
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, common.FriendlyResultsBucket)
		if err != nil {
			return err
		}

		return putJSON(b, key, r)
	})
}
