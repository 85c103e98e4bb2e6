package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/usdfg/arena/internal/pkg/common"
	"github.com/usdfg/arena/internal/pkg/notify"
	"github.com/usdfg/arena/internal/pkg/trust"
	bolt "go.etcd.io/bbolt"
)

// UpsertNotification stores n and reports whether its status differs from
// the stored one.
func (s *Store) UpsertNotification(_ context.Context, n notify.Notification) (bool, error) {
	changed := false

	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, common.NotificationsBucket)
		if err != nil {
			return err
		}

		var existing notify.Notification

		found, err := getJSON(b, n.ID, &existing)
		if err != nil {
			return err
		}

		if found && existing.Status == n.Status {
			return nil
		}

		changed = true

		return putJSON(b, n.ID, n)
	})
	if err != nil {
		return false, err
	}

	return changed, nil
}

func (s *Store) Notification(_ context.Context, id string) (*notify.Notification, error) {
	var n notify.Notification

	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, common.NotificationsBucket)
		if err != nil {
			return err
		}

		found, err := getJSON(b, id, &n)
		if err != nil {
			return err
		}

		if !found {
			return fmt.Errorf("%w: %s", notify.ErrNotFound, id)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &n, nil
}

// PutReview stores the review unless one already exists for the same
// reviewer, opponent and challenge. It reports whether it was stored.
func (s *Store) PutReview(_ context.Context, r trust.Review) (bool, error) {
	created := false

	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, common.ReviewsBucket)
		if err != nil {
			return err
		}

		key := r.Key()
		if b.Get([]byte(key)) != nil {
			return nil
		}

		created = true

		return putJSON(b, key, r)
	})
	if err != nil {
		return false, err
	}

	return created, nil
}

func (s *Store) HasReview(_ context.Context, key string) (bool, error) {
	found := false

	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, common.ReviewsBucket)
		if err != nil {
			return err
		}

		found = b.Get([]byte(key)) != nil

		return nil
	})
	if err != nil {
		return false, err
	}

	return found, nil
}

func (s *Store) ReviewsFor(_ context.Context, opponent string) ([]trust.Review, error) {
	reviews := []trust.Review{}

	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, common.ReviewsBucket)
		if err != nil {
			return err
		}

		//nolint:wrapcheck
		return b.ForEach(func(k, v []byte) error {
			var r trust.Review

			err := json.Unmarshal(v, &r)
			if err != nil {
				return fmt.Errorf("failed to decode review %s: %w", k, err)
			}

			if r.Opponent == opponent {
				reviews = append(reviews, r)
			}

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return reviews, nil
}
