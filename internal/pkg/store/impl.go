// Package store keeps the arena's shared documents in bbolt: challenges,
// wallet locks, notifications, trust reviews, teams and friendly results.
// Every write to challenges or locks is followed by a full snapshot to the
// subscribers of that collection.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/do/v2"
	"github.com/usdfg/arena/internal/pkg/challenge"
	"github.com/usdfg/arena/internal/pkg/common"
	"github.com/usdfg/arena/internal/pkg/matchmaker"
	"github.com/usdfg/arena/internal/pkg/notify"
	"github.com/usdfg/arena/internal/pkg/trust"
	bolt "go.etcd.io/bbolt"
)

type Store struct {
	db *bolt.DB

	challengeMu   sync.Mutex
	challengeSubs *broadcaster[[]challenge.Challenge]

	lockMu   sync.Mutex
	lockSubs *broadcaster[map[string]string]
}

var (
	_ challenge.Repository    = (*Store)(nil)
	_ challenge.TeamStore     = (*Store)(nil)
	_ matchmaker.LockRegistry = (*Store)(nil)
	_ notify.Store            = (*Store)(nil)
	_ trust.Store             = (*Store)(nil)
)

func New(db *bolt.DB) *Store {
	return &Store{
		db:            db,
		challengeSubs: newBroadcaster[[]challenge.Challenge](),
		lockSubs:      newBroadcaster[map[string]string](),
	}
}

func NewStore(i do.Injector) (*Store, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)

	return New(databaseService.DB), nil
}

func getJSON(b *bolt.Bucket, key string, out any) (bool, error) {
	data := b.Get([]byte(key))
	if data == nil {
		return false, nil
	}

	err := json.Unmarshal(data, out)
	if err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}

	return true, nil
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	err = b.Put([]byte(key), data)
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}

	return nil
}

func bucket(tx *bolt.Tx, name string) (*bolt.Bucket, error) {
	b := tx.Bucket([]byte(name))
	if b == nil {
		return nil, fmt.Errorf("%w: %s", ErrBucketNotFound, name)
	}

	return b, nil
}

// Challenges

func (s *Store) Create(ctx context.Context, c *challenge.Challenge) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, common.ChallengesBucket)
		if err != nil {
			return err
		}

		if b.Get([]byte(c.ID)) != nil {
			return fmt.Errorf("%w: %s", ErrExists, c.ID)
		}

		return putJSON(b, c.ID, c)
	})
	if err != nil {
		return fmt.Errorf("failed to create challenge: %w", err)
	}

	s.publishChallenges(ctx)

	return nil
}

func (s *Store) Get(_ context.Context, id string) (*challenge.Challenge, error) {
	var c challenge.Challenge

	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, common.ChallengesBucket)
		if err != nil {
			return err
		}

		found, err := getJSON(b, id, &c)
		if err != nil {
			return err
		}

		if !found {
			return fmt.Errorf("%w: %s", challenge.ErrNotFound, id)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &c, nil
}

// Update runs fn on the stored challenge inside one transaction. When fn fails
// nothing is written and the unmodified record is returned with the error.
func (s *Store) Update(ctx context.Context, id string, fn func(c *challenge.Challenge) error) (*challenge.Challenge, error) {
	var (
		current *challenge.Challenge
		updated *challenge.Challenge
	)

	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, common.ChallengesBucket)
		if err != nil {
			return err
		}

		var c challenge.Challenge

		found, err := getJSON(b, id, &c)
		if err != nil {
			return err
		}

		if !found {
			return fmt.Errorf("%w: %s", challenge.ErrNotFound, id)
		}

		current = c.Clone()

		err = fn(&c)
		if err != nil {
			return err
		}

		updated = &c

		return putJSON(b, id, &c)
	})
	if err != nil {
		return current, err
	}

	s.publishChallenges(ctx)

	return updated, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, common.ChallengesBucket)
		if err != nil {
			return err
		}

		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", challenge.ErrNotFound, id)
		}

		//nolint:wrapcheck
		return b.Delete([]byte(id))
	})
	if err != nil {
		return err
	}

	s.publishChallenges(ctx)

	return nil
}

func (s *Store) List(_ context.Context) ([]challenge.Challenge, error) {
	result := []challenge.Challenge{}

	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, common.ChallengesBucket)
		if err != nil {
			return err
		}

		//nolint:wrapcheck
		return b.ForEach(func(k, v []byte) error {
			var c challenge.Challenge

			err := json.Unmarshal(v, &c)
			if err != nil {
				return fmt.Errorf("failed to decode challenge %s: %w", k, err)
			}

			result = append(result, c)

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// SubscribeChallenges streams the full challenge list, starting with the
// current one. Only the latest snapshot is kept for a slow reader.
func (s *Store) SubscribeChallenges(ctx context.Context) <-chan []challenge.Challenge {
	s.challengeMu.Lock()
	defer s.challengeMu.Unlock()

	initial, err := s.List(ctx)
	if err != nil {
		initial = []challenge.Challenge{}
	}

	return s.challengeSubs.subscribe(ctx, initial)
}

func (s *Store) publishChallenges(ctx context.Context) {
	s.challengeMu.Lock()
	defer s.challengeMu.Unlock()

	snapshot, err := s.List(ctx)
	if err != nil {
		return
	}

	s.challengeSubs.publish(snapshot)
}

// Teams

func (s *Store) CreateTeam(_ context.Context, team *challenge.Team) error {
	//nolint:wrapcheck
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, common.TeamsBucket)
		if err != nil {
			return err
		}

		if b.Get([]byte(team.ID)) != nil {
			return fmt.Errorf("%w: team %s", ErrExists, team.ID)
		}

		return putJSON(b, team.ID, team)
	})
}

func (s *Store) AddTeamMember(_ context.Context, teamID, member string) (*challenge.Team, error) {
	var team challenge.Team

	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, common.TeamsBucket)
		if err != nil {
			return err
		}

		found, err := getJSON(b, teamID, &team)
		if err != nil {
			return err
		}

		if !found {
			return fmt.Errorf("%w: team %s", ErrNotFound, teamID)
		}

		if !slices.Contains(team.Members, member) {
			team.Members = append(team.Members, member)
		}

		return putJSON(b, teamID, &team)
	})
	if err != nil {
		return nil, err
	}

	return &team, nil
}

// TeamOf returns the team the wallet holds or belongs to, nil when none.
func (s *Store) TeamOf(_ context.Context, wallet string) (*challenge.Team, error) {
	var result *challenge.Team

	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, common.TeamsBucket)
		if err != nil {
			return err
		}

		//nolint:wrapcheck
		return b.ForEach(func(_, v []byte) error {
			if result != nil {
				return nil
			}

			var team challenge.Team

			err := json.Unmarshal(v, &team)
			if err != nil {
				return fmt.Errorf("failed to decode team: %w", err)
			}

			if team.Key == wallet || slices.Contains(team.Members, wallet) {
				result = &team
			}

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
