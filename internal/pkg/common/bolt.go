package common

import (
	"fmt"
	"os"
	"path"
	"time"

	"github.com/samber/do/v2"
	bolt "go.etcd.io/bbolt"
)

const (
	ChallengesBucket      = "arena:challenges"
	LocksBucket           = "arena:locks"
	NotificationsBucket   = "arena:notifications"
	ReviewsBucket         = "arena:reviews"
	TeamsBucket           = "arena:teams"
	FriendlyResultsBucket = "arena:friendly-results"

	ScorerRatingsBucket = "scorer:ratings"
	ScorerStatsBucket   = "scorer:stats"
)

var Buckets = []string{
	ChallengesBucket,
	LocksBucket,
	NotificationsBucket,
	ReviewsBucket,
	TeamsBucket,
	FriendlyResultsBucket,
	ScorerRatingsBucket,
	ScorerStatsBucket,
}

type DatabaseService struct {
	DB *bolt.DB
}

func NewDatabaseService(i do.Injector) (*DatabaseService, error) {
	dataDir := do.MustInvokeNamed[string](i, "data-dir")

	return OpenDatabase(dataDir)
}

func OpenDatabase(dataDir string) (*DatabaseService, error) {
	err := os.MkdirAll(dataDir, 0750)
	if err != nil {
		return nil, fmt.Errorf("failed to create database path: %w", err)
	}

	dbPath := path.Join(dataDir, "arena.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range Buckets {
			_, err := tx.CreateBucketIfNotExists([]byte(bucket))
			if err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", bucket, err)
			}
		}

		return nil
	})
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to initialize database buckets: %w", err)
	}

	return &DatabaseService{
		DB: db,
	}, nil
}

func (s *DatabaseService) Shutdown() error {
	//nolint:wrapcheck
	return s.DB.Close()
}
