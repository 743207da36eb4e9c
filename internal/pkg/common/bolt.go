package common

import (
	"encoding/binary"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/samber/do/v2"
	bolt "go.etcd.io/bbolt"
)

const (
	VaultSecretsBucket   = "vault:secrets"
	LocatorGamesBucket   = "locator:games"
	LocatorMatchesBucket = "locator:matches"
	RecordBucket         = "record:opponents"
	RecordMatchesBucket  = "record:matches"
	RecordRoundsBucket   = "record:rounds"
)

type DatabaseService struct {
	DB *bolt.DB
}

func NewDatabaseService(i do.Injector) (*DatabaseService, error) {
	dataDir := do.MustInvokeNamed[string](i, "data-dir")
	dbName := do.MustInvokeNamed[string](i, "db-name")

	return OpenDatabase(dataDir, dbName)
}

// OpenDatabase opens (or creates) dataDir/dbName.db. bbolt holds an exclusive file
// lock, so a second process for the same wallet fails after the open timeout instead
// of interleaving writes.
func OpenDatabase(dataDir, dbName string) (*DatabaseService, error) {
	err := os.MkdirAll(dataDir, 0750)
	if err != nil {
		return nil, fmt.Errorf("failed to create database path: %w", err)
	}

	dbPath := path.Join(dataDir, dbName+".db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{
			VaultSecretsBucket,
			LocatorGamesBucket,
			LocatorMatchesBucket,
			RecordBucket,
			RecordMatchesBucket,
			RecordRoundsBucket,
		} {
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

// Uint64ToBytes encodes big-endian so bbolt keys sort numerically.
func Uint64ToBytes(i uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, i)

	return buf
}

func BytesToUint64(b []byte, _default uint64) uint64 {
	if len(b) != 8 {
		return _default
	}

	return binary.BigEndian.Uint64(b)
}
