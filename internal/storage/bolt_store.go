package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	BucketComparisons = "comparisons"
)

// Store keeps past comparison records in a bbolt file under the user's home
// directory. Records are keyed by timestamp so listing is chronological.
type Store struct {
	db *bbolt.DB
}

func NewStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(home, ".flowbench")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return NewStoreAt(filepath.Join(dir, "history.db"))
}

func NewStoreAt(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketComparisons))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Save(rec ComparisonRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketComparisons))

		key := []byte(rec.Timestamp.UTC().Format(time.RFC3339Nano) + "_" + rec.ID)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		return b.Put(key, data)
	})
}

// List returns records newest-first.
func (s *Store) List() []ComparisonRecord {
	var items []ComparisonRecord

	s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketComparisons))
		c := b.Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec ComparisonRecord
			if err := json.Unmarshal(v, &rec); err == nil {
				items = append(items, rec)
			}
		}
		return nil
	})

	return items
}

func (s *Store) Get(id string) (*ComparisonRecord, error) {
	var found *ComparisonRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(BucketComparisons))
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec ComparisonRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			if rec.ID == id {
				found = &rec
				return nil
			}
		}
		return fmt.Errorf("record not found: %s", id)
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}
