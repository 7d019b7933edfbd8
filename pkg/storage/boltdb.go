package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketDocuments = []byte("documents")
)

// BoltStore implements DocumentStore using BoltDB. Each document is a
// single key in the documents bucket.
type BoltStore struct {
	db *bolt.DB
}

// BoltPath returns the database file used for dataDir
func BoltPath(dataDir string) string {
	return filepath.Join(dataDir, "netpanel.db")
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := BoltPath(dataDir)

	// the database is locked by a running server; fail instead of waiting forever
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketDocuments); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketDocuments, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Ping opens a read transaction
func (s *BoltStore) Ping() error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketDocuments) == nil {
			return fmt.Errorf("bucket %s missing", bucketDocuments)
		}
		return nil
	})
}

// Read returns the document stored under key
func (s *BoltStore) Read(key string) json.RawMessage {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		v := b.Get([]byte(key))
		if v != nil {
			// bolt values are only valid for the life of the transaction
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || data == nil {
		return emptyDocument
	}
	return decodeDocument(key, data)
}

// Write replaces the document stored under key
func (s *BoltStore) Write(key string, value any) error {
	data, err := encodeDocument(value)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		if err := b.Put([]byte(key), data); err != nil {
			return fmt.Errorf("failed to write %s: %w", key, err)
		}
		return nil
	})
}
