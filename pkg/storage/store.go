package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuemby/netpanel/pkg/log"
)

// emptyDocument is returned for documents that are absent or unparsable
var emptyDocument = json.RawMessage("{}")

// Document keys used by netpanel
const (
	KeyLayout    = "network/configuration.json"
	KeySnapshots = "network/snapshots.json"
	KeyPresets   = "network/presets.json"
)

// DocumentStore defines the interface for JSON document storage.
// Read never fails: a missing or malformed document reads as an empty object.
type DocumentStore interface {
	Read(key string) json.RawMessage
	Write(key string, value any) error
	// Ping reports whether the backend is usable
	Ping() error
	Close() error
}

// FileStore implements DocumentStore with one JSON file per key under a
// data directory
type FileStore struct {
	dataDir string
}

// NewFileStore creates a file-backed store rooted at dataDir
func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileStore{dataDir: dataDir}, nil
}

// Path returns the file backing a key
func (s *FileStore) Path(key string) string {
	return filepath.Join(s.dataDir, filepath.FromSlash(key))
}

// Read returns the raw document stored under key
func (s *FileStore) Read(key string) json.RawMessage {
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			logger := log.WithComponent("storage")
			logger.Warn().Err(err).Str("key", key).Msg("Failed to read document")
		}
		return emptyDocument
	}
	return decodeDocument(key, data)
}

// Write replaces the document stored under key. The file is written to a
// temporary sibling and renamed into place.
func (s *FileStore) Write(key string, value any) error {
	data, err := encodeDocument(value)
	if err != nil {
		return err
	}

	path := s.Path(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}
	return nil
}

// Ping checks that the data directory still exists
func (s *FileStore) Ping() error {
	info, err := os.Stat(s.dataDir)
	if err != nil {
		return fmt.Errorf("data directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data directory %s is not a directory", s.dataDir)
	}
	return nil
}

// Close is a no-op for the file store
func (s *FileStore) Close() error {
	return nil
}

func encodeDocument(value any) ([]byte, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return append(data, '\n'), nil
}

func decodeDocument(key string, data []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		logger := log.WithComponent("storage")
		logger.Warn().Str("key", key).Msg("Document is not valid JSON, treating as empty")
		return emptyDocument
	}
	return json.RawMessage(trimmed)
}

// IsList reports whether a raw document holds a JSON array
func IsList(doc json.RawMessage) bool {
	return strings.HasPrefix(string(bytes.TrimSpace(doc)), "[")
}

// Drivers accepted by Open
const (
	DriverFile = "file"
	DriverBolt = "bolt"
)

// Open creates the document store selected by driver
func Open(driver, dataDir string) (DocumentStore, error) {
	switch driver {
	case "", DriverFile:
		return NewFileStore(dataDir)
	case DriverBolt:
		if err := os.MkdirAll(dataDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return NewBoltStore(dataDir)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
