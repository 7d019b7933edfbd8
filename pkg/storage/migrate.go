package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/cuemby/netpanel/pkg/log"
)

// Keys lists every document netpanel stores
var Keys = []string{KeyLayout, KeySnapshots, KeyPresets}

// Copy copies every known document from src to dst and returns the keys it
// copied. Documents that read as empty are skipped so an absent document
// stays absent. With dryRun nothing is written.
func Copy(src, dst DocumentStore, dryRun bool) ([]string, error) {
	logger := log.WithComponent("storage")

	var copied []string
	for _, key := range Keys {
		doc := src.Read(key)
		if bytes.Equal(bytes.TrimSpace(doc), emptyDocument) {
			logger.Debug().Str("key", key).Msg("Document empty, skipping")
			continue
		}
		if !dryRun {
			if err := dst.Write(key, doc); err != nil {
				return copied, fmt.Errorf("failed to copy %s: %w", key, err)
			}
		}
		copied = append(copied, key)
	}
	return copied, nil
}

// BackupFile copies src to dst. A missing src is not an error and reports
// false.
func BackupFile(src, dst string) (bool, error) {
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return false, err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return false, err
	}
	return true, out.Close()
}
