// Package baseline persists the remote catalog as it looked immediately
// after the last successful sync. The snapshot is the common ancestor for
// the three-way diff; its absence or corruption degrades the comparison to
// a two-way diff and is never fatal.
package baseline

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/sunsync/sunsync/internal/catalog"
)

var ErrCorrupt = errors.New("corrupt baseline snapshot")

// Snapshot is the remote catalog captured at the end of the previous
// successful, non-dry-run sync.
type Snapshot struct {
	Apps      []catalog.Entry `json:"apps"`
	Timestamp int64           `json:"timestamp"` // epoch milliseconds
	Checksum  string          `json:"checksum"`
}

// Store persists baseline snapshots. Load returns (nil, nil) when no
// snapshot exists.
type Store interface {
	Load() (*Snapshot, error)
	Save(snap *Snapshot) error
	Clear() error
}

type storeCloser interface {
	Close() error
}

// Close releases backend resources when the store holds any.
func Close(store Store) error {
	if closer, ok := store.(storeCloser); ok && closer != nil {
		return closer.Close()
	}
	return nil
}

// New builds a snapshot over the given apps with a fresh checksum.
func New(apps []catalog.Entry, timestampMillis int64) *Snapshot {
	cloned := make([]catalog.Entry, 0, len(apps))
	for _, app := range apps {
		cloned = append(cloned, app.Clone())
	}
	return &Snapshot{
		Apps:      cloned,
		Timestamp: timestampMillis,
		Checksum:  ComputeChecksum(cloned),
	}
}

// Verify recomputes the checksum over the snapshot's apps. A mismatch means
// gross corruption; the snapshot must then be treated as absent.
func (s *Snapshot) Verify() error {
	if s == nil {
		return fmt.Errorf("%w: nil snapshot", ErrCorrupt)
	}
	if got := ComputeChecksum(s.Apps); got != s.Checksum {
		return fmt.Errorf("%w: checksum %s does not cover %d apps (expected %s)",
			ErrCorrupt, s.Checksum, len(s.Apps), got)
	}
	return nil
}

// ComputeChecksum is a 32-bit hash over the key-sorted JSON serialization
// of the apps array. It detects gross corruption, not field tampering.
func ComputeChecksum(apps []catalog.Entry) string {
	if apps == nil {
		apps = []catalog.Entry{}
	}
	data, err := json.Marshal(apps)
	if err != nil {
		return ""
	}
	// Round-trip through generic values so object keys serialize sorted
	// regardless of struct field order.
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return ""
	}
	sorted, err := json.Marshal(generic)
	if err != nil {
		return ""
	}
	hasher := fnv.New32a()
	_, _ = hasher.Write(sorted)
	return fmt.Sprintf("%08x", hasher.Sum32())
}

// DefaultPath is the baseline cache file under the user's home directory.
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".sunsync", "cache.json"), nil
}
