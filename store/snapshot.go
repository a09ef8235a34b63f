package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"github.com/novacare/authsync/errors"
	"github.com/novacare/authsync/pkg/timestamp"
)

// snapshotVersion guards codec evolution. Blobs with a different version are
// treated as corrupt and ignored.
const snapshotVersion = 1

// snapshot is the persisted warm-start form of the store. Patches are never
// persisted: an optimistic update that was in flight when the process died
// must not survive it.
type snapshot struct {
	Version int     `cbor:"1,keyasint"`
	SavedAt int64   `cbor:"2,keyasint"`
	Entries []Entry `cbor:"3,keyasint"`
}

// Snapshot encodes the current entries as an opaque blob for a BlobStore.
// Entries past retention are skipped.
func (s *Store) Snapshot() ([]byte, error) {
	now := timestamp.ToUnixMs(s.clk.Now())
	retentionMs := s.retention.Milliseconds()

	s.mu.RLock()
	snap := snapshot{
		Version: snapshotVersion,
		SavedAt: now,
		Entries: make([]Entry, 0, len(s.records)),
	}
	for _, entry := range s.records {
		if now-entry.FetchedAt > retentionMs {
			continue
		}
		snap.Entries = append(snap.Entries, Entry{
			Record:    entry.Record.Clone(),
			FetchedAt: entry.FetchedAt,
		})
	}
	s.mu.RUnlock()

	data, err := cbor.Marshal(snap)
	if err != nil {
		return nil, errors.Wrap(err, "store", "Snapshot", "encode entries")
	}
	return data, nil
}

// Restore replaces the store's entries with a previously snapshotted blob.
// A nil or empty blob is a clean cold start. A corrupt blob leaves the store
// empty and reports the problem; warm start is an optimization, never a
// correctness requirement.
func (s *Store) Restore(blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]Entry)
	s.patches = make(map[string]Patch)

	if len(blob) == 0 {
		return nil
	}

	var snap snapshot
	if err := cbor.Unmarshal(blob, &snap); err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("decode snapshot: %v: %w", err, errors.ErrDataCorrupted),
			"store", "Restore", "decode warm-start blob")
	}
	if snap.Version != snapshotVersion {
		return errors.WrapInvalid(
			fmt.Errorf("snapshot version %d, want %d: %w", snap.Version, snapshotVersion, errors.ErrDataCorrupted),
			"store", "Restore", "check snapshot version")
	}

	for _, entry := range snap.Entries {
		if entry.Record.ID == "" {
			continue
		}
		s.records[entry.Record.ID] = entry
	}

	s.stats.UpdateSize(int64(len(s.records)))
	if s.metrics != nil {
		s.metrics.updateSize(len(s.records))
		s.metrics.updatePatches(0)
	}
	return nil
}

// BlobStore is the pluggable persistence backend for warm-start snapshots.
// The blob is opaque to implementations.
//
// Implementations must be safe for concurrent use.
type BlobStore interface {
	// Load returns the last saved blob, nil when none has been saved yet.
	Load(ctx context.Context) ([]byte, error)

	// Save persists the blob, replacing any previous one.
	Save(ctx context.Context, data []byte) error
}

// FileBlob is a BlobStore backed by a single file. Saves are atomic
// (temp file + rename) so a crash mid-save never corrupts the previous
// snapshot.
type FileBlob struct {
	path string
}

// NewFileBlob creates a file-backed blob store at path.
func NewFileBlob(path string) *FileBlob {
	return &FileBlob{path: path}
}

// Load reads the snapshot file. A missing file is a clean cold start.
func (f *FileBlob) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "FileBlob", "Load", "read snapshot file")
	}
	return data, nil
}

// Save writes the snapshot file atomically.
func (f *FileBlob) Save(_ context.Context, data []byte) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "FileBlob", "Save", "create snapshot directory")
	}

	tmp, err := os.CreateTemp(dir, ".authsync-snapshot-*")
	if err != nil {
		return errors.Wrap(err, "FileBlob", "Save", "create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "FileBlob", "Save", "write temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "FileBlob", "Save", "close temp file")
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "FileBlob", "Save", "replace snapshot file")
	}
	return nil
}
