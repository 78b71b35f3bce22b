// Package ledgerstore persists bypass ledger records to
// .git/dv-hooks/bypass_ledger.json with the same atomic-write, flock, and
// backup discipline the teacher's state.FileStateStore used for its own
// JSON state file.
package ledgerstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/dvtools/dv-hooks/internal/domain/ledger"
)

// FileStore is a ledger.Store backed by a single JSON array file, guarded
// by an in-process mutex plus a cross-process advisory flock so two
// concurrent hook invocations never interleave writes.
type FileStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// New creates a FileStore for the ledger file at path. The parent
// directory is created on first write if it does not exist.
func New(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, logger: logger}
}

// Load reads every record currently on disk. A missing file is reported
// as an empty slice (not an error), but an unparseable file is an error —
// per spec.md §7 the caller must treat that as "ledger unreadable" and
// fail closed on any one-time token presented in that state.
func (s *FileStore) Load() ([]ledger.Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []ledger.Record{}, nil
		}
		return nil, fmt.Errorf("read ledger file: %w", err)
	}

	if runtime.GOOS != "windows" {
		if info, statErr := os.Stat(s.path); statErr == nil {
			if mode := info.Mode().Perm(); mode&0077 != 0 {
				s.logger.Warn("ledger file has too-open permissions, should be 0600",
					"path", s.path, "mode", fmt.Sprintf("%04o", mode))
			}
		}
	}

	var records []ledger.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse ledger file: %w", err)
	}
	return records, nil
}

// Append durably adds rec to the ledger. The write sequence mirrors the
// teacher's state store: acquire the in-process mutex, acquire an
// advisory flock on a sibling .lock file, re-read the current contents
// under that lock (so a record another process appended in the meantime
// is kept rather than overwritten), back up the previous file, then
// write-tmp + fsync + rename. Replay checks for one-time tokens happen in
// Consume, not here.
func (s *FileStore) Append(rec ledger.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}

	lockPath := s.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open ledger lock file: %w", err)
	}
	defer func() { _ = lockFile.Close() }()

	if err := flockLock(lockFile.Fd()); err != nil {
		return fmt.Errorf("acquire ledger lock: %w", err)
	}
	defer flockUnlock(lockFile.Fd()) //nolint:errcheck

	var records []ledger.Record
	if currentData, readErr := os.ReadFile(s.path); readErr == nil {
		if unmarshalErr := json.Unmarshal(currentData, &records); unmarshalErr != nil {
			return fmt.Errorf("parse existing ledger before append: %w", unmarshalErr)
		}
		bakPath := s.path + ".bak"
		if writeErr := os.WriteFile(bakPath, currentData, 0600); writeErr != nil {
			s.logger.Warn("failed to back up ledger before append", "error", writeErr)
		}
	}

	records = append(records, rec)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	data = append(data, '\n')

	if err := s.writeAtomic(data); err != nil {
		return err
	}

	if err := os.Chmod(s.path, 0600); err != nil {
		s.logger.Warn("failed to set permissions on ledger file", "error", err)
	}

	return nil
}

// writeAtomic writes data to a temp file, fsyncs it, and renames it over
// the target path, cleaning up the temp file on any error.
func (s *FileStore) writeAtomic(data []byte) error {
	tmpPath := s.path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp ledger file: %w", err)
	}

	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp ledger file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp ledger file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp ledger file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp ledger file: %w", err)
	}
	return nil
}

// Consume implements ledger.Store's check-then-record sequence for
// one-time tokens: re-reading the current records and deciding replay
// happens inside the same locked critical section as the append, so two
// concurrent invocations racing on the same token hash cannot both
// observe "not yet consumed".
func (s *FileStore) Consume(draft ledger.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return false, fmt.Errorf("create ledger directory: %w", err)
	}

	lockPath := s.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return false, fmt.Errorf("open ledger lock file: %w", err)
	}
	defer func() { _ = lockFile.Close() }()

	if err := flockLock(lockFile.Fd()); err != nil {
		return false, fmt.Errorf("acquire ledger lock: %w", err)
	}
	defer flockUnlock(lockFile.Fd()) //nolint:errcheck

	var records []ledger.Record
	if currentData, readErr := os.ReadFile(s.path); readErr == nil {
		if unmarshalErr := json.Unmarshal(currentData, &records); unmarshalErr != nil {
			return false, fmt.Errorf("parse existing ledger before consume: %w", unmarshalErr)
		}
		bakPath := s.path + ".bak"
		if writeErr := os.WriteFile(bakPath, currentData, 0600); writeErr != nil {
			s.logger.Warn("failed to back up ledger before consume", "error", writeErr)
		}
	} else if !os.IsNotExist(readErr) {
		return false, fmt.Errorf("read ledger before consume: %w", readErr)
	}

	replay := ledger.HasConsumed(records, draft.Scope, draft.HashPrefix)
	if replay {
		draft.Result = ledger.ResultReplayedDenied
	} else {
		draft.Result = ledger.ResultConsumed
	}
	records = append(records, draft)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshal ledger: %w", err)
	}
	data = append(data, '\n')

	if err := s.writeAtomic(data); err != nil {
		return false, err
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		s.logger.Warn("failed to set permissions on ledger file", "error", err)
	}

	return replay, nil
}

// Path returns the configured ledger file path.
func (s *FileStore) Path() string {
	return s.path
}
