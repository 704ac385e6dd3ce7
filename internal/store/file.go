package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"messageflow-backend/internal/model"
)

// FileStore keeps licenses in memory and rewrites a JSON snapshot after every
// mutation. The snapshot is a list of [key, record] pairs.
//
// Other processes (the CLI next to a running server) may rewrite the same
// file. Before every read and mutation the store compares the file with the
// version it last loaded or wrote and reloads it when it changed.
type FileStore struct {
	path string

	mu       sync.RWMutex
	licenses map[string]model.License

	// saveMu orders snapshot writes and reloads; the map is captured while it
	// is held so an older snapshot never replaces a newer one.
	saveMu      sync.Mutex
	seen        snapshotVersion
	onSaveError func(error)
}

// snapshotVersion identifies one on-disk snapshot.
type snapshotVersion struct {
	modTime time.Time
	size    int64
}

func statSnapshot(path string) (snapshotVersion, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return snapshotVersion{}, false
	}
	return snapshotVersion{modTime: info.ModTime(), size: info.Size()}, true
}

func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:     path,
		licenses: make(map[string]model.License),
	}
}

// SetSaveErrorHook registers fn to be called whenever a write-through save
// fails.
func (s *FileStore) SetSaveErrorHook(fn func(error)) {
	s.onSaveError = fn
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(_ context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	version, _ := statSnapshot(s.path)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		log.Info().Str("path", s.path).Msg("No license snapshot found, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read license snapshot: %w", err)
	}

	loaded, err := decodeSnapshot(data)
	if err != nil {
		aside := s.path + ".corrupt-" + strconv.FormatInt(time.Now().Unix(), 10)
		if renameErr := os.Rename(s.path, aside); renameErr != nil {
			log.Error().Err(renameErr).Str("path", s.path).Msg("Failed to move malformed snapshot aside")
		} else {
			log.Warn().Str("path", aside).Msg("Malformed license snapshot moved aside")
		}
		return fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	s.mu.Lock()
	s.licenses = loaded
	s.mu.Unlock()
	s.seen = version

	log.Info().Int("count", len(loaded)).Str("path", s.path).Msg("Licenses loaded")
	return nil
}

func (s *FileStore) Save(_ context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.saveLocked()
}

func (s *FileStore) saveLocked() error {
	data, err := s.encodeSnapshot()
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.path, data, 0o600); err != nil {
		return err
	}
	if version, ok := statSnapshot(s.path); ok {
		s.seen = version
	}
	return nil
}

// reloadLocked replaces the in-memory map with the snapshot when another
// writer changed the file. A missing or unreadable file keeps memory as is.
// saveMu must be held.
func (s *FileStore) reloadLocked() {
	version, ok := statSnapshot(s.path)
	if !ok || version == s.seen {
		return
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Failed to re-read changed license snapshot")
		return
	}
	loaded, err := decodeSnapshot(data)
	if err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Changed license snapshot is malformed, keeping memory")
		return
	}

	s.mu.Lock()
	s.licenses = loaded
	s.mu.Unlock()
	s.seen = version
	log.Info().Int("count", len(loaded)).Str("path", s.path).Msg("License snapshot changed on disk, reloaded")
}

func (s *FileStore) refresh() {
	s.saveMu.Lock()
	s.reloadLocked()
	s.saveMu.Unlock()
}

func (s *FileStore) Get(_ context.Context, key string) (*model.License, error) {
	s.refresh()
	s.mu.RLock()
	defer s.mu.RUnlock()
	license, ok := s.licenses[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &license, nil
}

// Put never reports a persistence failure: the record is kept in memory and
// the failure goes to the log and the save error hook.
func (s *FileStore) Put(ctx context.Context, license *model.License) error {
	if license == nil || license.Key == "" {
		return ErrInvalidRecord
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.reloadLocked()

	s.mu.Lock()
	s.licenses[license.Key] = *license
	s.mu.Unlock()

	s.persistLocked()
	return nil
}

func (s *FileStore) FindBySession(_ context.Context, sessionID string) (*model.License, error) {
	if sessionID == "" {
		return nil, ErrNotFound
	}
	s.refresh()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *model.License
	for _, license := range s.licenses {
		if license.StripeSessionID != sessionID {
			continue
		}
		if found == nil || license.PurchaseDate.Before(found.PurchaseDate) {
			l := license
			found = &l
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *FileStore) List(_ context.Context) ([]model.License, error) {
	s.refresh()
	return s.snapshot(), nil
}

func (s *FileStore) snapshot() []model.License {
	s.mu.RLock()
	licenses := make([]model.License, 0, len(s.licenses))
	for _, license := range s.licenses {
		licenses = append(licenses, license)
	}
	s.mu.RUnlock()

	sortLicenses(licenses)
	return licenses
}

func (s *FileStore) SetActive(_ context.Context, key string, active bool) (*model.License, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	s.reloadLocked()

	s.mu.Lock()
	license, ok := s.licenses[key]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	license.Active = active
	s.licenses[key] = license
	s.mu.Unlock()

	s.persistLocked()
	return &license, nil
}

func (s *FileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.licenses)
}

// persistLocked writes the snapshot with saveMu held.
func (s *FileStore) persistLocked() {
	if err := s.saveLocked(); err != nil {
		log.Error().Err(err).Str("path", s.path).Msg("Failed to save license snapshot")
		if s.onSaveError != nil {
			s.onSaveError(err)
		}
	}
}

func (s *FileStore) encodeSnapshot() ([]byte, error) {
	licenses := s.snapshot()
	pairs := make([][2]any, 0, len(licenses))
	for _, license := range licenses {
		pairs = append(pairs, [2]any{license.Key, license})
	}
	data, err := json.MarshalIndent(pairs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode license snapshot: %w", err)
	}
	return data, nil
}

func decodeSnapshot(data []byte) (map[string]model.License, error) {
	var pairs []json.RawMessage
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, err
	}

	licenses := make(map[string]model.License, len(pairs))
	for i, raw := range pairs {
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if len(pair) != 2 {
			return nil, fmt.Errorf("entry %d: want [key, record], got %d elements", i, len(pair))
		}
		var key string
		if err := json.Unmarshal(pair[0], &key); err != nil {
			return nil, fmt.Errorf("entry %d key: %w", i, err)
		}
		var license model.License
		if err := json.Unmarshal(pair[1], &license); err != nil {
			return nil, fmt.Errorf("entry %d record: %w", i, err)
		}
		if key == "" {
			return nil, fmt.Errorf("entry %d: empty key", i)
		}
		if license.Key == "" {
			license.Key = key
		}
		licenses[key] = license
	}
	return licenses, nil
}

// writeFileAtomic replaces path with data so readers see either the old or
// the new snapshot, never a partial one.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot tmp: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		if rmErr := os.Remove(tmpPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.Warn().Err(rmErr).Str("path", tmpPath).Msg("Failed to remove snapshot tmp file")
		}
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync snapshot tmp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close snapshot tmp: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		cleanup()
		return fmt.Errorf("chmod snapshot tmp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("commit snapshot: %w", err)
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}
