// Package store implements the durable session store: a numbered session
// directory holding append-only record files plus small JSON indexes of the
// game ids already fully persisted. It is the only component allowed to
// touch the on-disk layout.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/pdiaz/bgg-crawler/internal/crawler"
)

// File names inside a session directory.
const (
	DetailsFile        = "game-details.txt"
	LoadedFile         = "games-loaded.json"
	RatingsFile        = "game-ratings.txt"
	LoadedRatingsFile  = "ratings-loaded.json"
	DefaultPrefix      = "bgg-details"
	sessionDirPerm     = 0o750
	sessionFilePerm    = 0o600
	appendOnlyOpenMode = os.O_APPEND | os.O_CREATE | os.O_WRONLY
)

// Config captures the store parameters.
type Config struct {
	// BaseDir is the directory session directories are numbered under.
	BaseDir string `mapstructure:"base_dir"`
	// Prefix names session directories (<prefix>.N).
	Prefix string `mapstructure:"prefix"`
	// Resume reuses the highest-numbered existing session instead of
	// allocating the next one.
	Resume bool `mapstructure:"resume"`
}

// Store owns one session directory for the lifetime of a run. The record
// file handles are opened lazily on first write and kept open so every
// batch lands on the same descriptor; no external writer may touch the
// active session concurrently.
type Store struct {
	dir    string
	logger *zap.Logger

	details *os.File
	ratings *os.File
}

// ResolveSessionDir picks the session directory for a run: the lowest
// unused numeric suffix, or for resume the last existing one. It never
// creates the directory; creation is deferred to the first write.
func ResolveSessionDir(baseDir, prefix string, resume bool) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	n := 1
	for {
		if _, err := os.Stat(sessionPath(baseDir, prefix, n)); err != nil {
			break
		}
		n++
	}
	if resume && n > 1 {
		n--
	}
	return sessionPath(baseDir, prefix, n)
}

func sessionPath(baseDir, prefix string, n int) string {
	return filepath.Join(baseDir, fmt.Sprintf("%s.%d", prefix, n))
}

// New resolves the session directory and returns a store bound to it.
func New(cfg Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := ResolveSessionDir(cfg.BaseDir, cfg.Prefix, cfg.Resume)
	logger.Info("session resolved", zap.String("dir", dir), zap.Bool("resume", cfg.Resume))
	return &Store{dir: dir, logger: logger}
}

// Dir returns the active session directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Close releases the append-only handles.
func (s *Store) Close() error {
	var errs []error
	if s.details != nil {
		if err := s.details.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close details file: %w", err))
		}
		s.details = nil
	}
	if s.ratings != nil {
		if err := s.ratings.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close ratings file: %w", err))
		}
		s.ratings = nil
	}
	return errors.Join(errs...)
}

// ReadLoaded returns the ids with a committed game record, in append order.
// A missing index file means a first run and yields an empty slice.
func (s *Store) ReadLoaded() ([]string, error) {
	return s.readIndex(LoadedFile)
}

// AppendLoaded merges new ids into the loaded index and rewrites it. Empty
// input is a no-op so a page of pure skips never touches disk.
func (s *Store) AppendLoaded(ids []string) error {
	_, err := s.appendIndex(LoadedFile, ids)
	return err
}

// AppendDetails appends each record as one JSON line to the details file
// and forces a data sync, making the batch durable before the caller
// updates the index.
func (s *Store) AppendDetails(records []crawler.GameRecord) error {
	if len(records) == 0 {
		return nil
	}
	f, err := s.detailsHandle()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("append game record %s: %w", record.ID, err)
		}
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync details file: %w", err)
	}
	return nil
}

// ReadLoadedRatings returns the ids whose full rating history is committed.
func (s *Store) ReadLoadedRatings() ([]string, error) {
	return s.readIndex(LoadedRatingsFile)
}

// AppendLoadedRatings merges ids into the ratings index and returns the
// merged sequence so the caller can track progress without re-reading.
func (s *Store) AppendLoadedRatings(ids []string) ([]string, error) {
	return s.appendIndex(LoadedRatingsFile, ids)
}

// AppendRatings appends one game's full rating set as a single JSON line.
func (s *Store) AppendRatings(batch crawler.RatingsBatch) error {
	if len(batch.Ratings) == 0 && batch.GameID == "" {
		return nil
	}
	if batch.Ratings == nil {
		// A game with an empty history still gets a line; keep the
		// ratings field an array, not null.
		batch.Ratings = []crawler.RatingRecord{}
	}
	f, err := s.ratingsHandle()
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(batch); err != nil {
		return fmt.Errorf("append ratings for game %s: %w", batch.GameID, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync ratings file: %w", err)
	}
	return nil
}

func (s *Store) readIndex(name string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read index %s: %w", name, err)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("parse index %s: %w", name, err)
	}
	return ids, nil
}

// appendIndex rewrites the index file with the merged sequence. The
// truncate+write happens under this process's exclusive ownership of the
// session directory, so no same-process reader observes a partial file.
func (s *Store) appendIndex(name string, ids []string) ([]string, error) {
	current, err := s.readIndex(name)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return current, nil
	}
	merged := append(current, ids...)
	payload, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("marshal index %s: %w", name, err)
	}
	if err := s.ensureDir(); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), payload, sessionFilePerm); err != nil {
		return nil, fmt.Errorf("write index %s: %w", name, err)
	}
	return merged, nil
}

func (s *Store) detailsHandle() (*os.File, error) {
	if s.details != nil {
		return s.details, nil
	}
	f, err := s.openAppend(DetailsFile)
	if err != nil {
		return nil, err
	}
	s.details = f
	return f, nil
}

func (s *Store) ratingsHandle() (*os.File, error) {
	if s.ratings != nil {
		return s.ratings, nil
	}
	f, err := s.openAppend(RatingsFile)
	if err != nil {
		return nil, err
	}
	s.ratings = f
	return f, nil
}

func (s *Store) openAppend(name string) (*os.File, error) {
	if err := s.ensureDir(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(s.dir, name), appendOnlyOpenMode, sessionFilePerm)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

func (s *Store) ensureDir() error {
	if err := os.MkdirAll(s.dir, sessionDirPerm); err != nil {
		return fmt.Errorf("create session dir %s: %w", s.dir, err)
	}
	return nil
}
