package screenshot

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mkarpov/mapwatch/pkg/models"
)

const (
	filePrefix = "screenshot-"
	fileSuffix = ".png"
)

// Store keeps at most one screenshot artifact in a directory. Every Replace
// deletes all prior artifacts before writing the new one; there is no history
// and no rollback if the write fails after the delete.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates the artifact directory if needed
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create screenshots directory: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: logger.With("component", "screenshot_store"),
	}, nil
}

// Replace removes every existing artifact and writes png as the new one.
// The filename carries a timestamp plus a random suffix so two captures in
// sequence never collide.
func (s *Store) Replace(png []byte) (*models.Screenshot, error) {
	if err := s.deleteAll(); err != nil {
		return nil, err
	}

	ts := time.Now().UTC().Format("2006-01-02T15-04-05")
	filename := fmt.Sprintf("%s%s-%s%s", filePrefix, ts, uuid.NewString()[:8], fileSuffix)
	path := filepath.Join(s.dir, filename)

	if err := os.WriteFile(path, png, 0644); err != nil {
		return nil, fmt.Errorf("failed to write screenshot: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat screenshot: %w", err)
	}

	s.logger.Info("screenshot saved", "file", filename, "bytes", len(png))
	return &models.Screenshot{
		Filename:  filename,
		Path:      path,
		CreatedAt: info.ModTime(),
	}, nil
}

// Latest returns the current artifact, or nil if none exists
func (s *Store) Latest() (*models.Screenshot, error) {
	names, err := s.list()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}

	// Newest last in lexicographic order thanks to the timestamp prefix
	sort.Strings(names)
	filename := names[len(names)-1]
	path := filepath.Join(s.dir, filename)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat screenshot: %w", err)
	}

	return &models.Screenshot{
		Filename:  filename,
		Path:      path,
		CreatedAt: info.ModTime(),
	}, nil
}

// Dir returns the artifact directory path
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) list() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read screenshots directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix) {
			names = append(names, name)
		}
	}
	return names, nil
}

func (s *Store) deleteAll() error {
	names, err := s.list()
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			return fmt.Errorf("failed to delete old screenshot: %w", err)
		}
		s.logger.Debug("screenshot deleted", "file", name)
	}
	return nil
}
