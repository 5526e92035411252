// Package filerun provides a file-based implementation of
// core.RunStore. Each run is stored as one JSON document at
// {baseDir}/{suite}/{runID}.json.
package filerun

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/probeflow/probeflow/internal/cmn/fileutil"
	"github.com/probeflow/probeflow/internal/cmn/logger"
	"github.com/probeflow/probeflow/internal/cmn/logger/tag"
	"github.com/probeflow/probeflow/internal/core"
)

var _ core.RunStore = (*Store)(nil)

const (
	dirPermissions  = 0o750
	filePermissions = 0o600
)

// Store implements a file-based run store. Run records are grouped in
// one directory per suite so per-suite listings avoid a full scan.
type Store struct {
	baseDir string
}

// New creates a file-based run store rooted at baseDir.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, dirPermissions); err != nil {
		return nil, fmt.Errorf("filerun: failed to create directory %s: %w", baseDir, err)
	}
	return &Store{baseDir: baseDir}, nil
}

// Create stores a new run record. It returns ErrRunExists when a record
// with the same id already exists for the suite.
func (s *Store) Create(_ context.Context, run *core.TestRun) error {
	if run.ID == "" || run.SuiteName == "" {
		return fmt.Errorf("filerun: run id and suite name are required")
	}
	if err := os.MkdirAll(s.suiteDir(run.SuiteName), dirPermissions); err != nil {
		return fmt.Errorf("filerun: failed to create directory for suite %s: %w", run.SuiteName, err)
	}
	path := s.runPath(run.SuiteName, run.ID)
	if fileutil.FileExists(path) {
		return core.ErrRunExists
	}
	return write(path, run)
}

// Update replaces an existing run record.
func (s *Store) Update(_ context.Context, run *core.TestRun) error {
	path := s.runPath(run.SuiteName, run.ID)
	if !fileutil.FileExists(path) {
		return core.ErrRunNotFound
	}
	return write(path, run)
}

// Get returns the run with the given id, scanning every suite directory.
func (s *Store) Get(_ context.Context, runID string) (*core.TestRun, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("filerun: failed to read directory %s: %w", s.baseDir, err)
	}
	file := safeStem(runID) + ".json"
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(s.baseDir, entry.Name(), file)
		if fileutil.FileExists(path) {
			return readRun(path)
		}
	}
	return nil, core.ErrRunNotFound
}

// List returns run records most recent first. Unreadable records are
// logged and skipped.
func (s *Store) List(ctx context.Context, opts ...core.ListRunsOption) ([]*core.TestRun, error) {
	var options core.ListRunsOptions
	for _, opt := range opts {
		opt(&options)
	}

	var dirs []string
	if options.SuiteName != "" {
		if dir := s.suiteDir(options.SuiteName); fileutil.IsDir(dir) {
			dirs = append(dirs, dir)
		}
	} else {
		entries, err := os.ReadDir(s.baseDir)
		if err != nil {
			return nil, fmt.Errorf("filerun: failed to read directory %s: %w", s.baseDir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				dirs = append(dirs, filepath.Join(s.baseDir, entry.Name()))
			}
		}
	}

	var runs []*core.TestRun
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			logger.Warn(ctx, "Failed to read run directory", tag.File(dir), tag.Error(err))
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			run, err := readRun(path)
			if err != nil {
				logger.Warn(ctx, "Failed to load run record", tag.File(path), tag.Error(err))
				continue
			}
			if len(options.Statuses) > 0 && !lo.Contains(options.Statuses, run.Status) {
				continue
			}
			runs = append(runs, run)
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID > runs[j].ID
	})
	if options.Limit > 0 && len(runs) > options.Limit {
		runs = runs[:options.Limit]
	}
	return runs, nil
}

func write(path string, run *core.TestRun) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("filerun: failed to marshal run %s: %w", run.ID, err)
	}
	if err := fileutil.WriteFileAtomic(path, data, filePermissions); err != nil {
		return fmt.Errorf("filerun: failed to write file %s: %w", path, err)
	}
	return nil
}

func readRun(path string) (*core.TestRun, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path derived from SafeName
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrRunNotFound
		}
		return nil, fmt.Errorf("filerun: failed to read file %s: %w", path, err)
	}
	var run core.TestRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("filerun: failed to parse %s: %w", path, err)
	}
	return &run, nil
}

func (s *Store) suiteDir(suiteName string) string {
	return filepath.Join(s.baseDir, safeStem(suiteName))
}

func (s *Store) runPath(suiteName, runID string) string {
	return filepath.Join(s.suiteDir(suiteName), safeStem(runID)+".json")
}

// safeStem derives a collision-safe file stem from a name. When
// SafeName has to rewrite the name, a short hash keeps distinct names
// from colliding on the same file.
func safeStem(name string) string {
	safe := fileutil.SafeName(name)
	if safe != name {
		h := sha256.Sum256([]byte(name))
		safe = safe + "-" + hex.EncodeToString(h[:])[:8]
	}
	return safe
}
