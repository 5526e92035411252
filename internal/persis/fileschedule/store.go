// Package fileschedule provides a file-based implementation of
// core.ScheduleStore. Each schedule is stored as one YAML document at
// {baseDir}/{id}.yaml. Deletion is soft: the document stays on disk
// flagged as deleted and becomes invisible to Get and List.
package fileschedule

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/probeflow/probeflow/internal/cmn/fileutil"
	"github.com/probeflow/probeflow/internal/cmn/logger"
	"github.com/probeflow/probeflow/internal/cmn/logger/tag"
	"github.com/probeflow/probeflow/internal/core"
)

var _ core.ScheduleStore = (*Store)(nil)

const (
	dirPermissions  = 0o750
	filePermissions = 0o600
)

// Store implements a file-based schedule store.
type Store struct {
	baseDir string
	clock   func() time.Time
}

// New creates a file-based schedule store rooted at baseDir.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, dirPermissions); err != nil {
		return nil, fmt.Errorf("fileschedule: failed to create directory %s: %w", baseDir, err)
	}
	return &Store{baseDir: baseDir, clock: time.Now}, nil
}

// Create stores a new schedule. It stamps CreatedAt and UpdatedAt and
// returns ErrScheduleExists when the id is already taken.
func (s *Store) Create(_ context.Context, schedule *core.RunSchedule) error {
	if schedule.ID == "" {
		return fmt.Errorf("fileschedule: schedule id is required")
	}
	if err := core.ValidateSchedule(schedule); err != nil {
		return err
	}
	path := s.filePath(schedule.ID)
	if fileutil.FileExists(path) {
		return core.ErrScheduleExists
	}
	now := s.clock()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now
	return write(path, schedule)
}

// Update replaces an existing schedule. Soft-deleted schedules cannot
// be updated and report ErrScheduleNotFound.
func (s *Store) Update(_ context.Context, schedule *core.RunSchedule) error {
	if err := core.ValidateSchedule(schedule); err != nil {
		return err
	}
	existing, err := readSchedule(s.filePath(schedule.ID))
	if err != nil {
		return err
	}
	if existing.Deleted {
		return core.ErrScheduleNotFound
	}
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = existing.CreatedAt
	}
	schedule.Deleted = false
	schedule.UpdatedAt = s.clock()
	return write(s.filePath(schedule.ID), schedule)
}

// Get returns the schedule with the given id.
func (s *Store) Get(_ context.Context, id string) (*core.RunSchedule, error) {
	schedule, err := readSchedule(s.filePath(id))
	if err != nil {
		return nil, err
	}
	if schedule.Deleted {
		return nil, core.ErrScheduleNotFound
	}
	return schedule, nil
}

// List returns all schedules that are not soft-deleted, sorted by
// creation time. Unreadable documents are logged and skipped.
func (s *Store) List(ctx context.Context) ([]*core.RunSchedule, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("fileschedule: failed to read directory %s: %w", s.baseDir, err)
	}
	var schedules []*core.RunSchedule
	for _, entry := range entries {
		if entry.IsDir() || !fileutil.IsYAMLFile(entry.Name()) {
			continue
		}
		path := filepath.Join(s.baseDir, entry.Name())
		schedule, err := readSchedule(path)
		if err != nil {
			logger.Warn(ctx, "Failed to load schedule", tag.File(path), tag.Error(err))
			continue
		}
		if schedule.Deleted {
			continue
		}
		schedules = append(schedules, schedule)
	}
	sort.Slice(schedules, func(i, j int) bool {
		if !schedules[i].CreatedAt.Equal(schedules[j].CreatedAt) {
			return schedules[i].CreatedAt.Before(schedules[j].CreatedAt)
		}
		return schedules[i].ID < schedules[j].ID
	})
	return schedules, nil
}

// Delete soft-deletes the schedule with the given id.
func (s *Store) Delete(_ context.Context, id string) error {
	path := s.filePath(id)
	schedule, err := readSchedule(path)
	if err != nil {
		return err
	}
	if schedule.Deleted {
		return core.ErrScheduleNotFound
	}
	schedule.Deleted = true
	schedule.UpdatedAt = s.clock()
	return write(path, schedule)
}

func write(path string, schedule *core.RunSchedule) error {
	data, err := marshalSchedule(schedule)
	if err != nil {
		return fmt.Errorf("fileschedule: failed to marshal schedule %s: %w", schedule.ID, err)
	}
	if err := fileutil.WriteFileAtomic(path, data, filePermissions); err != nil {
		return fmt.Errorf("fileschedule: failed to write file %s: %w", path, err)
	}
	return nil
}

func readSchedule(path string) (*core.RunSchedule, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path derived from SafeName
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("fileschedule: failed to read file %s: %w", path, err)
	}
	var schedule core.RunSchedule
	if err := unmarshalYAML(data, &schedule); err != nil {
		return nil, fmt.Errorf("fileschedule: failed to parse %s: %w", path, err)
	}
	return &schedule, nil
}

func (s *Store) filePath(id string) string {
	return filepath.Join(s.baseDir, safeStem(id)+".yaml")
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

// The core types carry json tags, so YAML documents round-trip through
// JSON to keep the on-disk keys identical to the API representation.
func marshalSchedule(schedule *core.RunSchedule) ([]byte, error) {
	jsonData, err := json.Marshal(schedule)
	if err != nil {
		return nil, err
	}
	return yaml.JSONToYAML(jsonData)
}

func unmarshalYAML(data []byte, out any) error {
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, out)
}
