// Package filesuite provides a file-based implementation of
// core.SuiteStore. Each suite is stored as one YAML document at
// {baseDir}/{safeName}.yaml.
package filesuite

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-yaml"

	"github.com/probeflow/probeflow/internal/cmn/fileutil"
	"github.com/probeflow/probeflow/internal/cmn/logger"
	"github.com/probeflow/probeflow/internal/cmn/logger/tag"
	"github.com/probeflow/probeflow/internal/core"
)

var _ core.SuiteStore = (*Store)(nil)

const (
	dirPermissions  = 0o750
	filePermissions = 0o600
)

// Store implements a file-based suite store.
type Store struct {
	baseDir string
	cache   *fileutil.Cache[*core.TestSuite]
}

// Option is a functional option for configuring the store.
type Option func(*Store)

// WithFileCache sets a mod-time-validated cache for parsed suites.
func WithFileCache(cache *fileutil.Cache[*core.TestSuite]) Option {
	return func(s *Store) {
		s.cache = cache
	}
}

// New creates a file-based suite store rooted at baseDir.
func New(baseDir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(baseDir, dirPermissions); err != nil {
		return nil, fmt.Errorf("filesuite: failed to create directory %s: %w", baseDir, err)
	}
	s := &Store{baseDir: baseDir}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create stores a new suite definition. Validation runs before anything
// touches disk, so a rejected definition leaves the store unchanged.
func (s *Store) Create(_ context.Context, suite *core.TestSuite) error {
	if err := core.ValidateSuite(suite); err != nil {
		return err
	}
	path := s.filePath(suite.Name)
	if fileutil.FileExists(path) {
		return core.ErrSuiteExists
	}
	return s.write(path, suite)
}

// Update replaces an existing suite definition. Like Create, validation
// failures leave the stored definition untouched.
func (s *Store) Update(_ context.Context, suite *core.TestSuite) error {
	if err := core.ValidateSuite(suite); err != nil {
		return err
	}
	path := s.filePath(suite.Name)
	if !fileutil.FileExists(path) {
		return core.ErrSuiteNotFound
	}
	return s.write(path, suite)
}

// Get returns the suite with the given name.
func (s *Store) Get(_ context.Context, name string) (*core.TestSuite, error) {
	path := s.filePath(name)
	if !fileutil.FileExists(path) {
		return nil, core.ErrSuiteNotFound
	}
	if s.cache != nil {
		return s.cache.LoadLatest(path, func() (*core.TestSuite, error) {
			return readSuite(path)
		})
	}
	return readSuite(path)
}

// List returns all suite definitions sorted by name. Files that cannot
// be parsed are logged and skipped.
func (s *Store) List(ctx context.Context) ([]*core.TestSuite, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("filesuite: failed to read directory %s: %w", s.baseDir, err)
	}

	var suites []*core.TestSuite
	for _, entry := range entries {
		if entry.IsDir() || !fileutil.IsYAMLFile(entry.Name()) {
			continue
		}
		path := filepath.Join(s.baseDir, entry.Name())
		suite, err := readSuite(path)
		if err != nil {
			logger.Warn(ctx, "Failed to load suite definition", tag.File(path), tag.Error(err))
			continue
		}
		suites = append(suites, suite)
	}
	sort.Slice(suites, func(i, j int) bool { return suites[i].Name < suites[j].Name })
	return suites, nil
}

// Delete removes a suite definition.
func (s *Store) Delete(_ context.Context, name string) error {
	path := s.filePath(name)
	if !fileutil.FileExists(path) {
		return core.ErrSuiteNotFound
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("filesuite: failed to delete file %s: %w", path, err)
	}
	if s.cache != nil {
		s.cache.Invalidate(path)
	}
	return nil
}

func (s *Store) write(path string, suite *core.TestSuite) error {
	data, err := marshalSuite(suite)
	if err != nil {
		return fmt.Errorf("filesuite: failed to marshal suite %s: %w", suite.Name, err)
	}
	if err := fileutil.WriteFileAtomic(path, data, filePermissions); err != nil {
		return fmt.Errorf("filesuite: failed to write file %s: %w", path, err)
	}
	if s.cache != nil {
		s.cache.Invalidate(path)
	}
	return nil
}

// filePath derives the suite's file path from its name. When SafeName
// has to rewrite the name, a short hash keeps distinct names from
// colliding on the same file.
func (s *Store) filePath(name string) string {
	safe := fileutil.SafeName(name)
	if safe != name {
		h := sha256.Sum256([]byte(name))
		safe = safe + "-" + hex.EncodeToString(h[:])[:8]
	}
	return filepath.Join(s.baseDir, safe+".yaml")
}

func readSuite(path string) (*core.TestSuite, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path derived from SafeName
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrSuiteNotFound
		}
		return nil, fmt.Errorf("filesuite: failed to read file %s: %w", path, err)
	}
	var suite core.TestSuite
	if err := unmarshalYAML(data, &suite); err != nil {
		return nil, fmt.Errorf("filesuite: failed to parse %s: %w", path, err)
	}
	return &suite, nil
}

// The core types carry json tags, so YAML documents round-trip through
// JSON to keep the on-disk keys identical to the API representation.
func marshalSuite(suite *core.TestSuite) ([]byte, error) {
	jsonData, err := json.Marshal(suite)
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
