// Package fileenv provides a file-based implementation of
// core.EnvironmentStore. Each environment is stored as one YAML document
// at {baseDir}/{safeName}.yaml; uploaded file assets live next to it
// under {baseDir}/{safeName}.files/.
package fileenv

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
	"github.com/joho/godotenv"

	"github.com/probeflow/probeflow/internal/cmn/fileutil"
	"github.com/probeflow/probeflow/internal/cmn/logger"
	"github.com/probeflow/probeflow/internal/cmn/logger/tag"
	"github.com/probeflow/probeflow/internal/core"
)

var _ core.EnvironmentStore = (*Store)(nil)

const (
	dirPermissions  = 0o750
	filePermissions = 0o600
)

// Store implements a file-based environment store.
type Store struct {
	baseDir string
	cache   *fileutil.Cache[*core.Environment]
}

// Option is a functional option for configuring the store.
type Option func(*Store)

// WithFileCache sets a mod-time-validated cache for parsed environments.
func WithFileCache(cache *fileutil.Cache[*core.Environment]) Option {
	return func(s *Store) {
		s.cache = cache
	}
}

// New creates a file-based environment store rooted at baseDir.
func New(baseDir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(baseDir, dirPermissions); err != nil {
		return nil, fmt.Errorf("fileenv: failed to create directory %s: %w", baseDir, err)
	}
	s := &Store{baseDir: baseDir}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create stores a new environment definition. Assets that already carry
// content are written alongside it.
func (s *Store) Create(_ context.Context, env *core.Environment) error {
	if err := core.ValidateEnvironment(env); err != nil {
		return err
	}
	path := s.filePath(env.Name)
	if fileutil.FileExists(path) {
		return core.ErrEnvironmentExists
	}
	if err := s.writeAssets(env); err != nil {
		return err
	}
	return s.write(path, env)
}

// Update replaces an existing environment definition. Content files for
// assets absent from the new definition are removed.
func (s *Store) Update(_ context.Context, env *core.Environment) error {
	if err := core.ValidateEnvironment(env); err != nil {
		return err
	}
	path := s.filePath(env.Name)
	if !fileutil.FileExists(path) {
		return core.ErrEnvironmentNotFound
	}
	if err := s.writeAssets(env); err != nil {
		return err
	}
	s.pruneAssets(env)
	return s.write(path, env)
}

// Get returns the environment with file asset contents loaded and the
// optional dotenv file merged into its variables.
func (s *Store) Get(ctx context.Context, name string) (*core.Environment, error) {
	path := s.filePath(name)
	if !fileutil.FileExists(path) {
		return nil, core.ErrEnvironmentNotFound
	}
	if s.cache != nil {
		return s.cache.LoadLatest(path, func() (*core.Environment, error) {
			return s.read(ctx, path, true)
		})
	}
	return s.read(ctx, path, true)
}

// List returns all environment definitions sorted by name, without file
// asset contents. Files that cannot be parsed are logged and skipped.
func (s *Store) List(ctx context.Context) ([]*core.Environment, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("fileenv: failed to read directory %s: %w", s.baseDir, err)
	}

	var envs []*core.Environment
	for _, entry := range entries {
		if entry.IsDir() || !fileutil.IsYAMLFile(entry.Name()) {
			continue
		}
		path := filepath.Join(s.baseDir, entry.Name())
		env, err := s.read(ctx, path, false)
		if err != nil {
			logger.Warn(ctx, "Failed to load environment definition", tag.File(path), tag.Error(err))
			continue
		}
		envs = append(envs, env)
	}
	sort.Slice(envs, func(i, j int) bool { return envs[i].Name < envs[j].Name })
	return envs, nil
}

// Delete removes an environment definition and its file assets.
func (s *Store) Delete(_ context.Context, name string) error {
	path := s.filePath(name)
	if !fileutil.FileExists(path) {
		return core.ErrEnvironmentNotFound
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("fileenv: failed to delete file %s: %w", path, err)
	}
	if err := os.RemoveAll(s.assetsDir(name)); err != nil {
		return fmt.Errorf("fileenv: failed to delete file assets: %w", err)
	}
	if s.cache != nil {
		s.cache.Invalidate(path)
	}
	return nil
}

// SaveFile stores a file asset's content and registers it on the
// environment. An existing asset with the same key is replaced.
func (s *Store) SaveFile(_ context.Context, envName string, asset core.FileAsset) error {
	path := s.filePath(envName)
	if !fileutil.FileExists(path) {
		return core.ErrEnvironmentNotFound
	}
	// Parse without the dotenv merge so merged variables are never
	// written back into the document.
	env, err := parseFile(path)
	if err != nil {
		return err
	}

	if err := s.writeAssetContent(env.Name, asset); err != nil {
		return err
	}

	meta := asset
	meta.Content = nil
	replaced := false
	for i := range env.Files {
		if env.Files[i].FileKey == asset.FileKey {
			env.Files[i] = meta
			replaced = true
			break
		}
	}
	if !replaced {
		env.Files = append(env.Files, meta)
	}
	return s.write(path, env)
}

func (s *Store) write(path string, env *core.Environment) error {
	data, err := marshalEnvironment(env)
	if err != nil {
		return fmt.Errorf("fileenv: failed to marshal environment %s: %w", env.Name, err)
	}
	if err := fileutil.WriteFileAtomic(path, data, filePermissions); err != nil {
		return fmt.Errorf("fileenv: failed to write file %s: %w", path, err)
	}
	if s.cache != nil {
		s.cache.Invalidate(path)
	}
	return nil
}

// parseFile reads the environment document as stored, without the
// dotenv merge or asset contents.
func parseFile(path string) (*core.Environment, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path derived from SafeName
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrEnvironmentNotFound
		}
		return nil, fmt.Errorf("fileenv: failed to read file %s: %w", path, err)
	}
	var env core.Environment
	if err := unmarshalYAML(data, &env); err != nil {
		return nil, fmt.Errorf("fileenv: failed to parse %s: %w", path, err)
	}
	return &env, nil
}

// read parses the environment document. With contents enabled it also
// loads every asset's bytes; the dotenv merge happens in both modes so
// listings show the effective variable set.
func (s *Store) read(ctx context.Context, path string, withContents bool) (*core.Environment, error) {
	env, err := parseFile(path)
	if err != nil {
		return nil, err
	}

	s.mergeDotenv(ctx, env)

	if withContents {
		for i := range env.Files {
			content, err := os.ReadFile(s.assetPath(env.Name, env.Files[i].FileKey)) //nolint:gosec // path derived from SafeName
			if err != nil {
				logger.Warn(ctx, "Failed to load file asset content",
					tag.Environment(env.Name), tag.Key(env.Files[i].FileKey), tag.Error(err))
				continue
			}
			env.Files[i].Content = content
		}
	}
	return env, nil
}

// mergeDotenv appends dotenv entries as STATIC variables; explicitly
// defined variables win over file entries.
func (s *Store) mergeDotenv(ctx context.Context, env *core.Environment) {
	if env.VariablesFrom == "" {
		return
	}
	path := env.VariablesFrom
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.baseDir, path)
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		logger.Warn(ctx, "Failed to read dotenv file", tag.Environment(env.Name), tag.File(path), tag.Error(err))
		return
	}

	defined := make(map[string]struct{}, len(env.Variables))
	for _, v := range env.Variables {
		defined[v.Key] = struct{}{}
	}
	keys := make([]string, 0, len(vars))
	for key := range vars {
		if _, ok := defined[key]; ok {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		env.Variables = append(env.Variables, core.EnvVariable{
			Key: key, Value: vars[key], ValueType: core.ValueStatic,
		})
	}
}

// writeAssets persists the content of every asset that carries bytes.
func (s *Store) writeAssets(env *core.Environment) error {
	for _, asset := range env.Files {
		if len(asset.Content) == 0 {
			continue
		}
		if err := s.writeAssetContent(env.Name, asset); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) writeAssetContent(envName string, asset core.FileAsset) error {
	dir := s.assetsDir(envName)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("fileenv: failed to create assets directory %s: %w", dir, err)
	}
	path := s.assetPath(envName, asset.FileKey)
	if err := fileutil.WriteFileAtomic(path, asset.Content, filePermissions); err != nil {
		return fmt.Errorf("fileenv: failed to write file asset %s: %w", asset.FileKey, err)
	}
	return nil
}

// pruneAssets removes content files whose keys are absent from the
// definition.
func (s *Store) pruneAssets(env *core.Environment) {
	entries, err := os.ReadDir(s.assetsDir(env.Name))
	if err != nil {
		return
	}
	keep := make(map[string]struct{}, len(env.Files))
	for _, asset := range env.Files {
		keep[safeStem(asset.FileKey)] = struct{}{}
	}
	for _, entry := range entries {
		if _, ok := keep[entry.Name()]; !ok {
			_ = os.Remove(filepath.Join(s.assetsDir(env.Name), entry.Name()))
		}
	}
}

func (s *Store) filePath(name string) string {
	return filepath.Join(s.baseDir, safeStem(name)+".yaml")
}

func (s *Store) assetsDir(name string) string {
	return filepath.Join(s.baseDir, safeStem(name)+".files")
}

func (s *Store) assetPath(envName, fileKey string) string {
	return filepath.Join(s.assetsDir(envName), safeStem(fileKey))
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
func marshalEnvironment(env *core.Environment) ([]byte, error) {
	jsonData, err := json.Marshal(env)
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
