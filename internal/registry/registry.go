// Package registry persists trained models under a name, separately for
// every model family.
//
// Each model is a set of JSON artifacts sharing the prefix <name>_ inside the
// family directory. The metadata artifact is written last and removed first,
// so a model is visible only while its set is complete. Concurrent Save and
// Delete calls for the same key need external serialization.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/spigell/cv-classifier/internal/logger"
	"github.com/spigell/cv-classifier/internal/model"
)

const (
	artifactExt    = ".json"
	metadataSuffix = "_" + model.ArtifactMetadata + artifactExt
	maxNameLength  = 100
)

var validName = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N} ._-]*$`)

// Registry stores models on an afero filesystem.
type Registry struct {
	fs       afero.Fs
	dirs     map[model.Family]string
	decoders map[model.Family]model.Decoder
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithDeepDecoder enables loading of deep-learning models.
func WithDeepDecoder(d model.Decoder) Option {
	return func(r *Registry) {
		if d != nil {
			r.decoders[model.DeepLearning] = d
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock sets the source of creation dates.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New returns a registry keeping classical models in classicalDir and
// deep-learning models in deepDir. The directories must differ since both
// families name their artifacts the same way.
func New(fsys afero.Fs, classicalDir, deepDir string, opts ...Option) (*Registry, error) {
	if filepath.Clean(classicalDir) == filepath.Clean(deepDir) {
		return nil, fmt.Errorf("%w: %s", ErrSharedDirectory, classicalDir)
	}

	r := &Registry{
		fs: fsys,
		dirs: map[model.Family]string{
			model.Classical:    classicalDir,
			model.DeepLearning: deepDir,
		},
		decoders: map[model.Family]model.Decoder{
			model.Classical: func(meta model.Metadata, artifacts map[string][]byte) (model.Model, error) {
				return model.DecodeClassical(meta, artifacts)
			},
		},
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Dir returns the directory holding models of family f.
func (r *Registry) Dir(f model.Family) string {
	return r.dirs[f]
}

// Path returns the file of one artifact of a model.
func (r *Registry) Path(name string, f model.Family, artifact string) string {
	return filepath.Join(r.dirs[f], name+"_"+artifact+artifactExt)
}

// KeyOf reports which model a metadata file path belongs to.
func (r *Registry) KeyOf(path string) (string, model.Family, bool) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, metadataSuffix) {
		return "", "", false
	}
	dir := filepath.Clean(filepath.Dir(path))
	for family, d := range r.dirs {
		if filepath.Clean(d) == dir {
			return strings.TrimSuffix(base, metadataSuffix), family, true
		}
	}
	return "", "", false
}

// ValidateName reports whether name can be used as a registry key.
func ValidateName(name string) error {
	if name == "" || len(name) > maxNameLength || !validName.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Save stores m under name in its family, replacing any model with the same
// key. The returned metadata carries the name and the creation date.
func (r *Registry) Save(m model.Model, name string) (model.Metadata, error) {
	if err := ValidateName(name); err != nil {
		return model.Metadata{}, err
	}
	family := m.Family()
	dir, ok := r.dirs[family]
	if !ok {
		return model.Metadata{}, fmt.Errorf("unknown model family %q", family)
	}

	artifacts, err := m.Artifacts()
	if err != nil {
		return model.Metadata{}, fmt.Errorf("encode model: %w", err)
	}

	meta := m.Metadata()
	meta.Name = name
	meta.DisplayName = name
	meta.CreationDate = r.now().Format(model.TimeLayout)
	encoded, err := model.EncodeMetadata(meta)
	if err != nil {
		return model.Metadata{}, fmt.Errorf("encode metadata: %w", err)
	}

	if err := r.fs.MkdirAll(dir, 0o755); err != nil {
		return model.Metadata{}, fmt.Errorf("create %s: %w", dir, err)
	}

	// Hide the previous version while its artifacts are replaced.
	if err := r.remove(r.Path(name, family, model.ArtifactMetadata)); err != nil {
		return model.Metadata{}, err
	}
	for _, artifact := range model.ArtifactsOf(family) {
		if artifact == model.ArtifactMetadata {
			continue
		}
		data, ok := artifacts[artifact]
		if !ok {
			return model.Metadata{}, fmt.Errorf("model has no %s artifact", artifact)
		}
		if err := r.write(r.Path(name, family, artifact), data); err != nil {
			return model.Metadata{}, err
		}
	}
	if err := r.write(r.Path(name, family, model.ArtifactMetadata), encoded); err != nil {
		return model.Metadata{}, err
	}

	r.logger.Info("model saved", logger.ModelFields(name, string(family), meta.ModelType)...)
	return meta, nil
}

// List returns the metadata of every complete model, newest first, then by
// family and name. Incomplete or unreadable models are skipped.
func (r *Registry) List() ([]model.Metadata, error) {
	var res []model.Metadata
	for _, family := range []model.Family{model.Classical, model.DeepLearning} {
		entries, err := afero.ReadDir(r.fs, r.dirs[family])
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", r.dirs[family], err)
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), metadataSuffix) {
				continue
			}
			name := strings.TrimSuffix(entry.Name(), metadataSuffix)
			meta, _, err := r.artifacts(name, family)
			if err != nil {
				r.logger.Debug("skipping model", append(logger.ModelFields(name, string(family), ""), zap.Error(err))...)
				continue
			}
			res = append(res, meta)
		}
	}

	sort.SliceStable(res, func(i, j int) bool {
		if res[i].CreationDate != res[j].CreationDate {
			return res[i].CreationDate > res[j].CreationDate
		}
		if res[i].Family() != res[j].Family() {
			return res[i].Family() < res[j].Family()
		}
		return res[i].Name < res[j].Name
	})
	return res, nil
}

// artifacts reads the complete artifact set of a model. Every artifact must
// hold well-formed JSON, so a truncated file makes the whole set unusable.
func (r *Registry) artifacts(name string, family model.Family) (model.Metadata, map[string][]byte, error) {
	res := make(map[string][]byte)
	for _, artifact := range model.ArtifactsOf(family) {
		data, err := afero.ReadFile(r.fs, r.Path(name, family, artifact))
		if err != nil {
			return model.Metadata{}, nil, fmt.Errorf("%w: %s artifact: %v", ErrCorruptModel, artifact, err)
		}
		if !json.Valid(data) {
			return model.Metadata{}, nil, fmt.Errorf("%w: %s artifact is not valid JSON", ErrCorruptModel, artifact)
		}
		res[artifact] = data
	}

	meta, err := model.DecodeMetadata(res[model.ArtifactMetadata])
	if err != nil {
		return model.Metadata{}, nil, fmt.Errorf("%w: %v", ErrCorruptModel, err)
	}
	if meta.Family() != family {
		return model.Metadata{}, nil, fmt.Errorf("%w: %s metadata stored with %s models", ErrCorruptModel, meta.Family(), family)
	}
	meta.Name = name
	delete(res, model.ArtifactMetadata)
	return meta, res, nil
}

// Load restores the model stored under name in family. A missing or
// incomplete model yields ErrNotFound; an incomplete one also matches
// ErrCorruptModel.
func (r *Registry) Load(name string, family model.Family) (model.Model, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if _, ok := r.dirs[family]; !ok {
		return nil, fmt.Errorf("unknown model family %q", family)
	}
	decode, ok := r.decoders[family]
	if !ok {
		return nil, fmt.Errorf("%w: cannot load %q", ErrBackendUnavailable, name)
	}

	if _, err := r.fs.Stat(r.Path(name, family, model.ArtifactMetadata)); err != nil {
		return nil, fmt.Errorf("%w: %s model %q", ErrNotFound, family, name)
	}
	meta, artifacts, err := r.artifacts(name, family)
	if err != nil {
		return nil, fmt.Errorf("%w: %s model %q: %w", ErrNotFound, family, name, err)
	}

	m, err := decode(meta, artifacts)
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s model %q: %w", ErrCorruptModel, family, name, err)
	}

	r.logger.Info("model loaded", logger.ModelFields(name, string(family), meta.ModelType)...)
	return m, nil
}

// Delete removes the model stored under name in family.
func (r *Registry) Delete(name string, family model.Family) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if _, ok := r.dirs[family]; !ok {
		return fmt.Errorf("unknown model family %q", family)
	}

	metadata := r.Path(name, family, model.ArtifactMetadata)
	if _, err := r.fs.Stat(metadata); err != nil {
		return fmt.Errorf("%w: %s model %q", ErrNotFound, family, name)
	}
	if err := r.remove(metadata); err != nil {
		return err
	}
	for _, artifact := range model.ArtifactsOf(family) {
		if err := r.remove(r.Path(name, family, artifact)); err != nil {
			return err
		}
	}

	r.logger.Info("model deleted", logger.ModelFields(name, string(family), "")...)
	return nil
}

// write replaces path atomically through a temporary file in the same
// directory.
func (r *Registry) write(path string, data []byte) error {
	tmp, err := afero.TempFile(r.fs, filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temporary file for %s: %w", path, err)
	}
	name := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = r.fs.Remove(name)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = r.fs.Remove(name)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := r.fs.Rename(name, path); err != nil {
		_ = r.fs.Remove(name)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func (r *Registry) remove(path string) error {
	if err := r.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
