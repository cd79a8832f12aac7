// Package session tracks the model a user is working with across commands
// of an interactive run.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/spigell/cv-classifier/internal/logger"
	"github.com/spigell/cv-classifier/internal/model"
	"github.com/spigell/cv-classifier/internal/prediction"
)

// ErrNoActiveModel is returned when a prediction is requested before a
// model was selected.
var ErrNoActiveModel = errors.New("no active model")

// Registry is the part of the model registry a session needs.
type Registry interface {
	Load(name string, family model.Family) (model.Model, error)
	Delete(name string, family model.Family) error
	Dir(family model.Family) string
	KeyOf(path string) (string, model.Family, bool)
	Path(name string, family model.Family, artifact string) string
}

// Key identifies a saved model.
type Key struct {
	Name   string
	Family model.Family
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.Family, k.Name)
}

// Session holds the active model and caches loaded ones.
type Session struct {
	registry Registry
	cache    *lru.Cache[Key, model.Model]
	logger   *zap.Logger

	mu     sync.Mutex
	active model.Model
	key    *Key
}

// New returns a session caching up to size loaded models.
func New(registry Registry, size int, log *zap.Logger) (*Session, error) {
	if size <= 0 {
		size = 1
	}
	cache, err := lru.New[Key, model.Model](size)
	if err != nil {
		return nil, fmt.Errorf("create model cache: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{registry: registry, cache: cache, logger: log}, nil
}

// Activate loads the model stored under key and makes it active.
func (s *Session) Activate(key Key) (model.Model, error) {
	m, ok := s.cache.Get(key)
	if !ok {
		var err error
		if m, err = s.registry.Load(key.Name, key.Family); err != nil {
			return nil, err
		}
		s.cache.Add(key, m)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active, s.key = m, &key
	s.logger.Info("model activated", logger.ModelFields(key.Name, string(key.Family), "")...)
	return m, nil
}

// Use makes a freshly trained model active. A nil key marks it unsaved.
func (s *Session) Use(m model.Model, key *Key) {
	if key != nil {
		s.cache.Add(*key, m)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active, s.key = m, key
}

// Active returns the active model and its key. The key is nil for an
// unsaved model.
func (s *Session) Active() (model.Model, *Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.key
}

// Predict classifies text with the active model.
func (s *Session) Predict(ctx context.Context, text string) (*prediction.Result, error) {
	m, _ := s.Active()
	if m == nil {
		return nil, ErrNoActiveModel
	}
	return prediction.Predict(ctx, m, text), nil
}

// Delete removes a saved model and forgets it.
func (s *Session) Delete(key Key) error {
	if err := s.registry.Delete(key.Name, key.Family); err != nil {
		return err
	}
	s.forget(key)
	return nil
}

func (s *Session) forget(key Key) {
	s.cache.Remove(key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil && *s.key == key {
		s.active, s.key = nil, nil
		s.logger.Info("active model cleared", logger.ModelFields(key.Name, string(key.Family), "")...)
	}
}

// Watch follows the registry directories and forgets models whose metadata
// disappears. The directories must exist. Watching stops when ctx is done.
func (s *Session) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	for _, family := range []model.Family{model.Classical, model.DeepLearning} {
		dir := s.registry.Dir(family)
		if err := w.Add(dir); err != nil {
			w.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				s.handle(ev)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Warn("model directory watch error", zap.Error(err))
			}
		}
	}()
	return nil
}

func (s *Session) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	name, family, ok := s.registry.KeyOf(ev.Name)
	if !ok {
		return
	}
	key := Key{Name: name, Family: family}

	// A save replaces the metadata file; the model stays usable when it
	// is back by the time the event is handled.
	s.cache.Remove(key)
	if _, err := os.Stat(s.registry.Path(name, family, model.ArtifactMetadata)); err == nil {
		return
	}
	s.logger.Info("model removed from disk", logger.ModelFields(name, string(family), "")...)
	s.forget(key)
}
