package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap/zaptest"

	"github.com/spigell/cv-classifier/internal/classifier"
	"github.com/spigell/cv-classifier/internal/features"
	"github.com/spigell/cv-classifier/internal/model"
	"github.com/spigell/cv-classifier/internal/registry"
)

func trained(t *testing.T) model.Model {
	t.Helper()

	texts := []string{"soil crops harvest", "tractor soil crops", "golang docker services", "python docker cloud"}
	labels := []string{"Agronomist", "Agronomist", "Software Engineer", "Software Engineer"}

	vectorizer := features.NewVectorizer()
	x, err := vectorizer.FitTransform(texts)
	if err != nil {
		t.Fatalf("fit vectorizer: %v", err)
	}
	codec := features.FitLabels(labels)
	y, _ := codec.EncodeAll(labels)
	cls, _ := classifier.New(classifier.NaiveBayes)
	if err := cls.Fit(x, y, codec.Len(), vectorizer.Len()); err != nil {
		t.Fatalf("fit classifier: %v", err)
	}
	return &model.ClassicalModel{Vectorizer: vectorizer, Classifier: cls, Codec: codec, CreatedAt: time.Now()}
}

// countingRegistry counts loads that reach the store.
type countingRegistry struct {
	*registry.Registry
	loads int
}

func (c *countingRegistry) Load(name string, family model.Family) (model.Model, error) {
	c.loads++
	return c.Registry.Load(name, family)
}

func memRegistry(t *testing.T) *countingRegistry {
	t.Helper()
	r, err := registry.New(afero.NewMemMapFs(), "models", "deep_models")
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	for _, name := range []string{"agro", "other"} {
		if _, err := r.Save(trained(t), name); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}
	return &countingRegistry{Registry: r}
}

func TestActivateUsesCache(t *testing.T) {
	t.Parallel()

	reg := memRegistry(t)
	s, err := New(reg, 2, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	key := Key{Name: "agro", Family: model.Classical}
	if _, err := s.Activate(key); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := s.Activate(Key{Name: "other", Family: model.Classical}); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := s.Activate(key); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if reg.loads != 2 {
		t.Fatalf("expected 2 loads, got %d", reg.loads)
	}

	_, active := s.Active()
	if active == nil || *active != key {
		t.Fatalf("unexpected active key %v", active)
	}

	res, err := s.Predict(context.Background(), "soil harvest crops")
	if err != nil || res.Error || res.PredictedProfession != "Agronomist" {
		t.Fatalf("unexpected prediction %+v, %v", res, err)
	}
}

func TestActivateMissingModel(t *testing.T) {
	t.Parallel()

	s, _ := New(memRegistry(t), 2, nil)
	if _, err := s.Activate(Key{Name: "missing", Family: model.Classical}); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if m, _ := s.Active(); m != nil {
		t.Fatal("failed activation must not set a model")
	}
}

func TestPredictWithoutActiveModel(t *testing.T) {
	t.Parallel()

	s, _ := New(memRegistry(t), 2, nil)
	if _, err := s.Predict(context.Background(), "text"); !errors.Is(err, ErrNoActiveModel) {
		t.Fatalf("expected ErrNoActiveModel, got %v", err)
	}
}

func TestDeleteClearsActiveModel(t *testing.T) {
	t.Parallel()

	reg := memRegistry(t)
	s, _ := New(reg, 2, nil)
	agro := Key{Name: "agro", Family: model.Classical}
	if _, err := s.Activate(agro); err != nil {
		t.Fatalf("activate: %v", err)
	}

	if err := s.Delete(Key{Name: "other", Family: model.Classical}); err != nil {
		t.Fatalf("delete other: %v", err)
	}
	if m, _ := s.Active(); m == nil {
		t.Fatal("deleting another model cleared the active one")
	}

	if err := s.Delete(agro); err != nil {
		t.Fatalf("delete active: %v", err)
	}
	if m, key := s.Active(); m != nil || key != nil {
		t.Fatal("active model not cleared")
	}
	if _, err := s.Activate(agro); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("deleted model still served from cache: %v", err)
	}
}

func TestUseUnsavedModel(t *testing.T) {
	t.Parallel()

	s, _ := New(memRegistry(t), 2, nil)
	s.Use(trained(t), nil)
	m, key := s.Active()
	if m == nil || key != nil {
		t.Fatalf("unexpected active state %v %v", m, key)
	}
}

func TestWatchClearsModelRemovedOnDisk(t *testing.T) {
	dir := t.TempDir()
	classical, deep := filepath.Join(dir, "models"), filepath.Join(dir, "deep_models")
	for _, d := range []string{classical, deep} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	reg, err := registry.New(afero.NewOsFs(), classical, deep)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if _, err := reg.Save(trained(t), "agro"); err != nil {
		t.Fatalf("save: %v", err)
	}

	s, _ := New(reg, 2, zaptest.NewLogger(t))
	if _, err := s.Activate(Key{Name: "agro", Family: model.Classical}); err != nil {
		t.Fatalf("activate: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Watch(ctx); err != nil {
		t.Fatalf("watch: %v", err)
	}

	if err := os.Remove(reg.Path("agro", model.Classical, model.ArtifactMetadata)); err != nil {
		t.Fatalf("remove: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if m, _ := s.Active(); m == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("active model not cleared after metadata removal")
}
