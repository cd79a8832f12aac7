package history

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spigell/cv-classifier/internal/classifier"
	"github.com/spigell/cv-classifier/internal/model"
	"github.com/spigell/cv-classifier/internal/training"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndList(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	first := FromReport(&training.Report{
		Family:       model.Classical,
		Algorithm:    classifier.NaiveBayes,
		ModelType:    "Naive Bayes",
		Accuracy:     0.5,
		TrainCount:   4,
		TestCount:    2,
		FeatureCount: 31,
		Professions:  []string{"Agronomist", "Software Engineer"},
		Duration:     1500 * time.Millisecond,
	})
	first.TrainedAt = base
	first, err := s.Record(ctx, first)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected a run id")
	}

	second, err := s.Record(ctx, Run{
		Family:      string(model.DeepLearning),
		ModelType:   "Deep Learning (test embeddings)",
		Accuracy:    1,
		TrainCount:  4,
		TestCount:   4,
		Professions: []string{"Agronomist", "Nurse"},
		Degraded:    true,
		TrainedAt:   base.Add(500 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("run ids must be unique")
	}

	if err := s.MarkSaved(ctx, first.ID, "agro"); err != nil {
		t.Fatalf("mark saved: %v", err)
	}

	runs, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != second.ID || runs[1].ID != first.ID {
		t.Fatalf("unexpected order %+v", runs)
	}

	got := runs[1]
	first.ModelName = "agro"
	if !reflect.DeepEqual(got, first) {
		t.Fatalf("run = %+v, want %+v", got, first)
	}
	if !runs[0].Degraded || runs[0].Algorithm != "" {
		t.Fatalf("unexpected deep run %+v", runs[0])
	}

	limited, err := s.List(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected one run, got %v, %v", limited, err)
	}
}

func TestMarkSavedUnknownRun(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	if err := s.MarkSaved(context.Background(), "missing", "x"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}
