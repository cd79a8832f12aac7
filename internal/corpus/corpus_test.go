package corpus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestClean(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lower case and symbols", in: "Ingeniero  AGRÓNOMO!\n\tRiego*", want: "ingeniero agrónomo riego"},
		{name: "keeps contact punctuation", in: "Mail: ana@agro.es (+34) 600-100", want: "mail: ana@agro.es (+34) 600-100"},
		{name: "too short", in: " ab ", want: ""},
		{name: "only symbols", in: "### ***", want: ""},
		{name: "decomposed accents are composed", in: "AGRONOMI\u0301A", want: "agronom\u00eda"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Clean(tt.in); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestFilterDropsUnusableSamples(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	c := New([]Sample{
		{Name: "a.txt", Profession: "Agronomist", Text: "soil", Status: Success},
		{Name: "b.txt", Profession: "Agronomist", Status: Failed},
		{Name: "c.txt", Profession: "Nurse", Text: "   ", Status: Success},
		{Name: "d.txt", Profession: "Nurse", Text: "patients", Status: Success},
	})

	usable, err := c.Filter(context.Background(), zap.New(core), DefaultFilters())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(usable) != 2 || usable[0].Name != "a.txt" || usable[1].Name != "d.txt" {
		t.Fatalf("unexpected usable samples: %+v", usable)
	}
	if c.Len() != 4 {
		t.Fatalf("filtering must not modify the corpus")
	}

	steps := logs.FilterMessage("corpus filter step").All()
	if len(steps) != 2 {
		t.Fatalf("expected 2 step entries, got %d", len(steps))
	}
	fields := steps[1].ContextMap()
	if fields["name"] != "empty_text" || fields["dropped"] != int64(1) || fields["left"] != int64(2) {
		t.Fatalf("unexpected step fields: %v", fields)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	agro := Sample{Profession: "Agronomist", Text: "soil", Status: Success}
	dev := Sample{Profession: "Developer", Text: "golang", Status: Success}

	tests := []struct {
		name        string
		professions []string
		samples     []Sample
		usable      []Sample
		wantErr     error
	}{
		{name: "two classes", usable: []Sample{agro, dev}},
		{name: "no samples", wantErr: ErrInsufficientClasses},
		{name: "one class", usable: []Sample{agro, agro}, wantErr: ErrInsufficientClasses},
		{
			name:        "requested profession without samples",
			professions: []string{"Agronomist", "Developer", "Nurse"},
			usable:      []Sample{agro, dev},
			wantErr:     ErrEmptyLabel,
		},
		{
			name:    "sampled profession without usable samples",
			samples: []Sample{agro, dev, {Profession: "Chef", Status: Failed}, {Profession: "Chef", Text: "   ", Status: Success}},
			usable:  []Sample{agro, dev},
			wantErr: ErrEmptyLabel,
		},
		{
			name:    "blank label of a failed sample is ignored",
			samples: []Sample{agro, dev, {Status: Failed}},
			usable:  []Sample{agro, dev},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(&Corpus{Professions: tt.professions, Samples: tt.samples}, tt.usable)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

type failingSource struct {
	*PlainText
	fail string
}

func (f failingSource) ExtractAndClean(ctx context.Context, path string) (string, error) {
	if path == f.fail {
		return "", fmt.Errorf("broken document")
	}
	return f.PlainText.ExtractAndClean(ctx, path)
}

func TestLoadDirectory(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/cvs/Agronomist/one.txt":        "Cultivos y RIEGO por goteo",
		"/cvs/Agronomist/two.TXT":        "Fertilizantes, maquinaria agrícola",
		"/cvs/Agronomist/scan.pdf":       "binary",
		"/cvs/Agronomist/empty.txt":      "!!",
		"/cvs/Software Engineer/go.txt":  "Golang, Kubernetes & Docker",
		"/cvs/Software Engineer/bad.txt": "unreadable",
		"/cvs/notes.txt":                 "ignored",
	}
	for path, content := range files {
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}

	var (
		mu       sync.Mutex
		progress []string
	)
	c, err := LoadDirectory(context.Background(), fs, "/cvs", LoadOptions{
		Source:  failingSource{PlainText: NewPlainText(fs), fail: "/cvs/Software Engineer/bad.txt"},
		Workers: 2,
		Progress: func(msg string) {
			mu.Lock()
			defer mu.Unlock()
			progress = append(progress, msg)
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(c.Professions, []string{"Agronomist", "Software Engineer"}) {
		t.Fatalf("unexpected professions %v", c.Professions)
	}

	statuses := map[string]Status{}
	for _, s := range c.Samples {
		statuses[s.Profession+"/"+s.Name] = s.Status
	}
	want := map[string]Status{
		"Agronomist/empty.txt":      Failed,
		"Agronomist/one.txt":        Success,
		"Agronomist/two.TXT":        Success,
		"Software Engineer/bad.txt": Failed,
		"Software Engineer/go.txt":  Success,
	}
	if !reflect.DeepEqual(statuses, want) {
		t.Fatalf("unexpected samples %v", statuses)
	}

	if c.Samples[0].Profession != "Agronomist" {
		t.Fatalf("samples must be grouped in profession order")
	}

	sort.Strings(progress)
	if !reflect.DeepEqual(progress, []string{"processing profession Agronomist", "processing profession Software Engineer"}) {
		t.Fatalf("unexpected progress %v", progress)
	}
}

func TestLoadDirectoryMissingRoot(t *testing.T) {
	t.Parallel()

	if _, err := LoadDirectory(context.Background(), afero.NewMemMapFs(), "missing", LoadOptions{}); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

func TestRestrict(t *testing.T) {
	t.Parallel()

	c := New([]Sample{
		{Profession: "Agronomist", Text: "soil crops", Status: Success},
		{Profession: "Nurse", Text: "ward care", Status: Success},
		{Profession: "Welder", Text: "lessons class", Status: Success},
	})

	got := c.Restrict([]string{"Agronomist", "Nurse", "Pilot"})
	if len(got.Samples) != 2 || got.Samples[0].Profession != "Agronomist" || got.Samples[1].Profession != "Nurse" {
		t.Fatalf("unexpected samples %+v", got.Samples)
	}
	if err := Validate(got, got.Samples); !errors.Is(err, ErrEmptyLabel) {
		t.Fatalf("expected ErrEmptyLabel for the missing profession, got %v", err)
	}
	if len(c.Samples) != 3 {
		t.Fatal("original corpus modified")
	}
}
