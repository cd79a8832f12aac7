package training

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/cv-classifier/internal/classifier"
	"github.com/spigell/cv-classifier/internal/corpus"
	"github.com/spigell/cv-classifier/internal/deep"
	"github.com/spigell/cv-classifier/internal/model"
)

func sample(profession, text string) corpus.Sample {
	return corpus.Sample{Profession: profession, Text: text, Status: corpus.Success}
}

func twoProfessions() *corpus.Corpus {
	return corpus.New([]corpus.Sample{
		sample("Software Engineer", "golang kubernetes docker microservices backend"),
		sample("Agronomist", "soil crops irrigation harvest fertilizer"),
		sample("Software Engineer", "python docker cloud services api backend"),
		sample("Agronomist", "crops soil agronomy field harvest tractor"),
		sample("Software Engineer", "golang services api cloud ci pipelines"),
		sample("Agronomist", "irrigation fertilizer soil crops greenhouse"),
	})
}

func TestStratifiedSplit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		y         []int
		classes   int
		wantTrain []int
		wantTest  []int
	}{
		{name: "three per class", y: []int{0, 1, 0, 1, 0, 1}, classes: 2, wantTrain: []int{2, 2}, wantTest: []int{1, 1}},
		{name: "uneven classes", y: []int{0, 0, 0, 0, 1, 1, 1, 1, 1, 1}, classes: 2, wantTrain: []int{3, 5}, wantTest: []int{1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, err := stratifiedSplit(tt.y, tt.classes, DefaultTestSize, rand.New(rand.NewSource(DefaultSeed)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if s.degraded {
				t.Fatal("split should not be degraded")
			}
			if got := countPerClass(tt.y, s.train, tt.classes); !reflect.DeepEqual(got, tt.wantTrain) {
				t.Fatalf("train per class = %v, want %v", got, tt.wantTrain)
			}
			if got := countPerClass(tt.y, s.test, tt.classes); !reflect.DeepEqual(got, tt.wantTest) {
				t.Fatalf("test per class = %v, want %v", got, tt.wantTest)
			}

			seen := make(map[int]bool)
			for _, i := range append(append([]int{}, s.train...), s.test...) {
				if seen[i] {
					t.Fatalf("sample %d used twice", i)
				}
				seen[i] = true
			}
		})
	}
}

func countPerClass(y, idx []int, classes int) []int {
	res := make([]int, classes)
	for _, i := range idx {
		res[y[i]]++
	}
	return res
}

func TestStratifiedSplitIsDeterministic(t *testing.T) {
	t.Parallel()

	y := []int{0, 1, 2, 0, 1, 2, 0, 1, 2, 0, 1, 2}
	a, err := stratifiedSplit(y, 3, DefaultTestSize, rand.New(rand.NewSource(DefaultSeed)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := stratifiedSplit(y, 3, DefaultTestSize, rand.New(rand.NewSource(DefaultSeed)))
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("splits differ: %v vs %v", a, b)
	}
}

func TestStratifiedSplitDegenerate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		y       []int
		classes int
	}{
		{name: "test part smaller than professions", y: []int{0, 0, 0, 1, 1}, classes: 2},
		{name: "singleton profession", y: []int{0, 0, 0, 0, 0, 0, 0, 0, 0, 1}, classes: 2},
		{name: "three professions in six samples", y: []int{0, 0, 1, 1, 2, 2}, classes: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := stratifiedSplit(tt.y, tt.classes, DefaultTestSize, rand.New(rand.NewSource(DefaultSeed)))
			if !errors.Is(err, ErrDegenerateSplit) {
				t.Fatalf("expected ErrDegenerateSplit, got %v", err)
			}
		})
	}
}

func TestStratifiedSplitDegradedForTinyCorpus(t *testing.T) {
	t.Parallel()

	s, err := stratifiedSplit([]int{0, 1, 0, 1}, 2, DefaultTestSize, rand.New(rand.NewSource(DefaultSeed)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.degraded {
		t.Fatal("expected degraded split")
	}
	if !reflect.DeepEqual(s.train, []int{0, 1, 2, 3}) || !reflect.DeepEqual(s.test, s.train) {
		t.Fatalf("expected full corpus in both parts, got %v / %v", s.train, s.test)
	}
}

func TestApproximateMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		counts []int
		draws  int
		want   []int
	}{
		{name: "exact shares", counts: []int{3, 3}, draws: 4, want: []int{2, 2}},
		{name: "tie goes to lower class", counts: []int{3, 3}, draws: 3, want: []int{2, 1}},
		{name: "largest fraction first", counts: []int{4, 6}, draws: 8, want: []int{3, 5}},
		{name: "all draws", counts: []int{1, 2}, draws: 3, want: []int{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := approximateMode(tt.counts, tt.draws); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("approximateMode(%v, %d) = %v, want %v", tt.counts, tt.draws, got, tt.want)
			}
		})
	}
}

func TestClassReport(t *testing.T) {
	t.Parallel()

	got := classReport([]int{0, 0, 1, 1}, []int{0, 1, 1, 1}, []string{"Agronomist", "Nurse"})
	want := []ClassMetrics{
		{Profession: "Agronomist", Precision: 1, Recall: 0.5, F1: 2.0 / 3.0, Support: 2},
		{Profession: "Nurse", Precision: 2.0 / 3.0, Recall: 1, F1: 0.8, Support: 2},
	}
	if len(got) != len(want) {
		t.Fatalf("unexpected report %+v", got)
	}
	for i := range want {
		if got[i].Profession != want[i].Profession || got[i].Support != want[i].Support ||
			!near(got[i].Precision, want[i].Precision) || !near(got[i].Recall, want[i].Recall) || !near(got[i].F1, want[i].F1) {
			t.Fatalf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if r := classReport([]int{1, 1}, []int{1, 0}, []string{"Agronomist", "Nurse"}); r != nil {
		t.Fatalf("expected no report for a single class truth, got %+v", r)
	}
	if acc := accuracy([]int{0, 0, 1, 1}, []int{0, 1, 1, 1}); acc != 0.75 {
		t.Fatalf("accuracy = %v, want 0.75", acc)
	}
}

func near(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}

func TestTrainNaiveBayes(t *testing.T) {
	t.Parallel()

	var progress []string
	trainer := New(zaptest.NewLogger(t), WithProgress(func(msg string) { progress = append(progress, msg) }))

	report, err := trainer.Train(context.Background(), twoProfessions(), classifier.NaiveBayes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(report.Professions, []string{"Agronomist", "Software Engineer"}) {
		t.Fatalf("unexpected professions %v", report.Professions)
	}
	if report.TrainCount != 4 || report.TestCount != 2 || report.Degraded {
		t.Fatalf("unexpected split %d/%d degraded=%v", report.TrainCount, report.TestCount, report.Degraded)
	}
	if report.Family != model.Classical || report.ModelType != "Naive Bayes" || report.Algorithm != classifier.NaiveBayes {
		t.Fatalf("unexpected model description %+v", report)
	}
	if report.FeatureCount == 0 || report.FeatureCount != report.Model.Metadata().NumFeatures {
		t.Fatalf("unexpected feature count %d", report.FeatureCount)
	}
	if report.Accuracy < 0 || report.Accuracy > 1 {
		t.Fatalf("accuracy out of range: %v", report.Accuracy)
	}

	probs, err := report.Model.Probabilities(context.Background(), "soil crops irrigation harvest")
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if probs[0] <= 0.5 {
		t.Fatalf("expected agronomy text to favour Agronomist, got %v", probs)
	}

	want := []string{"validating corpus", "vectorizing texts", "training model", "evaluating model"}
	if !reflect.DeepEqual(progress, want) {
		t.Fatalf("progress = %v, want %v", progress, want)
	}
}

func TestTrainEveryAlgorithm(t *testing.T) {
	t.Parallel()

	for _, algorithm := range classifier.Algorithms() {
		algorithm := algorithm
		t.Run(string(algorithm), func(t *testing.T) {
			t.Parallel()

			report, err := New(zap.NewNop()).Train(context.Background(), twoProfessions(), algorithm)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := report.Model.Metadata().ModelType; got != algorithm.DisplayName() {
				t.Fatalf("model type = %q, want %q", got, algorithm.DisplayName())
			}
		})
	}
}

func TestTrainDegradedCorpusLogsWarning(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	c := corpus.New([]corpus.Sample{
		sample("Agronomist", "soil crops irrigation"),
		sample("Nurse", "patients ward care"),
		sample("Agronomist", "harvest soil tractor"),
		sample("Nurse", "care clinic patients"),
	})

	report, err := New(zap.New(core)).Train(context.Background(), c, classifier.LogisticRegression)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Degraded || report.TrainCount != 4 || report.TestCount != 4 {
		t.Fatalf("expected degraded full-corpus run, got %+v", report)
	}
	if logs.FilterMessageSnippet("few samples").Len() != 1 {
		t.Fatalf("expected a degraded-mode warning, got %v", logs.All())
	}
}

func TestTrainRejectsBadCorpus(t *testing.T) {
	t.Parallel()

	single := corpus.New([]corpus.Sample{
		sample("Agronomist", "soil crops"),
		sample("Agronomist", "harvest tractor"),
		{Profession: "Nurse", Status: corpus.Failed},
	})

	withoutText := twoProfessions()
	withoutText.Samples = append(withoutText.Samples,
		corpus.Sample{Profession: "Chef", Status: corpus.Failed},
		corpus.Sample{Profession: "Chef", Text: "   ", Status: corpus.Success},
	)

	tests := []struct {
		name      string
		c         *corpus.Corpus
		algorithm classifier.Algorithm
		want      error
	}{
		{name: "one usable profession", c: single, algorithm: classifier.NaiveBayes, want: corpus.ErrInsufficientClasses},
		{name: "profession without usable text", c: withoutText, algorithm: classifier.NaiveBayes, want: corpus.ErrEmptyLabel},
		{name: "unknown algorithm", c: twoProfessions(), algorithm: classifier.Algorithm("gradient_boosting"), want: classifier.ErrUnsupportedAlgorithm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := New(zap.NewNop()).Train(context.Background(), tt.c, tt.algorithm)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// wordEmbedder maps a text to counts of two keyword groups.
type wordEmbedder struct{}

func (wordEmbedder) Model() string { return "test-embedding" }

func (wordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	res := make([][]float32, len(texts))
	for i, text := range texts {
		var farm, code float32
		for _, word := range strings.Fields(text) {
			switch word {
			case "soil", "crops", "irrigation", "harvest", "fertilizer", "tractor":
				farm++
			case "golang", "docker", "python", "api", "services", "cloud":
				code++
			}
		}
		res[i] = []float32{farm + 0.1, code + 0.1}
	}
	return res, nil
}

func TestTrainDeep(t *testing.T) {
	t.Parallel()

	backend := deep.NewCentroidBackend(wordEmbedder{}, 0)
	report, err := New(zap.NewNop()).TrainDeep(context.Background(), twoProfessions(), backend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Family != model.DeepLearning || report.FeatureCount != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Accuracy != 1 {
		t.Fatalf("expected perfect accuracy on separable embeddings, got %v", report.Accuracy)
	}
	if !report.Model.Metadata().IsDeepLearning {
		t.Fatal("expected deep-learning metadata")
	}
}

func TestStartDeliversProgressThenResult(t *testing.T) {
	t.Parallel()

	job := Start(context.Background(), func(ctx context.Context, progress func(string)) (*Report, error) {
		return New(zap.NewNop(), WithProgress(progress)).Train(ctx, twoProfessions(), classifier.NaiveBayes)
	})

	var messages []string
	var done []Event
	for ev := range job.Events() {
		if ev.Done {
			done = append(done, ev)
			continue
		}
		messages = append(messages, ev.Message)
	}

	if len(done) != 1 || done[0].Err != nil || done[0].Report == nil {
		t.Fatalf("expected exactly one successful terminal event, got %+v", done)
	}
	if len(messages) == 0 || messages[0] != "validating corpus" {
		t.Fatalf("unexpected progress %v", messages)
	}
}

func TestStartReportsFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	job := Start(context.Background(), func(context.Context, func(string)) (*Report, error) {
		return nil, boom
	})

	if _, err := job.Wait(); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestStartCancelThenWait(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	job := Start(context.Background(), func(ctx context.Context, progress func(string)) (*Report, error) {
		close(started)
		for i := 0; ; i++ {
			progress(fmt.Sprintf("step %d", i))
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}
	})

	<-started
	job.Cancel()

	if _, err := job.Wait(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, open := <-job.Events(); open {
		t.Fatal("events must be closed after the terminal event")
	}
}
