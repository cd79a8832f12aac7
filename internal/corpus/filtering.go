package corpus

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Filter is a single step that narrows the samples used for training.
type Filter interface {
	Name() string
	Apply(ctx context.Context, logger *zap.Logger, samples []Sample) ([]Sample, Step, error)
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// DefaultFilters returns the steps every training run applies.
func DefaultFilters() []Filter {
	return []Filter{NewStatus(), NewEmptyText()}
}

// Filter runs the steps sequentially and returns the samples that survive.
// The input slice is not modified.
func (c *Corpus) Filter(ctx context.Context, logger *zap.Logger, steps []Filter) ([]Sample, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	samples := append([]Sample(nil), c.Samples...)
	for _, step := range steps {
		next, info, err := step.Apply(ctx, logger, samples)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		logger.Info("corpus filter step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)
		samples = next
	}

	return samples, nil
}

type statusFilter struct{}

// NewStatus creates a filter that removes samples whose extraction failed.
func NewStatus() Filter {
	return &statusFilter{}
}

func (f *statusFilter) Name() string { return "status" }

func (f *statusFilter) Apply(_ context.Context, logger *zap.Logger, samples []Sample) ([]Sample, Step, error) {
	return keep(samples, func(s Sample) bool { return s.Status == Success }, func(dropped []string) {
		logger.Info("excluding samples with failed extraction", zap.Strings("excluded_samples", dropped))
	})
}

type emptyTextFilter struct{}

// NewEmptyText creates a filter that removes samples without text.
func NewEmptyText() Filter {
	return &emptyTextFilter{}
}

func (f *emptyTextFilter) Name() string { return "empty_text" }

func (f *emptyTextFilter) Apply(_ context.Context, logger *zap.Logger, samples []Sample) ([]Sample, Step, error) {
	return keep(samples, func(s Sample) bool { return strings.TrimSpace(s.Text) != "" }, func(dropped []string) {
		logger.Info("excluding samples without text", zap.Strings("excluded_samples", dropped))
	})
}

func keep(samples []Sample, ok func(Sample) bool, report func(dropped []string)) ([]Sample, Step, error) {
	initial := len(samples)
	left := make([]Sample, 0, initial)
	var dropped []string
	for _, s := range samples {
		if ok(s) {
			left = append(left, s)
			continue
		}
		dropped = append(dropped, s.Profession+"/"+s.Name)
	}

	if len(dropped) > 0 {
		report(dropped)
	}

	return left, Step{Initial: initial, Dropped: len(dropped), Left: len(left)}, nil
}
