// Package corpus holds labeled résumé samples and the policy that decides
// which of them take part in training.
package corpus

import (
	"fmt"
	"sort"
	"strings"
)

// Status reports whether text extraction succeeded for a sample.
type Status string

const (
	Success Status = "success"
	Failed  Status = "failed"
)

// Sample is one extracted document with its profession label.
type Sample struct {
	Name       string `json:"file_name,omitempty"`
	Profession string `json:"profession"`
	Text       string `json:"text"`
	Status     Status `json:"status"`
}

// Usable reports whether the sample can take part in training.
func (s Sample) Usable() bool {
	return s.Status == Success && strings.TrimSpace(s.Text) != ""
}

// Corpus is an ordered set of samples. Professions lists the labels the
// caller asked for. Labels carried by the samples are always expected too,
// whether or not their samples are usable.
type Corpus struct {
	Professions []string
	Samples     []Sample
}

// New returns a corpus over samples.
func New(samples []Sample) *Corpus {
	return &Corpus{Samples: samples}
}

// Len returns the number of samples.
func (c *Corpus) Len() int {
	return len(c.Samples)
}

// Labels returns the distinct labels of the given samples, sorted.
func Labels(samples []Sample) []string {
	seen := make(map[string]struct{})
	for _, s := range samples {
		seen[s.Profession] = struct{}{}
	}
	res := make([]string, 0, len(seen))
	for label := range seen {
		res = append(res, label)
	}
	sort.Strings(res)
	return res
}

// Texts returns the texts of the samples in order.
func Texts(samples []Sample) []string {
	res := make([]string, len(samples))
	for i, s := range samples {
		res[i] = s.Text
	}
	return res
}

// Professions returns the labels of the samples in order.
func Professions(samples []Sample) []string {
	res := make([]string, len(samples))
	for i, s := range samples {
		res[i] = s.Profession
	}
	return res
}

// Validate checks the usable samples against the training preconditions:
// at least two distinct labels, and no requested or sampled profession
// left without a usable sample.
func Validate(c *Corpus, usable []Sample) error {
	labels := Labels(usable)
	if len(labels) < 2 {
		return fmt.Errorf("%w: found %d usable profession(s)", ErrInsufficientClasses, len(labels))
	}

	counts := make(map[string]int, len(labels))
	for _, s := range usable {
		counts[s.Profession]++
	}
	for _, profession := range c.expected() {
		if counts[profession] == 0 {
			return fmt.Errorf("%w: %q", ErrEmptyLabel, profession)
		}
	}
	for _, s := range usable {
		if strings.TrimSpace(s.Profession) == "" {
			return fmt.Errorf("%w: sample %q has no profession", ErrEmptyLabel, s.Name)
		}
	}

	return nil
}

// expected returns the requested professions followed by any other
// non-blank label found among the samples.
func (c *Corpus) expected() []string {
	seen := make(map[string]struct{}, len(c.Professions))
	res := make([]string, 0, len(c.Professions))
	for _, p := range c.Professions {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			res = append(res, p)
		}
	}
	for _, p := range Labels(c.Samples) {
		if _, ok := seen[p]; ok || strings.TrimSpace(p) == "" {
			continue
		}
		seen[p] = struct{}{}
		res = append(res, p)
	}
	return res
}

// Restrict returns a corpus limited to the given professions. Requested
// professions without samples are kept so that validation reports them.
func (c *Corpus) Restrict(professions []string) *Corpus {
	wanted := make(map[string]struct{}, len(professions))
	for _, p := range professions {
		wanted[p] = struct{}{}
	}

	res := &Corpus{Professions: append([]string(nil), professions...)}
	for _, s := range c.Samples {
		if _, ok := wanted[s.Profession]; ok {
			res.Samples = append(res.Samples, s)
		}
	}
	return res
}
