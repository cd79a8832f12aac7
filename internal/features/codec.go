package features

import (
	"encoding/json"
	"fmt"
	"sort"
)

// LabelCodec maps profession labels to dense class indices.
// Classes are kept in sorted order so that indices are reproducible.
type LabelCodec struct {
	classes []string
	index   map[string]int
}

// FitLabels builds a codec from the distinct labels.
func FitLabels(labels []string) *LabelCodec {
	seen := make(map[string]struct{}, len(labels))
	classes := make([]string, 0)
	for _, label := range labels {
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		classes = append(classes, label)
	}
	sort.Strings(classes)

	c := &LabelCodec{}
	c.set(classes)
	return c
}

func (c *LabelCodec) set(classes []string) {
	c.classes = classes
	c.index = make(map[string]int, len(classes))
	for i, class := range classes {
		c.index[class] = i
	}
}

// Len returns the number of classes.
func (c *LabelCodec) Len() int {
	if c == nil {
		return 0
	}
	return len(c.classes)
}

// Classes returns the labels in index order.
func (c *LabelCodec) Classes() []string {
	return append([]string(nil), c.classes...)
}

// Encode returns the class index of label.
func (c *LabelCodec) Encode(label string) (int, error) {
	idx, ok := c.index[label]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	return idx, nil
}

// EncodeAll encodes every label.
func (c *LabelCodec) EncodeAll(labels []string) ([]int, error) {
	res := make([]int, len(labels))
	for i, label := range labels {
		idx, err := c.Encode(label)
		if err != nil {
			return nil, err
		}
		res[i] = idx
	}
	return res, nil
}

// Decode returns the label of class index idx.
func (c *LabelCodec) Decode(idx int) (string, error) {
	if idx < 0 || idx >= len(c.classes) {
		return "", fmt.Errorf("class index %d out of range [0, %d)", idx, len(c.classes))
	}
	return c.classes[idx], nil
}

// MarshalJSON encodes the codec as the ordered class list.
func (c *LabelCodec) MarshalJSON() ([]byte, error) {
	if c.Len() == 0 {
		return nil, ErrNotFitted
	}
	return json.Marshal(struct {
		Classes []string `json:"classes"`
	}{Classes: c.classes})
}

// UnmarshalJSON restores a codec written by MarshalJSON.
func (c *LabelCodec) UnmarshalJSON(data []byte) error {
	var state struct {
		Classes []string `json:"classes"`
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	if len(state.Classes) == 0 {
		return ErrNotFitted
	}
	if !sort.StringsAreSorted(state.Classes) {
		return fmt.Errorf("codec classes are not sorted")
	}
	c.set(state.Classes)
	return nil
}
