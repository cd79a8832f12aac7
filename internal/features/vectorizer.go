package features

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxVocabularySize   = 5000
	featuresPerDocument = 100
	smallCorpusSize     = 10
	maxDocumentFraction = 0.95
)

// Sizing holds the corpus-adaptive parameters of a feature space.
type Sizing struct {
	MaxFeatures int     `json:"max_features"`
	MinDF       int     `json:"min_df"`
	MaxDF       float64 `json:"max_df"`
	MinN        int     `json:"ngram_min"`
	MaxN        int     `json:"ngram_max"`
}

// SizingFor returns the sizing policy for a corpus of n documents.
// Small corpora keep every term that occurs at all; the vocabulary cap grows
// with the corpus up to maxVocabularySize.
func SizingFor(n int) Sizing {
	minDF := 2
	if n < smallCorpusSize {
		minDF = 1
	}
	return Sizing{
		MaxFeatures: min(maxVocabularySize, n*featuresPerDocument),
		MinDF:       minDF,
		MaxDF:       maxDocumentFraction,
		MinN:        1,
		MaxN:        2,
	}
}

// Vectorizer turns documents into l2-normalised tf-idf vectors over unigrams
// and bigrams. A fitted vectorizer is immutable.
type Vectorizer struct {
	sizing     Sizing
	vocabulary []string
	index      map[string]int
	idf        []float64
}

// NewVectorizer returns an unfitted vectorizer.
func NewVectorizer() *Vectorizer {
	return &Vectorizer{}
}

// Fitted reports whether the vocabulary was built.
func (v *Vectorizer) Fitted() bool {
	return v != nil && len(v.vocabulary) > 0
}

// Len returns the number of features.
func (v *Vectorizer) Len() int {
	if v == nil {
		return 0
	}
	return len(v.vocabulary)
}

// Sizing returns the parameters the vocabulary was built with.
func (v *Vectorizer) Sizing() Sizing {
	return v.sizing
}

// Vocabulary returns the terms in feature index order.
func (v *Vectorizer) Vocabulary() []string {
	return append([]string(nil), v.vocabulary...)
}

// FitTransform builds the vocabulary from docs and returns their vectors.
func (v *Vectorizer) FitTransform(docs []string) ([]Vector, error) {
	if err := v.fit(docs); err != nil {
		return nil, err
	}
	return v.Transform(docs)
}

// Transform converts documents into vectors using the fitted vocabulary.
func (v *Vectorizer) Transform(docs []string) ([]Vector, error) {
	if !v.Fitted() {
		return nil, ErrNotFitted
	}

	res := make([]Vector, len(docs))
	for i, doc := range docs {
		res[i] = v.transform(doc)
	}
	return res, nil
}

func (v *Vectorizer) fit(docs []string) error {
	n := len(docs)
	if n == 0 {
		return fmt.Errorf("%w: no documents", ErrEmptyVocabulary)
	}

	sizing := SizingFor(n)

	maxDocCount := sizing.MaxDF * float64(n)
	if maxDocCount < float64(sizing.MinDF) {
		return fmt.Errorf("%w: max_df leaves fewer documents than min_df", ErrEmptyVocabulary)
	}

	docFreq := make(map[string]int)
	termFreq := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, term := range analyze(doc, sizing.MinN, sizing.MaxN) {
			termFreq[term]++
			if _, ok := seen[term]; !ok {
				seen[term] = struct{}{}
				docFreq[term]++
			}
		}
	}

	kept := make([]string, 0, len(docFreq))
	for term, df := range docFreq {
		if df < sizing.MinDF || float64(df) > maxDocCount {
			continue
		}
		kept = append(kept, term)
	}

	if len(kept) > sizing.MaxFeatures {
		sort.Slice(kept, func(i, j int) bool {
			if termFreq[kept[i]] != termFreq[kept[j]] {
				return termFreq[kept[i]] > termFreq[kept[j]]
			}
			return kept[i] < kept[j]
		})
		kept = kept[:sizing.MaxFeatures]
	}

	if len(kept) == 0 {
		return ErrEmptyVocabulary
	}

	sort.Strings(kept)

	idf := make([]float64, len(kept))
	for i, term := range kept {
		idf[i] = math.Log(float64(1+n)/float64(1+docFreq[term])) + 1
	}

	v.sizing = sizing
	v.setVocabulary(kept)
	v.idf = idf
	return nil
}

func (v *Vectorizer) setVocabulary(terms []string) {
	v.vocabulary = terms
	v.index = make(map[string]int, len(terms))
	for i, term := range terms {
		v.index[term] = i
	}
}

func (v *Vectorizer) transform(doc string) Vector {
	counts := make(map[int]float64)
	for _, term := range analyze(doc, v.sizing.MinN, v.sizing.MaxN) {
		if idx, ok := v.index[term]; ok {
			counts[idx]++
		}
	}

	res := make(Vector, 0, len(counts))
	for idx, count := range counts {
		res = append(res, Value{Index: idx, Value: count * v.idf[idx]})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Index < res[j].Index })

	return normalize(res)
}

type vectorizerState struct {
	Sizing     Sizing    `json:"sizing"`
	Vocabulary []string  `json:"vocabulary"`
	IDF        []float64 `json:"idf"`
}

// MarshalJSON encodes the fitted feature space.
func (v *Vectorizer) MarshalJSON() ([]byte, error) {
	if !v.Fitted() {
		return nil, ErrNotFitted
	}
	return json.Marshal(vectorizerState{
		Sizing:     v.sizing,
		Vocabulary: v.vocabulary,
		IDF:        v.idf,
	})
}

// UnmarshalJSON restores a feature space written by MarshalJSON.
func (v *Vectorizer) UnmarshalJSON(data []byte) error {
	var state vectorizerState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	if len(state.Vocabulary) == 0 {
		return ErrEmptyVocabulary
	}
	if len(state.Vocabulary) != len(state.IDF) {
		return fmt.Errorf("vocabulary has %d terms but %d idf weights", len(state.Vocabulary), len(state.IDF))
	}

	v.sizing = state.Sizing
	v.setVocabulary(state.Vocabulary)
	v.idf = state.IDF
	return nil
}

// Tokenize lower-cases text and splits it into words of at least two
// letters or digits.
func Tokenize(text string) []string {
	text = strings.ToLower(text)

	var tokens []string
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		if word := text[start:end]; utf8.RuneCountInString(word) >= 2 {
			tokens = append(tokens, word)
		}
		start = -1
	}

	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(text))

	return tokens
}

func analyze(doc string, minN, maxN int) []string {
	tokens := Tokenize(doc)
	if minN <= 0 {
		minN = 1
	}

	terms := make([]string, 0, len(tokens)*maxN)
	for n := minN; n <= maxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			terms = append(terms, strings.Join(tokens[i:i+n], " "))
		}
	}
	return terms
}
