package model

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spigell/cv-classifier/internal/classifier"
	"github.com/spigell/cv-classifier/internal/features"
)

// Artifact names shared by the registry and the model families.
const (
	ArtifactVectorizer = "vectorizer"
	ArtifactClassifier = "classifier"
	ArtifactModel      = "model"
	ArtifactEncoder    = "encoder"
	ArtifactMetadata   = "metadata"
)

// Decoder rebuilds a model from its metadata and stored artifacts.
type Decoder func(meta Metadata, artifacts map[string][]byte) (Model, error)

// ArtifactsOf lists the artifacts a family stores, metadata last.
func ArtifactsOf(f Family) []string {
	if f == DeepLearning {
		return []string{ArtifactModel, ArtifactEncoder, ArtifactMetadata}
	}
	return []string{ArtifactVectorizer, ArtifactClassifier, ArtifactEncoder, ArtifactMetadata}
}

// ClassicalModel is a vectorizer, classifier and label codec trained together.
type ClassicalModel struct {
	Name       string
	Vectorizer *features.Vectorizer
	Classifier classifier.Classifier
	Codec      *features.LabelCodec
	CreatedAt  time.Time
}

func (c *ClassicalModel) Family() Family { return Classical }

// Algorithm returns the classifier variant.
func (c *ClassicalModel) Algorithm() classifier.Algorithm {
	return c.Classifier.Algorithm()
}

func (c *ClassicalModel) Professions() []string {
	return c.Codec.Classes()
}

func (c *ClassicalModel) Metadata() Metadata {
	professions := c.Codec.Classes()
	return Metadata{
		Name:           c.Name,
		DisplayName:    c.Name,
		ModelType:      c.Classifier.Algorithm().DisplayName(),
		Professions:    professions,
		NumProfessions: len(professions),
		CreationDate:   c.CreatedAt.Format(TimeLayout),
		NumFeatures:    c.Vectorizer.Len(),
		IsDeepLearning: false,
	}
}

// Probabilities vectorizes text and returns the classifier probabilities.
// Text without a single token is rejected with ErrEmptyText.
func (c *ClassicalModel) Probabilities(_ context.Context, text string) ([]float64, error) {
	if len(features.Tokenize(text)) == 0 {
		return nil, ErrEmptyText
	}

	vectors, err := c.Vectorizer.Transform([]string{text})
	if err != nil {
		return nil, err
	}
	return c.Classifier.PredictProba(vectors[0]), nil
}

func (c *ClassicalModel) Artifacts() (map[string][]byte, error) {
	vectorizer, err := json.Marshal(c.Vectorizer)
	if err != nil {
		return nil, fmt.Errorf("encode vectorizer: %w", err)
	}
	cls, err := classifier.Marshal(c.Classifier)
	if err != nil {
		return nil, fmt.Errorf("encode classifier: %w", err)
	}
	encoder, err := json.Marshal(c.Codec)
	if err != nil {
		return nil, fmt.Errorf("encode label codec: %w", err)
	}

	return map[string][]byte{
		ArtifactVectorizer: vectorizer,
		ArtifactClassifier: cls,
		ArtifactEncoder:    encoder,
	}, nil
}

// DecodeClassical rebuilds a classical model from its stored artifacts and
// checks that the parts were trained together.
func DecodeClassical(meta Metadata, artifacts map[string][]byte) (*ClassicalModel, error) {
	vectorizer := features.NewVectorizer()
	if err := json.Unmarshal(artifacts[ArtifactVectorizer], vectorizer); err != nil {
		return nil, fmt.Errorf("decode vectorizer: %w", err)
	}
	cls, err := classifier.Unmarshal(artifacts[ArtifactClassifier])
	if err != nil {
		return nil, fmt.Errorf("decode classifier: %w", err)
	}
	codec := &features.LabelCodec{}
	if err := json.Unmarshal(artifacts[ArtifactEncoder], codec); err != nil {
		return nil, fmt.Errorf("decode label codec: %w", err)
	}

	if classes, dim := cls.Shape(); classes != codec.Len() || dim != vectorizer.Len() {
		return nil, fmt.Errorf("classifier shape %dx%d does not match %d professions and %d features",
			classes, dim, codec.Len(), vectorizer.Len())
	}

	created, err := meta.CreatedAt()
	if err != nil {
		return nil, fmt.Errorf("parse creation date: %w", err)
	}

	m := &ClassicalModel{
		Name:       meta.Name,
		Vectorizer: vectorizer,
		Classifier: cls,
		Codec:      codec,
		CreatedAt:  created,
	}
	if err := CheckConsistent(meta, m); err != nil {
		return nil, err
	}
	return m, nil
}
