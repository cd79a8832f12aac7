package deep

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/cv-classifier/internal/features"
	"github.com/spigell/cv-classifier/internal/model"
)

// Model is a deep-learning network paired with its label codec.
type Model struct {
	Name      string
	Network   Network
	Codec     *features.LabelCodec
	CreatedAt time.Time
}

func (m *Model) Family() model.Family { return model.DeepLearning }

func (m *Model) Professions() []string {
	return m.Codec.Classes()
}

func (m *Model) Metadata() model.Metadata {
	professions := m.Codec.Classes()
	return model.Metadata{
		Name:           m.Name,
		DisplayName:    m.Name,
		ModelType:      m.Network.ModelType(),
		Professions:    professions,
		NumProfessions: len(professions),
		CreationDate:   m.CreatedAt.Format(model.TimeLayout),
		NumFeatures:    m.Network.Dim(),
		IsDeepLearning: true,
	}
}

func (m *Model) Probabilities(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, model.ErrEmptyText
	}
	probs, err := m.Network.Probabilities(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return probs[0], nil
}

func (m *Model) Artifacts() (map[string][]byte, error) {
	network, err := m.Network.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode network: %w", err)
	}
	encoder, err := json.Marshal(m.Codec)
	if err != nil {
		return nil, fmt.Errorf("encode label codec: %w", err)
	}
	return map[string][]byte{
		model.ArtifactModel:   network,
		model.ArtifactEncoder: encoder,
	}, nil
}

// NewDecoder returns a registry decoder that restores deep models with b.
func NewDecoder(b Backend) model.Decoder {
	return func(meta model.Metadata, artifacts map[string][]byte) (model.Model, error) {
		network, err := b.Decode(artifacts[model.ArtifactModel])
		if err != nil {
			return nil, err
		}
		codec := &features.LabelCodec{}
		if err := json.Unmarshal(artifacts[model.ArtifactEncoder], codec); err != nil {
			return nil, fmt.Errorf("decode label codec: %w", err)
		}
		if network.Classes() != codec.Len() {
			return nil, fmt.Errorf("network has %d classes, codec has %d", network.Classes(), codec.Len())
		}

		created, err := meta.CreatedAt()
		if err != nil {
			return nil, fmt.Errorf("parse creation date: %w", err)
		}

		m := &Model{Name: meta.Name, Network: network, Codec: codec, CreatedAt: created}
		if err := model.CheckConsistent(meta, m); err != nil {
			return nil, err
		}
		return m, nil
	}
}
