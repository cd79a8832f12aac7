package model

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// DecodeMetadata decodes a metadata artifact. Numbers written as strings and
// similar loosely typed values are accepted.
func DecodeMetadata(data []byte) (Metadata, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}

	var meta Metadata
	if err := mapstructure.WeakDecode(raw, &meta); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	if strings.TrimSpace(meta.Name) == "" {
		return Metadata{}, fmt.Errorf("metadata has no name")
	}
	if meta.DisplayName == "" {
		meta.DisplayName = meta.Name
	}
	if meta.NumProfessions == 0 {
		meta.NumProfessions = len(meta.Professions)
	}
	if meta.NumProfessions != len(meta.Professions) {
		return Metadata{}, fmt.Errorf("metadata lists %d professions but num_professions is %d",
			len(meta.Professions), meta.NumProfessions)
	}

	return meta, nil
}

// EncodeMetadata encodes a metadata artifact.
func EncodeMetadata(meta Metadata) ([]byte, error) {
	return json.MarshalIndent(meta, "", "  ")
}

// CheckConsistent verifies that a model matches the metadata it was stored with.
func CheckConsistent(meta Metadata, m Model) error {
	if meta.Family() != m.Family() {
		return fmt.Errorf("metadata family %s does not match model family %s", meta.Family(), m.Family())
	}
	if !reflect.DeepEqual(meta.Professions, m.Professions()) {
		return fmt.Errorf("metadata professions %v do not match model professions %v", meta.Professions, m.Professions())
	}
	if got := m.Metadata().NumFeatures; got != meta.NumFeatures {
		return fmt.Errorf("metadata lists %d features but model has %d", meta.NumFeatures, got)
	}
	return nil
}
