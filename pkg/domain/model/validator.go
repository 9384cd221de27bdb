package model

import (
	"encoding/json"
	"math"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/domain/types"
)

// ReferenceMetadata is the normalized metadata stored next to every reference vector.
// Backends serialize it as a single JSON object (or the equivalent document fields).
type ReferenceMetadata struct {
	Category   types.CategoryID `json:"category"`
	State      types.State      `json:"state"`
	Confidence float64          `json:"confidence"`
	// Valid is whether the image showed State. It is nil for cases stored without a verdict.
	Valid *bool `json:"valid,omitempty"`
	// KeyFeatures are the observations the judge (or trainer) recorded for the image
	KeyFeatures []string `json:"key_features,omitempty"`
	// Diagnosis is set when the judgment was structured. DiagnosisText is used otherwise.
	Diagnosis     *Diagnosis `json:"diagnosis,omitempty"`
	DiagnosisText string     `json:"diagnosis_text,omitempty"`
	ImageRef      string     `json:"image_ref,omitempty"`
	Prompt        string     `json:"prompt,omitempty"`
}

// Validate checks the metadata against the category registry. It is called by every
// repository implementation before a reference case is persisted.
func (m *ReferenceMetadata) Validate(registry *CategoryRegistry) error {
	if err := m.Category.Validate(); err != nil {
		return goerr.Wrap(ErrInvalidMetadata, "invalid category", goerr.V(CategoryKey, m.Category), goerr.V("cause", err.Error()))
	}
	if err := m.State.Validate(); err != nil {
		return goerr.Wrap(ErrInvalidMetadata, "invalid state", goerr.V(StateKey, m.State), goerr.V("cause", err.Error()))
	}
	if math.IsNaN(m.Confidence) || m.Confidence < 0 || m.Confidence > 1 {
		return goerr.Wrap(ErrConfidenceRange, "invalid reference confidence", goerr.V(ConfidenceKey, m.Confidence))
	}

	if registry == nil {
		return nil
	}

	cat, ok := registry.Get(m.Category)
	if !ok {
		return goerr.Wrap(ErrUnknownCategory, "category is not registered", goerr.V(CategoryKey, m.Category))
	}
	if !cat.HasState(m.State) {
		return goerr.Wrap(ErrUnexpectedState, "state is not allowed for category",
			goerr.V(CategoryKey, m.Category),
			goerr.V(StateKey, m.State),
			goerr.V("expected_states", cat.ExpectedStates))
	}
	return nil
}

// Clone returns a deep copy of the metadata
func (m ReferenceMetadata) Clone() ReferenceMetadata {
	copied := m
	if m.Valid != nil {
		valid := *m.Valid
		copied.Valid = &valid
	}
	if m.KeyFeatures != nil {
		copied.KeyFeatures = cloneStrings(m.KeyFeatures)
	}
	if m.Diagnosis != nil {
		copied.Diagnosis = m.Diagnosis.Clone()
	}
	return copied
}

// MarshalMetadata encodes metadata into the JSON representation shared by the backends
func MarshalMetadata(m *ReferenceMetadata) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal reference metadata")
	}
	return data, nil
}

// UnmarshalMetadata decodes metadata written by MarshalMetadata. A diagnosis stored as a
// bare string (older rows) is kept as DiagnosisText instead of failing.
func UnmarshalMetadata(data []byte) (*ReferenceMetadata, error) {
	var m ReferenceMetadata
	if err := json.Unmarshal(data, &m); err == nil {
		return &m, nil
	}

	var loose struct {
		ReferenceMetadata
		Diagnosis json.RawMessage `json:"diagnosis,omitempty"`
	}
	if err := json.Unmarshal(data, &loose); err != nil {
		return nil, goerr.Wrap(ErrInvalidMetadata, "failed to unmarshal reference metadata", goerr.V("cause", err.Error()))
	}

	m = loose.ReferenceMetadata
	var text string
	if err := json.Unmarshal(loose.Diagnosis, &text); err == nil {
		m.DiagnosisText = text
	} else {
		m.DiagnosisText = string(loose.Diagnosis)
	}
	return &m, nil
}
