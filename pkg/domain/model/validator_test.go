package model_test

import (
	"errors"
	"math"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/argus/pkg/domain/model"
)

func TestReferenceMetadata_Validate(t *testing.T) {
	registry := model.DefaultCategoryRegistry()

	testCases := []struct {
		name    string
		meta    model.ReferenceMetadata
		wantErr error
	}{
		{
			name: "valid metadata",
			meta: model.ReferenceMetadata{Category: "connector_plates", State: "straight", Confidence: 0.97},
		},
		{
			name:    "unknown category",
			meta:    model.ReferenceMetadata{Category: "bridges", State: "straight", Confidence: 0.9},
			wantErr: model.ErrUnknownCategory,
		},
		{
			name:    "state outside of category",
			meta:    model.ReferenceMetadata{Category: "connector_plates", State: "corroded", Confidence: 0.9},
			wantErr: model.ErrUnexpectedState,
		},
		{
			name:    "confidence above one",
			meta:    model.ReferenceMetadata{Category: "corrosion", State: "clean", Confidence: 1.01},
			wantErr: model.ErrConfidenceRange,
		},
		{
			name:    "negative confidence",
			meta:    model.ReferenceMetadata{Category: "corrosion", State: "clean", Confidence: -0.1},
			wantErr: model.ErrConfidenceRange,
		},
		{
			name:    "NaN confidence",
			meta:    model.ReferenceMetadata{Category: "corrosion", State: "clean", Confidence: math.NaN()},
			wantErr: model.ErrConfidenceRange,
		},
		{
			name:    "malformed category id",
			meta:    model.ReferenceMetadata{Category: "Cotter Pins", State: "present", Confidence: 0.5},
			wantErr: model.ErrInvalidMetadata,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.meta.Validate(registry)
			if tc.wantErr == nil {
				gt.NoError(t, err)
				return
			}
			gt.Bool(t, errors.Is(err, tc.wantErr)).True()
		})
	}

	t.Run("nil registry skips category checks", func(t *testing.T) {
		meta := model.ReferenceMetadata{Category: "bridges", State: "standing", Confidence: 0.5}
		gt.NoError(t, meta.Validate(nil))
	})
}

func TestMetadataRoundTrip(t *testing.T) {
	t.Run("structured diagnosis survives", func(t *testing.T) {
		meta := &model.ReferenceMetadata{
			Category:    "cotter_pins",
			State:       "present",
			Confidence:  1.0,
			KeyFeatures: []string{"pin spread"},
			Diagnosis: &model.Diagnosis{
				OverallAssessment: "Valid",
				KeyObservations:   []string{"pin present"},
			},
		}
		data, err := model.MarshalMetadata(meta)
		gt.NoError(t, err).Required()
		got, err := model.UnmarshalMetadata(data)
		gt.NoError(t, err).Required()

		gt.Value(t, got.Diagnosis).NotNil()
		gt.Value(t, got.Diagnosis.OverallAssessment).Equal("Valid")
		gt.Array(t, got.KeyFeatures).Length(1)
		gt.Value(t, got.DiagnosisText).Equal("")
	})

	t.Run("diagnosis stored as text becomes DiagnosisText", func(t *testing.T) {
		data := []byte(`{"category":"corrosion","state":"clean","confidence":0.9,"diagnosis":"looks valid and clean"}`)
		got, err := model.UnmarshalMetadata(data)
		gt.NoError(t, err).Required()

		gt.Value(t, got.Diagnosis).Nil()
		gt.Value(t, got.DiagnosisText).Equal("looks valid and clean")
		gt.Value(t, got.Category.String()).Equal("corrosion")
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, err := model.UnmarshalMetadata([]byte(`not json`))
		gt.Error(t, err).Is(model.ErrInvalidMetadata)
	})
}
