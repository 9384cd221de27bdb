package model_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/argus/pkg/domain/model"
)

func TestVerdict_Clone(t *testing.T) {
	v := &model.Verdict{
		IsValid:         true,
		Confidence:      0.8,
		MatchedCriteria: []string{"pin present"},
		Diagnosis: model.Diagnosis{
			OverallAssessment: "Valid",
			KeyObservations:   []string{"pin spread"},
		},
		Characteristics: model.Characteristics{
			PhysicalState: model.PhysicalState{ConditionDetails: []string{"clean"}},
		},
	}

	c := v.Clone()
	c.MatchedCriteria[0] = "changed"
	c.Diagnosis.KeyObservations[0] = "changed"
	c.Characteristics.PhysicalState.ConditionDetails[0] = "changed"

	gt.Value(t, v.MatchedCriteria[0]).Equal("pin present")
	gt.Value(t, v.Diagnosis.KeyObservations[0]).Equal("pin spread")
	gt.Value(t, v.Characteristics.PhysicalState.ConditionDetails[0]).Equal("clean")
	gt.Value(t, (*model.Verdict)(nil).Clone()).Nil()
}

func TestDiagnosis_String(t *testing.T) {
	d := &model.Diagnosis{
		OverallAssessment:   "Valid",
		KeyObservations:     []string{"plate is straight"},
		DetailedExplanation: "no deformation",
	}
	gt.Value(t, d.String()).Equal("Valid\nplate is straight\nno deformation")
	gt.Value(t, (*model.Diagnosis)(nil).String()).Equal("")
}

func TestNewNamespace(t *testing.T) {
	ns := model.NewNamespace("Plant A / Line 2", "", testTime)
	gt.Value(t, ns.ID.String()).Equal("plant_a_line_2")
	gt.Value(t, ns.Name).Equal("Plant A / Line 2")

	def := model.NewNamespace("", "", testTime)
	gt.Value(t, def.ID.String()).Equal("_default_")
	gt.Value(t, def.Name).Equal("_default_")
}
