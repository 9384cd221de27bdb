package model

import "strings"

// Verdict is the judgment for one image. The judge produces it and fusion derives
// a new one from it; neither mutates a Verdict it did not create.
type Verdict struct {
	IsValid         bool            `json:"is_valid"`
	Confidence      float64         `json:"confidence"`
	MatchedCriteria []string        `json:"matched_criteria"`
	FailedCriteria  []string        `json:"failed_criteria"`
	Diagnosis       Diagnosis       `json:"diagnosis"`
	Explanation     string          `json:"explanation"`
	Characteristics Characteristics `json:"characteristics"`

	// Degraded is set when the verdict came from the yes/no heuristic instead of a
	// parsed judge response
	Degraded       bool   `json:"degraded"`
	DegradedReason string `json:"degraded_reason,omitempty"`
}

// Diagnosis is the structured explanation attached to a verdict
type Diagnosis struct {
	OverallAssessment   string   `json:"overall_assessment"`
	ConfidenceLevel     float64  `json:"confidence_level"`
	KeyObservations     []string `json:"key_observations"`
	MatchedCriteria     []string `json:"matched_criteria"`
	FailedCriteria      []string `json:"failed_criteria"`
	DetailedExplanation string   `json:"detailed_explanation"`
}

type Characteristics struct {
	PhysicalState PhysicalState `json:"physical_state"`
}

type PhysicalState struct {
	MatchesExpected  bool     `json:"matches_expected"`
	HasDefects       bool     `json:"has_defects"`
	ConditionDetails []string `json:"condition_details"`
}

// Clone returns a deep copy of the verdict
func (v *Verdict) Clone() *Verdict {
	if v == nil {
		return nil
	}
	copied := *v
	copied.MatchedCriteria = cloneStrings(v.MatchedCriteria)
	copied.FailedCriteria = cloneStrings(v.FailedCriteria)
	copied.Diagnosis = *v.Diagnosis.Clone()
	copied.Characteristics.PhysicalState.ConditionDetails = cloneStrings(v.Characteristics.PhysicalState.ConditionDetails)
	return &copied
}

// Clone returns a deep copy of the diagnosis
func (d *Diagnosis) Clone() *Diagnosis {
	if d == nil {
		return nil
	}
	copied := *d
	copied.KeyObservations = cloneStrings(d.KeyObservations)
	copied.MatchedCriteria = cloneStrings(d.MatchedCriteria)
	copied.FailedCriteria = cloneStrings(d.FailedCriteria)
	return &copied
}

// String flattens the diagnosis into a single text. Fusion matches keywords against it.
func (d *Diagnosis) String() string {
	if d == nil {
		return ""
	}
	parts := []string{d.OverallAssessment}
	parts = append(parts, d.KeyObservations...)
	parts = append(parts, d.MatchedCriteria...)
	parts = append(parts, d.FailedCriteria...)
	parts = append(parts, d.DetailedExplanation)

	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "\n")
}

func cloneStrings(src []string) []string {
	if src == nil {
		return nil
	}
	return append([]string{}, src...)
}
