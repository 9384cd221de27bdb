package judge

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/domain/model"
)

// HeuristicConfidence is the confidence of a verdict produced by the yes/no fallback
const HeuristicConfidence = 0.5

var (
	codeFencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n?```")
	yesPattern       = regexp.MustCompile(`\byes\b`)
	noPattern        = regexp.MustCompile(`\bno\b`)
)

type rawDiagnosis struct {
	OverallAssessment   string   `json:"overall_assessment"`
	ConfidenceLevel     *float64 `json:"confidence_level"`
	KeyObservations     []string `json:"key_observations"`
	MatchedCriteria     []string `json:"matched_criteria"`
	FailedCriteria      []string `json:"failed_criteria"`
	DetailedExplanation string   `json:"detailed_explanation"`
}

type rawVerdict struct {
	IsValid         *bool                 `json:"is_valid"`
	Confidence      *float64              `json:"confidence"`
	Diagnosis       *rawDiagnosis         `json:"diagnosis"`
	Explanation     string                `json:"explanation"`
	Characteristics model.Characteristics `json:"characteristics"`
}

// ExtractJSON returns the JSON object embedded in a model response. A fenced code block
// wins over a bare {...} block.
func ExtractJSON(text string) (string, bool) {
	if m := codeFencePattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", false
	}
	return strings.TrimSpace(text[start : end+1]), true
}

// ParseVerdict decodes a judge response and checks its shape and ranges
func ParseVerdict(text string) (*model.Verdict, error) {
	body, ok := ExtractJSON(text)
	if !ok {
		return nil, goerr.Wrap(ErrInvalidResponse, "no JSON object in response")
	}

	var raw rawVerdict
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, goerr.Wrap(ErrInvalidResponse, "malformed JSON in response", goerr.V("cause", err.Error()))
	}

	switch {
	case raw.IsValid == nil:
		return nil, goerr.Wrap(ErrInvalidResponse, "is_valid is missing")
	case raw.Confidence == nil:
		return nil, goerr.Wrap(ErrInvalidResponse, "confidence is missing")
	case raw.Diagnosis == nil:
		return nil, goerr.Wrap(ErrInvalidResponse, "diagnosis is missing")
	}
	if !inUnitRange(*raw.Confidence) {
		return nil, goerr.Wrap(ErrInvalidResponse, "confidence out of range", goerr.V(model.ConfidenceKey, *raw.Confidence))
	}

	level := *raw.Confidence
	if raw.Diagnosis.ConfidenceLevel != nil {
		if !inUnitRange(*raw.Diagnosis.ConfidenceLevel) {
			return nil, goerr.Wrap(ErrInvalidResponse, "confidence_level out of range", goerr.V(model.ConfidenceKey, *raw.Diagnosis.ConfidenceLevel))
		}
		level = *raw.Diagnosis.ConfidenceLevel
	}

	return &model.Verdict{
		IsValid:         *raw.IsValid,
		Confidence:      *raw.Confidence,
		MatchedCriteria: append([]string{}, raw.Diagnosis.MatchedCriteria...),
		FailedCriteria:  append([]string{}, raw.Diagnosis.FailedCriteria...),
		Diagnosis: model.Diagnosis{
			OverallAssessment:   raw.Diagnosis.OverallAssessment,
			ConfidenceLevel:     level,
			KeyObservations:     nonNil(raw.Diagnosis.KeyObservations),
			MatchedCriteria:     nonNil(raw.Diagnosis.MatchedCriteria),
			FailedCriteria:      nonNil(raw.Diagnosis.FailedCriteria),
			DetailedExplanation: raw.Diagnosis.DetailedExplanation,
		},
		Explanation:     raw.Explanation,
		Characteristics: raw.Characteristics,
	}, nil
}

// Heuristic derives a degraded verdict from free text by looking for a yes or no word.
// "yes" is checked first.
func Heuristic(text, reason string) (*model.Verdict, error) {
	lower := strings.ToLower(text)

	var valid bool
	switch {
	case yesPattern.MatchString(lower):
		valid = true
	case noPattern.MatchString(lower):
		valid = false
	default:
		return nil, goerr.Wrap(ErrInvalidResponse, "response contains neither yes nor no")
	}

	assessment := "Invalid"
	if valid {
		assessment = "Valid"
	}

	return &model.Verdict{
		IsValid:         valid,
		Confidence:      HeuristicConfidence,
		MatchedCriteria: []string{},
		FailedCriteria:  []string{},
		Diagnosis: model.Diagnosis{
			OverallAssessment:   assessment,
			ConfidenceLevel:     HeuristicConfidence,
			KeyObservations:     []string{},
			MatchedCriteria:     []string{},
			FailedCriteria:      []string{},
			DetailedExplanation: strings.TrimSpace(text),
		},
		Explanation:    strings.TrimSpace(text),
		Degraded:       true,
		DegradedReason: reason,
	}, nil
}

func inUnitRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string{}, s...)
}
