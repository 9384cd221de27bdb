// Package fusion combines a judge verdict with the confidence of similar reference cases.
package fusion

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/secmon-lab/argus/pkg/domain/model"
)

const (
	// HighConfidence is the reference confidence a case must exceed to take part in fusion
	HighConfidence = 0.8
	// VerySimilar is the reference confidence above which a case corroborates the verdict
	VerySimilar = 0.95
	// ExactMatch is the reference confidence above which a case is treated as the same image
	ExactMatch = 0.99
)

const (
	validReferencePrefix = "Matches valid reference image"
	exactMatchNote       = "Exact match found in reference database"
)

// Fuse returns a new verdict adjusted by the given similar cases. The input verdict is
// not modified. A valid near exact reference flips IsValid from false to true; an invalid
// one never flips it back.
func Fuse(v *model.Verdict, cases []*model.SimilarCase, category *model.Category) *model.Verdict {
	if v == nil {
		return nil
	}
	result := v.Clone()

	high := filter(cases, HighConfidence)
	if len(high) == 0 {
		return result
	}

	var sum, sumSq float64
	for _, c := range high {
		sum += c.Confidence
		sumSq += c.Confidence * c.Confidence
	}
	weighted := sumSq / sum
	result.Confidence = clamp((clamp(v.Confidence) + weighted) / 2)

	verySimilar := filter(high, VerySimilar)
	if len(verySimilar) == 0 {
		return result
	}

	most := verySimilar[0]
	for _, c := range verySimilar[1:] {
		if c.Confidence > most.Confidence {
			most = c
		}
	}

	if most.Confidence > ExactMatch && isReferenceValid(most) {
		applyValidOverride(result, most, category)
	} else {
		appendCorroboration(result, most)
	}

	return result
}

// ApplyExactMatch forces the confidence to 1.0 when any of cases is a near exact match.
// It looks at the whole neighbor list, not only the cases that qualified for fusion.
func ApplyExactMatch(v *model.Verdict, cases []*model.SimilarCase) *model.Verdict {
	if v == nil {
		return nil
	}
	result := v.Clone()
	if len(filter(cases, ExactMatch)) == 0 {
		return result
	}

	result.Confidence = 1.0
	if !contains(result.Diagnosis.KeyObservations, exactMatchNote) {
		result.Diagnosis.KeyObservations = append(result.Diagnosis.KeyObservations, exactMatchNote)
	}
	return result
}

func applyValidOverride(v *model.Verdict, ref *model.SimilarCase, category *model.Category) {
	pct := percent(ref.Confidence)

	v.IsValid = true
	v.Diagnosis.OverallAssessment = "Valid"
	v.Diagnosis.ConfidenceLevel = clamp(ref.Confidence)

	var note string
	if category != nil {
		note = category.ContextualNote
	}

	observations := []string{fmt.Sprintf("%s with %d%% confidence", validReferencePrefix, pct)}
	if note != "" {
		observations = append(observations, note)
	}
	for _, obs := range v.Diagnosis.KeyObservations {
		if strings.HasPrefix(obs, validReferencePrefix) || (note != "" && obs == note) {
			continue
		}
		observations = append(observations, obs)
	}
	v.Diagnosis.KeyObservations = observations

	v.Diagnosis.DetailedExplanation = fmt.Sprintf(
		"High-confidence reference match: this image matches a known valid reference image (%d%% confidence). ", pct,
	) + v.Diagnosis.DetailedExplanation
}

func appendCorroboration(v *model.Verdict, ref *model.SimilarCase) {
	pct := percent(ref.Confidence)

	label := "reference image"
	if ref.Valid != nil && !*ref.Valid {
		label = "rejected reference image"
	}
	observation := fmt.Sprintf("Similar to %s (%s: %s) with %d%% confidence", label, ref.Category, ref.State, pct)
	if !contains(v.Diagnosis.KeyObservations, observation) {
		v.Diagnosis.KeyObservations = append(v.Diagnosis.KeyObservations, observation)
	}

	criterion := fmt.Sprintf("Consistent with reference case %s (%d%% confidence)", ref.ReferenceID, pct)
	if !contains(v.Diagnosis.MatchedCriteria, criterion) {
		v.Diagnosis.MatchedCriteria = append(v.Diagnosis.MatchedCriteria, criterion)
	}
	if !contains(v.MatchedCriteria, criterion) {
		v.MatchedCriteria = append(v.MatchedCriteria, criterion)
	}
}

var (
	validWord     = regexp.MustCompile(`(?i)\b(not\s+|non[-\s]?)?valid\b`)
	compliantWord = regexp.MustCompile(`(?i)(non[-_]?)?compliant`)
)

// isReferenceValid prefers the validity recorded with the case. Older cases without it
// fall back to the overall assessment, then to the flattened diagnosis and the image
// path. "invalid", "not valid" and "non_compliant" do not count.
func isReferenceValid(c *model.SimilarCase) bool {
	if c.Valid != nil {
		return *c.Valid
	}

	text := c.DiagnosisString()
	if c.Diagnosis != nil && c.Diagnosis.OverallAssessment != "" {
		text = c.Diagnosis.OverallAssessment
	}
	return hasPositive(validWord, text) || hasPositive(compliantWord, c.ImageRef)
}

// hasPositive reports whether re matches s at least once without its negation group
func hasPositive(re *regexp.Regexp, s string) bool {
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		if m[1] == "" {
			return true
		}
	}
	return false
}

// filter keeps non-nil cases whose confidence is finite and strictly above threshold
func filter(cases []*model.SimilarCase, threshold float64) []*model.SimilarCase {
	var result []*model.SimilarCase
	for _, c := range cases {
		if c == nil || math.IsNaN(c.Confidence) || math.IsInf(c.Confidence, 0) {
			continue
		}
		if c.Confidence > threshold {
			result = append(result, c)
		}
	}
	return result
}

func clamp(f float64) float64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

func percent(f float64) int {
	return int(math.Round(clamp(f) * 100))
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
