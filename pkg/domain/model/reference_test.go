package model_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/domain/types"
)

var testTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNewSimilarCase(t *testing.T) {
	ref := &model.ReferenceCase{
		ID:        model.NewReferenceID(),
		Namespace: "plant_a",
		Metadata: model.ReferenceMetadata{
			Category:    "threads",
			State:       "visible",
			Confidence:  0.96,
			KeyFeatures: []string{"clear pitch"},
			Diagnosis:   &model.Diagnosis{OverallAssessment: "Valid"},
			ImageRef:    "gs://bucket/threads/1.jpg",
		},
		CreatedAt: testTime,
	}

	sc := model.NewSimilarCase(ref, 0.91)
	gt.Value(t, sc.ReferenceID).Equal(ref.ID)
	gt.Value(t, sc.Similarity).Equal(0.91)
	gt.Value(t, sc.Confidence).Equal(0.96)
	gt.Value(t, sc.DiagnosisString()).Equal("Valid")

	sc.KeyFeatures[0] = "changed"
	sc.Diagnosis.OverallAssessment = "Invalid"
	gt.Value(t, ref.Metadata.KeyFeatures[0]).Equal("clear pitch")
	gt.Value(t, ref.Metadata.Diagnosis.OverallAssessment).Equal("Valid")

	textOnly := model.NewSimilarCase(&model.ReferenceCase{
		Metadata: model.ReferenceMetadata{DiagnosisText: "valid thread"},
	}, 0.9)
	gt.Value(t, textOnly.DiagnosisString()).Equal("valid thread")
}

func TestNewNamespaceStats(t *testing.T) {
	refs := []*model.ReferenceCase{
		{Metadata: model.ReferenceMetadata{Category: "threads"}},
		{Metadata: model.ReferenceMetadata{Category: "threads"}},
		{Metadata: model.ReferenceMetadata{Category: "corrosion"}},
	}
	stats := model.NewNamespaceStats("plant_a", refs)
	gt.Value(t, stats.TotalVectors).Equal(3)
	gt.Value(t, stats.Categories[types.CategoryID("threads")]).Equal(2)
	gt.Value(t, stats.Categories[types.CategoryID("corrosion")]).Equal(1)

	empty := model.NewNamespaceStats("plant_b", nil)
	gt.Value(t, empty.TotalVectors).Equal(0)
	gt.Value(t, len(empty.Categories)).Equal(0)
}

func TestRankSimilarCases(t *testing.T) {
	older := testTime
	newer := testTime.Add(time.Minute)

	cases := []*model.SimilarCase{
		{ReferenceID: "low", Similarity: 0.85},
		nil,
		{ReferenceID: "b", Similarity: 0.9, CreatedAt: newer},
		{ReferenceID: "top", Similarity: 0.99, CreatedAt: newer},
		{ReferenceID: "a", Similarity: 0.9, CreatedAt: older},
		{ReferenceID: "c", Similarity: 0.9, CreatedAt: newer},
	}

	ranked := model.RankSimilarCases(cases, 3)
	gt.Array(t, ranked).Length(3)
	gt.Value(t, ranked[0].ReferenceID).Equal(model.ReferenceID("top"))
	gt.Value(t, ranked[1].ReferenceID).Equal(model.ReferenceID("a"))
	gt.Value(t, ranked[2].ReferenceID).Equal(model.ReferenceID("b"))

	empty := model.RankSimilarCases(nil, 5)
	gt.Value(t, empty).NotNil()
	gt.Array(t, empty).Length(0)
}

func TestCosineSimilarity(t *testing.T) {
	gt.Value(t, model.CosineSimilarity([]float32{1, 0}, []float32{2, 0})).Equal(1.0)
	gt.Value(t, model.CosineSimilarity([]float32{1, 0}, []float32{0, 1})).Equal(0.0)
	gt.Value(t, model.CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0})).Equal(0.0)
	gt.Value(t, model.CosineSimilarity([]float32{0, 0}, []float32{1, 0})).Equal(0.0)
}

func TestPaginate(t *testing.T) {
	offset, limit := model.Paginate(0, 0)
	gt.Value(t, offset).Equal(0)
	gt.Value(t, limit).Equal(model.DefaultPageLimit)

	offset, limit = model.Paginate(3, 10)
	gt.Value(t, offset).Equal(20)
	gt.Value(t, limit).Equal(10)

	_, limit = model.Paginate(1, 1000)
	gt.Value(t, limit).Equal(model.MaxPageLimit)
}
