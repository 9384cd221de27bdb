package model

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/domain/types"
)

const (
	// SimilarityFloor is the cosine similarity a stored case must exceed to be returned
	SimilarityFloor = 0.85

	// DefaultNeighborLimit is the number of neighbors returned after a store
	DefaultNeighborLimit = 5

	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// ReferenceID is a UUID-based identifier for ReferenceCase
type ReferenceID string

// NewReferenceID generates a new UUID v4 ReferenceID
func NewReferenceID() ReferenceID {
	return ReferenceID(uuid.New().String())
}

func (id ReferenceID) String() string {
	return string(id)
}

// ReferenceCase is a previously judged example kept for nearest neighbor comparison.
// It is never mutated after creation.
type ReferenceCase struct {
	ID        ReferenceID       `json:"id"`
	Namespace types.NamespaceID `json:"namespace"`
	Metadata  ReferenceMetadata `json:"metadata"`
	Embedding []float32         `json:"-"`
	CreatedAt time.Time         `json:"created_at"`
}

// SimilarCase is a ReferenceCase found by a nearest neighbor query together with its
// cosine similarity to the query vector.
type SimilarCase struct {
	ReferenceID ReferenceID       `json:"id"`
	Namespace   types.NamespaceID `json:"namespace"`
	Category    types.CategoryID  `json:"category"`
	State       types.State       `json:"state"`
	Confidence  float64           `json:"confidence"`
	Similarity  float64           `json:"similarity"`
	Valid       *bool             `json:"valid,omitempty"`
	KeyFeatures []string          `json:"key_features"`
	Diagnosis   *Diagnosis        `json:"diagnosis,omitempty"`
	// DiagnosisText holds the diagnosis when it was stored as free text
	DiagnosisText string    `json:"diagnosis_text,omitempty"`
	ImageRef      string    `json:"image_ref,omitempty"`
	Prompt        string    `json:"prompt,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewSimilarCase projects a ReferenceCase with the given similarity
func NewSimilarCase(ref *ReferenceCase, similarity float64) *SimilarCase {
	sc := &SimilarCase{
		ReferenceID:   ref.ID,
		Namespace:     ref.Namespace,
		Category:      ref.Metadata.Category,
		State:         ref.Metadata.State,
		Confidence:    ref.Metadata.Confidence,
		Similarity:    similarity,
		DiagnosisText: ref.Metadata.DiagnosisText,
		ImageRef:      ref.Metadata.ImageRef,
		Prompt:        ref.Metadata.Prompt,
		CreatedAt:     ref.CreatedAt,
	}
	if ref.Metadata.Valid != nil {
		valid := *ref.Metadata.Valid
		sc.Valid = &valid
	}
	if ref.Metadata.KeyFeatures != nil {
		sc.KeyFeatures = append([]string{}, ref.Metadata.KeyFeatures...)
	}
	if ref.Metadata.Diagnosis != nil {
		sc.Diagnosis = ref.Metadata.Diagnosis.Clone()
	}
	return sc
}

// DiagnosisString flattens the stored diagnosis into text for substring matching
func (c *SimilarCase) DiagnosisString() string {
	if c.Diagnosis != nil {
		return c.Diagnosis.String()
	}
	return c.DiagnosisText
}

// NamespaceStats summarizes the reference cases stored in one namespace
type NamespaceStats struct {
	Namespace    types.NamespaceID        `json:"namespace"`
	TotalVectors int                      `json:"total_vectors"`
	Categories   map[types.CategoryID]int `json:"categories"`
}

// NewNamespaceStats builds stats by counting the given cases
func NewNamespaceStats(ns types.NamespaceID, refs []*ReferenceCase) *NamespaceStats {
	stats := &NamespaceStats{
		Namespace:  ns,
		Categories: make(map[types.CategoryID]int),
	}
	for _, ref := range refs {
		stats.TotalVectors++
		stats.Categories[ref.Metadata.Category]++
	}
	return stats
}

// RankSimilarCases drops cases at or below SimilarityFloor, orders the rest by similarity
// descending (ties by CreatedAt, then ID) and truncates to limit. The result is never nil.
func RankSimilarCases(cases []*SimilarCase, limit int) []*SimilarCase {
	result := make([]*SimilarCase, 0, len(cases))
	for _, c := range cases {
		if c == nil || math.IsNaN(c.Similarity) || c.Similarity <= SimilarityFloor {
			continue
		}
		result = append(result, c)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Similarity != result[j].Similarity {
			return result[i].Similarity > result[j].Similarity
		}
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ReferenceID < result[j].ReferenceID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// CosineSimilarity returns the cosine similarity of a and b, or 0 when the lengths differ
// or either vector is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// Paginate normalizes a 1-based page and a limit into an offset and limit
func Paginate(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return (page - 1) * limit, limit
}

// Validate checks a reference case before it is persisted
func (r *ReferenceCase) Validate(registry *CategoryRegistry) error {
	if err := r.Namespace.Validate(); err != nil {
		return goerr.Wrap(ErrInvalidMetadata, "invalid namespace", goerr.V(NamespaceKey, r.Namespace), goerr.V("cause", err.Error()))
	}
	if len(r.Embedding) == 0 {
		return goerr.Wrap(ErrEmptyEmbedding, "reference case has no embedding", goerr.V(ReferenceIDKey, r.ID))
	}
	return r.Metadata.Validate(registry)
}

// Clone returns a deep copy of the reference case
func (r *ReferenceCase) Clone() *ReferenceCase {
	copied := *r
	copied.Metadata = r.Metadata.Clone()
	if r.Embedding != nil {
		copied.Embedding = make([]float32, len(r.Embedding))
		copy(copied.Embedding, r.Embedding)
	}
	return &copied
}
