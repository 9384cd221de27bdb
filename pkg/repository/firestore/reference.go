package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// ReferencesCollection is the subcollection of a namespace document holding its cases
	ReferencesCollection = "references"
	// EmbeddingField is the vector field declared in the Firestore vector index
	EmbeddingField = "Embedding"

	distanceField = "Distance"
)

// referenceDoc is the Firestore document representation of model.ReferenceCase.
// Embedding is stored as firestore.Vector32 so that FindNearest vector search works.
type referenceDoc struct {
	ID            string             `firestore:"ID"`
	Namespace     string             `firestore:"Namespace"`
	Category      string             `firestore:"Category"`
	State         string             `firestore:"State"`
	Confidence    float64            `firestore:"Confidence"`
	Valid         *bool              `firestore:"Valid,omitempty"`
	KeyFeatures   []string           `firestore:"KeyFeatures"`
	Diagnosis     *model.Diagnosis   `firestore:"Diagnosis,omitempty"`
	DiagnosisText string             `firestore:"DiagnosisText"`
	ImageRef      string             `firestore:"ImageRef"`
	Prompt        string             `firestore:"Prompt"`
	Embedding     firestore.Vector32 `firestore:"Embedding"`
	CreatedAt     time.Time          `firestore:"CreatedAt"`

	// Distance is only set on FindNearest results
	Distance float64 `firestore:"Distance,omitempty"`
}

func toReferenceDoc(ref *model.ReferenceCase) *referenceDoc {
	return &referenceDoc{
		ID:            ref.ID.String(),
		Namespace:     ref.Namespace.String(),
		Category:      ref.Metadata.Category.String(),
		State:         ref.Metadata.State.String(),
		Confidence:    ref.Metadata.Confidence,
		Valid:         ref.Metadata.Valid,
		KeyFeatures:   ref.Metadata.KeyFeatures,
		Diagnosis:     ref.Metadata.Diagnosis,
		DiagnosisText: ref.Metadata.DiagnosisText,
		ImageRef:      ref.Metadata.ImageRef,
		Prompt:        ref.Metadata.Prompt,
		Embedding:     firestore.Vector32(ref.Embedding),
		CreatedAt:     ref.CreatedAt,
	}
}

func fromReferenceDoc(d *referenceDoc) *model.ReferenceCase {
	return &model.ReferenceCase{
		ID:        model.ReferenceID(d.ID),
		Namespace: types.NamespaceID(d.Namespace),
		Metadata: model.ReferenceMetadata{
			Category:      types.CategoryID(d.Category),
			State:         types.State(d.State),
			Confidence:    d.Confidence,
			Valid:         d.Valid,
			KeyFeatures:   d.KeyFeatures,
			Diagnosis:     d.Diagnosis,
			DiagnosisText: d.DiagnosisText,
			ImageRef:      d.ImageRef,
			Prompt:        d.Prompt,
		},
		Embedding: []float32(d.Embedding),
		CreatedAt: d.CreatedAt,
	}
}

func docToReference(doc *firestore.DocumentSnapshot) (*referenceDoc, error) {
	var d referenceDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

type referenceRepository struct {
	client           *firestore.Client
	namespaces       *namespaceRepository
	registry         *model.CategoryRegistry
	collectionPrefix string
}

func newReferenceRepository(client *firestore.Client, namespaces *namespaceRepository) *referenceRepository {
	return &referenceRepository{
		client:     client,
		namespaces: namespaces,
		registry:   model.DefaultCategoryRegistry(),
	}
}

// referencesCollection returns the subcollection path:
// namespaces/{namespaceID}/references
func (r *referenceRepository) referencesCollection(ns types.NamespaceID) *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + NamespacesCollection).
		Doc(ns.String()).
		Collection(ReferencesCollection)
}

func (r *referenceRepository) FindNearest(ctx context.Context, vector []float32, category types.CategoryID, ns types.NamespaceID, limit int) ([]*model.SimilarCase, error) {
	if limit <= 0 {
		limit = model.DefaultNeighborLimit
	}

	// cosine distance is 1 - similarity
	threshold := 1 - model.SimilarityFloor
	vq := r.referencesCollection(ns).
		Where("Category", "==", category.String()).
		FindNearest(EmbeddingField, firestore.Vector32(vector), limit, firestore.DistanceMeasureCosine,
			&firestore.FindNearestOptions{
				DistanceThreshold:   &threshold,
				DistanceResultField: distanceField,
			})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	cases := make([]*model.SimilarCase, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate reference vector search results",
				goerr.V(model.NamespaceKey, ns),
				goerr.V(model.CategoryKey, category))
		}

		d, err := docToReference(doc)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal reference from vector search")
		}
		cases = append(cases, model.NewSimilarCase(fromReferenceDoc(d), 1-d.Distance))
	}

	return model.RankSimilarCases(cases, limit), nil
}

func (r *referenceRepository) Store(ctx context.Context, ref *model.ReferenceCase) ([]*model.SimilarCase, error) {
	if err := ref.Validate(r.registry); err != nil {
		return nil, err
	}

	if _, err := r.namespaces.Upsert(ctx, &model.Namespace{ID: ref.Namespace}); err != nil {
		return nil, goerr.Wrap(err, "failed to register namespace", goerr.V(model.NamespaceKey, ref.Namespace))
	}

	created := ref.Clone()
	if created.ID == "" {
		created.ID = model.NewReferenceID()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	docRef := r.referencesCollection(created.Namespace).Doc(created.ID.String())
	if _, err := docRef.Set(ctx, toReferenceDoc(created)); err != nil {
		return nil, goerr.Wrap(err, "failed to store reference case",
			goerr.V(model.NamespaceKey, created.Namespace),
			goerr.V(model.ReferenceIDKey, created.ID))
	}

	return r.FindNearest(ctx, created.Embedding, created.Metadata.Category, created.Namespace, model.DefaultNeighborLimit)
}

func (r *referenceRepository) ClearNamespace(ctx context.Context, ns types.NamespaceID) error {
	const batchSize = 500

	for {
		iter := r.referencesCollection(ns).Limit(batchSize).Documents(ctx)
		bulkWriter := r.client.BulkWriter(ctx)
		count := 0

		for {
			doc, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				iter.Stop()
				bulkWriter.End()
				return goerr.Wrap(err, "failed to iterate references for deletion", goerr.V(model.NamespaceKey, ns))
			}

			if _, err := bulkWriter.Delete(doc.Ref); err != nil {
				iter.Stop()
				bulkWriter.End()
				return goerr.Wrap(err, "failed to delete reference case", goerr.V(model.NamespaceKey, ns))
			}
			count++
		}
		iter.Stop()
		bulkWriter.End()

		if count < batchSize {
			break
		}
	}

	return nil
}

func (r *referenceRepository) DeleteOne(ctx context.Context, ns types.NamespaceID, id model.ReferenceID) error {
	docRef := r.referencesCollection(ns).Doc(id.String())

	if _, err := docRef.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(model.ErrNotFound, "reference case not found",
				goerr.V(model.NamespaceKey, ns), goerr.V(model.ReferenceIDKey, id))
		}
		return goerr.Wrap(err, "failed to get reference case",
			goerr.V(model.NamespaceKey, ns), goerr.V(model.ReferenceIDKey, id))
	}

	if _, err := docRef.Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete reference case",
			goerr.V(model.NamespaceKey, ns), goerr.V(model.ReferenceIDKey, id))
	}
	return nil
}

func (r *referenceRepository) List(ctx context.Context, ns types.NamespaceID, page, limit int) ([]*model.ReferenceCase, int, error) {
	offset, limit := model.Paginate(page, limit)

	// Get total count first
	allDocs, err := r.referencesCollection(ns).Select().Documents(ctx).GetAll()
	if err != nil {
		return nil, 0, goerr.Wrap(err, "failed to count reference cases", goerr.V(model.NamespaceKey, ns))
	}
	total := len(allDocs)

	iter := r.referencesCollection(ns).
		OrderBy("CreatedAt", firestore.Desc).
		Offset(offset).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	refs := make([]*model.ReferenceCase, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, 0, goerr.Wrap(err, "failed to iterate reference cases", goerr.V(model.NamespaceKey, ns))
		}

		d, err := docToReference(doc)
		if err != nil {
			return nil, 0, goerr.Wrap(err, "failed to unmarshal reference case")
		}
		refs = append(refs, fromReferenceDoc(d))
	}

	return refs, total, nil
}

func (r *referenceRepository) Stats(ctx context.Context, ns types.NamespaceID) (*model.NamespaceStats, error) {
	iter := r.referencesCollection(ns).Select("Category").Documents(ctx)
	defer iter.Stop()

	var refs []*model.ReferenceCase
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate reference cases", goerr.V(model.NamespaceKey, ns))
		}

		category, err := doc.DataAt("Category")
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read category", goerr.V("doc", doc.Ref.ID))
		}
		s, _ := category.(string)
		refs = append(refs, &model.ReferenceCase{Metadata: model.ReferenceMetadata{Category: types.CategoryID(s)}})
	}

	return model.NewNamespaceStats(ns, refs), nil
}
