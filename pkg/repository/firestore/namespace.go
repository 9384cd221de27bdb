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

// NamespacesCollection is the root collection. Reference cases are stored in the
// "references" subcollection of each namespace document.
const NamespacesCollection = "namespaces"

type namespaceDoc struct {
	ID          string    `firestore:"ID"`
	Name        string    `firestore:"Name"`
	Description string    `firestore:"Description"`
	CreatedAt   time.Time `firestore:"CreatedAt"`
	UpdatedAt   time.Time `firestore:"UpdatedAt"`
}

func toNamespaceDoc(ns *model.Namespace) *namespaceDoc {
	return &namespaceDoc{
		ID:          ns.ID.String(),
		Name:        ns.Name,
		Description: ns.Description,
		CreatedAt:   ns.CreatedAt,
		UpdatedAt:   ns.UpdatedAt,
	}
}

func fromNamespaceDoc(d *namespaceDoc) *model.Namespace {
	return &model.Namespace{
		ID:          types.NamespaceID(d.ID),
		Name:        d.Name,
		Description: d.Description,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type namespaceRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newNamespaceRepository(client *firestore.Client) *namespaceRepository {
	return &namespaceRepository{client: client}
}

func (r *namespaceRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + NamespacesCollection)
}

func (r *namespaceRepository) Upsert(ctx context.Context, ns *model.Namespace) (*model.Namespace, error) {
	id := ns.ID.OrDefault()
	docRef := r.collection().Doc(id.String())

	var result *model.Namespace
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := time.Now().UTC()
		doc, err := tx.Get(docRef)
		if err != nil && status.Code(err) != codes.NotFound {
			return goerr.Wrap(err, "failed to get namespace", goerr.V(model.NamespaceKey, id))
		}

		if err == nil {
			var d namespaceDoc
			if err := doc.DataTo(&d); err != nil {
				return goerr.Wrap(err, "failed to unmarshal namespace", goerr.V(model.NamespaceKey, id))
			}
			d.UpdatedAt = now
			if ns.Description != "" {
				d.Description = ns.Description
			}
			result = fromNamespaceDoc(&d)
		} else {
			result = &model.Namespace{
				ID:          id,
				Name:        ns.Name,
				Description: ns.Description,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if result.Name == "" {
				result.Name = id.String()
			}
		}

		return tx.Set(docRef, toNamespaceDoc(result))
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to upsert namespace", goerr.V(model.NamespaceKey, id))
	}

	return result, nil
}

func (r *namespaceRepository) Create(ctx context.Context, ns *model.Namespace) (*model.Namespace, error) {
	id := ns.ID.OrDefault()
	now := time.Now().UTC()
	created := &model.Namespace{
		ID:          id,
		Name:        ns.Name,
		Description: ns.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if created.Name == "" {
		created.Name = id.String()
	}

	if _, err := r.collection().Doc(id.String()).Create(ctx, toNamespaceDoc(created)); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil, goerr.Wrap(model.ErrNamespaceExists, "namespace already exists", goerr.V(model.NamespaceKey, id))
		}
		return nil, goerr.Wrap(err, "failed to create namespace", goerr.V(model.NamespaceKey, id))
	}

	return created, nil
}

func (r *namespaceRepository) Get(ctx context.Context, id types.NamespaceID) (*model.Namespace, error) {
	doc, err := r.collection().Doc(id.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrNotFound, "namespace not found", goerr.V(model.NamespaceKey, id))
		}
		return nil, goerr.Wrap(err, "failed to get namespace", goerr.V(model.NamespaceKey, id))
	}

	var d namespaceDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal namespace", goerr.V(model.NamespaceKey, id))
	}
	return fromNamespaceDoc(&d), nil
}

func (r *namespaceRepository) List(ctx context.Context) ([]*model.Namespace, error) {
	iter := r.collection().OrderBy("ID", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	namespaces := make([]*model.Namespace, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate namespaces")
		}

		var d namespaceDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal namespace")
		}
		namespaces = append(namespaces, fromNamespaceDoc(&d))
	}

	return namespaces, nil
}

func (r *namespaceRepository) Delete(ctx context.Context, id types.NamespaceID) error {
	docRef := r.collection().Doc(id.String())
	if _, err := docRef.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(model.ErrNotFound, "namespace not found", goerr.V(model.NamespaceKey, id))
		}
		return goerr.Wrap(err, "failed to get namespace", goerr.V(model.NamespaceKey, id))
	}

	if _, err := docRef.Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete namespace", goerr.V(model.NamespaceKey, id))
	}
	return nil
}
