package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/domain/interfaces"
	"github.com/secmon-lab/argus/pkg/domain/model"
)

type Firestore struct {
	client    *firestore.Client
	reference *referenceRepository
	namespace *namespaceRepository
}

var _ interfaces.Repository = &Firestore{}

type Option func(*Firestore)

func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.reference.collectionPrefix = prefix
		f.namespace.collectionPrefix = prefix
	}
}

// WithCategoryRegistry sets the registry used to validate reference metadata
func WithCategoryRegistry(registry *model.CategoryRegistry) Option {
	return func(f *Firestore) {
		f.reference.registry = registry
	}
}

// New creates a Firestore repository. An empty databaseID selects the default database.
func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID),
			goerr.V("databaseID", databaseID))
	}

	nsRepo := newNamespaceRepository(client)
	f := &Firestore{
		client:    client,
		reference: newReferenceRepository(client, nsRepo),
		namespace: nsRepo,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

func (f *Firestore) Reference() interfaces.ReferenceRepository {
	return f.reference
}

func (f *Firestore) Namespace() interfaces.NamespaceRepository {
	return f.namespace
}

func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}
