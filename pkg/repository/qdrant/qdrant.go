// Package qdrant stores reference cases in a single Qdrant collection. Namespaces are a
// payload field used as a filter, and the namespace registry is delegated to another
// repository as Qdrant has no place for namespace metadata.
package qdrant

import (
	"context"
	"net"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/qdrant/go-client/qdrant"
	"github.com/secmon-lab/argus/pkg/domain/interfaces"
	"github.com/secmon-lab/argus/pkg/domain/model"
)

const DefaultCollection = "argus_references"

// pointsClient is the subset of *qdrant.Client used by the repository
type pointsClient interface {
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Get(ctx context.Context, request *qdrant.GetPoints) ([]*qdrant.RetrievedPoint, error)
	ScrollAndOffset(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	Close() error
}

// Config holds the connection settings of a Qdrant server
type Config struct {
	// Addr is host:port of the gRPC endpoint
	Addr       string
	APIKey     string
	UseTLS     bool
	Collection string
	// Dimension is used to create the collection when it does not exist yet
	Dimension int
}

type Qdrant struct {
	reference  *referenceRepository
	namespaces interfaces.NamespaceRepository
}

var _ interfaces.Repository = &Qdrant{}

type Option func(*Qdrant)

// WithCategoryRegistry sets the registry used to validate reference metadata
func WithCategoryRegistry(registry *model.CategoryRegistry) Option {
	return func(q *Qdrant) {
		q.reference.registry = registry
	}
}

// New connects to Qdrant and makes sure the collection and its payload indexes exist
func New(ctx context.Context, cfg Config, namespaces interfaces.NamespaceRepository, opts ...Option) (*Qdrant, error) {
	host, portStr, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid qdrant address", goerr.V("addr", cfg.Addr))
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid qdrant port", goerr.V("addr", cfg.Addr))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create qdrant client", goerr.V("addr", cfg.Addr))
	}

	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}

	if err := ensureCollection(ctx, client, collection, cfg.Dimension); err != nil {
		_ = client.Close()
		return nil, err
	}

	return newQdrant(client, collection, namespaces, opts...), nil
}

func ensureCollection(ctx context.Context, client *qdrant.Client, collection string, dimension int) error {
	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		return goerr.Wrap(err, "failed to check qdrant collection", goerr.V("collection", collection))
	}
	if exists {
		return nil
	}
	if dimension <= 0 {
		return goerr.New("embedding dimension is required to create qdrant collection", goerr.V("collection", collection))
	}

	if err := client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	}); err != nil {
		return goerr.Wrap(err, "failed to create qdrant collection", goerr.V("collection", collection))
	}

	for _, field := range []string{payloadNamespace, payloadCategory} {
		if _, err := client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: collection,
			Wait:           qdrant.PtrOf(true),
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		}); err != nil {
			return goerr.Wrap(err, "failed to create qdrant field index", goerr.V("collection", collection), goerr.V("field", field))
		}
	}
	return nil
}

func newQdrant(client pointsClient, collection string, namespaces interfaces.NamespaceRepository, opts ...Option) *Qdrant {
	q := &Qdrant{
		namespaces: namespaces,
		reference: &referenceRepository{
			client:     client,
			collection: collection,
			namespaces: namespaces,
			registry:   model.DefaultCategoryRegistry(),
		},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Qdrant) Reference() interfaces.ReferenceRepository {
	return q.reference
}

func (q *Qdrant) Namespace() interfaces.NamespaceRepository {
	return q.namespaces
}

func (q *Qdrant) Close() error {
	if err := q.reference.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close qdrant client")
	}
	return nil
}
