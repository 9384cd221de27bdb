// Package pinecone stores reference cases in a Pinecone index. Each argus namespace maps
// to a Pinecone namespace of the same name. Pinecone keeps no registry of namespaces with
// metadata, so the namespace registry is delegated to another repository.
package pinecone

import (
	"context"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pinecone-io/go-pinecone/v4/pinecone"
	"github.com/secmon-lab/argus/pkg/domain/interfaces"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/domain/types"
)

// indexClient is the subset of *pinecone.IndexConnection used by the repository
type indexClient interface {
	UpsertVectors(ctx context.Context, in []*pinecone.Vector) (uint32, error)
	QueryByVectorValues(ctx context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error)
	FetchVectors(ctx context.Context, ids []string) (*pinecone.FetchVectorsResponse, error)
	ListVectors(ctx context.Context, in *pinecone.ListVectorsRequest) (*pinecone.ListVectorsResponse, error)
	DeleteVectorsById(ctx context.Context, ids []string) error
	DeleteAllVectorsInNamespace(ctx context.Context) error
	DescribeIndexStats(ctx context.Context) (*pinecone.DescribeIndexStatsResponse, error)
	Close() error
}

type Pinecone struct {
	reference  *referenceRepository
	namespaces interfaces.NamespaceRepository
}

var _ interfaces.Repository = &Pinecone{}

type Option func(*Pinecone)

// WithCategoryRegistry sets the registry used to validate reference metadata
func WithCategoryRegistry(registry *model.CategoryRegistry) Option {
	return func(p *Pinecone) {
		p.reference.registry = registry
	}
}

// New connects to the index. index is either the index host or the index name, which is
// then resolved through DescribeIndex.
func New(ctx context.Context, apiKey, index string, namespaces interfaces.NamespaceRepository, opts ...Option) (*Pinecone, error) {
	pc, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: apiKey})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create pinecone client")
	}

	host := index
	if !strings.Contains(index, ".") {
		idx, err := pc.DescribeIndex(ctx, index)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to describe pinecone index", goerr.V("index", index))
		}
		host = idx.Host
	}

	connect := func(ns types.NamespaceID) (indexClient, error) {
		conn, err := pc.Index(pinecone.NewIndexConnParams{Host: host, Namespace: ns.String()})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to connect pinecone index", goerr.V("host", host), goerr.V(model.NamespaceKey, ns))
		}
		return conn, nil
	}

	return newPinecone(connect, namespaces, opts...), nil
}

func newPinecone(connect func(types.NamespaceID) (indexClient, error), namespaces interfaces.NamespaceRepository, opts ...Option) *Pinecone {
	p := &Pinecone{
		namespaces: namespaces,
		reference: &referenceRepository{
			connect:    connect,
			conns:      make(map[types.NamespaceID]indexClient),
			namespaces: namespaces,
			registry:   model.DefaultCategoryRegistry(),
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pinecone) Reference() interfaces.ReferenceRepository {
	return p.reference
}

func (p *Pinecone) Namespace() interfaces.NamespaceRepository {
	return p.namespaces
}

func (p *Pinecone) Close() error {
	return p.reference.close()
}

type referenceRepository struct {
	connect    func(types.NamespaceID) (indexClient, error)
	mu         sync.Mutex
	conns      map[types.NamespaceID]indexClient
	namespaces interfaces.NamespaceRepository
	registry   *model.CategoryRegistry
}

// conn returns the connection bound to the namespace, creating it on first use
func (r *referenceRepository) conn(ns types.NamespaceID) (indexClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.conns[ns]; ok {
		return c, nil
	}
	c, err := r.connect(ns)
	if err != nil {
		return nil, err
	}
	r.conns[ns] = c
	return c, nil
}

func (r *referenceRepository) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for ns, c := range r.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = goerr.Wrap(err, "failed to close pinecone connection", goerr.V(model.NamespaceKey, ns))
		}
	}
	r.conns = make(map[types.NamespaceID]indexClient)
	return firstErr
}
