package config

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/domain/interfaces"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/repository/firestore"
	"github.com/secmon-lab/argus/pkg/repository/memory"
	"github.com/secmon-lab/argus/pkg/repository/pinecone"
	"github.com/secmon-lab/argus/pkg/repository/postgres"
	"github.com/secmon-lab/argus/pkg/repository/qdrant"
	"github.com/secmon-lab/argus/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
	BackendPinecone  = "pinecone"
	BackendQdrant    = "qdrant"
)

// Repository holds CLI flags for repository backend configuration
type Repository struct {
	backend          string
	namespaceBackend string

	projectID        string
	databaseID       string
	collectionPrefix string

	postgresDSN string
	tablePrefix string

	pineconeAPIKey string
	pineconeIndex  string

	qdrantAddr       string
	qdrantAPIKey     string
	qdrantTLS        bool
	qdrantCollection string
}

// Flags returns CLI flags for repository configuration
func (r *Repository) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "repository-backend",
			Usage:       "Reference store backend (memory, firestore, postgres, pinecone, qdrant)",
			Value:       BackendMemory,
			Category:    "Repository",
			Sources:     cli.EnvVars("ARGUS_REPOSITORY_BACKEND"),
			Destination: &r.backend,
		},
		&cli.StringFlag{
			Name:        "namespace-backend",
			Usage:       "Namespace registry backend for pinecone and qdrant (memory, firestore, postgres)",
			Value:       BackendMemory,
			Category:    "Repository",
			Sources:     cli.EnvVars("ARGUS_NAMESPACE_BACKEND"),
			Destination: &r.namespaceBackend,
		},
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Firestore Project ID (required when using firestore backend)",
			Category:    "Repository",
			Sources:     cli.EnvVars("ARGUS_FIRESTORE_PROJECT_ID"),
			Destination: &r.projectID,
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore Database ID",
			Category:    "Repository",
			Sources:     cli.EnvVars("ARGUS_FIRESTORE_DATABASE_ID"),
			Destination: &r.databaseID,
		},
		&cli.StringFlag{
			Name:        "firestore-collection-prefix",
			Usage:       "Prefix of the Firestore collections",
			Category:    "Repository",
			Sources:     cli.EnvVars("ARGUS_FIRESTORE_COLLECTION_PREFIX"),
			Destination: &r.collectionPrefix,
		},
		&cli.StringFlag{
			Name:        "postgres-dsn",
			Usage:       "PostgreSQL DSN (required when using postgres backend)",
			Category:    "Repository",
			Sources:     cli.EnvVars("ARGUS_POSTGRES_DSN"),
			Destination: &r.postgresDSN,
		},
		&cli.StringFlag{
			Name:        "postgres-table-prefix",
			Usage:       "Prefix of the PostgreSQL tables",
			Value:       "argus_",
			Category:    "Repository",
			Sources:     cli.EnvVars("ARGUS_POSTGRES_TABLE_PREFIX"),
			Destination: &r.tablePrefix,
		},
		&cli.StringFlag{
			Name:        "pinecone-api-key",
			Usage:       "Pinecone API key",
			Category:    "Repository",
			Sources:     cli.EnvVars("ARGUS_PINECONE_API_KEY"),
			Destination: &r.pineconeAPIKey,
		},
		&cli.StringFlag{
			Name:        "pinecone-index",
			Usage:       "Pinecone index name or host",
			Category:    "Repository",
			Sources:     cli.EnvVars("ARGUS_PINECONE_INDEX"),
			Destination: &r.pineconeIndex,
		},
		&cli.StringFlag{
			Name:        "qdrant-addr",
			Usage:       "Qdrant gRPC address (host:port)",
			Value:       "localhost:6334",
			Category:    "Repository",
			Sources:     cli.EnvVars("ARGUS_QDRANT_ADDR"),
			Destination: &r.qdrantAddr,
		},
		&cli.StringFlag{
			Name:        "qdrant-api-key",
			Usage:       "Qdrant API key",
			Category:    "Repository",
			Sources:     cli.EnvVars("ARGUS_QDRANT_API_KEY"),
			Destination: &r.qdrantAPIKey,
		},
		&cli.BoolFlag{
			Name:        "qdrant-tls",
			Usage:       "Connect to Qdrant with TLS",
			Category:    "Repository",
			Sources:     cli.EnvVars("ARGUS_QDRANT_TLS"),
			Destination: &r.qdrantTLS,
		},
		&cli.StringFlag{
			Name:        "qdrant-collection",
			Usage:       "Qdrant collection name",
			Value:       qdrant.DefaultCollection,
			Category:    "Repository",
			Sources:     cli.EnvVars("ARGUS_QDRANT_COLLECTION"),
			Destination: &r.qdrantCollection,
		},
	}
}

func (r Repository) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("backend", r.backend),
		slog.String("namespace_backend", r.namespaceBackend),
		slog.String("firestore_project_id", r.projectID),
		slog.String("firestore_database_id", r.databaseID),
		slog.Int("postgres_dsn.len", len(r.postgresDSN)),
		slog.String("pinecone_index", r.pineconeIndex),
		slog.String("qdrant_addr", r.qdrantAddr),
	)
}

// Backend returns the configured backend type
func (r *Repository) Backend() string {
	return r.backend
}

// ProjectID returns the Firestore project ID
func (r *Repository) ProjectID() string {
	return r.projectID
}

// DatabaseID returns the Firestore database ID
func (r *Repository) DatabaseID() string {
	return r.databaseID
}

// CollectionPrefix returns the Firestore collection prefix
func (r *Repository) CollectionPrefix() string {
	return r.collectionPrefix
}

// PostgresDSN returns the PostgreSQL DSN
func (r *Repository) PostgresDSN() string {
	return r.postgresDSN
}

// TablePrefix returns the PostgreSQL table prefix
func (r *Repository) TablePrefix() string {
	return r.tablePrefix
}

// Configure initializes and returns a repository based on the configured backend.
// dimension is only used to create a missing Qdrant collection.
// The caller is responsible for calling Close() on the returned repository.
func (r *Repository) Configure(ctx context.Context, registry *model.CategoryRegistry, dimension int) (interfaces.Repository, error) {
	logger := logging.Default()

	switch r.backend {
	case BackendMemory, BackendFirestore, BackendPostgres:
		repo, err := r.open(ctx, r.backend, registry)
		if err != nil {
			return nil, err
		}
		if r.backend == BackendMemory {
			logger.Info("Using in-memory repository (development mode)")
		}
		return repo, nil

	case BackendPinecone:
		if r.pineconeAPIKey == "" || r.pineconeIndex == "" {
			return nil, goerr.Wrap(ErrMissingCredential, "pinecone-api-key and pinecone-index are required when using pinecone backend")
		}
		nsRepo, err := r.open(ctx, r.namespaceBackend, registry)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize namespace registry")
		}
		repo, err := pinecone.New(ctx, r.pineconeAPIKey, r.pineconeIndex, nsRepo.Namespace(), pinecone.WithCategoryRegistry(registry))
		if err != nil {
			_ = nsRepo.Close()
			return nil, goerr.Wrap(err, "failed to initialize pinecone repository")
		}
		logger.Info("Using Pinecone repository", "index", r.pineconeIndex, "namespace_backend", r.namespaceBackend)
		return &composedRepository{Repository: repo, registry: nsRepo}, nil

	case BackendQdrant:
		nsRepo, err := r.open(ctx, r.namespaceBackend, registry)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize namespace registry")
		}
		repo, err := qdrant.New(ctx, qdrant.Config{
			Addr:       r.qdrantAddr,
			APIKey:     r.qdrantAPIKey,
			UseTLS:     r.qdrantTLS,
			Collection: r.qdrantCollection,
			Dimension:  dimension,
		}, nsRepo.Namespace(), qdrant.WithCategoryRegistry(registry))
		if err != nil {
			_ = nsRepo.Close()
			return nil, goerr.Wrap(err, "failed to initialize qdrant repository")
		}
		logger.Info("Using Qdrant repository", "addr", r.qdrantAddr, "collection", r.qdrantCollection, "namespace_backend", r.namespaceBackend)
		return &composedRepository{Repository: repo, registry: nsRepo}, nil

	default:
		return nil, goerr.Wrap(ErrUnknownBackend, "invalid repository backend", goerr.V(BackendKey, r.backend))
	}
}

// open builds one of the repositories that also keep a namespace registry
func (r *Repository) open(ctx context.Context, backend string, registry *model.CategoryRegistry) (interfaces.Repository, error) {
	switch backend {
	case BackendMemory:
		return memory.New(memory.WithCategoryRegistry(registry)), nil

	case BackendFirestore:
		if r.projectID == "" {
			return nil, goerr.Wrap(ErrMissingCredential, "firestore-project-id is required when using firestore backend")
		}
		repo, err := firestore.New(ctx, r.projectID, r.databaseID,
			firestore.WithCollectionPrefix(r.collectionPrefix),
			firestore.WithCategoryRegistry(registry),
		)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize firestore repository")
		}
		logging.Default().Info("Using Firestore repository",
			"project_id", r.projectID,
			"database_id", r.databaseID,
		)
		return repo, nil

	case BackendPostgres:
		if r.postgresDSN == "" {
			return nil, goerr.Wrap(ErrMissingCredential, "postgres-dsn is required when using postgres backend")
		}
		repo, err := postgres.New(ctx, r.postgresDSN,
			postgres.WithTablePrefix(r.tablePrefix),
			postgres.WithCategoryRegistry(registry),
		)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize postgres repository")
		}
		logging.Default().Info("Using PostgreSQL repository", "table_prefix", r.tablePrefix)
		return repo, nil

	default:
		return nil, goerr.Wrap(ErrUnknownBackend, "invalid repository backend", goerr.V(BackendKey, backend))
	}
}

// composedRepository closes the repository that provides the namespace registry together
// with the vector store
type composedRepository struct {
	interfaces.Repository
	registry io.Closer
}

func (c *composedRepository) Close() error {
	return errors.Join(c.Repository.Close(), c.registry.Close())
}
