package cli

import (
	"context"

	"github.com/m-mizutani/fireconf"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/cli/config"
	"github.com/secmon-lab/argus/pkg/repository/firestore"
	"github.com/secmon-lab/argus/pkg/repository/postgres"
	"github.com/secmon-lab/argus/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdMigrate() *cli.Command {
	var repoCfg config.Repository
	var dimension int
	var dryRun bool

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "dimension",
			Usage:       "Embedding dimension of the vector index (required)",
			Required:    true,
			Sources:     cli.EnvVars("ARGUS_EMBEDDING_DIMENSION"),
			Destination: &dimension,
		},
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "Preview changes without applying (firestore only)",
			Destination: &dryRun,
		},
	}
	flags = append(flags, repoCfg.Flags()...)

	return &cli.Command{
		Name:    "migrate",
		Aliases: []string{"m"},
		Usage:   "Create the vector indexes of the firestore or postgres backend",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if dimension <= 0 {
				return goerr.New("dimension must be positive", goerr.V("dimension", dimension))
			}

			switch repoCfg.Backend() {
			case config.BackendFirestore:
				return migrateFirestore(ctx, &repoCfg, dimension, dryRun)
			case config.BackendPostgres:
				return migratePostgres(ctx, &repoCfg, dimension)
			default:
				return goerr.Wrap(config.ErrUnknownBackend, "migrate supports firestore and postgres",
					goerr.V(config.BackendKey, repoCfg.Backend()))
			}
		},
	}
}

func migrateFirestore(ctx context.Context, repoCfg *config.Repository, dimension int, dryRun bool) error {
	logger := logging.Default()
	if repoCfg.ProjectID() == "" {
		return goerr.Wrap(config.ErrMissingCredential, "firestore-project-id is required")
	}

	logger.Info("Migrate configuration",
		"projectID", repoCfg.ProjectID(),
		"databaseID", repoCfg.DatabaseID(),
		"dimension", dimension,
		"dryRun", dryRun)

	indexConfig := getIndexConfig(dimension)

	client, err := fireconf.NewClient(ctx, repoCfg.ProjectID(), repoCfg.DatabaseID())
	if err != nil {
		return goerr.Wrap(err, "failed to create fireconf client")
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close fireconf client", logging.ErrAttr(err))
		}
	}()

	if dryRun {
		logger.Info("Dry run mode - previewing changes")
		plan, err := client.GetMigrationPlan(ctx, indexConfig)
		if err != nil {
			return goerr.Wrap(err, "failed to create migration plan")
		}

		if len(plan.Steps) == 0 {
			logger.Info("No changes required")
			return nil
		}

		for _, step := range plan.Steps {
			logger.Info("Migration step",
				"collection", step.Collection,
				"operation", step.Operation,
				"description", step.Description,
				"destructive", step.Destructive)
		}
		return nil
	}

	logger.Info("Applying migrations")
	if err := client.Migrate(ctx, indexConfig); err != nil {
		return goerr.Wrap(err, "failed to apply migrations")
	}
	logger.Info("Migrations applied successfully")
	return nil
}

func migratePostgres(ctx context.Context, repoCfg *config.Repository, dimension int) error {
	if repoCfg.PostgresDSN() == "" {
		return goerr.Wrap(config.ErrMissingCredential, "postgres-dsn is required")
	}

	repo, err := postgres.New(ctx, repoCfg.PostgresDSN(), postgres.WithTablePrefix(repoCfg.TablePrefix()))
	if err != nil {
		return goerr.Wrap(err, "failed to connect to postgres")
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logging.Default().Error("failed to close repository", logging.ErrAttr(err))
		}
	}()

	if err := repo.Migrate(ctx, dimension); err != nil {
		return goerr.Wrap(err, "failed to migrate postgres schema")
	}
	logging.Default().Info("PostgreSQL schema migrated", "table_prefix", repoCfg.TablePrefix(), "dimension", dimension)
	return nil
}

// getIndexConfig returns the Firestore index configuration. Reference cases live in the
// "references" subcollection of each namespace and are searched by category.
func getIndexConfig(dimension int) *fireconf.Config {
	return &fireconf.Config{
		Collections: []fireconf.Collection{
			{
				Name: firestore.ReferencesCollection,
				Indexes: []fireconf.Index{
					// FindNearest: Category ==, vector search on Embedding
					{
						Fields: []fireconf.IndexField{
							{Path: "Category", Order: fireconf.OrderAscending},
							{
								Path: firestore.EmbeddingField,
								Vector: &fireconf.VectorConfig{
									Dimension: dimension,
								},
							},
						},
					},
				},
			},
		},
	}
}
