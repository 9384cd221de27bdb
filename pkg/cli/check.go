package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/cli/config"
	"github.com/secmon-lab/argus/pkg/usecase"
	"github.com/secmon-lab/argus/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdCheck() *cli.Command {
	var appCfg config.AppConfig
	var repoCfg config.Repository
	var checkDB bool

	var flags []cli.Flag
	flags = append(flags, appCfg.Flags()...)
	flags = append(flags, &cli.BoolFlag{
		Name:        "check-db",
		Usage:       "Check that stored reference cases match the configured categories",
		Destination: &checkDB,
	})
	flags = append(flags, repoCfg.Flags()...)

	return &cli.Command{
		Name:  "check",
		Usage: "Validate the category configuration and optionally the stored reference cases",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			registry, err := appCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "configuration validation failed")
			}

			categories := registry.List()
			logger.Info("Configuration validation passed",
				"path", appCfg.Path(),
				"category_count", len(categories),
			)
			for _, cat := range categories {
				logger.Info("Category validated",
					"id", cat.ID,
					"name", cat.Name,
					"states", cat.ExpectedStates,
				)
			}

			if !checkDB {
				logger.Info("Skipping DB consistency check")
				return nil
			}

			repo, err := repoCfg.Configure(ctx, registry, 0)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logger.Error("failed to close repository", logging.ErrAttr(err))
				}
			}()

			uc := usecase.New(repo, nil, usecase.WithCategoryRegistry(registry))
			result, err := uc.CheckReferences(ctx)
			if err != nil {
				return goerr.Wrap(err, "DB consistency check failed")
			}

			if result.HasIssues() {
				for _, issue := range result.Issues {
					logger.Warn("DB consistency issue found",
						"namespace", issue.Namespace,
						"reference_id", issue.ReferenceID,
						"category", issue.Category,
						"state", issue.State,
						"message", issue.Message,
					)
				}

				return fmt.Errorf("DB consistency check found %d issue(s)", len(result.Issues))
			}

			logger.Info("DB consistency check passed")
			return nil
		},
	}
}
