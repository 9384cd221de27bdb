package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/cli/config"
	"github.com/secmon-lab/argus/pkg/domain/interfaces"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/usecase"
	"github.com/secmon-lab/argus/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// serviceConfig collects the flags shared by every command that runs the validation
// pipeline
type serviceConfig struct {
	app        config.AppConfig
	repo       config.Repository
	llm        config.LLM
	embedder   config.Embedder
	images     config.ImageStore
	cache      config.NamespaceCache
	timeout    time.Duration
	batchLimit int
}

func (x *serviceConfig) Flags() []cli.Flag {
	flags := []cli.Flag{
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "Timeout of each call to the embedder, judge and stores",
			Value:       usecase.DefaultTimeout,
			Sources:     cli.EnvVars("ARGUS_TIMEOUT"),
			Destination: &x.timeout,
		},
		&cli.IntFlag{
			Name:        "batch-limit",
			Usage:       "Number of images validated concurrently in folder mode",
			Value:       usecase.DefaultBatchLimit,
			Sources:     cli.EnvVars("ARGUS_BATCH_LIMIT"),
			Destination: &x.batchLimit,
		},
	}
	flags = append(flags, x.app.Flags()...)
	flags = append(flags, x.repo.Flags()...)
	flags = append(flags, x.llm.Flags()...)
	flags = append(flags, x.embedder.Flags()...)
	flags = append(flags, x.images.Flags()...)
	flags = append(flags, x.cache.Flags()...)
	return flags
}

func (x serviceConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("config", x.app),
		slog.Any("repository", x.repo),
		slog.Any("llm", x.llm),
		slog.Any("embedder", x.embedder),
		slog.Any("image_store", x.images),
		slog.Any("cache", x.cache),
		slog.Duration("timeout", x.timeout),
		slog.Int("batch_limit", x.batchLimit),
	)
}

// services is the wired pipeline. Close releases every backend connection.
type services struct {
	uc           *usecase.UseCases
	repo         interfaces.Repository
	registry     *model.CategoryRegistry
	cache        interfaces.NamespaceCache
	healthChecks map[string]func(context.Context) error
	closers      []func()
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildMode selects which parts of the pipeline a command needs, so that a command does
// not require credentials of services it never calls
type buildMode int

const (
	// buildAdmin manages namespaces and reference cases only
	buildAdmin buildMode = iota
	// buildTraining stores ground truth and needs no judge
	buildTraining
	buildValidation
)

// build wires the configured backends
func (x *serviceConfig) build(ctx context.Context, mode buildMode) (*services, error) {
	logger := logging.Default()
	logger.Debug("building services", "config", x)

	registry, err := x.app.Configure()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load category configuration")
	}

	svc := &services{
		registry:     registry,
		healthChecks: map[string]func(context.Context) error{},
	}
	ok := false
	defer func() {
		if !ok {
			svc.Close()
		}
	}()

	var embedder interfaces.Embedder
	dimension := x.embedder.Dimension()
	if mode != buildAdmin {
		e, health, err := x.embedder.Configure(ctx, &x.llm)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to configure embedder")
		}
		if health != nil {
			svc.healthChecks["embedder"] = health
		}
		embedder = e
		dimension = e.Dimension()
	}

	repo, err := x.repo.Configure(ctx, registry, dimension)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize repository")
	}
	svc.repo = repo
	svc.closers = append(svc.closers, func() {
		if err := repo.Close(); err != nil {
			logger.Error("failed to close repository", logging.ErrAttr(err))
		}
	})

	cache, closeCache, err := x.cache.Configure(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to configure namespace cache")
	}
	svc.cache = cache
	svc.closers = append(svc.closers, closeCache)

	opts := []usecase.Option{
		usecase.WithCategoryRegistry(registry),
		usecase.WithNamespaceCache(cache),
		usecase.WithTimeout(x.timeout),
		usecase.WithBatchLimit(x.batchLimit),
	}

	if mode == buildValidation {
		judge, err := x.llm.Configure(ctx)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to configure judge")
		}
		if judge != nil {
			opts = append(opts, usecase.WithJudge(judge))
		}
	}

	images, err := x.images.Configure(ctx)
	if err != nil {
		return nil, err
	}
	if images != nil {
		opts = append(opts, usecase.WithImageStore(images))
		svc.closers = append(svc.closers, func() {
			if err := images.Close(); err != nil {
				logger.Error("failed to close image store", logging.ErrAttr(err))
			}
		})
	}

	svc.uc = usecase.New(repo, embedder, opts...)
	ok = true
	return svc, nil
}
