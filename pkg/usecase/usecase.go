package usecase

import (
	"time"

	"github.com/secmon-lab/argus/pkg/domain/interfaces"
	"github.com/secmon-lab/argus/pkg/domain/model"
)

const DefaultTimeout = 60 * time.Second

type UseCases struct {
	repo       interfaces.Repository
	embedder   interfaces.Embedder
	judge      interfaces.Judge
	imageStore interfaces.ImageStore
	cache      interfaces.NamespaceCache
	registry   *model.CategoryRegistry
	timeout    time.Duration
	batchLimit int
	now        func() time.Time

	Validation *ValidationUseCase
	Namespace  *NamespaceUseCase
}

type Option func(*UseCases)

// WithJudge sets the vision judge. Without it only training mode is available.
func WithJudge(judge interfaces.Judge) Option {
	return func(uc *UseCases) {
		uc.judge = judge
	}
}

// WithImageStore keeps the image bytes of stored reference cases
func WithImageStore(store interfaces.ImageStore) Option {
	return func(uc *UseCases) {
		uc.imageStore = store
	}
}

func WithNamespaceCache(cache interfaces.NamespaceCache) Option {
	return func(uc *UseCases) {
		uc.cache = cache
	}
}

func WithCategoryRegistry(registry *model.CategoryRegistry) Option {
	return func(uc *UseCases) {
		uc.registry = registry
	}
}

// WithTimeout bounds every call to the embedder, judge, image store and repository
func WithTimeout(d time.Duration) Option {
	return func(uc *UseCases) {
		uc.timeout = d
	}
}

// WithBatchLimit sets how many images ValidateBatch processes at the same time
func WithBatchLimit(n int) Option {
	return func(uc *UseCases) {
		uc.batchLimit = n
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(uc *UseCases) {
		uc.now = now
	}
}

func New(repo interfaces.Repository, embedder interfaces.Embedder, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:       repo,
		embedder:   embedder,
		registry:   model.DefaultCategoryRegistry(),
		timeout:    DefaultTimeout,
		batchLimit: DefaultBatchLimit,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(uc)
	}

	uc.Validation = &ValidationUseCase{uc: uc}
	uc.Namespace = &NamespaceUseCase{uc: uc}

	return uc
}

// Registry returns the category registry in use
func (uc *UseCases) Registry() *model.CategoryRegistry {
	return uc.registry
}
