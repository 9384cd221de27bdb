package memory

import (
	"github.com/secmon-lab/argus/pkg/domain/interfaces"
	"github.com/secmon-lab/argus/pkg/domain/model"
)

// Repository is an alias for Memory to match the pattern
type Repository = Memory

type Memory struct {
	reference *referenceRepository
	namespace *namespaceRepository
}

var _ interfaces.Repository = &Memory{}

type Option func(*Memory)

// WithCategoryRegistry sets the registry used to validate reference metadata
func WithCategoryRegistry(registry *model.CategoryRegistry) Option {
	return func(m *Memory) {
		m.reference.registry = registry
	}
}

func New(opts ...Option) *Memory {
	nsRepo := newNamespaceRepository()
	m := &Memory{
		reference: newReferenceRepository(nsRepo),
		namespace: nsRepo,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Reference() interfaces.ReferenceRepository {
	return m.reference
}

func (m *Memory) Namespace() interfaces.NamespaceRepository {
	return m.namespace
}

func (m *Memory) Close() error {
	return nil
}
