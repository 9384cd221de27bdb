package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/domain/types"
	"github.com/secmon-lab/argus/pkg/utils/logging"
)

type NamespaceUseCase struct {
	uc *UseCases
}

func (x *NamespaceUseCase) parseID(name string) (types.NamespaceID, error) {
	ns := types.NewNamespaceID(name)
	if err := ns.Validate(); err != nil {
		return "", goerr.Wrap(ErrInvalidNamespace, "invalid namespace", goerr.V(model.NamespaceKey, name), goerr.V("cause", err.Error()))
	}
	return ns, nil
}

func (x *NamespaceUseCase) List(ctx context.Context) ([]*model.Namespace, error) {
	namespaces, err := x.uc.repo.Namespace().List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list namespaces")
	}
	return namespaces, nil
}

// Create registers a namespace. Its ID is derived from name. A new namespace holds no
// cases, so it is marked empty in the cache.
func (x *NamespaceUseCase) Create(ctx context.Context, name, description string) (*model.Namespace, error) {
	if _, err := x.parseID(name); err != nil {
		return nil, err
	}

	created, err := x.uc.repo.Namespace().Create(ctx, model.NewNamespace(name, description, x.uc.now().UTC()))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create namespace", goerr.V("name", name))
	}

	x.markCleared(ctx, created.ID)
	return created, nil
}

// Clear removes every reference case of the namespace but keeps its registry entry
func (x *NamespaceUseCase) Clear(ctx context.Context, name string) error {
	ns, err := x.parseID(name)
	if err != nil {
		return err
	}

	if err := x.uc.repo.Reference().ClearNamespace(ctx, ns); err != nil {
		return goerr.Wrap(err, "failed to clear namespace", goerr.V(model.NamespaceKey, ns))
	}

	x.markCleared(ctx, ns)
	logging.From(ctx).Info("namespace cleared", model.NamespaceKey, ns)
	return nil
}

// Delete clears the namespace and removes its registry entry
func (x *NamespaceUseCase) Delete(ctx context.Context, name string) error {
	ns, err := x.parseID(name)
	if err != nil {
		return err
	}

	if err := x.uc.repo.Reference().ClearNamespace(ctx, ns); err != nil {
		return goerr.Wrap(err, "failed to clear namespace", goerr.V(model.NamespaceKey, ns))
	}
	x.markCleared(ctx, ns)

	if err := x.uc.repo.Namespace().Delete(ctx, ns); err != nil {
		return goerr.Wrap(err, "failed to delete namespace", goerr.V(model.NamespaceKey, ns))
	}
	return nil
}

func (x *NamespaceUseCase) Stats(ctx context.Context, name string) (*model.NamespaceStats, error) {
	ns, err := x.parseID(name)
	if err != nil {
		return nil, err
	}

	stats, err := x.uc.repo.Reference().Stats(ctx, ns)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get namespace stats", goerr.V(model.NamespaceKey, ns))
	}
	return stats, nil
}

// ReferencePage is one page of reference cases of a namespace
type ReferencePage struct {
	Namespace  types.NamespaceID      `json:"namespace"`
	References []*model.ReferenceCase `json:"references"`
	Total      int                    `json:"total"`
	Page       int                    `json:"page"`
	Limit      int                    `json:"limit"`
}

func (x *NamespaceUseCase) ListReferences(ctx context.Context, name string, page, limit int) (*ReferencePage, error) {
	ns, err := x.parseID(name)
	if err != nil {
		return nil, err
	}

	offset, limit := model.Paginate(page, limit)
	page = offset/limit + 1

	refs, total, err := x.uc.repo.Reference().List(ctx, ns, page, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list reference cases", goerr.V(model.NamespaceKey, ns))
	}

	return &ReferencePage{
		Namespace:  ns,
		References: refs,
		Total:      total,
		Page:       page,
		Limit:      limit,
	}, nil
}

// DeleteReference removes one case. model.ErrNotFound is returned for an unknown id.
func (x *NamespaceUseCase) DeleteReference(ctx context.Context, name string, id model.ReferenceID) error {
	ns, err := x.parseID(name)
	if err != nil {
		return err
	}

	if err := x.uc.repo.Reference().DeleteOne(ctx, ns, id); err != nil {
		return goerr.Wrap(err, "failed to delete reference case", goerr.V(model.NamespaceKey, ns), goerr.V(model.ReferenceIDKey, id))
	}
	return nil
}

func (x *NamespaceUseCase) markCleared(ctx context.Context, ns types.NamespaceID) {
	if x.uc.cache == nil {
		return
	}
	if err := x.uc.cache.MarkCleared(ctx, ns, x.uc.now()); err != nil {
		logging.From(ctx).Warn("failed to mark namespace cleared", model.NamespaceKey, ns, logging.ErrAttr(err))
	}
}
