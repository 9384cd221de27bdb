package usecase

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/domain/types"
)

const checkPageSize = model.MaxPageLimit

// ConsistencyIssue is a stored reference case that no longer fits the category registry
type ConsistencyIssue struct {
	Namespace   types.NamespaceID
	ReferenceID model.ReferenceID
	Category    types.CategoryID
	State       types.State
	Message     string
}

// ConsistencyResult holds the results of a reference store check
type ConsistencyResult struct {
	Namespaces int
	References int
	Issues     []ConsistencyIssue
}

// HasIssues returns true if there are any consistency issues
func (r *ConsistencyResult) HasIssues() bool {
	return len(r.Issues) > 0
}

// AddIssue adds a consistency issue to the result
func (r *ConsistencyResult) AddIssue(issue ConsistencyIssue) {
	r.Issues = append(r.Issues, issue)
}

// CheckReferences reads every reference case of every registered namespace and reports
// the ones whose category or state is not allowed by the current category registry. A
// category file edited after training leaves such cases behind. It does NOT modify any
// data.
func (uc *UseCases) CheckReferences(ctx context.Context) (*ConsistencyResult, error) {
	result := &ConsistencyResult{}

	namespaces, err := uc.repo.Namespace().List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list namespaces")
	}

	for _, ns := range namespaces {
		result.Namespaces++

		for page := 1; ; page++ {
			refs, total, err := uc.repo.Reference().List(ctx, ns.ID, page, checkPageSize)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to list reference cases",
					goerr.V(model.NamespaceKey, ns.ID),
					goerr.V("page", page))
			}

			for _, ref := range refs {
				result.References++
				if msg := uc.checkReference(ref); msg != "" {
					result.AddIssue(ConsistencyIssue{
						Namespace:   ns.ID,
						ReferenceID: ref.ID,
						Category:    ref.Metadata.Category,
						State:       ref.Metadata.State,
						Message:     msg,
					})
				}
			}

			if len(refs) == 0 || page*checkPageSize >= total {
				break
			}
		}
	}

	return result, nil
}

func (uc *UseCases) checkReference(ref *model.ReferenceCase) string {
	cat, ok := uc.registry.Get(ref.Metadata.Category)
	if !ok {
		return "category is not registered"
	}
	if !cat.HasState(ref.Metadata.State) {
		return fmt.Sprintf("state is not one of %v", cat.ExpectedStates)
	}
	return ""
}
