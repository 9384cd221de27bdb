package usecase_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/domain/types"
	"github.com/secmon-lab/argus/pkg/repository/memory"
	"github.com/secmon-lab/argus/pkg/usecase"
)

func TestCheckReferences(t *testing.T) {
	ctx := context.Background()

	// cases trained with a wider registry than the one the service runs with now
	wide, err := model.DefaultCategoryRegistry().Merge(
		&model.Category{
			ID:             "welds",
			Name:           "Welds",
			ExpectedStates: []types.State{"sound", "cracked"},
		},
		&model.Category{
			ID:             "threads",
			Name:           "Threads",
			ExpectedStates: []types.State{"visible", "damaged", "painted"},
		},
	)
	gt.NoError(t, err).Required()

	repo := memory.New(memory.WithCategoryRegistry(wide))
	trainer := usecase.New(repo, &mockEmbedder{}, usecase.WithCategoryRegistry(wide))

	inputs := []usecase.ValidationInput{
		{Category: "connector_plates", ExpectedState: "straight", Namespace: "plant_a"},
		{Category: "welds", ExpectedState: "sound", Namespace: "plant_a"},
		{Category: "threads", ExpectedState: "painted", Namespace: "plant_b"},
		{Category: "threads", ExpectedState: "visible", Namespace: "plant_b"},
	}
	for _, in := range inputs {
		in.Image = testImage
		in.Training = true
		result, err := trainer.Validation.Validate(ctx, in)
		gt.NoError(t, err).Required()
		gt.String(t, result.PersistenceError).Equal("")
	}

	t.Run("registry in use reports drift", func(t *testing.T) {
		uc := usecase.New(repo, &mockEmbedder{})

		result, err := uc.CheckReferences(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, result.Namespaces).Equal(2)
		gt.Value(t, result.References).Equal(4)
		gt.Bool(t, result.HasIssues()).True()
		gt.Array(t, result.Issues).Length(2).Required()

		byCategory := map[types.CategoryID]usecase.ConsistencyIssue{}
		for _, issue := range result.Issues {
			byCategory[issue.Category] = issue
		}

		weld := byCategory["welds"]
		gt.Value(t, weld.Namespace).Equal(types.NamespaceID("plant_a"))
		gt.String(t, weld.Message).Contains("not registered")

		thread := byCategory["threads"]
		gt.Value(t, thread.Namespace).Equal(types.NamespaceID("plant_b"))
		gt.Value(t, thread.State).Equal(types.State("painted"))
		gt.String(t, thread.Message).Contains("state is not one of")
	})

	t.Run("matching registry reports nothing", func(t *testing.T) {
		result, err := trainer.CheckReferences(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, result.References).Equal(4)
		gt.Bool(t, result.HasIssues()).False()
	})
}

func TestCheckReferences_Empty(t *testing.T) {
	uc := usecase.New(memory.New(), &mockEmbedder{})

	result, err := uc.CheckReferences(context.Background())
	gt.NoError(t, err).Required()
	gt.Value(t, result.Namespaces).Equal(0)
	gt.Value(t, result.References).Equal(0)
	gt.Bool(t, result.HasIssues()).False()
}
