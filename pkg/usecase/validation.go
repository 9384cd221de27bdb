package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/domain/types"
	"github.com/secmon-lab/argus/pkg/service/fusion"
	"github.com/secmon-lab/argus/pkg/service/judge"
	"github.com/secmon-lab/argus/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

const DefaultBatchLimit = 4

type Mode string

const (
	ModeTraining   Mode = "training"
	ModeValidation Mode = "validation"
)

// ValidationInput is one image to validate or to store as ground truth. Category and
// ExpectedState are free-form labels resolved against the category registry; when
// FolderPath is set they are derived from it instead.
type ValidationInput struct {
	Image         []byte
	ContentType   string
	Category      string
	ExpectedState string
	Namespace     string
	Training      bool
	Prompt        string
	Description   string
	FolderPath    string
	// Persist stores the result of a validation as a reference case. Training always stores.
	Persist bool
}

type ValidationResult struct {
	Verdict          *model.Verdict       `json:"verdict"`
	SimilarCases     []*model.SimilarCase `json:"similar_cases"`
	Features         []float32            `json:"features,omitempty"`
	Mode             Mode                 `json:"mode"`
	Model            string               `json:"model,omitempty"`
	Namespace        types.NamespaceID    `json:"namespace"`
	Category         types.CategoryID     `json:"category"`
	ExpectedState    types.State          `json:"expected_state"`
	StoredID         model.ReferenceID    `json:"stored_id,omitempty"`
	PersistenceError string               `json:"persistence_error,omitempty"`
}

// BatchItem is one entry of ValidateBatch. Name identifies it in the output, usually the
// file path.
type BatchItem struct {
	Name  string
	Input ValidationInput
}

type BatchResult struct {
	Name   string
	Result *ValidationResult
	Err    error
}

type ValidationUseCase struct {
	uc *UseCases
}

// request is a ValidationInput with its labels resolved
type request struct {
	category  *model.Category
	state     types.State
	namespace types.NamespaceID
	prompt    string
	mode      Mode
}

func (x *ValidationUseCase) resolve(input ValidationInput) (*request, error) {
	if len(input.Image) == 0 {
		return nil, goerr.Wrap(ErrEmptyImage, "no image given")
	}

	ns := types.NewNamespaceID(input.Namespace)
	if err := ns.Validate(); err != nil {
		return nil, goerr.Wrap(ErrInvalidNamespace, "invalid namespace", goerr.V(model.NamespaceKey, input.Namespace), goerr.V("cause", err.Error()))
	}

	req := &request{namespace: ns, prompt: input.Prompt, mode: ModeValidation}
	if input.Training {
		req.mode = ModeTraining
	}

	registry := x.uc.registry
	if input.FolderPath != "" {
		folder, err := model.ParseFolderPath(input.FolderPath, registry)
		if err != nil {
			return nil, err
		}
		cat, err := registry.Lookup(folder.Category)
		if err != nil {
			return nil, err
		}
		req.category = cat
		req.state = folder.State
		if req.prompt == "" {
			req.prompt = folder.Prompt
		}
		return req, nil
	}

	if input.Category == "" {
		return nil, goerr.Wrap(ErrMissingCategory, "no category given")
	}
	if input.ExpectedState == "" {
		return nil, goerr.Wrap(ErrMissingState, "no expected state given", goerr.V(model.CategoryKey, input.Category))
	}

	cat, ok := registry.Resolve(input.Category)
	if !ok {
		return nil, goerr.Wrap(model.ErrUnknownCategory, "category is not registered", goerr.V(model.CategoryKey, input.Category))
	}
	state, ok := cat.ResolveState(input.ExpectedState)
	if !ok {
		return nil, goerr.Wrap(model.ErrUnexpectedState, "state is not an expected state of the category",
			goerr.V(model.CategoryKey, cat.ID),
			goerr.V(model.StateKey, input.ExpectedState),
			goerr.V("expected_states", cat.ExpectedStates))
	}

	req.category = cat
	req.state = state
	if req.prompt == "" {
		req.prompt = cat.Prompt(state)
	}
	return req, nil
}

// Validate embeds the image, asks the judge (skipped in training mode), fuses the verdict
// with the nearest reference cases and stores the case when requested. Embedding and
// judgment failures are returned; lookup and storage failures only degrade the result.
func (x *ValidationUseCase) Validate(ctx context.Context, input ValidationInput) (*ValidationResult, error) {
	req, err := x.resolve(input)
	if err != nil {
		return nil, err
	}

	logger := logging.From(ctx).With(
		model.NamespaceKey, req.namespace,
		model.CategoryKey, req.category.ID,
		model.StateKey, req.state,
		ModeKey, req.mode,
	)

	features, err := x.embed(ctx, input.Image)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{
		Features:      features,
		Mode:          req.mode,
		Namespace:     req.namespace,
		Category:      req.category.ID,
		ExpectedState: req.state,
		SimilarCases:  []*model.SimilarCase{},
	}

	var verdict *model.Verdict
	if req.mode == ModeTraining {
		verdict = groundTruthVerdict(req.category, req.state)
	} else {
		verdict, err = x.judge(ctx, input, req)
		if err != nil {
			return nil, err
		}
		result.Model = x.uc.judge.Name()
		if verdict.Degraded {
			logger.Warn("judge verdict is degraded", "model", result.Model, "reason", verdict.DegradedReason)
		}
	}

	result.SimilarCases = x.findNearest(ctx, logger, req, features)

	fused := fusion.Fuse(verdict, result.SimilarCases, req.category)
	result.Verdict = fusion.ApplyExactMatch(fused, result.SimilarCases)

	if req.mode == ModeTraining || input.Persist {
		id, neighbors, err := x.store(ctx, input, req, features, result.Verdict)
		if err != nil {
			logger.Error("failed to store reference case", logging.ErrAttr(err))
			result.PersistenceError = err.Error()
		} else {
			result.StoredID = id
			if req.mode == ModeTraining {
				result.SimilarCases = neighbors
			}
		}
	}

	return result, nil
}

func (x *ValidationUseCase) embed(ctx context.Context, image []byte) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, x.uc.timeout)
	defer cancel()

	features, err := x.uc.embedder.Embed(ctx, image)
	if err != nil {
		if !errors.Is(err, model.ErrEmbedding) {
			err = model.Failure(model.ErrEmbedding, err)
		}
		return nil, goerr.Wrap(err, "failed to embed image")
	}
	if len(features) == 0 {
		return nil, goerr.Wrap(model.ErrEmbedding, "embedder returned an empty vector")
	}
	return features, nil
}

func (x *ValidationUseCase) judge(ctx context.Context, input ValidationInput, req *request) (*model.Verdict, error) {
	if x.uc.judge == nil {
		return nil, goerr.Wrap(model.ErrJudgment, "no judge is configured")
	}

	ctx, cancel := context.WithTimeout(ctx, x.uc.timeout)
	defer cancel()

	question := judge.BuildQuestion(req.category, req.state, input.Prompt, input.Description)
	verdict, err := x.uc.judge.Judge(ctx, input.Image, question)
	if err != nil {
		if !errors.Is(err, model.ErrJudgment) {
			err = model.Failure(model.ErrJudgment, err)
		}
		return nil, goerr.Wrap(err, "failed to judge image", goerr.V("model", x.uc.judge.Name()))
	}
	return verdict, nil
}

// findNearest returns the neighbors of features. A namespace known to be empty is not
// queried, and a failed query yields no neighbors.
func (x *ValidationUseCase) findNearest(ctx context.Context, logger *slog.Logger, req *request, features []float32) []*model.SimilarCase {
	if x.uc.cache != nil {
		empty, err := x.uc.cache.IsKnownEmpty(ctx, req.namespace, x.uc.now())
		if err != nil {
			logger.Warn("failed to read namespace cache", logging.ErrAttr(err))
		} else if empty {
			return []*model.SimilarCase{}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, x.uc.timeout)
	defer cancel()

	cases, err := x.uc.repo.Reference().FindNearest(ctx, features, req.category.ID, req.namespace, model.DefaultNeighborLimit)
	if err != nil {
		logger.Warn("reference lookup failed, continuing without similar cases",
			logging.ErrAttr(model.Failure(model.ErrRetrieval, err)))
		return []*model.SimilarCase{}
	}
	if cases == nil {
		return []*model.SimilarCase{}
	}
	return cases
}

func (x *ValidationUseCase) store(ctx context.Context, input ValidationInput, req *request, features []float32, verdict *model.Verdict) (model.ReferenceID, []*model.SimilarCase, error) {
	ctx, cancel := context.WithTimeout(ctx, x.uc.timeout)
	defer cancel()

	// State is the state the image was checked against; Valid records whether it showed it
	valid := verdict.IsValid || req.mode == ModeTraining
	meta := model.ReferenceMetadata{
		Category:    req.category.ID,
		State:       req.state,
		Confidence:  verdict.Confidence,
		Valid:       &valid,
		KeyFeatures: append([]string{}, verdict.Diagnosis.KeyObservations...),
		Diagnosis:   verdict.Diagnosis.Clone(),
		Prompt:      req.prompt,
	}
	if req.mode == ModeTraining {
		meta.Confidence = 1.0
	}

	if x.uc.imageStore != nil {
		ref, err := x.uc.imageStore.Put(ctx, req.namespace, req.category.ID, input.Image, input.ContentType)
		if err != nil {
			return "", nil, goerr.Wrap(model.Failure(model.ErrPersistence, err), "failed to store reference image")
		}
		meta.ImageRef = ref
	}

	ref := &model.ReferenceCase{
		ID:        model.NewReferenceID(),
		Namespace: req.namespace,
		Metadata:  meta,
		Embedding: features,
		CreatedAt: x.uc.now().UTC(),
	}

	neighbors, err := x.uc.repo.Reference().Store(ctx, ref)
	if err != nil {
		return "", nil, goerr.Wrap(model.Failure(model.ErrPersistence, err), "failed to store reference case", goerr.V(model.ReferenceIDKey, ref.ID))
	}

	if x.uc.cache != nil {
		if err := x.uc.cache.MarkPopulated(ctx, req.namespace); err != nil {
			logging.From(ctx).Warn("failed to mark namespace populated", model.NamespaceKey, req.namespace, logging.ErrAttr(err))
		}
	}

	return ref.ID, neighbors, nil
}

// ValidateBatch validates items with bounded concurrency. A failing item does not stop the
// others; its error is reported in its BatchResult. Results keep the order of items.
func (x *ValidationUseCase) ValidateBatch(ctx context.Context, items []BatchItem) []*BatchResult {
	results := make([]*BatchResult, len(items))

	var eg errgroup.Group
	eg.SetLimit(max(x.uc.batchLimit, 1))
	for i, item := range items {
		eg.Go(func() error {
			res, err := x.Validate(ctx, item.Input)
			results[i] = &BatchResult{Name: item.Name, Result: res, Err: err}
			return nil
		})
	}
	_ = eg.Wait()

	return results
}

// groundTruthVerdict is the verdict recorded for a training image: it shows the expected
// state by definition
func groundTruthVerdict(category *model.Category, state types.State) *model.Verdict {
	words := strings.ReplaceAll(state.String(), "_", " ")
	note := fmt.Sprintf("Ground truth reference for %s: %s", category.ID, words)
	return &model.Verdict{
		IsValid:         true,
		Confidence:      1.0,
		MatchedCriteria: []string{},
		FailedCriteria:  []string{},
		Diagnosis: model.Diagnosis{
			OverallAssessment:   "Valid",
			ConfidenceLevel:     1.0,
			KeyObservations:     []string{note},
			MatchedCriteria:     []string{},
			FailedCriteria:      []string{},
			DetailedExplanation: "Valid reference image supplied as ground truth.",
		},
		Explanation: note,
		Characteristics: model.Characteristics{
			PhysicalState: model.PhysicalState{
				MatchesExpected:  true,
				ConditionDetails: []string{},
			},
		},
	}
}
