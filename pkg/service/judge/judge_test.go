package judge_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/service/judge"
)

type mockVision struct {
	askFn func(ctx context.Context, image []byte, question string) (string, error)
}

func (m *mockVision) Ask(ctx context.Context, image []byte, question string) (string, error) {
	if m.askFn != nil {
		return m.askFn(ctx, image, question)
	}
	return validVerdictJSON, nil
}

func (m *mockVision) Name() string {
	return "mock/vision"
}

type mockLLMSession struct {
	generateContentFn func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error)
}

func (s *mockLLMSession) GenerateContent(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
	if s.generateContentFn != nil {
		return s.generateContentFn(ctx, input...)
	}
	return &gollem.Response{Texts: []string{validVerdictJSON}}, nil
}

func (s *mockLLMSession) GenerateStream(ctx context.Context, input ...gollem.Input) (<-chan *gollem.Response, error) {
	return nil, nil
}

func (s *mockLLMSession) Generate(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (*gollem.Response, error) {
	return s.GenerateContent(ctx, input...)
}

func (s *mockLLMSession) Stream(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (<-chan *gollem.Response, error) {
	return s.GenerateStream(ctx, input...)
}

func (s *mockLLMSession) History() (*gollem.History, error) {
	return nil, nil
}

func (s *mockLLMSession) AppendHistory(*gollem.History) error {
	return nil
}

func (s *mockLLMSession) CountToken(ctx context.Context, input ...gollem.Input) (int, error) {
	return 0, nil
}

type mockLLMClient struct {
	newSessionFn func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error)
}

func (c *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	if c.newSessionFn != nil {
		return c.newSessionFn(ctx, options...)
	}
	return &mockLLMSession{}, nil
}

func (c *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	return nil, nil
}

func TestJudge(t *testing.T) {
	ctx := context.Background()
	image := []byte("fake image")

	t.Run("parses model answer", func(t *testing.T) {
		var gotQuestion string
		vision := &mockVision{
			askFn: func(ctx context.Context, img []byte, question string) (string, error) {
				gotQuestion = question
				gt.Value(t, string(img)).Equal("fake image")
				return "Sure!\n```json\n" + validVerdictJSON + "\n```", nil
			},
		}
		j := judge.New(vision)

		v, err := j.Judge(ctx, image, "is it straight?")
		gt.NoError(t, err).Required()
		gt.Value(t, gotQuestion).Equal("is it straight?")
		gt.Bool(t, v.IsValid).True()
		gt.Bool(t, v.Degraded).False()
		gt.Value(t, j.Name()).Equal("mock/vision")
	})

	t.Run("vision error is a judgment failure", func(t *testing.T) {
		cause := errors.New("quota exceeded")
		j := judge.New(&mockVision{
			askFn: func(ctx context.Context, img []byte, question string) (string, error) {
				return "", cause
			},
		})

		_, err := j.Judge(ctx, image, "q")
		gt.Error(t, err).Is(model.ErrJudgment)
		gt.Error(t, err).Is(cause)
	})

	t.Run("falls back to yes/no heuristic", func(t *testing.T) {
		j := judge.New(&mockVision{
			askFn: func(ctx context.Context, img []byte, question string) (string, error) {
				return "Yes, the cotter pin is present.", nil
			},
		})

		v, err := j.Judge(ctx, image, "q")
		gt.NoError(t, err).Required()
		gt.Bool(t, v.IsValid).True()
		gt.Bool(t, v.Degraded).True()
		gt.Value(t, v.Confidence).Equal(judge.HeuristicConfidence)
		gt.String(t, v.DegradedReason).Contains("could not be parsed")
	})

	t.Run("no usable answer is a judgment failure", func(t *testing.T) {
		j := judge.New(&mockVision{
			askFn: func(ctx context.Context, img []byte, question string) (string, error) {
				return "I am unable to see the image.", nil
			},
		})

		_, err := j.Judge(ctx, image, "q")
		gt.Error(t, err).Is(model.ErrJudgment)
		gt.Error(t, err).Is(judge.ErrInvalidResponse)
	})

	t.Run("fallback can be disabled", func(t *testing.T) {
		j := judge.New(&mockVision{
			askFn: func(ctx context.Context, img []byte, question string) (string, error) {
				return "yes", nil
			},
		}, judge.WithHeuristicFallback(false))

		_, err := j.Judge(ctx, image, "q")
		gt.Error(t, err).Is(model.ErrJudgment)
	})

	t.Run("repairer rewrites free text", func(t *testing.T) {
		var repairedInput string
		client := &mockLLMClient{
			newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
				return &mockLLMSession{
					generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
						gt.Array(t, input).Length(1)
						repairedInput = string(input[0].(gollem.Text))
						return &gollem.Response{Texts: []string{validVerdictJSON}}, nil
					},
				}, nil
			},
		}
		j := judge.New(&mockVision{
			askFn: func(ctx context.Context, img []byte, question string) (string, error) {
				return "The plate looks straight to me, no issues.", nil
			},
		}, judge.WithRepairer(client))

		v, err := j.Judge(ctx, image, "q")
		gt.NoError(t, err).Required()
		gt.Bool(t, v.Degraded).False()
		gt.Value(t, v.Confidence).Equal(0.92)
		gt.Value(t, repairedInput).Equal("The plate looks straight to me, no issues.")
	})

	t.Run("failed repair still falls back", func(t *testing.T) {
		client := &mockLLMClient{
			newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
				return nil, errors.New("llm down")
			},
		}
		j := judge.New(&mockVision{
			askFn: func(ctx context.Context, img []byte, question string) (string, error) {
				return "no", nil
			},
		}, judge.WithRepairer(client))

		v, err := j.Judge(ctx, image, "q")
		gt.NoError(t, err).Required()
		gt.Bool(t, v.IsValid).False()
		gt.Bool(t, v.Degraded).True()
	})
}
