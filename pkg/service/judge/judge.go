// Package judge asks a vision-capable LLM whether an image shows the expected state and
// turns the answer into a model.Verdict.
package judge

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/argus/pkg/domain/interfaces"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/utils/logging"
)

// Vision sends one image and a question to a multimodal model and returns its raw answer
type Vision interface {
	Ask(ctx context.Context, image []byte, question string) (string, error)
	Name() string
}

type Judge struct {
	vision   Vision
	repairer gollem.LLMClient
	fallback bool
}

var _ interfaces.Judge = &Judge{}

type Option func(*Judge)

// WithRepairer lets an LLM session with a response schema rewrite answers that could not
// be parsed
func WithRepairer(client gollem.LLMClient) Option {
	return func(j *Judge) {
		j.repairer = client
	}
}

// WithHeuristicFallback enables or disables the yes/no fallback. It is enabled by default.
func WithHeuristicFallback(enabled bool) Option {
	return func(j *Judge) {
		j.fallback = enabled
	}
}

func New(vision Vision, opts ...Option) *Judge {
	j := &Judge{
		vision:   vision,
		fallback: true,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *Judge) Name() string {
	return j.vision.Name()
}

// Judge returns the verdict for the image. When the answer is not valid verdict JSON it
// is repaired if a repairer is set, then read by the yes/no heuristic, and the result is
// marked Degraded.
func (j *Judge) Judge(ctx context.Context, image []byte, question string) (*model.Verdict, error) {
	text, err := j.vision.Ask(ctx, image, question)
	if err != nil {
		return nil, goerr.Wrap(model.Failure(model.ErrJudgment, err), "vision model request failed", goerr.V("model", j.Name()))
	}

	verdict, parseErr := ParseVerdict(text)
	if parseErr == nil {
		return verdict, nil
	}

	logger := logging.From(ctx)
	logger.Warn("judge response is not a valid verdict", "model", j.Name(), "error", parseErr.Error())

	if j.repairer != nil {
		repaired, err := repair(ctx, j.repairer, text)
		if err == nil {
			return repaired, nil
		}
		logger.Warn("failed to repair judge response", "model", j.Name(), logging.ErrAttr(err))
	}

	if j.fallback {
		degraded, err := Heuristic(text, "response could not be parsed: "+parseErr.Error())
		if err == nil {
			return degraded, nil
		}
	}

	return nil, goerr.Wrap(model.Failure(model.ErrJudgment, parseErr), "judge response is unusable",
		goerr.V("model", j.Name()),
		goerr.V("response", text))
}
