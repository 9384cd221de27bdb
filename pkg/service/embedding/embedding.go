// Package embedding turns images into feature vectors. Besides image native embedders such
// as CLIP, an image can first be described in text and the text embedded.
package embedding

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/domain/interfaces"
	"github.com/secmon-lab/argus/pkg/domain/model"
)

// Describer produces a textual description of an image
type Describer interface {
	Describe(ctx context.Context, image []byte) (string, error)
}

// TextEmbedder embeds a text into a fixed length vector
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// DescribeEmbedder embeds an image by embedding its description
type DescribeEmbedder struct {
	describer Describer
	embedder  TextEmbedder
}

var _ interfaces.Embedder = &DescribeEmbedder{}

func New(describer Describer, embedder TextEmbedder) *DescribeEmbedder {
	return &DescribeEmbedder{
		describer: describer,
		embedder:  embedder,
	}
}

func (e *DescribeEmbedder) Dimension() int {
	return e.embedder.Dimension()
}

func (e *DescribeEmbedder) Embed(ctx context.Context, image []byte) ([]float32, error) {
	if len(image) == 0 {
		return nil, goerr.Wrap(model.ErrEmbedding, "image is empty")
	}

	description, err := e.describer.Describe(ctx, image)
	if err != nil {
		return nil, goerr.Wrap(model.Failure(model.ErrEmbedding, err), "failed to describe image")
	}

	vector, err := e.embedder.EmbedText(ctx, description)
	if err != nil {
		return nil, goerr.Wrap(model.Failure(model.ErrEmbedding, err), "failed to embed image description")
	}
	if len(vector) == 0 {
		return nil, goerr.Wrap(model.ErrEmbedding, "embedder returned an empty vector")
	}
	if dim := e.embedder.Dimension(); dim > 0 && len(vector) != dim {
		return nil, goerr.Wrap(model.Failure(model.ErrEmbedding, model.ErrDimensionMismatch), "unexpected embedding length",
			goerr.V("expected", dim), goerr.V("actual", len(vector)))
	}

	return vector, nil
}
