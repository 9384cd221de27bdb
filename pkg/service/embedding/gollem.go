package embedding

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

// DefaultGollemDimension matches the output size of the Gemini text embedding model
const DefaultGollemDimension = 768

// GollemEmbedder embeds text through any gollem LLM client
type GollemEmbedder struct {
	client    gollem.LLMClient
	dimension int
}

var _ TextEmbedder = &GollemEmbedder{}

func NewGollemEmbedder(client gollem.LLMClient, dimension int) *GollemEmbedder {
	if dimension <= 0 {
		dimension = DefaultGollemDimension
	}
	return &GollemEmbedder{client: client, dimension: dimension}
}

func (e *GollemEmbedder) Dimension() int {
	return e.dimension
}

func (e *GollemEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.client.GenerateEmbedding(ctx, e.dimension, []string{text})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embedding")
	}
	if len(embeddings) == 0 {
		return nil, goerr.New("no embedding returned")
	}

	result := make([]float32, len(embeddings[0]))
	for i, v := range embeddings[0] {
		result[i] = float32(v)
	}
	return result, nil
}
