package config

import (
	"log/slog"

	"github.com/urfave/cli/v3"
)

// OpenAI holds configuration for the OpenAI judge, describer and text embedder
type OpenAI struct {
	apiKey         string
	baseURL        string
	model          string
	embeddingModel string
	dimension      int
}

func (o *OpenAI) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key",
			Category:    "OpenAI",
			Sources:     cli.EnvVars("ARGUS_OPENAI_API_KEY", "OPENAI_API_KEY"),
			Destination: &o.apiKey,
		},
		&cli.StringFlag{
			Name:        "openai-base-url",
			Usage:       "OpenAI compatible API base URL",
			Category:    "OpenAI",
			Sources:     cli.EnvVars("ARGUS_OPENAI_BASE_URL"),
			Destination: &o.baseURL,
		},
		&cli.StringFlag{
			Name:        "openai-model",
			Usage:       "OpenAI vision model",
			Category:    "OpenAI",
			Sources:     cli.EnvVars("ARGUS_OPENAI_MODEL"),
			Destination: &o.model,
		},
		&cli.StringFlag{
			Name:        "openai-embedding-model",
			Usage:       "OpenAI text embedding model",
			Category:    "OpenAI",
			Sources:     cli.EnvVars("ARGUS_OPENAI_EMBEDDING_MODEL"),
			Destination: &o.embeddingModel,
		},
		&cli.IntFlag{
			Name:        "openai-embedding-dimension",
			Usage:       "Dimension of OpenAI text embeddings (0 keeps the model default)",
			Category:    "OpenAI",
			Sources:     cli.EnvVars("ARGUS_OPENAI_EMBEDDING_DIMENSION"),
			Destination: &o.dimension,
		},
	}
}

func (o *OpenAI) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.Int("api_key.len", len(o.apiKey)),
		slog.String("base_url", o.baseURL),
		slog.String("model", o.model),
		slog.String("embedding_model", o.embeddingModel),
		slog.Int("dimension", o.dimension),
	}
}

func (o *OpenAI) IsConfigured() bool {
	return o.apiKey != ""
}
