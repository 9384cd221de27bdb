package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/domain/interfaces"
	"github.com/secmon-lab/argus/pkg/service/embedding"
	"github.com/secmon-lab/argus/pkg/service/embedding/clip"
	"github.com/secmon-lab/argus/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const (
	EmbedderCLIP   = "clip"
	EmbedderOpenAI = "openai"
	EmbedderGemini = "gemini"
	EmbedderGollem = "gollem"
	EmbedderStats  = "stats"
)

// Embedder selects how images become vectors:
//
//	clip:   CLIP microservice
//	openai: OpenAI image description, OpenAI text embedding
//	gemini: Gemini image description, Gemini text embedding through gollem
//	stats:  pixel statistics description, OpenAI text embedding
//	gollem: pixel statistics description, Gemini text embedding through gollem
type Embedder struct {
	backend   string
	clipURL   string
	dimension int
}

func (x *Embedder) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "embedder",
			Usage:       "Image embedder (clip, openai, gemini, stats, gollem)",
			Value:       EmbedderCLIP,
			Category:    "Embedder",
			Sources:     cli.EnvVars("ARGUS_EMBEDDER"),
			Destination: &x.backend,
		},
		&cli.StringFlag{
			Name:        "clip-url",
			Usage:       "Base URL of the CLIP embedding service",
			Value:       "http://localhost:8000",
			Category:    "Embedder",
			Sources:     cli.EnvVars("ARGUS_CLIP_URL"),
			Destination: &x.clipURL,
		},
		&cli.IntFlag{
			Name:        "embedding-dimension",
			Usage:       "Expected embedding dimension (0 learns it from the first CLIP response)",
			Category:    "Embedder",
			Sources:     cli.EnvVars("ARGUS_EMBEDDING_DIMENSION"),
			Destination: &x.dimension,
		},
	}
}

func (x Embedder) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("backend", x.backend),
		slog.String("clip_url", x.clipURL),
		slog.Int("dimension", x.dimension),
	)
}

// Backend returns the configured embedder type
func (x *Embedder) Backend() string {
	return x.backend
}

// Configure builds the image embedder. The returned health check is nil unless the
// embedder is a remote service with a health endpoint.
func (x *Embedder) Configure(ctx context.Context, llm *LLM) (interfaces.Embedder, func(context.Context) error, error) {
	switch x.backend {
	case EmbedderCLIP:
		var opts []clip.Option
		if x.dimension > 0 {
			opts = append(opts, clip.WithDimension(x.dimension))
		}
		client, err := clip.New(x.clipURL, opts...)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create clip client")
		}
		logging.Default().Info("Using CLIP embedder", "url", x.clipURL)
		return client, client.Health, nil

	case EmbedderOpenAI, EmbedderStats:
		text, err := x.openaiEmbedder(llm)
		if err != nil {
			return nil, nil, err
		}

		var describer embedding.Describer = embedding.NewStatsDescriber()
		if x.backend == EmbedderOpenAI {
			d, err := embedding.NewOpenAIDescriber(llm.OpenAI.apiKey, x.openaiOptions(llm)...)
			if err != nil {
				return nil, nil, goerr.Wrap(err, "failed to create openai describer")
			}
			describer = d
		}
		logging.Default().Info("Using description embedder", "backend", x.backend, "dimension", text.Dimension())
		return embedding.New(describer, text), nil, nil

	case EmbedderGemini, EmbedderGollem:
		client, err := llm.Gemini.Configure(ctx)
		if err != nil {
			return nil, nil, err
		}
		if client == nil {
			return nil, nil, goerr.Wrap(ErrMissingCredential, "gemini-project is required for gollem text embeddings", goerr.V(FlagKey, "gemini-project"))
		}
		text := embedding.NewGollemEmbedder(client, x.dimension)

		var describer embedding.Describer = embedding.NewStatsDescriber()
		if x.backend == EmbedderGemini {
			g := llm.Gemini
			d, err := embedding.NewGeminiDescriber(ctx, g.apiKey, g.projectID, g.location, g.model)
			if err != nil {
				return nil, nil, goerr.Wrap(err, "failed to create gemini describer")
			}
			describer = d
		}
		logging.Default().Info("Using description embedder", "backend", x.backend, "dimension", text.Dimension())
		return embedding.New(describer, text), nil, nil

	default:
		return nil, nil, goerr.Wrap(ErrUnknownBackend, "invalid embedder", goerr.V(BackendKey, x.backend))
	}
}

func (x *Embedder) openaiOptions(llm *LLM) []embedding.OpenAIOption {
	var opts []embedding.OpenAIOption
	if llm.OpenAI.baseURL != "" {
		opts = append(opts, embedding.WithOpenAIBaseURL(llm.OpenAI.baseURL))
	}
	if llm.OpenAI.model != "" {
		opts = append(opts, embedding.WithOpenAIModel(llm.OpenAI.model))
	}
	return opts
}

func (x *Embedder) openaiEmbedder(llm *LLM) (*embedding.OpenAIEmbedder, error) {
	if !llm.OpenAI.IsConfigured() {
		return nil, goerr.Wrap(ErrMissingCredential, "openai-api-key is required for openai text embeddings", goerr.V(FlagKey, "openai-api-key"))
	}

	var opts []embedding.OpenAIOption
	if llm.OpenAI.baseURL != "" {
		opts = append(opts, embedding.WithOpenAIBaseURL(llm.OpenAI.baseURL))
	}
	if llm.OpenAI.embeddingModel != "" {
		opts = append(opts, embedding.WithOpenAIModel(llm.OpenAI.embeddingModel))
	}
	dim := llm.OpenAI.dimension
	if x.dimension > 0 {
		dim = x.dimension
	}
	if dim > 0 {
		opts = append(opts, embedding.WithOpenAIDimension(dim))
	}

	e, err := embedding.NewOpenAIEmbedder(llm.OpenAI.apiKey, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create openai embedder")
	}
	return e, nil
}

// Dimension returns the configured embedding dimension. 0 means it is not fixed.
func (x *Embedder) Dimension() int {
	return x.dimension
}
