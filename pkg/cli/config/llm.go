package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/domain/interfaces"
	"github.com/secmon-lab/argus/pkg/service/judge"
	"github.com/secmon-lab/argus/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const (
	JudgeNone   = "none"
	JudgeOpenAI = "openai"
	JudgeGemini = "gemini"
)

// LLM selects the vision judge. OpenAI and Gemini hold the provider credentials and are
// shared with the Embedder configuration.
type LLM struct {
	provider  string
	repair    bool
	heuristic bool

	OpenAI OpenAI
	Gemini Gemini
}

func (x *LLM) Flags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "judge",
			Usage:       "Vision judge provider (openai, gemini, none). none allows training only",
			Value:       JudgeOpenAI,
			Category:    "Judge",
			Sources:     cli.EnvVars("ARGUS_JUDGE"),
			Destination: &x.provider,
		},
		&cli.BoolFlag{
			Name:        "judge-repair",
			Usage:       "Rewrite unparsable judge answers with Gemini through gollem (requires --gemini-project)",
			Value:       true,
			Category:    "Judge",
			Sources:     cli.EnvVars("ARGUS_JUDGE_REPAIR"),
			Destination: &x.repair,
		},
		&cli.BoolFlag{
			Name:        "judge-heuristic-fallback",
			Usage:       "Derive a degraded verdict from a yes/no answer when the judge answer has no JSON",
			Value:       true,
			Category:    "Judge",
			Sources:     cli.EnvVars("ARGUS_JUDGE_HEURISTIC_FALLBACK"),
			Destination: &x.heuristic,
		},
	}
	flags = append(flags, x.OpenAI.Flags()...)
	flags = append(flags, x.Gemini.Flags()...)
	return flags
}

func (x LLM) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("judge", x.provider),
		slog.Bool("repair", x.repair),
		slog.Bool("heuristic_fallback", x.heuristic),
		slog.Any("openai", slog.GroupValue(x.OpenAI.LogAttrs()...)),
		slog.Any("gemini", slog.GroupValue(x.Gemini.LogAttrs()...)),
	}
	return slog.GroupValue(attrs...)
}

// Configure builds the judge. It returns nil for the "none" provider.
func (x *LLM) Configure(ctx context.Context) (interfaces.Judge, error) {
	var vision judge.Vision
	switch x.provider {
	case JudgeNone, "":
		logging.Default().Warn("No vision judge configured, only training is available")
		return nil, nil

	case JudgeOpenAI:
		if !x.OpenAI.IsConfigured() {
			return nil, goerr.Wrap(ErrMissingCredential, "openai-api-key is required for the openai judge", goerr.V(FlagKey, "openai-api-key"))
		}
		var opts []judge.OpenAIOption
		if x.OpenAI.model != "" {
			opts = append(opts, judge.WithOpenAIModel(x.OpenAI.model))
		}
		if x.OpenAI.baseURL != "" {
			opts = append(opts, judge.WithOpenAIBaseURL(x.OpenAI.baseURL))
		}
		v, err := judge.NewOpenAI(x.OpenAI.apiKey, opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create openai judge")
		}
		vision = v

	case JudgeGemini:
		if !x.Gemini.IsConfigured() {
			return nil, goerr.Wrap(ErrMissingCredential, "gemini-api-key or gemini-project is required for the gemini judge", goerr.V(FlagKey, "gemini-project"))
		}
		v, err := judge.NewGemini(ctx, judge.GeminiConfig{
			APIKey:   x.Gemini.apiKey,
			Project:  x.Gemini.projectID,
			Location: x.Gemini.location,
			Model:    x.Gemini.model,
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create gemini judge")
		}
		vision = v

	default:
		return nil, goerr.Wrap(ErrUnknownBackend, "invalid judge provider", goerr.V(BackendKey, x.provider))
	}

	opts := []judge.Option{judge.WithHeuristicFallback(x.heuristic)}
	if x.repair {
		client, err := x.Gemini.Configure(ctx)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create repair client")
		}
		if client != nil {
			opts = append(opts, judge.WithRepairer(client))
		}
	}

	j := judge.New(vision, opts...)
	logging.Default().Info("Vision judge configured", "model", j.Name())
	return j, nil
}
