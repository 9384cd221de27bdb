package judge

import (
	"context"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiConfig selects either the Gemini Developer API (APIKey) or Vertex AI
// (Project and Location)
type GeminiConfig struct {
	APIKey   string
	Project  string
	Location string
	Model    string
}

// Gemini is a Vision backed by the genai GenerateContent API
type Gemini struct {
	client *genai.Client
	model  string
}

var _ Vision = &Gemini{}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	cc := &genai.ClientConfig{}
	switch {
	case cfg.APIKey != "":
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	case cfg.Project != "":
		cc.Project = cfg.Project
		cc.Location = cfg.Location
		cc.Backend = genai.BackendVertexAI
	default:
		return nil, goerr.New("Gemini API key or project is required")
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client", goerr.V("project", cfg.Project))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Name() string {
	return "gemini/" + g.model
}

func (g *Gemini) Ask(ctx context.Context, image []byte, question string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(question),
			genai.NewPartFromBytes(image, http.DetectContentType(image)),
		}, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to call Gemini GenerateContent", goerr.V("model", g.model))
	}

	text := resp.Text()
	if text == "" {
		return "", goerr.New("Gemini returned no text", goerr.V("model", g.model))
	}
	return text, nil
}
