package embedding

import (
	"context"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

const DefaultGeminiDescribeModel = "gemini-2.5-flash"

// GeminiDescriber describes images with a Gemini model. Either APIKey or Project must be set.
type GeminiDescriber struct {
	client *genai.Client
	model  string
}

var _ Describer = &GeminiDescriber{}

func NewGeminiDescriber(ctx context.Context, apiKey, project, location, model string) (*GeminiDescriber, error) {
	cc := &genai.ClientConfig{}
	switch {
	case apiKey != "":
		cc.APIKey = apiKey
		cc.Backend = genai.BackendGeminiAPI
	case project != "":
		cc.Project = project
		cc.Location = location
		cc.Backend = genai.BackendVertexAI
	default:
		return nil, goerr.New("Gemini API key or project is required")
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client", goerr.V("project", project))
	}
	if model == "" {
		model = DefaultGeminiDescribeModel
	}
	return &GeminiDescriber{client: client, model: model}, nil
}

func (d *GeminiDescriber) Describe(ctx context.Context, image []byte) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(describePrompt),
			genai.NewPartFromBytes(image, http.DetectContentType(image)),
		}, genai.RoleUser),
	}

	resp, err := d.client.Models.GenerateContent(ctx, d.model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to describe image with Gemini", goerr.V("model", d.model))
	}

	text := resp.Text()
	if text == "" {
		return "", goerr.New("Gemini returned no description", goerr.V("model", d.model))
	}
	return text, nil
}
