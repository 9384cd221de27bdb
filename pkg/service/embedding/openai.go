package embedding

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sashabaranov/go-openai"
)

const (
	DefaultOpenAIEmbeddingModel     = openai.SmallEmbedding3
	DefaultOpenAIEmbeddingDimension = 1536
	DefaultOpenAIDescribeModel      = openai.GPT4oMini
)

const describePrompt = `Describe the industrial component in this image for similarity search.
List the component type, its physical condition, visible defects, colors, surface texture, shape and the camera angle.
Answer in plain sentences without any preamble.`

type OpenAIOption func(*openaiConfig)

type openaiConfig struct {
	baseURL   string
	model     string
	dimension int
}

func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(c *openaiConfig) {
		c.baseURL = url
	}
}

// WithOpenAIModel sets the embedding model for OpenAIEmbedder and the chat model for
// OpenAIDescriber
func WithOpenAIModel(model string) OpenAIOption {
	return func(c *openaiConfig) {
		c.model = model
	}
}

func WithOpenAIDimension(dim int) OpenAIOption {
	return func(c *openaiConfig) {
		c.dimension = dim
	}
}

func newOpenAIClient(apiKey string, cfg *openaiConfig) (*openai.Client, error) {
	if apiKey == "" {
		return nil, goerr.New("OpenAI API key is required")
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.baseURL != "" {
		clientCfg.BaseURL = cfg.baseURL
	}
	return openai.NewClientWithConfig(clientCfg), nil
}

// OpenAIEmbedder embeds text with the OpenAI embeddings API
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
}

var _ TextEmbedder = &OpenAIEmbedder{}

func NewOpenAIEmbedder(apiKey string, opts ...OpenAIOption) (*OpenAIEmbedder, error) {
	cfg := &openaiConfig{
		model:     string(DefaultOpenAIEmbeddingModel),
		dimension: DefaultOpenAIEmbeddingDimension,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client, err := newOpenAIClient(apiKey, cfg)
	if err != nil {
		return nil, err
	}
	return &OpenAIEmbedder{client: client, model: cfg.model, dimension: cfg.dimension}, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          openai.EmbeddingModel(e.model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		Dimensions:     e.dimension,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create OpenAI embedding", goerr.V("model", e.model))
	}
	if len(resp.Data) == 0 {
		return nil, goerr.New("no embedding returned", goerr.V("model", e.model))
	}

	return resp.Data[0].Embedding, nil
}

// OpenAIDescriber describes images with an OpenAI vision chat model
type OpenAIDescriber struct {
	client *openai.Client
	model  string
}

var _ Describer = &OpenAIDescriber{}

func NewOpenAIDescriber(apiKey string, opts ...OpenAIOption) (*OpenAIDescriber, error) {
	cfg := &openaiConfig{model: DefaultOpenAIDescribeModel}
	for _, opt := range opts {
		opt(cfg)
	}

	client, err := newOpenAIClient(apiKey, cfg)
	if err != nil {
		return nil, err
	}
	return &OpenAIDescriber{client: client, model: cfg.model}, nil
}

func (d *OpenAIDescriber) Describe(ctx context.Context, image []byte) (string, error) {
	dataURL := "data:" + http.DetectContentType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)

	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: describePrompt},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURL, Detail: openai.ImageURLDetailLow},
					},
				},
			},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to describe image with OpenAI", goerr.V("model", d.model))
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", goerr.New("OpenAI returned no description", goerr.V("model", d.model))
	}

	return resp.Choices[0].Message.Content, nil
}
