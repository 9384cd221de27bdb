package judge

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sashabaranov/go-openai"
)

const DefaultOpenAIModel = openai.GPT4oMini

// OpenAI is a Vision backed by the OpenAI chat completion API
type OpenAI struct {
	client *openai.Client
	model  string
}

var _ Vision = &OpenAI{}

type OpenAIOption func(*openaiConfig)

type openaiConfig struct {
	model   string
	baseURL string
}

func WithOpenAIModel(model string) OpenAIOption {
	return func(c *openaiConfig) {
		c.model = model
	}
}

// WithOpenAIBaseURL points the client at an OpenAI compatible endpoint
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(c *openaiConfig) {
		c.baseURL = url
	}
}

func NewOpenAI(apiKey string, opts ...OpenAIOption) (*OpenAI, error) {
	if apiKey == "" {
		return nil, goerr.New("OpenAI API key is required")
	}

	cfg := &openaiConfig{model: DefaultOpenAIModel}
	for _, opt := range opts {
		opt(cfg)
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.baseURL != "" {
		clientCfg.BaseURL = cfg.baseURL
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.model,
	}, nil
}

func (o *OpenAI) Name() string {
	return "openai/" + o.model
}

func (o *OpenAI) Ask(ctx context.Context, image []byte, question string) (string, error) {
	dataURL := "data:" + http.DetectContentType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: question},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to call OpenAI chat completion", goerr.V("model", o.model))
	}
	if len(resp.Choices) == 0 {
		return "", goerr.New("OpenAI returned no choices", goerr.V("model", o.model))
	}

	return resp.Choices[0].Message.Content, nil
}
