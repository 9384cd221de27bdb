// Package clip is a client of the CLIP embedding microservice. The service accepts an
// image as the multipart field "file" on POST /embed and answers {"embedding": [...]}.
package clip

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/domain/interfaces"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/utils/safe"
)

const (
	DefaultTimeout = 30 * time.Second

	// errorBodyLimit caps how much of an error response is kept in the error values
	errorBodyLimit = 1024
)

type Client struct {
	baseURL   string
	http      *http.Client
	dimension atomic.Int64
}

var _ interfaces.Embedder = &Client{}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.http = c
	}
}

// WithDimension fixes the expected vector length. Without it the length of the first
// response is used.
func WithDimension(dim int) Option {
	return func(client *Client) {
		client.dimension.Store(int64(dim))
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, goerr.New("CLIP service URL is required")
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Dimension() int {
	return int(c.dimension.Load())
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (c *Client) Embed(ctx context.Context, image []byte) ([]float32, error) {
	if len(image) == 0 {
		return nil, goerr.Wrap(model.ErrEmbedding, "image is empty")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "image"+extension(image))
	if err != nil {
		return nil, goerr.Wrap(model.Failure(model.ErrEmbedding, err), "failed to create multipart field")
	}
	if _, err := part.Write(image); err != nil {
		return nil, goerr.Wrap(model.Failure(model.ErrEmbedding, err), "failed to write image to request")
	}
	if err := mw.Close(); err != nil {
		return nil, goerr.Wrap(model.Failure(model.ErrEmbedding, err), "failed to close multipart writer")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", &body)
	if err != nil {
		return nil, goerr.Wrap(model.Failure(model.ErrEmbedding, err), "failed to build CLIP request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, goerr.Wrap(model.Failure(model.ErrEmbedding, err), "CLIP request failed", goerr.V("url", c.baseURL))
	}
	defer safe.Close(ctx, resp.Body)

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, goerr.Wrap(model.ErrEmbedding, "CLIP service returned an error",
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(msg)))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, goerr.Wrap(model.Failure(model.ErrEmbedding, err), "failed to decode CLIP response")
	}
	if len(out.Embedding) == 0 {
		return nil, goerr.Wrap(model.ErrEmbedding, "CLIP service returned an empty embedding")
	}

	if !c.dimension.CompareAndSwap(0, int64(len(out.Embedding))) && c.Dimension() != len(out.Embedding) {
		return nil, goerr.Wrap(model.Failure(model.ErrEmbedding, model.ErrDimensionMismatch), "unexpected CLIP embedding length",
			goerr.V("expected", c.Dimension()), goerr.V("actual", len(out.Embedding)))
	}

	return out.Embedding, nil
}

// Health checks GET /health of the service
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return goerr.Wrap(err, "failed to build CLIP health request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return goerr.Wrap(err, "CLIP health check failed", goerr.V("url", c.baseURL))
	}
	defer safe.Close(ctx, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return goerr.New("CLIP service is unhealthy", goerr.V("status", resp.StatusCode))
	}
	return nil
}

func extension(image []byte) string {
	switch http.DetectContentType(image) {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
