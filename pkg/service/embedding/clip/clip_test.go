package clip_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/service/embedding/clip"
)

func newCLIPServer(t *testing.T, embedding []float32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
		case "/embed":
			gt.Value(t, r.Method).Equal(http.MethodPost)
			file, header, err := r.FormFile("file")
			gt.NoError(t, err).Required()
			data, err := io.ReadAll(file)
			gt.NoError(t, err).Required()
			gt.Value(t, string(data)).Equal("\x89PNG\r\n\x1a\n")
			gt.Value(t, header.Filename).Equal("image.png")
			_ = json.NewEncoder(w).Encode(map[string]any{"embedding": embedding})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestClient_Embed(t *testing.T) {
	ctx := context.Background()
	image := []byte("\x89PNG\r\n\x1a\n")

	t.Run("returns embedding and learns dimension", func(t *testing.T) {
		srv := newCLIPServer(t, []float32{0.1, 0.2, 0.3})
		defer srv.Close()

		client, err := clip.New(srv.URL + "/")
		gt.NoError(t, err).Required()
		gt.Value(t, client.Dimension()).Equal(0)

		vec, err := client.Embed(ctx, image)
		gt.NoError(t, err).Required()
		gt.Array(t, vec).Length(3)
		gt.Value(t, vec[1]).Equal(float32(0.2))
		gt.Value(t, client.Dimension()).Equal(3)
		gt.NoError(t, client.Health(ctx))
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		srv := newCLIPServer(t, []float32{0.1, 0.2})
		defer srv.Close()

		client, err := clip.New(srv.URL, clip.WithDimension(512))
		gt.NoError(t, err).Required()

		_, err = client.Embed(ctx, image)
		gt.Error(t, err).Is(model.ErrEmbedding)
		gt.Error(t, err).Is(model.ErrDimensionMismatch)
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		client, err := clip.New(srv.URL)
		gt.NoError(t, err).Required()

		_, err = client.Embed(ctx, image)
		gt.Error(t, err).Is(model.ErrEmbedding)
		gt.Error(t, client.Health(ctx))
	})

	t.Run("empty image", func(t *testing.T) {
		client, err := clip.New("http://localhost:0")
		gt.NoError(t, err).Required()

		_, err = client.Embed(ctx, nil)
		gt.Error(t, err).Is(model.ErrEmbedding)
	})
}

func TestClient_WithRealService(t *testing.T) {
	url := os.Getenv("TEST_CLIP_URL")
	if url == "" {
		t.Skip("TEST_CLIP_URL not set")
	}

	client, err := clip.New(url)
	gt.NoError(t, err).Required()
	gt.NoError(t, client.Health(context.Background()))
}
