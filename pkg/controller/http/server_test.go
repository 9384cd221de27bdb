package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	httpctrl "github.com/secmon-lab/argus/pkg/controller/http"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/repository/memory"
	"github.com/secmon-lab/argus/pkg/usecase"
)

type mockEmbedder struct {
	embedFn func(ctx context.Context, image []byte) ([]float32, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, image []byte) ([]float32, error) {
	if m.embedFn != nil {
		return m.embedFn(ctx, image)
	}
	return []float32{0, 1, 0}, nil
}

func (m *mockEmbedder) Dimension() int {
	return 3
}

type mockJudge struct {
	judgeFn func(ctx context.Context, image []byte, question string) (*model.Verdict, error)
}

func (m *mockJudge) Judge(ctx context.Context, image []byte, question string) (*model.Verdict, error) {
	if m.judgeFn != nil {
		return m.judgeFn(ctx, image, question)
	}
	return &model.Verdict{
		IsValid:    true,
		Confidence: 0.75,
		Diagnosis: model.Diagnosis{
			OverallAssessment: "Valid",
			ConfidenceLevel:   0.75,
			KeyObservations:   []string{"pin spread correctly"},
		},
	}, nil
}

func (m *mockJudge) Name() string {
	return "mock/judge"
}

func setupServer(t *testing.T, embedder *mockEmbedder, opts ...httpctrl.Options) *httpctrl.Server {
	t.Helper()
	uc := usecase.New(memory.New(), embedder, usecase.WithJudge(&mockJudge{}))
	return httpctrl.New(uc.Validation, uc.Namespace, uc.Registry(), opts...)
}

func multipartRequest(t *testing.T, fields map[string]string, image []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if image != nil {
		fw, err := mw.CreateFormFile("image", "pin.jpg")
		gt.NoError(t, err).Required()
		_, err = fw.Write(image)
		gt.NoError(t, err).Required()
	}
	for k, v := range fields {
		gt.NoError(t, mw.WriteField(k, v)).Required()
	}
	gt.NoError(t, mw.Close()).Required()

	req := httptest.NewRequest(http.MethodPost, "/api/validate", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func do(srv http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestValidateEndpoint(t *testing.T) {
	srv := setupServer(t, &mockEmbedder{})
	image := []byte("\xff\xd8\xff\xe0 jpeg bytes")

	t.Run("training stores a reference", func(t *testing.T) {
		w := do(srv, multipartRequest(t, map[string]string{
			"category":  "cotter_pins",
			"state":     "present",
			"namespace": "site-1",
			"training":  "true",
		}, image))
		gt.Value(t, w.Code).Equal(http.StatusOK)

		var result usecase.ValidationResult
		gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &result)).Required()
		gt.Value(t, result.Mode).Equal(usecase.ModeTraining)
		gt.Value(t, result.Namespace.String()).Equal("site_1")
		gt.Bool(t, result.StoredID != "").True()
		gt.Value(t, result.Verdict.Confidence).Equal(1.0)
	})

	t.Run("validation finds the reference", func(t *testing.T) {
		w := do(srv, multipartRequest(t, map[string]string{
			"category":  "cotter_pins",
			"state":     "present",
			"namespace": "site-1",
		}, image))
		gt.Value(t, w.Code).Equal(http.StatusOK)

		var result usecase.ValidationResult
		gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &result)).Required()
		gt.Value(t, result.Mode).Equal(usecase.ModeValidation)
		gt.Value(t, result.Model).Equal("mock/judge")
		gt.Array(t, result.SimilarCases).Length(1)
		gt.Value(t, result.Verdict.Confidence).Equal(1.0)
	})

	t.Run("folder path", func(t *testing.T) {
		w := do(srv, multipartRequest(t, map[string]string{
			"folder_path": "inspections/04-Cotter Pins/02-Missing/a.jpg",
		}, image))
		gt.Value(t, w.Code).Equal(http.StatusOK)

		var result usecase.ValidationResult
		gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &result)).Required()
		gt.Value(t, result.ExpectedState.String()).Equal("missing")
	})
}

func TestValidateEndpoint_Errors(t *testing.T) {
	image := []byte("\xff\xd8\xff\xe0 jpeg bytes")

	testCases := []struct {
		name     string
		embedder *mockEmbedder
		fields   map[string]string
		image    []byte
		status   int
	}{
		{
			name:   "missing image",
			fields: map[string]string{"category": "cotter_pins", "state": "present"},
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown category",
			fields: map[string]string{"category": "welds", "state": "present"},
			image:  image,
			status: http.StatusBadRequest,
		},
		{
			name:   "unexpected state",
			fields: map[string]string{"category": "cotter_pins", "state": "bent"},
			image:  image,
			status: http.StatusBadRequest,
		},
		{
			name:   "invalid boolean",
			fields: map[string]string{"category": "cotter_pins", "state": "present", "training": "maybe"},
			image:  image,
			status: http.StatusBadRequest,
		},
		{
			name: "embedding failure",
			embedder: &mockEmbedder{
				embedFn: func(ctx context.Context, image []byte) ([]float32, error) {
					return nil, errors.New("clip service unavailable")
				},
			},
			fields: map[string]string{"category": "cotter_pins", "state": "present"},
			image:  image,
			status: http.StatusBadGateway,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			embedder := tc.embedder
			if embedder == nil {
				embedder = &mockEmbedder{}
			}
			srv := setupServer(t, embedder)

			w := do(srv, multipartRequest(t, tc.fields, tc.image))
			gt.Value(t, w.Code).Equal(tc.status)

			var body map[string]any
			gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &body)).Required()
			gt.Value(t, body["status"]).Equal(float64(tc.status))
		})
	}
}

func TestValidateEndpoint_UploadTooLarge(t *testing.T) {
	srv := setupServer(t, &mockEmbedder{}, httpctrl.WithMaxUploadSize(1024))

	w := do(srv, multipartRequest(t, map[string]string{
		"category": "cotter_pins",
		"state":    "present",
	}, bytes.Repeat([]byte("x"), 4096)))
	gt.Value(t, w.Code).Equal(http.StatusBadRequest)
}

func TestNamespaceEndpoints(t *testing.T) {
	srv := setupServer(t, &mockEmbedder{})
	image := []byte("\x89PNG\r\n\x1a\n")

	w := do(srv, httptest.NewRequest(http.MethodPost, "/api/namespaces", strings.NewReader(`{"name":"Line 3","description":"assembly line"}`)))
	gt.Value(t, w.Code).Equal(http.StatusCreated)
	var created model.Namespace
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &created)).Required()
	gt.Value(t, created.ID.String()).Equal("line_3")

	w = do(srv, httptest.NewRequest(http.MethodPost, "/api/namespaces", strings.NewReader(`{"name":"line_3"}`)))
	gt.Value(t, w.Code).Equal(http.StatusConflict)

	w = do(srv, httptest.NewRequest(http.MethodPost, "/api/namespaces", strings.NewReader(`{}`)))
	gt.Value(t, w.Code).Equal(http.StatusBadRequest)

	var ids []string
	for range 3 {
		w = do(srv, multipartRequest(t, map[string]string{
			"category":  "threads",
			"state":     "visible",
			"namespace": "line_3",
			"training":  "1",
		}, image))
		gt.Value(t, w.Code).Equal(http.StatusOK)

		var result usecase.ValidationResult
		gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &result)).Required()
		ids = append(ids, result.StoredID.String())
	}

	w = do(srv, httptest.NewRequest(http.MethodGet, "/api/namespaces", nil))
	gt.Value(t, w.Code).Equal(http.StatusOK)
	var list struct {
		Namespaces []*model.Namespace `json:"namespaces"`
	}
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &list)).Required()
	gt.Array(t, list.Namespaces).Length(1)

	w = do(srv, httptest.NewRequest(http.MethodGet, "/api/namespaces/line_3/stats", nil))
	gt.Value(t, w.Code).Equal(http.StatusOK)
	var stats model.NamespaceStats
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats)).Required()
	gt.Value(t, stats.TotalVectors).Equal(3)
	gt.Value(t, stats.Categories["threads"]).Equal(3)

	w = do(srv, httptest.NewRequest(http.MethodGet, "/api/namespaces/line_3/vectors?page=1&limit=2", nil))
	gt.Value(t, w.Code).Equal(http.StatusOK)
	var page usecase.ReferencePage
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &page)).Required()
	gt.Value(t, page.Total).Equal(3)
	gt.Array(t, page.References).Length(2)
	gt.Value(t, page.References[0].Metadata.Category.String()).Equal("threads")
	gt.String(t, w.Body.String()).NotContains("Embedding")

	w = do(srv, httptest.NewRequest(http.MethodGet, "/api/namespaces/line_3/vectors?page=abc", nil))
	gt.Value(t, w.Code).Equal(http.StatusBadRequest)

	w = do(srv, httptest.NewRequest(http.MethodDelete, "/api/namespaces/line_3/vectors/"+ids[0], nil))
	gt.Value(t, w.Code).Equal(http.StatusNoContent)

	w = do(srv, httptest.NewRequest(http.MethodDelete, "/api/namespaces/line_3/vectors/"+ids[0], nil))
	gt.Value(t, w.Code).Equal(http.StatusNotFound)

	w = do(srv, httptest.NewRequest(http.MethodPost, "/api/namespaces/line_3/clear", nil))
	gt.Value(t, w.Code).Equal(http.StatusOK)

	w = do(srv, httptest.NewRequest(http.MethodGet, "/api/namespaces/line_3/stats", nil))
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats)).Required()
	gt.Value(t, stats.TotalVectors).Equal(0)

	w = do(srv, httptest.NewRequest(http.MethodDelete, "/api/namespaces/line_3", nil))
	gt.Value(t, w.Code).Equal(http.StatusNoContent)

	w = do(srv, httptest.NewRequest(http.MethodDelete, "/api/namespaces/line_3", nil))
	gt.Value(t, w.Code).Equal(http.StatusNotFound)
}

func TestCategoriesEndpoint(t *testing.T) {
	srv := setupServer(t, &mockEmbedder{})

	w := do(srv, httptest.NewRequest(http.MethodGet, "/api/categories", nil))
	gt.Value(t, w.Code).Equal(http.StatusOK)

	var resp struct {
		Categories []*model.Category `json:"categories"`
	}
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp)).Required()
	gt.Array(t, resp.Categories).Length(len(model.DefaultCategories()))
}

func TestSuggestPromptEndpoint(t *testing.T) {
	srv := setupServer(t, &mockEmbedder{})

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/suggest-prompt", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return do(srv, req)
	}

	t.Run("folder labels are resolved", func(t *testing.T) {
		w := post(`{"category":"Connector Plates","state":"Bent","description":"line 3 fixture"}`)
		gt.Value(t, w.Code).Equal(http.StatusOK)

		var resp struct {
			Category string `json:"category"`
			State    string `json:"state"`
			Prompt   string `json:"prompt"`
		}
		gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp)).Required()
		gt.Value(t, resp.Category).Equal("connector_plates")
		gt.Value(t, resp.State).Equal("bent")
		gt.String(t, resp.Prompt).Contains("connector plate is bent")
		gt.String(t, resp.Prompt).Contains("[CRITICAL] Surface flatness")
		gt.String(t, resp.Prompt).Contains("Additional Context:\nline 3 fixture")
	})

	t.Run("unknown category", func(t *testing.T) {
		gt.Value(t, post(`{"category":"gaskets","state":"present"}`).Code).Equal(http.StatusBadRequest)
	})

	t.Run("unexpected state", func(t *testing.T) {
		gt.Value(t, post(`{"category":"connector_plates","state":"missing"}`).Code).Equal(http.StatusBadRequest)
	})

	t.Run("broken body", func(t *testing.T) {
		gt.Value(t, post(`{`).Code).Equal(http.StatusBadRequest)
	})
}

func TestHealthEndpoint(t *testing.T) {
	t.Run("no checks", func(t *testing.T) {
		w := do(setupServer(t, &mockEmbedder{}), httptest.NewRequest(http.MethodGet, "/health", nil))
		gt.Value(t, w.Code).Equal(http.StatusOK)
		gt.String(t, w.Body.String()).Contains(`"status":"ok"`)
	})

	t.Run("failing check", func(t *testing.T) {
		srv := setupServer(t, &mockEmbedder{},
			httpctrl.WithHealthCheck("clip", func(ctx context.Context) error {
				return errors.New("connection refused")
			}),
			httpctrl.WithHealthCheck("repository", func(ctx context.Context) error {
				return nil
			}),
		)

		w := do(srv, httptest.NewRequest(http.MethodGet, "/health", nil))
		gt.Value(t, w.Code).Equal(http.StatusServiceUnavailable)

		var resp struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		}
		gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp)).Required()
		gt.Value(t, resp.Status).Equal("degraded")
		gt.Value(t, resp.Checks["repository"]).Equal("ok")
		gt.String(t, resp.Checks["clip"]).Contains("connection refused")
	})
}
