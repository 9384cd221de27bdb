package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/usecase"
	"github.com/secmon-lab/argus/pkg/utils/errutil"
	"github.com/secmon-lab/argus/pkg/utils/logging"
)

// DefaultMaxUploadSize bounds the multipart body of POST /api/validate
const DefaultMaxUploadSize = 32 << 20

type ValidationUseCase interface {
	Validate(ctx context.Context, input usecase.ValidationInput) (*usecase.ValidationResult, error)
}

type NamespaceUseCase interface {
	List(ctx context.Context) ([]*model.Namespace, error)
	Create(ctx context.Context, name, description string) (*model.Namespace, error)
	Clear(ctx context.Context, name string) error
	Delete(ctx context.Context, name string) error
	Stats(ctx context.Context, name string) (*model.NamespaceStats, error)
	ListReferences(ctx context.Context, name string, page, limit int) (*usecase.ReferencePage, error)
	DeleteReference(ctx context.Context, name string, id model.ReferenceID) error
}

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

type Server struct {
	router        *chi.Mux
	validation    ValidationUseCase
	namespaces    NamespaceUseCase
	registry      *model.CategoryRegistry
	maxUploadSize int64
	healthChecks  map[string]HealthCheck
}

type Options func(*Server)

func WithMaxUploadSize(size int64) Options {
	return func(s *Server) {
		s.maxUploadSize = size
	}
}

// WithHealthCheck adds a named check to GET /health
func WithHealthCheck(name string, check HealthCheck) Options {
	return func(s *Server) {
		s.healthChecks[name] = check
	}
}

func New(validation ValidationUseCase, namespaces NamespaceUseCase, registry *model.CategoryRegistry, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:        r,
		validation:    validation,
		namespaces:    namespaces,
		registry:      registry,
		maxUploadSize: DefaultMaxUploadSize,
		healthChecks:  make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Post("/validate", s.validateHandler)
		r.Get("/categories", s.categoriesHandler)
		r.Post("/suggest-prompt", s.suggestPromptHandler)

		r.Route("/namespaces", func(r chi.Router) {
			r.Get("/", s.listNamespacesHandler)
			r.Post("/", s.createNamespaceHandler)

			r.Route("/{namespace}", func(r chi.Router) {
				r.Delete("/", s.deleteNamespaceHandler)
				r.Post("/clear", s.clearNamespaceHandler)
				r.Get("/stats", s.namespaceStatsHandler)
				r.Get("/vectors", s.listVectorsHandler)
				r.Delete("/vectors/{id}", s.deleteVectorHandler)
			})
		})
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	status := http.StatusOK

	if len(s.healthChecks) > 0 {
		resp.Checks = make(map[string]string, len(s.healthChecks))
		names := make([]string, 0, len(s.healthChecks))
		for name := range s.healthChecks {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			if err := s.healthChecks[name](r.Context()); err != nil {
				logging.From(r.Context()).Warn("health check failed", "check", name, logging.ErrAttr(err))
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	writeJSON(w, r, status, resp)
}

func (s *Server) categoriesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"categories": s.registry.List(),
	})
}

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.From(r.Context()).Error("failed to write response", logging.ErrAttr(err))
	}
}

// statusOf maps an error to the HTTP status it is reported with
func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrNamespaceExists):
		return http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, usecase.ErrEmptyImage),
		errors.Is(err, usecase.ErrMissingCategory),
		errors.Is(err, usecase.ErrMissingState),
		errors.Is(err, usecase.ErrInvalidNamespace),
		errors.Is(err, model.ErrUnknownCategory),
		errors.Is(err, model.ErrUnexpectedState),
		errors.Is(err, model.ErrInvalidFolderPath),
		errors.Is(err, model.ErrInvalidMetadata):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrEmbedding),
		errors.Is(err, model.ErrJudgment):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func handleError(w http.ResponseWriter, r *http.Request, err error) {
	errutil.HandleHTTP(r.Context(), w, err, statusOf(err))
}
