package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/domain/model"
)

func (s *Server) listNamespacesHandler(w http.ResponseWriter, r *http.Request) {
	namespaces, err := s.namespaces.List(r.Context())
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"namespaces": namespaces})
}

type createNamespaceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) createNamespaceHandler(w http.ResponseWriter, r *http.Request) {
	var req createNamespaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(w, r, goerr.Wrap(errBadRequest, "invalid request body", goerr.V("cause", err.Error())))
		return
	}
	if req.Name == "" {
		handleError(w, r, goerr.Wrap(errBadRequest, "name is required"))
		return
	}

	created, err := s.namespaces.Create(r.Context(), req.Name, req.Description)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, created)
}

func (s *Server) deleteNamespaceHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.namespaces.Delete(r.Context(), chi.URLParam(r, "namespace")); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearNamespaceHandler(w http.ResponseWriter, r *http.Request) {
	ns := chi.URLParam(r, "namespace")
	if err := s.namespaces.Clear(r.Context(), ns); err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"namespace": ns, "cleared": true})
}

func (s *Server) namespaceStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.namespaces.Stats(r.Context(), chi.URLParam(r, "namespace"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

func (s *Server) listVectorsHandler(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		handleError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		handleError(w, r, err)
		return
	}

	result, err := s.namespaces.ListReferences(r.Context(), chi.URLParam(r, "namespace"), page, limit)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func (s *Server) deleteVectorHandler(w http.ResponseWriter, r *http.Request) {
	id := model.ReferenceID(chi.URLParam(r, "id"))
	if err := s.namespaces.DeleteReference(r.Context(), chi.URLParam(r, "namespace"), id); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// queryInt reads an optional integer query parameter. A missing value is 0.
func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, goerr.Wrap(errBadRequest, "invalid integer query parameter", goerr.V("param", key), goerr.V("value", v))
	}
	return n, nil
}
