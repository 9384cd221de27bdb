package http

import (
	"encoding/json"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/domain/types"
)

type suggestPromptRequest struct {
	Category    string `json:"category"`
	State       string `json:"state"`
	Description string `json:"description"`
}

type suggestPromptResponse struct {
	Category types.CategoryID `json:"category"`
	State    types.State      `json:"state"`
	Prompt   string           `json:"prompt"`
}

// suggestPromptHandler returns an editable validation prompt built from the category
// definition. Category and state accept the same labels as folder names.
func (s *Server) suggestPromptHandler(w http.ResponseWriter, r *http.Request) {
	var req suggestPromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(w, r, goerr.Wrap(errBadRequest, "invalid request body", goerr.V("cause", err.Error())))
		return
	}

	cat, ok := s.registry.Resolve(req.Category)
	if !ok {
		handleError(w, r, goerr.Wrap(model.ErrUnknownCategory, "category is not registered", goerr.V(model.CategoryKey, req.Category)))
		return
	}
	state, ok := cat.ResolveState(req.State)
	if !ok {
		handleError(w, r, goerr.Wrap(model.ErrUnexpectedState, "state is not an expected state of the category",
			goerr.V(model.CategoryKey, cat.ID), goerr.V(model.StateKey, req.State)))
		return
	}

	writeJSON(w, r, http.StatusOK, suggestPromptResponse{
		Category: cat.ID,
		State:    state,
		Prompt:   cat.SuggestPrompt(state, req.Description),
	})
}
