package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clientads/adserver/pkg/api/store"
)

// handleGetConfig returns a client's policy, synthesizing the default
// when none has been stored.
func (s *server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	actx := authFromContext(r.Context())
	clientID := chi.URLParam(r, "clientId")

	if !actx.CanAccessClient(clientID) {
		writeJSON(w, http.StatusForbidden,
			errorResponse{"clientId outside allowed scope"})

		return
	}

	cfg, err := s.store.GetConfig(r.Context(), clientID)
	if errors.Is(err, store.ErrNotFound) {
		// Not persisted: absence means the permissive default.
		cfg = store.DefaultClientConfig(clientID)
	} else if err != nil {
		s.log.WithError(err).Error("Failed to get client config")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

type upsertConfigRequest struct {
	AllowedTypes      []string `json:"allowedTypes"`
	AllowedCategories []string `json:"allowedCategories"`
}

// handleUpsertConfig replaces a client's policy, applying defaults for
// omitted fields.
func (s *server) handleUpsertConfig(w http.ResponseWriter, r *http.Request) {
	actx := authFromContext(r.Context())
	clientID := chi.URLParam(r, "clientId")

	if !actx.CanAccessClient(clientID) {
		writeJSON(w, http.StatusForbidden,
			errorResponse{"clientId outside allowed scope"})

		return
	}

	var req upsertConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	if req.AllowedTypes == nil {
		req.AllowedTypes = []string{store.AdTypeImage, store.AdTypeVideo}
	}

	for _, t := range req.AllowedTypes {
		if t != store.AdTypeImage && t != store.AdTypeVideo {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"allowedTypes members must be \"image\" or \"video\""})

			return
		}
	}

	if req.AllowedCategories == nil {
		req.AllowedCategories = []string{}
	}

	cfg := &store.ClientConfig{
		ClientID:          clientID,
		AllowedTypes:      store.StringList(req.AllowedTypes),
		AllowedCategories: store.StringList(req.AllowedCategories),
	}

	if err := s.store.UpsertConfig(r.Context(), cfg); err != nil {
		s.log.WithError(err).Error("Failed to upsert client config")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, cfg)
}
