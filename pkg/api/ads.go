package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clientads/adserver/pkg/api/store"
)

type createAdRequest struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Type       string   `json:"type"`
	ImageURL   string   `json:"imageUrl"`
	VideoURL   string   `json:"videoUrl"`
	ClickURL   string   `json:"clickUrl"`
	Categories []string `json:"categories"`
	Enabled    *bool    `json:"enabled"`
	ClientID   string   `json:"clientId"`
}

// handleListAds returns ads visible within the caller's scope, optionally
// narrowed by clientId and type query parameters.
func (s *server) handleListAds(w http.ResponseWriter, r *http.Request) {
	actx := authFromContext(r.Context())

	scope, err := actx.ListScope(r.URL.Query().Get("clientId"))
	if err != nil {
		writeJSON(w, http.StatusForbidden,
			errorResponse{"clientId outside allowed scope"})

		return
	}

	filter := store.AdFilter{
		ClientIDs: scope,
		Type:      r.URL.Query().Get("type"),
	}

	ads, err := s.store.ListAds(r.Context(), filter)
	if err != nil {
		s.log.WithError(err).Error("Failed to list ads")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, ads)
}

// handleCreateAd validates and upserts an ad keyed on its id, so
// repeating an identical create is safe.
func (s *server) handleCreateAd(w http.ResponseWriter, r *http.Request) {
	actx := authFromContext(r.Context())

	var req createAdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	if req.ClientID == "" || req.ID == "" || req.Title == "" ||
		req.Type == "" || req.ClickURL == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"id, title, type, clickUrl, and clientId are required"})

		return
	}

	switch req.Type {
	case store.AdTypeImage:
		if req.ImageURL == "" {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"imageUrl is required for image ads"})

			return
		}

		// Exactly one asset URL may be present, matching the type.
		req.VideoURL = ""
	case store.AdTypeVideo:
		if req.VideoURL == "" {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"videoUrl is required for video ads"})

			return
		}

		req.ImageURL = ""
	default:
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"type must be \"image\" or \"video\""})

		return
	}

	if !actx.CanAccessClient(req.ClientID) {
		writeJSON(w, http.StatusForbidden,
			errorResponse{"clientId outside allowed scope"})

		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	ad := &store.Ad{
		ID:         req.ID,
		Title:      req.Title,
		Type:       req.Type,
		ImageURL:   req.ImageURL,
		VideoURL:   req.VideoURL,
		ClickURL:   req.ClickURL,
		Categories: store.StringList(req.Categories),
		Enabled:    enabled,
		ClientID:   req.ClientID,
	}

	if ad.Categories == nil {
		ad.Categories = store.StringList{}
	}

	if err := s.store.UpsertAd(r.Context(), ad); err != nil {
		s.log.WithError(err).Error("Failed to upsert ad")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"status": "created",
		"id":     ad.ID,
	})
}

// adUpdateColumns maps updatable JSON fields to their columns. The id is
// never reassignable through update; clientId only by admins.
var adUpdateColumns = map[string]string{
	"title":      "title",
	"type":       "type",
	"imageUrl":   "image_url",
	"videoUrl":   "video_url",
	"clickUrl":   "click_url",
	"categories": "categories",
	"enabled":    "enabled",
	"clientId":   "client_id",
}

// handleUpdateAd applies a partial update to an existing ad. Ownership is
// checked against the stored record, not the payload.
func (s *server) handleUpdateAd(w http.ResponseWriter, r *http.Request) {
	actx := authFromContext(r.Context())
	adID := chi.URLParam(r, "id")

	var updates map[string]any
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	existing, err := s.store.GetAd(r.Context(), adID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound,
				errorResponse{"ad not found"})

			return
		}

		s.log.WithError(err).Error("Failed to get ad")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	if !actx.CanAccessClient(existing.ClientID) {
		writeJSON(w, http.StatusForbidden,
			errorResponse{"ad owned by another client"})

		return
	}

	// Strip non-reassignable keys before persistence rather than
	// ignoring them afterwards.
	delete(updates, "id")

	if !actx.IsAdmin() {
		delete(updates, "clientId")
	}

	fields := make(map[string]any, len(updates))

	for key, value := range updates {
		column, ok := adUpdateColumns[key]
		if !ok {
			continue
		}

		if key == "type" {
			t, _ := value.(string)
			if t != store.AdTypeImage && t != store.AdTypeVideo {
				writeJSON(w, http.StatusBadRequest,
					errorResponse{"type must be \"image\" or \"video\""})

				return
			}
		}

		if key == "categories" {
			list, err := toStringList(value)
			if err != nil {
				writeJSON(w, http.StatusBadRequest,
					errorResponse{"categories must be a list of strings"})

				return
			}

			fields[column] = list

			continue
		}

		fields[column] = value
	}

	if err := s.store.UpdateAdFields(r.Context(), adID, fields); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound,
				errorResponse{"ad not found"})

			return
		}

		s.log.WithError(err).Error("Failed to update ad")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	updated, err := s.store.GetAd(r.Context(), adID)
	if err != nil {
		s.log.WithError(err).Error("Failed to reload ad")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteAd removes an ad after the existence check, then the
// ownership check, in that order.
func (s *server) handleDeleteAd(w http.ResponseWriter, r *http.Request) {
	actx := authFromContext(r.Context())
	adID := chi.URLParam(r, "id")

	existing, err := s.store.GetAd(r.Context(), adID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound,
				errorResponse{"ad not found"})

			return
		}

		s.log.WithError(err).Error("Failed to get ad")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	if !actx.CanAccessClient(existing.ClientID) {
		writeJSON(w, http.StatusForbidden,
			errorResponse{"ad owned by another client"})

		return
	}

	if err := s.store.DeleteAd(r.Context(), adID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound,
				errorResponse{"ad not found"})

			return
		}

		s.log.WithError(err).Error("Failed to delete ad")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "deleted",
		"id":     adID,
	})
}

// selectMissResponse is the empty-result payload for a selection miss.
type selectMissResponse struct {
	Ad *store.Ad `json:"ad"`
}

// handleSelectAd serves one randomly chosen eligible ad. A hit returns
// the bare ad record; a miss is a valid empty result, never an error.
func (s *server) handleSelectAd(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"clientId is required"})

		return
	}

	ad, err := s.selector.Select(
		r.Context(), clientID, r.URL.Query().Get("type"),
	)
	if err != nil {
		s.log.WithError(err).Error("Failed to select ad")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	if ad == nil {
		writeJSON(w, http.StatusOK, selectMissResponse{})

		return
	}

	writeJSON(w, http.StatusOK, ad)
}

// toStringList converts a decoded JSON value into a store.StringList.
func toStringList(value any) (store.StringList, error) {
	raw, ok := value.([]any)
	if !ok {
		return nil, errors.New("not a list")
	}

	list := make(store.StringList, 0, len(raw))

	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, errors.New("not a string")
		}

		list = append(list, s)
	}

	return list, nil
}
