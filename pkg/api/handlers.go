package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/clientads/adserver/pkg/api/store"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// minClientIDLength is the shortest accepted client identifier.
const minClientIDLength = 3

// validateClientID enforces the registration rules for client ids.
func validateClientID(id string) error {
	if len(id) < minClientIDLength {
		return errors.New("clientId must be at least 3 characters")
	}

	if strings.ContainsFunc(id, unicode.IsSpace) {
		return errors.New("clientId must not contain whitespace")
	}

	return nil
}

// checkPassword compares a bcrypt hash with a plaintext password.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword(
		[]byte(hash), []byte(password),
	) == nil
}

// --- Public handlers ---

// handleHealth returns server health, pinging the database.
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.WithError(err).Error("Health check failed")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"database unavailable"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"db":     "connected",
	})
}

// --- Auth handlers ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type userResponse struct {
	Username         string   `json:"username"`
	Role             string   `json:"role"`
	AllowedClientIDs []string `json:"allowedClientIds"`
}

func toUserResponse(u *store.User) userResponse {
	ids := make([]string, 0, len(u.AllowedClientIDs))
	ids = append(ids, u.AllowedClientIDs...)

	return userResponse{
		Username:         u.Username,
		Role:             u.Role,
		AllowedClientIDs: ids,
	}
}

// handleLogin authenticates a user and issues a fresh credential.
func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"username and password are required"})

		return
	}

	user, err := s.store.GetUser(r.Context(), req.Username)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized,
			errorResponse{"invalid credentials"})

		return
	}

	if !checkPassword(user.PasswordHash, req.Password) {
		writeJSON(w, http.StatusUnauthorized,
			errorResponse{"invalid credentials"})

		return
	}

	token, err := s.issuer.Issue(user)
	if err != nil {
		s.log.WithError(err).Error("Failed to issue credential")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Token: token,
		User:  toUserResponse(user),
	})
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	ClientID string `json:"clientId"`
}

// handleRegister creates a developer account scoped to a new client id,
// its default config, and a fresh credential. Registration and first
// login are fused into one step.
func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	if req.Username == "" || req.Password == "" || req.ClientID == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"username, password, and clientId are required"})

		return
	}

	if err := validateClientID(req.ClientID); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	if _, err := s.store.GetUser(r.Context(), req.Username); err == nil {
		writeJSON(w, http.StatusConflict,
			errorResponse{"username already exists"})

		return
	} else if !errors.Is(err, store.ErrNotFound) {
		s.log.WithError(err).Error("Failed to check username")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	inUse, err := s.store.ClientIDInUse(r.Context(), req.ClientID)
	if err != nil {
		s.log.WithError(err).Error("Failed to check client id")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	if inUse {
		writeJSON(w, http.StatusConflict,
			errorResponse{"clientId already in use"})

		return
	}

	hash, err := bcrypt.GenerateFromPassword(
		[]byte(req.Password), bcrypt.DefaultCost,
	)
	if err != nil {
		s.log.WithError(err).Error("Failed to hash password")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	user := &store.User{
		Username:         req.Username,
		PasswordHash:     string(hash),
		Role:             store.RoleDeveloper,
		AllowedClientIDs: store.StringList{req.ClientID},
	}

	if err := s.store.CreateUser(r.Context(), user); err != nil {
		// A concurrent registration can win the race after the
		// pre-check; anything else is a dependency failure.
		if _, getErr := s.store.GetUser(r.Context(), req.Username); getErr == nil {
			writeJSON(w, http.StatusConflict,
				errorResponse{"username already exists"})

			return
		}

		s.log.WithError(err).Error("Failed to create user")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	// The default config is a separate write; a crash here leaves the
	// user without its config, which selection tolerates.
	if err := s.store.UpsertConfig(
		r.Context(), store.DefaultClientConfig(req.ClientID),
	); err != nil {
		s.log.WithError(err).Error("Failed to create default config")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	token, err := s.issuer.Issue(user)
	if err != nil {
		s.log.WithError(err).Error("Failed to issue credential")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		Token: token,
		User:  toUserResponse(user),
	})
}

// handleMe returns the caller's verified identity and scope.
func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	actx := authFromContext(r.Context())
	if actx == nil {
		writeJSON(w, http.StatusUnauthorized,
			errorResponse{"not authenticated"})

		return
	}

	ids := actx.AllowedClientIDs
	if ids == nil {
		ids = []string{}
	}

	writeJSON(w, http.StatusOK, userResponse{
		Username:         actx.Username,
		Role:             actx.Role,
		AllowedClientIDs: ids,
	})
}

type addAppRequest struct {
	ClientID string `json:"clientId"`
}

// handleAddApp adds a client id to the calling developer's own scope.
// The scope only grows; adding a present id changes nothing observable.
// Admin calls are accepted as no-ops since role already grants access.
func (s *server) handleAddApp(w http.ResponseWriter, r *http.Request) {
	actx := authFromContext(r.Context())

	var req addAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	if err := validateClientID(req.ClientID); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	user, err := s.store.GetUser(r.Context(), actx.Username)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized,
			errorResponse{"user not found"})

		return
	}

	if actx.IsAdmin() || user.HasClientID(req.ClientID) {
		writeJSON(w, http.StatusOK, toUserResponse(user))

		return
	}

	inUse, err := s.store.ClientIDInUse(r.Context(), req.ClientID)
	if err != nil {
		s.log.WithError(err).Error("Failed to check client id")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	if inUse {
		writeJSON(w, http.StatusConflict,
			errorResponse{"clientId already in use"})

		return
	}

	user.AllowedClientIDs = append(user.AllowedClientIDs, req.ClientID)

	if err := s.store.SaveUser(r.Context(), user); err != nil {
		s.log.WithError(err).Error("Failed to save user")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	if err := s.store.UpsertConfig(
		r.Context(), store.DefaultClientConfig(req.ClientID),
	); err != nil {
		s.log.WithError(err).Error("Failed to create default config")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// --- Admin handlers ---

type adminCreateUserRequest struct {
	Username  string   `json:"username"`
	Password  string   `json:"password"`
	Role      string   `json:"role"`
	ClientIDs []string `json:"clientIds,omitempty"`
}

// handleAdminCreateUser creates an account with any role and scope.
func (s *server) handleAdminCreateUser(
	w http.ResponseWriter, r *http.Request,
) {
	var req adminCreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"username and password are required"})

		return
	}

	if req.Role != store.RoleAdmin && req.Role != store.RoleDeveloper {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"role must be \"admin\" or \"developer\""})

		return
	}

	if _, err := s.store.GetUser(r.Context(), req.Username); err == nil {
		writeJSON(w, http.StatusConflict,
			errorResponse{"username already exists"})

		return
	} else if !errors.Is(err, store.ErrNotFound) {
		s.log.WithError(err).Error("Failed to check username")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	hash, err := bcrypt.GenerateFromPassword(
		[]byte(req.Password), bcrypt.DefaultCost,
	)
	if err != nil {
		s.log.WithError(err).Error("Failed to hash password")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	user := &store.User{
		Username:         req.Username,
		PasswordHash:     string(hash),
		Role:             req.Role,
		AllowedClientIDs: store.StringList(req.ClientIDs),
	}

	if user.AllowedClientIDs == nil {
		user.AllowedClientIDs = store.StringList{}
	}

	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if _, getErr := s.store.GetUser(r.Context(), req.Username); getErr == nil {
			writeJSON(w, http.StatusConflict,
				errorResponse{"username already exists"})

			return
		}

		s.log.WithError(err).Error("Failed to create user")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(user))
}
