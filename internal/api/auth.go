package api

import (
	"net/http"
	"time"

	"github.com/homelab-00/transcription-suite/internal/tokenstore"
)

// AuthHandler implements POST /api/auth/login: exchange a bearer token for
// a cookie, so the served SPA's page navigations don't need to carry an
// Authorization header.
type AuthHandler struct {
	store      *tokenstore.Store
	cookieTLS  bool
}

func NewAuthHandler(store *tokenstore.Store, cookieTLS bool) *AuthHandler {
	return &AuthHandler{store: store, cookieTLS: cookieTLS}
}

type loginRequest struct {
	Token string `json:"token"`
}

type loginResponse struct {
	ClientName string `json:"client_name"`
	IsAdmin    bool    `json:"is_admin"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	identity, ok := h.store.Validate(req.Token)
	if !ok {
		WriteError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    req.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieTLS,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(30 * 24 * time.Hour),
	})

	WriteJSON(w, http.StatusOK, loginResponse{ClientName: identity.ClientName, IsAdmin: identity.IsAdmin})
}
