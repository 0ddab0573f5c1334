package auth

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-promo/internal/common"
)

// Handler exposes admin authentication endpoints.
type Handler struct {
	Service *Service
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=256"`
}

// Login handles POST /admin/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := common.ValidateStruct(req); err != nil {
		common.WriteError(w, err)
		return
	}
	session, err := h.Service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if !common.IsAppError(err) {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("admin login")
		}
		common.WriteError(w, err)
		return
	}
	zerolog.Ctx(r.Context()).Info().Str("admin", session.Email).Msg("admin logged in")
	common.Data(w, http.StatusOK, session)
}

// Logout handles POST /admin/auth/logout. It must run behind RequireAuth.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := common.PrincipalFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return
	}
	if err := h.Service.Logout(r.Context(), principal); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("admin logout")
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "logout temporarily unavailable", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /admin/auth/session.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	principal, ok := common.PrincipalFrom(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return
	}
	common.Data(w, http.StatusOK, Session{Email: principal.Subject, ExpiresAt: principal.ExpiresAt})
}
