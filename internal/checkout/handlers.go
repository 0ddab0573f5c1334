package checkout

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-promo/internal/common"
	"github.com/noah-isme/storefront-promo/internal/promotion"
)

// Handler exposes checkout over HTTP.
type Handler struct {
	Svc *Service
}

// Start handles POST /checkout/session.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "CHECKOUT_DISABLED", "checkout is not configured", nil)
		return
	}
	var req Request
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.Svc.Start(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, res)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case common.IsAppError(err):
		common.WriteError(w, err)
	case errors.Is(err, ErrInvalidLine), errors.Is(err, ErrInvalidRedirect):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrUpstream):
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("checkout session refused")
		common.WriteError(w, common.Upstream("checkout provider rejected the session", err))
	case errors.Is(err, ErrUnavailable), errors.Is(err, promotion.ErrStoreUnavailable):
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("checkout dependency unavailable")
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "checkout temporarily unavailable", nil)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("checkout failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
