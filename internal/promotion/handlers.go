package promotion

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront-promo/internal/common"
)

// Handler exposes the storefront pricing endpoints.
type Handler struct {
	Svc *Service
}

type cartRequest struct {
	Items []LineItem `json:"items" validate:"max=200,dive"`
	Code  string     `json:"code" validate:"omitempty,max=64"`
}

type couponRequest struct {
	Code     string           `json:"code" validate:"max=64"`
	Items    []LineItem       `json:"items" validate:"max=200,dive"`
	Subtotal *decimal.Decimal `json:"subtotal"`
}

type couponResponse struct {
	Valid   bool       `json:"valid"`
	Reason  Reason     `json:"reason,omitempty"`
	Message string     `json:"message,omitempty"`
	Label   string     `json:"label,omitempty"`
	Promo   *Promotion `json:"promotion,omitempty"`
}

type productPromotionsResponse struct {
	Promotions []Promotion   `json:"promotions"`
	Price      *ProductPrice `json:"price,omitempty"`
}

// Active lists the automatic promotions a shopper can see. Code-only
// promotions are never listed, so their codes stay private.
func (h *Handler) Active(w http.ResponseWriter, r *http.Request) {
	promos, err := h.Svc.Active(r.Context())
	if err != nil {
		h.fail(w, r, err, "load active promotions")
		return
	}
	common.Data(w, http.StatusOK, Auto(promos))
}

// Home returns the home banner, or null when nothing is featured.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	banner, err := h.Svc.HomeBanner(r.Context())
	if err != nil {
		h.fail(w, r, err, "load home promotion")
		return
	}
	common.Data(w, http.StatusOK, banner)
}

// ForProduct lists the automatic promotions of one product. With a price
// query parameter it also prices the product with its best deal.
func (h *Handler) ForProduct(w http.ResponseWriter, r *http.Request) {
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "product id is required", nil)
		return
	}
	q := r.URL.Query()
	item := LineItem{
		ProductID:   productID,
		CategoryIDs: splitCSV(q.Get("category_ids")),
		TagIDs:      splitCSV(q.Get("tag_ids")),
		Qty:         1,
	}
	promos, err := h.Svc.ProductPromotions(r.Context(), item.ProductID, item.CategoryIDs, item.TagIDs)
	if err != nil {
		h.fail(w, r, err, "load product promotions")
		return
	}
	resp := productPromotionsResponse{Promotions: promos}
	if raw := strings.TrimSpace(q.Get("price")); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil || price.IsNegative() {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "price must be a non-negative number", nil)
			return
		}
		item.Price = price
		best, err := h.Svc.BestProductPrice(r.Context(), item)
		if err != nil {
			h.fail(w, r, err, "price product")
			return
		}
		resp.Price = &best
	}
	common.Data(w, http.StatusOK, resp)
}

// CartTotals prices a cart with automatic promotions and an optional code.
func (h *Handler) CartTotals(w http.ResponseWriter, r *http.Request) {
	var req cartRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := common.ValidateStruct(req); err != nil {
		common.WriteError(w, err)
		return
	}
	totals, err := h.Svc.CartTotals(r.Context(), req.Items, req.Code)
	if err != nil {
		h.fail(w, r, err, "compute cart totals")
		return
	}
	common.Data(w, http.StatusOK, totals)
}

// ValidateCoupon checks a code against a cart. Refusals are 200 responses
// carrying the reason.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := common.ValidateStruct(req); err != nil {
		common.WriteError(w, err)
		return
	}
	if req.Subtotal != nil && req.Subtotal.IsNegative() {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "subtotal must not be negative", nil)
		return
	}
	res, err := h.Svc.ValidateCoupon(r.Context(), CouponRequest{Code: req.Code, Items: req.Items, Subtotal: req.Subtotal})
	if err != nil {
		h.fail(w, r, err, "validate coupon")
		return
	}
	resp := couponResponse{Valid: res.OK, Reason: res.Reason}
	if res.OK {
		resp.Promo = res.Promo
		resp.Label = CouponLabel(*res.Promo, nil)
	} else {
		resp.Message = res.Reason.Message()
	}
	common.Data(w, http.StatusOK, resp)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if common.IsAppError(err) {
		common.WriteError(w, err)
		return
	}
	zerolog.Ctx(r.Context()).Error().Err(err).Msg(msg)
	if errors.Is(err, ErrStoreUnavailable) {
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "promotions are temporarily unavailable", nil)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to "+msg, nil)
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return trimAll(strings.Split(raw, ","))
}
