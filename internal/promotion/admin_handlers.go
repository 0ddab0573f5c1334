package promotion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront-promo/internal/common"
	"github.com/noah-isme/storefront-promo/internal/events"
)

// Emitter records domain events for admin changes.
type Emitter interface {
	EmitLogged(ctx context.Context, topic string, aggregateID uuid.UUID, payload any)
}

// AdminHandler exposes promotion management for the admin console.
type AdminHandler struct {
	Store  Store
	Svc    *Service
	Events Emitter
}

type promotionPayload struct {
	Name            string           `json:"name" validate:"required,max=200"`
	Description     *string          `json:"description" validate:"omitempty,max=2000"`
	Type            string           `json:"type" validate:"required,oneof=percentage fixed bogo free_shipping"`
	Value           *decimal.Decimal `json:"value"`
	ScopeType       string           `json:"scope_type" validate:"omitempty,oneof=all product category tag"`
	ScopeData       []string         `json:"scope_data" validate:"max=500,dive,required,max=128"`
	BogoRewardType  *string          `json:"bogo_reward_type" validate:"omitempty,oneof=product category tag"`
	BogoRewardID    *string          `json:"bogo_reward_id" validate:"omitempty,max=128"`
	MaxUsesPerOrder *int             `json:"max_uses_per_order" validate:"omitempty,min=1,max=100"`
	RequiresCode    bool             `json:"requires_code"`
	Code            *string          `json:"code" validate:"omitempty,max=64"`
	IsActive        *bool            `json:"is_active"`
	IsPublic        *bool            `json:"is_public"`
	StartDate       *time.Time       `json:"start_date"`
	EndDate         *time.Time       `json:"end_date"`
	MinOrderAmount  *decimal.Decimal `json:"min_order_amount"`
	UsageLimit      *int             `json:"usage_limit" validate:"omitempty,min=0"`
	BannerImagePath *string          `json:"banner_image_path" validate:"omitempty,max=500"`
}

// toRow checks the cross-field rules and builds the stored form. Unlike the
// read path, which skips bad records, admin writes are rejected outright.
func (p promotionPayload) toRow(id uuid.UUID) (Row, error) {
	fields := map[string]string{}
	kind := Kind(p.Type)
	switch kind {
	case KindPercentage:
		if p.Value == nil || !p.Value.IsPositive() || p.Value.GreaterThan(decimal.NewFromInt(100)) {
			fields["value"] = "percentage must be greater than 0 and at most 100"
		}
	case KindFixed:
		if p.Value == nil || !p.Value.IsPositive() {
			fields["value"] = "amount must be greater than 0"
		}
	case KindBogo:
		if p.BogoRewardType == nil || strings.TrimSpace(*p.BogoRewardType) == "" {
			fields["bogo_reward_type"] = "required"
		}
		if p.BogoRewardID == nil || strings.TrimSpace(*p.BogoRewardID) == "" {
			fields["bogo_reward_id"] = "required"
		}
	}
	scope := ScopeType(p.ScopeType)
	if scope == "" {
		scope = ScopeAll
	}
	if scope != ScopeAll && len(p.ScopeData) == 0 {
		fields["scope_data"] = "required for a targeted scope"
	}
	code := strings.TrimSpace(deref(p.Code))
	switch {
	case p.RequiresCode && code == "":
		fields["code"] = "required when requires_code is set"
	case strings.IndexFunc(code, unicode.IsSpace) >= 0:
		fields["code"] = "must not contain whitespace"
	}
	if p.StartDate != nil && p.EndDate != nil && p.EndDate.Before(*p.StartDate) {
		fields["end_date"] = "must not be before start_date"
	}
	if p.MinOrderAmount != nil && p.MinOrderAmount.IsNegative() {
		fields["min_order_amount"] = "must not be negative"
	}
	if len(fields) > 0 {
		return Row{}, common.BadRequest("validation failed", ErrInvalidPromotion, map[string]any{"fields": fields})
	}

	r := Row{
		ID:              id,
		Name:            strings.TrimSpace(p.Name),
		Description:     p.Description,
		Type:            string(kind),
		ScopeType:       string(scope),
		ScopeData:       trimAll(p.ScopeData),
		RequiresCode:    p.RequiresCode,
		Code:            ref(deref(p.Code)),
		IsActive:        p.IsActive == nil || *p.IsActive,
		IsPublic:        p.IsPublic == nil || *p.IsPublic,
		StartDate:       p.StartDate,
		EndDate:         p.EndDate,
		UsageLimit:      p.UsageLimit,
		BannerImagePath: p.BannerImagePath,
	}
	if scope == ScopeAll {
		r.ScopeData = []string{}
	}
	if kind == KindPercentage || kind == KindFixed {
		r.Value = decimal.NewNullDecimal(*p.Value)
	}
	if kind == KindBogo {
		r.BogoRewardType = ref(deref(p.BogoRewardType))
		r.BogoRewardID = ref(deref(p.BogoRewardID))
		r.MaxUsesPerOrder = p.MaxUsesPerOrder
	}
	if p.MinOrderAmount != nil {
		r.MinOrderAmount = decimal.NewNullDecimal(*p.MinOrderAmount)
	}
	if _, err := FromRow(r); err != nil {
		return Row{}, common.BadRequest(err.Error(), err, nil)
	}
	return r, nil
}

// List pages through every promotion, including inactive ones.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	page := common.ParsePagination(r, 25, 100)
	rows, total, err := h.Store.List(r.Context(), page.PerPage, page.Offset())
	if err != nil {
		h.writeStoreError(w, r, err, "list promotions")
		return
	}
	page.TotalItems = total
	common.JSON(w, http.StatusOK, map[string]any{"data": rows, "pagination": page})
}

// Get returns one promotion in its stored form.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	row, err := h.Store.Get(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err, "load promotion")
		return
	}
	common.Data(w, http.StatusOK, row)
}

// Create adds a promotion.
func (h *AdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	row, ok := h.decode(w, r, uuid.New())
	if !ok {
		return
	}
	created, err := h.Store.Create(r.Context(), row)
	if err != nil {
		h.writeStoreError(w, r, err, "create promotion")
		return
	}
	h.changed(r.Context(), events.TopicPromotionCreated, created)
	common.Data(w, http.StatusCreated, created)
}

// Update replaces a promotion's editable fields.
func (h *AdminHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	row, ok := h.decode(w, r, id)
	if !ok {
		return
	}
	updated, err := h.Store.Update(r.Context(), row)
	if err != nil {
		h.writeStoreError(w, r, err, "update promotion")
		return
	}
	h.changed(r.Context(), events.TopicPromotionUpdated, updated)
	common.Data(w, http.StatusOK, updated)
}

// Delete removes a promotion.
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.Store.Delete(r.Context(), id); err != nil {
		h.writeStoreError(w, r, err, "delete promotion")
		return
	}
	h.changed(r.Context(), events.TopicPromotionDeleted, Row{ID: id})
	w.WriteHeader(http.StatusNoContent)
}

type toggleRequest struct {
	IsActive *bool `json:"is_active"`
}

// Toggle flips is_active, or sets it when the body names a value.
func (h *AdminHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req toggleRequest
	if r.ContentLength != 0 {
		if err := common.DecodeJSON(r, &req); err != nil {
			common.WriteError(w, err)
			return
		}
	}
	target := false
	if req.IsActive != nil {
		target = *req.IsActive
	} else {
		current, err := h.Store.Get(r.Context(), id)
		if err != nil {
			h.writeStoreError(w, r, err, "load promotion")
			return
		}
		target = !current.IsActive
	}
	row, err := h.Store.SetActive(r.Context(), id, target)
	if err != nil {
		h.writeStoreError(w, r, err, "toggle promotion")
		return
	}
	h.changed(r.Context(), events.TopicPromotionToggled, row)
	common.Data(w, http.StatusOK, row)
}

// InvalidateCache drops cached active promotions on demand.
func (h *AdminHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.InvalidateCache(r.Context()); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("invalidate promotion cache")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to invalidate cache", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ScopeOptions lists the categories, tags or products a promotion can target.
func (h *AdminHandler) ScopeOptions(w http.ResponseWriter, r *http.Request) {
	var kind ScopeType
	switch chi.URLParam(r, "kind") {
	case "categories":
		kind = ScopeCategory
	case "tags":
		kind = ScopeTag
	case "products":
		kind = ScopeProduct
	default:
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "kind must be categories, tags or products", nil)
		return
	}
	opts, err := h.Store.ScopeOptions(r.Context(), kind)
	if err != nil {
		h.writeStoreError(w, r, err, "list scope options")
		return
	}
	common.Data(w, http.StatusOK, opts)
}

func (h *AdminHandler) decode(w http.ResponseWriter, r *http.Request, id uuid.UUID) (Row, bool) {
	var payload promotionPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return Row{}, false
	}
	if err := common.ValidateStruct(payload); err != nil {
		common.WriteError(w, err)
		return Row{}, false
	}
	row, err := payload.toRow(id)
	if err != nil {
		common.WriteError(w, err)
		return Row{}, false
	}
	return row, true
}

// changed invalidates cached promotions and records the event. The write has
// already succeeded, so failures here are logged only.
func (h *AdminHandler) changed(ctx context.Context, topic string, row Row) {
	if h.Svc != nil {
		if err := h.Svc.InvalidateCache(ctx); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("promotion_id", row.ID.String()).Msg("invalidate promotion cache")
		}
	}
	if h.Events != nil {
		h.Events.EmitLogged(ctx, topic, row.ID, map[string]any{
			"id":        row.ID,
			"name":      row.Name,
			"type":      row.Type,
			"is_active": row.IsActive,
		})
	}
}

func (h *AdminHandler) writeStoreError(w http.ResponseWriter, r *http.Request, err error, action string) {
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "promotion not found", nil)
	case errors.As(err, &pgErr) && pgErr.Code == "23505":
		common.JSONError(w, http.StatusConflict, "CONFLICT", "promotion code already exists", nil)
	case errors.Is(err, ErrInvalidPromotion):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg(action)
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", fmt.Sprintf("failed to %s", action), nil)
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid promotion id", nil)
		return uuid.Nil, false
	}
	return id, true
}
