package promotion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	rows      map[uuid.UUID]Row
	createErr error
}

func newMemStore(rows ...Row) *memStore {
	s := &memStore{rows: map[uuid.UUID]Row{}}
	for _, r := range rows {
		s.rows[r.ID] = r
	}
	return s
}

func (s *memStore) ListActive(context.Context, time.Time) ([]Row, error) { return s.all(), nil }
func (s *memStore) FindByCode(context.Context, string) (Row, error)     { return Row{}, ErrNotFound }
func (s *memStore) BestHome(context.Context, time.Time) (Row, error)    { return Row{}, ErrNotFound }

func (s *memStore) all() []Row {
	out := make([]Row, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	return out
}

func (s *memStore) List(_ context.Context, limit, offset int) ([]Row, int, error) {
	all := s.all()
	if offset >= len(all) {
		return []Row{}, len(all), nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], len(all), nil
}

func (s *memStore) Get(_ context.Context, id uuid.UUID) (Row, error) {
	r, ok := s.rows[id]
	if !ok {
		return Row{}, ErrNotFound
	}
	return r, nil
}

func (s *memStore) Create(_ context.Context, r Row) (Row, error) {
	if s.createErr != nil {
		return Row{}, s.createErr
	}
	s.rows[r.ID] = r
	return r, nil
}

func (s *memStore) Update(_ context.Context, r Row) (Row, error) {
	if _, ok := s.rows[r.ID]; !ok {
		return Row{}, ErrNotFound
	}
	s.rows[r.ID] = r
	return r, nil
}

func (s *memStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := s.rows[id]; !ok {
		return ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

func (s *memStore) SetActive(_ context.Context, id uuid.UUID, active bool) (Row, error) {
	r, ok := s.rows[id]
	if !ok {
		return Row{}, ErrNotFound
	}
	r.IsActive = active
	s.rows[id] = r
	return r, nil
}

func (s *memStore) ScopeOptions(_ context.Context, kind ScopeType) ([]ScopeOption, error) {
	return []ScopeOption{{ID: "1", Name: string(kind)}}, nil
}

type captureEmitter struct {
	topics []string
}

func (c *captureEmitter) EmitLogged(_ context.Context, topic string, _ uuid.UUID, _ any) {
	c.topics = append(c.topics, topic)
}

func withParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env.Error.Code
}

func TestHandlerActiveHidesCodePromotions(t *testing.T) {
	coded := percentPromo("coded", "10")
	coded.Code = "SECRET"
	svc, _ := newTestService([]Promotion{percentPromo("auto", "10"), coded}, stubCodes{})
	h := &Handler{Svc: svc}

	rr := httptest.NewRecorder()
	h.Active(rr, httptest.NewRequest(http.MethodGet, "/api/v1/promotions/active", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotContains(t, rr.Body.String(), "SECRET")

	var got []map[string]any
	decodeData(t, rr, &got)
	require.Len(t, got, 1)
	require.Equal(t, "auto", got[0]["name"])
}

func TestHandlerActiveSourceFailure(t *testing.T) {
	svc, src := newTestService(nil, stubCodes{})
	src.err = errors.New("db down")
	rr := httptest.NewRecorder()
	(&Handler{Svc: svc}).Active(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Equal(t, "INTERNAL", errorCode(t, rr))
}

func TestHandlerCartTotals(t *testing.T) {
	svc, _ := newTestService([]Promotion{percentPromo("ten", "10")}, stubCodes{})
	h := &Handler{Svc: svc}

	body := `{"items":[{"product_id":"p-1","price":25,"qty":2}]}`
	rr := httptest.NewRecorder()
	h.CartTotals(rr, httptest.NewRequest(http.MethodPost, "/api/v1/cart/totals", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rr.Code)

	var got map[string]any
	decodeData(t, rr, &got)
	require.EqualValues(t, 50, got["subtotal"])
	require.EqualValues(t, 45, got["total"])
}

func TestHandlerCartTotalsValidation(t *testing.T) {
	svc, _ := newTestService(nil, stubCodes{})
	h := &Handler{Svc: svc}

	rr := httptest.NewRecorder()
	h.CartTotals(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"items":[{"product_id":"p","price":-1,"qty":0}]}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "items[0].qty")

	rr = httptest.NewRecorder()
	h.CartTotals(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerValidateCoupon(t *testing.T) {
	svc, _ := newTestService(nil, stubCodes{byCode: map[string]Row{"SAVE10": codeRow("SAVE10", "10")}})
	h := &Handler{Svc: svc}

	rr := httptest.NewRecorder()
	h.ValidateCoupon(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"save10","items":[{"product_id":"p","price":10,"qty":1}]}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	var ok couponResponse
	decodeData(t, rr, &ok)
	require.True(t, ok.Valid)
	require.Equal(t, "SAVE10", ok.Label)

	rr = httptest.NewRecorder()
	h.ValidateCoupon(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"nope","items":[]}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	var refused couponResponse
	decodeData(t, rr, &refused)
	require.False(t, refused.Valid)
	require.Equal(t, ReasonNotFound, refused.Reason)
	require.Equal(t, ReasonNotFound.Message(), refused.Message)
}

func TestHandlerForProduct(t *testing.T) {
	tagged := percentPromo("tagged", "20")
	tagged.Scope = Scope{Type: ScopeTag, Data: []string{"sale"}}
	svc, _ := newTestService([]Promotion{tagged}, stubCodes{})
	h := &Handler{Svc: svc}

	req := withParam(httptest.NewRequest(http.MethodGet, "/api/v1/products/p-1/promotions?tag_ids=sale,new&price=50", nil), "productID", "p-1")
	rr := httptest.NewRecorder()
	h.ForProduct(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var got struct {
		Promotions []map[string]any `json:"promotions"`
		Price      struct {
			Final float64 `json:"final_price"`
		} `json:"price"`
	}
	decodeData(t, rr, &got)
	require.Len(t, got.Promotions, 1)
	require.Equal(t, 40.0, got.Price.Final)

	req = withParam(httptest.NewRequest(http.MethodGet, "/?price=abc", nil), "productID", "p-1")
	rr = httptest.NewRecorder()
	h.ForProduct(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerHomeNull(t *testing.T) {
	svc, _ := newTestService(nil, stubCodes{})
	rr := httptest.NewRecorder()
	(&Handler{Svc: svc}).Home(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"data":null}`, rr.Body.String())
}

func newAdmin(store *memStore) (*AdminHandler, *staticSource, *captureEmitter) {
	svc, src := newTestService(nil, stubCodes{})
	emitter := &captureEmitter{}
	return &AdminHandler{Store: store, Svc: svc, Events: emitter}, src, emitter
}

func TestAdminCreate(t *testing.T) {
	store := newMemStore()
	h, src, emitter := newAdmin(store)

	body := `{"name":"Summer","type":"percentage","value":15,"scope_type":"category","scope_data":["c-1"],"requires_code":true,"code":"SUMMER15"}`
	rr := httptest.NewRecorder()
	h.Create(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code)

	var created Row
	decodeData(t, rr, &created)
	require.NotEqual(t, uuid.Nil, created.ID)
	require.Equal(t, "SUMMER15", *created.Code)
	require.True(t, created.IsActive)
	require.Len(t, store.rows, 1)
	require.Equal(t, 1, src.invalidated)
	require.Equal(t, []string{"promotion.created"}, emitter.topics)
}

func TestAdminCreateRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown type":       `{"name":"x","type":"mystery"}`,
		"percent over 100":   `{"name":"x","type":"percentage","value":120}`,
		"fixed without":      `{"name":"x","type":"fixed"}`,
		"bogo without":       `{"name":"x","type":"bogo"}`,
		"code required":      `{"name":"x","type":"free_shipping","requires_code":true}`,
		"scope without data": `{"name":"x","type":"fixed","value":5,"scope_type":"product"}`,
		"window reversed":    `{"name":"x","type":"fixed","value":5,"start_date":"2026-02-01T00:00:00Z","end_date":"2026-01-01T00:00:00Z"}`,
		"missing name":       `{"type":"fixed","value":5}`,
		"code with space":    `{"name":"x","type":"fixed","value":5,"code":"A B"}`,
		"code with tab":      `{"name":"x","type":"fixed","value":5,"code":"A\tB"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			store := newMemStore()
			h, src, _ := newAdmin(store)
			rr := httptest.NewRecorder()
			h.Create(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
			require.Equal(t, http.StatusBadRequest, rr.Code)
			require.Empty(t, store.rows)
			require.Zero(t, src.invalidated)
		})
	}
}

func TestAdminCreateAcceptsCodesWithDigits(t *testing.T) {
	for _, code := range []string{"SAVE20", "WELCOME10", "x2", "SUMMER-2026", " PAD05 "} {
		t.Run(code, func(t *testing.T) {
			store := newMemStore()
			h, _, _ := newAdmin(store)
			body := `{"name":"x","type":"fixed","value":5,"requires_code":true,"code":"` + code + `"}`
			rr := httptest.NewRecorder()
			h.Create(rr, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
			require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

			var created Row
			decodeData(t, rr, &created)
			require.Equal(t, strings.TrimSpace(code), *created.Code)
		})
	}
}

func TestAdminCreateDuplicateCode(t *testing.T) {
	store := newMemStore()
	store.createErr = &pgconn.PgError{Code: "23505"}
	h, _, _ := newAdmin(store)

	rr := httptest.NewRecorder()
	h.Create(rr, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"x","type":"fixed","value":5,"code":"DUP"}`)))
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "CONFLICT", errorCode(t, rr))
}

func TestAdminToggleAndDelete(t *testing.T) {
	row := percentRow("ten", "10")
	store := newMemStore(row)
	h, src, emitter := newAdmin(store)

	rr := httptest.NewRecorder()
	h.Toggle(rr, withParam(httptest.NewRequest(http.MethodPost, "/", nil), "id", row.ID.String()))
	require.Equal(t, http.StatusOK, rr.Code)
	require.False(t, store.rows[row.ID].IsActive)

	rr = httptest.NewRecorder()
	h.Toggle(rr, withParam(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"is_active":true}`)), "id", row.ID.String()))
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, store.rows[row.ID].IsActive)

	rr = httptest.NewRecorder()
	h.Delete(rr, withParam(httptest.NewRequest(http.MethodDelete, "/", nil), "id", row.ID.String()))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Empty(t, store.rows)

	rr = httptest.NewRecorder()
	h.Delete(rr, withParam(httptest.NewRequest(http.MethodDelete, "/", nil), "id", row.ID.String()))
	require.Equal(t, http.StatusNotFound, rr.Code)

	require.Equal(t, 3, src.invalidated)
	require.Equal(t, []string{"promotion.toggled", "promotion.toggled", "promotion.deleted"}, emitter.topics)
}

func TestAdminUpdateAndGet(t *testing.T) {
	row := percentRow("ten", "10")
	store := newMemStore(row)
	h, _, emitter := newAdmin(store)

	rr := httptest.NewRecorder()
	h.Update(rr, withParam(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"name":"twelve","type":"percentage","value":12}`)), "id", row.ID.String()))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "twelve", store.rows[row.ID].Name)
	require.Equal(t, []string{"promotion.updated"}, emitter.topics)

	rr = httptest.NewRecorder()
	h.Get(rr, withParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "not-a-uuid"))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.Get(rr, withParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", uuid.NewString()))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAdminListPaginates(t *testing.T) {
	store := newMemStore(percentRow("a", "1"), percentRow("b", "2"), percentRow("c", "3"))
	h, _, _ := newAdmin(store)

	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/?page=2&limit=2", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Data       []Row `json:"data"`
		Pagination struct {
			Page       int `json:"page"`
			TotalItems int `json:"total_items"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, 2, body.Pagination.Page)
	require.Equal(t, 3, body.Pagination.TotalItems)
}

func TestAdminScopeOptions(t *testing.T) {
	h, _, _ := newAdmin(newMemStore())

	rr := httptest.NewRecorder()
	h.ScopeOptions(rr, withParam(httptest.NewRequest(http.MethodGet, "/", nil), "kind", "tags"))
	require.Equal(t, http.StatusOK, rr.Code)
	var opts []ScopeOption
	decodeData(t, rr, &opts)
	require.Equal(t, "tag", opts[0].Name)

	rr = httptest.NewRecorder()
	h.ScopeOptions(rr, withParam(httptest.NewRequest(http.MethodGet, "/", nil), "kind", "brands"))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
