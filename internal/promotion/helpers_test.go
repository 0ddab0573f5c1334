package promotion

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func percentPromo(name, pct string) Promotion {
	return Promotion{ID: uuid.New(), Name: name, IsActive: true, IsPublic: true,
		Scope: Scope{Type: ScopeAll}, Reward: PercentOff{Percent: d(pct)}}
}

func fixedPromo(name, amount string) Promotion {
	return Promotion{ID: uuid.New(), Name: name, IsActive: true, IsPublic: true,
		Scope: Scope{Type: ScopeAll}, Reward: AmountOff{Amount: d(amount)}}
}

func bogoPromo(scope Scope, reward BuyGet) Promotion {
	return Promotion{ID: uuid.New(), Name: "bogo", IsActive: true, IsPublic: true,
		Scope: scope, Reward: reward}
}

func item(id, price string, qty int) LineItem {
	return LineItem{ProductID: id, Price: d(price), Qty: qty}
}

func strp(s string) *string { return &s }

func intp(i int) *int { return &i }

// stubLister serves canned rows and counts calls.
type stubLister struct {
	mu    sync.Mutex
	rows  []Row
	err   error
	calls int
	wait  chan struct{}
}

func (s *stubLister) ListActive(ctx context.Context, _ time.Time) ([]Row, error) {
	s.mu.Lock()
	s.calls++
	wait := s.wait
	s.mu.Unlock()
	if wait != nil {
		<-wait
	}
	return s.rows, s.err
}

func (s *stubLister) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubCodes struct {
	byCode  map[string]Row
	home    *Row
	findErr error
}

func (s stubCodes) FindByCode(_ context.Context, code string) (Row, error) {
	if s.findErr != nil {
		return Row{}, s.findErr
	}
	for k, r := range s.byCode {
		if strings.EqualFold(k, strings.TrimSpace(code)) {
			return r, nil
		}
	}
	return Row{}, ErrNotFound
}

func (s stubCodes) BestHome(context.Context, time.Time) (Row, error) {
	if s.home == nil {
		return Row{}, ErrNotFound
	}
	return *s.home, nil
}

type staticSource struct {
	promos      []Promotion
	err         error
	invalidated int
}

func (s *staticSource) Active(context.Context) ([]Promotion, error) { return s.promos, s.err }

func (s *staticSource) Invalidate(context.Context) error {
	s.invalidated++
	return nil
}
