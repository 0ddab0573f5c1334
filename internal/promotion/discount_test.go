package promotion

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLinearDiscountClampsEachAmount(t *testing.T) {
	promos := []Promotion{
		percentPromo("ten", "10"),
		fixedPromo("huge", "500"),
		fixedPromo("zero", "0"),
		{Name: "ship", Reward: FreeShipping{}},
	}
	got := LinearDiscount(promos, d("100"))

	require.Len(t, got.Breakdown, 2)
	require.True(t, got.Breakdown[0].Amount.Equal(d("10")))
	require.True(t, got.Breakdown[1].Amount.Equal(d("100")))
	require.True(t, got.Total.Equal(d("110")))
}

func TestLinearDiscountNegativeValueIsZero(t *testing.T) {
	got := LinearDiscount([]Promotion{fixedPromo("neg", "-5")}, d("20"))
	require.Empty(t, got.Breakdown)
	require.True(t, got.Total.IsZero())
}

func TestBestProductDiscount(t *testing.T) {
	five := fixedPromo("five", "5")
	twenty := percentPromo("twenty", "20")

	got := BestProductDiscount([]Promotion{five, twenty}, d("30"))
	require.NotNil(t, got.Promo)
	require.Equal(t, "twenty", got.Promo.Name)
	require.True(t, got.Amount.Equal(d("6")))

	got = BestProductDiscount([]Promotion{five, twenty}, d("20"))
	require.Equal(t, "five", got.Promo.Name, "ties keep the first promotion")

	got = BestProductDiscount(nil, d("20"))
	require.Nil(t, got.Promo)
	require.True(t, got.Amount.IsZero())
}

func TestBogoDiscount(t *testing.T) {
	scope := Scope{Type: ScopeProduct, Data: []string{"p-1"}}
	reward := BuyGet{RewardType: ScopeProduct, RewardID: "p-1"}

	t.Run("needs two qualifying units", func(t *testing.T) {
		got := BogoDiscount([]Promotion{bogoPromo(scope, reward)}, []LineItem{item("p-1", "10", 1)})
		require.Empty(t, got.Breakdown)
		require.True(t, got.Total.IsZero())
	})

	t.Run("default cap is one", func(t *testing.T) {
		got := BogoDiscount([]Promotion{bogoPromo(scope, reward)}, []LineItem{item("p-1", "10", 4)})
		require.Len(t, got.Breakdown, 1)
		require.Equal(t, 1, got.Breakdown[0].Meta.FreeCount)
		require.True(t, got.Total.Equal(d("10")))
	})

	t.Run("capped by reward quantity", func(t *testing.T) {
		capped := reward
		capped.RewardID = "p-2"
		capped.MaxUsesPerOrder = 5
		items := []LineItem{item("p-1", "10", 6), item("p-2", "4", 2)}
		got := BogoDiscount([]Promotion{bogoPromo(scope, capped)}, items)
		require.Len(t, got.Breakdown, 1)
		require.Equal(t, 2, got.Breakdown[0].Meta.FreeCount)
		require.True(t, got.Breakdown[0].Meta.Cheapest.Equal(d("4")))
		require.True(t, got.Total.Equal(d("8")))
	})

	t.Run("cheapest positive reward price", func(t *testing.T) {
		cat := BuyGet{RewardType: ScopeCategory, RewardID: "c-1", MaxUsesPerOrder: 1}
		items := []LineItem{
			item("p-1", "10", 2),
			{ProductID: "p-free", Price: d("0"), Qty: 1, CategoryIDs: []string{"c-1"}},
			{ProductID: "p-3", Price: d("7.5"), Qty: 1, CategoryIDs: []string{"c-1"}},
			{ProductID: "p-4", Price: d("3.25"), Qty: 1, CategoryIDs: []string{"c-1"}},
		}
		got := BogoDiscount([]Promotion{bogoPromo(scope, cat)}, items)
		require.Len(t, got.Breakdown, 1)
		require.True(t, got.Total.Equal(d("3.25")))
	})

	t.Run("invalid reward target", func(t *testing.T) {
		bad := BuyGet{RewardType: ScopeAll, RewardID: "x"}
		got := BogoDiscount([]Promotion{bogoPromo(scope, bad)}, []LineItem{item("p-1", "10", 4)})
		require.Empty(t, got.Breakdown)
	})

	t.Run("reward absent from cart", func(t *testing.T) {
		other := BuyGet{RewardType: ScopeProduct, RewardID: "p-9"}
		got := BogoDiscount([]Promotion{bogoPromo(scope, other)}, []LineItem{item("p-1", "10", 4)})
		require.Empty(t, got.Breakdown)
	})
}
