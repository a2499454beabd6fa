package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cartsync/models"
	"cartsync/store"
)

func intPtr(n int) *int { return &n }

func floatPtr(f float64) *float64 { return &f }

func boolPtr(b bool) *bool { return &b }

// TestAddToCart_MissingID verifies validation fires before any persistence
// or network work.
func TestAddToCart_MissingID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := newFakeGateway()
	e, st := newTestEngine(t, gw)

	err := e.AddToCart(ctx, &models.Product{Name: "No ID"}, 1, nil)
	assert.ErrorIs(t, err, ErrMissingProductID)
	assert.ErrorIs(t, e.AddToCart(ctx, nil, 1, nil), ErrMissingProductID)

	assert.Equal(t, 0, gw.addCalls, "no network call on validation failure")
	assert.Empty(t, st.GuestCart(ctx), "no persistence on validation failure")

	err = e.AddToCart(ctx, &models.Product{ID: "A"}, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

// TestAddToCart_GuestMergesByProductID verifies adding an existing product
// increments quantity and keeps exactly one entry per product.
func TestAddToCart_GuestMergesByProductID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := newFakeGateway()
	e, st := newTestEngine(t, gw)

	p := &models.Product{ID: "A", Name: "Brownie", Price: 3}
	require.NoError(t, e.AddToCart(ctx, p, 2, nil))
	require.NoError(t, e.AddToCart(ctx, p, 1, nil))

	items := st.GuestCart(ctx)
	require.Len(t, items, 1, "exactly one entry per productId")
	assert.Equal(t, 3, items[0].Quantity)
	assert.NotEmpty(t, items[0].ID, "guest entries get a locally generated id")
	assert.False(t, items[0].AddedAt.IsZero())

	inMem := e.Items()
	require.Len(t, inMem, 1)
	assert.Equal(t, 3, inMem[0].Quantity)
	assert.Equal(t, 0, gw.addCalls)
}

// TestAddToCart_GuestVariantPrice verifies the selected variant's price
// wins over the base price.
func TestAddToCart_GuestVariantPrice(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, st := newTestEngine(t, newFakeGateway())

	p := &models.Product{
		ID:    "A",
		Name:  "Cake",
		Price: 10,
		Variants: []models.Variant{
			{Name: "Half Kg", Price: floatPtr(12.5)},
			{Name: "One Kg", Price: floatPtr(22)},
		},
	}
	require.NoError(t, e.AddToCart(ctx, p, 1, intPtr(1)))

	items := st.GuestCart(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, 22.0, items[0].Price)
	require.NotNil(t, items[0].ProductDetails)
	assert.Equal(t, "One Kg (22.00)", items[0].ProductDetails.VariantLabel)
	require.NotNil(t, items[0].ProductDetails.SelectedVariantIndex)
	assert.Equal(t, 1, *items[0].ProductDetails.SelectedVariantIndex)
}

// TestAddToCart_OptimisticRollback verifies a rejected authenticated add
// restores the previous state and surfaces the failure.
func TestAddToCart_OptimisticRollback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := newFakeGateway()
	e, _ := newTestEngine(t, gw)
	require.NoError(t, e.Login(ctx, "tok"))

	require.NoError(t, e.AddToCart(ctx, &models.Product{ID: "A", Name: "Cake", Price: 5}, 1, nil))
	require.Equal(t, 1, e.Count())

	var notified string
	e.notify = func(level, msg string) { notified = level + ":" + msg }
	gw.failAdd = assert.AnError

	err := e.AddToCart(ctx, &models.Product{ID: "B", Name: "Pie", Price: 4}, 2, nil)
	require.Error(t, err)
	assert.Equal(t, 1, e.Count(), "optimistic add rolled back")
	assert.Len(t, e.Items(), 1)
	assert.Contains(t, notified, "error:")
}

// TestUpdateQuantity_ThrottleLastWriteWins verifies rapid updates for the
// same product coalesce into a single call carrying the last value.
func TestUpdateQuantity_ThrottleLastWriteWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := newFakeGateway()
	gw.items = []models.CartItem{{ProductID: "A", Quantity: 1, Price: 2}}
	e, _ := newTestEngine(t, gw)
	require.NoError(t, e.Login(ctx, "tok"))

	for q := 2; q <= 6; q++ {
		require.NoError(t, e.UpdateQuantity(ctx, "A", q))
	}
	assert.Equal(t, 6, e.Count(), "optimistic view reflects the latest value immediately")

	time.Sleep(100 * time.Millisecond)
	require.Len(t, gw.updateCalls, 1, "coalesced to one network call")
	assert.Equal(t, 6, gw.updateCalls[0].Quantity)
}

// TestUpdateQuantity_RejectedRestoresPreviousValue verifies a rejected
// throttled update rolls back to the state before the optimistic apply,
// and that coalesced updates roll back to the value before the first of
// them.
func TestUpdateQuantity_RejectedRestoresPreviousValue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := newFakeGateway()
	gw.items = []models.CartItem{{ProductID: "A", Quantity: 1, Price: 2}}
	e, _ := newTestEngine(t, gw)
	require.NoError(t, e.Login(ctx, "tok"))

	notes := make(chan string, 4)
	e.notify = func(level, msg string) { notes <- level + ":" + msg }
	gw.failUpdate = assert.AnError

	require.NoError(t, e.UpdateQuantity(ctx, "A", 9))
	assert.Equal(t, 9, e.Count(), "optimistic value shows immediately")

	time.Sleep(100 * time.Millisecond)
	items := e.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Quantity, "rejected update restores the previous quantity")
	assert.Equal(t, 2.0, e.Total())
	select {
	case n := <-notes:
		assert.Contains(t, n, "error:")
	default:
		t.Fatal("expected a failure notification")
	}

	require.NoError(t, e.UpdateQuantity(ctx, "A", 3))
	require.NoError(t, e.UpdateQuantity(ctx, "A", 5))
	time.Sleep(100 * time.Millisecond)
	items = e.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Quantity, "coalesced rejection restores the pre-burst quantity")
}

// TestUpdateQuantity_GuestPersistsLastValue verifies the guest path also
// coalesces and that zero removes the entry.
func TestUpdateQuantity_GuestPersistsLastValue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, st := newTestEngine(t, newFakeGateway())

	require.NoError(t, e.AddToCart(ctx, &models.Product{ID: "A", Name: "Cake", Price: 2}, 1, nil))

	require.NoError(t, e.UpdateQuantity(ctx, "A", 4))
	require.NoError(t, e.UpdateQuantity(ctx, "A", 7))
	time.Sleep(100 * time.Millisecond)

	items := st.GuestCart(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, 7, items[0].Quantity)

	require.NoError(t, e.UpdateQuantity(ctx, "A", 0))
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, st.GuestCart(ctx), "quantity zero removes the entry")
	assert.Empty(t, e.Items())
}

// TestRemoveFromCart_DuplicateInFlight verifies the pending-operation
// guard: a second removal while the first is in flight is a no-op.
func TestRemoveFromCart_DuplicateInFlight(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := newFakeGateway()
	gw.items = []models.CartItem{{ProductID: "X", Quantity: 1, Price: 2}}
	gw.removeStarted = make(chan struct{}, 1)
	gw.removeRelease = make(chan struct{})
	e, _ := newTestEngine(t, gw)
	require.NoError(t, e.Login(ctx, "tok"))

	done := make(chan error, 1)
	go func() { done <- e.RemoveFromCart(ctx, "X") }()
	<-gw.removeStarted

	require.NoError(t, e.RemoveFromCart(ctx, "X"), "second call must be a silent no-op")

	close(gw.removeRelease)
	require.NoError(t, <-done)
	assert.Len(t, gw.removeCalls, 1, "only one DELETE issued")
}

// TestRemoveFromCart_Guest verifies the guest removal persists immediately.
func TestRemoveFromCart_Guest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, st := newTestEngine(t, newFakeGateway())

	require.NoError(t, e.AddToCart(ctx, &models.Product{ID: "A", Name: "Cake", Price: 2}, 1, nil))
	require.NoError(t, e.AddToCart(ctx, &models.Product{ID: "B", Name: "Pie", Price: 3}, 1, nil))

	require.NoError(t, e.RemoveFromCart(ctx, "A"))
	items := st.GuestCart(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, "B", items[0].ProductID)
}

// TestClearCart verifies both paths: one network call when authenticated,
// all three local keys dropped for guests.
func TestClearCart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	gw := newFakeGateway()
	e, _ := newTestEngine(t, gw)
	require.NoError(t, e.Login(ctx, "tok"))
	require.NoError(t, e.AddToCart(ctx, &models.Product{ID: "A", Name: "Cake", Price: 1}, 1, nil))
	require.NoError(t, e.ClearCart(ctx, "checkout"))
	require.Len(t, gw.clearCalls, 1)
	assert.Equal(t, "checkout", gw.clearCalls[0])
	assert.Equal(t, 0, e.Count())

	e2, st2 := newTestEngine(t, newFakeGateway())
	require.NoError(t, e2.AddToCart(ctx, &models.Product{ID: "A", Name: "Cake", Price: 1}, 1, nil))
	require.NoError(t, e2.ClearCart(ctx, ""))
	assert.Empty(t, st2.GuestCart(ctx))
	assert.Nil(t, st2.CachedEnvelope(ctx))
	assert.Empty(t, e2.Items())
}

// TestResolveVariantIndex verifies the documented resolution order.
func TestResolveVariantIndex(t *testing.T) {
	t.Parallel()

	p := &models.Product{ID: "A"}
	assert.Equal(t, 0, resolveVariantIndex(p, nil))

	p.SelectedVariantIndex = intPtr(2)
	assert.Equal(t, 2, resolveVariantIndex(p, nil))

	p.Details = &models.ProductSnapshot{VariantIndex: intPtr(1)}
	assert.Equal(t, 1, resolveVariantIndex(p, nil), "details index beats product selection")

	assert.Equal(t, 3, resolveVariantIndex(p, intPtr(3)), "explicit argument wins")
}

// TestOverlayEgg covers both override policies.
func TestOverlayEgg(t *testing.T) {
	t.Parallel()

	assert.Nil(t, overlayEgg(nil, nil, PreferResolver))
	assert.Equal(t, boolPtr(true), overlayEgg(nil, boolPtr(true), PreferUpstream))
	assert.Equal(t, boolPtr(false), overlayEgg(boolPtr(false), nil, PreferResolver))

	// Disagreement: resolver wins by default, upstream wins when pinned.
	got := overlayEgg(boolPtr(false), boolPtr(true), PreferResolver)
	require.NotNil(t, got)
	assert.True(t, *got)

	got = overlayEgg(boolPtr(false), boolPtr(true), PreferUpstream)
	require.NotNil(t, got)
	assert.False(t, *got)
}

// TestBuildSnapshot verifies variant labelling and the egg overlay land on
// the enriched snapshot.
func TestBuildSnapshot(t *testing.T) {
	t.Parallel()
	e := New(Config{}, store.NewCartStore(store.NewMemoryKV(), "snap", nil), newFakeGateway())

	p := &models.Product{
		ID:   "A",
		Name: "Cake",
		Variants: []models.Variant{
			{Name: "Half Kg", Price: floatPtr(10)},
			{Label: "Family Pack"},
			{},
		},
	}
	p.EggLabel = "eggless"

	snap := e.buildSnapshot(p, 1, boolPtr(false))
	require.Len(t, snap.Variants, 3)
	assert.Equal(t, "Half Kg (10.00)", snap.Variants[0].Label)
	assert.Equal(t, "Family Pack", snap.Variants[1].Label)
	assert.Equal(t, "Option 3", snap.Variants[2].Label)
	require.NotNil(t, snap.SelectedVariant)
	assert.Equal(t, "Family Pack", snap.VariantLabel)
	require.NotNil(t, snap.HasEgg)
	assert.False(t, *snap.HasEgg)
}
