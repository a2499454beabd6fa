package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cartsync/eggflag"
	"cartsync/models"
)

// AddToCart adds a product with a quantity and optional variant index.
// Authenticated sessions apply the change optimistically and roll back if
// the server rejects it; guest sessions merge into local storage keeping
// exactly one entry per product.
func (e *Engine) AddToCart(ctx context.Context, p *models.Product, quantity int, variantIndex *int) error {
	if p == nil || p.ID == "" {
		return ErrMissingProductID
	}
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	idx := resolveVariantIndex(p, variantIndex)
	resolved := eggflag.Resolve(p, idx)
	snapshot := e.buildSnapshot(p, idx, resolved)
	price := itemPrice(p, idx)

	e.mu.Lock()
	authed := e.authed
	e.mu.Unlock()

	if authed {
		return e.addRemote(ctx, p, snapshot, price, quantity, idx)
	}
	return e.addGuest(ctx, p, snapshot, price, quantity)
}

func (e *Engine) addRemote(ctx context.Context, p *models.Product, snapshot *models.ProductSnapshot, price float64, quantity, idx int) error {
	e.mu.Lock()
	// A newer add supersedes any pending marker for the same product.
	e.pending[p.ID] = OpAdding
	rollback := e.snapshotState()
	e.applyAddLocked(p, snapshot, price, quantity)
	e.mu.Unlock()

	payload, err := e.gw.AddItem(ctx, models.AddCartItemRequest{
		ProductID:      p.ID,
		Quantity:       quantity,
		VariantIndex:   &idx,
		Name:           p.Name,
		Price:          price,
		Image:          p.Image,
		ProductDetails: snapshot,
	})

	e.mu.Lock()
	delete(e.pending, p.ID)
	e.mu.Unlock()

	if err != nil {
		rollback()
		e.notify("error", err.Error())
		return err
	}
	e.adopt(*payload, true)
	return nil
}

func (e *Engine) addGuest(ctx context.Context, p *models.Product, snapshot *models.ProductSnapshot, price float64, quantity int) error {
	items := e.store.GuestCart(ctx)

	found := false
	for i := range items {
		if items[i].ProductID != p.ID {
			continue
		}
		items[i].Quantity += quantity
		items[i].ProductDetails = mergeSnapshots(items[i].ProductDetails, snapshot)
		found = true
		break
	}
	if !found {
		items = append(items, models.CartItem{
			ID:             uuid.NewString(),
			ProductID:      p.ID,
			Name:           p.Name,
			Price:          price,
			Image:          p.Image,
			Quantity:       quantity,
			AddedAt:        e.now(),
			ProductDetails: snapshot,
		})
	}

	if err := e.store.SaveGuestCart(ctx, items); err != nil {
		e.notify("error", "failed to save cart")
		return err
	}
	e.replaceItems(items)
	return nil
}

// UpdateQuantity changes an item's quantity. The in-memory view updates
// immediately; the dispatch (network call or guest persistence) is
// throttled per product so rapid successive changes collapse to the last
// issued value.
func (e *Engine) UpdateQuantity(ctx context.Context, productID string, quantity int) error {
	if productID == "" {
		return ErrMissingProductID
	}
	if quantity < 0 {
		return ErrInvalidQuantity
	}

	e.mu.Lock()
	authed := e.authed
	// The rollback snapshot is taken before the optimistic apply. When
	// several updates coalesce, the oldest un-dispatched snapshot is kept
	// so a rejection restores the state before the first of them.
	if _, ok := e.updateSnaps[productID]; !ok {
		e.updateSnaps[productID] = e.snapshotState()
	}
	if quantity == 0 {
		e.items = removeItem(e.items, productID)
	} else {
		for i := range e.items {
			if e.items[i].ProductID == productID {
				e.items[i].Quantity = quantity
				break
			}
		}
	}
	e.total, _ = models.Totals(e.items)
	e.mu.Unlock()

	key := productID + ":" + string(OpUpdating)
	if authed {
		e.throttle.Schedule(key, func() {
			e.dispatchUpdate(ctx, productID, quantity)
		})
		return nil
	}

	e.throttle.Schedule(key, func() {
		e.persistGuestUpdate(ctx, productID, quantity)
	})
	return nil
}

func (e *Engine) dispatchUpdate(ctx context.Context, productID string, quantity int) {
	e.mu.Lock()
	rollback := e.updateSnaps[productID]
	delete(e.updateSnaps, productID)
	e.pending[productID] = OpUpdating
	e.mu.Unlock()

	payload, err := e.gw.UpdateItem(ctx, productID, quantity)

	e.mu.Lock()
	delete(e.pending, productID)
	e.mu.Unlock()

	if err != nil {
		if rollback != nil {
			rollback()
		}
		e.notify("error", err.Error())
		e.log.Warn("quantity update rejected", zap.String("product", productID), zap.Error(err))
		return
	}
	e.adopt(*payload, true)
}

func (e *Engine) persistGuestUpdate(ctx context.Context, productID string, quantity int) {
	e.mu.Lock()
	rollback := e.updateSnaps[productID]
	delete(e.updateSnaps, productID)
	e.mu.Unlock()

	items := e.store.GuestCart(ctx)
	if quantity == 0 {
		items = removeItem(items, productID)
	} else {
		for i := range items {
			if items[i].ProductID == productID {
				items[i].Quantity = quantity
				break
			}
		}
	}
	if err := e.store.SaveGuestCart(ctx, items); err != nil {
		if rollback != nil {
			rollback()
		}
		e.notify("error", "failed to save cart")
		return
	}
	e.replaceItems(items)
}

// RemoveFromCart removes an item. A removal already in flight for the same
// product makes the call a no-op, so a double-click issues one DELETE.
func (e *Engine) RemoveFromCart(ctx context.Context, productID string) error {
	if productID == "" {
		return ErrMissingProductID
	}

	e.mu.Lock()
	if e.pending[productID] == OpRemoving {
		e.mu.Unlock()
		return nil
	}
	authed := e.authed
	if !authed {
		e.mu.Unlock()
		return e.removeGuest(ctx, productID)
	}
	e.pending[productID] = OpRemoving
	rollback := e.snapshotState()
	e.items = removeItem(e.items, productID)
	e.total, _ = models.Totals(e.items)
	e.mu.Unlock()

	payload, err := e.gw.RemoveItem(ctx, productID)

	e.mu.Lock()
	delete(e.pending, productID)
	e.mu.Unlock()

	if err != nil {
		rollback()
		e.notify("error", err.Error())
		return err
	}
	e.adopt(*payload, true)
	return nil
}

func (e *Engine) removeGuest(ctx context.Context, productID string) error {
	items := removeItem(e.store.GuestCart(ctx), productID)
	if err := e.store.SaveGuestCart(ctx, items); err != nil {
		e.notify("error", "failed to save cart")
		return err
	}
	e.replaceItems(items)
	return nil
}

// ClearCart empties the cart. Reason distinguishes checkout-driven clears
// from user action on the server side.
func (e *Engine) ClearCart(ctx context.Context, reason string) error {
	e.mu.Lock()
	authed := e.authed
	e.mu.Unlock()

	if authed {
		if err := e.gw.Clear(ctx, reason); err != nil {
			e.notify("error", err.Error())
			return err
		}
		e.adopt(models.CartPayload{Items: []models.CartItem{}}, true)
		return nil
	}

	if err := e.store.ClearGuest(ctx); err != nil {
		return err
	}
	e.replaceItems([]models.CartItem{})
	return nil
}

func (e *Engine) replaceItems(items []models.CartItem) {
	e.mu.Lock()
	e.items = items
	e.total, _ = models.Totals(items)
	e.mu.Unlock()
}

func removeItem(items []models.CartItem, productID string) []models.CartItem {
	out := items[:0:0]
	for _, it := range items {
		if it.ProductID != productID {
			out = append(out, it)
		}
	}
	if out == nil {
		out = []models.CartItem{}
	}
	return out
}

// applyAddLocked is the optimistic half of an authenticated add. Caller
// holds the lock.
func (e *Engine) applyAddLocked(p *models.Product, snapshot *models.ProductSnapshot, price float64, quantity int) {
	for i := range e.items {
		if e.items[i].ProductID == p.ID {
			e.items[i].Quantity += quantity
			e.items[i].ProductDetails = mergeSnapshots(e.items[i].ProductDetails, snapshot)
			e.total, _ = models.Totals(e.items)
			return
		}
	}
	e.items = append(e.items, models.CartItem{
		ID:             "pending:" + p.ID,
		ProductID:      p.ID,
		Name:           p.Name,
		Price:          price,
		Image:          p.Image,
		Quantity:       quantity,
		AddedAt:        e.now(),
		ProductDetails: snapshot,
	})
	e.total, _ = models.Totals(e.items)
}

// resolveVariantIndex picks the variant: explicit argument, then an index
// embedded in product details, then the product's own selection, else 0.
func resolveVariantIndex(p *models.Product, explicit *int) int {
	if explicit != nil {
		return *explicit
	}
	if p.Details != nil && p.Details.VariantIndex != nil {
		return *p.Details.VariantIndex
	}
	if p.SelectedVariantIndex != nil {
		return *p.SelectedVariantIndex
	}
	return 0
}

func itemPrice(p *models.Product, idx int) float64 {
	if idx >= 0 && idx < len(p.Variants) && p.Variants[idx].Price != nil {
		return *p.Variants[idx].Price
	}
	return p.Price
}

func variantLabel(v models.Variant, i int) string {
	if v.Label != "" {
		return v.Label
	}
	if v.Name != "" {
		if v.Price != nil {
			return fmt.Sprintf("%s (%.2f)", v.Name, *v.Price)
		}
		return v.Name
	}
	return fmt.Sprintf("Option %d", i+1)
}

// buildSnapshot assembles the enriched add-time snapshot: labelled
// variants, the chosen variant and its label, and the egg flag overlaid
// per the configured policy.
func (e *Engine) buildSnapshot(p *models.Product, idx int, resolved *bool) *models.ProductSnapshot {
	snap := &models.ProductSnapshot{
		ProductID: p.ID,
		Name:      p.Name,
		Image:     p.Image,
		Stock:     p.Stock,
		HasEgg:    p.HasEgg,
		EggHints:  p.EggHints,
	}

	if len(p.Variants) > 0 {
		variants := make([]models.Variant, len(p.Variants))
		copy(variants, p.Variants)
		for i := range variants {
			variants[i].Label = variantLabel(variants[i], i)
		}
		snap.Variants = variants
		if idx >= 0 && idx < len(variants) {
			chosen := variants[idx]
			snap.SelectedVariant = &chosen
			snap.VariantLabel = chosen.Label
		}
	}
	i := idx
	snap.SelectedVariantIndex = &i

	snap.HasEgg = overlayEgg(snap.HasEgg, resolved, e.cfg.EggPolicy)
	return snap
}

// overlayEgg applies the configured override policy. With PreferResolver a
// decisive inference replaces a disagreeing upstream flag; with
// PreferUpstream it only fills a missing one. An unknown inference never
// clears an upstream value.
func overlayEgg(upstream, resolved *bool, policy EggOverridePolicy) *bool {
	if resolved == nil {
		return upstream
	}
	if upstream == nil {
		return resolved
	}
	if *upstream == *resolved {
		return upstream
	}
	if policy == PreferUpstream {
		return upstream
	}
	return resolved
}

// mergeSnapshots keeps the existing snapshot's values and fills its gaps
// from the incoming one. Inputs are not mutated.
func mergeSnapshots(existing, incoming *models.ProductSnapshot) *models.ProductSnapshot {
	if existing == nil {
		return incoming
	}
	if incoming == nil {
		return existing
	}
	merged := *existing
	if merged.Name == "" {
		merged.Name = incoming.Name
	}
	if merged.Image == "" {
		merged.Image = incoming.Image
	}
	if merged.Stock == nil {
		merged.Stock = incoming.Stock
	}
	if len(merged.Variants) == 0 {
		merged.Variants = incoming.Variants
	}
	if merged.SelectedVariantIndex == nil {
		merged.SelectedVariantIndex = incoming.SelectedVariantIndex
	}
	if merged.SelectedVariant == nil {
		merged.SelectedVariant = incoming.SelectedVariant
	}
	if merged.VariantLabel == "" {
		merged.VariantLabel = incoming.VariantLabel
	}
	if merged.HasEgg == nil {
		merged.HasEgg = incoming.HasEgg
	}
	if merged.ImportantField == nil {
		merged.ImportantField = incoming.ImportantField
	}
	if merged.EggType == nil {
		merged.EggType = incoming.EggType
	}
	if merged.EggLabel == nil {
		merged.EggLabel = incoming.EggLabel
	}
	if merged.Egg == nil {
		merged.Egg = incoming.Egg
	}
	if merged.IsEgg == nil {
		merged.IsEgg = incoming.IsEgg
	}
	return &merged
}
