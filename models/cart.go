package models

import "time"

type CartItem struct {
	ID             string           `json:"id"`
	ProductID      string           `json:"productId"`
	Name           string           `json:"name"`
	Price          float64          `json:"price"`
	Image          string           `json:"image,omitempty"`
	Quantity       int              `json:"quantity"`
	AddedAt        time.Time        `json:"addedAt"`
	ProductDetails *ProductSnapshot `json:"productDetails,omitempty"`
}

// CartPayload is the cart resource as the server reports it.
type CartPayload struct {
	Items []CartItem `json:"items"`
	Total float64    `json:"total"`
	Count int        `json:"count"`
}

// CacheEnvelope is a short-TTL read cache of the authenticated cart. It is
// never authoritative; the engine adopts it on mount only while fresh.
type CacheEnvelope struct {
	Items     []CartItem `json:"items"`
	Total     float64    `json:"total"`
	Count     int        `json:"count"`
	Timestamp time.Time  `json:"timestamp"`
}

// Age reports how long ago the envelope was written.
func (e *CacheEnvelope) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// Totals recomputes total and count from the item list.
func Totals(items []CartItem) (total float64, count int) {
	for _, it := range items {
		total += it.Price * float64(it.Quantity)
		count += it.Quantity
	}
	return total, count
}
