// Package gateway is the network boundary to the authoritative cart
// service. It attaches the stored bearer credential, makes conditional
// GETs with the stored ETag, and maps failures to the client error
// taxonomy.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"cartsync/models"
	"cartsync/store"
)

type Client struct {
	baseURL string
	http    *http.Client
	store   *store.CartStore
	log     *zap.Logger
}

func NewClient(baseURL string, st *store.CartStore, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{},
		store:   st,
		log:     log,
	}
}

// apiResponse is the service's uniform body shape.
type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// FetchCart gets the cart, conditionally when an ETag is stored. A "not
// modified" answer resolves to the locally cached envelope and is not an
// error.
func (c *Client) FetchCart(ctx context.Context) (*models.CartPayload, error) {
	return c.fetchCart(ctx, true)
}

func (c *Client) fetchCart(ctx context.Context, conditional bool) (*models.CartPayload, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/cart", nil)
	if err != nil {
		return nil, err
	}
	if etag := c.store.ETag(ctx); conditional && etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RequestError{Op: "fetch cart", Message: "failed to load cart"}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		if env := c.store.CachedEnvelope(ctx); env != nil {
			c.log.Debug("cart not modified, serving cached payload")
			return &models.CartPayload{Items: env.Items, Total: env.Total, Count: env.Count}, nil
		}
		if conditional {
			// Stored ETag without a cached body: drop the token and
			// refetch unconditionally, once.
			_ = c.store.SetETag(ctx, "")
			return c.fetchCart(ctx, false)
		}
		// 304 to an unconditional request is a server fault.
		return nil, &RequestError{Op: "fetch cart", StatusCode: resp.StatusCode, Message: "failed to load cart"}
	}

	payload, err := c.decodeCart(ctx, resp, "fetch cart", "failed to load cart")
	if err != nil {
		return nil, err
	}
	if etag := resp.Header.Get("ETag"); etag != "" {
		_ = c.store.SetETag(ctx, etag)
	}
	return payload, nil
}

func (c *Client) AddItem(ctx context.Context, reqBody models.AddCartItemRequest) (*models.CartPayload, error) {
	return c.mutateCart(ctx, http.MethodPost, "/api/cart/items", reqBody,
		"add to cart", "failed to add item to cart")
}

func (c *Client) UpdateItem(ctx context.Context, productID string, quantity int) (*models.CartPayload, error) {
	path := "/api/cart/items/" + url.PathEscape(productID)
	return c.mutateCart(ctx, http.MethodPut, path, models.UpdateCartItemRequest{Quantity: quantity},
		"update cart item", "failed to update item quantity")
}

func (c *Client) RemoveItem(ctx context.Context, productID string) (*models.CartPayload, error) {
	path := "/api/cart/items/" + url.PathEscape(productID)
	return c.mutateCart(ctx, http.MethodDelete, path, nil,
		"remove from cart", "failed to remove item from cart")
}

// Clear deletes the whole cart. Reason distinguishes user-initiated clears
// from checkout.
func (c *Client) Clear(ctx context.Context, reason string) error {
	path := "/api/cart"
	if reason != "" {
		path += "?reason=" + url.QueryEscape(reason)
	}
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &RequestError{Op: "clear cart", Message: "failed to clear cart"}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.mapFailure(resp, "clear cart", "failed to clear cart")
	}
	return nil
}

// Merge folds guest items into the server cart.
func (c *Client) Merge(ctx context.Context, items []models.CartItem) (*models.CartPayload, error) {
	return c.mutateCart(ctx, http.MethodPost, "/api/cart/merge", models.MergeCartRequest{Items: items},
		"merge cart", "failed to merge guest cart")
}

// Sync is the simpler fallback when merge is unavailable.
func (c *Client) Sync(ctx context.Context, items []models.CartItem) (*models.CartPayload, error) {
	return c.mutateCart(ctx, http.MethodPost, "/api/cart/sync", models.MergeCartRequest{Items: items},
		"sync cart", "failed to sync guest cart")
}

// Count returns the item count, degrading to zero on any failure: the
// badge is advisory chrome, never worth an error.
func (c *Client) Count(ctx context.Context) int {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/cart/count", nil)
	if err != nil {
		return 0
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0
	}
	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0
	}
	var count models.CartCountResponse
	if err := json.Unmarshal(body.Data, &count); err != nil {
		return 0
	}
	return count.Count
}

func (c *Client) mutateCart(ctx context.Context, method, path string, body any, op, generic string) (*models.CartPayload, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("cart request failed", zap.String("op", op), zap.Error(err))
		return nil, &RequestError{Op: op, Message: generic}
	}
	defer resp.Body.Close()
	return c.decodeCart(ctx, resp, op, generic)
}

func (c *Client) decodeCart(_ context.Context, resp *http.Response, op, generic string) (*models.CartPayload, error) {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.mapFailure(resp, op, generic)
	}
	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &RequestError{Op: op, StatusCode: resp.StatusCode, Message: generic}
	}
	var payload models.CartPayload
	if len(body.Data) > 0 {
		if err := json.Unmarshal(body.Data, &payload); err != nil {
			return nil, &RequestError{Op: op, StatusCode: resp.StatusCode, Message: generic}
		}
	}
	if payload.Items == nil {
		payload.Items = []models.CartItem{}
	}
	return &payload, nil
}

// mapFailure applies the error taxonomy: 401 is the actionable login
// error; anything else keeps the server's message when it has one.
func (c *Client) mapFailure(resp *http.Response, op, generic string) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w", op, ErrLoginRequired)
	}
	msg := generic
	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Message != "" {
		msg = body.Message
	}
	return &RequestError{Op: op, StatusCode: resp.StatusCode, Message: msg}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// A missing credential is not an error here; the server decides.
	if token := c.store.Token(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}
