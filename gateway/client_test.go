package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cartsync/models"
	"cartsync/store"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *store.CartStore) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	st := store.NewCartStore(store.NewMemoryKV(), "gwtest", nil)
	return NewClient(srv.URL, st, nil), st
}

func cartBody(t *testing.T, payload models.CartPayload) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	raw, err := json.Marshal(map[string]any{"success": true, "data": json.RawMessage(data)})
	require.NoError(t, err)
	return raw
}

// TestFetchCart_StoresETag verifies a 200 response persists the ETag for
// the next conditional request.
func TestFetchCart_StoresETag(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var gotConditional string
	c, st := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotConditional = r.Header.Get("If-None-Match")
		w.Header().Set("ETag", `"v1"`)
		w.Write(cartBody(t, models.CartPayload{
			Items: []models.CartItem{{ProductID: "A", Quantity: 2, Price: 3}},
			Total: 6, Count: 2,
		}))
	})

	payload, err := c.FetchCart(ctx)
	require.NoError(t, err)
	assert.Empty(t, gotConditional)
	assert.Equal(t, 2, payload.Count)
	assert.Equal(t, `"v1"`, st.ETag(ctx))

	_, err = c.FetchCart(ctx)
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, gotConditional, "second fetch must be conditional")
}

// TestFetchCart_NotModified verifies a 304 resolves to the stored cache
// envelope instead of an error.
func TestFetchCart_NotModified(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c, st := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	})
	require.NoError(t, st.SetETag(ctx, `"v1"`))
	require.NoError(t, st.WriteCache(ctx, models.CacheEnvelope{
		Items:     []models.CartItem{{ProductID: "A", Quantity: 5, Price: 1}},
		Total:     5,
		Count:     5,
		Timestamp: time.Now(),
	}))

	payload, err := c.FetchCart(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, payload.Count)
	require.Len(t, payload.Items, 1)
	assert.Equal(t, "A", payload.Items[0].ProductID)
}

// TestFetchCart_NotModifiedWithoutCache verifies the client drops the ETag
// and refetches when 304 arrives but the cached body is gone.
func TestFetchCart_NotModifiedWithoutCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	calls := 0
	c, st := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("If-None-Match") != "" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Write(cartBody(t, models.CartPayload{Count: 1, Items: []models.CartItem{{ProductID: "B", Quantity: 1}}}))
	})
	require.NoError(t, st.SetETag(ctx, `"stale"`))

	payload, err := c.FetchCart(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, payload.Count)
	assert.Equal(t, 2, calls)
}

// TestFetchCart_PersistentNotModified verifies a server answering 304 even
// to an unconditional request produces an error after a single retry.
func TestFetchCart_PersistentNotModified(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	calls := 0
	c, st := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotModified)
	})
	require.NoError(t, st.SetETag(ctx, `"stale"`))

	_, err := c.FetchCart(ctx)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusNotModified, reqErr.StatusCode)
	assert.Equal(t, 2, calls, "exactly one unconditional retry")
}

// TestBearerHeader verifies the stored credential rides every mutating
// call and its absence is not an error.
func TestBearerHeader(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var gotAuth string
	c, st := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write(cartBody(t, models.CartPayload{}))
	})

	_, err := c.AddItem(ctx, models.AddCartItemRequest{ProductID: "A", Quantity: 1})
	require.NoError(t, err)
	assert.Empty(t, gotAuth)

	require.NoError(t, st.SetToken(ctx, "tok-9"))
	_, err = c.AddItem(ctx, models.AddCartItemRequest{ProductID: "A", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-9", gotAuth)
}

// TestErrorMapping verifies 401 maps to the login error and other failures
// keep the server's message when present.
func TestErrorMapping(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	status := http.StatusUnauthorized
	message := ""
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": message})
	})

	_, err := c.AddItem(ctx, models.AddCartItemRequest{ProductID: "A", Quantity: 1})
	assert.ErrorIs(t, err, ErrLoginRequired)

	status = http.StatusConflict
	message = "Insufficient stock available"
	_, err = c.AddItem(ctx, models.AddCartItemRequest{ProductID: "A", Quantity: 99})
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "Insufficient stock available", reqErr.Message)

	status = http.StatusInternalServerError
	message = ""
	_, err = c.UpdateItem(ctx, "A", 2)
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "failed to update item quantity", reqErr.Message)
}

// TestCount_Degrades verifies count never propagates an error.
func TestCount_Degrades(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	assert.Equal(t, 0, c.Count(ctx))

	c2, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := json.Marshal(models.CartCountResponse{Count: 7})
		json.NewEncoder(w).Encode(map[string]any{"success": true, "data": json.RawMessage(data)})
	})
	assert.Equal(t, 7, c2.Count(ctx))

	bad := NewClient("http://127.0.0.1:1", store.NewCartStore(store.NewMemoryKV(), "x", nil), nil)
	assert.Equal(t, 0, bad.Count(ctx))
}

// TestClear_Reason verifies the reason parameter reaches the server.
func TestClear_Reason(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var gotReason string
	var gotMethod string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotReason = r.URL.Query().Get("reason")
		gotMethod = r.Method
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	require.NoError(t, c.Clear(ctx, "checkout"))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "checkout", gotReason)
}

// TestNetworkFailure verifies connection errors surface as typed request
// errors with the generic operation message.
func TestNetworkFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c := NewClient("http://127.0.0.1:1", store.NewCartStore(store.NewMemoryKV(), "x", nil), nil)
	_, err := c.RemoveItem(ctx, "A")
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, "failed to remove item from cart", reqErr.Message)
}
