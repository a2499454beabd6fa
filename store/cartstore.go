// Package store persists the client's cart state: the guest cart, the
// short-TTL read cache of the authenticated cart, the ETag token and the
// bearer credential. Redis is the durable backend; an in-memory store is
// the degrade path.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"cartsync/models"
)

const (
	keyGuestCart = "cart:guest"
	keyCache     = "cart:cache"
	keyCacheTS   = "cart:cache:ts"
	keyETag      = "cart:etag"
	keyToken     = "auth:token"
)

// CartStore provides typed access to the cart persistence keys. A prefix
// namespaces keys so multiple client sessions can share one Redis.
type CartStore struct {
	kv     KV
	prefix string
	log    *zap.Logger
}

func NewCartStore(kv KV, sessionPrefix string, log *zap.Logger) *CartStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &CartStore{kv: kv, prefix: sessionPrefix, log: log}
}

// KV exposes the underlying store for collaborators sharing the backend.
func (s *CartStore) KV() KV {
	return s.kv
}

func (s *CartStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

// GuestCart reads the guest cart list. Read or parse failures yield an
// empty list; local persistence problems never propagate.
func (s *CartStore) GuestCart(ctx context.Context) []models.CartItem {
	raw, err := s.kv.Get(ctx, s.key(keyGuestCart))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Warn("guest cart read failed, treating as empty", zap.Error(err))
		}
		return []models.CartItem{}
	}
	var items []models.CartItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		s.log.Warn("guest cart parse failed, treating as empty", zap.Error(err))
		return []models.CartItem{}
	}
	return items
}

func (s *CartStore) SaveGuestCart(ctx context.Context, items []models.CartItem) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, s.key(keyGuestCart), string(raw))
}

// ClearGuest removes the guest cart and both cache keys unconditionally.
func (s *CartStore) ClearGuest(ctx context.Context) error {
	return s.kv.Delete(ctx, s.key(keyGuestCart), s.key(keyCache), s.key(keyCacheTS))
}

// WriteCache stores the cache envelope and its timestamp after an
// authenticated mutation.
func (s *CartStore) WriteCache(ctx context.Context, env models.CacheEnvelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, s.key(keyCache), string(raw)); err != nil {
		return err
	}
	return s.kv.Set(ctx, s.key(keyCacheTS), env.Timestamp.Format(time.RFC3339Nano))
}

// CachedEnvelope returns the stored cache envelope, or nil when absent or
// unreadable. Freshness is the caller's policy.
func (s *CartStore) CachedEnvelope(ctx context.Context) *models.CacheEnvelope {
	raw, err := s.kv.Get(ctx, s.key(keyCache))
	if err != nil {
		return nil
	}
	var env models.CacheEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		s.log.Warn("cache envelope parse failed, discarding", zap.Error(err))
		return nil
	}
	if env.Timestamp.IsZero() {
		if ts, err := s.kv.Get(ctx, s.key(keyCacheTS)); err == nil {
			if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				env.Timestamp = parsed
			}
		}
	}
	return &env
}

func (s *CartStore) DropCache(ctx context.Context) error {
	return s.kv.Delete(ctx, s.key(keyCache), s.key(keyCacheTS))
}

func (s *CartStore) ETag(ctx context.Context) string {
	v, err := s.kv.Get(ctx, s.key(keyETag))
	if err != nil {
		return ""
	}
	return v
}

func (s *CartStore) SetETag(ctx context.Context, etag string) error {
	if etag == "" {
		return s.kv.Delete(ctx, s.key(keyETag))
	}
	return s.kv.Set(ctx, s.key(keyETag), etag)
}

func (s *CartStore) Token(ctx context.Context) string {
	v, err := s.kv.Get(ctx, s.key(keyToken))
	if err != nil {
		return ""
	}
	return v
}

func (s *CartStore) SetToken(ctx context.Context, token string) error {
	return s.kv.Set(ctx, s.key(keyToken), token)
}

// ClearAuth removes every authenticated-session key. Runs on logout before
// any guest-cart read so no state bleeds across users.
func (s *CartStore) ClearAuth(ctx context.Context) error {
	return s.kv.Delete(ctx, s.key(keyToken), s.key(keyETag), s.key(keyCache), s.key(keyCacheTS))
}
