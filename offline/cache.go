// Package offline is the request-interception layer that keeps the app
// usable when the network is not: it precaches assets into versioned
// partitions, serves components cache-first, falls back to an offline page
// for navigations, and answers everything else network-first with a cache
// fallback. Cart API paths are excluded explicitly and never cached.
package offline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"cartsync/store"
)

// Partition names are versioned; bumping a version orphans the old keys
// and Activate sweeps them.
const (
	PartitionStatic     = "static-v3"
	PartitionComponents = "components-v2"
	PartitionExternal   = "external-v1"
)

var currentPartitions = map[string]bool{
	PartitionStatic:     true,
	PartitionComponents: true,
	PartitionExternal:   true,
}

const cachePrefix = "swcache:"

// Entry is one cached response.
type Entry struct {
	StatusCode  int       `json:"status"`
	ContentType string    `json:"contentType"`
	Body        []byte    `json:"body"`
	CachedAt    time.Time `json:"cachedAt"`
}

type cacheStore struct {
	kv  store.KV
	log *zap.Logger
}

func cacheKey(partition, url string) string {
	return cachePrefix + partition + ":" + url
}

func (s *cacheStore) get(ctx context.Context, partition, url string) *Entry {
	raw, err := s.kv.Get(ctx, cacheKey(partition, url))
	if err != nil {
		return nil
	}
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		s.log.Warn("corrupt cache entry dropped", zap.String("url", url), zap.Error(err))
		_ = s.kv.Delete(ctx, cacheKey(partition, url))
		return nil
	}
	return &e
}

func (s *cacheStore) put(ctx context.Context, partition, url string, e Entry) {
	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := s.kv.Set(ctx, cacheKey(partition, url), string(raw)); err != nil {
		s.log.Warn("cache write failed", zap.String("url", url), zap.Error(err))
	}
}

// sweepStale deletes every cached key whose partition is no longer in the
// current set. Runs on activation so version bumps migrate cleanly.
func (s *cacheStore) sweepStale(ctx context.Context) error {
	keys, err := s.kv.Keys(ctx, cachePrefix)
	if err != nil {
		return err
	}
	var stale []string
	for _, key := range keys {
		rest := key[len(cachePrefix):]
		partition := rest
		if i := strings.IndexByte(rest, ':'); i >= 0 {
			partition = rest[:i]
		}
		if !currentPartitions[partition] {
			stale = append(stale, key)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	s.log.Info("sweeping stale cache partitions", zap.Int("keys", len(stale)))
	return s.kv.Delete(ctx, stale...)
}
