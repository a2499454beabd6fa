package offline

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cartsync/store"
)

type Config struct {
	// Upstream is the origin the proxy fronts.
	Upstream string
	// OfflinePage is the path of the precached page served when a
	// navigation fails.
	OfflinePage string
	// Precache lists upstream paths installed into the static partition.
	Precache []string
	// ComponentAssets are upstream paths installed into the components
	// partition at install time.
	ComponentAssets []string
	// ComponentPaths are path prefixes served cache-first.
	ComponentPaths []string
	// ExternalAssets are absolute URLs (fonts etc.) installed into the
	// external partition; individual failures never fail the install.
	ExternalAssets []string
	// ExcludePaths are prefixes that are always proxied live and never
	// cached. Cart API calls belong here.
	ExcludePaths []string
}

func (c Config) withDefaults() Config {
	if c.OfflinePage == "" {
		c.OfflinePage = "/offline.html"
	}
	if c.ComponentPaths == nil {
		c.ComponentPaths = []string{"/components/"}
	}
	if c.ExcludePaths == nil {
		c.ExcludePaths = []string{"/api/cart", "/api/"}
	}
	return c
}

// Layer intercepts requests and applies the per-kind caching strategy.
type Layer struct {
	cfg   Config
	cache *cacheStore
	http  *http.Client
	log   *zap.Logger
	skip  chan struct{}
}

func NewLayer(cfg Config, kv store.KV, log *zap.Logger) *Layer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Layer{
		cfg:   cfg.withDefaults(),
		cache: &cacheStore{kv: kv, log: log},
		http:  &http.Client{Timeout: 15 * time.Second},
		log:   log,
		skip:  make(chan struct{}, 1),
	}
}

// Install precaches all three partitions: the offline page and static
// assets, the listed component assets, and the external resources.
// External fetches are attempted independently and their failures
// swallowed; a static or component precache failure fails the install.
func (l *Layer) Install(ctx context.Context) error {
	pages := append([]string{l.cfg.OfflinePage}, l.cfg.Precache...)
	for _, path := range pages {
		entry, err := l.fetch(ctx, l.cfg.Upstream+path)
		if err != nil {
			l.log.Error("precache failed", zap.String("path", path), zap.Error(err))
			return err
		}
		l.cache.put(ctx, PartitionStatic, path, *entry)
	}

	for _, path := range l.cfg.ComponentAssets {
		entry, err := l.fetch(ctx, l.cfg.Upstream+path)
		if err != nil {
			l.log.Error("component precache failed", zap.String("path", path), zap.Error(err))
			return err
		}
		l.cache.put(ctx, PartitionComponents, path, *entry)
	}

	for _, rawURL := range l.cfg.ExternalAssets {
		entry, err := l.fetch(ctx, rawURL)
		if err != nil {
			l.log.Warn("external asset precache failed, continuing", zap.String("url", rawURL), zap.Error(err))
			continue
		}
		l.cache.put(ctx, PartitionExternal, rawURL, *entry)
	}

	l.log.Info("offline cache installed",
		zap.Int("static", len(pages)),
		zap.Int("components", len(l.cfg.ComponentAssets)),
		zap.Int("external", len(l.cfg.ExternalAssets)))
	return nil
}

// Activate sweeps partitions that are no longer in the current set.
func (l *Layer) Activate(ctx context.Context) error {
	return l.cache.sweepStale(ctx)
}

// SkipWaiting signals that a newly installed version should activate
// immediately instead of waiting for the old one to wind down.
func (l *Layer) SkipWaiting() {
	select {
	case l.skip <- struct{}{}:
	default:
	}
}

// Run activates after the grace delay, or immediately on a skip-waiting
// signal, then blocks until the context ends.
func (l *Layer) Run(ctx context.Context, grace time.Duration) error {
	select {
	case <-l.skip:
		l.log.Info("skip-waiting received, activating now")
	case <-time.After(grace):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := l.Activate(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

// Routes mounts the control channel and the interception handler.
func (l *Layer) Routes(r *gin.Engine) {
	r.POST("/__cache/skip-waiting", func(c *gin.Context) {
		l.SkipWaiting()
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "activating"})
	})
	r.NoRoute(l.intercept)
}

func (l *Layer) intercept(c *gin.Context) {
	path := c.Request.URL.Path

	// Mutating calls and excluded paths (the cart API) bypass every
	// cache: a stale cart payload must never be served as live.
	if c.Request.Method != http.MethodGet || l.isExcluded(path) {
		l.proxyLive(c)
		return
	}

	switch {
	case isNavigation(c.Request):
		l.serveNavigation(c, path)
	case l.isComponent(path):
		l.serveComponent(c, path)
	default:
		l.serveNetworkFirst(c, path)
	}
}

func (l *Layer) isExcluded(path string) bool {
	for _, prefix := range l.cfg.ExcludePaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (l *Layer) isComponent(path string) bool {
	for _, prefix := range l.cfg.ComponentPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isNavigation(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// serveNavigation is network-only with the offline page as the fallback.
func (l *Layer) serveNavigation(c *gin.Context, path string) {
	entry, err := l.fetch(c.Request.Context(), l.cfg.Upstream+requestURI(c))
	if err == nil {
		writeEntry(c, entry)
		return
	}
	l.log.Debug("navigation failed, serving offline page", zap.String("path", path))
	if cached := l.cache.get(c.Request.Context(), PartitionStatic, l.cfg.OfflinePage); cached != nil {
		writeEntry(c, cached)
		return
	}
	c.Data(http.StatusServiceUnavailable, "text/plain; charset=utf-8", []byte("offline"))
}

// serveComponent is cache-first with fetch-and-populate, degrading to a
// synthetic unavailable response.
func (l *Layer) serveComponent(c *gin.Context, path string) {
	ctx := c.Request.Context()
	if cached := l.cache.get(ctx, PartitionComponents, path); cached != nil {
		writeEntry(c, cached)
		return
	}
	entry, err := l.fetch(ctx, l.cfg.Upstream+requestURI(c))
	if err == nil {
		l.cache.put(ctx, PartitionComponents, path, *entry)
		writeEntry(c, entry)
		return
	}
	c.Data(http.StatusServiceUnavailable, "text/plain; charset=utf-8", []byte("component unavailable"))
}

// serveNetworkFirst proxies and opportunistically caches, falling back to
// the static partition when the network fails.
func (l *Layer) serveNetworkFirst(c *gin.Context, path string) {
	ctx := c.Request.Context()
	entry, err := l.fetch(ctx, l.cfg.Upstream+requestURI(c))
	if err == nil {
		if entry.StatusCode == http.StatusOK {
			l.cache.put(ctx, PartitionStatic, path, *entry)
		}
		writeEntry(c, entry)
		return
	}
	if cached := l.cache.get(ctx, PartitionStatic, path); cached != nil {
		writeEntry(c, cached)
		return
	}
	c.Data(http.StatusGatewayTimeout, "text/plain; charset=utf-8", []byte("unavailable"))
}

// proxyLive forwards the request untouched and never caches the answer.
func (l *Layer) proxyLive(c *gin.Context) {
	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method,
		l.cfg.Upstream+requestURI(c), c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "bad upstream request"})
		return
	}
	for _, h := range []string{"Content-Type", "Authorization", "If-None-Match", "Accept"} {
		if v := c.Request.Header.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	resp, err := l.http.Do(req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "upstream unreachable"})
		return
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "upstream read failed"})
		return
	}
	if etag := resp.Header.Get("ETag"); etag != "" {
		c.Header("ETag", etag)
	}
	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), body)
}

func (l *Layer) fetch(ctx context.Context, url string) (*Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Entry{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		CachedAt:    time.Now(),
	}, nil
}

func writeEntry(c *gin.Context, e *Entry) {
	c.Data(e.StatusCode, e.ContentType, e.Body)
}

func requestURI(c *gin.Context) string {
	uri := c.Request.URL.Path
	if q := c.Request.URL.RawQuery; q != "" {
		uri += "?" + q
	}
	return uri
}
