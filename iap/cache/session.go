package cache

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ReneKroon/ttlcache"

	"github.com/mnasir786/hms-unity-plugin/iap"
)

// Session caches product queries of an underlying session. Everything else
// passes straight through.
type Session struct {
	iap.Session
	cache *ttlcache.Cache

	// owned is false for sessions sharing a Backend's cache.
	owned bool
}

func NewSession(inner iap.Session, ttl time.Duration) *Session {
	return &Session{
		Session: inner,
		cache:   newCache(ttl),
		owned:   true,
	}
}

func newCache(ttl time.Duration) *ttlcache.Cache {
	cache := ttlcache.NewCache()
	cache.SetTTL(ttl)
	return cache
}

func (s *Session) QueryProducts(ctx context.Context, req *iap.ProductInfoRequest) (*iap.ProductInfoResult, error) {
	cacheKey := toCacheKey(req)

	cached, ok := s.cache.Get(cacheKey)
	if ok {
		return cached.(*iap.ProductInfoResult).Clone(), nil
	}

	result, err := s.Session.QueryProducts(ctx, req)
	if err != nil {
		return nil, err
	}

	s.cache.Set(cacheKey, result.Clone())
	return result, nil
}

// Close stops the cache's expiry loop. Sessions established through a
// Backend share its cache, which only Backend.Close stops.
func (s *Session) Close() {
	if s.owned {
		s.cache.Close()
	}
}

// Backend wraps every session established through an inner backend in a
// product query cache. All of its sessions share one cache, so results
// survive a re-established session until they expire.
type Backend struct {
	inner iap.Backend
	cache *ttlcache.Cache
}

func NewBackend(inner iap.Backend, ttl time.Duration) *Backend {
	return &Backend{
		inner: inner,
		cache: newCache(ttl),
	}
}

func (b *Backend) EstablishSession(ctx context.Context) (iap.Session, error) {
	session, err := b.inner.EstablishSession(ctx)
	if err != nil || session == nil {
		return nil, err
	}
	return &Session{Session: session, cache: b.cache}, nil
}

// Close stops the shared cache's expiry loop.
func (b *Backend) Close() {
	b.cache.Close()
}

func toCacheKey(req *iap.ProductInfoRequest) string {
	ids := make([]string, len(req.ProductIDs))
	for i, id := range req.ProductIDs {
		ids[i] = strconv.Quote(id)
	}
	slices.Sort(ids)
	return strconv.Itoa(int(req.PriceType)) + "|" + strings.Join(ids, ",")
}
