package npm

import (
	"github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the require sets kept by a CachingResolver.
const DefaultCacheSize = 4096

type cachedRequires struct {
	rs  RequireSet
	err error
}

// CachingResolver memoizes another Resolver. Packages in the top 100
// share most of their dependencies, so every survey resolves the same
// specifiers many times. It is safe for concurrent use.
type CachingResolver struct {
	next  Resolver
	cache *lru.Cache[string, cachedRequires]
}

// NewCachingResolver wraps next with a cache of size entries, or
// DefaultCacheSize when size is not positive.
func NewCachingResolver(next Resolver, size int) (*CachingResolver, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, cachedRequires](size)
	if err != nil {
		return nil, err
	}
	return &CachingResolver{next: next, cache: cache}, nil
}

func (c *CachingResolver) Requires(nodeModules, spec string) (RequireSet, error) {
	key := nodeModules + "\x00" + spec
	if v, ok := c.cache.Get(key); ok {
		return v.rs, v.err
	}
	rs, err := c.next.Requires(nodeModules, spec)
	c.cache.Add(key, cachedRequires{rs: rs, err: err})
	return rs, err
}
