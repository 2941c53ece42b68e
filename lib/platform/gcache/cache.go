package gcache

import (
	"errors"
	"sync"

	"example.com/peerwire/lib/core/adapter/cache"

	"github.com/bluele/gcache"
)

// NewCache is a read-through LRU: Cached(key, fallback) returns the
// cached value or runs fallback to load it.
func NewCache() cache.Cache {
	c := cacheImpl{
		fallbacks: &sync.Map{},
	}
	gc := gcache.New(10).LRU().LoaderFunc(c.loaderFunc).Build()
	c.gc = gc
	return c
}

type cacheImpl struct {
	gc        gcache.Cache
	fallbacks *sync.Map
}

func (c cacheImpl) loaderFunc(key interface{}) (interface{}, error) {
	v, ok := c.fallbacks.Load(key)
	if ok {
		w := v.(func() (interface{}, error))
		return w()
	}
	return nil, errors.New("no loader func")
}

func (c cacheImpl) Cached(key interface{}, fallback func() (interface{}, error)) (interface{}, error) {
	c.fallbacks.Store(key, fallback)
	return c.gc.Get(key)
}
