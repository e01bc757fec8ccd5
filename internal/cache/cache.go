/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is not cached.
var ErrMiss = errors.New("cache: key is missing")

// Cache is the small key/value surface the datasource reads through.
// It includes methods for setting, getting, and deleting cached data.
type Cache interface {
	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Get decodes the cached value into data, or returns ErrMiss.
	Get(ctx context.Context, key string, data interface{}) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// localCacheSize is the number of entries held in process in front of redis.
const localCacheSize = 10000

// RedisCache keeps entries in redis with a TinyLFU local layer in front.
type RedisCache struct {
	cache *cache.Cache
}

// NewCache builds a cache over an existing redis client. A local TTL of zero
// disables the in-process layer, which keeps several processes consistent.
func NewCache(client redis.UniversalClient, localTTL time.Duration) *RedisCache {
	opts := &cache.Options{Redis: client}
	if localTTL > 0 {
		opts.LocalCache = cache.NewTinyLFU(localCacheSize, localTTL)
	}
	return &RedisCache{cache: cache.New(opts)}
}

// Set stores data in the cache with the specified key and time-to-live (TTL).
// The value is msgpack encoded by go-redis/cache and written to both layers.
func (r *RedisCache) Set(ctx context.Context, key string, data interface{}, ttl time.Duration) error {
	return r.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: data,
		TTL:   ttl,
	})
}

// Get retrieves the value stored under key and decodes it into data.
// The local layer is consulted before redis. A miss in both returns ErrMiss.
func (r *RedisCache) Get(ctx context.Context, key string, data interface{}) error {
	err := r.cache.Get(ctx, key, data)
	if errors.Is(err, cache.ErrCacheMiss) {
		return ErrMiss
	}
	return err
}

// Delete removes key from the local layer and from redis.
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	err := r.cache.Delete(ctx, key)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}
