package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// localCache go-cache 包装器
type localCache struct {
	cache *gocache.Cache
}

// NewLocalCache 创建基于 go-cache 的本地缓存
func NewLocalCache(config LocalConfig) Cache {
	if config.DefaultExpiration <= 0 {
		config.DefaultExpiration = 5 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 10 * time.Minute
	}
	return &localCache{cache: gocache.New(config.DefaultExpiration, config.CleanupInterval)}
}

// Get 获取缓存值
func (lc *localCache) Get(ctx context.Context, key string) (interface{}, bool) {
	return lc.cache.Get(key)
}

// Set 设置缓存值
func (lc *localCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	lc.cache.Set(key, value, expiration)
	return nil
}

// Delete 删除缓存
func (lc *localCache) Delete(ctx context.Context, key string) error {
	lc.cache.Delete(key)
	return nil
}

// Exists 检查键是否存在
func (lc *localCache) Exists(ctx context.Context, key string) bool {
	_, found := lc.cache.Get(key)
	return found
}

// Clear 清空所有缓存
func (lc *localCache) Clear(ctx context.Context) error {
	lc.cache.Flush()
	return nil
}

// Close 关闭缓存连接
func (lc *localCache) Close() error { return nil }
