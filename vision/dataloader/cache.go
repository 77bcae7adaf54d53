package dataloader

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/tsawler/xray-harness/vision/preprocessing"
)

// CacheManager is an LRU cache of decoded, resized rasters keyed by file
// path. Cached rasters are never modified: augmentation and rescaling always
// write into fresh storage, so one cache can serve several iterators.
type CacheManager struct {
	mu          sync.Mutex
	cache       map[string]*preprocessing.Raster
	lru         *list.List
	lruMap      map[string]*list.Element
	maxSize     int
	currentSize int

	// Statistics
	hits   int64
	misses int64
}

// NewCacheManager creates a cache holding at most maxSize rasters
func NewCacheManager(maxSize int) *CacheManager {
	return &CacheManager{
		cache:   make(map[string]*preprocessing.Raster),
		lru:     list.New(),
		lruMap:  make(map[string]*list.Element),
		maxSize: maxSize,
	}
}

// Get retrieves a raster from the cache
func (cm *CacheManager) Get(key string) (*preprocessing.Raster, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if raster, exists := cm.cache[key]; exists {
		cm.lru.MoveToFront(cm.lruMap[key])
		cm.hits++
		return raster, true
	}

	cm.misses++
	return nil, false
}

// Put adds a raster to the cache, evicting the least recently used entries
// beyond maxSize
func (cm *CacheManager) Put(key string, raster *preprocessing.Raster) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, exists := cm.cache[key]; exists {
		cm.lru.MoveToFront(cm.lruMap[key])
		return
	}

	cm.lruMap[key] = cm.lru.PushFront(key)
	cm.cache[key] = raster
	cm.currentSize++

	for cm.currentSize > cm.maxSize && cm.lru.Len() > 0 {
		cm.removeElement(cm.lru.Back())
	}
}

func (cm *CacheManager) removeElement(elem *list.Element) {
	key := elem.Value.(string)
	cm.lru.Remove(elem)
	delete(cm.lruMap, key)
	delete(cm.cache, key)
	cm.currentSize--
}

// Stats returns cache statistics
func (cm *CacheManager) Stats() CacheStats {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	stats := CacheStats{
		Size:    cm.currentSize,
		MaxSize: cm.maxSize,
		Hits:    cm.hits,
		Misses:  cm.misses,
	}
	if total := cm.hits + cm.misses; total > 0 {
		stats.HitRate = float64(cm.hits) / float64(total) * 100
	}
	return stats
}

// Clear empties the cache; statistics stay cumulative
func (cm *CacheManager) Clear() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.cache = make(map[string]*preprocessing.Raster)
	cm.lru = list.New()
	cm.lruMap = make(map[string]*list.Element)
	cm.currentSize = 0
}

// CacheStats holds cache statistics
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    int64
	Misses  int64
	HitRate float64
}

// String returns a string representation of cache stats
func (cs CacheStats) String() string {
	return fmt.Sprintf("Cache: %d/%d items, Hits: %d, Misses: %d, Hit Rate: %.1f%%",
		cs.Size, cs.MaxSize, cs.Hits, cs.Misses, cs.HitRate)
}
