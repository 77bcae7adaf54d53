package dataloader

import (
	"sync"

	"github.com/tsawler/xray-harness/vision/preprocessing"
)

// SharedCacheManager hands out named caches so that iterators reading the
// same files, such as the two-class and three-class passes over the NORMAL
// directories, decode every file once
type SharedCacheManager struct {
	mu     sync.Mutex
	caches map[string]*CacheManager
}

// NewSharedCacheManager creates an empty registry
func NewSharedCacheManager() *SharedCacheManager {
	return &SharedCacheManager{caches: make(map[string]*CacheManager)}
}

// GetOrCreateCache returns the cache called name, creating it with maxSize
// entries when absent
func (scm *SharedCacheManager) GetOrCreateCache(name string, maxSize int) *CacheManager {
	scm.mu.Lock()
	defer scm.mu.Unlock()

	if cache, exists := scm.caches[name]; exists {
		return cache
	}

	cache := NewCacheManager(maxSize)
	scm.caches[name] = cache
	return cache
}

// ClearAllCaches clears all managed caches
func (scm *SharedCacheManager) ClearAllCaches() {
	scm.mu.Lock()
	defer scm.mu.Unlock()

	for _, cache := range scm.caches {
		cache.Clear()
	}
}

// NewSplitIterators creates the train and test iterators of one scheme over a
// shared cache. Augmentation applies to the training iterator only, and the
// test iterator draws from a different seed.
func NewSplitIterators(train, test Dataset, config Config) (*DirectoryIterator, *DirectoryIterator, error) {
	if config.CacheManager == nil {
		size := config.MaxCacheSize
		if size == 0 {
			size = train.Len() + test.Len()
		}
		config.CacheManager = NewCacheManager(size)
	}

	trainIt, err := NewDirectoryIterator(train, config)
	if err != nil {
		return nil, nil, err
	}

	testConfig := config
	testConfig.Augment = preprocessing.AugmentConfig{}
	testConfig.Seed = config.Seed + 1
	testIt, err := NewDirectoryIterator(test, testConfig)
	if err != nil {
		return nil, nil, err
	}

	return trainIt, testIt, nil
}
