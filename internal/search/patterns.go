package search

import (
	"container/list"
	"regexp"
	"sync"
)

// maxCachedPatterns bounds the keyword matcher cache; keywords come from user queries.
const maxCachedPatterns = 512

// patternCache is an LRU of compiled keyword matchers.
type patternCache struct {
	capacity int
	items    map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type patternEntry struct {
	keyword string
	re      *regexp.Regexp
}

func newPatternCache(capacity int) *patternCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &patternCache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// get returns the matcher for kw, compiling and caching it on a miss.
func (c *patternCache) get(kw string) *regexp.Regexp {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[kw]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*patternEntry).re
	}
	re := regexp.MustCompile(`(?i)\b(` + regexp.QuoteMeta(kw) + `)\b`)
	c.items[kw] = c.lru.PushFront(&patternEntry{keyword: kw, re: re})
	if c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.items, oldest.Value.(*patternEntry).keyword)
	}
	return re
}

func (c *patternCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

var patterns = newPatternCache(maxCachedPatterns)

// keywordPattern returns a cached case-insensitive whole-word matcher for kw.
func keywordPattern(kw string) *regexp.Regexp {
	return patterns.get(kw)
}
