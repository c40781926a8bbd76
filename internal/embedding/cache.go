package embedding

import (
	"container/list"
	"sync"
)

// vectorCache is a fixed-capacity LRU of embedding vectors keyed by input
// text. The remote and ONNX embedders sit behind it so re-ingesting unchanged
// content does not embed the same chunk twice.
type vectorCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front is most recently used
}

type vectorEntry struct {
	text   string
	vector []float32
}

func newVectorCache(capacity int) *vectorCache {
	return &vectorCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// get returns the cached vector for text. A hit refreshes recency, so even
// the read path takes the exclusive lock.
func (c *vectorCache) get(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[text]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*vectorEntry).vector, true
}

// put stores the vector for text, evicting the least recently used entry once
// the cache is over capacity.
func (c *vectorCache) put(text string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[text]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*vectorEntry).vector = vector
		return
	}

	c.entries[text] = c.order.PushFront(&vectorEntry{text: text, vector: vector})
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*vectorEntry).text)
	}
}

func (c *vectorCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
