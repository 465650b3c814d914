package rcnn

import (
	"context"
	"sync"

	"gorgonia.org/tensor"
)

type MemoryAnchorCache struct {
	mu      sync.RWMutex
	anchors map[string]*tensor.Dense
}

func NewMemoryAnchorCache() *MemoryAnchorCache {
	return &MemoryAnchorCache{
		anchors: make(map[string]*tensor.Dense),
	}
}

func (c *MemoryAnchorCache) Get(_ context.Context, key string) (*tensor.Dense, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	anchors, ok := c.anchors[key]
	return anchors, ok, nil
}

func (c *MemoryAnchorCache) Set(_ context.Context, key string, anchors *tensor.Dense) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchors[key] = anchors
	return nil
}

func (c *MemoryAnchorCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.anchors)
}
