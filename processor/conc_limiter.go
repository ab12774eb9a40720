package processor

import (
	"sync"
)

// ConcLimiter caps how many units of work run at once. Increase blocks
// until a slot frees up; Wait blocks until every started unit called
// Decrease.
type ConcLimiter struct {
	wg   sync.WaitGroup
	pool chan struct{}
}

func NewConcLimiter(cLevel int) *ConcLimiter {
	if cLevel < 1 {
		cLevel = 1
	}
	return &ConcLimiter{pool: make(chan struct{}, cLevel)}
}

func (c *ConcLimiter) Increase() {
	c.wg.Add(1)
	c.pool <- struct{}{}
}

func (c *ConcLimiter) Decrease() {
	select {
	case <-c.pool:
		c.wg.Done()
	default:
	}
}

func (c *ConcLimiter) Wait() {
	c.wg.Wait()
}
