package orchestrator

import "sync"

// paperLocks serializes pipeline runs per paper. Two runs for the same
// paper never interleave; runs for different papers proceed freely.
type paperLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPaperLocks() *paperLocks {
	return &paperLocks{locks: make(map[string]*sync.Mutex)}
}

func (p *paperLocks) lock(paperID string) func() {
	p.mu.Lock()
	m, ok := p.locks[paperID]
	if !ok {
		m = &sync.Mutex{}
		p.locks[paperID] = m
	}
	p.mu.Unlock()

	m.Lock()
	return m.Unlock
}
