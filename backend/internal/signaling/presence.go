package signaling

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Presence tracks every connected participant, independently of rooms.
type Presence struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func NewPresence() *Presence {
	return &Presence{ids: make(map[string]struct{})}
}

// Add records id and reports whether the set changed.
func (p *Presence) Add(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.ids[id]; ok {
		return false
	}
	p.ids[id] = struct{}{}
	return true
}

// Remove forgets id and reports whether the set changed.
func (p *Presence) Remove(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.ids[id]; !ok {
		return false
	}
	delete(p.ids, id)
	return true
}

// List returns the connected ids in sorted order.
func (p *Presence) List() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := lo.Keys(p.ids)
	slices.Sort(out)
	return out
}

func (p *Presence) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.ids)
}
