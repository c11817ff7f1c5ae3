package ledger

import (
	"sort"
	"sync"
)

// InstrumentRegistry tracks the instruments the desk quotes. Placement is
// rejected for unregistered symbols; everything else about an instrument is
// public, only amounts and prices are encrypted.
type InstrumentRegistry struct {
	mu      sync.RWMutex
	symbols map[string]struct{}
}

func NewInstrumentRegistry(symbols ...string) *InstrumentRegistry {
	r := &InstrumentRegistry{symbols: make(map[string]struct{}, len(symbols))}
	for _, s := range symbols {
		r.symbols[s] = struct{}{}
	}
	return r
}

func (r *InstrumentRegistry) Register(symbol string) {
	r.mu.Lock()
	r.symbols[symbol] = struct{}{}
	r.mu.Unlock()
}

func (r *InstrumentRegistry) Has(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.symbols[symbol]
	return ok
}

func (r *InstrumentRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.symbols))
	for s := range r.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
