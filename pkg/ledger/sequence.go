package ledger

import "sync/atomic"

// Sequencer hands out strictly monotonic ids. The ledger instance is the sole
// owner of id allocation; after a restart it is reseeded from the highest
// persisted id.
type Sequencer struct {
	next atomic.Uint64
}

func NewSequencer(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}

// Reseed bumps the sequencer to at least v. Used during store replay.
func (s *Sequencer) Reseed(v uint64) {
	for {
		cur := s.next.Load()
		if cur >= v || s.next.CompareAndSwap(cur, v) {
			return
		}
	}
}
