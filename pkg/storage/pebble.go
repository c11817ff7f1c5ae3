// Package storage persists orders and match facts in pebble. Values are
// JSON; keys are short prefixes plus big-endian ids so iterator scans come
// back in id order.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/alexalidoperic/fheOtcDesk/pkg/ledger"
)

type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// keys: o:<8-byte order id>, t:<8-byte trade id>
func kOrder(id uint64) []byte { return appendID([]byte("o:"), id) }
func kTrade(id uint64) []byte { return appendID([]byte("t:"), id) }

func appendID(prefix []byte, id uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return append(prefix, b[:]...)
}

func keyUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (s *PebbleStore) PutOrder(o *ledger.Order) error {
	val, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order %d: %w", o.ID, err)
	}
	if err := s.db.Set(kOrder(o.ID), val, pebble.Sync); err != nil {
		return fmt.Errorf("put order %d: %w", o.ID, err)
	}
	return nil
}

// ApplyMatch commits both post-match orders and the trade in one batch, so a
// crash mid-match can never persist half a fill.
func (s *PebbleStore) ApplyMatch(buy, sell *ledger.Order, m *ledger.TradeMatch) error {
	b := s.db.NewBatch()
	defer b.Close()

	for _, o := range []*ledger.Order{buy, sell} {
		val, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("marshal order %d: %w", o.ID, err)
		}
		if err := b.Set(kOrder(o.ID), val, nil); err != nil {
			return fmt.Errorf("batch order %d: %w", o.ID, err)
		}
	}
	val, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal trade %d: %w", m.ID, err)
	}
	if err := b.Set(kTrade(m.ID), val, nil); err != nil {
		return fmt.Errorf("batch trade %d: %w", m.ID, err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit match %d: %w", m.ID, err)
	}
	return nil
}

func (s *PebbleStore) LoadOrders() ([]*ledger.Order, error) {
	var out []*ledger.Order
	err := s.scan([]byte("o:"), func(val []byte) error {
		var o ledger.Order
		if err := json.Unmarshal(val, &o); err != nil {
			return err
		}
		out = append(out, &o)
		return nil
	})
	return out, err
}

func (s *PebbleStore) LoadTrades() ([]*ledger.TradeMatch, error) {
	var out []*ledger.TradeMatch
	err := s.scan([]byte("t:"), func(val []byte) error {
		var m ledger.TradeMatch
		if err := json.Unmarshal(val, &m); err != nil {
			return err
		}
		out = append(out, &m)
		return nil
	})
	return out, err
}

func (s *PebbleStore) scan(prefix []byte, fn func(val []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return fmt.Errorf("decode %q: %w", iter.Key(), err)
		}
	}
	return iter.Error()
}

var _ ledger.Store = (*PebbleStore)(nil)
