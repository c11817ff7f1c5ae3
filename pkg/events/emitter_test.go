package events

import (
	"context"
	"errors"
	"testing"

	"github.com/alexalidoperic/fheOtcDesk/pkg/ledger"
)

type countEmitter struct {
	calls int
	err   error
}

func (c *countEmitter) EmitMatch(ctx context.Context, m *ledger.TradeMatch) error {
	c.calls++
	return c.err
}

func TestMultiFansOutAndKeepsFirstError(t *testing.T) {
	errA := errors.New("a down")
	a := &countEmitter{err: errA}
	b := &countEmitter{}
	c := &countEmitter{err: errors.New("c down")}

	m := Multi{a, b, c}
	err := m.EmitMatch(context.Background(), &ledger.TradeMatch{ID: 1})
	if !errors.Is(err, errA) {
		t.Errorf("err = %v, want first error %v", err, errA)
	}
	for i, e := range []*countEmitter{a, b, c} {
		if e.calls != 1 {
			t.Errorf("emitter %d called %d times, want 1", i, e.calls)
		}
	}
}

func TestNop(t *testing.T) {
	if err := (Nop{}).EmitMatch(context.Background(), &ledger.TradeMatch{ID: 1}); err != nil {
		t.Errorf("Nop.EmitMatch: %v", err)
	}
}
