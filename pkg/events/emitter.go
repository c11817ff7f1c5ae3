// Package events fans match facts out to external consumers. Emitters run
// after the ledger has durably applied a match; they carry ciphertext
// handles only.
package events

import (
	"context"

	"github.com/alexalidoperic/fheOtcDesk/pkg/ledger"
)

// Nop drops every match fact. Used when no downstream is configured.
type Nop struct{}

func (Nop) EmitMatch(ctx context.Context, m *ledger.TradeMatch) error { return nil }

// Multi fans one match fact out to several emitters, returning the first
// error after trying all of them.
type Multi []ledger.MatchEmitter

func (e Multi) EmitMatch(ctx context.Context, m *ledger.TradeMatch) error {
	var first error
	for _, sub := range e {
		if err := sub.EmitMatch(ctx, m); err != nil && first == nil {
			first = err
		}
	}
	return first
}
