// Package sequence provides per-period monotonic counters used for invoice
// numbering. Counters never repeat within a period, which is what makes the
// generated invoice numbers collision-free.
package sequence

import "context"

// Sequencer hands out the next value for a named period key, starting at 1.
type Sequencer interface {
	Next(ctx context.Context, key string) (int64, error)
}

// CounterStore is the slice of the repository the store-backed sequencer
// needs: an atomic increment on a named counter document.
type CounterStore interface {
	IncrementCounter(ctx context.Context, key string) (int64, error)
}

// StoreSequencer obtains counters from the document store itself, so a
// deployment without redis still gets unique numbers.
type StoreSequencer struct {
	counters CounterStore
}

func NewStoreSequencer(counters CounterStore) *StoreSequencer {
	return &StoreSequencer{counters: counters}
}

func (s *StoreSequencer) Next(ctx context.Context, key string) (int64, error) {
	return s.counters.IncrementCounter(ctx, key)
}
