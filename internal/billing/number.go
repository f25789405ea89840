package billing

import (
	"context"
	"fmt"
	"time"

	"agencydesk/backend/internal/sequence"
)

// NumberPrefix is the human-readable invoice number prefix.
const NumberPrefix = "INV"

// NumberGenerator issues invoice numbers of the form INV-YYYYMM-NNN, where
// NNN is a per-month counter taken from the sequencer. The counter makes the
// number unique within a prefix and month; the store-assigned id remains the
// primary key regardless.
type NumberGenerator struct {
	seq sequence.Sequencer
	now func() time.Time
}

func NewNumberGenerator(seq sequence.Sequencer) *NumberGenerator {
	return &NumberGenerator{seq: seq, now: func() time.Time { return time.Now().UTC() }}
}

// Next issues the next invoice number for the current month.
func (g *NumberGenerator) Next(ctx context.Context) (string, error) {
	period := g.now().Format("200601")
	n, err := g.seq.Next(ctx, fmt.Sprintf("%s-%s", NumberPrefix, period))
	if err != nil {
		return "", fmt.Errorf("next invoice sequence: %w", err)
	}
	// Pads to three digits; months with more than 999 invoices keep counting
	// without wrapping.
	return fmt.Sprintf("%s-%s-%03d", NumberPrefix, period, n), nil
}
