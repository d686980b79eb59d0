package allocation

import (
	"context"
	"fmt"
	"strings"

	"github.com/bbmatyushin/medsil-equipment-base/formfields"
	"github.com/bbmatyushin/medsil-equipment-base/model"
)

// Overdraw describes a batch whose quantity exceeds its stock headroom.
type Overdraw struct {
	Key       model.BatchKey
	Requested float64
	Max       float64
}

// CeilingError lists every overdrawn batch.
type CeilingError struct {
	Batches []Overdraw
}

func (e *CeilingError) Error() string {
	parts := make([]string, len(e.Batches))
	for i, o := range e.Batches {
		parts[i] = fmt.Sprintf("%s: %g > %g", o.Key, o.Requested, o.Max)
	}
	return "spare part quantities exceed available stock: " + strings.Join(parts, ", ")
}

// Validate checks every batch against available + original. It is always
// callable; Submit only acts on it when the ceiling policy is on.
func (t *Tracker) Validate() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var over []Overdraw
	for _, k := range t.order {
		max := t.batches[k].Available + t.original[k]
		if q := t.current[k]; q > max {
			t.logger.Printf("ERROR: spare part batch %s: %g > %g", k, q, max)
			over = append(over, Overdraw{Key: k, Requested: q, Max: max})
		}
	}
	if len(over) > 0 {
		return &CeilingError{Batches: over}
	}
	return nil
}

// Submit replaces the allocation hidden fields of the form with the current
// snapshot. The caller posts the form afterwards.
func (t *Tracker) Submit(ctx context.Context) error {
	if t.form == nil {
		return nil
	}
	fields, err := formfields.Build(t.Snapshot())
	if err != nil {
		return fmt.Errorf("Submit: %w", err)
	}
	if err := t.form.ReplaceHidden(ctx, formfields.Prefix, fields); err != nil {
		return fmt.Errorf("Submit: replace hidden fields: %w", err)
	}
	t.logger.Printf("Injected %d spare part fields", len(fields))

	if t.enforceCeiling {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}
