// Package allocation keeps the spare part batches of a service record in sync
// with the part selection widget and turns the operator's quantities into the
// hidden fields posted with the service form.
package allocation

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bbmatyushin/medsil-equipment-base/formfields"
	"github.com/bbmatyushin/medsil-equipment-base/model"
)

// Widget is the multi-select whose selected options decide which parts have
// batches on the page.
type Widget interface {
	SelectedPartIDs(ctx context.Context) ([]string, error)
	// Changes fires on programmatic and user-driven selection changes.
	Changes() <-chan struct{}
}

// Fetcher loads the batches of one part for the current service record.
type Fetcher interface {
	FetchBatches(ctx context.Context, partID string) ([]model.BatchDescriptor, error)
}

// Form gives access to the hidden inputs of the service form.
type Form interface {
	HiddenValues(ctx context.Context, prefix string) ([]string, error)
	ReplaceHidden(ctx context.Context, prefix string, fields []formfields.Field) error
}

// View displays one row per batch.
type View interface {
	RenderRows(ctx context.Context, rows []Row) error
	UpdateRemaining(ctx context.Context, key model.BatchKey, remaining float64) error
}

// Row is what a view needs to draw a batch.
type Row struct {
	Key       model.BatchKey
	Label     string
	Remaining float64
	Current   float64
	Max       float64
}

type Option func(*Tracker)

// WithCeilingPolicy makes Submit fail when a quantity exceeds the stock
// headroom of its batch. Off by default.
func WithCeilingPolicy(enforce bool) Option {
	return func(t *Tracker) { t.enforceCeiling = enforce }
}

func WithLogger(l *log.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

func WithPlaceholderLabel(fn func(partID string) string) Option {
	return func(t *Tracker) {
		if fn != nil {
			t.placeholderLabel = fn
		}
	}
}

func defaultPlaceholderLabel(partID string) string {
	return fmt.Sprintf("Spare part with ID: %s not found in supplies", partID)
}

// Tracker owns the batch registry of one service form.
type Tracker struct {
	widget  Widget
	fetcher Fetcher
	form    Form
	view    View

	enforceCeiling   bool
	logger           *log.Logger
	placeholderLabel func(string) string

	busy atomic.Bool

	mu       sync.RWMutex
	order    []model.BatchKey
	batches  map[model.BatchKey]*model.Batch
	original map[model.BatchKey]float64
	current  map[model.BatchKey]float64
	groups   map[string][]model.BatchKey
}

func New(widget Widget, fetcher Fetcher, form Form, view View, opts ...Option) *Tracker {
	t := &Tracker{
		widget:           widget,
		fetcher:          fetcher,
		form:             form,
		view:             view,
		logger:           log.Default(),
		placeholderLabel: defaultPlaceholderLabel,
		batches:          make(map[model.BatchKey]*model.Batch),
		original:         make(map[model.BatchKey]float64),
		current:          make(map[model.BatchKey]float64),
		groups:           make(map[string][]model.BatchKey),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Setup registers the batches of every part already selected and renders
// them. Without a widget the page does not use the feature and Setup does
// nothing.
func (t *Tracker) Setup(ctx context.Context) error {
	if t.widget == nil {
		t.logger.Printf("WARN: spare part select element not found")
		return nil
	}

	ids, err := t.widget.SelectedPartIDs(ctx)
	if err != nil {
		t.logger.Printf("ERROR: failed to read spare part selection: %v", err)
		return nil
	}
	t.logger.Printf("Loading initial data for %d selected spare parts", len(ids))

	hidden := t.hiddenValues(ctx)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.mu.RLock()
		_, loaded := t.groups[id]
		t.mu.RUnlock()
		if loaded {
			continue
		}
		t.loadPart(ctx, id, hidden)
	}

	t.mu.RLock()
	n := len(t.batches)
	t.mu.RUnlock()
	t.logger.Printf("Loaded %d spare part batches", n)

	return t.render(ctx)
}

// HandleSelectionChange brings the registry in line with the widget. It
// returns false without doing anything when a previous call is still running.
func (t *Tracker) HandleSelectionChange(ctx context.Context) (bool, error) {
	if t.widget == nil {
		return false, nil
	}
	if !t.busy.CompareAndSwap(false, true) {
		t.logger.Printf("Already updating, skipping selection change")
		return false, nil
	}
	defer t.busy.Store(false)

	ids, err := t.widget.SelectedPartIDs(ctx)
	if err != nil {
		return true, fmt.Errorf("HandleSelectionChange: read selection: %w", err)
	}

	present := make(map[string]bool, len(ids))
	var hidden []string
	hiddenRead := false
	for _, id := range ids {
		present[id] = true

		t.mu.RLock()
		_, loaded := t.groups[id]
		t.mu.RUnlock()
		if loaded {
			continue
		}
		if !hiddenRead {
			hidden = t.hiddenValues(ctx)
			hiddenRead = true
		}
		t.logger.Printf("Loading new spare part: %s", id)
		t.loadPart(ctx, id, hidden)
	}

	t.mu.Lock()
	for id, keys := range t.groups {
		if present[id] {
			continue
		}
		t.logger.Printf("Removing spare part group: %s", id)
		for _, k := range keys {
			t.removeLocked(k)
		}
		delete(t.groups, id)
	}
	n := len(t.batches)
	t.mu.Unlock()
	t.logger.Printf("Current spare part batch count: %d", n)

	return true, t.render(ctx)
}

// Busy reports whether a selection change is being handled.
func (t *Tracker) Busy() bool {
	return t.busy.Load()
}

// Run sets the tracker up and then handles selection changes one at a time
// until ctx is done or the widget stops sending.
func (t *Tracker) Run(ctx context.Context) error {
	if err := t.Setup(ctx); err != nil {
		return err
	}
	if t.widget == nil {
		return nil
	}
	changes := t.widget.Changes()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			if _, err := t.HandleSelectionChange(ctx); err != nil {
				t.logger.Printf("ERROR: %v", err)
			}
		}
	}
}

func (t *Tracker) loadPart(ctx context.Context, partID string, hidden []string) {
	descs := t.fetch(ctx, partID)
	if len(descs) == 0 {
		descs = t.placeholders(partID, hidden)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var group []model.BatchKey
	for _, d := range descs {
		key := model.NewBatchKey(partID, d.ExpirationDt)
		if _, exists := t.batches[key]; exists {
			continue
		}

		existing, found := formfields.FindQuantity(hidden, partID, d.ExpirationDt)
		original := existing
		if !found && d.ServicePartCount != nil {
			original = *d.ServicePartCount
		}
		initial := existing
		if d.ServicePartCount != nil {
			initial = *d.ServicePartCount
		}

		t.batches[key] = &model.Batch{
			Key:       key,
			PartID:    partID,
			Label:     d.Name,
			Available: d.Quantity,
		}
		t.original[key] = original
		t.current[key] = clampQuantity(initial)
		t.order = append(t.order, key)
		group = append(group, key)

		t.logger.Printf("Loaded spare part batch: %s, available: %g, existing: %g, initial: %g",
			d.Name, d.Quantity, original, initial)
	}
	if len(group) > 0 {
		t.groups[partID] = append(t.groups[partID], group...)
	}
}

// placeholders stands in for a part whose batches could not be loaded: one
// undated row plus a row for every committed record of the part. They carry
// no service count, so seeding takes the committed quantity for both original
// and current and a save posts it back unchanged.
func (t *Tracker) placeholders(partID string, hidden []string) []model.BatchDescriptor {
	label := t.placeholderLabel(partID)
	descs := []model.BatchDescriptor{{ID: partID, Name: label}}
	for _, c := range formfields.ParseCommitted(hidden) {
		if c.ID != partID || c.ExpirationDt == nil || *c.ExpirationDt == "" {
			continue
		}
		exp := *c.ExpirationDt
		descs = append(descs, model.BatchDescriptor{
			ID:           partID,
			Name:         fmt.Sprintf("%s (exp. %s)", label, exp),
			ExpirationDt: &exp,
		})
	}
	if len(descs) > 1 {
		t.logger.Printf("WARN: keeping %d committed batches of spare part %s without stock data", len(descs)-1, partID)
	}
	return descs
}

func (t *Tracker) fetch(ctx context.Context, partID string) []model.BatchDescriptor {
	if t.fetcher == nil {
		return nil
	}
	descs, err := t.fetcher.FetchBatches(ctx, partID)
	if err != nil {
		t.logger.Printf("ERROR: fetching spare part %s: %v", partID, err)
		return nil
	}
	return descs
}

func (t *Tracker) hiddenValues(ctx context.Context) []string {
	if t.form == nil {
		return nil
	}
	vals, err := t.form.HiddenValues(ctx, formfields.Prefix)
	if err != nil {
		t.logger.Printf("WARN: reading existing spare part fields: %v", err)
		return nil
	}
	return vals
}

func (t *Tracker) removeLocked(key model.BatchKey) {
	delete(t.batches, key)
	delete(t.original, key)
	delete(t.current, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *Tracker) render(ctx context.Context) error {
	if t.view == nil {
		return nil
	}
	return t.view.RenderRows(ctx, t.Rows())
}

// Rows returns the display rows in registration order.
func (t *Tracker) Rows() []Row {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rows := make([]Row, 0, len(t.order))
	for _, k := range t.order {
		b := t.batches[k]
		rows = append(rows, Row{
			Key:       k,
			Label:     b.Label,
			Remaining: t.remainingLocked(k),
			Current:   t.current[k],
			Max:       b.Available + t.original[k],
		})
	}
	return rows
}

// SetQuantity records an operator edit and refreshes that row's remaining
// figure only.
func (t *Tracker) SetQuantity(ctx context.Context, key model.BatchKey, qty float64) error {
	qty = clampQuantity(qty)
	t.mu.Lock()
	if _, ok := t.batches[key]; !ok {
		t.mu.Unlock()
		return fmt.Errorf("SetQuantity: unknown batch %s", key)
	}
	t.current[key] = qty
	remaining := t.remainingLocked(key)
	t.mu.Unlock()

	if t.view == nil {
		return nil
	}
	return t.view.UpdateRemaining(ctx, key, remaining)
}

// SetQuantityText parses raw input the way a number field is read: anything
// that is not a number counts as zero.
func (t *Tracker) SetQuantityText(ctx context.Context, key model.BatchKey, text string) error {
	return t.SetQuantity(ctx, key, ParseQuantity(text))
}

// ParseQuantity reads the leading decimal number of s; 0 when there is none.
func ParseQuantity(s string) float64 {
	s = strings.TrimSpace(s)
	end := 0
	seenDigit, seenDot, seenExp := false, false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			seenDigit = true
			end = i + 1
		case (c == '+' || c == '-') && (i == 0 || s[i-1] == 'e' || s[i-1] == 'E'):
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
			if seenDigit {
				end = i + 1
			}
		case (c == 'e' || c == 'E') && seenDigit && !seenExp:
			seenExp = true
		default:
			i = len(s)
		}
	}
	if !seenDigit {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s[:end], "."), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func clampQuantity(q float64) float64 {
	if math.IsNaN(q) || q < 0 {
		return 0
	}
	return q
}

// Remaining is the figure shown next to a batch:
// max(0, available - current + original).
func (t *Tracker) Remaining(key model.BatchKey) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.remainingLocked(key)
}

func (t *Tracker) remainingLocked(key model.BatchKey) float64 {
	b, ok := t.batches[key]
	if !ok {
		return 0
	}
	return math.Max(0, b.Available-t.current[key]+t.original[key])
}

// MaxAllowed is the largest quantity that fits the stock headroom of a batch.
func (t *Tracker) MaxAllowed(key model.BatchKey) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.batches[key]
	if !ok {
		return 0
	}
	return b.Available + t.original[key]
}

// Batches returns a copy of the registry in registration order.
func (t *Tracker) Batches() []model.Batch {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.Batch, 0, len(t.order))
	for _, k := range t.order {
		b := *t.batches[k]
		b.Original = t.original[k]
		b.Current = t.current[k]
		out = append(out, b)
	}
	return out
}

// Groups returns the batch keys of every selected part.
func (t *Tracker) Groups() map[string][]model.BatchKey {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string][]model.BatchKey, len(t.groups))
	for id, keys := range t.groups {
		out[id] = append([]model.BatchKey(nil), keys...)
	}
	return out
}

// Snapshot lists every batch with a positive quantity.
func (t *Tracker) Snapshot() []model.Allocation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []model.Allocation
	for _, k := range t.order {
		q := t.current[k]
		if q <= 0 {
			continue
		}
		out = append(out, model.Allocation{
			ID:               t.batches[k].PartID,
			Quantity:         q,
			OriginalQuantity: t.original[k],
			ExpirationDt:     k.ExpirationPtr(),
		})
	}
	return out
}
