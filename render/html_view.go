package render

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/bbmatyushin/medsil-equipment-base/allocation"
	"github.com/bbmatyushin/medsil-equipment-base/model"
)

// HTMLView keeps the rendered spare parts list in memory. Full renders
// replace the document; remaining updates patch a single row.
type HTMLView struct {
	mu      sync.Mutex
	doc     *goquery.Document
	renders int
	patches int
}

func NewHTMLView() *HTMLView {
	return &HTMLView{}
}

func (v *HTMLView) RenderRows(_ context.Context, rows []allocation.Row) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(RenderAllocationBlock(rows)))
	if err != nil {
		return fmt.Errorf("RenderRows: %w", err)
	}
	v.mu.Lock()
	v.doc = doc
	v.renders++
	v.mu.Unlock()
	return nil
}

func (v *HTMLView) UpdateRemaining(_ context.Context, key model.BatchKey, remaining float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.doc == nil {
		return nil
	}
	row := v.row(key)
	if row.Length() == 0 {
		return nil
	}
	row.Find("span.available-qty").SetText(FormatQuantity(remaining))
	v.patches++
	return nil
}

func (v *HTMLView) row(key model.BatchKey) *goquery.Selection {
	want := key.String()
	return v.doc.Find("div.spare-part-row").FilterFunction(func(_ int, s *goquery.Selection) bool {
		k, _ := s.Attr("data-unique-key")
		return k == want
	})
}

// HTML returns the current list markup.
func (v *HTMLView) HTML() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.doc == nil {
		return ""
	}
	out, err := goquery.OuterHtml(v.doc.Find("div.custom-choice-spare_part"))
	if err != nil {
		return ""
	}
	return out
}

// RemainingText returns the displayed remaining figure of a row.
func (v *HTMLView) RemainingText(key model.BatchKey) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.doc == nil {
		return "", false
	}
	row := v.row(key)
	if row.Length() == 0 {
		return "", false
	}
	return row.Find("span.available-qty").Text(), true
}

// RowKeys lists the rendered rows in document order.
func (v *HTMLView) RowKeys() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.doc == nil {
		return nil
	}
	var keys []string
	v.doc.Find("div.spare-part-row").Each(func(_ int, s *goquery.Selection) {
		k, _ := s.Attr("data-unique-key")
		keys = append(keys, k)
	})
	return keys
}

// Counts reports how many full renders and single-row patches happened.
func (v *HTMLView) Counts() (renders, patches int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.renders, v.patches
}
