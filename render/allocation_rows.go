package render

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/bbmatyushin/medsil-equipment-base/allocation"
)

// MaxInputQuantity is the upper bound of the quantity input.
const MaxInputQuantity = 100000

// FormatQuantity prints whole numbers without a fraction.
func FormatQuantity(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

// RenderAllocationRows builds the content of the selected spare parts list.
func RenderAllocationRows(rows []allocation.Row) string {
	var sb strings.Builder
	for _, r := range rows {
		key := html.EscapeString(r.Key.String())
		sb.WriteString(fmt.Sprintf(`<div class="spare-part-row" data-unique-key="%s">`, key))
		sb.WriteString(fmt.Sprintf(`<div class="spare-part-name"><strong>%s</strong></div>`, html.EscapeString(r.Label)))
		sb.WriteString(fmt.Sprintf(`<div class="spare-part-available">Available: <span class="available-qty">%s</span> pcs.</div>`, FormatQuantity(r.Remaining)))
		sb.WriteString(`<div class="spare-part-quantity">`)
		sb.WriteString(fmt.Sprintf(`<label for="qty-%s">Quantity:</label>`, key))
		sb.WriteString(fmt.Sprintf(`<input type="number" id="qty-%s" value="%s" min="0" max="%d" data-unique-key="%s" data-max-allowed="%s">`,
			key, FormatQuantity(r.Current), MaxInputQuantity, key, FormatQuantity(r.Max)))
		sb.WriteString(`</div>`)
		sb.WriteString(`</div>`)
	}
	return sb.String()
}

// RenderAllocationBlock wraps the rows into the block inserted after the
// spare part form row.
func RenderAllocationBlock(rows []allocation.Row) string {
	var sb strings.Builder
	sb.WriteString(`<div class="form-row custom-choice-spare_part"><div>`)
	sb.WriteString(`<label>Selected spare parts:</label>`)
	sb.WriteString(`<div id="selected-spare-parts"><div class="spare-parts-list">`)
	sb.WriteString(RenderAllocationRows(rows))
	sb.WriteString(`</div></div></div></div>`)
	return sb.String()
}
