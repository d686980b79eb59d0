package render

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/bbmatyushin/medsil-equipment-base/model"
)

// ServicePage is the data of the service change page.
type ServicePage struct {
	ServiceID   string
	Description string
	CSRFToken   string
	// Parts is the whole spare part directory; the ones in Selected go to the
	// chosen side of the selector.
	Parts       []model.SparePart
	Selected    map[string]bool
	Committed   []model.CommittedAllocation
	Allocations []model.ServiceAllocationRow
	Message     string
}

// RenderServicePage produces the change form of a service record. The
// allocation block itself is filled in by the tracker after the
// field-spare_part row.
func RenderServicePage(p ServicePage) string {
	var sb strings.Builder
	id := html.EscapeString(p.ServiceID)

	sb.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8">`)
	sb.WriteString(fmt.Sprintf(`<title>Change service %s</title></head><body>`, id))
	if p.Message != "" {
		sb.WriteString(fmt.Sprintf(`<ul class="messagelist"><li>%s</li></ul>`, html.EscapeString(p.Message)))
	}
	sb.WriteString(fmt.Sprintf(`<form id="service_form" method="post" action="/admin/service/%s/change/">`, id))
	sb.WriteString(fmt.Sprintf(`<input type="hidden" name="csrfmiddlewaretoken" value="%s">`, html.EscapeString(p.CSRFToken)))

	sb.WriteString(`<div class="form-row field-description">`)
	sb.WriteString(`<label for="id_description">Description:</label>`)
	sb.WriteString(fmt.Sprintf(`<input type="text" name="description" id="id_description" value="%s">`, html.EscapeString(p.Description)))
	sb.WriteString(`</div>`)

	sb.WriteString(`<div class="form-row field-spare_part"><div class="selector">`)
	sb.WriteString(`<select id="id_spare_part_from" multiple>`)
	for _, part := range p.Parts {
		if p.Selected[part.ID] {
			continue
		}
		sb.WriteString(fmt.Sprintf(`<option value="%s">%s</option>`, html.EscapeString(part.ID), html.EscapeString(part.DisplayName())))
	}
	sb.WriteString(`</select>`)
	sb.WriteString(`<select name="spare_part" id="id_spare_part_to" multiple>`)
	for _, part := range p.Parts {
		if !p.Selected[part.ID] {
			continue
		}
		sb.WriteString(fmt.Sprintf(`<option value="%s" selected>%s</option>`, html.EscapeString(part.ID), html.EscapeString(part.DisplayName())))
	}
	sb.WriteString(`</select></div></div>`)

	for i, c := range p.Committed {
		b, err := json.Marshal(c)
		if err != nil {
			continue
		}
		sb.WriteString(fmt.Sprintf(`<input type="hidden" name="spare_part_quantities[%d]" value="%s">`, i, html.EscapeString(string(b))))
	}

	sb.WriteString(`<div class="form-row custom-choice-spare_part"><div>`)
	sb.WriteString(`<label>Selected spare parts:</label>`)
	sb.WriteString(`<div id="selected-spare-parts"><div class="spare-parts-list"></div></div>`)
	sb.WriteString(`</div></div>`)

	sb.WriteString(`<div class="submit-row"><input type="submit" value="Save" name="_save"></div>`)
	sb.WriteString(`</form>`)

	sb.WriteString(`<table class="committed-spare-parts">`)
	sb.WriteString(RenderAllocationTableHTML(p.Allocations))
	sb.WriteString(`</table>`)

	sb.WriteString(`</body></html>`)
	return sb.String()
}

// RenderAllocationTableHTML builds the thead/tbody of the committed
// allocations table.
func RenderAllocationTableHTML(rows []model.ServiceAllocationRow) string {
	var sb strings.Builder

	sb.WriteString(`<thead><tr>`)
	sb.WriteString(`<th class="col-part">Spare part</th>`)
	sb.WriteString(`<th class="col-article">Article</th>`)
	sb.WriteString(`<th class="col-expiry">Expiration</th>`)
	sb.WriteString(`<th class="col-qty">Quantity</th>`)
	sb.WriteString(`<th class="col-unit">Unit</th>`)
	sb.WriteString(`</tr></thead>`)

	sb.WriteString(`<tbody>`)
	if len(rows) == 0 {
		sb.WriteString(`<tr><td colspan="5">No spare parts allocated.</td></tr>`)
	} else {
		for _, r := range rows {
			expiry := "-"
			if r.ExpirationDt.Valid && r.ExpirationDt.String != "" {
				expiry = r.ExpirationDt.String
			}
			sb.WriteString(`<tr>`)
			sb.WriteString(fmt.Sprintf(`<td class="col-part">%s</td>`, html.EscapeString(r.PartName)))
			sb.WriteString(fmt.Sprintf(`<td class="col-article">%s</td>`, html.EscapeString(r.Article.String)))
			sb.WriteString(fmt.Sprintf(`<td class="center col-expiry">%s</td>`, html.EscapeString(expiry)))
			sb.WriteString(fmt.Sprintf(`<td class="right col-qty">%s</td>`, FormatQuantity(r.Quantity)))
			sb.WriteString(fmt.Sprintf(`<td class="center col-unit">%s</td>`, html.EscapeString(r.Unit)))
			sb.WriteString(`</tr>`)
		}
	}
	sb.WriteString(`</tbody>`)

	return sb.String()
}

// RenderServiceIndex lists the service records with a button that creates a
// new one.
func RenderServiceIndex(services []model.Service, csrfToken string) string {
	var sb strings.Builder
	sb.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>Services</title></head><body>`)
	sb.WriteString(`<form method="post" action="/admin/service/add/">`)
	sb.WriteString(fmt.Sprintf(`<input type="hidden" name="csrfmiddlewaretoken" value="%s">`, html.EscapeString(csrfToken)))
	sb.WriteString(`<input type="submit" value="Add service"></form>`)
	sb.WriteString(`<table class="services"><thead><tr><th>Service</th><th>Description</th><th>Created</th></tr></thead><tbody>`)
	if len(services) == 0 {
		sb.WriteString(`<tr><td colspan="3">No services yet.</td></tr>`)
	}
	for _, s := range services {
		id := html.EscapeString(s.ID)
		sb.WriteString(`<tr>`)
		sb.WriteString(fmt.Sprintf(`<td><a href="/admin/service/%s/change/">%s</a></td>`, id, id))
		sb.WriteString(fmt.Sprintf(`<td>%s</td>`, html.EscapeString(s.Description)))
		sb.WriteString(fmt.Sprintf(`<td>%s</td>`, html.EscapeString(s.CreatedAt)))
		sb.WriteString(`</tr>`)
	}
	sb.WriteString(`</tbody></table></body></html>`)
	return sb.String()
}
