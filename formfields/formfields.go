// Package formfields implements the hidden-field protocol that carries spare
// part allocations between the service change page and its form processor.
package formfields

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/bbmatyushin/medsil-equipment-base/model"
)

// Prefix is shared by every allocation hidden input name.
const Prefix = "spare_part_quantities"

var ErrMalformedField = errors.New("malformed spare part field")

// Field is one hidden input.
type Field struct {
	Name  string
	Value string
}

func FieldName(i int) string {
	return fmt.Sprintf("%s[%d]", Prefix, i)
}

// Build serialises allocations into freshly indexed fields.
func Build(allocs []model.Allocation) ([]Field, error) {
	fields := make([]Field, 0, len(allocs))
	for i, a := range allocs {
		b, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("Build: marshal allocation %s: %w", a.ID, err)
		}
		fields = append(fields, Field{Name: FieldName(i), Value: string(b)})
	}
	return fields, nil
}

// ParseCommitted decodes pre-existing hidden field values. Values that are not
// valid JSON are skipped.
func ParseCommitted(values []string) []model.CommittedAllocation {
	var out []model.CommittedAllocation
	for _, v := range values {
		var c model.CommittedAllocation
		if err := json.Unmarshal([]byte(v), &c); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out
}

// FindQuantity returns the quantity of the first committed record matching
// the part and expiration. A nil expiration only matches a nil (or empty) one.
func FindQuantity(values []string, partID string, expiration *string) (float64, bool) {
	want := model.NewBatchKey(partID, expiration)
	for _, c := range ParseCommitted(values) {
		if model.NewBatchKey(c.ID, c.ExpirationDt) == want {
			return c.Quantity, true
		}
	}
	return 0, false
}

// HasPrefix reports whether an input name belongs to the protocol.
func HasPrefix(name string) bool {
	return strings.HasPrefix(name, Prefix)
}

// ParseSubmitted decodes the allocations of a posted form, ordered by their
// field index. Unlike ParseCommitted it rejects malformed values.
func ParseSubmitted(form url.Values) ([]model.Allocation, error) {
	type indexed struct {
		idx   int
		name  string
		alloc model.Allocation
	}
	var items []indexed
	for name, vals := range form {
		if !HasPrefix(name) {
			continue
		}
		idx := fieldIndex(name)
		for _, v := range vals {
			var a model.Allocation
			if err := json.Unmarshal([]byte(v), &a); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrMalformedField, name, err)
			}
			if a.ID == "" {
				return nil, fmt.Errorf("%w: %s: empty id", ErrMalformedField, name)
			}
			if a.Quantity < 0 {
				return nil, fmt.Errorf("%w: %s: negative quantity", ErrMalformedField, name)
			}
			items = append(items, indexed{idx: idx, name: name, alloc: a})
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].idx != items[j].idx {
			return items[i].idx < items[j].idx
		}
		return items[i].name < items[j].name
	})
	out := make([]model.Allocation, len(items))
	for i, it := range items {
		out[i] = it.alloc
	}
	return out, nil
}

// SortFieldNames orders field names by their numeric index so that
// "spare_part_quantities[2]" comes before "spare_part_quantities[10]". Names
// without an index go first, in string order.
func SortFieldNames(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		a, b := fieldIndex(names[i]), fieldIndex(names[j])
		if a != b {
			return a < b
		}
		return names[i] < names[j]
	})
}

func fieldIndex(name string) int {
	open := strings.IndexByte(name, '[')
	end := strings.IndexByte(name, ']')
	if open < 0 || end <= open {
		return -1
	}
	n, err := strconv.Atoi(name[open+1 : end])
	if err != nil {
		return -1
	}
	return n
}
