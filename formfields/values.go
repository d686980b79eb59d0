package formfields

import (
	"context"
	"net/url"
	"strings"
	"sync"
)

// Values is an in-memory form backed by url.Values. It satisfies the form
// collaborator of the allocation tracker and is what the headless page
// adapter posts back to the server.
type Values struct {
	mu sync.Mutex
	v  url.Values
}

func NewValues(v url.Values) *Values {
	if v == nil {
		v = url.Values{}
	}
	return &Values{v: v}
}

// HiddenValues returns the values of every field whose name starts with
// prefix, in field index order.
func (f *Values) HiddenValues(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for name := range f.v {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	SortFieldNames(names)
	var out []string
	for _, name := range names {
		out = append(out, f.v[name]...)
	}
	return out, nil
}

// ReplaceHidden drops every prefixed field and sets the given ones.
func (f *Values) ReplaceHidden(_ context.Context, prefix string, fields []Field) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name := range f.v {
		if strings.HasPrefix(name, prefix) {
			f.v.Del(name)
		}
	}
	for _, fld := range fields {
		f.v.Add(fld.Name, fld.Value)
	}
	return nil
}

func (f *Values) Set(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.v.Set(name, value)
}

// Encode returns a copy of the form values.
func (f *Values) Encode() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(url.Values, len(f.v))
	for k, vs := range f.v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// Count returns how many values are stored under prefixed names.
func (f *Values) Count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for name, vs := range f.v {
		if strings.HasPrefix(name, prefix) {
			n += len(vs)
		}
	}
	return n
}
