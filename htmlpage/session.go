package htmlpage

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/bbmatyushin/medsil-equipment-base/allocation"
	"github.com/bbmatyushin/medsil-equipment-base/batchclient"
	"github.com/bbmatyushin/medsil-equipment-base/render"
)

// Session ties a parsed page to its tracker.
type Session struct {
	Page    *Page
	Tracker *allocation.Tracker
	View    *render.HTMLView
}

type SessionOptions struct {
	EnforceCeiling bool
	FetchTimeout   time.Duration
	Logger         *log.Logger
}

// Open loads the page, wires a tracker to it and runs the initial setup.
func Open(ctx context.Context, client *http.Client, pageURL string, opts SessionOptions) (*Session, error) {
	page, err := Load(ctx, client, pageURL)
	if err != nil {
		return nil, err
	}
	fetcher := batchclient.NewClient(page.BaseURL(), page.URL.Path, page.CSRFToken,
		batchclient.WithHTTPClient(page.Client()),
		batchclient.WithTimeout(opts.FetchTimeout),
		batchclient.WithLogger(opts.Logger),
	)
	view := render.NewHTMLView()

	var w allocation.Widget
	if page.Widget != nil {
		w = page.Widget
	}
	tracker := allocation.New(w, fetcher, page.Form, view,
		allocation.WithCeilingPolicy(opts.EnforceCeiling),
		allocation.WithLogger(opts.Logger),
	)
	if err := tracker.Setup(ctx); err != nil {
		return nil, fmt.Errorf("Open: setup: %w", err)
	}
	return &Session{Page: page, Tracker: tracker, View: view}, nil
}

// ChangeSelection moves parts in and out of the selector and brings the
// tracker in line with it.
func (s *Session) ChangeSelection(ctx context.Context, add, remove []string) error {
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}
	if s.Page.Widget == nil {
		return fmt.Errorf("ChangeSelection: page has no spare part selector")
	}
	for _, id := range add {
		if !s.Page.HasChoice(id) {
			return fmt.Errorf("ChangeSelection: spare part %s is not offered by the page", id)
		}
	}
	if len(add) > 0 {
		s.Page.Widget.Select(add...)
	}
	if len(remove) > 0 {
		s.Page.Widget.Deselect(remove...)
	}
	handled, err := s.Tracker.HandleSelectionChange(ctx)
	if err != nil {
		return err
	}
	if !handled {
		return fmt.Errorf("ChangeSelection: another selection change is in progress")
	}
	return nil
}

// Submit injects the allocation fields and posts the form.
func (s *Session) Submit(ctx context.Context) (*http.Response, error) {
	if err := s.Tracker.Submit(ctx); err != nil {
		return nil, err
	}
	return s.Page.Post(ctx)
}
