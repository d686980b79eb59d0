// Package automation runs the allocation tracker inside a live browser page
// driven by go-rod.
package automation

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/bbmatyushin/medsil-equipment-base/allocation"
	"github.com/bbmatyushin/medsil-equipment-base/batchclient"
	"github.com/bbmatyushin/medsil-equipment-base/formfields"
	"github.com/bbmatyushin/medsil-equipment-base/model"
	"github.com/bbmatyushin/medsil-equipment-base/render"
)

const (
	selectSelector = "select#id_spare_part_to"
	choiceSelector = "select#id_spare_part_from"
	anchorSelector = ".form-row.field-spare_part"
	csrfCookieName = "csrftoken"
	csrfFieldName  = "csrfmiddlewaretoken"

	pollInterval = 200 * time.Millisecond
)

type Options struct {
	Headless       bool
	EnforceCeiling bool
	FetchTimeout   time.Duration
	Logger         *log.Logger
}

// Session is one change page open in a browser. It serves as the tracker's
// widget, form and view.
type Session struct {
	Tracker *allocation.Tracker

	browser *rod.Browser
	page    *rod.Page
	logger  *log.Logger

	changes chan struct{}

	mu          sync.Mutex
	lastChanges int
}

// Open launches a browser, loads pageURL and runs the tracker's setup
// against it.
func Open(ctx context.Context, pageURL string, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("Open: invalid url %q: %w", pageURL, err)
	}

	controlURL, err := launcher.New().
		Headless(opts.Headless).
		Leakless(false).
		Launch()
	if err != nil {
		return nil, fmt.Errorf("Open: launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("Open: connect browser: %w", err)
	}

	logger.Printf("Opening change page %s", pageURL)
	page, err := browser.Page(proto.TargetCreateTarget{URL: pageURL})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("Open: open page: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		browser.Close()
		return nil, fmt.Errorf("Open: wait load: %w", err)
	}

	s := &Session{
		browser: browser,
		page:    page,
		logger:  logger,
		changes: make(chan struct{}, 1),
	}

	field := ""
	if res, err := page.Eval(jsCSRFField, csrfFieldName); err == nil {
		field = res.Value.Str()
	}
	cookies, _ := page.Cookies([]string{pageURL})
	csrf := pickCSRFToken(field, cookies)
	fetcher := batchclient.NewClient(u.Scheme+"://"+u.Host, u.Path, csrf,
		batchclient.WithTimeout(opts.FetchTimeout),
		batchclient.WithLogger(logger),
	)

	var w allocation.Widget
	if s.hasSelector() {
		if _, err := page.Eval(jsInstallWatch, selectSelector); err != nil {
			browser.Close()
			return nil, fmt.Errorf("Open: install watcher: %w", err)
		}
		w = s
	}
	s.Tracker = allocation.New(w, fetcher, s, s,
		allocation.WithCeilingPolicy(opts.EnforceCeiling),
		allocation.WithLogger(logger),
	)
	if err := s.Tracker.Setup(ctx); err != nil {
		browser.Close()
		return nil, fmt.Errorf("Open: setup: %w", err)
	}
	return s, nil
}

// pickCSRFToken prefers the token rendered into the form and falls back to
// the csrftoken cookie.
func pickCSRFToken(field string, cookies []*proto.NetworkCookie) string {
	if field != "" {
		return field
	}
	for _, c := range cookies {
		if c != nil && c.Name == csrfCookieName {
			return c.Value
		}
	}
	return ""
}

func (s *Session) hasSelector() bool {
	for _, sel := range []string{selectSelector, anchorSelector} {
		ok, _, err := s.page.Has(sel)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

func (s *Session) Close() error {
	return s.browser.Close()
}

// Run follows selection changes and quantity edits made in the page until
// ctx is done.
func (s *Session) Run(ctx context.Context) error {
	go s.watch(ctx)
	return s.Tracker.Run(ctx)
}

func (s *Session) watch(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		res, err := s.page.Context(ctx).Eval(jsPoll)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Printf("WARN: polling page: %v", err)
			continue
		}

		n := res.Value.Get("changes").Int()
		s.mu.Lock()
		changed := n != s.lastChanges
		s.lastChanges = n
		s.mu.Unlock()
		if changed {
			select {
			case s.changes <- struct{}{}:
			default:
			}
		}

		for _, e := range res.Value.Get("edits").Arr() {
			pair := e.Arr()
			if len(pair) < 2 {
				continue
			}
			key, ok := s.lookup(pair[0].Str())
			if !ok {
				continue
			}
			if err := s.Tracker.SetQuantityText(ctx, key, pair[1].Str()); err != nil {
				s.logger.Printf("WARN: %v", err)
			}
		}
	}
}

// Select moves parts to the chosen side of the page's selector, as an
// operator would. The watcher started by Run picks the change up.
func (s *Session) Select(ctx context.Context, ids ...string) error {
	chosen, err := s.moveOptions(ctx, ids, true)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if !chosen[id] {
			return fmt.Errorf("Select: spare part %s is not offered by the page", id)
		}
	}
	return nil
}

// Deselect moves parts back out of the chosen side.
func (s *Session) Deselect(ctx context.Context, ids ...string) error {
	_, err := s.moveOptions(ctx, ids, false)
	return err
}

func (s *Session) moveOptions(ctx context.Context, ids []string, into bool) (map[string]bool, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if !s.hasSelector() {
		return nil, fmt.Errorf("page has no spare part selector")
	}
	res, err := s.page.Context(ctx).Eval(jsMoveOptions, choiceSelector, selectSelector, ids, into)
	if err != nil {
		return nil, fmt.Errorf("move options: %w", err)
	}
	chosen := make(map[string]bool)
	for _, v := range res.Value.Arr() {
		chosen[v.Str()] = true
	}
	return chosen, nil
}

// WaitSynced blocks until the tracker holds exactly the parts chosen in the
// page and no selection change is running.
func (s *Session) WaitSynced(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		ids, err := s.SelectedPartIDs(ctx)
		if err == nil && !s.Tracker.Busy() && sameParts(ids, s.Tracker.Groups()) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("WaitSynced: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func sameParts(ids []string, groups map[string][]model.BatchKey) bool {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := groups[id]; !ok {
			return false
		}
		seen[id] = true
	}
	return len(seen) == len(groups)
}

func (s *Session) lookup(k string) (model.BatchKey, bool) {
	for _, b := range s.Tracker.Batches() {
		if b.Key.String() == k {
			return b.Key, true
		}
	}
	return model.BatchKey{}, false
}

// SetQuantity types qty into the batch's input and records it.
func (s *Session) SetQuantity(ctx context.Context, key model.BatchKey, qty float64) error {
	if _, err := s.page.Context(ctx).Eval(jsSetQuantityInput, key.String(), render.FormatQuantity(qty)); err != nil {
		return fmt.Errorf("SetQuantity: %w", err)
	}
	return s.Tracker.SetQuantity(ctx, key, qty)
}

// Submit reads the quantity inputs, injects the allocation fields and submits
// the form.
func (s *Session) Submit(ctx context.Context) error {
	p := s.page.Context(ctx)
	res, err := p.Eval(jsQuantityInputs)
	if err != nil {
		return fmt.Errorf("Submit: read inputs: %w", err)
	}
	for _, e := range res.Value.Arr() {
		pair := e.Arr()
		if len(pair) < 2 {
			continue
		}
		if key, ok := s.lookup(pair[0].Str()); ok {
			if err := s.Tracker.SetQuantityText(ctx, key, pair[1].Str()); err != nil {
				return err
			}
		}
	}

	if err := s.Tracker.Submit(ctx); err != nil {
		return err
	}

	wait := p.WaitNavigation(proto.PageLifecycleEventNameLoad)
	res, err = p.Eval(jsSubmitForm, anchorSelector)
	if err != nil {
		return fmt.Errorf("Submit: %w", err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("Submit: form not found")
	}
	wait()
	return nil
}

// URL is the address the page currently shows.
func (s *Session) URL() (string, error) {
	info, err := s.page.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (s *Session) SelectedPartIDs(ctx context.Context) ([]string, error) {
	res, err := s.page.Context(ctx).Eval(jsSelectedIDs, selectSelector)
	if err != nil {
		return nil, fmt.Errorf("SelectedPartIDs: %w", err)
	}
	var ids []string
	for _, v := range res.Value.Arr() {
		ids = append(ids, v.Str())
	}
	return ids, nil
}

func (s *Session) Changes() <-chan struct{} {
	return s.changes
}

func (s *Session) HiddenValues(ctx context.Context, prefix string) ([]string, error) {
	res, err := s.page.Context(ctx).Eval(jsHiddenValues, prefix)
	if err != nil {
		return nil, fmt.Errorf("HiddenValues: %w", err)
	}
	var vals []string
	for _, v := range res.Value.Arr() {
		vals = append(vals, v.Str())
	}
	return vals, nil
}

func (s *Session) ReplaceHidden(ctx context.Context, prefix string, fields []formfields.Field) error {
	if fields == nil {
		fields = []formfields.Field{}
	}
	res, err := s.page.Context(ctx).Eval(jsReplaceHidden, prefix, anchorSelector, fields)
	if err != nil {
		return fmt.Errorf("ReplaceHidden: %w", err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("ReplaceHidden: form not found")
	}
	return nil
}

func (s *Session) RenderRows(ctx context.Context, rows []allocation.Row) error {
	_, err := s.page.Context(ctx).Eval(jsRenderBlock, anchorSelector,
		render.RenderAllocationBlock(rows), render.RenderAllocationRows(rows))
	if err != nil {
		return fmt.Errorf("RenderRows: %w", err)
	}
	return nil
}

func (s *Session) UpdateRemaining(ctx context.Context, key model.BatchKey, remaining float64) error {
	_, err := s.page.Context(ctx).Eval(jsUpdateRemaining, key.String(), render.FormatQuantity(remaining))
	if err != nil {
		return fmt.Errorf("UpdateRemaining: %w", err)
	}
	return nil
}
