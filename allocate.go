package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bbmatyushin/medsil-equipment-base/automation"
	"github.com/bbmatyushin/medsil-equipment-base/htmlpage"
	"github.com/bbmatyushin/medsil-equipment-base/model"
)

// quantityEdit is one -set flag.
type quantityEdit struct {
	Key      model.BatchKey
	Quantity float64
}

type quantityFlags []quantityEdit

func (f *quantityFlags) String() string {
	parts := make([]string, 0, len(*f))
	for _, e := range *f {
		parts = append(parts, fmt.Sprintf("%s=%g", e.Key, e.Quantity))
	}
	return strings.Join(parts, ",")
}

func (f *quantityFlags) Set(s string) error {
	e, err := parseQuantityEdit(s)
	if err != nil {
		return err
	}
	*f = append(*f, e)
	return nil
}

// parseQuantityEdit reads "part=qty" or "part:expiration=qty".
func parseQuantityEdit(s string) (quantityEdit, error) {
	i := strings.LastIndex(s, "=")
	if i <= 0 {
		return quantityEdit{}, fmt.Errorf("invalid edit %q: want part[:expiration]=qty", s)
	}
	target, qtyText := strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
	qty, err := strconv.ParseFloat(qtyText, 64)
	if err != nil || qty < 0 {
		return quantityEdit{}, fmt.Errorf("invalid quantity in %q", s)
	}

	partID, exp, _ := strings.Cut(target, ":")
	if partID == "" {
		return quantityEdit{}, fmt.Errorf("invalid edit %q: missing part id", s)
	}
	var expPtr *string
	if exp != "" && exp != model.NoExpiration {
		expPtr = &exp
	}
	return quantityEdit{Key: model.NewBatchKey(partID, expPtr), Quantity: qty}, nil
}

// partFlags collects repeatable part id flags.
type partFlags []string

func (f *partFlags) String() string {
	return strings.Join(*f, ",")
}

func (f *partFlags) Set(s string) error {
	for _, id := range strings.Split(s, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		*f = append(*f, id)
	}
	if len(*f) == 0 {
		return fmt.Errorf("missing part id")
	}
	return nil
}

// selectionTimeout bounds how long the browser flow waits for the tracker to
// load newly chosen parts.
const selectionTimeout = 30 * time.Second

type allocateOptions struct {
	PageURL        string
	Select         []string
	Deselect       []string
	Edits          []quantityEdit
	Browser        bool
	Headless       bool
	EnforceCeiling bool
	FetchTimeout   time.Duration
}

func runAllocate(ctx context.Context, opts allocateOptions) error {
	if opts.Browser {
		return allocateInBrowser(ctx, opts)
	}
	return allocateOverHTTP(ctx, opts)
}

func allocateInBrowser(ctx context.Context, opts allocateOptions) error {
	sess, err := automation.Open(ctx, opts.PageURL, automation.Options{
		Headless:       opts.Headless,
		EnforceCeiling: opts.EnforceCeiling,
		FetchTimeout:   opts.FetchTimeout,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	if len(opts.Select) > 0 || len(opts.Deselect) > 0 {
		if err := changeSelectionInBrowser(ctx, sess, opts); err != nil {
			return err
		}
	}

	for _, e := range opts.Edits {
		if err := sess.SetQuantity(ctx, e.Key, e.Quantity); err != nil {
			return err
		}
	}
	if err := sess.Submit(ctx); err != nil {
		return err
	}
	if u, err := sess.URL(); err == nil {
		log.Printf("Form submitted, page is now %s", u)
	}
	return nil
}

// changeSelectionInBrowser moves options in the page while the session
// follows the selector, and returns once the tracker has caught up.
func changeSelectionInBrowser(ctx context.Context, sess *automation.Session, opts allocateOptions) error {
	runCtx, cancel := context.WithCancel(ctx)
	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(runCtx) }()
	stop := func() {
		cancel()
		if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("WARN: selection watcher: %v", err)
		}
	}

	if err := sess.Select(ctx, opts.Select...); err != nil {
		stop()
		return err
	}
	if err := sess.Deselect(ctx, opts.Deselect...); err != nil {
		stop()
		return err
	}
	err := sess.WaitSynced(ctx, selectionTimeout)
	stop()
	return err
}

func allocateOverHTTP(ctx context.Context, opts allocateOptions) error {
	sess, err := htmlpage.Open(ctx, nil, opts.PageURL, htmlpage.SessionOptions{
		EnforceCeiling: opts.EnforceCeiling,
		FetchTimeout:   opts.FetchTimeout,
	})
	if err != nil {
		return err
	}

	if err := sess.ChangeSelection(ctx, opts.Select, opts.Deselect); err != nil {
		return err
	}
	for _, e := range opts.Edits {
		if err := sess.Tracker.SetQuantity(ctx, e.Key, e.Quantity); err != nil {
			return err
		}
	}
	resp, err := sess.Submit(ctx)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("form post returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	log.Printf("Form submitted, page is now %s", resp.Request.URL)
	return nil
}
