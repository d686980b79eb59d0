// Package htmlpage runs the allocation tracker against a server-rendered
// service change page without a browser: the page is parsed with goquery and
// the form is posted back over HTTP.
package htmlpage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/bbmatyushin/medsil-equipment-base/formfields"
	"github.com/bbmatyushin/medsil-equipment-base/widget"
)

const (
	selectSelector = "select#id_spare_part_to"
	choiceSelector = "select#id_spare_part_from"
	anchorSelector = ".form-row.field-spare_part"
	csrfFieldName  = "csrfmiddlewaretoken"
	selectName     = "spare_part"
)

// Page is a parsed change page.
type Page struct {
	URL       *url.URL
	Action    *url.URL
	CSRFToken string

	// Widget is nil when the page has no spare part selector.
	Widget *widget.Static
	Form   *formfields.Values
	// Choices holds every part the selector offers, chosen or not.
	Choices []string

	client *http.Client
}

// NewClient returns an HTTP client that keeps the CSRF cookie between the
// page load, the batch fetches and the post.
func NewClient() *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{Jar: jar}
}

// Load fetches and parses the page at pageURL.
func Load(ctx context.Context, client *http.Client, pageURL string) (*Page, error) {
	if client == nil {
		client = NewClient()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Load: get %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Load: get %s: status %d", pageURL, resp.StatusCode)
	}
	p, err := Parse(resp.Request.URL, resp.Body)
	if err != nil {
		return nil, err
	}
	p.client = client
	return p, nil
}

// Parse reads a change page. A page without the spare part selector still
// parses; its Widget is nil.
func Parse(pageURL *url.URL, r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("Parse: %w", err)
	}

	form := doc.Find("form").First()
	action := pageURL
	if a, ok := form.Attr("action"); ok && a != "" {
		if ref, err := url.Parse(a); err == nil {
			action = pageURL.ResolveReference(ref)
		}
	}

	values := url.Values{}
	form.Find("input").Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok || name == "" {
			return
		}
		typ, _ := s.Attr("type")
		if typ == "submit" || typ == "button" {
			return
		}
		v, _ := s.Attr("value")
		values.Add(name, v)
	})

	p := &Page{
		URL:    pageURL,
		Action: action,
		Form:   formfields.NewValues(values),
	}
	p.CSRFToken = values.Get(csrfFieldName)

	sel := doc.Find(selectSelector)
	if sel.Length() == 0 || doc.Find(anchorSelector).Length() == 0 {
		return p, nil
	}
	ids := optionValues(sel)
	p.Widget = widget.NewStatic(ids...)
	p.Choices = append(optionValues(doc.Find(choiceSelector)), ids...)
	return p, nil
}

func optionValues(sel *goquery.Selection) []string {
	var ids []string
	sel.Find("option").Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr("value")
		if strings.TrimSpace(v) != "" {
			ids = append(ids, v)
		}
	})
	return ids
}

// HasChoice reports whether the selector offers the part.
func (p *Page) HasChoice(partID string) bool {
	for _, id := range p.Choices {
		if id == partID {
			return true
		}
	}
	return false
}

// BaseURL is scheme://host of the page.
func (p *Page) BaseURL() string {
	return p.URL.Scheme + "://" + p.URL.Host
}

// Post submits the form with the current selection and hidden fields.
func (p *Page) Post(ctx context.Context) (*http.Response, error) {
	values := p.Form.Encode()
	values.Del(selectName)
	if p.Widget != nil {
		ids, _ := p.Widget.SelectedPartIDs(ctx)
		for _, id := range ids {
			values.Add(selectName, id)
		}
	}

	client := p.client
	if client == nil {
		client = NewClient()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Action.String(), strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("Post: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-CSRFToken", p.CSRFToken)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Post: %s: %w", p.Action, err)
	}
	return resp, nil
}

// Client returns the HTTP client the page was loaded with.
func (p *Page) Client() *http.Client {
	if p.client == nil {
		p.client = NewClient()
	}
	return p.client
}
