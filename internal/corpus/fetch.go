package corpus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultFetchTimeout = 10 * time.Second
	maxPageBytes        = 5 << 20
)

// Page is the text content of a fetched web page.
type Page struct {
	URL   string
	Title string
	Text  string
}

// Fetcher downloads web pages and extracts their visible text.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// NewFetcher returns a Fetcher using client, or a client with a 10s timeout
// when client is nil.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	return &Fetcher{client: client, userAgent: "uniguide/1.0 (+corpus fetcher)"}
}

// Fetch downloads rawURL and returns its text. Only http and https URLs are
// accepted, and bodies over 5 MB are rejected.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Page{}, fmt.Errorf("invalid url %q: must be an absolute http(s) URL", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Page{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetching %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("fetching %s: status %d", u, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes+1))
	if err != nil {
		return Page{}, fmt.Errorf("reading %s: %w", u, err)
	}
	if len(body) > maxPageBytes {
		return Page{}, errors.New("page exceeds 5 MB limit")
	}

	page := Page{URL: u.String()}
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if strings.HasPrefix(ct, "text/plain") {
		page.Text = normalizeWhitespace(string(body))
	} else {
		title, text, err := extractHTML(strings.NewReader(string(body)))
		if err != nil {
			return Page{}, err
		}
		page.Title, page.Text = title, text
	}
	if page.Text == "" {
		return Page{}, ErrEmptyDocument
	}
	return page, nil
}

// FetchInto fetches rawURL and stores its text in lib, returning the stored
// file name.
func FetchInto(ctx context.Context, f *Fetcher, lib *Library, rawURL string, keepOld bool) (string, error) {
	page, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}
	text := page.Text
	if page.Title != "" {
		text = page.Title + "\n" + text
	}
	return lib.SavePage(page.URL, "Source: "+page.URL+"\n"+text, keepOld)
}
