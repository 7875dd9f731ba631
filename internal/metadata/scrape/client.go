// Package scrape implements the public product-page fetcher used for
// ordinary users. It issues one unauthenticated GET per product and extracts
// metadata with an ordered, data-driven rule table. It never fails a caller
// because a page was unreachable: it degrades to placeholder metadata instead.
package scrape

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/wishlistapp/catalog-server/internal/domain"
	"github.com/wishlistapp/catalog-server/internal/metadata"
	"github.com/wishlistapp/catalog-server/internal/ratelimit"
)

const (
	defaultTimeout        = 15 * time.Second
	defaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	defaultAcceptLanguage = "en-US,en;q=0.9"
	defaultBaseURL        = "https://www.amazon.com"
	defaultCurrency       = "USD"
	defaultHostRPS        = 0.5
	defaultHostBurst      = 2
	maxPageSize           = 5 << 20
)

// Options configures the fetcher. Zero values pick defaults.
type Options struct {
	BaseURL          string
	UserAgent        string
	AcceptLanguage   string
	Timeout          time.Duration
	PlaceholderImage string
	DefaultCurrency  string
	HostRPS          float64
	HostBurst        int
}

func (o *Options) setDefaults() {
	if o.BaseURL == "" {
		o.BaseURL = defaultBaseURL
	}
	o.BaseURL = strings.TrimSuffix(o.BaseURL, "/")
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	if o.AcceptLanguage == "" {
		o.AcceptLanguage = defaultAcceptLanguage
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.DefaultCurrency == "" {
		o.DefaultCurrency = defaultCurrency
	}
	if o.HostRPS <= 0 {
		o.HostRPS = defaultHostRPS
	}
	if o.HostBurst <= 0 {
		o.HostBurst = defaultHostBurst
	}
}

// Fetcher scrapes product pages.
type Fetcher struct {
	http    *http.Client
	limiter *ratelimit.KeyedRateLimiter
	table   atomic.Pointer[Table]
	opts    Options
	logger  *slog.Logger
}

var _ metadata.Fetcher = (*Fetcher)(nil)

// New creates a fetcher using the built-in rule table.
func New(logger *slog.Logger, opts Options) *Fetcher {
	opts.setDefaults()
	f := &Fetcher{
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: ratelimit.New(opts.HostRPS, opts.HostBurst),
		opts:    opts,
		logger:  logger,
	}
	f.table.Store(DefaultTable())
	return f
}

// Close releases resources held by the fetcher.
func (f *Fetcher) Close() {
	f.limiter.Stop()
}

// SetTable swaps the rule table. In-flight fetches keep the table they started with.
func (f *Fetcher) SetTable(t *Table) {
	f.table.Store(t)
}

// Table returns the active rule table.
func (f *Fetcher) Table() *Table {
	return f.table.Load()
}

// Fetch scrapes the product page for id.
//
// Unreachable pages, non-2xx responses and bot-check pages all produce
// placeholder metadata with a nil error. Only context cancellation is
// returned as an error.
func (f *Fetcher) Fetch(ctx context.Context, id domain.Identifier) (domain.ProductMetadata, error) {
	pageURL := f.opts.BaseURL + "/dp/" + string(id)

	body, err := f.get(ctx, pageURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.ProductMetadata{}, ctxErr
		}
		f.logger.Warn("scrape failed, returning placeholder",
			"identifier", id,
			"url", pageURL,
			"error", err,
		)
		return f.placeholder(id), nil
	}

	page, err := ParsePage(body)
	if err != nil || isBotCheck(body) {
		f.logger.Warn("unusable product page, returning placeholder",
			"identifier", id,
			"bot_check", err == nil,
		)
		return f.placeholder(id), nil
	}

	md := f.Extract(page, id)
	f.logger.Debug("scraped product page",
		"identifier", id,
		"quality", md.Quality,
		"has_price", md.Price != nil,
	)
	return md, nil
}

// Extract applies the active rule table to an already-parsed page.
func (f *Fetcher) Extract(page *Page, id domain.Identifier) domain.ProductMetadata {
	t := f.Table()
	md := domain.ProductMetadata{
		Attributes: map[string]any{
			metadata.AttrIdentifier: string(id),
			metadata.AttrSource:     "scrape",
		},
		Quality: domain.QualityFull,
	}

	title, titleOK := t.Extract(page, FieldTitle)
	if titleOK {
		title = t.SanitizeTitle(title)
		titleOK = title != ""
	}
	if !titleOK {
		title = metadata.SentinelTitle(id)
	}
	md.Title = title

	image, imageOK := t.Extract(page, FieldImage)
	if imageOK {
		image, imageOK = absoluteURL(f.opts.BaseURL, image)
	}
	if !imageOK {
		image = f.opts.PlaceholderImage
	}
	md.ImageURL = image

	if desc, ok := t.Extract(page, FieldDescription); ok {
		md.Description = domain.StringPtr(desc)
	}

	if amount, ok := t.Extract(page, FieldPrice); ok {
		currency, _ := t.Extract(page, FieldCurrency)
		if price, ok := ParsePrice(amount, currency, f.opts.DefaultCurrency); ok {
			md.Price = price
		}
	}

	if brand, ok := t.Extract(page, FieldBrand); ok {
		if brand = cleanBrand(brand); brand != "" {
			md.Attributes[metadata.AttrBrand] = brand
		}
	}
	if category, ok := t.Extract(page, FieldCategory); ok {
		md.Attributes[metadata.AttrCategory] = lastCrumb(category)
	}

	switch {
	case !titleOK && !imageOK:
		md.Quality = domain.QualityPlaceholder
	case !titleOK || !imageOK:
		md.Quality = domain.QualityPartial
	}
	return md
}

func (f *Fetcher) get(ctx context.Context, pageURL string) ([]byte, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if err := f.limiter.Wait(ctx, u.Host); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept-Language", f.opts.AcceptLanguage)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

func (f *Fetcher) placeholder(id domain.Identifier) domain.ProductMetadata {
	md := metadata.Placeholder(id, f.opts.PlaceholderImage)
	md.Attributes[metadata.AttrSource] = "scrape"
	return md
}

var botCheckRegex = regexp.MustCompile(`(?i)/errors/validateCaptcha|Type the characters you see in this image`)

func isBotCheck(body []byte) bool {
	return botCheckRegex.Match(body)
}

func absoluteURL(base, ref string) (string, bool) {
	if strings.HasPrefix(ref, "data:") {
		return "", false
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	r, err := b.Parse(ref)
	if err != nil || (r.Scheme != "http" && r.Scheme != "https") {
		return "", false
	}
	return r.String(), true
}

var (
	brandPrefixRegex = regexp.MustCompile(`(?i)^brand:\s*`)
	brandStoreRegex  = regexp.MustCompile(`(?i)^visit the (.+?) store$`)
)

func cleanBrand(s string) string {
	s = brandPrefixRegex.ReplaceAllString(strings.TrimSpace(s), "")
	if m := brandStoreRegex.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// lastCrumb returns the most specific entry of a breadcrumb trail.
func lastCrumb(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '›' || r == '>' })
	for i := len(parts) - 1; i >= 0; i-- {
		if p := strings.TrimSpace(parts[i]); p != "" {
			return p
		}
	}
	return strings.TrimSpace(s)
}
