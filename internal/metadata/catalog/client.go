// Package catalog is the authenticated catalog API client used for
// privileged refreshes. Requests are signed with SigV4 and every call waits
// on one shared throttle, so all callers together respect the provider's
// minimum request interval.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wishlistapp/catalog-server/internal/domain"
	"github.com/wishlistapp/catalog-server/internal/metadata"
	"github.com/wishlistapp/catalog-server/internal/ratelimit"
)

const (
	// MaxBatchSize is the provider's limit on ids per GetItems request.
	MaxBatchSize = 10

	// Service is the signing service name.
	Service = "ProductAdvertisingAPI"

	getItemsPath   = "/paapi5/getitems"
	getItemsTarget = "com.amazon.paapi5.v1.ProductAdvertisingAPIv1.GetItems"

	defaultHost        = "webservices.amazon.com"
	defaultRegion      = "us-east-1"
	defaultMarketplace = "www.amazon.com"
	defaultPartnerType = "Associates"
	defaultTimeout     = 30 * time.Second
	maxResponseSize    = 4 << 20
)

// DefaultResources are the response groups requested for every item.
var DefaultResources = []string{
	"Images.Primary.Large",
	"Images.Primary.Medium",
	"ItemInfo.Title",
	"ItemInfo.Features",
	"ItemInfo.ByLineInfo",
	"ItemInfo.Classifications",
	"Offers.Listings.Price",
}

// Options configures the client.
type Options struct {
	AccessKey   string
	SecretKey   string
	PartnerTag  string
	PartnerType string
	Host        string
	Region      string
	Marketplace string
	// BaseURL overrides https://{Host}; used by tests.
	BaseURL   string
	Timeout   time.Duration
	Resources []string
}

func (o *Options) setDefaults() {
	if o.Host == "" {
		o.Host = defaultHost
	}
	if o.Region == "" {
		o.Region = defaultRegion
	}
	if o.Marketplace == "" {
		o.Marketplace = defaultMarketplace
	}
	if o.PartnerType == "" {
		o.PartnerType = defaultPartnerType
	}
	if o.BaseURL == "" {
		o.BaseURL = "https://" + o.Host
	}
	o.BaseURL = strings.TrimSuffix(o.BaseURL, "/")
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if len(o.Resources) == 0 {
		o.Resources = DefaultResources
	}
}

// Client is a signed, throttled catalog API client.
type Client struct {
	http     *http.Client
	throttle *ratelimit.Throttle
	opts     Options
	creds    Credentials
	now      func() time.Time
	logger   *slog.Logger
}

var _ metadata.Fetcher = (*Client)(nil)

// New creates a client. throttle must be the process-wide instance shared by
// every caller holding the same credentials.
func New(logger *slog.Logger, throttle *ratelimit.Throttle, opts Options) *Client {
	opts.setDefaults()
	return &Client{
		http:     &http.Client{Timeout: opts.Timeout},
		throttle: throttle,
		opts:     opts,
		creds:    Credentials{AccessKey: opts.AccessKey, SecretKey: opts.SecretKey},
		now:      time.Now,
		logger:   logger,
	}
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c.creds.AccessKey != "" && c.creds.SecretKey != "" && c.opts.PartnerTag != ""
}

// Fetch returns metadata for a single item.
func (c *Client) Fetch(ctx context.Context, id domain.Identifier) (domain.ProductMetadata, error) {
	res, err := c.GetItems(ctx, []domain.Identifier{id})
	if err != nil {
		return domain.ProductMetadata{}, err
	}
	if item, ok := res.Items[id]; ok {
		return item.Metadata, nil
	}
	if err, ok := res.Errors[id]; ok {
		return domain.ProductMetadata{}, err
	}
	return domain.ProductMetadata{}, wrapError("fetch", id, ErrNotFound)
}

// GetItems issues one request for at most MaxBatchSize ids. Ids the API does
// not return are reported in ItemsResult.Errors as ErrNotFound. The error
// return is reserved for failures of the request as a whole.
func (c *Client) GetItems(ctx context.Context, ids []domain.Identifier) (*ItemsResult, error) {
	if len(ids) == 0 {
		return nil, wrapError("getItems", "", ErrEmptyBatch)
	}
	if len(ids) > MaxBatchSize {
		return nil, wrapError("getItems", "", fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(ids), MaxBatchSize))
	}
	if !c.Configured() {
		return nil, wrapError("getItems", "", ErrNoCredentials)
	}

	req := getItemsRequest{
		ItemIDs:     make([]string, len(ids)),
		ItemIDType:  "ASIN",
		PartnerTag:  c.opts.PartnerTag,
		PartnerType: c.opts.PartnerType,
		Marketplace: c.opts.Marketplace,
		Resources:   c.opts.Resources,
	}
	for i, id := range ids {
		req.ItemIDs[i] = string(id)
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, wrapError("getItems", "", fmt.Errorf("encode request: %w", err))
	}

	body, err := c.doRequest(ctx, getItemsPath, getItemsTarget, payload)
	if err != nil {
		var asin domain.Identifier
		if len(ids) == 1 {
			asin = ids[0]
		}
		return nil, wrapError("getItems", asin, err)
	}

	var resp getItemsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, wrapError("getItems", "", fmt.Errorf("decode response: %w", err))
	}
	for _, e := range resp.Errors {
		c.logger.Debug("catalog item error", "code", e.Code, "message", e.Message)
	}

	result := newItemsResult()
	if resp.ItemsResult != nil {
		for _, raw := range resp.ItemsResult.Items {
			item := toItem(raw)
			result.Items[item.ASIN] = item
		}
	}
	for _, id := range ids {
		if _, ok := result.Items[id]; !ok {
			result.Errors[id] = wrapError("getItems", id, ErrNotFound)
		}
	}
	return result, nil
}

// GetItemsChunked splits ids into MaxBatchSize requests issued one after
// another. A failed chunk marks each of its ids as failed and the remaining
// chunks still run. Cancellation stops between chunks and returns what was
// collected along with the context error.
func (c *Client) GetItemsChunked(ctx context.Context, ids []domain.Identifier) (*ItemsResult, error) {
	result := newItemsResult()
	for _, batch := range chunk(ids, MaxBatchSize) {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		res, err := c.GetItems(ctx, batch)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			for _, id := range batch {
				result.Errors[id] = err
			}
			continue
		}
		result.merge(res)
	}
	return result, nil
}

// doRequest waits on the shared throttle, signs and sends one request.
func (c *Client) doRequest(ctx context.Context, path, target string, payload []byte) ([]byte, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, fmt.Errorf("throttle wait: %w", err)
	}

	u, err := url.Parse(c.opts.BaseURL + path)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	now := c.now().UTC()
	headers := map[string]string{
		"content-encoding": "amz-1.0",
		"content-type":     "application/json; charset=utf-8",
		"host":             u.Host,
		"x-amz-date":       now.Format(AmzDateFormat),
		"x-amz-target":     target,
	}
	sig := Sign(SigningInput{
		Method:   http.MethodPost,
		Path:     u.EscapedPath(),
		RawQuery: u.RawQuery,
		Headers:  headers,
		Payload:  payload,
		Region:   c.opts.Region,
		Service:  Service,
		Time:     now,
	}, c.creds)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		if k == "host" {
			continue
		}
		req.Header.Set(k, v)
	}
	req.Header.Set("Authorization", sig.Authorization)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("catalog request",
		"path", path,
		"target", target,
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("catalog request rejected",
			"status", resp.StatusCode,
			"string_to_sign", sig.StringToSign,
		)
		return nil, newAPIError(resp.StatusCode, body)
	}
	return body, nil
}
