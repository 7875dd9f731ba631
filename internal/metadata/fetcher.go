// Package metadata defines the contract shared by the product metadata
// fetchers. The scrape subpackage serves ordinary users; the catalog
// subpackage serves privileged refreshes through the signed catalog API.
package metadata

import (
	"context"
	"fmt"

	"github.com/wishlistapp/catalog-server/internal/domain"
)

// Fetcher resolves an identifier to product metadata.
type Fetcher interface {
	Fetch(ctx context.Context, id domain.Identifier) (domain.ProductMetadata, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, id domain.Identifier) (domain.ProductMetadata, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, id domain.Identifier) (domain.ProductMetadata, error) {
	return f(ctx, id)
}

// Attribute keys set by the fetchers.
const (
	AttrIdentifier   = "identifier"
	AttrBrand        = "brand"
	AttrCategory     = "category"
	AttrBinding      = "binding"
	AttrProductGroup = "product_group"
	AttrDetailURL    = "detail_page_url"
	AttrSource       = "source"
)

// ProductURL returns the canonical product page for id.
func ProductURL(id domain.Identifier) string {
	return fmt.Sprintf("https://www.amazon.com/dp/%s", id)
}

// Placeholder builds the degraded metadata returned when nothing could be
// fetched. It carries only the identifier, a sentinel title and the
// placeholder image.
func Placeholder(id domain.Identifier, imageURL string) domain.ProductMetadata {
	return domain.ProductMetadata{
		Title:      SentinelTitle(id),
		ImageURL:   imageURL,
		Attributes: map[string]any{AttrIdentifier: string(id)},
		Quality:    domain.QualityPlaceholder,
	}
}

// SentinelTitle is the stand-in title used when a page yields none.
func SentinelTitle(id domain.Identifier) string {
	return "Product " + string(id)
}
