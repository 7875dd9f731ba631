package catalog

import (
	"strings"

	"github.com/wishlistapp/catalog-server/internal/domain"
	"github.com/wishlistapp/catalog-server/internal/metadata"
)

// toItem maps one API item to the shared metadata contract.
func toItem(raw rawItem) *Item {
	id := domain.Identifier(strings.ToUpper(raw.ASIN))
	md := domain.ProductMetadata{
		Attributes: map[string]any{
			metadata.AttrIdentifier: string(id),
			metadata.AttrSource:     "catalog",
		},
	}

	if info := raw.ItemInfo; info != nil {
		if info.Title != nil {
			md.Title = strings.TrimSpace(info.Title.DisplayValue)
		}
		if info.Features != nil && len(info.Features.DisplayValues) > 0 {
			md.Description = domain.StringPtr(bulletList(info.Features.DisplayValues))
		}
		if bl := info.ByLineInfo; bl != nil {
			switch {
			case bl.Brand != nil && bl.Brand.DisplayValue != "":
				md.Attributes[metadata.AttrBrand] = bl.Brand.DisplayValue
			case bl.Manufacturer != nil && bl.Manufacturer.DisplayValue != "":
				md.Attributes[metadata.AttrBrand] = bl.Manufacturer.DisplayValue
			}
		}
		if c := info.Classifications; c != nil {
			if c.ProductGroup != nil && c.ProductGroup.DisplayValue != "" {
				md.Attributes[metadata.AttrProductGroup] = c.ProductGroup.DisplayValue
				md.Attributes[metadata.AttrCategory] = c.ProductGroup.DisplayValue
			}
			if c.Binding != nil && c.Binding.DisplayValue != "" {
				md.Attributes[metadata.AttrBinding] = c.Binding.DisplayValue
			}
		}
	}

	md.ImageURL = selectImageURL(raw.Images)

	if raw.Offers != nil {
		for _, l := range raw.Offers.Listings {
			if l.Price == nil || l.Price.Currency == "" {
				continue
			}
			md.Price = &domain.Price{Amount: l.Price.Amount, Currency: l.Price.Currency}
			break
		}
	}

	if raw.DetailPageURL != "" {
		md.Attributes[metadata.AttrDetailURL] = raw.DetailPageURL
	}

	switch {
	case md.Title != "" && md.ImageURL != "":
		md.Quality = domain.QualityFull
	case md.Title == "":
		md.Title = metadata.SentinelTitle(id)
		md.Quality = domain.QualityPartial
	default:
		md.Quality = domain.QualityPartial
	}

	return &Item{ASIN: id, DetailPageURL: raw.DetailPageURL, Metadata: md}
}

// selectImageURL prefers the large primary image.
func selectImageURL(images *rawImages) string {
	if images == nil || images.Primary == nil {
		return ""
	}
	for _, img := range []*rawImage{images.Primary.Large, images.Primary.Medium} {
		if img != nil && img.URL != "" {
			return img.URL
		}
	}
	return ""
}

func bulletList(lines []string) string {
	var b strings.Builder
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(l)
	}
	return b.String()
}

// chunk splits ids into slices of at most size.
func chunk(ids []domain.Identifier, size int) [][]domain.Identifier {
	var out [][]domain.Identifier
	for len(ids) > size {
		out = append(out, ids[:size:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
