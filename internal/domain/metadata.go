package domain

import (
	"maps"

	"github.com/shopspring/decimal"
)

// Quality tells consumers how much of a ProductMetadata value was actually
// resolved from the source.
type Quality string

// Metadata quality levels.
const (
	// QualityFull means title and image came from the source.
	QualityFull Quality = "full"
	// QualityPartial means the page was fetched but some fields fell back.
	QualityPartial Quality = "partial"
	// QualityPlaceholder means nothing was fetched and every field is a stand-in.
	QualityPlaceholder Quality = "placeholder"
)

// Rank orders qualities from worst (0) to best.
func (q Quality) Rank() int {
	switch q {
	case QualityFull:
		return 2
	case QualityPartial:
		return 1
	default:
		return 0
	}
}

// Price is a monetary amount in a single currency.
type Price struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// ProductMetadata is the output of every metadata fetcher. Optional fields use
// nil for absence; treat values as immutable and use Clone before mutating.
type ProductMetadata struct {
	Title       string         `json:"title"`
	Description *string        `json:"description,omitempty"`
	ImageURL    string         `json:"image_url"`
	Price       *Price         `json:"price,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	Quality     Quality        `json:"quality"`
}

// Clone returns a deep copy.
func (m ProductMetadata) Clone() ProductMetadata {
	out := m
	if m.Description != nil {
		d := *m.Description
		out.Description = &d
	}
	if m.Price != nil {
		p := *m.Price
		out.Price = &p
	}
	if m.Attributes != nil {
		out.Attributes = maps.Clone(m.Attributes)
	}
	return out
}

// WithImage returns a copy with ImageURL replaced.
func (m ProductMetadata) WithImage(url string) ProductMetadata {
	out := m.Clone()
	out.ImageURL = url
	return out
}

// Attribute returns a string attribute, or "" when absent or not a string.
func (m ProductMetadata) Attribute(key string) string {
	v, _ := m.Attributes[key].(string)
	return v
}

// StringPtr is a small helper for optional string fields.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
