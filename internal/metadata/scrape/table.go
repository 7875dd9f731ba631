package scrape

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Field names a piece of ProductMetadata produced by rules.
type Field string

// Extracted fields.
const (
	FieldTitle       Field = "title"
	FieldImage       Field = "image"
	FieldDescription Field = "description"
	FieldPrice       Field = "price"
	FieldCurrency    Field = "currency"
	FieldBrand       Field = "brand"
	FieldCategory    Field = "category"
)

var knownFields = map[Field]bool{
	FieldTitle: true, FieldImage: true, FieldDescription: true, FieldPrice: true,
	FieldCurrency: true, FieldBrand: true, FieldCategory: true,
}

// Rule kinds accepted in a rule file.
const (
	KindMetaProperty = "meta_property"
	KindMetaName     = "meta_name"
	KindItemProp     = "itemprop"
	KindElementText  = "element_text"
	KindElementAttr  = "element_attr"
	KindMarkdown     = "element_markdown"
	KindClassText    = "class_text"
	KindDynamicImage = "dynamic_image"
	KindTitle        = "title"
	KindPattern      = "pattern"
)

// RuleSpec is the serialized form of one Rule.
type RuleSpec struct {
	Kind    string `json:"kind"`
	Key     string `json:"key,omitempty"`
	Attr    string `json:"attr,omitempty"`
	Pattern string `json:"pattern,omitempty"`
}

// TableSpec is the serialized rule table. Fields map a field name to its
// ordered rules; TitleTrim lists regular expressions removed from titles in order.
type TableSpec struct {
	Fields    map[Field][]RuleSpec `json:"fields"`
	TitleTrim []string             `json:"title_trim"`
}

// Table is a compiled, immutable rule table.
type Table struct {
	fields    map[Field][]Rule
	titleTrim []*regexp.Regexp
}

// Rules returns the ordered rules for f.
func (t *Table) Rules(f Field) []Rule {
	return t.fields[f]
}

// Extract runs the rules for f against p.
func (t *Table) Extract(p *Page, f Field) (string, bool) {
	return FirstMatch(p, t.fields[f])
}

// Compile turns a spec into a Table. Fields missing from the spec are empty.
func (s TableSpec) Compile() (*Table, error) {
	t := &Table{fields: make(map[Field][]Rule, len(s.Fields))}
	for field, specs := range s.Fields {
		if !knownFields[field] {
			return nil, fmt.Errorf("unknown field %q", field)
		}
		for i, rs := range specs {
			r, err := rs.compile()
			if err != nil {
				return nil, fmt.Errorf("field %s rule %d: %w", field, i, err)
			}
			t.fields[field] = append(t.fields[field], r)
		}
	}
	for _, expr := range s.TitleTrim {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("title trim %q: %w", expr, err)
		}
		t.titleTrim = append(t.titleTrim, re)
	}
	return t, nil
}

func (rs RuleSpec) compile() (Rule, error) {
	needKey := func() error {
		if rs.Key == "" {
			return fmt.Errorf("%s rule needs a key", rs.Kind)
		}
		return nil
	}

	switch rs.Kind {
	case KindMetaProperty:
		return MetaProperty(rs.Key), needKey()
	case KindMetaName:
		return MetaName(rs.Key), needKey()
	case KindItemProp:
		return ItemProp(rs.Key), needKey()
	case KindElementText:
		return ElementText(rs.Key), needKey()
	case KindMarkdown:
		return ElementMarkdown(rs.Key), needKey()
	case KindClassText:
		return ClassText(rs.Key), needKey()
	case KindDynamicImage:
		return DynamicImage(rs.Key), needKey()
	case KindElementAttr:
		if rs.Attr == "" {
			return nil, fmt.Errorf("element_attr rule needs attr")
		}
		return ElementAttr(rs.Key, rs.Attr), needKey()
	case KindTitle:
		return TitleElement(), nil
	case KindPattern:
		re, err := regexp.Compile(rs.Pattern)
		if err != nil {
			return nil, err
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("pattern %q needs a capture group", rs.Pattern)
		}
		return Pattern(re), nil
	default:
		return nil, fmt.Errorf("unknown rule kind %q", rs.Kind)
	}
}

// LoadTable reads and compiles a JSON rule file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- operator-supplied rules file
	if err != nil {
		return nil, err
	}
	var spec TableSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}
	return spec.Compile()
}

// DefaultSpec is the built-in rule table: structured meta tags first, then
// in-page elements and inline image data, then the page title.
func DefaultSpec() TableSpec {
	return TableSpec{
		Fields: map[Field][]RuleSpec{
			FieldTitle: {
				{Kind: KindMetaProperty, Key: "og:title"},
				{Kind: KindMetaName, Key: "title"},
				{Kind: KindElementText, Key: "productTitle"},
				{Kind: KindTitle},
			},
			FieldImage: {
				{Kind: KindMetaProperty, Key: "og:image"},
				{Kind: KindElementAttr, Key: "landingImage", Attr: "data-old-hires"},
				{Kind: KindDynamicImage, Key: "landingImage"},
				{Kind: KindDynamicImage, Key: "imgBlkFront"},
				{Kind: KindElementAttr, Key: "landingImage", Attr: "src"},
				{Kind: KindPattern, Pattern: `"hiRes":"(https://[^"]+)"`},
				{Kind: KindPattern, Pattern: `"large":"(https://[^"]+)"`},
			},
			FieldDescription: {
				{Kind: KindMetaProperty, Key: "og:description"},
				{Kind: KindMetaName, Key: "description"},
				{Kind: KindMarkdown, Key: "productDescription"},
				{Kind: KindMarkdown, Key: "feature-bullets"},
			},
			FieldPrice: {
				{Kind: KindMetaProperty, Key: "product:price:amount"},
				{Kind: KindMetaProperty, Key: "og:price:amount"},
				{Kind: KindItemProp, Key: "price"},
				{Kind: KindClassText, Key: "a-offscreen"},
				{Kind: KindElementText, Key: "priceblock_ourprice"},
				{Kind: KindPattern, Pattern: `"priceAmount":([0-9]+(?:\.[0-9]+)?)`},
			},
			FieldCurrency: {
				{Kind: KindMetaProperty, Key: "product:price:currency"},
				{Kind: KindMetaProperty, Key: "og:price:currency"},
				{Kind: KindItemProp, Key: "priceCurrency"},
				{Kind: KindPattern, Pattern: `"currencyCode":"([A-Z]{3})"`},
			},
			FieldBrand: {
				{Kind: KindMetaProperty, Key: "product:brand"},
				{Kind: KindItemProp, Key: "brand"},
				{Kind: KindElementText, Key: "bylineInfo"},
			},
			FieldCategory: {
				{Kind: KindMetaProperty, Key: "product:category"},
				{Kind: KindElementText, Key: "wayfinding-breadcrumbs_feature_div"},
			},
		},
		TitleTrim: []string{
			`(?i)^amazon(\.[a-z]{2,3}){1,2}\s*:\s*`,
			`(?i)^amazon\s*:\s*`,
			`(?i)\s*[:|\-]\s*amazon(\.[a-z]{2,3}){1,2}\b.*$`,
			`(?i)\s*[:|\-]\s*amazon\s*$`,
		},
	}
}

// DefaultTable compiles DefaultSpec. It panics on error since the built-in
// spec is fixed.
func DefaultTable() *Table {
	t, err := DefaultSpec().Compile()
	if err != nil {
		panic(fmt.Sprintf("scrape: default rule table: %v", err))
	}
	return t
}
