package catalog

import (
	"github.com/shopspring/decimal"

	"github.com/wishlistapp/catalog-server/internal/domain"
)

// Item is one product returned by GetItems.
type Item struct {
	ASIN          domain.Identifier
	DetailPageURL string
	Metadata      domain.ProductMetadata
}

// ItemsResult collects the outcome of a (possibly chunked) GetItems call.
// Every requested id appears in exactly one of Items or Errors.
type ItemsResult struct {
	Items  map[domain.Identifier]*Item
	Errors map[domain.Identifier]error
}

func newItemsResult() *ItemsResult {
	return &ItemsResult{
		Items:  make(map[domain.Identifier]*Item),
		Errors: make(map[domain.Identifier]error),
	}
}

func (r *ItemsResult) merge(other *ItemsResult) {
	for id, item := range other.Items {
		r.Items[id] = item
	}
	for id, err := range other.Errors {
		r.Errors[id] = err
	}
}

// Wire types (internal)

type getItemsRequest struct {
	ItemIDs     []string `json:"ItemIds"`
	ItemIDType  string   `json:"ItemIdType"`
	PartnerTag  string   `json:"PartnerTag"`
	PartnerType string   `json:"PartnerType"`
	Marketplace string   `json:"Marketplace"`
	Resources   []string `json:"Resources"`
}

type getItemsResponse struct {
	ItemsResult *struct {
		Items []rawItem `json:"Items"`
	} `json:"ItemsResult"`
	Errors []rawError `json:"Errors"`
}

type rawError struct {
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

type rawItem struct {
	ASIN          string     `json:"ASIN"`
	DetailPageURL string     `json:"DetailPageURL"`
	Images        *rawImages `json:"Images"`
	ItemInfo      *rawInfo   `json:"ItemInfo"`
	Offers        *rawOffers `json:"Offers"`
}

type rawImages struct {
	Primary *struct {
		Large  *rawImage `json:"Large"`
		Medium *rawImage `json:"Medium"`
	} `json:"Primary"`
}

type rawImage struct {
	URL    string `json:"URL"`
	Width  int    `json:"Width"`
	Height int    `json:"Height"`
}

type rawDisplayValue struct {
	DisplayValue string `json:"DisplayValue"`
}

type rawInfo struct {
	Title    *rawDisplayValue `json:"Title"`
	Features *struct {
		DisplayValues []string `json:"DisplayValues"`
	} `json:"Features"`
	ByLineInfo *struct {
		Brand        *rawDisplayValue `json:"Brand"`
		Manufacturer *rawDisplayValue `json:"Manufacturer"`
	} `json:"ByLineInfo"`
	Classifications *struct {
		Binding      *rawDisplayValue `json:"Binding"`
		ProductGroup *rawDisplayValue `json:"ProductGroup"`
	} `json:"Classifications"`
}

type rawOffers struct {
	Listings []struct {
		Price *struct {
			Amount        decimal.Decimal `json:"Amount"`
			Currency      string          `json:"Currency"`
			DisplayAmount string          `json:"DisplayAmount"`
		} `json:"Price"`
	} `json:"Listings"`
}
