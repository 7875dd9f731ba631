package scrape

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/wishlistapp/catalog-server/internal/domain"
)

// SanitizeTitle strips marketplace branding with the table's trim rules and
// normalizes the result to NFC with single spaces.
func (t *Table) SanitizeTitle(title string) string {
	title = norm.NFC.String(collapseWhitespace(title))
	for _, re := range t.titleTrim {
		title = re.ReplaceAllString(title, "")
	}
	return strings.TrimSpace(title)
}

var (
	amountRegex = regexp.MustCompile(`[0-9][0-9,]*(?:\.[0-9]+)?`)

	currencySymbols = map[string]string{
		"$": "USD",
		"£": "GBP",
		"€": "EUR",
		"¥": "JPY",
	}
)

// ParsePrice reads an amount such as "$1,299.00" or "24.99". currency is
// used when set; otherwise it is inferred from a leading symbol or falls back
// to defaultCurrency.
func ParsePrice(amount, currency, defaultCurrency string) (*domain.Price, bool) {
	raw := amountRegex.FindString(amount)
	if raw == "" {
		return nil, false
	}
	value, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil || value.IsNegative() {
		return nil, false
	}

	if currency == "" {
		for symbol, code := range currencySymbols {
			if strings.Contains(amount, symbol) {
				currency = code
				break
			}
		}
	}
	if currency == "" {
		currency = defaultCurrency
	}

	return &domain.Price{Amount: value, Currency: strings.ToUpper(currency)}, true
}
