package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeTitle(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		in   string
		want string
	}{
		{"Amazon.com: Lumen LED Desk Lamp", "Lumen LED Desk Lamp"},
		{"Amazon.co.uk : Travel Mug", "Travel Mug"},
		{"Travel Mug : Amazon.co.uk: Kitchen & Home", "Travel Mug"},
		{"Travel Mug | Amazon", "Travel Mug"},
		{"  Two   spaces\n\tand tabs ", "Two spaces and tabs"},
		{"Café Press", "Café Press"},
		{"Amazon Basics Notebook", "Amazon Basics Notebook"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, table.SanitizeTitle(tt.in))
		})
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name         string
		amount       string
		currency     string
		wantAmount   string
		wantCurrency string
		wantOK       bool
	}{
		{name: "dollar symbol", amount: "$24.99", wantAmount: "24.99", wantCurrency: "USD", wantOK: true},
		{name: "thousands separator", amount: "$1,299.00", wantAmount: "1299", wantCurrency: "USD", wantOK: true},
		{name: "explicit currency wins", amount: "$10.00", currency: "cad", wantAmount: "10", wantCurrency: "CAD", wantOK: true},
		{name: "euro", amount: "€19.99", wantAmount: "19.99", wantCurrency: "EUR", wantOK: true},
		{name: "bare number uses default", amount: "5", wantAmount: "5", wantCurrency: "USD", wantOK: true},
		{name: "no digits", amount: "Currently unavailable", wantOK: false},
		{name: "empty", amount: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, ok := ParsePrice(tt.amount, tt.currency, "USD")
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				assert.Nil(t, price)
				return
			}
			assert.Equal(t, tt.wantAmount, price.Amount.String())
			assert.Equal(t, tt.wantCurrency, price.Currency)
		})
	}
}
