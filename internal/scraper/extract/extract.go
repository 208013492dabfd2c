// Package extract turns rendered catalog DOMs into structured records.
// Functions here are pure: a DOM string in, records out, no I/O.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// priceRe captures the first decimal number in a price string, tolerating
// thousands separators.
var priceRe = regexp.MustCompile(`(\d{1,3}(?:[,.\s]\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)`)

// currencySymbols maps common symbols to ISO-4217 codes.
var currencySymbols = map[string]string{
	"$": "USD", "€": "EUR", "£": "GBP", "¥": "JPY", "₹": "INR",
}

// currencyCodeRe matches an explicit ISO code in a price string.
var currencyCodeRe = regexp.MustCompile(`\b([A-Z]{3})\b`)

// ParsePrice extracts an amount and ISO currency code from a display
// string like "$1,299.99" or "1 299.99 EUR". Returns nil when no number
// is present. A decimal comma is not recognized: "1 299,99 EUR" yields 1299.
func ParsePrice(text string) (*float64, string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ""
	}

	currency := ""
	if m := currencyCodeRe.FindStringSubmatch(text); m != nil {
		currency = m[1]
	} else {
		for symbol, code := range currencySymbols {
			if strings.Contains(text, symbol) {
				currency = code
				break
			}
		}
	}

	m := priceRe.FindString(text)
	if m == "" {
		return nil, currency
	}
	normalized := strings.NewReplacer(",", "", " ", "").Replace(m)
	value, err := strconv.ParseFloat(normalized, 64)
	if err != nil || value < 0 {
		return nil, currency
	}
	return &value, currency
}

// parseDocument wraps goquery document construction over an HTML string.
func parseDocument(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// cleanText collapses whitespace in extracted text.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// firstAttr returns the first non-empty attribute among names.
func firstAttr(sel *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v, ok := sel.Attr(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
