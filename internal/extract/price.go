// Package extract turns raw caption text into product fields, either via the
// remote AI extractor or the rule-based fallback chain.
package extract

import (
	"regexp"
	"strconv"

	"github.com/soukbot/tg-product-scraper/internal/product"
)

// Price mentions outside this range are discarded as noise (message ids,
// phone fragments, quantities).
const (
	minPrice = 1
	maxPrice = 100000
)

var (
	// Ordered locale-specific patterns: explicit currency markers first,
	// then price-keyword phrasings, then the bare trailing "ج".
	pricePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:جنيه|ج\.م|LE)`),
		regexp.MustCompile(`السعر[:\s]+(\d+(?:\.\d+)?)`),
		regexp.MustCompile(`بسعر[:\s]+(\d+(?:\.\d+)?)`),
		regexp.MustCompile(`بـ\s*(\d+(?:\.\d+)?)`),
		regexp.MustCompile(`(\d+(?:\.\d+)?)\s*ج(?:[^\p{L}\p{N}_]|$)`),
	}

	contextualPriceRe = regexp.MustCompile(`السعر.*?(\d+(?:\.\d+)?)`)
	anyNumberRe       = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\b`)

	thousandsRe    = regexp.MustCompile(`(\d),(\d{3})\b`)
	commaDecimalRe = regexp.MustCompile(`(\d+),(\d{1,2})\b`)

	// Everything that is not Arabic, Latin, digits, or basic punctuation is
	// treated as emoji noise and blanked before matching.
	noiseRe = regexp.MustCompile(`[^\x{0600}-\x{06FF}a-zA-Z0-9\s.,:+\-/]`)
)

// Price extracts pricing information from raw text. With one in-range mention
// it becomes the current price; with several, the minimum becomes the current
// price and the maximum the old price, discarding intermediate values. The
// zero PriceInfo is returned when nothing usable is found.
func Price(text string) product.PriceInfo {
	normalized := normalizeNumbers(text)
	clean := noiseRe.ReplaceAllString(normalized, " ")

	prices := findAllPrices(normalized, clean)
	if len(prices) > 0 {
		return resolvePrices(prices)
	}

	// Contextual search after the price keyword, then the first in-range
	// number anywhere, as progressively weaker fallbacks.
	if p, ok := contextualPrice(clean); ok {
		return product.PriceInfo{CurrentPrice: p}
	}

	if p, ok := firstValidNumber(clean); ok {
		return product.PriceInfo{CurrentPrice: p}
	}

	return product.PriceInfo{}
}

// normalizeNumbers strips thousands separators and converts comma decimals
// with 1-2 trailing digits to dot decimals.
func normalizeNumbers(text string) string {
	text = thousandsRe.ReplaceAllString(text, "$1$2")

	return commaDecimalRe.ReplaceAllString(text, "$1.$2")
}

func findAllPrices(texts ...string) map[float64]struct{} {
	prices := make(map[float64]struct{})

	for _, text := range texts {
		for _, pattern := range pricePatterns {
			for _, match := range pattern.FindAllStringSubmatch(text, -1) {
				if p, ok := parseInRange(match[1]); ok {
					prices[p] = struct{}{}
				}
			}
		}
	}

	return prices
}

func resolvePrices(prices map[float64]struct{}) product.PriceInfo {
	var minP, maxP float64

	first := true
	for p := range prices {
		if first {
			minP, maxP = p, p
			first = false

			continue
		}

		if p < minP {
			minP = p
		}

		if p > maxP {
			maxP = p
		}
	}

	info := product.PriceInfo{CurrentPrice: minP}
	if maxP > minP {
		old := maxP
		info.OldPrice = &old
	}

	return info
}

func contextualPrice(text string) (float64, bool) {
	match := contextualPriceRe.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}

	return parseInRange(match[1])
}

func firstValidNumber(text string) (float64, bool) {
	for _, match := range anyNumberRe.FindAllStringSubmatch(text, -1) {
		if p, ok := parseInRange(match[1]); ok {
			return p, true
		}
	}

	return 0, false
}

func parseInRange(s string) (float64, bool) {
	p, err := strconv.ParseFloat(s, 64)
	if err != nil || p < minPrice || p > maxPrice {
		return 0, false
	}

	return p, true
}
