package pricing

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// UnknownItem is displayed for lines whose extracted name was empty.
const UnknownItem = "Unknown"

// Lookup is the read-only catalog view used during resolution.
// Implementations must not change while a Resolve call is running.
type Lookup interface {
	// Price returns the unit price stored under an exact normalized name.
	Price(name string) (Money, bool)
	// Each visits entries in catalog order until fn returns false.
	Each(fn func(name string, price Money) bool)
}

// Normalize lowercases and trims a name into catalog key form.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Resolve prices every raw line against the catalog and returns the invoice.
//
// For each line the first rule that yields a nonzero price wins:
//  1. exact match on the normalized name
//  2. the first catalog entry, in catalog order, whose name contains the
//     normalized name or is contained by it
//  3. the price stated on the list
//  4. zero
//
// A zero catalog price counts as "no price". Lines are never dropped and
// keep their input order. A nil Lookup behaves like an empty catalog.
func Resolve(items []RawLineItem, cat Lookup) Invoice {
	lines := make([]ResolvedLineItem, 0, len(items))
	for _, item := range items {
		lines = append(lines, resolveLine(item, cat))
	}
	return Invoice{Lines: lines}
}

func resolveLine(item RawLineItem, cat Lookup) ResolvedLineItem {
	qty := item.Quantity
	if qty <= 0 {
		qty = 1
	}
	key := Normalize(item.Name)

	line := ResolvedLineItem{Quantity: qty, Match: MatchNone}
	if name, price, kind, ok := match(key, cat); ok {
		line.DisplayName = titleCase(name)
		line.UnitPrice = price
		line.Match = kind
	} else {
		line.DisplayName = displayName(item.Name)
		if item.StatedUnitPrice != nil && *item.StatedUnitPrice > 0 {
			line.UnitPrice = *item.StatedUnitPrice
			line.Match = MatchStated
		}
	}
	line.LineTotal = line.UnitPrice.Times(qty)
	return line
}

func match(key string, cat Lookup) (string, Money, MatchKind, bool) {
	if cat == nil || key == "" {
		return "", 0, MatchNone, false
	}
	if price, ok := cat.Price(key); ok && price > 0 {
		return key, price, MatchExact, true
	}

	var (
		found      string
		foundPrice Money
	)
	cat.Each(func(name string, price Money) bool {
		if price <= 0 {
			return true
		}
		if strings.Contains(name, key) || strings.Contains(key, name) {
			found, foundPrice = name, price
			return false
		}
		return true
	})
	if found == "" {
		return "", 0, MatchNone, false
	}
	return found, foundPrice, MatchSubstring, true
}

func displayName(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return UnknownItem
	}
	return titleCase(raw)
}

// titleCase builds a Caser per call; a Caser must not be shared between goroutines.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}
