package pricing

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

// RawLineItem is one unresolved guess produced by the extraction step.
type RawLineItem struct {
	Quantity int    `json:"qty"`
	Name     string `json:"item"`
	// StatedUnitPrice is the price written on the list, nil when absent.
	StatedUnitPrice *Money `json:"unit_price,omitempty"`
}

// UnmarshalJSON decodes a line item leniently. The extraction model is
// free to write quantities as 2, 2.0 or "2" and prices as numbers or
// grouped strings; anything unusable is left at its zero value so the
// resolver can apply its defaults.
func (r *RawLineItem) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decoding line item: %w", err)
	}

	*r = RawLineItem{
		Quantity: decodeQuantity(fields["qty"]),
		Name:     decodeString(fields["item"]),
	}
	if price, ok := decodePrice(fields["unit_price"]); ok {
		r.StatedUnitPrice = &price
	}
	return nil
}

// DecodeLineItems decodes each element of a JSON list. Elements that are
// not objects become empty lines rather than failing the list; the resolver
// prices those at zero under the Unknown name.
func DecodeLineItems(elements []json.RawMessage) []RawLineItem {
	items := make([]RawLineItem, 0, len(elements))
	for i, el := range elements {
		var item RawLineItem
		if err := json.Unmarshal(el, &item); err != nil {
			slog.Warn("Malformed line item, using defaults", "index", i, "element", string(el), "error", err)
			item = RawLineItem{}
		}
		items = append(items, item)
	}
	return items
}

func decodeQuantity(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return roundQuantity(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return roundQuantity(f)
		}
	}
	return 0
}

// MaxQuantity caps a line's quantity; larger values are clamped.
const MaxQuantity = 1_000_000

func roundQuantity(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 1 {
		return 0
	}
	if f > MaxQuantity {
		return MaxQuantity
	}
	return int(math.Round(f))
}

func decodeString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func decodePrice(raw json.RawMessage) (Money, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		m, err := MoneyFromFloat(f)
		return m, err == nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if m, err := ParseMoney(s); err == nil {
			return m, true
		}
	}
	return 0, false
}

// MatchKind records which resolution step produced a line's price.
type MatchKind string

const (
	MatchExact     MatchKind = "exact"
	MatchSubstring MatchKind = "substring"
	MatchStated    MatchKind = "stated"
	MatchNone      MatchKind = "none"
)

// ResolvedLineItem is a line item after price lookup and name cleanup.
type ResolvedLineItem struct {
	Quantity    int       `json:"qty"`
	DisplayName string    `json:"item"`
	UnitPrice   Money     `json:"unit_price"`
	LineTotal   Money     `json:"line_total"`
	Match       MatchKind `json:"match"`
}

// Invoice is the ordered list of resolved lines for one shopping list.
// The grand total is always derived from the lines.
type Invoice struct {
	Lines []ResolvedLineItem
}

// GrandTotal sums the line totals.
func (inv Invoice) GrandTotal() Money {
	var total Money
	for _, line := range inv.Lines {
		total = total.Plus(line.LineTotal)
	}
	return total
}

// Summary is the comma-joined list of display names recorded with a sale.
func (inv Invoice) Summary() string {
	names := make([]string, len(inv.Lines))
	for i, line := range inv.Lines {
		names[i] = line.DisplayName
	}
	return strings.Join(names, ", ")
}

// Clone returns a copy that shares no memory with inv.
func (inv Invoice) Clone() Invoice {
	lines := make([]ResolvedLineItem, len(inv.Lines))
	copy(lines, inv.Lines)
	return Invoice{Lines: lines}
}

type invoiceJSON struct {
	Lines      []ResolvedLineItem `json:"lines"`
	GrandTotal Money              `json:"grand_total"`
}

// MarshalJSON includes the computed grand total.
func (inv Invoice) MarshalJSON() ([]byte, error) {
	lines := inv.Lines
	if lines == nil {
		lines = []ResolvedLineItem{}
	}
	return json.Marshal(invoiceJSON{Lines: lines, GrandTotal: inv.GrandTotal()})
}

// UnmarshalJSON decodes an invoice sent back by a client. Line totals and
// the grand total are recomputed from quantity and unit price; any totals
// in the payload are ignored.
func (inv *Invoice) UnmarshalJSON(data []byte) error {
	var raw struct {
		Lines []ResolvedLineItem `json:"lines"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for i := range raw.Lines {
		line := &raw.Lines[i]
		if line.Quantity <= 0 {
			line.Quantity = 1
		}
		if strings.TrimSpace(line.DisplayName) == "" {
			line.DisplayName = UnknownItem
		}
		if line.Match == "" {
			line.Match = MatchNone
		}
		line.LineTotal = line.UnitPrice.Times(line.Quantity)
	}
	inv.Lines = raw.Lines
	return nil
}
