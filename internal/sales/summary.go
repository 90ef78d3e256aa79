package sales

import (
	"sort"
	"time"

	"github.com/zombor/shoplist-invoicer/internal/pricing"
)

// maxTopItems caps Summary.TopItems.
const maxTopItems = 5

// ItemTally is the quantity and revenue of one item across sales.
type ItemTally struct {
	Name     string        `json:"item"`
	Quantity int           `json:"qty"`
	Revenue  pricing.Money `json:"revenue"`
}

// Summary totals the sales of one calendar day.
type Summary struct {
	Day      string        `json:"day"`
	Count    int           `json:"count"`
	Items    int           `json:"items"`
	Total    pricing.Money `json:"total"`
	TopItems []ItemTally   `json:"top_items"`
}

// Summarize totals the sales made on the calendar day of day, in day's
// location. TopItems is ordered by revenue, then name.
func Summarize(sales []*Sale, day time.Time) Summary {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	summary := Summary{Day: start.Format("2006-01-02"), TopItems: []ItemTally{}}
	tallies := map[string]*ItemTally{}
	for _, sale := range sales {
		if sale.SoldAt.Before(start) || !sale.SoldAt.Before(end) {
			continue
		}
		summary.Count++
		summary.Total = summary.Total.Plus(sale.Total)
		summary.Items += sale.ItemCount

		for _, line := range sale.Invoice.Lines {
			t, ok := tallies[line.DisplayName]
			if !ok {
				t = &ItemTally{Name: line.DisplayName}
				tallies[line.DisplayName] = t
			}
			t.Quantity += line.Quantity
			t.Revenue = t.Revenue.Plus(line.LineTotal)
		}
	}

	for _, t := range tallies {
		summary.TopItems = append(summary.TopItems, *t)
	}
	sort.Slice(summary.TopItems, func(i, j int) bool {
		a, b := summary.TopItems[i], summary.TopItems[j]
		if a.Revenue != b.Revenue {
			return a.Revenue > b.Revenue
		}
		return a.Name < b.Name
	})
	if len(summary.TopItems) > maxTopItems {
		summary.TopItems = summary.TopItems[:maxTopItems]
	}
	return summary
}
