// Package catalog holds the shop's item price list and loads it from
// CSV, XLSX or YAML sources.
package catalog

import (
	"github.com/zombor/shoplist-invoicer/internal/pricing"
)

// Entry is one priced catalog item under its normalized name.
type Entry struct {
	Name  string        `json:"name"`
	Price pricing.Money `json:"price"`
}

// Catalog maps normalized item names to unit prices and remembers the
// order names were first loaded in. A Catalog is never modified after
// construction, so one value can serve any number of concurrent
// resolution passes.
type Catalog struct {
	order  []string
	prices map[string]pricing.Money
}

// New builds a catalog from entries. Names are normalized; when two
// entries share a name the later price wins and the name keeps the
// position where it first appeared. Entries with an empty name are ignored.
func New(entries ...Entry) *Catalog {
	c := &Catalog{prices: make(map[string]pricing.Money, len(entries))}
	for _, e := range entries {
		c.put(e.Name, e.Price)
	}
	return c
}

// Empty returns a catalog with no entries.
func Empty() *Catalog {
	return New()
}

func (c *Catalog) put(name string, price pricing.Money) {
	name = pricing.Normalize(name)
	if name == "" {
		return
	}
	if _, ok := c.prices[name]; !ok {
		c.order = append(c.order, name)
	}
	c.prices[name] = price
}

// Price implements pricing.Lookup.
func (c *Catalog) Price(name string) (pricing.Money, bool) {
	if c == nil {
		return 0, false
	}
	p, ok := c.prices[name]
	return p, ok
}

// Each implements pricing.Lookup.
func (c *Catalog) Each(fn func(name string, price pricing.Money) bool) {
	if c == nil {
		return
	}
	for _, name := range c.order {
		if !fn(name, c.prices[name]) {
			return
		}
	}
}

// Entries returns a copy of the catalog in load order.
func (c *Catalog) Entries() []Entry {
	entries := make([]Entry, 0, c.Len())
	c.Each(func(name string, price pricing.Money) bool {
		entries = append(entries, Entry{Name: name, Price: price})
		return true
	})
	return entries
}

// Len returns the number of distinct names.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}
