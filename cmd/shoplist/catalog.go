package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/shoplist-invoicer/internal/catalog"
)

func newCatalogCommand(root *rootConfig, parent *ff.FlagSet) *ff.Command {
	fs := ff.NewFlagSet("catalog").SetParent(parent)
	return &ff.Command{
		Name:      "catalog",
		Usage:     "shoplist catalog [FLAGS]",
		ShortHelp: "print the loaded price list and any skipped rows",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			if err := root.setupLogging(); err != nil {
				return err
			}
			res := root.catalogStore().Result()
			if res.Degraded() {
				return fmt.Errorf("price list unavailable: %w", res.Err)
			}

			return printCatalog(os.Stdout, res, root.currency)
		},
	}
}

// printCatalog writes the price table followed by one line per skipped row
// with the reason it was skipped.
func printCatalog(w io.Writer, res catalog.LoadResult, currency string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tPRICE")
	for _, e := range res.Catalog.Entries() {
		fmt.Fprintf(tw, "%s\t%s\n", e.Name, e.Price.Format(currency))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d items from %s\n", res.Catalog.Len(), res.Source)
	for _, row := range res.Skipped {
		fmt.Fprintf(w, "skipped %v\n", row)
	}
	return nil
}
