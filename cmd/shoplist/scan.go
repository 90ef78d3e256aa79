package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/shoplist-invoicer/internal/invoice"
	"github.com/zombor/shoplist-invoicer/internal/render"
	"github.com/zombor/shoplist-invoicer/internal/sales"
)

type scanConfig struct {
	*rootConfig

	out         string
	record      bool
	dbPath      string
	historyDSN  string
	storagePath string
}

func newScanCommand(root *rootConfig, parent *ff.FlagSet) *ff.Command {
	cfg := &scanConfig{rootConfig: root}
	fs := ff.NewFlagSet("scan").SetParent(parent)
	fs.StringVar(&cfg.out, 0, "out", "", "write the receipt here (.jpg, .png or .pdf)")
	fs.BoolVar(&cfg.record, 0, "record", "append the invoice to the sale history")
	fs.StringVar(&cfg.dbPath, 0, "db", "shoplist.db", "sale history database file")
	fs.StringVar(&cfg.historyDSN, 0, "history-dsn", "", "PostgreSQL DSN for a shared sale history (overrides --db)")
	fs.StringVar(&cfg.storagePath, 0, "storage", "./receipts", "directory for receipts of recorded sales")

	return &ff.Command{
		Name:      "scan",
		Usage:     "shoplist scan [FLAGS] <IMAGE>",
		ShortHelp: "price the shopping list in an image",
		Flags:     fs,
		Exec:      cfg.exec,
	}
}

func (cfg *scanConfig) exec(ctx context.Context, args []string) error {
	if err := cfg.setupLogging(); err != nil {
		return err
	}
	if len(args) != 1 {
		return errors.New("scan takes exactly one image path")
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	extractor, err := cfg.newExtractor(ctx)
	if err != nil {
		return err
	}
	defer extractor.Close()

	renderer, err := cfg.newRenderer()
	if err != nil {
		return err
	}

	var (
		db    sales.DB
		store invoice.Storage
	)
	if cfg.record {
		if db, err = openSalesDB(cfg.historyDSN, cfg.dbPath); err != nil {
			return fmt.Errorf("initializing sale history: %w", err)
		}
		defer db.Close()
		if store, err = invoice.NewLocalStorage(cfg.storagePath); err != nil {
			return fmt.Errorf("initializing storage: %w", err)
		}
	}

	service := invoice.NewService(cfg.catalogStore(), extractor, db, store, renderer)
	result, err := service.Scan(ctx, filepath.Base(args[0]), data, mime.TypeByExtension(filepath.Ext(args[0])))
	if err != nil {
		return err
	}
	printResult(os.Stdout, result, cfg.currency)

	if cfg.out != "" {
		format, err := render.ParseFormat(filepath.Ext(cfg.out))
		if err != nil {
			return err
		}
		receipt, _, err := service.RenderReceipt(result.Invoice, format)
		if err != nil {
			return err
		}
		if err := os.WriteFile(cfg.out, receipt, 0644); err != nil {
			return fmt.Errorf("writing receipt: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Receipt written to %s\n", cfg.out)
	}

	if cfg.record && len(result.Invoice.Lines) > 0 {
		sale, err := service.RecordSale(result.Invoice)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Recorded sale %s\n", sale.ID)
	}
	return nil
}

func printResult(w io.Writer, result *invoice.ScanResult, symbol string) {
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "QTY\tITEM\tUNIT\tTOTAL\tMATCH\t")
	for _, line := range result.Invoice.Lines {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t\n",
			line.Quantity, line.DisplayName,
			line.UnitPrice.Format(symbol), line.LineTotal.Format(symbol), line.Match)
	}
	fmt.Fprintf(tw, "\tGRAND TOTAL\t\t%s\t\t\n", result.Invoice.GrandTotal().Format(symbol))
	tw.Flush()
}
