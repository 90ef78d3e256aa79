package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/shoplist-invoicer/internal/catalog"
	"github.com/zombor/shoplist-invoicer/internal/render"
	"github.com/zombor/shoplist-invoicer/internal/scanning"
)

// rootConfig holds the flags every subcommand shares.
type rootConfig struct {
	logLevel string

	catalogPath   string
	nameColumn    string
	priceColumn   string
	catalogSheet  string
	scannerType   string
	geminiKey     string
	geminiModel   string
	ollamaURL     string
	ollamaModel   string
	storeName     string
	storeLocation string
	currency      string
}

func (c *rootConfig) register(fs *ff.FlagSet) {
	defaults := catalog.DefaultOptions()
	header := render.DefaultOptions()

	fs.StringLong("config", "", "config file (flag=value lines)")
	fs.StringVar(&c.logLevel, 0, "log-level", "info", "log level: debug, info, warn or error")
	fs.StringVar(&c.catalogPath, 0, "catalog", "prices.csv", "price list file (.csv, .xlsx or .yaml)")
	fs.StringVar(&c.nameColumn, 0, "catalog-name-column", defaults.NameColumn, "price list column holding item names")
	fs.StringVar(&c.priceColumn, 0, "catalog-price-column", defaults.PriceColumn, "price list column holding sale prices")
	fs.StringVar(&c.catalogSheet, 0, "catalog-sheet", "", "xlsx sheet name (default first sheet)")
	fs.StringVar(&c.scannerType, 0, "scanner", "gemini", "scanner type: 'gemini' or 'ollama'")
	fs.StringVar(&c.geminiKey, 0, "gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
	fs.StringVar(&c.geminiModel, 0, "gemini-model", "", "Gemini model name (default: discover a flash model)")
	fs.StringVar(&c.ollamaURL, 0, "ollama-url", "http://localhost:11434", "Ollama API base URL")
	fs.StringVar(&c.ollamaModel, 0, "ollama-model", "llava", "Ollama vision model name")
	fs.StringVar(&c.storeName, 0, "store-name", header.StoreName, "shop name printed on receipts")
	fs.StringVar(&c.storeLocation, 0, "store-location", header.Location, "shop location printed on receipts")
	fs.StringVar(&c.currency, 0, "currency-symbol", header.CurrencySymbol, "currency symbol printed before amounts")
}

func (c *rootConfig) setupLogging() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.logLevel)); err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func (c *rootConfig) catalogOptions() catalog.Options {
	return catalog.Options{
		NameColumn:  c.nameColumn,
		PriceColumn: c.priceColumn,
		Sheet:       c.catalogSheet,
	}
}

func (c *rootConfig) catalogStore() *catalog.Store {
	return catalog.NewStore(c.catalogPath, c.catalogOptions())
}

func (c *rootConfig) newRenderer() (*render.Renderer, error) {
	return render.New(render.Options{
		StoreName:      c.storeName,
		Location:       c.storeLocation,
		CurrencySymbol: c.currency,
	})
}

func (c *rootConfig) newExtractor(ctx context.Context) (scanning.Extractor, error) {
	switch c.scannerType {
	case "gemini":
		apiKey := c.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", c.geminiModel)
		g, err := scanning.NewGemini(ctx, apiKey, c.geminiModel)
		if err != nil {
			return nil, fmt.Errorf("initializing gemini: %w", err)
		}
		slog.Info("Using Gemini model", "model", g.ModelName())
		return g, nil
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", c.ollamaURL, "model", c.ollamaModel)
		o, err := scanning.NewOllama(c.ollamaURL, c.ollamaModel)
		if err != nil {
			return nil, fmt.Errorf("initializing ollama: %w", err)
		}
		return o, nil
	}
	return nil, fmt.Errorf("invalid scanner type %q: want gemini or ollama", c.scannerType)
}
