package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/shoplist-invoicer/internal/invoice"
	"github.com/zombor/shoplist-invoicer/internal/sales"
)

type serveConfig struct {
	*rootConfig

	port         int
	dbPath       string
	historyDSN   string
	storagePath  string
	authUser     string
	authPass     string
	watchCatalog bool
}

func newServeCommand(root *rootConfig, parent *ff.FlagSet) *ff.Command {
	cfg := &serveConfig{rootConfig: root}
	fs := ff.NewFlagSet("serve").SetParent(parent)
	fs.IntVar(&cfg.port, 0, "port", 8080, "HTTP server port")
	fs.StringVar(&cfg.dbPath, 0, "db", "shoplist.db", "sale history database file")
	fs.StringVar(&cfg.historyDSN, 0, "history-dsn", "", "PostgreSQL DSN for a shared sale history (overrides --db)")
	fs.StringVar(&cfg.storagePath, 0, "storage", "./receipts", "directory for receipts of recorded sales")
	fs.StringVar(&cfg.authUser, 0, "auth-user", "", "basic auth username (optional)")
	fs.StringVar(&cfg.authPass, 0, "auth-pass", "", "basic auth password (optional)")
	fs.BoolVarDefault(&cfg.watchCatalog, 0, "watch-catalog", true, "reload the price list when its file changes")

	return &ff.Command{
		Name:      "serve",
		Usage:     "shoplist serve [FLAGS]",
		ShortHelp: "run the web interface",
		Flags:     fs,
		Exec:      cfg.exec,
	}
}

// openSalesDB opens the Postgres history when a DSN is set and the local
// bbolt file otherwise.
func openSalesDB(dsn, path string) (sales.DB, error) {
	if dsn != "" {
		slog.Info("Using PostgreSQL sale history")
		return sales.NewPostgres(dsn)
	}
	slog.Info("Using local sale history", "path", path)
	return sales.NewBoltDB(path)
}

func (cfg *serveConfig) exec(ctx context.Context, args []string) error {
	if err := cfg.setupLogging(); err != nil {
		return err
	}

	db, err := openSalesDB(cfg.historyDSN, cfg.dbPath)
	if err != nil {
		return fmt.Errorf("initializing sale history: %w", err)
	}
	defer db.Close()

	extractor, err := cfg.newExtractor(ctx)
	if err != nil {
		return err
	}
	defer extractor.Close()

	store, err := invoice.NewLocalStorage(cfg.storagePath)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	renderer, err := cfg.newRenderer()
	if err != nil {
		return err
	}

	prices := cfg.catalogStore()
	if cfg.watchCatalog && cfg.catalogPath != "" {
		go func() {
			if err := prices.Watch(ctx); err != nil {
				slog.Error("Catalog watch stopped", "error", err)
			}
		}()
	}

	service := invoice.NewService(prices, extractor, db, store, renderer)
	server := invoice.NewServer(service, invoice.BasicAuth{
		Username: cfg.authUser,
		Password: cfg.authPass,
	})
	if cfg.authUser != "" || cfg.authPass != "" {
		slog.Info("Basic auth enabled", "user", cfg.authUser)
	}

	addr := fmt.Sprintf(":%d", cfg.port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	return server.Start(ctx, addr)
}
