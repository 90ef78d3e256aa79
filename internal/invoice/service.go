// Package invoice ties scanning, price resolution, receipt rendering and
// sale history together behind a Service and its HTTP server.
package invoice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/shoplist-invoicer/internal/catalog"
	"github.com/zombor/shoplist-invoicer/internal/pricing"
	"github.com/zombor/shoplist-invoicer/internal/render"
	"github.com/zombor/shoplist-invoicer/internal/sales"
	"github.com/zombor/shoplist-invoicer/internal/scanning"
)

// Warning texts shown next to a scan result.
const (
	WarnNoList          = "AI saw the image but couldn't find a list. Try writing clearer."
	WarnCatalogDegraded = "Price list unavailable; prices come from the list itself."
	warnUnpriced        = "No price found for %s."
)

var (
	// ErrNoExtractor means no vision model is configured.
	ErrNoExtractor = errors.New("no scanner configured")
	// ErrEmptyInvoice means a sale was submitted without lines.
	ErrEmptyInvoice = errors.New("invoice has no lines")
)

// IDGenerator generates unique IDs for sales
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type clock struct{}

func (clock) Now() time.Time {
	return time.Now()
}

// CatalogSource supplies the latest catalog load; each resolution pass
// uses one snapshot. *catalog.Store satisfies it.
type CatalogSource interface {
	Result() catalog.LoadResult
}

// Renderer draws a receipt. *render.Renderer satisfies it.
type Renderer interface {
	Encode(w io.Writer, inv pricing.Invoice, at time.Time, format render.Format) error
}

// ScanResult is what the shop assistant sees after a scan: the priced
// invoice plus the raw lines the model read and any warnings.
type ScanResult struct {
	Invoice         pricing.Invoice       `json:"invoice"`
	Items           []pricing.RawLineItem `json:"items"`
	Warnings        []string              `json:"warnings"`
	CatalogDegraded bool                  `json:"catalog_degraded"`
}

// Service handles invoice operations
type Service struct {
	catalog     CatalogSource
	extractor   scanning.Extractor
	sales       sales.DB
	storage     Storage
	renderer    Renderer
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a Service with UUID sale IDs and the wall clock.
// extractor may be nil when only resolution and rendering are needed.
func NewService(cat CatalogSource, extractor scanning.Extractor, db sales.DB, storage Storage, renderer Renderer) *Service {
	return NewServiceWithDeps(cat, extractor, db, storage, renderer, uuidGenerator{}, clock{})
}

// NewServiceWithDeps creates a Service with custom dependencies for testing
func NewServiceWithDeps(cat CatalogSource, extractor scanning.Extractor, db sales.DB, storage Storage, renderer Renderer, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		catalog:     cat,
		extractor:   extractor,
		sales:       db,
		storage:     storage,
		renderer:    renderer,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Scan reads the list in an uploaded image and prices it. An image with
// no readable list is not an error: the result is empty and carries
// WarnNoList. Throttling surfaces as *scanning.RateLimitError.
func (s *Service) Scan(ctx context.Context, filename string, data []byte, contentType string) (*ScanResult, error) {
	if s.extractor == nil {
		return nil, ErrNoExtractor
	}

	items, err := s.extractor.ExtractItems(ctx, data, contentType)
	if errors.Is(err, scanning.ErrNoItems) {
		slog.Info("No list found in image", "filename", filename, "content_type", contentType)
		items, err = nil, nil
	}
	if err != nil {
		slog.Error("Failed to scan list",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("scanning list: %w", err)
	}

	result := s.Resolve(items)
	slog.Info("Scanned list", "filename", filename, "lines", len(result.Invoice.Lines), "total", result.Invoice.GrandTotal())
	return result, nil
}

// Resolve prices raw line items against the current catalog snapshot.
func (s *Service) Resolve(items []pricing.RawLineItem) *ScanResult {
	res := s.catalog.Result()
	inv := pricing.Resolve(items, res.Catalog)

	result := &ScanResult{
		Invoice:         inv,
		Items:           items,
		Warnings:        []string{},
		CatalogDegraded: res.Degraded(),
	}
	if result.Items == nil {
		result.Items = []pricing.RawLineItem{}
	}
	if len(items) == 0 {
		result.Warnings = append(result.Warnings, WarnNoList)
	}
	if res.Degraded() {
		result.Warnings = append(result.Warnings, WarnCatalogDegraded)
	}
	for _, line := range inv.Lines {
		if line.Match == pricing.MatchNone {
			result.Warnings = append(result.Warnings, fmt.Sprintf(warnUnpriced, line.DisplayName))
		}
	}
	return result
}

// RenderReceipt draws inv stamped with the current time and returns the
// encoded bytes and their content type.
func (s *Service) RenderReceipt(inv pricing.Invoice, format render.Format) ([]byte, string, error) {
	return s.render(inv, s.timeSource.Now(), format)
}

func (s *Service) render(inv pricing.Invoice, at time.Time, format render.Format) ([]byte, string, error) {
	var buf bytes.Buffer
	if err := s.renderer.Encode(&buf, inv, at, format); err != nil {
		return nil, "", fmt.Errorf("rendering receipt: %w", err)
	}
	return buf.Bytes(), format.ContentType(), nil
}

// RecordSale appends inv to the sale history and keeps a JPEG copy of
// its receipt.
func (s *Service) RecordSale(inv pricing.Invoice) (*sales.Sale, error) {
	if len(inv.Lines) == 0 {
		return nil, ErrEmptyInvoice
	}

	sale := sales.NewSale(s.idGenerator.Generate(), s.timeSource.Now(), inv)

	data, _, err := s.render(sale.Invoice, sale.SoldAt, render.FormatJPEG)
	if err != nil {
		return nil, err
	}
	savedPath, err := s.storage.Save(sale.ID+render.FormatJPEG.Extension(), data)
	if err != nil {
		return nil, fmt.Errorf("saving receipt: %w", err)
	}
	sale.ReceiptFile = savedPath

	if err := s.sales.AppendSale(sale); err != nil {
		if delErr := s.storage.Delete(savedPath); delErr != nil {
			slog.Warn("Failed to delete receipt file", "filename", savedPath, "error", delErr)
		}
		return nil, fmt.Errorf("recording sale: %w", err)
	}

	slog.Info("Recorded sale", "id", sale.ID, "total", sale.Total, "items", sale.ItemCount)
	return sale, nil
}

// ListSales returns the sale history, oldest first.
func (s *Service) ListSales() ([]*sales.Sale, error) {
	list, err := s.sales.ListSales()
	if err != nil {
		return nil, fmt.Errorf("listing sales: %w", err)
	}
	return list, nil
}

// SalesSummary totals the sales made on day.
func (s *Service) SalesSummary(day time.Time) (sales.Summary, error) {
	list, err := s.ListSales()
	if err != nil {
		return sales.Summary{}, err
	}
	return sales.Summarize(list, day), nil
}

// Today returns the current time, for callers that default to today.
func (s *Service) Today() time.Time {
	return s.timeSource.Now()
}

// GetSaleReceipt returns the receipt of a recorded sale. The stored JPEG
// is served when present; other formats are drawn again with the sale time.
func (s *Service) GetSaleReceipt(id string, format render.Format) ([]byte, string, error) {
	sale, err := s.sales.GetSale(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting sale: %w", err)
	}

	if format == render.FormatJPEG && sale.ReceiptFile != "" {
		data, err := s.storage.Get(sale.ReceiptFile)
		if err == nil {
			return data, format.ContentType(), nil
		}
		slog.Warn("Stored receipt missing, redrawing", "id", id, "filename", sale.ReceiptFile, "error", err)
	}
	return s.render(sale.Invoice, sale.SoldAt, format)
}

// CatalogStatus describes the loaded catalog.
type CatalogStatus struct {
	Source   string          `json:"source"`
	Items    int             `json:"items"`
	Degraded bool            `json:"degraded"`
	Error    string          `json:"error,omitempty"`
	Skipped  []SkippedRow    `json:"skipped"`
	Entries  []catalog.Entry `json:"entries"`
}

// SkippedRow is a catalog row dropped for an unparsable price.
type SkippedRow struct {
	Row   int    `json:"row"`
	Item  string `json:"item"`
	Value string `json:"value"`
}

// CatalogStatus reports the latest catalog load.
func (s *Service) CatalogStatus() CatalogStatus {
	res := s.catalog.Result()
	status := CatalogStatus{
		Source:   res.Source,
		Items:    res.Catalog.Len(),
		Degraded: res.Degraded(),
		Skipped:  make([]SkippedRow, 0, len(res.Skipped)),
		Entries:  res.Catalog.Entries(),
	}
	if res.Err != nil {
		status.Error = res.Err.Error()
	}
	for _, row := range res.Skipped {
		status.Skipped = append(status.Skipped, SkippedRow{Row: row.Row, Item: row.Name, Value: row.Value})
	}
	return status
}
