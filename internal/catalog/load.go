package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/zombor/shoplist-invoicer/internal/pricing"
)

var (
	// ErrSourceUnavailable means the catalog source could not be opened.
	ErrSourceUnavailable = errors.New("catalog source unavailable")
	// ErrMalformedSource means the source was readable but not a catalog.
	ErrMalformedSource = errors.New("malformed catalog source")
)

// RowError describes one catalog row that was skipped.
type RowError struct {
	Row   int    // 1-based row (or mapping entry) number in the source
	Name  string // item description as written
	Value string // raw price cell
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d (%q): %v", e.Row, e.Name, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Format is a catalog source format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks a format from a file extension, defaulting to CSV.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatCSV
	}
}

// Options selects the columns of tabular sources.
type Options struct {
	NameColumn  string // header of the item description column
	PriceColumn string // header of the sale price column
	Sheet       string // XLSX sheet; empty means the first sheet
}

// DefaultOptions matches the shop's stock export.
func DefaultOptions() Options {
	return Options{
		NameColumn:  "Item Description",
		PriceColumn: "Sale Price",
	}
}

var (
	nameAliases  = []string{"itemdescription", "description", "item", "name", "product"}
	priceAliases = []string{"saleprice", "price", "unitprice", "sellingprice"}
)

// LoadResult is the outcome of a catalog load. Catalog is never nil.
type LoadResult struct {
	Catalog *Catalog
	Source  string
	// Skipped lists rows dropped because their price did not parse.
	Skipped []*RowError
	// Err is set when the whole source failed to load; the catalog is then
	// empty and resolution runs in degraded mode.
	Err error
}

// Degraded reports whether the catalog failed to load.
func (r LoadResult) Degraded() bool {
	return r.Err != nil
}

// Load reads a catalog file. It never fails outright: an unreadable or
// malformed source yields an empty catalog with Err set.
func Load(path string, opts Options) LoadResult {
	f, err := os.Open(path)
	if err != nil {
		return LoadResult{
			Catalog: Empty(),
			Source:  path,
			Err:     fmt.Errorf("%w: %w", ErrSourceUnavailable, err),
		}
	}
	defer f.Close()

	res := LoadReader(f, FormatFromPath(path), opts)
	res.Source = path
	return res
}

// LoadReader reads a catalog in the given format.
func LoadReader(r io.Reader, format Format, opts Options) LoadResult {
	var (
		entries []Entry
		skipped []*RowError
		err     error
	)
	switch format {
	case FormatXLSX:
		entries, skipped, err = loadXLSX(r, opts)
	case FormatYAML:
		entries, skipped, err = loadYAML(r)
	default:
		entries, skipped, err = loadCSV(r, opts)
	}
	if err != nil {
		return LoadResult{Catalog: Empty(), Err: err}
	}
	return LoadResult{Catalog: New(entries...), Skipped: skipped}
}

func loadCSV(r io.Reader, opts Options) ([]Entry, []*RowError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading csv: %w", ErrMalformedSource, err)
	}
	return parseRows(rows, opts)
}

func loadXLSX(r io.Reader, opts Options) ([]Entry, []*RowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: opening xlsx: %w", ErrMalformedSource, err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil, fmt.Errorf("%w: workbook has no sheets", ErrMalformedSource)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading sheet %q: %w", ErrMalformedSource, sheet, err)
	}
	return parseRows(rows, opts)
}

// parseRows turns a header row plus data rows into entries.
func parseRows(rows [][]string, opts Options) ([]Entry, []*RowError, error) {
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: no header row", ErrMalformedSource)
	}

	header := rows[0]
	nameCol := findColumn(header, opts.NameColumn, nameAliases)
	priceCol := findColumn(header, opts.PriceColumn, priceAliases)
	if nameCol < 0 || priceCol < 0 {
		return nil, nil, fmt.Errorf("%w: missing item description or sale price column in %v", ErrMalformedSource, header)
	}

	var (
		entries []Entry
		skipped []*RowError
	)
	for i, row := range rows[1:] {
		name := cell(row, nameCol)
		value := cell(row, priceCol)
		if strings.TrimSpace(name) == "" && strings.TrimSpace(value) == "" {
			continue
		}

		rowNum := i + 2
		if strings.TrimSpace(name) == "" {
			skipped = append(skipped, &RowError{Row: rowNum, Value: value, Err: errors.New("empty item description")})
			continue
		}
		price, err := pricing.ParseMoney(value)
		if err != nil {
			skipped = append(skipped, &RowError{Row: rowNum, Name: name, Value: value, Err: err})
			continue
		}
		entries = append(entries, Entry{Name: name, Price: price})
	}
	return entries, skipped, nil
}

func cell(row []string, col int) string {
	if col >= len(row) {
		return ""
	}
	return row[col]
}

// findColumn locates a header by its configured name, then by alias.
// Headers compare case-insensitively, ignoring spaces, underscores and hyphens.
func findColumn(header []string, want string, aliases []string) int {
	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = headerKey(h)
	}
	candidates := append([]string{headerKey(want)}, aliases...)
	for _, c := range candidates {
		if c == "" {
			continue
		}
		for i, k := range keys {
			if k == c {
				return i
			}
		}
	}
	return -1
}

func headerKey(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h)
}

// loadYAML reads a mapping of item name to price, keeping document order:
//
//	sugar: 1500
//	indomie supreme: "11,500"
func loadYAML(r io.Reader) ([]Entry, []*RowError, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("%w: decoding yaml: %w", ErrMalformedSource, err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("%w: yaml catalog must be a mapping of item to price", ErrMalformedSource)
	}

	var (
		entries []Entry
		skipped []*RowError
	)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			skipped = append(skipped, &RowError{Row: key.Line, Name: key.Value, Err: errors.New("price is not a scalar")})
			continue
		}
		price, err := pricing.ParseMoney(val.Value)
		if err != nil {
			skipped = append(skipped, &RowError{Row: key.Line, Name: key.Value, Value: val.Value, Err: err})
			continue
		}
		entries = append(entries, Entry{Name: key.Value, Price: price})
	}
	return entries, skipped, nil
}
