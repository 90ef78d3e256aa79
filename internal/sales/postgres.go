package sales

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/zombor/shoplist-invoicer/internal/pricing"
)

const createSalesTable = `
CREATE TABLE IF NOT EXISTS sales (
	id           TEXT PRIMARY KEY,
	sold_at      TIMESTAMPTZ NOT NULL,
	summary      TEXT NOT NULL,
	total_minor  BIGINT NOT NULL,
	item_count   INTEGER NOT NULL,
	receipt_file TEXT NOT NULL DEFAULT '',
	invoice      JSONB NOT NULL
)`

const saleColumns = `id, sold_at, summary, total_minor, item_count, receipt_file, invoice`

// Postgres implements DB on a shared PostgreSQL database, for shops with
// more than one till.
type Postgres struct {
	db *sql.DB
}

// NewPostgres connects to dsn and creates the sales table if needed.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if _, err := db.Exec(createSalesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sales table: %w", err)
	}
	return &Postgres{db: db}, nil
}

// AppendSale inserts sale.
func (p *Postgres) AppendSale(sale *Sale) error {
	inv, err := json.Marshal(sale.Invoice)
	if err != nil {
		return fmt.Errorf("marshaling invoice: %w", err)
	}

	_, err = p.db.Exec(
		`INSERT INTO sales (`+saleColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sale.ID, sale.SoldAt.UTC(), sale.Summary, int64(sale.Total), sale.ItemCount, sale.ReceiptFile, inv,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, sale.ID)
	}
	if err != nil {
		return fmt.Errorf("inserting sale: %w", err)
	}
	return nil
}

// GetSale retrieves a sale by ID.
func (p *Postgres) GetSale(id string) (*Sale, error) {
	row := p.db.QueryRow(`SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	sale, err := scanSale(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// ListSales returns all sales, oldest first.
func (p *Postgres) ListSales() ([]*Sale, error) {
	rows, err := p.db.Query(`SELECT ` + saleColumns + ` FROM sales ORDER BY sold_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying sales: %w", err)
	}
	defer rows.Close()

	sales := make([]*Sale, 0)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading sales: %w", err)
	}
	return sales, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (*Sale, error) {
	var (
		sale  Sale
		total int64
		inv   []byte
	)
	if err := row.Scan(&sale.ID, &sale.SoldAt, &sale.Summary, &total, &sale.ItemCount, &sale.ReceiptFile, &inv); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning sale: %w", err)
	}
	sale.Total = pricing.Money(total)
	if err := json.Unmarshal(inv, &sale.Invoice); err != nil {
		return nil, fmt.Errorf("unmarshaling invoice: %w", err)
	}
	return &sale, nil
}
