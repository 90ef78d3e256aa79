package sales

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	salesBucket = []byte("sales")
	idsBucket   = []byte("sale_ids")
)

// keyLayout is fixed width so byte order matches time order.
const keyLayout = "2006-01-02T15:04:05.000000000Z"

// BoltDB implements DB on a local bbolt file.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB opens or creates the history file at path.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(salesBucket); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(idsBucket); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

func saleKey(s *Sale) []byte {
	return []byte(s.SoldAt.UTC().Format(keyLayout) + "_" + s.ID)
}

// AppendSale stores sale keyed by time so ListSales walks in order.
func (b *BoltDB) AppendSale(sale *Sale) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		ids := tx.Bucket(idsBucket)
		if ids.Get([]byte(sale.ID)) != nil {
			return fmt.Errorf("%w: %s", ErrDuplicate, sale.ID)
		}

		data, err := json.Marshal(sale)
		if err != nil {
			return fmt.Errorf("marshaling sale: %w", err)
		}
		key := saleKey(sale)
		if err := tx.Bucket(salesBucket).Put(key, data); err != nil {
			return err
		}
		return ids.Put([]byte(sale.ID), key)
	})
}

// GetSale retrieves a sale by ID.
func (b *BoltDB) GetSale(id string) (*Sale, error) {
	var sale *Sale
	err := b.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket(idsBucket).Get([]byte(id))
		if key == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		data := tx.Bucket(salesBucket).Get(key)
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &sale)
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// ListSales returns all sales, oldest first.
func (b *BoltDB) ListSales() ([]*Sale, error) {
	sales := make([]*Sale, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(salesBucket).ForEach(func(k, v []byte) error {
			var sale Sale
			if err := json.Unmarshal(v, &sale); err != nil {
				return fmt.Errorf("unmarshaling sale: %w", err)
			}
			sales = append(sales, &sale)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return sales, nil
}

// Close closes the database file.
func (b *BoltDB) Close() error {
	return b.db.Close()
}
