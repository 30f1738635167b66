// Package badger stores image records in an embedded Badger database.
//
// Records are JSON values under keys of the form "image/<id>/<objectPath>",
// so every record of one id shares a key prefix and scans visit records in
// key order.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/tendant/simple-image/pkg/simpleimage"
)

const keyPrefix = "image/"

// Repository implements simpleimage.MetadataStore on top of Badger
type Repository struct {
	db *badger.DB
}

// Open opens or creates a Badger database in dir
func Open(dir string) (*Repository, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &Repository{db: db}, nil
}

// New wraps an already opened database
func New(db *badger.DB) *Repository {
	return &Repository{db: db}
}

// Close closes the underlying database
func (r *Repository) Close() error {
	return r.db.Close()
}

func recordKey(key simpleimage.ImageKey) []byte {
	return []byte(keyPrefix + key.ID + "/" + key.ObjectPath)
}

func scanPrefix(filter simpleimage.ScanFilter) []byte {
	if filter.ID != "" {
		return []byte(keyPrefix + filter.ID + "/")
	}
	return []byte(keyPrefix)
}

func (r *Repository) Put(ctx context.Context, image *simpleimage.Image) error {
	data, err := json.Marshal(image)
	if err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(image.Key()), data)
	})
}

func (r *Repository) Get(ctx context.Context, key simpleimage.ImageKey) (*simpleimage.Image, error) {
	var image *simpleimage.Image
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return simpleimage.ErrRecordNotFound
			}
			return err
		}
		image, err = decode(item)
		return err
	})
	if err != nil {
		return nil, err
	}
	return image, nil
}

func (r *Repository) Delete(ctx context.Context, key simpleimage.ImageKey) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(recordKey(key))
	})
}

func (r *Repository) Scan(ctx context.Context, filter simpleimage.ScanFilter) ([]*simpleimage.Image, error) {
	var images []*simpleimage.Image

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = scanPrefix(filter)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			image, err := decode(it.Item())
			if err != nil {
				return err
			}
			if !filter.Match(image) {
				continue
			}
			images = append(images, image)
			if filter.Full(len(images)) {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return images, nil
}

func (r *Repository) UpdateLabels(ctx context.Context, key simpleimage.ImageKey, labels []string, updatedAt time.Time) error {
	return r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return simpleimage.ErrRecordNotFound
			}
			return err
		}
		image, err := decode(item)
		if err != nil {
			return err
		}

		image.Labels = simpleimage.NormalizeLabels(labels)
		image.TimeUpdated = updatedAt

		data, err := json.Marshal(image)
		if err != nil {
			return fmt.Errorf("failed to encode image: %w", err)
		}
		return txn.Set(item.KeyCopy(nil), data)
	})
}

func decode(item *badger.Item) (*simpleimage.Image, error) {
	var image simpleimage.Image
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &image)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", item.Key(), err)
	}
	return &image, nil
}
