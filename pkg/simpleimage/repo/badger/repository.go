// Package badger stores image records in an embedded BadgerDB.
//
// Records live under "img/<image_id>" as JSON. A secondary index under
// "own/<owner length><owner><inverted created_at><image_id>" keeps every
// owner's records in listing order, so QueryByOwner is a forward prefix
// scan. The 4-byte length keeps one owner's prefix from matching another's.
package badger

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tendant/simple-image/pkg/simpleimage"
)

const (
	recordPrefix = "img/"
	ownerPrefix  = "own/"
)

// Config options for the badger repository
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
}

// Repository implements simpleimage.Repository on BadgerDB
type Repository struct {
	db *badger.DB
}

var _ simpleimage.Repository = (*Repository)(nil)

// Open opens or creates the database
func Open(config Config) (*Repository, error) {
	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if config.Path == "" {
			return nil, errors.New("badger path is required")
		}
		opts = badger.DefaultOptions(config.Path)
	}
	opts.Logger = nil // Disable badger logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Repository{db: db}, nil
}

// Close releases the database
func (r *Repository) Close() error {
	return r.db.Close()
}

func recordKey(imageID string) []byte {
	return []byte(recordPrefix + imageID)
}

func ownerKeyPrefix(ownerID string) []byte {
	key := make([]byte, 0, len(ownerPrefix)+4+len(ownerID))
	key = append(key, ownerPrefix...)
	key = binary.BigEndian.AppendUint32(key, uint32(len(ownerID)))
	return append(key, ownerID...)
}

// invertTime maps t to 8 bytes that sort newest first.
func invertTime(t time.Time) []byte {
	ordered := uint64(t.UnixNano()) ^ (1 << 63)
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.MaxUint64-ordered)
	return b
}

func indexKey(ownerID string, k simpleimage.SortKey) []byte {
	key := ownerKeyPrefix(ownerID)
	key = append(key, invertTime(k.CreatedAt)...)
	return append(key, k.ImageID...)
}

func (r *Repository) PutRecord(ctx context.Context, record *simpleimage.ImageRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(recordKey(record.ImageID))
		if err == nil {
			return simpleimage.ErrRecordExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(recordKey(record.ImageID), data); err != nil {
			return err
		}
		return txn.Set(indexKey(record.OwnerID, record.SortKey()), nil)
	})
	if err != nil && !errors.Is(err, simpleimage.ErrRecordExists) {
		return fmt.Errorf("failed to put record: %w", err)
	}
	return err
}

func (r *Repository) GetRecord(ctx context.Context, imageID string) (*simpleimage.ImageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var record *simpleimage.ImageRecord
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		record, err = getRecord(txn, imageID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func getRecord(txn *badger.Txn, imageID string) (*simpleimage.ImageRecord, error) {
	item, err := txn.Get(recordKey(imageID))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, simpleimage.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	var record simpleimage.ImageRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &record)
	}); err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", imageID, err)
	}
	if record.Tags == nil {
		record.Tags = []string{}
	}
	return &record, nil
}

func (r *Repository) DeleteRecord(ctx context.Context, imageID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		record, err := getRecord(txn, imageID)
		if err != nil {
			return err
		}
		if err := txn.Delete(indexKey(record.OwnerID, record.SortKey())); err != nil {
			return err
		}
		return txn.Delete(recordKey(imageID))
	})
}

func (r *Repository) QueryByOwner(ctx context.Context, q simpleimage.OwnerQuery) (*simpleimage.RecordPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := ownerKeyPrefix(q.OwnerID)

	// Newest permitted position first.
	start := prefix
	if q.Range.To != nil {
		start = append(append([]byte{}, prefix...), invertTime(*q.Range.To)...)
	}
	var afterKey []byte
	if q.After != nil {
		afterKey = indexKey(q.OwnerID, *q.After)
		if bytes.Compare(afterKey, start) > 0 {
			start = afterKey
		}
	}
	var stopAfter []byte
	if q.Range.From != nil {
		stopAfter = invertTime(*q.Range.From)
	}

	page := &simpleimage.RecordPage{Records: []*simpleimage.ImageRecord{}}
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // Only need keys
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := it.Item().KeyCopy(nil)
			if afterKey != nil && bytes.Equal(key, afterKey) {
				continue
			}
			rest := key[len(prefix):]
			if len(rest) < 8 {
				continue
			}
			if stopAfter != nil && bytes.Compare(rest[:8], stopAfter) > 0 {
				break
			}
			if q.Limit > 0 && len(page.Records) == q.Limit {
				last := page.Records[len(page.Records)-1].SortKey()
				page.Next = &last
				break
			}
			record, err := getRecord(txn, string(rest[8:]))
			if err != nil {
				return err
			}
			page.Records = append(page.Records, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query owner %s: %w", q.OwnerID, err)
	}
	return page, nil
}
