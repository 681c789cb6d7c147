// Package bolt implements store.Repository on an embedded BoltDB file.
package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"

	"github.com/dvloznov/txgroup/internal/domain"
	"github.com/dvloznov/txgroup/internal/store"
)

var (
	batchesBucket    = []byte("batches")
	recordsBucket    = []byte("records") // one nested bucket per batch
	recordIndex      = []byte("record_index")
	categoriesBucket = []byte("categories")
)

// recordRow is the stored form of a record. Categories are kept as IDs and
// resolved against the categories bucket on read.
type recordRow struct {
	Record      domain.TransactionRecord
	CategoryIDs []string
}

// recordRef locates a record inside its batch bucket.
type recordRef struct {
	BatchID string
	Key     []byte
}

// Store is a BoltDB-backed store.Repository.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the database file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("Open: opening boltdb at %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{batchesBucket, recordsBucket, recordIndex, categoriesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateBatch implements store.BatchRepository.
func (s *Store) CreateBatch(ctx context.Context, batch *domain.ImportBatch) error {
	if batch.ID == "" {
		return fmt.Errorf("CreateBatch: batch ID is required")
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(batchesBucket)
		if b.Get([]byte(batch.ID)) != nil {
			return fmt.Errorf("batch %s already exists", batch.ID)
		}
		return putGob(b, []byte(batch.ID), batch)
	})
	if err != nil {
		return fmt.Errorf("CreateBatch: %w", err)
	}
	return nil
}

// GetBatch implements store.BatchRepository.
func (s *Store) GetBatch(ctx context.Context, id string) (*domain.ImportBatch, error) {
	var batch domain.ImportBatch
	err := s.db.View(func(tx *bolt.Tx) error {
		return getBatch(tx, id, &batch)
	})
	if err != nil {
		return nil, fmt.Errorf("GetBatch: %w", err)
	}
	return &batch, nil
}

// ListBatches implements store.BatchRepository.
func (s *Store) ListBatches(ctx context.Context) ([]*domain.ImportBatch, error) {
	var result []*domain.ImportBatch
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(batchesBucket).ForEach(func(k, v []byte) error {
			var b domain.ImportBatch
			if err := decode(v, &b); err != nil {
				return fmt.Errorf("decoding batch %s: %w", k, err)
			}
			result = append(result, &b)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("ListBatches: %w", err)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// DeleteBatch implements store.BatchRepository.
func (s *Store) DeleteBatch(ctx context.Context, id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		var batch domain.ImportBatch
		if err := getBatch(tx, id, &batch); err != nil {
			return err
		}
		if err := deleteRecords(tx, id); err != nil {
			return err
		}
		return tx.Bucket(batchesBucket).Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("DeleteBatch: %w", err)
	}
	return nil
}

// ListRecords implements store.RecordRepository.
func (s *Store) ListRecords(ctx context.Context, batchID string) ([]domain.TransactionRecord, error) {
	var result []domain.TransactionRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		var batch domain.ImportBatch
		if err := getBatch(tx, batchID, &batch); err != nil {
			return err
		}
		cats, err := loadCategories(tx)
		if err != nil {
			return err
		}

		b := tx.Bucket(recordsBucket).Bucket([]byte(batchID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var row recordRow
			if err := decode(v, &row); err != nil {
				return fmt.Errorf("decoding record in batch %s: %w", batchID, err)
			}
			result = append(result, hydrate(row, cats))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ListRecords: %w", err)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].TransactionDate.Before(result[j].TransactionDate)
	})
	return result, nil
}

// ReplaceRecords implements store.RecordRepository. The delete and the
// inserts share one bolt transaction.
func (s *Store) ReplaceRecords(ctx context.Context, batch *domain.ImportBatch, records []domain.TransactionRecord) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		var existing domain.ImportBatch
		if err := getBatch(tx, batch.ID, &existing); err != nil {
			return err
		}
		cats := tx.Bucket(categoriesBucket)
		for _, r := range records {
			for _, c := range r.Categories {
				if cats.Get([]byte(c.ID)) == nil {
					return fmt.Errorf("category %s: %w", c.ID, store.ErrNotFound)
				}
			}
		}

		if err := deleteRecords(tx, batch.ID); err != nil {
			return err
		}

		b, err := tx.Bucket(recordsBucket).CreateBucket([]byte(batch.ID))
		if err != nil {
			return fmt.Errorf("creating records bucket: %w", err)
		}
		index := tx.Bucket(recordIndex)
		for _, r := range records {
			seq, err := b.NextSequence()
			if err != nil {
				return fmt.Errorf("next sequence: %w", err)
			}
			key := itob(seq)

			row := recordRow{Record: r}
			row.Record.FileID = batch.ID
			row.Record.Categories = nil
			for _, c := range r.Categories {
				row.CategoryIDs = append(row.CategoryIDs, c.ID)
			}
			if err := putGob(b, key, row); err != nil {
				return fmt.Errorf("storing record %s: %w", r.ID, err)
			}
			if err := putGob(index, []byte(r.ID), recordRef{BatchID: batch.ID, Key: key}); err != nil {
				return fmt.Errorf("indexing record %s: %w", r.ID, err)
			}
		}

		return putGob(tx.Bucket(batchesBucket), []byte(batch.ID), batch)
	})
	if err != nil {
		return fmt.Errorf("ReplaceRecords: %w", err)
	}
	return nil
}

// AssignCategory implements store.RecordRepository.
func (s *Store) AssignCategory(ctx context.Context, recordIDs []string, categoryID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(categoriesBucket).Get([]byte(categoryID)) == nil {
			return fmt.Errorf("category %s: %w", categoryID, store.ErrNotFound)
		}

		index := tx.Bucket(recordIndex)
		for _, id := range recordIDs {
			v := index.Get([]byte(id))
			if v == nil {
				return fmt.Errorf("record %s: %w", id, store.ErrNotFound)
			}
			var ref recordRef
			if err := decode(v, &ref); err != nil {
				return fmt.Errorf("decoding index of %s: %w", id, err)
			}
			b := tx.Bucket(recordsBucket).Bucket([]byte(ref.BatchID))
			if b == nil {
				return fmt.Errorf("record %s: %w", id, store.ErrNotFound)
			}
			var row recordRow
			if err := decode(b.Get(ref.Key), &row); err != nil {
				return fmt.Errorf("decoding record %s: %w", id, err)
			}
			row.CategoryIDs = []string{categoryID}
			if err := putGob(b, ref.Key, row); err != nil {
				return fmt.Errorf("storing record %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("AssignCategory: %w", err)
	}
	return nil
}

// FindCategorized implements store.RecordRepository. It scans every batch
// bucket; the embedded store is meant for single-user data sets.
func (s *Store) FindCategorized(ctx context.Context, text string, limit int) ([]domain.TransactionRecord, error) {
	var result []domain.TransactionRecord
	errLimit := errors.New("limit reached")

	err := s.db.View(func(tx *bolt.Tx) error {
		cats, err := loadCategories(tx)
		if err != nil {
			return err
		}
		records := tx.Bucket(recordsBucket)
		return records.ForEach(func(batchID, v []byte) error {
			b := records.Bucket(batchID)
			if b == nil {
				return nil
			}
			return b.ForEach(func(k, v []byte) error {
				var row recordRow
				if err := decode(v, &row); err != nil {
					return fmt.Errorf("decoding record in batch %s: %w", batchID, err)
				}
				if len(row.CategoryIDs) == 0 || !store.MatchesText(row.Record.Description, text) {
					return nil
				}
				result = append(result, hydrate(row, cats))
				if limit > 0 && len(result) >= limit {
					return errLimit
				}
				return nil
			})
		})
	})
	if err != nil && err != errLimit {
		return nil, fmt.Errorf("FindCategorized: %w", err)
	}
	return result, nil
}

// ListCategories implements store.CategoryRepository.
func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var result []domain.Category
	err := s.db.View(func(tx *bolt.Tx) error {
		cats, err := loadCategories(tx)
		if err != nil {
			return err
		}
		for _, c := range cats {
			result = append(result, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ListCategories: %w", err)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// SeedCategories implements store.CategoryRepository.
func (s *Store) SeedCategories(ctx context.Context, categories []domain.Category) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		existing, err := loadCategories(tx)
		if err != nil {
			return err
		}
		names := make(map[string]bool, len(existing))
		for _, c := range existing {
			names[c.Name] = true
		}

		b := tx.Bucket(categoriesBucket)
		for _, c := range categories {
			if names[c.Name] {
				continue
			}
			if c.ID == "" {
				c.ID = uuid.NewString()
			}
			if err := putGob(b, []byte(c.ID), c); err != nil {
				return fmt.Errorf("storing category %s: %w", c.Name, err)
			}
			names[c.Name] = true
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("SeedCategories: %w", err)
	}
	return nil
}

func getBatch(tx *bolt.Tx, id string, out *domain.ImportBatch) error {
	v := tx.Bucket(batchesBucket).Get([]byte(id))
	if v == nil {
		return fmt.Errorf("batch %s: %w", id, store.ErrNotFound)
	}
	if err := decode(v, out); err != nil {
		return fmt.Errorf("decoding batch %s: %w", id, err)
	}
	return nil
}

// deleteRecords drops the batch's record bucket and its index entries.
func deleteRecords(tx *bolt.Tx, batchID string) error {
	records := tx.Bucket(recordsBucket)
	b := records.Bucket([]byte(batchID))
	if b == nil {
		return nil
	}

	index := tx.Bucket(recordIndex)
	var ids [][]byte
	err := b.ForEach(func(k, v []byte) error {
		var row recordRow
		if err := decode(v, &row); err != nil {
			return err
		}
		ids = append(ids, []byte(row.Record.ID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("reading records of %s: %w", batchID, err)
	}
	for _, id := range ids {
		if err := index.Delete(id); err != nil {
			return fmt.Errorf("unindexing record %s: %w", id, err)
		}
	}
	return records.DeleteBucket([]byte(batchID))
}

func loadCategories(tx *bolt.Tx) (map[string]domain.Category, error) {
	cats := make(map[string]domain.Category)
	err := tx.Bucket(categoriesBucket).ForEach(func(k, v []byte) error {
		var c domain.Category
		if err := decode(v, &c); err != nil {
			return fmt.Errorf("decoding category %s: %w", k, err)
		}
		cats[c.ID] = c
		return nil
	})
	return cats, err
}

func hydrate(row recordRow, cats map[string]domain.Category) domain.TransactionRecord {
	r := row.Record
	r.Categories = nil
	for _, id := range row.CategoryIDs {
		if c, ok := cats[id]; ok {
			r.Categories = append(r.Categories, c)
		}
	}
	return r
}

func putGob(b *bolt.Bucket, key []byte, v interface{}) error {
	var val bytes.Buffer
	if err := gob.NewEncoder(&val).Encode(v); err != nil {
		return fmt.Errorf("encoding: %w", err)
	}
	return b.Put(key, val.Bytes())
}

func decode(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// Ensure Store implements store.Repository interface.
var _ store.Repository = (*Store)(nil)
