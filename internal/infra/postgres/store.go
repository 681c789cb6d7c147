// Package postgres implements store.Repository on PostgreSQL through gorm.
package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres" // postgres driver

	"github.com/dvloznov/txgroup/internal/domain"
	"github.com/dvloznov/txgroup/internal/logger"
	"github.com/dvloznov/txgroup/internal/store"
)

// Store is a PostgreSQL-backed store.Repository.
type Store struct {
	db *gorm.DB
}

// Open connects to the database described by dsn.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("Open: connecting to postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an existing gorm connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates or updates every table.
func (s *Store) Migrate(ctx context.Context) error {
	log := logger.FromContext(ctx)
	if err := s.db.AutoMigrate(Models()...).Error; err != nil {
		return fmt.Errorf("Migrate: %w", err)
	}
	log.Info().Int("tables", len(Models())).Msg("Postgres schema migrated")
	return nil
}

// CreateBatch implements store.BatchRepository.
func (s *Store) CreateBatch(ctx context.Context, batch *domain.ImportBatch) error {
	m, err := toBatchModel(batch)
	if err != nil {
		return fmt.Errorf("CreateBatch: %w", err)
	}
	if err := s.db.Create(&m).Error; err != nil {
		return fmt.Errorf("CreateBatch: inserting row: %w", err)
	}
	return nil
}

// GetBatch implements store.BatchRepository.
func (s *Store) GetBatch(ctx context.Context, id string) (*domain.ImportBatch, error) {
	m, err := findBatch(s.db, id)
	if err != nil {
		return nil, fmt.Errorf("GetBatch: %w", err)
	}
	b, err := m.toDomain()
	if err != nil {
		return nil, fmt.Errorf("GetBatch: %w", err)
	}
	return b, nil
}

// ListBatches implements store.BatchRepository.
func (s *Store) ListBatches(ctx context.Context) ([]*domain.ImportBatch, error) {
	var rows []BatchModel
	if err := s.db.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ListBatches: query: %w", err)
	}

	result := make([]*domain.ImportBatch, 0, len(rows))
	for _, m := range rows {
		b, err := m.toDomain()
		if err != nil {
			return nil, fmt.Errorf("ListBatches: %w", err)
		}
		result = append(result, b)
	}
	return result, nil
}

// DeleteBatch implements store.BatchRepository.
func (s *Store) DeleteBatch(ctx context.Context, id string) error {
	err := s.transaction(func(tx *gorm.DB) error {
		if _, err := findBatch(tx, id); err != nil {
			return err
		}
		if err := deleteRecords(tx, id); err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&BatchModel{}).Error
	})
	if err != nil {
		return fmt.Errorf("DeleteBatch: %w", err)
	}
	return nil
}

// ListRecords implements store.RecordRepository.
func (s *Store) ListRecords(ctx context.Context, batchID string) ([]domain.TransactionRecord, error) {
	if _, err := findBatch(s.db, batchID); err != nil {
		return nil, fmt.Errorf("ListRecords: %w", err)
	}

	var rows []RecordModel
	err := s.db.
		Where("file_id = ?", batchID).
		Order("transaction_date ASC, position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("ListRecords: query: %w", err)
	}

	records, err := s.hydrate(rows)
	if err != nil {
		return nil, fmt.Errorf("ListRecords: %w", err)
	}
	return records, nil
}

// ReplaceRecords implements store.RecordRepository inside one SQL
// transaction.
func (s *Store) ReplaceRecords(ctx context.Context, batch *domain.ImportBatch, records []domain.TransactionRecord) error {
	log := logger.FromContext(ctx)

	err := s.transaction(func(tx *gorm.DB) error {
		if _, err := findBatch(tx, batch.ID); err != nil {
			return err
		}
		if err := checkCategories(tx, records); err != nil {
			return err
		}
		if err := deleteRecords(tx, batch.ID); err != nil {
			return err
		}

		for i, r := range records {
			m, err := toRecordModel(r, batch.ID, i)
			if err != nil {
				return err
			}
			if err := tx.Create(&m).Error; err != nil {
				return fmt.Errorf("inserting record %s: %w", r.ID, err)
			}
			for j, c := range r.Categories {
				link := RecordCategoryModel{RecordID: r.ID, CategoryID: c.ID, Position: j}
				if err := tx.Create(&link).Error; err != nil {
					return fmt.Errorf("linking record %s to category %s: %w", r.ID, c.ID, err)
				}
			}
		}

		bm, err := toBatchModel(batch)
		if err != nil {
			return err
		}
		return tx.Save(&bm).Error
	})
	if err != nil {
		return fmt.Errorf("ReplaceRecords: %w", err)
	}

	log.Debug().Str("batch_id", batch.ID).Int("records", len(records)).Msg("Replaced records in postgres")
	return nil
}

// AssignCategory implements store.RecordRepository.
func (s *Store) AssignCategory(ctx context.Context, recordIDs []string, categoryID string) error {
	ids := unique(recordIDs)

	err := s.transaction(func(tx *gorm.DB) error {
		var cat CategoryModel
		if err := tx.Where("id = ?", categoryID).First(&cat).Error; err != nil {
			if gorm.IsRecordNotFoundError(err) {
				return fmt.Errorf("category %s: %w", categoryID, store.ErrNotFound)
			}
			return fmt.Errorf("loading category: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		var count int
		if err := tx.Model(&RecordModel{}).Where("id IN (?)", ids).Count(&count).Error; err != nil {
			return fmt.Errorf("counting records: %w", err)
		}
		if count != len(ids) {
			return fmt.Errorf("%d of %d records: %w", len(ids)-count, len(ids), store.ErrNotFound)
		}

		if err := tx.Where("record_id IN (?)", ids).Delete(&RecordCategoryModel{}).Error; err != nil {
			return fmt.Errorf("clearing categories: %w", err)
		}
		for _, id := range ids {
			link := RecordCategoryModel{RecordID: id, CategoryID: categoryID}
			if err := tx.Create(&link).Error; err != nil {
				return fmt.Errorf("linking record %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("AssignCategory: %w", err)
	}
	return nil
}

// FindCategorized implements store.RecordRepository.
func (s *Store) FindCategorized(ctx context.Context, text string, limit int) ([]domain.TransactionRecord, error) {
	needle := store.NormalizeText(text)
	if needle == "" {
		return nil, nil
	}

	ws := store.Whitespace
	q := s.db.
		Where("btrim(description, ?) <> ''", ws).
		Where("EXISTS (SELECT 1 FROM record_categories rc WHERE rc.record_id = transaction_records.id)").
		Where("strpos(lower(btrim(description, ?)), ?) > 0 OR strpos(?, lower(btrim(description, ?))) > 0", ws, needle, needle, ws).
		Order("file_id ASC, position ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []RecordModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("FindCategorized: query: %w", err)
	}

	records, err := s.hydrate(rows)
	if err != nil {
		return nil, fmt.Errorf("FindCategorized: %w", err)
	}
	return records, nil
}

// ListCategories implements store.CategoryRepository.
func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var rows []CategoryModel
	if err := s.db.Order("name ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ListCategories: query: %w", err)
	}

	result := make([]domain.Category, 0, len(rows))
	for _, m := range rows {
		result = append(result, m.toDomain())
	}
	return result, nil
}

// SeedCategories implements store.CategoryRepository.
func (s *Store) SeedCategories(ctx context.Context, categories []domain.Category) error {
	err := s.transaction(func(tx *gorm.DB) error {
		var existing []CategoryModel
		if err := tx.Find(&existing).Error; err != nil {
			return fmt.Errorf("loading categories: %w", err)
		}
		names := make(map[string]bool, len(existing))
		for _, c := range existing {
			names[c.Name] = true
		}

		for _, c := range categories {
			if names[c.Name] {
				continue
			}
			if c.ID == "" {
				c.ID = uuid.NewString()
			}
			m := CategoryModel{ID: c.ID, Name: c.Name, Color: c.Color, ExcludeFromCalculations: c.ExcludeFromCalculations}
			if err := tx.Create(&m).Error; err != nil {
				return fmt.Errorf("inserting category %s: %w", c.Name, err)
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

// transaction runs fn in a database transaction, committing when it
// returns nil.
func (s *Store) transaction(fn func(tx *gorm.DB) error) error {
	tx := s.db.Begin()
	if err := tx.Error; err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// hydrate converts rows and attaches their categories in link order.
func (s *Store) hydrate(rows []RecordModel) ([]domain.TransactionRecord, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	for i, m := range rows {
		ids[i] = m.ID
	}

	var links []RecordCategoryModel
	if err := s.db.Where("record_id IN (?)", ids).Order("record_id ASC, position ASC").Find(&links).Error; err != nil {
		return nil, fmt.Errorf("loading category links: %w", err)
	}
	var cats []CategoryModel
	if err := s.db.Find(&cats).Error; err != nil {
		return nil, fmt.Errorf("loading categories: %w", err)
	}
	byID := make(map[string]domain.Category, len(cats))
	for _, c := range cats {
		byID[c.ID] = c.toDomain()
	}
	byRecord := make(map[string][]domain.Category)
	for _, l := range links {
		if c, ok := byID[l.CategoryID]; ok {
			byRecord[l.RecordID] = append(byRecord[l.RecordID], c)
		}
	}

	result := make([]domain.TransactionRecord, 0, len(rows))
	for _, m := range rows {
		r, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		r.Categories = byRecord[m.ID]
		result = append(result, r)
	}
	return result, nil
}

func findBatch(db *gorm.DB, id string) (BatchModel, error) {
	var m BatchModel
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return m, fmt.Errorf("batch %s: %w", id, store.ErrNotFound)
		}
		return m, fmt.Errorf("loading batch %s: %w", id, err)
	}
	return m, nil
}

func deleteRecords(tx *gorm.DB, batchID string) error {
	err := tx.Exec(
		"DELETE FROM record_categories WHERE record_id IN (SELECT id FROM transaction_records WHERE file_id = ?)",
		batchID,
	).Error
	if err != nil {
		return fmt.Errorf("deleting category links: %w", err)
	}
	if err := tx.Where("file_id = ?", batchID).Delete(&RecordModel{}).Error; err != nil {
		return fmt.Errorf("deleting records: %w", err)
	}
	return nil
}

func checkCategories(tx *gorm.DB, records []domain.TransactionRecord) error {
	var ids []string
	for _, r := range records {
		for _, c := range r.Categories {
			ids = append(ids, c.ID)
		}
	}
	ids = unique(ids)
	if len(ids) == 0 {
		return nil
	}

	var count int
	if err := tx.Model(&CategoryModel{}).Where("id IN (?)", ids).Count(&count).Error; err != nil {
		return fmt.Errorf("counting categories: %w", err)
	}
	if count != len(ids) {
		return fmt.Errorf("%d unknown categories: %w", len(ids)-count, store.ErrNotFound)
	}
	return nil
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Ensure Store implements store.Repository interface.
var _ store.Repository = (*Store)(nil)
