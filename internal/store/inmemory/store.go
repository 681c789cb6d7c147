package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/txgroup/internal/domain"
	"github.com/dvloznov/txgroup/internal/store"
)

// Store is an in-memory implementation of store.Repository.
// It is safe for concurrent use. Data is lost on restart.
type Store struct {
	mu sync.RWMutex

	batches    map[string]*domain.ImportBatch
	batchOrder []string

	records     map[string]*domain.TransactionRecord
	recordOrder []string

	categories map[string]domain.Category
	// assignments maps a record ID to its category IDs.
	assignments map[string][]string

	nextCategoryID int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		batches:     make(map[string]*domain.ImportBatch),
		records:     make(map[string]*domain.TransactionRecord),
		categories:  make(map[string]domain.Category),
		assignments: make(map[string][]string),
	}
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// CreateBatch implements store.BatchRepository.
func (s *Store) CreateBatch(ctx context.Context, batch *domain.ImportBatch) error {
	if batch.ID == "" {
		return fmt.Errorf("CreateBatch: batch ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.batches[batch.ID]; exists {
		return fmt.Errorf("CreateBatch: batch %s already exists", batch.ID)
	}
	s.batches[batch.ID] = copyBatch(batch)
	s.batchOrder = append(s.batchOrder, batch.ID)
	return nil
}

// GetBatch implements store.BatchRepository.
func (s *Store) GetBatch(ctx context.Context, id string) (*domain.ImportBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[id]
	if !ok {
		return nil, fmt.Errorf("GetBatch: batch %s: %w", id, store.ErrNotFound)
	}
	return copyBatch(b), nil
}

// ListBatches implements store.BatchRepository.
func (s *Store) ListBatches(ctx context.Context) ([]*domain.ImportBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.ImportBatch, 0, len(s.batchOrder))
	for i := len(s.batchOrder) - 1; i >= 0; i-- {
		result = append(result, copyBatch(s.batches[s.batchOrder[i]]))
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// DeleteBatch implements store.BatchRepository.
func (s *Store) DeleteBatch(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.batches[id]; !ok {
		return fmt.Errorf("DeleteBatch: batch %s: %w", id, store.ErrNotFound)
	}
	s.deleteRecordsLocked(id)
	delete(s.batches, id)
	s.batchOrder = removeID(s.batchOrder, id)
	return nil
}

// ListRecords implements store.RecordRepository.
func (s *Store) ListRecords(ctx context.Context, batchID string) ([]domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.batches[batchID]; !ok {
		return nil, fmt.Errorf("ListRecords: batch %s: %w", batchID, store.ErrNotFound)
	}

	var result []domain.TransactionRecord
	for _, id := range s.recordOrder {
		r := s.records[id]
		if r.FileID != batchID {
			continue
		}
		result = append(result, s.hydrateLocked(r))
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].TransactionDate.Before(result[j].TransactionDate)
	})
	return result, nil
}

// ReplaceRecords implements store.RecordRepository.
func (s *Store) ReplaceRecords(ctx context.Context, batch *domain.ImportBatch, records []domain.TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.batches[batch.ID]; !ok {
		return fmt.Errorf("ReplaceRecords: batch %s: %w", batch.ID, store.ErrNotFound)
	}
	for _, r := range records {
		for _, c := range r.Categories {
			if _, ok := s.categories[c.ID]; !ok {
				return fmt.Errorf("ReplaceRecords: category %s: %w", c.ID, store.ErrNotFound)
			}
		}
	}

	s.deleteRecordsLocked(batch.ID)
	for i := range records {
		r := records[i]
		r.FileID = batch.ID
		var catIDs []string
		for _, c := range r.Categories {
			catIDs = append(catIDs, c.ID)
		}
		r.Categories = nil
		s.records[r.ID] = &r
		s.recordOrder = append(s.recordOrder, r.ID)
		if len(catIDs) > 0 {
			s.assignments[r.ID] = catIDs
		}
	}
	s.batches[batch.ID] = copyBatch(batch)
	return nil
}

// AssignCategory implements store.RecordRepository.
func (s *Store) AssignCategory(ctx context.Context, recordIDs []string, categoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[categoryID]; !ok {
		return fmt.Errorf("AssignCategory: category %s: %w", categoryID, store.ErrNotFound)
	}
	for _, id := range recordIDs {
		if _, ok := s.records[id]; !ok {
			return fmt.Errorf("AssignCategory: record %s: %w", id, store.ErrNotFound)
		}
	}
	for _, id := range recordIDs {
		s.assignments[id] = []string{categoryID}
	}
	return nil
}

// FindCategorized implements store.RecordRepository.
func (s *Store) FindCategorized(ctx context.Context, text string, limit int) ([]domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.TransactionRecord
	for _, id := range s.recordOrder {
		if limit > 0 && len(result) >= limit {
			break
		}
		if len(s.assignments[id]) == 0 {
			continue
		}
		r := s.records[id]
		if !store.MatchesText(r.Description, text) {
			continue
		}
		result = append(result, s.hydrateLocked(r))
	}
	return result, nil
}

// ListCategories implements store.CategoryRepository.
func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// SeedCategories implements store.CategoryRepository. Categories without an
// ID get a sequential one.
func (s *Store) SeedCategories(ctx context.Context, categories []domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make(map[string]bool, len(s.categories))
	for _, c := range s.categories {
		names[c.Name] = true
	}
	for _, c := range categories {
		if names[c.Name] {
			continue
		}
		if c.ID == "" {
			s.nextCategoryID++
			c.ID = fmt.Sprintf("cat-%d", s.nextCategoryID)
		}
		s.categories[c.ID] = c
		names[c.Name] = true
	}
	return nil
}

func (s *Store) deleteRecordsLocked(batchID string) {
	kept := s.recordOrder[:0]
	for _, id := range s.recordOrder {
		if s.records[id].FileID == batchID {
			delete(s.records, id)
			delete(s.assignments, id)
			continue
		}
		kept = append(kept, id)
	}
	s.recordOrder = kept
}

func (s *Store) hydrateLocked(r *domain.TransactionRecord) domain.TransactionRecord {
	out := *r
	out.Categories = nil
	for _, cid := range s.assignments[r.ID] {
		if c, ok := s.categories[cid]; ok {
			out.Categories = append(out.Categories, c)
		}
	}
	return out
}

func copyBatch(b *domain.ImportBatch) *domain.ImportBatch {
	out := *b
	out.Headers = append([]string(nil), b.Headers...)
	out.Mapping = append(out.Mapping[:0:0], b.Mapping...)
	if b.MappedAt != nil {
		t := *b.MappedAt
		out.MappedAt = &t
	}
	return &out
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Ensure Store implements store.Repository interface.
var _ store.Repository = (*Store)(nil)
