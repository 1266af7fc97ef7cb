// Package inventory owns the drug collection and all quantity mutation
// rules. Stock can only change through AddOrUpdate, Debit and Credit, so the
// quantity-never-negative invariant is enforced in one place.
package inventory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"pharmastore/backend/internal/domain"
	"pharmastore/backend/internal/storage"
	"pharmastore/backend/internal/xid"
)

const LowStockThreshold = 10

type Store struct {
	mu      sync.RWMutex
	drugs   []domain.Drug
	storage storage.Store
}

func New(ctx context.Context, st storage.Store) (*Store, error) {
	s := &Store{storage: st}
	if _, err := st.Load(ctx, storage.KeyDrugs, &s.drugs); err != nil {
		return nil, fmt.Errorf("load drugs: %w", err)
	}
	return s, nil
}

// persistLocked writes the collection through to storage. A storage failure
// is logged and swallowed; the in-memory mutation stands and the next
// successful save catches the backend up.
func (s *Store) persistLocked(ctx context.Context) {
	if err := s.storage.Save(ctx, storage.KeyDrugs, s.drugs); err != nil {
		log.Printf("[inventory] WARN: failed to persist drugs: %v", err)
	}
}

func validate(req domain.DrugRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if strings.TrimSpace(req.Category) == "" {
		return fmt.Errorf("%w: category is required", domain.ErrValidation)
	}
	if strings.TrimSpace(req.Expiry) == "" {
		return fmt.Errorf("%w: expiry is required", domain.ErrValidation)
	}
	if _, err := time.Parse(domain.DateLayout, req.Expiry); err != nil {
		return fmt.Errorf("%w: expiry must be a %s date", domain.ErrValidation, domain.DateLayout)
	}
	if req.Quantity < 0 {
		return fmt.Errorf("%w: quantity must not be negative", domain.ErrValidation)
	}
	if req.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", domain.ErrValidation)
	}
	return nil
}

// AddOrUpdate inserts a new drug or replaces the record with a matching id.
func (s *Store) AddOrUpdate(ctx context.Context, req domain.DrugRequest) (domain.Drug, error) {
	if err := validate(req); err != nil {
		return domain.Drug{}, err
	}

	drug := domain.Drug{
		ID:       strings.TrimSpace(req.ID),
		Name:     strings.TrimSpace(req.Name),
		Category: strings.TrimSpace(req.Category),
		Quantity: req.Quantity,
		Price:    req.Price,
		Expiry:   strings.TrimSpace(req.Expiry),
		Supplier: strings.TrimSpace(req.Supplier),
	}
	if drug.Supplier == "" {
		drug.Supplier = "N/A"
	}
	if drug.ID == "" {
		drug.ID = xid.New("drug")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i := range s.drugs {
		if s.drugs[i].ID == drug.ID {
			s.drugs[i] = drug
			replaced = true
			break
		}
	}
	if !replaced {
		s.drugs = append(s.drugs, drug)
	}

	s.persistLocked(ctx)
	return drug, nil
}

// Remove deletes the drug with the given id. A missing id is a no-op; the
// removed record and whether anything was removed are reported to the caller.
func (s *Store) Remove(ctx context.Context, id string) (domain.Drug, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.drugs {
		if s.drugs[i].ID == id {
			removed := s.drugs[i]
			s.drugs = append(s.drugs[:i], s.drugs[i+1:]...)
			s.persistLocked(ctx)
			return removed, true
		}
	}
	return domain.Drug{}, false
}

// Debit decrements stock for a sale. It fails without mutating anything when
// the drug is missing, the quantity is not positive, or stock would go
// negative.
func (s *Store) Debit(ctx context.Context, id string, quantity int) (domain.Drug, error) {
	if quantity <= 0 {
		return domain.Drug{}, fmt.Errorf("%w: debit quantity must be positive", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.drugs {
		if s.drugs[i].ID != id {
			continue
		}
		if s.drugs[i].Quantity < quantity {
			return domain.Drug{}, fmt.Errorf("%w: drug %q has %d in stock, requested %d",
				domain.ErrInsufficientStock, s.drugs[i].Name, s.drugs[i].Quantity, quantity)
		}
		s.drugs[i].Quantity -= quantity
		s.persistLocked(ctx)
		return s.drugs[i], nil
	}
	return domain.Drug{}, fmt.Errorf("%w: drug %s", domain.ErrNotFound, id)
}

// Credit restores stock removed by a sale. If the drug has since been
// deleted the restock is impossible and ErrNotFound is returned so the
// caller can surface it.
func (s *Store) Credit(ctx context.Context, id string, quantity int) (domain.Drug, error) {
	if quantity <= 0 {
		return domain.Drug{}, fmt.Errorf("%w: credit quantity must be positive", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.drugs {
		if s.drugs[i].ID != id {
			continue
		}
		s.drugs[i].Quantity += quantity
		s.persistLocked(ctx)
		return s.drugs[i], nil
	}
	return domain.Drug{}, fmt.Errorf("%w: drug %s", domain.ErrNotFound, id)
}

func (s *Store) Get(id string) (domain.Drug, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.drugs {
		if d.ID == id {
			return d, true
		}
	}
	return domain.Drug{}, false
}

// List returns a copy of the collection in document order.
func (s *Store) List() []domain.Drug {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Drug, len(s.drugs))
	copy(out, s.drugs)
	return out
}

// Search filters by case-insensitive substring over name, category and
// supplier.
func (s *Store) Search(term string) []domain.Drug {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return s.List()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Drug, 0, len(s.drugs))
	for _, d := range s.drugs {
		haystack := strings.ToLower(d.Name + " " + d.Category + " " + d.Supplier)
		if strings.Contains(haystack, term) {
			out = append(out, d)
		}
	}
	return out
}

func (s *Store) LowStock(threshold int) []domain.Drug {
	if threshold <= 0 {
		threshold = LowStockThreshold
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Drug, 0)
	for _, d := range s.drugs {
		if d.Quantity <= threshold {
			out = append(out, d)
		}
	}
	return out
}

// ExpiringWithin returns drugs whose expiry date falls on or before
// now + days, soonest first. Unparseable dates never match (AddOrUpdate
// rejects them, but synced data may predate validation).
func (s *Store) ExpiringWithin(now time.Time, days int) []domain.Drug {
	cutoff := now.AddDate(0, 0, days)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Drug, 0)
	for _, d := range s.drugs {
		expiry, err := time.Parse(domain.DateLayout, d.Expiry)
		if err != nil {
			continue
		}
		if !expiry.After(cutoff) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Expiry < out[j].Expiry })
	return out
}

// Replace swaps in a whole new collection (sync pull and import paths).
func (s *Store) Replace(ctx context.Context, drugs []domain.Drug) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drugs = make([]domain.Drug, len(drugs))
	copy(s.drugs, drugs)
	s.persistLocked(ctx)
}
