// Package ledger owns the sale records. Sales append on checkout and are
// removed only by the compensating delete, which restocks the referenced
// drug.
package ledger

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"pharmastore/backend/internal/domain"
	"pharmastore/backend/internal/inventory"
	"pharmastore/backend/internal/storage"
	"pharmastore/backend/internal/xid"
)

type Ledger struct {
	mu        sync.Mutex
	sales     []domain.Sale
	storage   storage.Store
	inventory *inventory.Store
}

func New(ctx context.Context, st storage.Store, inv *inventory.Store) (*Ledger, error) {
	l := &Ledger{storage: st, inventory: inv}
	if _, err := st.Load(ctx, storage.KeySales, &l.sales); err != nil {
		return nil, fmt.Errorf("load sales: %w", err)
	}
	return l, nil
}

func (l *Ledger) persistLocked(ctx context.Context) {
	if err := l.storage.Save(ctx, storage.KeySales, l.sales); err != nil {
		log.Printf("[ledger] WARN: failed to persist sales: %v", err)
	}
}

// RecordSale debits the inventory and appends the sale as one logical unit:
// a failed debit creates no sale, and a successful debit is always followed
// by the append under the same lock.
func (l *Ledger) RecordSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	if req.Quantity <= 0 {
		return domain.Sale{}, fmt.Errorf("%w: sale quantity must be positive", domain.ErrValidation)
	}
	if req.Price < 0 {
		return domain.Sale{}, fmt.Errorf("%w: sale price must not be negative", domain.ErrValidation)
	}

	drug, ok := l.inventory.Get(req.DrugID)
	if !ok {
		return domain.Sale{}, fmt.Errorf("%w: drug %s", domain.ErrNotFound, req.DrugID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.inventory.Debit(ctx, req.DrugID, req.Quantity); err != nil {
		return domain.Sale{}, err
	}

	customer := strings.TrimSpace(req.CustomerName)
	if customer == "" {
		customer = "Walk-in Customer"
	}

	now := time.Now()
	sale := domain.Sale{
		ID:            xid.New("sale"),
		DrugID:        drug.ID,
		DrugName:      drug.Name,
		Quantity:      req.Quantity,
		Price:         req.Price,
		Total:         float64(req.Quantity) * req.Price,
		CustomerName:  customer,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		Date:          now.Format(domain.DateLayout),
		Time:          now.Format(domain.TimeLayout),
		SoldBy:        strings.TrimSpace(req.SoldBy),
	}

	l.sales = append(l.sales, sale)
	l.persistLocked(ctx)
	return sale, nil
}

// DeleteSale removes the sale and credits its quantity back to the drug. A
// missing sale id is a no-op. When the drug was deleted after the sale the
// restock cannot happen; the sale is still removed and the ErrNotFound is
// returned as a warning rather than a hard failure.
func (l *Ledger) DeleteSale(ctx context.Context, id string) (domain.Sale, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := -1
	for i := range l.sales {
		if l.sales[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return domain.Sale{}, false, nil
	}

	sale := l.sales[idx]
	var warn error
	if _, err := l.inventory.Credit(ctx, sale.DrugID, sale.Quantity); err != nil {
		warn = fmt.Errorf("restock %d of %q skipped: %w", sale.Quantity, sale.DrugName, err)
		log.Printf("[ledger] WARN: %v", warn)
	}

	l.sales = append(l.sales[:idx], l.sales[idx+1:]...)
	l.persistLocked(ctx)
	return sale, true, warn
}

// Recent returns the last n sales, most recent first.
func (l *Ledger) Recent(n int) []domain.Sale {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > len(l.sales) {
		n = len(l.sales)
	}
	out := make([]domain.Sale, 0, n)
	for i := len(l.sales) - 1; i >= len(l.sales)-n; i-- {
		out = append(out, l.sales[i])
	}
	return out
}

// List returns a copy of the full ledger in insertion order.
func (l *Ledger) List() []domain.Sale {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.Sale, len(l.sales))
	copy(out, l.sales)
	return out
}

// Replace swaps in a whole new ledger (sync pull and import paths).
func (l *Ledger) Replace(ctx context.Context, sales []domain.Sale) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sales = make([]domain.Sale, len(sales))
	copy(l.sales, sales)
	l.persistLocked(ctx)
}
