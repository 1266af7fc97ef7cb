package ledger

import (
	"context"
	"errors"
	"testing"

	"pharmastore/backend/internal/domain"
	"pharmastore/backend/internal/inventory"
	"pharmastore/backend/internal/storage"
)

func newTestLedger(t *testing.T) (*Ledger, *inventory.Store) {
	t.Helper()
	st := storage.NewMemory()
	inv, err := inventory.New(context.Background(), st)
	if err != nil {
		t.Fatalf("new inventory: %v", err)
	}
	led, err := New(context.Background(), st, inv)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return led, inv
}

func seedDrug(t *testing.T, inv *inventory.Store, name string, qty int, price float64) domain.Drug {
	t.Helper()
	drug, err := inv.AddOrUpdate(context.Background(), domain.DrugRequest{
		Name: name, Category: "general", Quantity: qty, Price: price, Expiry: "2027-12-31",
	})
	if err != nil {
		t.Fatalf("seed drug: %v", err)
	}
	return drug
}

func TestRecordSaleDebitsStockAndComputesTotal(t *testing.T) {
	led, inv := newTestLedger(t)
	drug := seedDrug(t, inv, "Paracetamol", 20, 5)

	sale, err := led.RecordSale(context.Background(), domain.SaleRequest{
		DrugID: drug.ID, Quantity: 5, Price: 5, SoldBy: "admin",
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if sale.Total != 25 {
		t.Fatalf("expected total 25.00, got %v", sale.Total)
	}
	if sale.DrugName != "Paracetamol" {
		t.Fatalf("expected drug name snapshot, got %q", sale.DrugName)
	}
	if sale.CustomerName != "Walk-in Customer" {
		t.Fatalf("expected walk-in default, got %q", sale.CustomerName)
	}
	if current, _ := inv.Get(drug.ID); current.Quantity != 15 {
		t.Fatalf("expected stock 15 after sale, got %d", current.Quantity)
	}
	if got := len(led.List()); got != 1 {
		t.Fatalf("expected one ledger entry, got %d", got)
	}
}

func TestRecordSaleInsufficientStockLeavesEverythingUntouched(t *testing.T) {
	led, inv := newTestLedger(t)
	drug := seedDrug(t, inv, "Amoxicillin", 20, 8)

	_, err := led.RecordSale(context.Background(), domain.SaleRequest{
		DrugID: drug.ID, Quantity: 25, Price: 8,
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if current, _ := inv.Get(drug.ID); current.Quantity != 20 {
		t.Fatalf("failed sale must not touch stock, got %d", current.Quantity)
	}
	if got := len(led.List()); got != 0 {
		t.Fatalf("failed sale must not append, got %d entries", got)
	}
}

func TestRecordSaleUnknownDrug(t *testing.T) {
	led, _ := newTestLedger(t)
	if _, err := led.RecordSale(context.Background(), domain.SaleRequest{DrugID: "ghost", Quantity: 1, Price: 1}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRecordSaleValidation(t *testing.T) {
	led, inv := newTestLedger(t)
	drug := seedDrug(t, inv, "Aspirin", 10, 2)

	if _, err := led.RecordSale(context.Background(), domain.SaleRequest{DrugID: drug.ID, Quantity: 0, Price: 2}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("zero quantity: expected validation error, got %v", err)
	}
	if _, err := led.RecordSale(context.Background(), domain.SaleRequest{DrugID: drug.ID, Quantity: 1, Price: -2}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("negative price: expected validation error, got %v", err)
	}
}

func TestDeleteSaleRestocksExactly(t *testing.T) {
	led, inv := newTestLedger(t)
	drug := seedDrug(t, inv, "Cetirizine", 30, 3)

	sale, err := led.RecordSale(context.Background(), domain.SaleRequest{DrugID: drug.ID, Quantity: 12, Price: 3})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	removed, ok, warn := led.DeleteSale(context.Background(), sale.ID)
	if !ok {
		t.Fatalf("expected sale to be found")
	}
	if warn != nil {
		t.Fatalf("unexpected restock warning: %v", warn)
	}
	if removed.ID != sale.ID {
		t.Fatalf("wrong sale removed: %+v", removed)
	}
	if current, _ := inv.Get(drug.ID); current.Quantity != 30 {
		t.Fatalf("expected delete to restore pre-sale quantity 30, got %d", current.Quantity)
	}
	if got := len(led.List()); got != 0 {
		t.Fatalf("expected empty ledger after delete, got %d", got)
	}
}

func TestDeleteSaleMissingIsNoOp(t *testing.T) {
	led, _ := newTestLedger(t)
	if _, ok, _ := led.DeleteSale(context.Background(), "nope"); ok {
		t.Fatalf("expected no-op for unknown sale id")
	}
}

func TestDeleteSaleWithDeletedDrugStillRemovesSale(t *testing.T) {
	led, inv := newTestLedger(t)
	drug := seedDrug(t, inv, "Ibuprofen", 10, 4)

	sale, err := led.RecordSale(context.Background(), domain.SaleRequest{DrugID: drug.ID, Quantity: 2, Price: 4})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if _, ok := inv.Remove(context.Background(), drug.ID); !ok {
		t.Fatalf("remove drug failed")
	}

	_, ok, warn := led.DeleteSale(context.Background(), sale.ID)
	if !ok {
		t.Fatalf("sale must still be removed when the drug is gone")
	}
	if !errors.Is(warn, domain.ErrNotFound) {
		t.Fatalf("expected a not-found restock warning, got %v", warn)
	}
	if got := len(led.List()); got != 0 {
		t.Fatalf("expected sale removed, ledger has %d entries", got)
	}
}

func TestRecentReturnsMostRecentFirst(t *testing.T) {
	led, inv := newTestLedger(t)
	drug := seedDrug(t, inv, "Vitamin C", 100, 1)

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		sale, err := led.RecordSale(context.Background(), domain.SaleRequest{DrugID: drug.ID, Quantity: 1, Price: 1})
		if err != nil {
			t.Fatalf("record sale %d: %v", i, err)
		}
		ids = append(ids, sale.ID)
	}

	recent := led.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("expected 2 recent sales, got %d", len(recent))
	}
	if recent[0].ID != ids[2] || recent[1].ID != ids[1] {
		t.Fatalf("recent not in reverse-chronological order: %+v", recent)
	}

	if got := len(led.Recent(0)); got != 3 {
		t.Fatalf("limit 0 should return all, got %d", got)
	}
}

func TestReplaceSwapsLedgerWhole(t *testing.T) {
	led, inv := newTestLedger(t)
	drug := seedDrug(t, inv, "Zinc", 50, 2)
	if _, err := led.RecordSale(context.Background(), domain.SaleRequest{DrugID: drug.ID, Quantity: 1, Price: 2}); err != nil {
		t.Fatalf("record sale: %v", err)
	}

	led.Replace(context.Background(), []domain.Sale{{ID: "sale-x", DrugID: drug.ID, DrugName: "Zinc", Quantity: 2, Total: 4, Date: "2026-08-30"}})

	got := led.List()
	if len(got) != 1 || got[0].ID != "sale-x" {
		t.Fatalf("replace did not swap ledger: %+v", got)
	}
}
