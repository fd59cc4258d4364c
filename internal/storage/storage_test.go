package storage

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eugenenazirov/trade-ledger/internal/ledger"
)

func testOrder(year int, month time.Month, quantity string) ledger.Order {
	return ledger.Order{
		Date:     time.Date(year, month, 1, 0, 0, 0, 0, time.UTC),
		Buyer:    "Acme",
		Supplier: "Timber Co",
		Details: []ledger.OrderDetail{{
			Product:       "pine",
			Quantity:      decimal.RequireFromString(quantity),
			BuyerPrice:    decimal.NewFromInt(300),
			SupplierPrice: decimal.NewFromInt(250),
		}},
	}
}

func TestAddOrderAssignsIDAndPrices(t *testing.T) {
	t.Parallel()

	store := NewMemoryStorage()
	got, err := store.AddOrder(testOrder(2024, time.March, "2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 1 {
		t.Fatalf("expected id 1, got %d", got.ID)
	}
	if !got.Details[0].BuyerSum.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("expected buyer sum 600, got %s", got.Details[0].BuyerSum)
	}

	second, err := store.AddOrder(testOrder(2024, time.April, "1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ID <= got.ID {
		t.Fatalf("expected increasing ids, got %d after %d", second.ID, got.ID)
	}
}

func TestAddOrderSettlesAgainstInvoices(t *testing.T) {
	t.Parallel()

	store := NewMemoryStorage()
	date := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	prepaid, err := store.AddInvoice(ledger.Invoice{
		Number: "FV 1/2024", Party: ledger.PartyBuyer, PartyName: "Acme", Date: date,
		Value: decimal.NewFromInt(1000), AmountToUse: decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	supplierInvoice, err := store.AddInvoice(ledger.Invoice{
		Number: "FV 9/2024", Party: ledger.PartySupplier, PartyName: "Timber Co", Date: date,
		Value: decimal.NewFromInt(500), AmountToUse: decimal.NewFromInt(500),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 3 * 300 = 900 for the buyer, 3 * 250 = 750 for the supplier.
	order, err := store.AddOrder(testOrder(2024, time.March, "3"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order.Settlements) != 2 {
		t.Fatalf("expected buyer and supplier settlements, got %+v", order.Settlements)
	}
	if alloc := order.Settlements[0].Allocations; len(alloc) != 1 || alloc[0].InvoiceID != prepaid.ID {
		t.Fatalf("expected buyer line paid from %d, got %+v", prepaid.ID, alloc)
	}
	if want := decimal.NewFromInt(250); !order.Settlements[1].Shortfall.Equal(want) {
		t.Fatalf("expected supplier shortfall %s, got %s", want, order.Settlements[1].Shortfall)
	}

	invoices, _ := store.Invoices(0)
	byNumber := make(map[string]ledger.Invoice)
	for _, inv := range invoices {
		byNumber[string(inv.Party)+"/"+inv.Number] = inv
	}
	if got := byNumber["buyer/FV 1/2024"]; !got.AmountToUse.Equal(decimal.NewFromInt(100)) || got.Used {
		t.Fatalf("expected 100 left on the buyer invoice, got %+v", got)
	}
	if got := byNumber["supplier/FV 9/2024"]; !got.AmountToUse.IsZero() || !got.Used || got.ID != supplierInvoice.ID {
		t.Fatalf("expected supplier invoice to be used up, got %+v", got)
	}
	shortfall, ok := byNumber["supplier/"+ledger.ShortfallInvoiceNumber]
	if !ok {
		t.Fatalf("expected a supplier shortfall invoice, got %+v", invoices)
	}
	if shortfall.ID == 0 || !shortfall.Value.Equal(decimal.NewFromInt(-250)) {
		t.Fatalf("unexpected shortfall invoice %+v", shortfall)
	}

	// The next order uses the remaining 100 and grows the buyer's shortfall.
	if _, err := store.AddOrder(testOrder(2024, time.April, "1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	invoices, _ = store.Invoices(0)
	var buyerShortfall decimal.Decimal
	for _, inv := range invoices {
		if inv.Party == ledger.PartyBuyer && inv.IsShortfall() {
			buyerShortfall = inv.Value
		}
	}
	if !buyerShortfall.Equal(decimal.NewFromInt(-200)) {
		t.Fatalf("expected buyer shortfall -200, got %s", buyerShortfall)
	}
}

func TestAddOrderRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	store := NewMemoryStorage()
	bad := testOrder(2024, time.March, "0")
	if _, err := store.AddOrder(bad); !errors.Is(err, ledger.ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder, got %v", err)
	}
	orders, _ := store.Orders(0)
	if len(orders) != 0 {
		t.Fatalf("expected no stored orders, got %d", len(orders))
	}
}

func TestOrdersFiltersByYearAndSorts(t *testing.T) {
	t.Parallel()

	store := NewMemoryStorage()
	for _, o := range []ledger.Order{
		testOrder(2024, time.June, "1"),
		testOrder(2023, time.January, "1"),
		testOrder(2024, time.February, "1"),
	} {
		if _, err := store.AddOrder(o); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := store.Orders(2024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 orders in 2024, got %d", len(got))
	}
	if got[0].Date.Month() != time.February || got[1].Date.Month() != time.June {
		t.Fatalf("expected orders sorted by date, got %v and %v", got[0].Date, got[1].Date)
	}

	all, _ := store.Orders(0)
	if len(all) != 3 {
		t.Fatalf("expected 3 orders overall, got %d", len(all))
	}
}

func TestOrdersReturnsDefensiveCopies(t *testing.T) {
	t.Parallel()

	store := NewMemoryStorage()
	if _, err := store.AddOrder(testOrder(2024, time.March, "1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := store.Orders(2024)
	got[0].Details[0].Product = "mutated"

	again, _ := store.Orders(2024)
	if again[0].Details[0].Product != "pine" {
		t.Fatalf("expected defensive copy, got %q", again[0].Details[0].Product)
	}
}

func TestCostsAndInvoices(t *testing.T) {
	t.Parallel()

	store := NewMemoryStorage()
	date := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	if _, err := store.AddCost(ledger.Cost{Name: "rent", Date: date, Value: decimal.NewFromInt(3000)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.AddCost(ledger.Cost{Date: date}); !errors.Is(err, ledger.ErrInvalidCost) {
		t.Fatalf("expected ErrInvalidCost, got %v", err)
	}

	inv := ledger.Invoice{Number: "FV 1", Party: ledger.PartyBuyer, PartyName: "Acme", Date: date, Value: decimal.NewFromInt(10)}
	if _, err := store.AddInvoice(inv); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inv.Party = "nobody"
	if _, err := store.AddInvoice(inv); !errors.Is(err, ledger.ErrInvalidInvoice) {
		t.Fatalf("expected ErrInvalidInvoice, got %v", err)
	}

	costs, _ := store.Costs(2024)
	invoices, _ := store.Invoices(2024)
	if len(costs) != 1 || len(invoices) != 1 {
		t.Fatalf("expected one cost and one invoice, got %d and %d", len(costs), len(invoices))
	}
	if other, _ := store.Costs(2023); len(other) != 0 {
		t.Fatalf("expected no costs in 2023, got %d", len(other))
	}
}

func TestSaveReportUpserts(t *testing.T) {
	t.Parallel()

	store := NewMemoryStorage()
	if _, err := store.Report("2024"); !errors.Is(err, ErrReportNotFound) {
		t.Fatalf("expected ErrReportNotFound, got %v", err)
	}

	first := ledger.Report{Type: "2024", Year: 2024, Income: decimal.NewFromInt(1)}
	second := ledger.Report{Type: "2024", Year: 2024, Income: decimal.NewFromInt(2)}
	for _, r := range []ledger.Report{first, second, {Type: "2023", Year: 2023}} {
		if err := store.SaveReport(r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := store.Report("2024")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Income.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected report to be replaced, income %s", got.Income)
	}

	all, _ := store.Reports()
	if len(all) != 2 || all[0].Type != "2023" || all[1].Type != "2024" {
		t.Fatalf("unexpected reports: %+v", all)
	}

	if err := store.SaveReport(ledger.Report{}); err == nil {
		t.Fatalf("expected error for empty report type")
	}
}

func TestMemoryStorageConcurrentAccess(t *testing.T) {
	store := NewMemoryStorage()
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(2)

		go func(offset int) {
			defer wg.Done()
			if _, err := store.AddOrder(testOrder(2024, time.Month(offset%12+1), "1")); err != nil {
				t.Errorf("AddOrder failed: %v", err)
			}
		}(i)

		go func() {
			defer wg.Done()
			if _, err := store.Orders(2024); err != nil {
				t.Errorf("Orders failed: %v", err)
			}
		}()
	}

	wg.Wait()

	orders, err := store.Orders(2024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 32 {
		t.Fatalf("expected 32 orders, got %d", len(orders))
	}
	seen := make(map[int64]struct{}, len(orders))
	for _, o := range orders {
		if _, dup := seen[o.ID]; dup {
			t.Fatalf("duplicate id %d", o.ID)
		}
		seen[o.ID] = struct{}{}
	}
}

const seedYAML = `
orders:
  - date: 2024-03-01
    buyer: Acme
    supplier: Timber Co
    details:
      - product: pine
        quantity: 12.5
        buyer_price: 310
        supplier_price: "250.40"
costs:
  - date: 2024-01-10
    name: fuel
    value: 1200.50
invoices:
  - number: FV 1/2024
    party: buyer
    party_name: Acme
    date: 2024-02-01
    value: 5000
    amount_to_use: 750
`

func TestApplySeed(t *testing.T) {
	t.Parallel()

	store := NewMemoryStorage()
	counts, err := ApplySeed(store, []byte(seedYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts != (SeedCounts{Orders: 1, Costs: 1, Invoices: 1}) {
		t.Fatalf("unexpected counts: %+v", counts)
	}

	orders, _ := store.Orders(2024)
	if len(orders) != 1 {
		t.Fatalf("expected seeded order, got %d", len(orders))
	}
	if want := decimal.RequireFromString("3875"); !orders[0].Details[0].BuyerSum.Equal(want) {
		t.Fatalf("expected buyer sum %s, got %s", want, orders[0].Details[0].BuyerSum)
	}
	invoices, _ := store.Invoices(2024)
	if len(invoices) != 3 {
		t.Fatalf("expected the seeded invoice and two shortfall invoices, got %+v", invoices)
	}
	if first := invoices[0]; first.Number != "FV 1/2024" || !first.AmountToUse.IsZero() || !first.Used {
		t.Fatalf("expected seeded invoice to settle the order, got %+v", first)
	}
	for _, inv := range invoices[1:] {
		if !inv.IsShortfall() {
			t.Fatalf("expected shortfall invoice, got %+v", inv)
		}
	}
}

func TestApplySeedStopsAtInvalidEntry(t *testing.T) {
	t.Parallel()

	doc := `
costs:
  - date: 2024-01-10
    name: fuel
    value: 10
  - date: 2024-01-11
    value: 10
`
	counts, err := ApplySeed(NewMemoryStorage(), []byte(doc))
	if !errors.Is(err, ledger.ErrInvalidCost) {
		t.Fatalf("expected ErrInvalidCost, got %v", err)
	}
	if counts.Costs != 1 {
		t.Fatalf("expected one cost loaded before failure, got %d", counts.Costs)
	}
}

func TestLoadSeedFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(seedYAML), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	if _, err := LoadSeed(NewMemoryStorage(), path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := LoadSeed(NewMemoryStorage(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
