package storage

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eugenenazirov/trade-ledger/internal/ledger"
)

var (
	// ErrReportNotFound indicates no report has been generated for the requested type.
	ErrReportNotFound = errors.New("report not found")
)

// Storage provides access to the ledger entries and generated reports.
type Storage interface {
	AddOrder(order ledger.Order) (ledger.Order, error)
	Orders(year int) ([]ledger.Order, error)
	AddCost(cost ledger.Cost) (ledger.Cost, error)
	Costs(year int) ([]ledger.Cost, error)
	AddInvoice(invoice ledger.Invoice) (ledger.Invoice, error)
	Invoices(year int) ([]ledger.Invoice, error)
	SaveReport(report ledger.Report) error
	Report(reportType string) (ledger.Report, error)
	Reports() ([]ledger.Report, error)
}

// MemoryStorage keeps ledger entries in-memory and guards access with a RWMutex.
type MemoryStorage struct {
	mu       sync.RWMutex
	nextID   int64
	orders   []ledger.Order
	costs    []ledger.Cost
	invoices []ledger.Invoice
	reports  map[string]ledger.Report
}

// NewMemoryStorage returns an empty store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		reports: make(map[string]ledger.Report),
	}
}

// AddOrder validates and prices the order, settles it against the parties'
// unused invoices, assigns it an id and stores it. Shortfall invoices created
// by the settlement get ids as well.
func (s *MemoryStorage) AddOrder(order ledger.Order) (ledger.Order, error) {
	if err := ledger.ValidateOrder(order); err != nil {
		return ledger.Order{}, err
	}
	priced := ledger.PriceOrder(order)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	priced.ID = s.nextID

	invoices, settlements := ledger.Settle(priced, s.invoices)
	for i := range invoices {
		if invoices[i].ID == 0 {
			s.nextID++
			invoices[i].ID = s.nextID
		}
	}
	s.invoices = invoices
	priced.Settlements = settlements
	s.orders = append(s.orders, cloneOrder(priced))

	return cloneOrder(priced), nil
}

// Orders returns the orders dated in year, or all orders when year is 0.
func (s *MemoryStorage) Orders(year int) ([]ledger.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ledger.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if inYear(o.Date, year) {
			out = append(out, cloneOrder(o))
		}
	}
	sortByDate(out, func(o ledger.Order) (time.Time, int64) { return o.Date, o.ID })
	return out, nil
}

// AddCost validates the cost, assigns it an id and stores it.
func (s *MemoryStorage) AddCost(cost ledger.Cost) (ledger.Cost, error) {
	if err := ledger.ValidateCost(cost); err != nil {
		return ledger.Cost{}, err
	}

	s.mu.Lock()
	s.nextID++
	cost.ID = s.nextID
	s.costs = append(s.costs, cost)
	s.mu.Unlock()

	return cost, nil
}

// Costs returns the costs dated in year, or all costs when year is 0.
func (s *MemoryStorage) Costs(year int) ([]ledger.Cost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ledger.Cost, 0, len(s.costs))
	for _, c := range s.costs {
		if inYear(c.Date, year) {
			out = append(out, c)
		}
	}
	sortByDate(out, func(c ledger.Cost) (time.Time, int64) { return c.Date, c.ID })
	return out, nil
}

// AddInvoice validates the invoice, assigns it an id and stores it.
func (s *MemoryStorage) AddInvoice(invoice ledger.Invoice) (ledger.Invoice, error) {
	if err := ledger.ValidateInvoice(invoice); err != nil {
		return ledger.Invoice{}, err
	}

	s.mu.Lock()
	s.nextID++
	invoice.ID = s.nextID
	s.invoices = append(s.invoices, invoice)
	s.mu.Unlock()

	return invoice, nil
}

// Invoices returns the invoices dated in year, or all invoices when year is 0.
func (s *MemoryStorage) Invoices(year int) ([]ledger.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ledger.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		if inYear(inv.Date, year) {
			out = append(out, inv)
		}
	}
	sortByDate(out, func(inv ledger.Invoice) (time.Time, int64) { return inv.Date, inv.ID })
	return out, nil
}

// SaveReport inserts the report or replaces the one with the same type.
func (s *MemoryStorage) SaveReport(report ledger.Report) error {
	if report.Type == "" {
		return fmt.Errorf("save report: empty report type")
	}

	s.mu.Lock()
	s.reports[report.Type] = report
	s.mu.Unlock()

	return nil
}

// Report returns the report stored under reportType.
func (s *MemoryStorage) Report(reportType string) (ledger.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report, ok := s.reports[reportType]
	if !ok {
		return ledger.Report{}, ErrReportNotFound
	}
	return report, nil
}

// Reports returns all stored reports ordered by type.
func (s *MemoryStorage) Reports() ([]ledger.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ledger.Report, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func inYear(t time.Time, year int) bool {
	return year == 0 || t.Year() == year
}

func cloneOrder(o ledger.Order) ledger.Order {
	details := make([]ledger.OrderDetail, len(o.Details))
	copy(details, o.Details)
	o.Details = details
	if o.Settlements != nil {
		settlements := make([]ledger.Settlement, len(o.Settlements))
		for i, st := range o.Settlements {
			allocations := make([]ledger.Allocation, len(st.Allocations))
			copy(allocations, st.Allocations)
			st.Allocations = allocations
			settlements[i] = st
		}
		o.Settlements = settlements
	}
	return o
}

func sortByDate[T any](items []T, key func(T) (time.Time, int64)) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return idi < idj
	})
}
