package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// ShortfallInvoiceNumber is the number of the running invoice that records
// what a party owes once its prepaid invoices are used up. Its value and
// unused amount are negative.
const ShortfallInvoiceNumber = "SHORTFALL"

// Allocation is the part of an order line paid from one invoice.
type Allocation struct {
	InvoiceID int64           `json:"invoiceId"`
	Number    string          `json:"number"`
	Amount    decimal.Decimal `json:"amount"`
}

// Settlement describes how one side of an order line was paid.
type Settlement struct {
	Line        int             `json:"line"`
	Party       PartyKind       `json:"party"`
	PartyName   string          `json:"partyName"`
	Amount      decimal.Decimal `json:"amount"`
	Allocations []Allocation    `json:"allocations"`
	Shortfall   decimal.Decimal `json:"shortfall"`
}

// IsShortfall reports whether inv is a party's running shortfall invoice.
func (inv Invoice) IsShortfall() bool {
	return inv.Number == ShortfallInvoiceNumber
}

// Settle pays every line of a priced order from the parties' unused invoices,
// oldest first. The buyer side of a line draws on the buyer's invoices and the
// supplier side on the supplier's. An invoice whose unused amount reaches zero
// is marked used. Whatever cannot be covered is added to the party's shortfall
// invoice, which is created dated on the order when missing and returned with
// a zero ID. The input slice is not modified.
func Settle(order Order, invoices []Invoice) ([]Invoice, []Settlement) {
	out := make([]Invoice, len(invoices))
	copy(out, invoices)

	settlements := make([]Settlement, 0, 2*len(order.Details))
	for i, d := range order.Details {
		settlements = append(settlements,
			settleAmount(&out, order, i+1, PartyBuyer, order.Buyer, d.BuyerSum),
			settleAmount(&out, order, i+1, PartySupplier, order.Supplier, d.SupplierSum),
		)
	}
	return out, settlements
}

func settleAmount(invoices *[]Invoice, order Order, line int, party PartyKind, name string, amount decimal.Decimal) Settlement {
	s := Settlement{
		Line:        line,
		Party:       party,
		PartyName:   name,
		Amount:      amount,
		Allocations: []Allocation{},
		Shortfall:   decimal.Zero,
	}

	remaining := amount.Round(moneyPlaces)
	for _, idx := range openInvoices(*invoices, party, name) {
		if !remaining.IsPositive() {
			break
		}
		inv := &(*invoices)[idx]
		paid := decimal.Min(inv.AmountToUse, remaining)
		inv.AmountToUse = inv.AmountToUse.Sub(paid)
		if inv.AmountToUse.IsZero() {
			inv.Used = true
		}
		remaining = remaining.Sub(paid)
		s.Allocations = append(s.Allocations, Allocation{InvoiceID: inv.ID, Number: inv.Number, Amount: paid})
	}

	if remaining.IsPositive() {
		s.Shortfall = remaining
		addShortfall(invoices, order, party, name, remaining)
	}
	return s
}

// openInvoices returns the indexes of the party's invoices that still have
// an unused amount, ordered by date and id.
func openInvoices(invoices []Invoice, party PartyKind, name string) []int {
	var idx []int
	for i, inv := range invoices {
		if inv.Party == party && inv.PartyName == name && !inv.Used && !inv.IsShortfall() && inv.AmountToUse.IsPositive() {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ia, ib := invoices[idx[a]], invoices[idx[b]]
		if !ia.Date.Equal(ib.Date) {
			return ia.Date.Before(ib.Date)
		}
		return ia.ID < ib.ID
	})
	return idx
}

func addShortfall(invoices *[]Invoice, order Order, party PartyKind, name string, amount decimal.Decimal) {
	for i := range *invoices {
		inv := &(*invoices)[i]
		if inv.Party == party && inv.PartyName == name && inv.IsShortfall() {
			inv.Value = inv.Value.Sub(amount)
			inv.AmountToUse = inv.AmountToUse.Sub(amount)
			return
		}
	}
	*invoices = append(*invoices, Invoice{
		Number:      ShortfallInvoiceNumber,
		Party:       party,
		PartyName:   name,
		Date:        order.Date,
		Value:       amount.Neg(),
		AmountToUse: amount.Neg(),
	})
}
