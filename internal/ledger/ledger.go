package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/eugenenazirov/trade-ledger/internal/currency"
)

const (
	minYear     = 1900
	maxYear     = 9999
	moneyPlaces = 2
)

// PriceDetail returns d with buyer and supplier sums computed from its
// quantity, rounded half up to whole cents.
func PriceDetail(d OrderDetail) OrderDetail {
	d.BuyerSum = d.Quantity.Mul(d.BuyerPrice).Round(moneyPlaces)
	d.SupplierSum = d.Quantity.Mul(d.SupplierPrice).Round(moneyPlaces)
	return d
}

// PriceOrder prices every line of o. The input order is left untouched.
func PriceOrder(o Order) Order {
	details := make([]OrderDetail, len(o.Details))
	for i, d := range o.Details {
		details[i] = PriceDetail(d)
	}
	o.Details = details
	return o
}

// ValidateYear reports whether year can carry a report.
func ValidateYear(year int) error {
	if year < minYear || year > maxYear {
		return ErrInvalidYear
	}
	return nil
}

// ValidateOrder checks that an order names both parties, has a date and
// carries at least one line with a positive quantity and non-negative prices.
func ValidateOrder(o Order) error {
	if strings.TrimSpace(o.Buyer) == "" || strings.TrimSpace(o.Supplier) == "" {
		return fmt.Errorf("%w: buyer and supplier are required", ErrInvalidOrder)
	}
	if o.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidOrder)
	}
	if len(o.Details) == 0 {
		return fmt.Errorf("%w: at least one order line is required", ErrInvalidOrder)
	}
	for i, d := range o.Details {
		if !d.Quantity.IsPositive() {
			return fmt.Errorf("%w: line %d quantity must be positive", ErrInvalidOrder, i+1)
		}
		if d.BuyerPrice.IsNegative() || d.SupplierPrice.IsNegative() {
			return fmt.Errorf("%w: line %d prices must not be negative", ErrInvalidOrder, i+1)
		}
		if !withinLimits(d.Quantity, d.BuyerPrice, d.SupplierPrice) {
			return fmt.Errorf("%w: line %d amounts are out of range", ErrInvalidOrder, i+1)
		}
	}
	return nil
}

// ValidateCost checks that a cost is named, dated and not negative.
func ValidateCost(c Cost) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCost)
	}
	if c.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidCost)
	}
	if c.Value.IsNegative() {
		return fmt.Errorf("%w: value must not be negative", ErrInvalidCost)
	}
	if !withinLimits(c.Value) {
		return fmt.Errorf("%w: value is out of range", ErrInvalidCost)
	}
	return nil
}

// ValidateInvoice checks the party and that the unused amount does not
// exceed the invoice value. Negative values are allowed for shortfall invoices.
func ValidateInvoice(inv Invoice) error {
	if inv.Party != PartyBuyer && inv.Party != PartySupplier {
		return fmt.Errorf("%w: party must be %q or %q", ErrInvalidInvoice, PartyBuyer, PartySupplier)
	}
	if strings.TrimSpace(inv.PartyName) == "" {
		return fmt.Errorf("%w: party name is required", ErrInvalidInvoice)
	}
	if inv.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidInvoice)
	}
	if !withinLimits(inv.Value, inv.AmountToUse) {
		return fmt.Errorf("%w: amounts are out of range", ErrInvalidInvoice)
	}
	if inv.Value.IsPositive() && inv.AmountToUse.GreaterThan(inv.Value) {
		return fmt.Errorf("%w: amount to use exceeds value", ErrInvalidInvoice)
	}
	return nil
}

func withinLimits(values ...decimal.Decimal) bool {
	for _, v := range values {
		if !currency.WithinLimits(v) {
			return false
		}
	}
	return true
}

func sum(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
