package ledger

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const averagePlaces = 2

type yearReportBuilder struct {
	clock func() time.Time
}

// Option configures the report builder.
type Option func(*yearReportBuilder)

// WithClock overrides the time source used for GeneratedAt.
func WithClock(clock func() time.Time) Option {
	return func(b *yearReportBuilder) {
		b.clock = clock
	}
}

// New creates a ReportBuilder that aggregates a calendar year.
func New(opts ...Option) ReportBuilder {
	b := &yearReportBuilder{
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build aggregates the entries dated within year. Entries from other years
// are ignored, so callers may pass unfiltered slices.
func (b *yearReportBuilder) Build(year int, orders []Order, costs []Cost, invoices []Invoice) (Report, error) {
	if err := ValidateYear(year); err != nil {
		return Report{}, err
	}

	var sold, bought, quantity []decimal.Decimal
	for _, o := range orders {
		if o.Date.Year() != year {
			continue
		}
		for _, d := range PriceOrder(o).Details {
			sold = append(sold, d.BuyerSum)
			bought = append(bought, d.SupplierSum)
			quantity = append(quantity, d.Quantity)
		}
	}

	soldValue := sum(sold)
	boughtValue := sum(bought)
	soldQuantity := sum(quantity)

	averageSold := average(soldValue, soldQuantity)
	averagePurchase := average(boughtValue, soldQuantity)

	return Report{
		Type:                  strconv.Itoa(year),
		Year:                  year,
		SoldValue:             soldValue,
		BoughtValue:           boughtValue,
		SoldQuantity:          soldQuantity,
		AverageSold:           averageSold,
		AveragePurchase:       averagePurchase,
		AverageEarningsPerM3:  averageSold.Sub(averagePurchase),
		Income:                soldValue.Sub(boughtValue),
		SumCosts:              sumCosts(year, costs),
		BuyersNotPaidInvoices: buyersNotPaid(year, invoices),
		GeneratedAt:           b.clock(),
	}, nil
}

func average(total, quantity decimal.Decimal) decimal.Decimal {
	if quantity.IsZero() {
		return decimal.Zero
	}
	return total.Div(quantity).RoundBank(averagePlaces)
}

// sumCosts returns the costs of the year as a negative amount.
func sumCosts(year int, costs []Cost) decimal.Decimal {
	total := decimal.Zero
	for _, c := range costs {
		if c.Date.Year() != year {
			continue
		}
		total = total.Sub(c.Value)
	}
	return total
}

// buyersNotPaid adds the unused part of unpaid standalone buyer invoices to
// the full value of unpaid buyer invoices raised for an order. Shortfall
// invoices are not counted.
func buyersNotPaid(year int, invoices []Invoice) decimal.Decimal {
	total := decimal.Zero
	for _, inv := range invoices {
		if inv.Party != PartyBuyer || inv.Paid || inv.IsShortfall() || inv.Date.Year() != year {
			continue
		}
		if inv.CreatedToOrder {
			total = total.Add(inv.Value)
		} else {
			total = total.Add(inv.AmountToUse)
		}
	}
	return total
}
