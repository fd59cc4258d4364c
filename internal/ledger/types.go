package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// PartyKind distinguishes the two sides of a trade.
type PartyKind string

const (
	PartyBuyer    PartyKind = "buyer"
	PartySupplier PartyKind = "supplier"
)

// OrderDetail is a single product line of an order. BuyerSum and SupplierSum
// are derived from the quantity and the respective unit prices.
type OrderDetail struct {
	Product       string          `json:"product" yaml:"product"`
	Quantity      decimal.Decimal `json:"quantity" yaml:"quantity"`
	BuyerPrice    decimal.Decimal `json:"buyerPrice" yaml:"buyer_price"`
	SupplierPrice decimal.Decimal `json:"supplierPrice" yaml:"supplier_price"`
	BuyerSum      decimal.Decimal `json:"buyerSum" yaml:"-"`
	SupplierSum   decimal.Decimal `json:"supplierSum" yaml:"-"`
}

// Order groups the lines a buyer took from a supplier on a given date.
type Order struct {
	ID       int64         `json:"id" yaml:"-"`
	Date     time.Time     `json:"date" yaml:"date"`
	Buyer    string        `json:"buyer" yaml:"buyer"`
	Supplier string        `json:"supplier" yaml:"supplier"`
	Details  []OrderDetail `json:"details" yaml:"details"`
	// Settlements is filled in when the order is stored.
	Settlements []Settlement `json:"settlements,omitempty" yaml:"-"`
}

// Cost is an operating expense. Value is recorded as a positive outflow.
type Cost struct {
	ID    int64           `json:"id" yaml:"-"`
	Date  time.Time       `json:"date" yaml:"date"`
	Name  string          `json:"name" yaml:"name"`
	Value decimal.Decimal `json:"value" yaml:"value"`
}

// Invoice is a buyer or supplier invoice. AmountToUse is the part of Value
// that has not yet been settled against orders; Used is set once it is spent.
type Invoice struct {
	ID             int64           `json:"id" yaml:"-"`
	Number         string          `json:"number" yaml:"number"`
	Party          PartyKind       `json:"party" yaml:"party"`
	PartyName      string          `json:"partyName" yaml:"party_name"`
	Date           time.Time       `json:"date" yaml:"date"`
	Value          decimal.Decimal `json:"value" yaml:"value"`
	AmountToUse    decimal.Decimal `json:"amountToUse" yaml:"amount_to_use"`
	Paid           bool            `json:"paid" yaml:"paid"`
	Used           bool            `json:"used" yaml:"used"`
	CreatedToOrder bool            `json:"createdToOrder" yaml:"created_to_order"`
}

// Report summarises one year of trading. Type is the year rendered as text
// and identifies the report for upserts.
type Report struct {
	Type                  string          `json:"type"`
	Year                  int             `json:"year"`
	SoldValue             decimal.Decimal `json:"soldValue"`
	BoughtValue           decimal.Decimal `json:"boughtValue"`
	SoldQuantity          decimal.Decimal `json:"soldQuantity"`
	AverageSold           decimal.Decimal `json:"averageSold"`
	AveragePurchase       decimal.Decimal `json:"averagePurchase"`
	AverageEarningsPerM3  decimal.Decimal `json:"averageEarningsPerM3"`
	Income                decimal.Decimal `json:"income"`
	SumCosts              decimal.Decimal `json:"sumCosts"`
	BuyersNotPaidInvoices decimal.Decimal `json:"buyersNotPaidInvoices"`
	GeneratedAt           time.Time       `json:"generatedAt"`
}

// Amounts returns the monetary fields of the report keyed by their JSON names.
func (r Report) Amounts() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"soldValue":             r.SoldValue,
		"boughtValue":           r.BoughtValue,
		"averageSold":           r.AverageSold,
		"averagePurchase":       r.AveragePurchase,
		"averageEarningsPerM3":  r.AverageEarningsPerM3,
		"income":                r.Income,
		"sumCosts":              r.SumCosts,
		"buyersNotPaidInvoices": r.BuyersNotPaidInvoices,
	}
}

// ReportBuilder describes the behaviour required from a yearly report generator.
type ReportBuilder interface {
	Build(year int, orders []Order, costs []Cost, invoices []Invoice) (Report, error)
}
