package ledger

import "errors"

var (
	// ErrInvalidYear is returned when a report is requested for a year outside 1900..9999.
	ErrInvalidYear = errors.New("year must be between 1900 and 9999")
	// ErrInvalidOrder is returned when an order is missing parties, lines or has non-positive quantities.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrInvalidCost is returned when a cost has no name or a negative value.
	ErrInvalidCost = errors.New("invalid cost")
	// ErrInvalidInvoice is returned when an invoice has no party or an inconsistent amount.
	ErrInvalidInvoice = errors.New("invalid invoice")
)
