package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/eugenenazirov/trade-ledger/internal/currency"
	"github.com/eugenenazirov/trade-ledger/internal/ledger"
	"github.com/eugenenazirov/trade-ledger/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const maxBodyBytes = 1 << 20

// Handler wires storage, the report builder and the display formatter into HTTP handlers.
type Handler struct {
	storage storage.Storage
	reports ledger.ReportBuilder
	format  currency.Formatter
	logger  *zap.Logger

	clock func() time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithLogger sets the logger used for domain events such as report generation.
func WithLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler constructs a Handler with the provided dependencies. A nil
// formatter falls back to currency.Format.
func NewHandler(store storage.Storage, reports ledger.ReportBuilder, format currency.Formatter, opts ...HandlerOption) *Handler {
	if format == nil {
		format = currency.Format
	}
	h := &Handler{
		storage: store,
		reports: reports,
		format:  format,
		logger:  zap.NewNop(),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleFormat(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if !query.Has("value") {
		writeError(w, http.StatusBadRequest, "Invalid request", "query parameter value is required")
		return
	}

	raw := query.Get("value")
	resp := formatResponse{Value: raw, Formatted: raw}
	if d, ok := currency.Parse(raw); ok {
		resp.Numeric = true
		resp.Formatted = h.format(d)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var order ledger.Order
	if !decodeJSON(w, r, &order) {
		return
	}

	saved, err := h.storage.AddOrder(order)
	if err != nil {
		h.writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.orderView(saved))
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	year, ok := yearQuery(w, r)
	if !ok {
		return
	}

	orders, err := h.storage.Orders(year)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, h.orderView(o))
	}
	writeJSON(w, http.StatusOK, listResponse[orderView]{Items: views, Count: len(views)})
}

func (h *Handler) handleCreateCost(w http.ResponseWriter, r *http.Request) {
	var cost ledger.Cost
	if !decodeJSON(w, r, &cost) {
		return
	}

	saved, err := h.storage.AddCost(cost)
	if err != nil {
		h.writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.costView(saved))
}

func (h *Handler) handleListCosts(w http.ResponseWriter, r *http.Request) {
	year, ok := yearQuery(w, r)
	if !ok {
		return
	}

	costs, err := h.storage.Costs(year)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	views := make([]costView, 0, len(costs))
	for _, c := range costs {
		views = append(views, h.costView(c))
	}
	writeJSON(w, http.StatusOK, listResponse[costView]{Items: views, Count: len(views)})
}

func (h *Handler) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var invoice ledger.Invoice
	if !decodeJSON(w, r, &invoice) {
		return
	}

	saved, err := h.storage.AddInvoice(invoice)
	if err != nil {
		h.writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.invoiceView(saved))
}

func (h *Handler) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	year, ok := yearQuery(w, r)
	if !ok {
		return
	}

	invoices, err := h.storage.Invoices(year)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	views := make([]invoiceView, 0, len(invoices))
	for _, inv := range invoices {
		views = append(views, h.invoiceView(inv))
	}
	writeJSON(w, http.StatusOK, listResponse[invoiceView]{Items: views, Count: len(views)})
}

func (h *Handler) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	year, ok := yearPath(w, r)
	if !ok {
		return
	}

	report, err := GenerateReport(h.storage, h.reports, year)
	if err != nil {
		h.writeStorageError(w, err)
		return
	}

	h.logger.Info("report generated",
		zap.String("type", report.Type),
		zap.String("income", report.Income.String()),
		zap.String("request_id", requestIDFromContext(r.Context())),
	)
	writeJSON(w, http.StatusOK, h.reportView(report))
}

func (h *Handler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	year, ok := yearPath(w, r)
	if !ok {
		return
	}

	report, err := h.storage.Report(strconv.Itoa(year))
	if err != nil {
		if errors.Is(err, storage.ErrReportNotFound) {
			writeError(w, http.StatusNotFound, "Report not found", err.Error(),
				fmt.Sprintf("POST /api/reports/%d to generate it", year))
			return
		}
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.reportView(report))
}

func (h *Handler) handleListReports(w http.ResponseWriter, _ *http.Request) {
	reports, err := h.storage.Reports()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	views := make([]reportView, 0, len(reports))
	for _, rep := range reports {
		views = append(views, h.reportView(rep))
	}
	writeJSON(w, http.StatusOK, listResponse[reportView]{Items: views, Count: len(views)})
}

// GenerateReport builds the report for year from the stored entries and
// upserts it. It is shared by the API and the dashboard bootstrap.
func GenerateReport(store storage.Storage, builder ledger.ReportBuilder, year int) (ledger.Report, error) {
	if err := ledger.ValidateYear(year); err != nil {
		return ledger.Report{}, err
	}

	orders, err := store.Orders(year)
	if err != nil {
		return ledger.Report{}, fmt.Errorf("load orders: %w", err)
	}
	costs, err := store.Costs(year)
	if err != nil {
		return ledger.Report{}, fmt.Errorf("load costs: %w", err)
	}
	invoices, err := store.Invoices(year)
	if err != nil {
		return ledger.Report{}, fmt.Errorf("load invoices: %w", err)
	}

	report, err := builder.Build(year, orders, costs, invoices)
	if err != nil {
		return ledger.Report{}, err
	}
	if err := store.SaveReport(report); err != nil {
		return ledger.Report{}, fmt.Errorf("save report: %w", err)
	}
	return report, nil
}

func (h *Handler) writeStorageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidOrder):
		writeError(w, http.StatusBadRequest, "Invalid order", err.Error())
	case errors.Is(err, ledger.ErrInvalidCost):
		writeError(w, http.StatusBadRequest, "Invalid cost", err.Error())
	case errors.Is(err, ledger.ErrInvalidInvoice):
		writeError(w, http.StatusBadRequest, "Invalid invoice", err.Error())
	case errors.Is(err, ledger.ErrInvalidYear):
		writeError(w, http.StatusBadRequest, "Invalid year", err.Error())
	default:
		writeInternalError(w, err)
	}
}

func (h *Handler) formatAll(amounts map[string]decimal.Decimal) map[string]any {
	out := make(map[string]any, len(amounts))
	for key, amount := range amounts {
		out[key] = h.format(amount)
	}
	return out
}

func (h *Handler) orderView(o ledger.Order) orderView {
	buyerTotal, supplierTotal := decimal.Zero, decimal.Zero
	for _, d := range o.Details {
		buyerTotal = buyerTotal.Add(d.BuyerSum)
		supplierTotal = supplierTotal.Add(d.SupplierSum)
	}
	return orderView{
		Order:         o,
		BuyerTotal:    buyerTotal,
		SupplierTotal: supplierTotal,
		Formatted: h.formatAll(map[string]decimal.Decimal{
			"buyerTotal":    buyerTotal,
			"supplierTotal": supplierTotal,
		}),
	}
}

func (h *Handler) costView(c ledger.Cost) costView {
	return costView{
		Cost:      c,
		Formatted: h.formatAll(map[string]decimal.Decimal{"value": c.Value}),
	}
}

func (h *Handler) invoiceView(inv ledger.Invoice) invoiceView {
	return invoiceView{
		Invoice: inv,
		Formatted: h.formatAll(map[string]decimal.Decimal{
			"value":       inv.Value,
			"amountToUse": inv.AmountToUse,
		}),
	}
}

func (h *Handler) reportView(rep ledger.Report) reportView {
	return reportView{
		Report:    rep,
		Formatted: h.formatAll(rep.Amounts()),
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return false
	}
	return true
}

func yearQuery(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("year"))
	if raw == "" {
		return 0, true
	}
	return parseYear(w, raw)
}

func yearPath(w http.ResponseWriter, r *http.Request) (int, bool) {
	return parseYear(w, r.PathValue("year"))
}

func parseYear(w http.ResponseWriter, raw string) (int, bool) {
	year, err := strconv.Atoi(raw)
	if err != nil || ledger.ValidateYear(year) != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", ledger.ErrInvalidYear.Error())
		return 0, false
	}
	return year, true
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type orderView struct {
	ledger.Order
	BuyerTotal    decimal.Decimal `json:"buyerTotal"`
	SupplierTotal decimal.Decimal `json:"supplierTotal"`
	Formatted     map[string]any  `json:"formatted"`
}

type costView struct {
	ledger.Cost
	Formatted map[string]any `json:"formatted"`
}

type invoiceView struct {
	ledger.Invoice
	Formatted map[string]any `json:"formatted"`
}

type reportView struct {
	ledger.Report
	Formatted map[string]any `json:"formatted"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

type formatResponse struct {
	Value     string `json:"value"`
	Formatted any    `json:"formatted"`
	Numeric   bool   `json:"numeric"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
