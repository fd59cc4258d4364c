package application

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/trade-ledger/internal/api"
	"github.com/eugenenazirov/trade-ledger/internal/config"
	"github.com/eugenenazirov/trade-ledger/internal/currency"
	"github.com/eugenenazirov/trade-ledger/internal/ledger"
	"github.com/eugenenazirov/trade-ledger/internal/storage"
)

//go:embed templates/index.html
var templatesFS embed.FS

// Components is the set of collaborators the application is built from.
// Zero fields are replaced with the defaults used by New.
type Components struct {
	Storage storage.Storage
	Reports ledger.ReportBuilder
	Format  currency.Formatter
}

// App encapsulates the application dependencies and HTTP server.
type App struct {
	storage storage.Storage
	reports ledger.ReportBuilder
	format  currency.Formatter
	handler *api.Handler
	router  http.Handler
	logger  *zap.Logger
	server  *http.Server
}

// New initializes the application with the default in-memory components.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	return NewWithComponents(cfg, logger, Components{})
}

// NewWithComponents initializes the application from explicitly supplied
// components. When cfg.SeedFile is set the store is preloaded from it and a
// report is generated for every seeded year.
func NewWithComponents(cfg config.Config, logger *zap.Logger, c Components) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c.Storage == nil {
		c.Storage = storage.NewMemoryStorage()
	}
	if c.Reports == nil {
		c.Reports = ledger.New()
	}
	if c.Format == nil {
		c.Format = currency.Format
	}

	if cfg.SeedFile != "" {
		if err := seedStore(c, cfg.SeedFile, logger); err != nil {
			return nil, err
		}
	}

	handler := api.NewHandler(c.Storage, c.Reports, c.Format, api.WithLogger(logger))
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		api.WithTrustedProxyHeaders(cfg.TrustProxyHeaders),
	)

	rootHandler, err := BuildRootHandler(apiRouter, c.Storage, c.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP handler: %w", err)
	}

	return &App{
		storage: c.Storage,
		reports: c.Reports,
		format:  c.Format,
		handler: handler,
		router:  apiRouter,
		logger:  logger,
		server:  NewServer(cfg, rootHandler),
	}, nil
}

func seedStore(c Components, path string, logger *zap.Logger) error {
	counts, err := storage.LoadSeed(c.Storage, path)
	if err != nil {
		return fmt.Errorf("failed to load seed file: %w", err)
	}

	years, err := seededYears(c.Storage)
	if err != nil {
		return err
	}
	for _, year := range years {
		if _, err := api.GenerateReport(c.Storage, c.Reports, year); err != nil {
			return fmt.Errorf("failed to generate report for %d: %w", year, err)
		}
	}

	logger.Info("ledger seeded",
		zap.String("path", path),
		zap.Int("orders", counts.Orders),
		zap.Int("costs", counts.Costs),
		zap.Int("invoices", counts.Invoices),
		zap.Ints("years", years),
	)
	return nil
}

// seededYears lists the distinct years that hold at least one entry.
func seededYears(store storage.Storage) ([]int, error) {
	orders, err := store.Orders(0)
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}
	costs, err := store.Costs(0)
	if err != nil {
		return nil, fmt.Errorf("load costs: %w", err)
	}
	invoices, err := store.Invoices(0)
	if err != nil {
		return nil, fmt.Errorf("load invoices: %w", err)
	}

	var years []int
	for _, o := range orders {
		years = append(years, o.Date.Year())
	}
	for _, c := range costs {
		years = append(years, c.Date.Year())
	}
	for _, inv := range invoices {
		years = append(years, inv.Date.Year())
	}
	slices.Sort(years)
	return slices.Compact(years), nil
}

type dashboardData struct {
	Reports []ledger.Report
}

// BuildRootHandler constructs the root HTTP handler that renders the report
// dashboard and routes API requests.
func BuildRootHandler(apiHandler http.Handler, store storage.Storage, format currency.Formatter) (http.Handler, error) {
	if format == nil {
		format = currency.Format
	}

	index, err := template.New("index.html").
		Funcs(template.FuncMap{"toCurrency": format}).
		ParseFS(templatesFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse dashboard template: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		reports, err := store.Reports()
		if err != nil {
			http.Error(w, "failed to load reports", http.StatusInternalServerError)
			return
		}

		var buf bytes.Buffer
		if err := index.Execute(&buf, dashboardData{Reports: reports}); err != nil {
			http.Error(w, "failed to render dashboard", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = buf.WriteTo(w)
	}))

	return mux, nil
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}
