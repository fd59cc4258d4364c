package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxRequestIDLength = 64

// RouterOption adjusts the router built by NewRouter.
type RouterOption func(*routerConfig)

// WithLogging turns the per-request access log on or off.
func WithLogging(enabled bool) RouterOption {
	return func(cfg *routerConfig) {
		cfg.enableLogging = enabled
	}
}

// WithRateLimiter replaces the per-client limiter, e.g. with a stub in tests.
func WithRateLimiter(limiter rateLimiter) RouterOption {
	return func(cfg *routerConfig) {
		cfg.rateLimiter = limiter
	}
}

// WithRateLimit configures a per-client token bucket. A zero rate or burst
// disables rate limiting entirely.
func WithRateLimit(ratePerSecond float64, burst int) RouterOption {
	return func(cfg *routerConfig) {
		if ratePerSecond <= 0 || burst <= 0 {
			cfg.rateLimiter = nil
			return
		}
		cfg.rateLimiter = newClientRateLimiter(ratePerSecond, burst)
	}
}

// WithTrustedProxyHeaders keys rate limiting on X-Forwarded-For instead of the
// connection address. Enable it only behind a proxy that sets the header.
func WithTrustedProxyHeaders(enabled bool) RouterOption {
	return func(cfg *routerConfig) {
		cfg.trustProxyHeaders = enabled
	}
}

type routerConfig struct {
	enableLogging     bool
	trustProxyHeaders bool
	logger            *zap.Logger
	rateLimiter       rateLimiter
}

func (cfg routerConfig) clientKey() func(*http.Request) string {
	if cfg.trustProxyHeaders {
		return forwardedClientKey
	}
	return clientKey
}

type route struct {
	pattern string
	handler http.HandlerFunc
}

func (h *Handler) routes() []route {
	return []route{
		{"GET /api/health", h.handleHealth},
		{"GET /api/format", h.handleFormat},
		{"GET /api/orders", h.handleListOrders},
		{"POST /api/orders", h.handleCreateOrder},
		{"GET /api/costs", h.handleListCosts},
		{"POST /api/costs", h.handleCreateCost},
		{"GET /api/invoices", h.handleListInvoices},
		{"POST /api/invoices", h.handleCreateInvoice},
		{"GET /api/reports", h.handleListReports},
		{"GET /api/reports/{year}", h.handleGetReport},
		{"POST /api/reports/{year}", h.handleGenerateReport},
	}
}

type middleware func(http.Handler) http.Handler

// NewRouter registers the ledger routes and wraps them, outermost first, in
// request id, rate limit, access log, panic recovery and CORS middleware.
func NewRouter(handler *Handler, logger *zap.Logger, opts ...RouterOption) http.Handler {
	cfg := routerConfig{
		enableLogging: true,
		logger:        logger,
		rateLimiter:   newClientRateLimiter(25, 50),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	mux := http.NewServeMux()
	for _, rt := range handler.routes() {
		mux.Handle(rt.pattern, rt.handler)
	}

	chain := []middleware{
		requestIDMiddleware,
		func(next http.Handler) http.Handler {
			return rateLimitMiddleware(cfg.rateLimiter, cfg.clientKey(), next)
		},
	}
	if cfg.enableLogging {
		chain = append(chain, func(next http.Handler) http.Handler {
			return loggingMiddleware(cfg.logger, next)
		})
	}
	chain = append(chain,
		func(next http.Handler) http.Handler { return recoveryMiddleware(cfg.logger, next) },
		corsMiddleware,
	)

	var root http.Handler = mux
	for i := len(chain) - 1; i >= 0; i-- {
		root = chain[i](root)
	}
	return root
}

var corsHeaders = [][2]string{
	{"Access-Control-Allow-Origin", "*"},
	{"Access-Control-Allow-Methods", "GET,POST,OPTIONS"},
	{"Access-Control-Allow-Headers", "Content-Type,Authorization,X-Requested-With,X-Request-ID"},
	{"Access-Control-Expose-Headers", "X-Request-ID"},
	{"Access-Control-Max-Age", "86400"},
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, kv := range corsHeaders {
			w.Header().Set(kv[0], kv[1])
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := zap.InfoLevel
		if rec.status >= http.StatusInternalServerError {
			level = zap.ErrorLevel
		}
		logger.Check(level, "request completed").Write(
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Int("bytes", rec.bytes),
			zap.Duration("duration", time.Since(start)),
			zap.String("client", clientKey(r)),
			zap.String("request_id", requestIDFromContext(r.Context())),
		)
	})
}

func recoveryMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			requestID := requestIDFromContext(r.Context())
			logger.Error("panic recovered",
				zap.Any("error", rec),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", requestID),
				zap.Stack("stack"),
			)
			suggestion := "retry the request"
			if requestID != "" {
				suggestion = "report request id " + requestID + " if the problem persists"
			}
			writeError(w, http.StatusInternalServerError, "Internal error", "unexpected server error", suggestion)
		}()
		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware echoes a well-formed X-Request-ID or assigns a new one.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if !validRequestID(requestID) {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(contextWithRequestID(r.Context(), requestID)))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

func generateRequestID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return hex.EncodeToString(buf)
}

func contextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// responseRecorder captures the status code and body size for access logs.
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}
