// Package server exposes the dashboard API and operational endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rwx610/QuestMe-Dashboard/internal/analytics"
	"github.com/rwx610/QuestMe-Dashboard/internal/domain/model"
	"github.com/rwx610/QuestMe-Dashboard/internal/store"
)

const defaultTimeSeriesWindow = 24 * time.Hour

type Server struct {
	httpServer *http.Server
	analytics  *analytics.Service
	txRepo     store.TransactionRepository
	wmRepo     store.WatermarkRepository
	logger     *slog.Logger
}

func New(port int, svc *analytics.Service, txRepo store.TransactionRepository, wmRepo store.WatermarkRepository, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		analytics: svc,
		txRepo:    txRepo,
		wmRepo:    wmRepo,
		logger:    logger.With("component", "server"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/summary", s.handleSummary)
		r.Get("/timeseries", s.handleTimeSeries)
		r.Get("/transactions", s.handleTransactions)
		r.Get("/wallets/{wallet}", s.handleWalletStats)
		r.Get("/top-wallets", s.handleTopWallets)
		r.Get("/total", s.handleTotalAmount)
		r.Get("/watermarks", s.handleWatermarks)
	})

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until the context is cancelled, then drains in-flight
// requests for up to 10 seconds.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return ctx.Err()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}

	summary, err := s.analytics.Summary(r.Context(), filter)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, summary)
}

func (s *Server) handleTimeSeries(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}

	window, err := parseWindow(r.URL.Query().Get("window"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}

	series, err := s.analytics.TimeSeries(r.Context(), filter, window)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"window": window.String(), "buckets": series})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	filter.Wallet = r.URL.Query().Get("wallet")

	txs, err := s.txRepo.Query(r.Context(), filter)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	s.respond(w, http.StatusOK, map[string]any{"count": len(txs), "transactions": txs})
}

func (s *Server) handleWalletStats(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}

	wallet := chi.URLParam(r, "wallet")
	stats, err := s.analytics.WalletStats(r.Context(), filter, wallet)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, stats)
}

func (s *Server) handleTopWallets(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
	}

	wallets, err := s.analytics.TopWallets(r.Context(), filter, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if wallets == nil {
		wallets = []analytics.WalletStats{}
	}
	s.respond(w, http.StatusOK, map[string]any{"wallets": wallets})
}

// handleTotalAmount returns the cumulative value for one contract and
// operation type, e.g. total withdrawn rewards.
func (s *Server) handleTotalAmount(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	if filter.Contract == "" || filter.Type == "" {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("contract and type are required"))
		return
	}

	total, err := s.analytics.TotalAmount(r.Context(), filter.Network, filter.Contract, filter.Type)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"contract": filter.Contract,
		"type":     filter.Type,
		"total":    total,
	})
}

// handleWatermarks reports per-pair ingestion freshness so a dashboard
// can surface stale pairs.
func (s *Server) handleWatermarks(w http.ResponseWriter, r *http.Request) {
	marks, err := s.wmRepo.List(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if marks == nil {
		marks = []model.Watermark{}
	}
	s.respond(w, http.StatusOK, map[string]any{"watermarks": marks})
}

func filterFromQuery(r *http.Request) (store.QueryFilter, error) {
	q := r.URL.Query()
	filter := store.QueryFilter{
		Contract: q.Get("contract"),
		Type:     q.Get("type"),
	}
	if raw := q.Get("network"); raw != "" {
		network := model.Network(strings.ToUpper(raw))
		if !network.Valid() {
			return store.QueryFilter{}, fmt.Errorf("unknown network %q", raw)
		}
		filter.Network = network
	}
	return filter, nil
}

// parseWindow accepts Go durations ("24h", "90m") plus a day suffix
// ("7d", "30d") since dashboards speak in days.
func parseWindow(raw string) (time.Duration, error) {
	if raw == "" {
		return defaultTimeSeriesWindow, nil
	}
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid window %q", raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid window %q", raw)
	}
	return d, nil
}

func (s *Server) respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("response encode failed", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	s.respond(w, status, map[string]string{"error": err.Error()})
}
