// Package server exposes the bot's HTTP surface: health, Prometheus
// metrics, a read-only portfolio view, candidate submission, and the
// websocket event stream.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/engine"
	"github.com/alanyoungcy/sniperbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port             int
	MaxPortfolioSize int
}

// Admitter enqueues discovered candidates. Satisfied by *engine.Admission.
type Admitter interface {
	Accept(cand engine.Candidate)
}

// Server is the HTTP and websocket API server.
type Server struct {
	httpServer *http.Server
	ledger     *engine.Ledger
	admitter   Admitter
	maxSize    int
	startedAt  time.Time
	logger     *slog.Logger
}

// New creates a Server with all routes registered. admitter and wsHub may be
// nil, in which case candidate submission replies 503 and /ws is not routed.
func New(cfg Config, ledger *engine.Ledger, admitter Admitter, wsHub *ws.Hub, logger *slog.Logger) *Server {
	s := &Server{
		ledger:    ledger,
		admitter:  admitter,
		maxSize:   cfg.MaxPortfolioSize,
		startedAt: time.Now().UTC(),
		logger:    logger.With(slog.String("component", "server")),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/positions", s.handlePositions)
	mux.HandleFunc("POST /api/candidates", s.handleCandidate)
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. It blocks until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// handleHealth reports liveness plus a portfolio summary.
// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"uptime_seconds":   int64(time.Since(s.startedAt).Seconds()),
		"open_positions":   s.ledger.Size(),
		"realized_pnl_usd": s.ledger.RealizedPnl(),
		"pnl_degraded":     s.ledger.Degraded(),
	})
}

// positionView is the JSON shape of one open position.
type positionView struct {
	AssetID       string  `json:"asset_id"`
	RiskTier      string  `json:"risk_tier"`
	PurchasePrice float64 `json:"purchase_price"`
	PeakPrice     float64 `json:"peak_price"`
	AmountHeld    uint64  `json:"amount_held"`
	CommittedSOL  float64 `json:"committed_sol"`
	OpenedAt      string  `json:"opened_at"`
	TiersConsumed []int   `json:"tiers_consumed,omitempty"`
}

// handlePositions returns a snapshot of the open portfolio.
// GET /api/positions
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	snapshot := s.ledger.Snapshot()
	views := make([]positionView, 0, len(snapshot))
	for _, pos := range snapshot {
		v := positionView{
			AssetID:       pos.AssetID,
			RiskTier:      string(pos.RiskTier),
			PurchasePrice: pos.PurchasePrice,
			PeakPrice:     pos.PeakPrice,
			AmountHeld:    pos.AmountHeld,
			CommittedSOL:  pos.CommittedSOL,
			OpenedAt:      pos.OpenedAt.UTC().Format(time.RFC3339),
		}
		for tier := 1; tier <= 3; tier++ {
			if pos.TierConsumed(tier) {
				v.TiersConsumed = append(v.TiersConsumed, tier)
			}
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": views})
}

// handleCandidate submits one candidate for admission. The buy itself is
// asynchronous; 202 means enqueued, not bought.
// POST /api/candidates
func (s *Server) handleCandidate(w http.ResponseWriter, r *http.Request) {
	if s.admitter == nil {
		writeError(w, http.StatusServiceUnavailable, "admission disabled in this mode")
		return
	}

	var cand engine.Candidate
	if err := json.NewDecoder(r.Body).Decode(&cand); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if cand.AssetID == "" || !cand.Tier.Valid() {
		writeError(w, http.StatusBadRequest, "asset_id and a valid tier are required")
		return
	}
	// Early, advisory checks so callers get a meaningful status; the
	// admission worker re-checks both under its own serialization.
	if s.ledger.Contains(cand.AssetID) {
		writeError(w, http.StatusConflict, domain.ErrAlreadyExists.Error())
		return
	}
	if s.ledger.Size() >= s.maxSize {
		writeError(w, http.StatusConflict, domain.ErrPortfolioFull.Error())
		return
	}

	s.admitter.Accept(cand)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":   "accepted",
		"asset_id": cand.AssetID,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
