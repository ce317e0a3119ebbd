package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apperrors "github.com/marketshield/fraud-detection-engine/internal/domain/errors"
	"github.com/marketshield/fraud-detection-engine/internal/domain/fraud"
	"github.com/marketshield/fraud-detection-engine/internal/infrastructure/config"
	"github.com/marketshield/fraud-detection-engine/internal/service/detection"
)

type server struct {
	svc    *detection.Service
	logger *zap.Logger
}

func newServer(cfg *config.Config, svc *detection.Service, logger *zap.Logger) *http.Server {
	s := &server{svc: svc, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /v1/analyze/transaction", s.handleAnalyzeTransaction)
	mux.HandleFunc("POST /v1/analyze/trade", s.handleAnalyzeTrade)
	mux.HandleFunc("GET /v1/profiles/{userID}", s.handleProfile)
	mux.HandleFunc("GET /v1/alerts", s.handleAlerts)
	mux.HandleFunc("POST /v1/alerts/{alertID}/status", s.handleAlertStatus)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("POST /v1/stats/reset", s.handleStatsReset)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *server) handleAnalyzeTransaction(w http.ResponseWriter, r *http.Request) {
	var req detection.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.ErrInvalidInput.WithCause(err))
		return
	}
	result, err := s.svc.AnalyzeTransaction(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *server) handleAnalyzeTrade(w http.ResponseWriter, r *http.Request) {
	var req detection.TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.ErrInvalidInput.WithCause(err))
		return
	}
	result, err := s.svc.AnalyzeTrade(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *server) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.svc.Profile(r.PathValue("userID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, profile)
}

func (s *server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	status := fraud.AlertStatus(r.URL.Query().Get("status"))
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": s.svc.Alerts(status),
	})
}

func (s *server) handleAlertStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status fraud.AlertStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, apperrors.ErrInvalidInput.WithCause(err))
		return
	}
	if !s.svc.UpdateAlertStatus(r.PathValue("alertID"), body.Status) {
		s.writeError(w, apperrors.NewNotFoundError("alert"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Stats())
}

func (s *server) handleStatsReset(w http.ResponseWriter, r *http.Request) {
	s.svc.ResetStats()
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encoding failed", zap.Error(err))
	}
}

// writeError maps AppErrors to their HTTP status; anything else is a 500.
func (s *server) writeError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		s.writeJSON(w, appErr.StatusCode, map[string]interface{}{"error": appErr})
		return
	}
	s.logger.Error("request failed", zap.Error(err))
	s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
		"error": map[string]string{"message": "internal error"},
	})
}
