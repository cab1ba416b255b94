package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tradekit/signalpilot/internal/domain"
	"github.com/tradekit/signalpilot/internal/supervise"
)

// SignalHandler ingests signals over HTTP and exposes their ledger state.
type SignalHandler struct {
	signals  chan<- domain.Signal
	ledger   domain.SignalLedger
	registry *supervise.Registry
	logger   *slog.Logger
}

// NewSignalHandler creates a SignalHandler feeding the given channel.
func NewSignalHandler(
	signals chan<- domain.Signal,
	ledger domain.SignalLedger,
	registry *supervise.Registry,
	logger *slog.Logger,
) *SignalHandler {
	return &SignalHandler{
		signals:  signals,
		ledger:   ledger,
		registry: registry,
		logger:   logger,
	}
}

// signalRequest is the ingestion payload. Level fields are optional and nil
// when the source did not provide them.
type signalRequest struct {
	Symbol      string   `json:"symbol"`
	Direction   string   `json:"direction"`
	EntryUpper  float64  `json:"entry_upper"`
	EntryLower  float64  `json:"entry_lower"`
	EntryMiddle *float64 `json:"entry_middle,omitempty"`
	StopLoss1   *float64 `json:"stop_loss_1,omitempty"`
	StopLoss2   *float64 `json:"stop_loss_2,omitempty"`
	StopLoss3   *float64 `json:"stop_loss_3,omitempty"`
	TakeProfit1 *float64 `json:"take_profit_1,omitempty"`
	TakeProfit2 *float64 `json:"take_profit_2,omitempty"`
	TakeProfit3 *float64 `json:"take_profit_3,omitempty"`
	Source      string   `json:"source,omitempty"`
}

// Submit accepts a signal and queues it for the execution pipeline.
// POST /v1/signals
func (h *SignalHandler) Submit(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "signal_submit")

	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	sig := domain.Signal{
		Symbol:      strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Direction:   domain.Direction(strings.ToUpper(strings.TrimSpace(req.Direction))),
		EntryUpper:  req.EntryUpper,
		EntryLower:  req.EntryLower,
		EntryMiddle: (req.EntryUpper + req.EntryLower) / 2,
		StopLoss1:   req.StopLoss1,
		StopLoss2:   req.StopLoss2,
		StopLoss3:   req.StopLoss3,
		TakeProfit1: req.TakeProfit1,
		TakeProfit2: req.TakeProfit2,
		TakeProfit3: req.TakeProfit3,
		Source:      req.Source,
		CreatedAt:   time.Now().UTC(),
	}
	if req.EntryMiddle != nil {
		sig.EntryMiddle = *req.EntryMiddle
	}
	if sig.Source == "" {
		sig.Source = "http"
	}
	sig.Fingerprint = sig.ComputeFingerprint()

	if err := sig.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	select {
	case h.signals <- sig:
	case <-r.Context().Done():
		writeError(w, http.StatusServiceUnavailable, "request cancelled before signal was queued")
		return
	default:
		log.Warn("signal queue full, rejecting",
			slog.String("fingerprint", sig.Fingerprint),
		)
		writeError(w, http.StatusServiceUnavailable, "signal queue full, retry later")
		return
	}

	log.Info("signal accepted",
		slog.String("fingerprint", sig.Fingerprint),
		slog.String("symbol", sig.Symbol),
		slog.String("direction", string(sig.Direction)),
		slog.String("source", sig.Source),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"fingerprint": sig.Fingerprint,
		"status":      "queued",
	})
}

// signalResponse is the ledger view of a signal.
type signalResponse struct {
	Fingerprint string                      `json:"fingerprint"`
	Symbol      string                      `json:"symbol"`
	Direction   domain.Direction            `json:"direction"`
	Status      domain.SignalStatus         `json:"status"`
	EntryUpper  float64                     `json:"entry_upper"`
	EntryMiddle float64                     `json:"entry_middle"`
	EntryLower  float64                     `json:"entry_lower"`
	StopLoss1   *float64                    `json:"stop_loss_1,omitempty"`
	StopLoss2   *float64                    `json:"stop_loss_2,omitempty"`
	StopLoss3   *float64                    `json:"stop_loss_3,omitempty"`
	TakeProfit1 *float64                    `json:"take_profit_1,omitempty"`
	TakeProfit2 *float64                    `json:"take_profit_2,omitempty"`
	TakeProfit3 *float64                    `json:"take_profit_3,omitempty"`
	Source      string                      `json:"source,omitempty"`
	CreatedAt   time.Time                   `json:"created_at"`
	Slots       map[int]supervise.SlotState `json:"slots,omitempty"`
}

// Get returns the ledger state of a signal, with live slot states when the
// signal is under supervision.
// GET /v1/signals/{fingerprint}
func (h *SignalHandler) Get(w http.ResponseWriter, r *http.Request) {
	fp := r.PathValue("fingerprint")
	if fp == "" {
		writeError(w, http.StatusBadRequest, "missing fingerprint")
		return
	}

	entry, err := h.ledger.Get(r.Context(), fp)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown fingerprint")
			return
		}
		logHandler(h.logger, "signal_get").Error("ledger lookup failed",
			slog.String("fingerprint", fp),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "ledger lookup failed")
		return
	}

	resp := signalResponse{
		Fingerprint: entry.Signal.Fingerprint,
		Symbol:      entry.Signal.Symbol,
		Direction:   entry.Signal.Direction,
		Status:      entry.Status,
		EntryUpper:  entry.Signal.EntryUpper,
		EntryMiddle: entry.Signal.EntryMiddle,
		EntryLower:  entry.Signal.EntryLower,
		StopLoss1:   entry.Signal.StopLoss1,
		StopLoss2:   entry.Signal.StopLoss2,
		StopLoss3:   entry.Signal.StopLoss3,
		TakeProfit1: entry.Signal.TakeProfit1,
		TakeProfit2: entry.Signal.TakeProfit2,
		TakeProfit3: entry.Signal.TakeProfit3,
		Source:      entry.Signal.Source,
		CreatedAt:   entry.Signal.CreatedAt,
	}
	if h.registry != nil {
		if rec, ok := h.registry.Get(fp); ok {
			resp.Slots = rec.Snapshot()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
