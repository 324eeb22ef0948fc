package server

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/bolletta/bolletta/pkg/billing"
	"github.com/bolletta/bolletta/pkg/log"
	"github.com/bolletta/bolletta/pkg/types"
)

type billResponse struct {
	Items           []types.LineItem  `json:"items"`
	IncludePrevious bool              `json:"includePrevious"`
	ComputedAt      time.Time         `json:"computedAt"`
	BillingMode     types.BillingMode `json:"billingMode"`
	ShiftParity     bool              `json:"shiftParity"`
	PricingMode     types.PricingMode `json:"pricingMode"`
}

func (s *Server) writeBill(w http.ResponseWriter, bill types.BillLineItems) {
	cfg := s.billing.Config()
	writeJSON(w, billResponse{
		Items:           bill.Ordered(),
		IncludePrevious: bill.IncludePrevious,
		ComputedAt:      bill.ComputedAt,
		BillingMode:     cfg.BillingMode,
		ShiftParity:     cfg.ShiftParity,
		PricingMode:     cfg.PricingMode,
	})
}

func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	bill, ok := s.billing.Bill()
	if !ok {
		writeJSONError(w, "bill not computed yet", http.StatusServiceUnavailable)
		return
	}
	s.writeBill(w, bill)
}

func validKWh(v *float64) bool {
	return v == nil || (!math.IsNaN(*v) && !math.IsInf(*v, 0) && *v >= 0)
}

func (s *Server) handleReading(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Current    *float64 `json:"current"`
		LastPeriod *float64 `json:"lastPeriod"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode reading", slog.Any("error", err))
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !validKWh(req.Current) || !validKWh(req.LastPeriod) {
		writeJSONError(w, "consumption must be a non-negative number", http.StatusBadRequest)
		return
	}

	bill := s.billing.SetReading(ctx, types.ConsumptionReading{
		Current:    req.Current,
		LastPeriod: req.LastPeriod,
	})
	s.writeBill(w, bill)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Current  *float64 `json:"current"`
		Previous *float64 `json:"previous"`
		Fascia   string   `json:"fascia"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode price", slog.Any("error", err))
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	now := time.Now()
	toPrice := func(v *float64) (*types.Price, bool) {
		if v == nil {
			return nil, true
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			return nil, false
		}
		return &types.Price{
			Provider:   "pun",
			TSStart:    now.Truncate(time.Hour),
			TSEnd:      now.Truncate(time.Hour).Add(time.Hour),
			EuroPerKWH: *v,
			Fascia:     req.Fascia,
		}, true
	}
	current, ok := toPrice(req.Current)
	if !ok {
		writeJSONError(w, "invalid current price", http.StatusBadRequest)
		return
	}
	previous, ok := toPrice(req.Previous)
	if !ok {
		writeJSONError(w, "invalid previous price", http.StatusBadRequest)
		return
	}

	bill := s.billing.SetPrice(ctx, types.LivePrice{Current: current, Previous: previous})
	s.writeBill(w, bill)
}

func (s *Server) handleBillingToggles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req billing.Toggles
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode billing toggles", slog.Any("error", err))
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Monthly == nil && req.ShiftParity == nil {
		writeJSONError(w, "nothing to update", http.StatusBadRequest)
		return
	}

	bill := s.billing.SetToggles(ctx, req)
	log.Ctx(ctx).InfoContext(ctx, "billing toggles updated", slog.Any("monthly", req.Monthly), slog.Any("shiftParity", req.ShiftParity))
	s.writeBill(w, bill)
}
