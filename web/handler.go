package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nordtax/espp"
)

// TaxRequest is the uploaded computation bundle: one year of normalized
// transactions, the opening snapshot, the bank transfer records, and
// optionally inline rates for a fully offline run.
type TaxRequest struct {
	Year              int             `json:"year"`
	Broker            string          `json:"broker,omitempty"`
	AggregationWindow int             `json:"aggregation_window,omitempty"`
	Holdings          *espp.Holdings  `json:"holdings,omitempty"`
	Transactions      json.RawMessage `json:"transactions"`
	Wires             espp.Wires      `json:"wires,omitempty"`
	Rates             *InlineRates    `json:"rates,omitempty"`
}

// InlineRates carries caller-supplied rate tables. When present they
// take the place of the server's provider, making the run reproducible
// from the bundle alone.
type InlineRates struct {
	Exchange map[string]map[string]decimal.Decimal `json:"exchange"`
	FMV      map[string]map[string]decimal.Decimal `json:"fmv"`
}

// TaxResponse is the computed report plus the next year's snapshot. On
// a data-consistency failure the partial report comes back with the
// error so the caller can see where the replay stopped.
type TaxResponse struct {
	Report   *espp.TaxReport `json:"report"`
	Holdings *espp.Holdings  `json:"holdings,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// TaxHandler runs the engine for uploaded bundles.
type TaxHandler struct {
	rates   espp.RateProvider
	log     zerolog.Logger
	metrics *Metrics
}

func NewTaxHandler(rates espp.RateProvider, log zerolog.Logger, metrics *Metrics) *TaxHandler {
	return &TaxHandler{rates: rates, log: log, metrics: metrics}
}

// Compute handles POST /api/v1/tax.
func (h *TaxHandler) Compute(w http.ResponseWriter, r *http.Request) {
	var req TaxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Year == 0 {
		writeError(w, http.StatusBadRequest, "year is required")
		return
	}
	txs, err := espp.DecodeTransactions(bytes.NewReader(req.Transactions))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transactions: "+err.Error())
		return
	}

	rates := h.rates
	if req.Rates != nil {
		rates = &espp.StaticRates{Exchange: req.Rates.Exchange, FMV: req.Rates.FMV}
	}

	start := time.Now()
	report, holdings, err := espp.Replay(req.Year, req.Holdings, txs, req.Wires, rates, espp.Options{
		Broker:            req.Broker,
		AggregationWindow: req.AggregationWindow,
	})
	h.metrics.RunDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		// data problems in the bundle, not a server fault
		h.metrics.TaxRuns.WithLabelValues("failed").Inc()
		h.log.Warn().
			Str("request_id", requestID(r.Context())).
			Int("year", req.Year).
			Err(err).
			Msg("tax run failed")
		writeJSON(w, http.StatusUnprocessableEntity, TaxResponse{Report: report, Error: err.Error()})
		return
	}

	h.metrics.TaxRuns.WithLabelValues("ok").Inc()
	h.log.Info().
		Str("request_id", requestID(r.Context())).
		Int("year", req.Year).
		Int("transactions", len(txs)).
		Msg("tax run completed")
	writeJSON(w, http.StatusOK, TaxResponse{Report: report, Holdings: holdings})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
