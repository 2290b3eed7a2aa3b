package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/thales-maciel/rode/internal/domain"
	"github.com/thales-maciel/rode/internal/ledger"
)

// Metrics
var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// Service is the transaction-processing core the gateway fronts.
type Service interface {
	ProcessTransaction(ctx context.Context, clientID int64, req domain.TransactionRequest) (domain.TransactionResponse, error)
	GetStatement(ctx context.Context, clientID int64) (domain.Statement, error)
}

type Handler struct {
	ledger Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{ledger: svc}
}

// Register mounts the client-facing routes. The id pattern rejects
// non-numeric ids at the router, which surfaces as 404.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/clients/{id:[0-9]+}/transactions", h.CreateTransaction).Methods("POST")
	r.HandleFunc("/clients/{id:[0-9]+}/statement", h.GetStatement).Methods("GET")
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

// transactionBody decodes amount as json.Number so fractional or quoted
// amounts fail integer parsing instead of being silently truncated.
type transactionBody struct {
	Amount      json.Number `json:"amount"`
	Kind        string      `json:"kind"`
	Description string      `json:"description"`
}

func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", "/clients/{id}/transactions"))
	defer timer.ObserveDuration()

	id, ok := h.clientID(w, r, "POST", "/clients/{id}/transactions")
	if !ok {
		return
	}

	var body transactionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			h.respondError(w, http.StatusUnprocessableEntity, "Mistyped field "+typeErr.Field, "POST", "/clients/{id}/transactions")
			return
		}
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", "/clients/{id}/transactions")
		return
	}

	amount, err := body.Amount.Int64()
	if err != nil {
		h.respondError(w, http.StatusUnprocessableEntity, "Amount must be a positive integer", "POST", "/clients/{id}/transactions")
		return
	}

	req := domain.TransactionRequest{
		Amount:      amount,
		Kind:        domain.TransactionKind(body.Kind),
		Description: body.Description,
	}

	resp, err := h.ledger.ProcessTransaction(r.Context(), id, req)
	if err != nil {
		switch {
		case ledger.IsValidation(err):
			h.respondError(w, http.StatusUnprocessableEntity, err.Error(), "POST", "/clients/{id}/transactions")
		case errors.Is(err, ledger.ErrClientNotFound):
			h.respondError(w, http.StatusNotFound, "Client not found", "POST", "/clients/{id}/transactions")
		case errors.Is(err, ledger.ErrLimitExceeded):
			h.respondError(w, http.StatusUnprocessableEntity, "Limit exceeded", "POST", "/clients/{id}/transactions")
		case errors.Is(err, ledger.ErrContention):
			h.respondError(w, http.StatusServiceUnavailable, "Client busy, retry later", "POST", "/clients/{id}/transactions")
		default:
			log.Printf("transaction for client %d failed: %v", id, err)
			h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "POST", "/clients/{id}/transactions")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, resp, "POST", "/clients/{id}/transactions")
}

func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("GET", "/clients/{id}/statement"))
	defer timer.ObserveDuration()

	id, ok := h.clientID(w, r, "GET", "/clients/{id}/statement")
	if !ok {
		return
	}

	stmt, err := h.ledger.GetStatement(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrClientNotFound) {
			h.respondError(w, http.StatusNotFound, "Client not found", "GET", "/clients/{id}/statement")
			return
		}
		log.Printf("statement for client %d failed: %v", id, err)
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "GET", "/clients/{id}/statement")
		return
	}

	h.respondJSON(w, http.StatusOK, stmt, "GET", "/clients/{id}/statement")
}

func (h *Handler) clientID(w http.ResponseWriter, r *http.Request, method, endpoint string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Client not found", method, endpoint)
		return 0, false
	}
	return id, true
}

// Helpers
func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}
