package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thales-maciel/rode/internal/domain"
	"github.com/thales-maciel/rode/internal/ledger"
)

type fakeService struct {
	txResp  domain.TransactionResponse
	txErr   error
	stmt    domain.Statement
	stmtErr error
	lastID  int64
	lastReq domain.TransactionRequest
	txCalls int
}

func (f *fakeService) ProcessTransaction(ctx context.Context, clientID int64, req domain.TransactionRequest) (domain.TransactionResponse, error) {
	f.txCalls++
	f.lastID = clientID
	f.lastReq = req
	return f.txResp, f.txErr
}

func (f *fakeService) GetStatement(ctx context.Context, clientID int64) (domain.Statement, error) {
	f.lastID = clientID
	return f.stmt, f.stmtErr
}

func newTestRouter(svc Service) *mux.Router {
	r := mux.NewRouter()
	NewHandler(svc).Register(r)
	return r
}

func postTransaction(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateTransaction(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		svc := &fakeService{txResp: domain.TransactionResponse{Limit: 1000, Balance: 500}}
		rec := postTransaction(newTestRouter(svc), "/clients/1/transactions",
			`{"amount": 500, "kind": "c", "description": "salary"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"limit": 1000, "balance": 500}`, rec.Body.String())
		assert.Equal(t, int64(1), svc.lastID)
		assert.Equal(t, domain.TransactionRequest{Amount: 500, Kind: domain.KindCredit, Description: "salary"}, svc.lastReq)
	})

	t.Run("malformed body", func(t *testing.T) {
		svc := &fakeService{}
		rec := postTransaction(newTestRouter(svc), "/clients/1/transactions", `{"amount":`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 0, svc.txCalls)
	})

	t.Run("fractional amount", func(t *testing.T) {
		svc := &fakeService{}
		rec := postTransaction(newTestRouter(svc), "/clients/1/transactions",
			`{"amount": 1.2, "kind": "d", "description": "x"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, 0, svc.txCalls)
	})

	t.Run("string amount", func(t *testing.T) {
		svc := &fakeService{}
		rec := postTransaction(newTestRouter(svc), "/clients/1/transactions",
			`{"amount": "100", "kind": "d", "description": "x"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, 0, svc.txCalls)
	})

	t.Run("validation rejection", func(t *testing.T) {
		svc := &fakeService{txErr: &ledger.ValidationError{Reason: "Description failed max"}}
		rec := postTransaction(newTestRouter(svc), "/clients/1/transactions",
			`{"amount": 10, "kind": "c", "description": "elevenchars"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("unknown client", func(t *testing.T) {
		svc := &fakeService{txErr: ledger.ErrClientNotFound}
		rec := postTransaction(newTestRouter(svc), "/clients/99/transactions",
			`{"amount": 10, "kind": "c", "description": "x"}`)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("limit exceeded", func(t *testing.T) {
		svc := &fakeService{txErr: ledger.ErrLimitExceeded}
		rec := postTransaction(newTestRouter(svc), "/clients/1/transactions",
			`{"amount": 99999, "kind": "d", "description": "x"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("contention exhausted", func(t *testing.T) {
		svc := &fakeService{txErr: ledger.ErrContention}
		rec := postTransaction(newTestRouter(svc), "/clients/1/transactions",
			`{"amount": 10, "kind": "d", "description": "x"}`)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		svc := &fakeService{txErr: errors.New("connection refused")}
		rec := postTransaction(newTestRouter(svc), "/clients/1/transactions",
			`{"amount": 10, "kind": "d", "description": "x"}`)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("non-numeric id rejected by route", func(t *testing.T) {
		svc := &fakeService{}
		rec := postTransaction(newTestRouter(svc), "/clients/abc/transactions",
			`{"amount": 10, "kind": "d", "description": "x"}`)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, 0, svc.txCalls)
	})
}

func TestGetStatement(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		date := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
		svc := &fakeService{stmt: domain.Statement{
			Balance: domain.BalanceSummary{Total: -1000, Limit: 1000, Date: date},
			LastTransactions: []domain.StatementEntry{
				{Amount: 1500, Kind: domain.KindDebit, Description: "rent", Date: date},
				{Amount: 500, Kind: domain.KindCredit, Description: "salary", Date: date},
			},
		}}

		req := httptest.NewRequest("GET", "/clients/1/statement", nil)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Balance struct {
				Total int64     `json:"total"`
				Limit int64     `json:"limit"`
				Date  time.Time `json:"date"`
			} `json:"balance"`
			LastTransactions []struct {
				Amount      int64  `json:"amount"`
				Kind        string `json:"kind"`
				Description string `json:"description"`
			} `json:"last_transactions"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, int64(-1000), body.Balance.Total)
		assert.Equal(t, int64(1000), body.Balance.Limit)
		require.Len(t, body.LastTransactions, 2)
		assert.Equal(t, "rent", body.LastTransactions[0].Description)
		assert.Equal(t, "d", body.LastTransactions[0].Kind)
	})

	t.Run("empty history marshals as empty list", func(t *testing.T) {
		svc := &fakeService{stmt: domain.Statement{
			Balance:          domain.BalanceSummary{Total: 0, Limit: 1000, Date: time.Now()},
			LastTransactions: []domain.StatementEntry{},
		}}

		req := httptest.NewRequest("GET", "/clients/1/statement", nil)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"last_transactions":[]`)
	})

	t.Run("unknown client", func(t *testing.T) {
		svc := &fakeService{stmtErr: ledger.ErrClientNotFound}
		req := httptest.NewRequest("GET", "/clients/99/statement", nil)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		svc := &fakeService{stmtErr: errors.New("connection refused")}
		req := httptest.NewRequest("GET", "/clients/1/statement", nil)
		rec := httptest.NewRecorder()
		newTestRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
