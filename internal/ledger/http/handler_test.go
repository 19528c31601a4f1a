package ledgerhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/crossbridge/crossbridge/internal/ledger"
	"github.com/crossbridge/crossbridge/internal/platform/httpx"
)

type stubService struct {
	accounts    []ledger.Account
	err         error
	invalidated int
}

func (s *stubService) Rollup(ctx context.Context, id string) (ledger.RollupResult, error) {
	if s.err != nil {
		return ledger.RollupResult{}, s.err
	}
	return ledger.New(nil).RollupByID(id, s.accounts)
}

func (s *stubService) GlobalStats(ctx context.Context) (ledger.Stats, error) {
	if s.err != nil {
		return ledger.Stats{}, s.err
	}
	return ledger.New(nil).GlobalStats(s.accounts), nil
}

func (s *stubService) Invalidate(ctx context.Context) error {
	s.invalidated++
	return s.err
}

func newRouter(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Route("/ledger", NewHandler(svc, nil).MountRoutes)
	return r
}

func accounts() []ledger.Account {
	return []ledger.Account{
		{ID: "P", Name: "HK Primary", Currency: "USD", Category: ledger.CategoryPrimary, Balance: 1000, Rate: 7},
		{ID: "V1", Name: "Store A", Currency: "USD", Category: ledger.CategoryVirtual, ParentID: "P", Balance: 200, Rate: 7},
		{ID: "I", Name: "Mainland", Currency: "CNY", Category: ledger.CategoryIndependent, Balance: 500, Rate: 1},
	}
}

func TestRollupEndpoint(t *testing.T) {
	router := newRouter(&stubService{accounts: accounts()})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ledger/accounts/P/rollup", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var res ledger.RollupResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.InDelta(t, 1200, res.OwnCurrencyTotal, 1e-9)
	require.InDelta(t, 8400, res.ReferenceTotal, 1e-9)
}

func TestRollupUnknownAccount(t *testing.T) {
	router := newRouter(&stubService{accounts: accounts()})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ledger/accounts/missing/rollup", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Equal(t, http.StatusNotFound, problem.Status)
}

func TestStatsEndpoint(t *testing.T) {
	router := newRouter(&stubService{accounts: accounts()})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ledger/stats", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var stats ledger.Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	require.InDelta(t, 8900, stats.TotalReference, 1e-9)
	require.Equal(t, "CNY", stats.ReferenceCurrency)
}

func TestStatsSourceFailureIsInternal(t *testing.T) {
	router := newRouter(&stubService{err: errors.New("db down")})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ledger/stats", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "db down")
}

func TestInvalidateEndpoint(t *testing.T) {
	svc := &stubService{}
	router := newRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/ledger/cache/invalidate", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, 1, svc.invalidated)
}
