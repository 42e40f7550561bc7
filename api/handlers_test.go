package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/debt-engine/api"
	"github.com/warp/debt-engine/ledger"
	"github.com/warp/debt-engine/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	graph := ledger.NewGraph(store.NewMemory())
	srv := httptest.NewServer(api.NewRouter(api.NewHandler(graph)))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path string, body any, out any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// createInstance creates an instance (with its initial state) and two people.
func seedFlat(t *testing.T, srv *httptest.Server) (instID int64, ana, bo int64) {
	t.Helper()

	var inst map[string]any
	resp := doJSON(t, srv, http.MethodPost, "/api/instances", map[string]string{"name": "flat"}, &inst)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	instID = int64(inst["id"].(float64))

	var p map[string]any
	resp = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/instances/%d/people", instID),
		map[string]any{"name": "Ana"}, &p)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ana = int64(p["id"].(float64))

	resp = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/instances/%d/people", instID),
		map[string]any{"name": "Bo", "linked_account": ana}, &p)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	bo = int64(p["id"].(float64))
	return
}

// =============================================================================
// HAPPY PATH
// =============================================================================

func TestAPI_DebtLifecycle(t *testing.T) {
	// GIVEN: A flat with Ana and Bo (linked to Ana)
	// WHEN: Bo pays 10.00 that Ana owes, split recorded explicitly
	// THEN: Entries, balances, and history all reflect the debt; undoing the
	//       last change removes it again

	srv := newTestServer(t)
	instID, ana, bo := seedFlat(t, srv)

	var debt map[string]any
	resp := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/instances/%d/debts", instID),
		map[string]any{
			"description": "groceries",
			"date":        "2026-03-01",
			"payee":       bo,
			"shares":      []map[string]any{{"debtor": ana, "amount": "10.00"}},
		}, &debt)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "groceries", debt["description"])

	// Entries view
	var entries []map[string]any
	resp = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/instances/%d/entries", instID), nil, &entries)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, entries, 1)
	assert.Equal(t, "10.00", entries[0]["total"])
	assert.Equal(t, "Bo", entries[0]["payee"])

	// Summary balances fold Bo into Ana
	var rows []map[string]any
	resp = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/instances/%d/balances?mode=summary", instID), nil, &rows)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ana", rows[0]["name"])
	assert.Equal(t, "0.00", rows[0]["balance"])

	// History: created + 2 people + 1 debt = 4 states
	var history []map[string]any
	resp = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/instances/%d/history", instID), nil, &history)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, history, 4)

	// Undo the debt
	resp = doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/instances/%d/states/latest", instID), nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/instances/%d/entries", instID), nil, &entries)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, entries)
}

func TestAPI_SplitDebt(t *testing.T) {
	// GIVEN: Ana and Bo
	// WHEN: Recording 1.01 split between them
	// THEN: Each share is the floored 0.50

	srv := newTestServer(t)
	instID, ana, bo := seedFlat(t, srv)

	resp := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/instances/%d/debts", instID),
		map[string]any{
			"description": "coffee",
			"payee":       ana,
			"total":       "1.01",
			"debtors":     []int64{ana, bo},
		}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var entries []map[string]any
	doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/instances/%d/entries", instID), nil, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "1.00", entries[0]["total"], "two floored 0.50 shares")
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestAPI_UnknownInstance_404(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, srv, http.MethodGet, "/api/instances/999", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_InconsistentDebtors_400(t *testing.T) {
	srv := newTestServer(t)
	instID, ana, _ := seedFlat(t, srv)

	var body map[string]any
	resp := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/instances/%d/debts", instID),
		map[string]any{
			"description": "ghost",
			"payee":       ana,
			"shares":      []map[string]any{{"debtor": 4242, "amount": "5.00"}},
		}, &body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}

func TestAPI_BadAmount_400(t *testing.T) {
	srv := newTestServer(t)
	instID, ana, _ := seedFlat(t, srv)

	resp := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/instances/%d/debts", instID),
		map[string]any{
			"description": "precise",
			"payee":       ana,
			"shares":      []map[string]any{{"debtor": ana, "amount": "1.005"}},
		}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_InvalidMode_400(t *testing.T) {
	srv := newTestServer(t)
	instID, _, _ := seedFlat(t, srv)

	resp := doJSON(t, srv, http.MethodGet,
		fmt.Sprintf("/api/instances/%d/balances?mode=everything", instID), nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_LinkCycle_400(t *testing.T) {
	srv := newTestServer(t)
	instID, ana, bo := seedFlat(t, srv)

	resp := doJSON(t, srv, http.MethodPut,
		fmt.Sprintf("/api/instances/%d/people/%d/link", instID, ana),
		map[string]any{"linked_account": bo}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
