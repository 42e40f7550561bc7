/*
handlers.go - HTTP API handlers for the debt engine

PURPOSE:
  Exposes the versioned debt tracker via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Instances:
    GET    /api/instances                List all instances
    POST   /api/instances                Create instance (with initial state)
    GET    /api/instances/{id}           Get instance details
    PUT    /api/instances/{id}           Rename instance

  Views:
    GET    /api/instances/{id}/entries   Current debts, date ascending
    GET    /api/instances/{id}/history   States ordered by date
    GET    /api/instances/{id}/balances  Balance view (?mode=&cutoff=)

  Mutations (each creates a new state):
    POST   /api/instances/{id}/people              Add person
    POST   /api/instances/{id}/people/{pid}/retire Retire person
    PUT    /api/instances/{id}/people/{pid}/link   Change linked account
    POST   /api/instances/{id}/debts               Record debt (split or shares)
    PUT    /api/instances/{id}/debts/{did}         Replace debt
    DELETE /api/instances/{id}/debts/{did}         Retire debt from current state
    DELETE /api/instances/{id}/states/latest       Undo most recent change

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (graph, editor, balances)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, inconsistent debtor sets, invalid input
  - 404: Row not found
  - 409: Graph conflicts (stale parent, deleting mid-history, empty ledger)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/debt-engine/balances"
	"github.com/warp/debt-engine/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Graph *ledger.Graph
}

// NewHandler creates a new handler over the given graph manager.
func NewHandler(graph *ledger.Graph) *Handler {
	return &Handler{Graph: graph}
}

// mutate clones the instance's latest state and applies fn to the clone, or
// creates the initial state when the ledger is still empty.
func (h *Handler) mutate(ctx context.Context, instance ledger.InstanceID, reason string, fn func(*ledger.StateEditor) error) (ledger.State, error) {
	latest, err := h.Graph.LatestState(ctx, instance)
	if errors.Is(err, ledger.ErrEmptyLedger) {
		return h.Graph.MutateInitial(ctx, instance, reason, fn)
	}
	if err != nil {
		return ledger.State{}, err
	}
	return h.Graph.CloneAndMutate(ctx, latest, reason, fn)
}

// currentSnapshot materializes the instance's latest state.
func (h *Handler) currentSnapshot(ctx context.Context, instance ledger.InstanceID) (*ledger.Snapshot, error) {
	latest, err := h.Graph.LatestState(ctx, instance)
	if err != nil {
		return nil, err
	}
	return h.Graph.Snapshot(ctx, latest.ID)
}

// =============================================================================
// INSTANCE HANDLERS
// =============================================================================

// ListInstances returns all instances.
func (h *Handler) ListInstances(w http.ResponseWriter, r *http.Request) {
	instances, err := h.Graph.Store().ListInstances(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list instances", err)
		return
	}

	dtos := make([]InstanceDTO, len(instances))
	for i, inst := range instances {
		dtos[i] = toInstanceDTO(inst)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateInstance creates an instance together with its initial empty state.
func (h *Handler) CreateInstance(w http.ResponseWriter, r *http.Request) {
	var req CreateInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name must not be empty", nil)
		return
	}

	inst, err := h.Graph.Store().CreateInstance(r.Context(), req.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create instance", err)
		return
	}
	if _, err := h.Graph.CreateInitial(r.Context(), inst.ID, "created"); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create initial state", err)
		return
	}

	writeJSON(w, http.StatusCreated, toInstanceDTO(inst))
}

// GetInstance returns a single instance.
func (h *Handler) GetInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := instanceParam(w, r)
	if !ok {
		return
	}

	inst, err := h.Graph.Store().GetInstance(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get instance", err)
		return
	}
	writeJSON(w, http.StatusOK, toInstanceDTO(inst))
}

// RenameInstance changes an instance's name. Names are instance metadata,
// not ledger history; no new state is created.
func (h *Handler) RenameInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := instanceParam(w, r)
	if !ok {
		return
	}

	var req RenameInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name must not be empty", nil)
		return
	}

	if err := h.Graph.Store().RenameInstance(r.Context(), id, req.Name); err != nil {
		writeDomainError(w, "Failed to rename instance", err)
		return
	}
	writeJSON(w, http.StatusOK, InstanceDTO{ID: int64(id), Name: req.Name})
}

// =============================================================================
// VIEW HANDLERS
// =============================================================================

// GetEntries returns the current debts of an instance, date ascending.
func (h *Handler) GetEntries(w http.ResponseWriter, r *http.Request) {
	id, ok := instanceParam(w, r)
	if !ok {
		return
	}

	snap, err := h.currentSnapshot(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to load entries", err)
		return
	}

	entries := snap.Entries()
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetHistory returns the instance's states ordered by date: the "changes"
// view.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := instanceParam(w, r)
	if !ok {
		return
	}

	states, err := h.Graph.History(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to load history", err)
		return
	}

	dtos := make([]StateDTO, len(states))
	for i, s := range states {
		dtos[i] = toStateDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBalances returns the balance view of the instance's latest state.
// Query parameters:
//
//	mode:   summary (default), detailed, individual
//	cutoff: YYYY-MM-DD; only debts strictly before this date are counted
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	id, ok := instanceParam(w, r)
	if !ok {
		return
	}

	mode := balances.ModeSummary
	if s := r.URL.Query().Get("mode"); s != "" {
		var err error
		mode, err = balances.ParseMode(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid mode", err)
			return
		}
	}

	var cutoff *time.Time
	if s := r.URL.Query().Get("cutoff"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid cutoff date (use YYYY-MM-DD)", err)
			return
		}
		cutoff = &t
	}

	snap, err := h.currentSnapshot(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to load state", err)
		return
	}

	rows, err := balances.Aggregate(snap, mode, cutoff)
	if err != nil {
		writeDomainError(w, "Failed to aggregate balances", err)
		return
	}

	dtos := make([]BalanceRowDTO, len(rows))
	for i, row := range rows {
		dtos[i] = BalanceRowDTO{
			Person:  int64(row.Person),
			Name:    row.Name,
			Owed:    row.Owed.String(),
			Paid:    row.Paid.String(),
			Balance: row.Balance.String(),
			Depth:   row.Depth,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PERSON HANDLERS
// =============================================================================

// CreatePerson adds a person to the instance in a new state.
func (h *Handler) CreatePerson(w http.ResponseWriter, r *http.Request) {
	id, ok := instanceParam(w, r)
	if !ok {
		return
	}

	var req CreatePersonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "added person " + req.Name
	}

	var created ledger.Person
	_, err := h.mutate(r.Context(), id, reason, func(e *ledger.StateEditor) error {
		var err error
		created, err = e.AddPerson(r.Context(), req.Name, req.Email, personIDPtr(req.LinkedAccount))
		return err
	})
	if err != nil {
		writeDomainError(w, "Failed to add person", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPersonDTO(created))
}

// RetirePerson marks a person retired in a new state. Retired people stay in
// history but cannot appear in new debts.
func (h *Handler) RetirePerson(w http.ResponseWriter, r *http.Request) {
	id, ok := instanceParam(w, r)
	if !ok {
		return
	}
	pid, err := int64Param(r, "personID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid person id", err)
		return
	}

	state, err := h.mutate(r.Context(), id, "retired person", func(e *ledger.StateEditor) error {
		return e.RetirePerson(r.Context(), ledger.PersonID(pid))
	})
	if err != nil {
		writeDomainError(w, "Failed to retire person", err)
		return
	}
	writeJSON(w, http.StatusOK, toStateDTO(state))
}

// LinkPerson changes a person's linked account in a new state.
func (h *Handler) LinkPerson(w http.ResponseWriter, r *http.Request) {
	id, ok := instanceParam(w, r)
	if !ok {
		return
	}
	pid, err := int64Param(r, "personID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid person id", err)
		return
	}

	var req LinkPersonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "changed linked account"
	}

	state, err := h.mutate(r.Context(), id, reason, func(e *ledger.StateEditor) error {
		return e.SetLinkedAccount(r.Context(), ledger.PersonID(pid), personIDPtr(req.LinkedAccount))
	})
	if err != nil {
		writeDomainError(w, "Failed to change linked account", err)
		return
	}
	writeJSON(w, http.StatusOK, toStateDTO(state))
}

// =============================================================================
// DEBT HANDLERS
// =============================================================================

// CreateDebt records a debt in a new state. The body either names a total
// with a debtor list (even floor split) or explicit per-debtor shares.
func (h *Handler) CreateDebt(w http.ResponseWriter, r *http.Request) {
	id, ok := instanceParam(w, r)
	if !ok {
		return
	}

	var req CreateDebtRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in, err := debtInput(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid debt", err)
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "added debt " + req.Description
	}

	var created ledger.Debt
	_, err = h.mutate(r.Context(), id, reason, func(e *ledger.StateEditor) error {
		var err error
		created, err = e.AddDebt(r.Context(), in)
		return err
	})
	if err != nil {
		writeDomainError(w, "Failed to add debt", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDebtDTO(created))
}

// ReplaceDebt swaps a debt for a corrected one in a new state. The old debt
// row survives in earlier states.
func (h *Handler) ReplaceDebt(w http.ResponseWriter, r *http.Request) {
	id, ok := instanceParam(w, r)
	if !ok {
		return
	}
	did, err := int64Param(r, "debtID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid debt id", err)
		return
	}

	var req CreateDebtRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in, err := debtInput(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid debt", err)
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "replaced debt"
	}

	var created ledger.Debt
	_, err = h.mutate(r.Context(), id, reason, func(e *ledger.StateEditor) error {
		var err error
		created, err = e.ReplaceDebt(r.Context(), ledger.DebtID(did), in)
		return err
	})
	if err != nil {
		writeDomainError(w, "Failed to replace debt", err)
		return
	}
	writeJSON(w, http.StatusOK, toDebtDTO(created))
}

// DeleteDebt removes a debt from the current state in a new state. History
// still shows it in earlier states.
func (h *Handler) DeleteDebt(w http.ResponseWriter, r *http.Request) {
	id, ok := instanceParam(w, r)
	if !ok {
		return
	}
	did, err := int64Param(r, "debtID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid debt id", err)
		return
	}

	state, err := h.mutate(r.Context(), id, "removed debt", func(e *ledger.StateEditor) error {
		return e.RemoveDebt(r.Context(), ledger.DebtID(did))
	})
	if err != nil {
		writeDomainError(w, "Failed to remove debt", err)
		return
	}
	writeJSON(w, http.StatusOK, toStateDTO(state))
}

// =============================================================================
// STATE HANDLERS
// =============================================================================

// DeleteLatestState undoes the most recent change by deleting the latest
// state. Rows referenced only by that state are reclaimed with it.
func (h *Handler) DeleteLatestState(w http.ResponseWriter, r *http.Request) {
	id, ok := instanceParam(w, r)
	if !ok {
		return
	}

	latest, err := h.Graph.LatestState(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to find latest state", err)
		return
	}
	if err := h.Graph.DeleteLeaf(r.Context(), latest); err != nil {
		writeDomainError(w, "Failed to delete state", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

func instanceParam(w http.ResponseWriter, r *http.Request) (ledger.InstanceID, bool) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid instance id", err)
		return 0, false
	}
	return ledger.InstanceID(id), true
}

func int64Param(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func personIDPtr(id *int64) *ledger.PersonID {
	if id == nil {
		return nil
	}
	pid := ledger.PersonID(*id)
	return &pid
}

// debtInput converts a CreateDebtRequest into editor input, parsing amounts
// and expanding the split form into explicit shares.
func debtInput(req CreateDebtRequest) (ledger.DebtInput, error) {
	in := ledger.DebtInput{
		Description: req.Description,
		Payee:       ledger.PersonID(req.Payee),
	}

	if req.Date != "" {
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			return ledger.DebtInput{}, errors.New("invalid date format (use YYYY-MM-DD)")
		}
		in.Date = date
	}

	switch {
	case len(req.Shares) > 0:
		for _, sh := range req.Shares {
			amount, err := ledger.ParseAmount(sh.Amount)
			if err != nil {
				return ledger.DebtInput{}, err
			}
			in.Shares = append(in.Shares, ledger.Share{
				Debtor: ledger.PersonID(sh.Debtor),
				Amount: amount,
			})
		}
	case req.Total != "" && len(req.Debtors) > 0:
		total, err := ledger.ParseAmount(req.Total)
		if err != nil {
			return ledger.DebtInput{}, err
		}
		share := total.Split(len(req.Debtors))
		for _, d := range req.Debtors {
			in.Shares = append(in.Shares, ledger.Share{
				Debtor: ledger.PersonID(d),
				Amount: share,
			})
		}
	default:
		return ledger.DebtInput{}, errors.New("either shares or total+debtors required")
	}

	return in, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, ledger.ErrValidation), errors.Is(err, ledger.ErrInconsistentDebtors):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, ledger.ErrInvalidOperation), errors.Is(err, ledger.ErrEmptyLedger):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
