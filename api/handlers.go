/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes leave.Service over REST. Handles HTTP request/response and JSON,
  and delegates every rule to the service.

ENDPOINTS:
  Requests:
    POST   /api/requests                    File a request
    GET    /api/requests/{id}               Get one request
    PUT    /api/requests/{id}               Modify
    POST   /api/requests/{id}/approve       Approve
    POST   /api/requests/{id}/reject        Reject
    POST   /api/requests/{id}/cancel        Cancel
    PUT    /api/requests/{id}/refund        Set refund amount
    PUT    /api/requests/{id}/discount      Toggle permit discount

  Listings (state, kind, page, per_page):
    GET    /api/employees/{id}/requests
    GET    /api/supervisors/{id}/requests

  Employees:
    POST   /api/employees                   Register employee (admin)
    GET    /api/employees/{id}
    GET    /api/employees/{id}/balance      Computed balance (as_of=YYYY-MM-DD)
    GET    /api/employees/{id}/effects      Balance effect ledger
    PUT    /api/employees/{id}/status       Activate / deactivate (admin)
    PUT    /api/employees/{id}/historical   Carried-over days (admin)
    POST   /api/employees/{id}/recompute    Store a fresh balance

  Admin:
    GET    /api/admin/inconsistencies       ?open=false for all
    POST   /api/admin/inconsistencies/{id}/retry
    POST   /api/admin/inconsistencies/retry Retry every open one
    POST   /api/admin/sweep

ERROR HANDLING:
  writeServiceError maps domain errors to status codes in one place:
  - 400: Validation
  - 401: Missing or invalid token (middleware)
  - 403: Forbidden
  - 404: Not found
  - 409: Invalid state transition, persistence conflict
  - 422: Invalid operation for the request kind
  - 500: Anything else

READ ACCESS:
  Employees may read their own requests, balance and ledger. Supervisors and
  admins may read anyone's.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/warp/leave-engine/auth"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/notify"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *leave.Service
	Live    *notify.Handler
	Logger  *slog.Logger
}

// NewHandler creates a new handler. live may be nil when live updates are
// disabled.
func NewHandler(svc *leave.Service, live *notify.Handler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Service: svc,
		Live:    live,
		Logger:  logger.With("component", "api"),
	}
}

// =============================================================================
// REQUEST ENDPOINTS
// =============================================================================

// CreateRequest files a new request.
// POST /api/requests
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var body CreateRequestBody
	if !decodeBody(w, r, &body) {
		return
	}
	in, err := body.toNewRequest()
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	req, err := h.Service.Create(r.Context(), actorOf(r), in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// GetRequest returns one request.
// GET /api/requests/{id}
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if !canView(actorOf(r), req.EmployeeID) {
		h.writeServiceError(w, generic.ErrForbidden)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// ModifyRequest applies a partial update.
// PUT /api/requests/{id}
func (h *Handler) ModifyRequest(w http.ResponseWriter, r *http.Request) {
	var body PatchBody
	if !decodeBody(w, r, &body) {
		return
	}
	patch, err := body.toPatch()
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	req, err := h.Service.Modify(r.Context(), actorOf(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// ApproveRequest approves a pending or modified request.
// POST /api/requests/{id}/approve
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, leave.StateApproved)
}

// RejectRequest rejects a pending or modified request.
// POST /api/requests/{id}/reject
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, leave.StateRejected)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, outcome leave.State) {
	var body DecisionBody
	if !decodeOptionalBody(w, r, &body) {
		return
	}
	req, err := h.Service.Decide(r.Context(), actorOf(r), chi.URLParam(r, "id"), outcome, body.Notes)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// CancelRequest cancels a request that has not been decided negatively.
// POST /api/requests/{id}/cancel
func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	var body DecisionBody
	if !decodeOptionalBody(w, r, &body) {
		return
	}
	req, err := h.Service.Cancel(r.Context(), actorOf(r), chi.URLParam(r, "id"), body.Notes)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// SetRefund records the days given back on an approved request.
// PUT /api/requests/{id}/refund
func (h *Handler) SetRefund(w http.ResponseWriter, r *http.Request) {
	var body RefundBody
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := h.Service.AddRefund(r.Context(), actorOf(r), chi.URLParam(r, "id"), body.Amount)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// SetDiscount toggles the permit discount.
// PUT /api/requests/{id}/discount
func (h *Handler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	var body DiscountBody
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := h.Service.SetDiscount(r.Context(), actorOf(r), chi.URLParam(r, "id"), body.Enabled, body.Days)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// =============================================================================
// LISTINGS
// =============================================================================

// ListEmployeeRequests pages through one employee's requests.
// GET /api/employees/{id}/requests
func (h *Handler) ListEmployeeRequests(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !canView(actorOf(r), id) {
		h.writeServiceError(w, generic.ErrForbidden)
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	page, err := h.Service.ListByEmployee(r.Context(), id, f)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// ListSupervisorRequests pages through the requests a supervisor reviews.
// GET /api/supervisors/{id}/requests
func (h *Handler) ListSupervisorRequests(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := actorOf(r)
	if !actor.IsAdmin() && actor.ID != id {
		h.writeServiceError(w, generic.ErrForbidden)
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	page, err := h.Service.ListBySupervisor(r.Context(), id, f)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func parseFilter(r *http.Request) (leave.RequestFilter, error) {
	q := r.URL.Query()
	f := leave.RequestFilter{
		State: leave.State(q.Get("state")),
		Kind:  leave.Kind(q.Get("kind")),
	}
	var err error
	if f.Page, err = intParam(q.Get("page"), "page"); err != nil {
		return f, err
	}
	if f.PerPage, err = intParam(q.Get("per_page"), "per_page"); err != nil {
		return f, err
	}
	return f, nil
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, generic.Invalid(name, "must be a positive integer")
	}
	return n, nil
}

// =============================================================================
// EMPLOYEE ENDPOINTS
// =============================================================================

// CreateEmployee registers an employee and computes their first balance.
// POST /api/employees
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var body CreateEmployeeBody
	if !decodeBody(w, r, &body) {
		return
	}
	e, err := body.toEmployee()
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	created, err := h.Service.CreateEmployee(r.Context(), actorOf(r), e)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetEmployee returns an employee with their stored balance.
// GET /api/employees/{id}
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !canView(actorOf(r), id) {
		h.writeServiceError(w, generic.ErrForbidden)
		return
	}
	e, err := h.Service.GetEmployee(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// GetBalance computes the balance without storing it.
// GET /api/employees/{id}/balance?as_of=2025-01-31
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !canView(actorOf(r), id) {
		h.writeServiceError(w, generic.ErrForbidden)
		return
	}
	asOf, err := leave.ParseDate(r.URL.Query().Get("as_of"))
	if err != nil {
		h.writeServiceError(w, generic.Invalid("as_of", "%v", err))
		return
	}
	snap, err := h.Service.ComputeBalance(r.Context(), id, asOf)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(id, snap))
}

// ListBalanceEffects returns the applied balance effects, oldest first.
// GET /api/employees/{id}/effects
func (h *Handler) ListBalanceEffects(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !canView(actorOf(r), id) {
		h.writeServiceError(w, generic.ErrForbidden)
		return
	}
	effects, err := h.Service.ListBalanceEffects(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if effects == nil {
		effects = []leave.BalanceEffect{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"effects": effects})
}

// SetEmployeeStatus activates or deactivates an employee.
// PUT /api/employees/{id}/status
func (h *Handler) SetEmployeeStatus(w http.ResponseWriter, r *http.Request) {
	var body StatusBody
	if !decodeBody(w, r, &body) {
		return
	}
	e, err := h.Service.SetEmployeeActive(r.Context(), actorOf(r), chi.URLParam(r, "id"), body.Active, body.Reason)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// SetHistoricalBalance replaces the carried-over days.
// PUT /api/employees/{id}/historical
func (h *Handler) SetHistoricalBalance(w http.ResponseWriter, r *http.Request) {
	var body HistoricalBody
	if !decodeBody(w, r, &body) {
		return
	}
	e, err := h.Service.SetHistoricalBalance(r.Context(), actorOf(r), chi.URLParam(r, "id"), body.Historical)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// RecomputeBalance stores a fresh balance for one employee.
// POST /api/employees/{id}/recompute
func (h *Handler) RecomputeBalance(w http.ResponseWriter, r *http.Request) {
	actor := actorOf(r)
	if actor.Role == leave.RoleEmployee {
		h.writeServiceError(w, generic.ErrForbidden)
		return
	}
	e, err := h.Service.RecomputeBalance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// ListInconsistencies returns open inconsistencies, or all with ?open=false.
// GET /api/admin/inconsistencies
func (h *Handler) ListInconsistencies(w http.ResponseWriter, r *http.Request) {
	openOnly := true
	if raw := r.URL.Query().Get("open"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeServiceError(w, generic.Invalid("open", "must be true or false"))
			return
		}
		openOnly = v
	}
	list, err := h.Service.ListInconsistencies(r.Context(), openOnly)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []leave.Inconsistency{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"inconsistencies": list})
}

// RetryInconsistency re-runs one failed balance saga. A retry that fails
// again still answers 200 with the updated (open) record.
// POST /api/admin/inconsistencies/{id}/retry
func (h *Handler) RetryInconsistency(w http.ResponseWriter, r *http.Request) {
	inc, err := h.Service.Reconcile(r.Context(), chi.URLParam(r, "id"))
	if err != nil && inc == nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// RetryOpenInconsistencies re-runs every open saga.
// POST /api/admin/inconsistencies/retry
func (h *Handler) RetryOpenInconsistencies(w http.ResponseWriter, r *http.Request) {
	n, err := h.Service.ReconcileOpen(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReconcileOpenDTO{Reconciled: n})
}

// Sweep runs the batch recompute now.
// POST /api/admin/sweep
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.Sweep(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// =============================================================================
// NOTIFICATIONS & HEALTH
// =============================================================================

// Notifications upgrades to the live notification socket. Authentication
// happens inside the socket handshake.
// GET /ws/{employeeID}
func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	if h.Live == nil {
		writeError(w, http.StatusNotFound, "Live notifications are disabled", nil)
		return
	}
	h.Live.Serve(w, r, chi.URLParam(r, "employeeID"))
}

// Health reports liveness.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func actorOf(r *http.Request) leave.Actor {
	a, _ := auth.ActorFromContext(r.Context())
	return a
}

// canView reports whether actor may read employeeID's data.
func canView(actor leave.Actor, employeeID string) bool {
	switch actor.Role {
	case leave.RoleAdmin, leave.RoleSupervisor:
		return true
	default:
		return actor.ID == employeeID
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// decodeOptionalBody accepts an empty body.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
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

// writeServiceError maps domain errors to HTTP status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, generic.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, generic.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden", err)
	case errors.Is(err, generic.ErrValidation):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case errors.Is(err, generic.ErrInvalidOperation):
		writeError(w, http.StatusUnprocessableEntity, "Operation not applicable", err)
	case errors.Is(err, generic.ErrInvalidStateTransition):
		writeError(w, http.StatusConflict, "Invalid state transition", err)
	case errors.Is(err, generic.ErrPersistenceConflict):
		writeError(w, http.StatusConflict, "Concurrent update, retry", err)
	default:
		h.Logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error", nil)
	}
}
