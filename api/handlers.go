/*
handlers.go - HTTP API handlers for the settlement engine

PURPOSE:
  Exposes the engine via REST. Handles HTTP request/response, JSON
  decoding and validation, and delegates to engine operations. The acting
  user always comes from the bearer token, never from the body.

ENDPOINTS:
  Users:
    POST   /api/users                     Register (dev bootstrap, returns a token)
    GET    /api/me                        Current user

  Expenses:
    GET    /api/expenses                  ?group_id= | ?friend_id= | (all of mine)
    POST   /api/expenses                  Create expense (optionally recurring)
    POST   /api/settlements               Record a payment to someone
    DELETE /api/recurring/{id}            Stop a recurring template

  Balances:
    GET    /api/balances/summary          Personal summary (?currency=)
    GET    /api/friends/balances          Per-friend net (?currency=)
    GET    /api/groups/{id}/balances      Group balances + suggested payments
    GET    /api/transactions              Ledger with running balance
    GET    /api/analytics                 Spending by category and month

  Social:
    GET    /api/friends                   List friends
    POST   /api/friends                   Add friend by email
    GET    /api/groups                    My groups with member counts
    POST   /api/groups                    Create group
    GET    /api/groups/{id}               Group detail (members, expenses)
    GET    /api/groups/{id}/expenses      Group expenses
    POST   /api/groups/{id}/members       Add member by email
    GET    /api/notifications             Latest notifications
    POST   /api/notifications/{id}/read   Mark one read

  Operations:
    POST   /api/cron/recurring            Run a recurrence sweep (X-Cron-Secret)

REQUEST FLOW:
  1. Decode JSON body (decodeAndValidate)
  2. Validate shape with validator tags
  3. Call the engine
  4. Convert to DTO and write JSON
  5. Map engine errors to status codes (writeEngineError)

ERROR HANDLING:
  - 400: Validation errors, split mismatch, bad query parameters
  - 401: Missing or invalid token
  - 403: Not a member of the group
  - 404: Resource not found
  - 409: Already exists, concurrent modification, sweep already running
  - 500: Everything else (logged; the client gets a generic message)

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/warp/splitledger/auth"
	"github.com/warp/splitledger/engine"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine    *engine.Engine
	Tokens    *auth.Manager
	Scheduler *RecurrenceScheduler
	Validate  *validator.Validate
	Logger    *slog.Logger
}

// NewHandler creates a handler. The scheduler may be nil; the cron endpoint
// then sweeps directly through the engine without a lock.
func NewHandler(eng *engine.Engine, tokens *auth.Manager, scheduler *RecurrenceScheduler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Engine:    eng,
		Tokens:    tokens,
		Scheduler: scheduler,
		Validate:  newValidator(),
		Logger:    logger,
	}
}

// newValidator reports JSON field names instead of Go field names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// RegisterUser creates a user and returns a token for it.
// POST /api/users
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterUserRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	u, err := h.Engine.RegisterUser(r.Context(), req.Name, req.Email)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	token, err := h.Tokens.Generate(string(u.ID), u.Email)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, RegisterUserResponse{User: toUserDTO(*u), Token: token})
}

// GetMe returns the authenticated user.
// GET /api/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.Engine.GetUser(r.Context(), userFromContext(r.Context()))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*u))
}

// =============================================================================
// EXPENSE HANDLERS
// =============================================================================

// ListExpenses returns expenses for one group, one friend, or all of the caller's.
// GET /api/expenses?group_id=...|friend_id=...
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := userFromContext(ctx)
	q := r.URL.Query()

	var (
		expenses []engine.Expense
		err      error
	)
	switch {
	case q.Get("group_id") != "":
		expenses, err = h.Engine.ListGroupExpenses(ctx, actor, engine.GroupID(q.Get("group_id")))
	case q.Get("friend_id") != "":
		expenses, err = h.Engine.ListExpenses(ctx, engine.ByFriendPair{UserID: actor, FriendID: engine.UserID(q.Get("friend_id"))})
	default:
		expenses, err = h.Engine.ListExpenses(ctx, engine.ByUser{UserID: actor})
	}
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTOs(expenses))
}

// GetGroupExpenses lists one group's expenses.
// GET /api/groups/{id}/expenses
func (h *Handler) GetGroupExpenses(w http.ResponseWriter, r *http.Request) {
	groupID := engine.GroupID(chi.URLParam(r, "id"))
	expenses, err := h.Engine.ListGroupExpenses(r.Context(), userFromContext(r.Context()), groupID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTOs(expenses))
}

// CreateExpense records an expense paid by the caller (or payer_id).
// POST /api/expenses
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req CreateExpenseRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD or RFC3339)", err)
		return
	}

	er := engine.ExpenseRequest{
		Description: req.Description,
		Amount:      *req.Amount,
		PayerID:     engine.UserID(req.PayerID),
		Date:        date,
		Category:    strings.ToUpper(strings.TrimSpace(req.Category)),
		Splits:      make([]engine.Split, 0, len(req.Splits)),
	}
	if req.GroupID != "" {
		gid := engine.GroupID(req.GroupID)
		er.GroupID = &gid
	}
	for _, s := range req.Splits {
		er.Splits = append(er.Splits, engine.Split{UserID: engine.UserID(s.UserID), Amount: *s.Amount})
	}
	for _, it := range req.LineItems {
		er.LineItems = append(er.LineItems, engine.LineItem{Name: it.Name, Price: *it.Price, Quantity: it.Quantity})
	}
	if req.Recurrence != "" {
		interval := engine.Interval(req.Recurrence)
		er.Recurrence = &interval
	}

	exp, err := h.Engine.CreateExpense(r.Context(), userFromContext(r.Context()), er)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseDTO(*exp))
}

// CreateSettlement records the caller paying recipient back. It is an
// ordinary expense with category SETTLEMENT and the recipient as the only split.
// POST /api/settlements
func (h *Handler) CreateSettlement(w http.ResponseWriter, r *http.Request) {
	var req SettlementRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD or RFC3339)", err)
		return
	}

	actor := userFromContext(r.Context())
	er := engine.ExpenseRequest{
		Description: "Settlement",
		Amount:      *req.Amount,
		PayerID:     actor,
		Date:        date,
		Category:    engine.CategorySettlement,
		Splits:      []engine.Split{{UserID: engine.UserID(req.RecipientID), Amount: *req.Amount}},
	}
	if req.GroupID != "" {
		gid := engine.GroupID(req.GroupID)
		er.GroupID = &gid
	}

	exp, err := h.Engine.CreateExpense(r.Context(), actor, er)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseDTO(*exp))
}

// DeactivateRecurring stops a recurring template owned by the caller.
// DELETE /api/recurring/{id}
func (h *Handler) DeactivateRecurring(w http.ResponseWriter, r *http.Request) {
	id := engine.RecurringID(chi.URLParam(r, "id"))
	if err := h.Engine.DeactivateRecurring(r.Context(), userFromContext(r.Context()), id); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GetPersonalSummary returns what the caller owes and is owed across groups.
// GET /api/balances/summary?currency=USD
func (h *Handler) GetPersonalSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Engine.PersonalSummary(r.Context(), userFromContext(r.Context()), currencyParam(r))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonalSummaryDTO(summary))
}

// GetFriendBalances returns the caller's net position with each friend.
// GET /api/friends/balances?currency=USD
func (h *Handler) GetFriendBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.Engine.FriendBalances(r.Context(), userFromContext(r.Context()), currencyParam(r))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	dtos := make([]FriendBalanceDTO, 0, len(balances))
	for _, b := range balances {
		dtos = append(dtos, FriendBalanceDTO{
			Friend:    toUserDTO(b.Friend),
			Balance:   b.Balance,
			Direction: engine.SettleUpDirection(b.Balance),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetGroupBalances returns member balances and the simplified payment list.
// GET /api/groups/{id}/balances
func (h *Handler) GetGroupBalances(w http.ResponseWriter, r *http.Request) {
	groupID := engine.GroupID(chi.URLParam(r, "id"))
	report, err := h.Engine.GroupBalances(r.Context(), userFromContext(r.Context()), groupID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupBalancesDTO(report))
}

// GetTransactions returns the ledger between the caller and a friend or group.
// GET /api/transactions?friend_id=|group_id=&start_date=&end_date=&category=&order=asc|desc
//
// With friend_id, group_id narrows the friend ledger to that group.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var cp engine.Counterparty
	filter := engine.LedgerFilter{
		Category: strings.ToUpper(strings.TrimSpace(q.Get("category"))),
		Currency: currencyParam(r),
	}
	switch {
	case q.Get("friend_id") != "":
		cp = engine.FriendCounterparty{FriendID: engine.UserID(q.Get("friend_id"))}
		if g := q.Get("group_id"); g != "" {
			gid := engine.GroupID(g)
			filter.GroupID = &gid
		}
	case q.Get("group_id") != "":
		cp = engine.GroupCounterparty{GroupID: engine.GroupID(q.Get("group_id"))}
	default:
		writeError(w, http.StatusBadRequest, "friend_id or group_id is required", nil)
		return
	}

	if s := q.Get("start_date"); s != "" {
		from, err := time.Parse(dateLayout, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start_date (use YYYY-MM-DD)", err)
			return
		}
		filter.Range.From = &from
	}
	if s := q.Get("end_date"); s != "" {
		to, err := time.Parse(dateLayout, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end_date (use YYYY-MM-DD)", err)
			return
		}
		to = engine.EndOfDay(to)
		filter.Range.To = &to
	}

	order := strings.ToLower(q.Get("order"))
	if order != "" && order != "asc" && order != "desc" {
		writeError(w, http.StatusBadRequest, "order must be asc or desc", nil)
		return
	}

	ledger, err := h.Engine.Ledger(r.Context(), userFromContext(r.Context()), cp, filter)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerDTO(ledger, order == "desc"))
}

// GetAnalytics returns the caller's spending breakdown.
// GET /api/analytics?currency=USD
func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := h.Engine.Analytics(r.Context(), userFromContext(r.Context()), currencyParam(r))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAnalyticsDTO(a))
}

// =============================================================================
// SOCIAL HANDLERS
// =============================================================================

// ListFriends returns the caller's friends.
// GET /api/friends
func (h *Handler) ListFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := h.Engine.ListFriends(r.Context(), userFromContext(r.Context()))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dtos := make([]UserDTO, 0, len(friends))
	for _, f := range friends {
		dtos = append(dtos, toUserDTO(f))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddFriend links the caller with the owner of an email address.
// POST /api/friends
func (h *Handler) AddFriend(w http.ResponseWriter, r *http.Request) {
	var req AddFriendRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	friend, err := h.Engine.AddFriend(r.Context(), userFromContext(r.Context()), req.Email)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(*friend))
}

// ListGroups returns the caller's groups.
// GET /api/groups
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Engine.ListGroups(r.Context(), userFromContext(r.Context()))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	dtos := make([]GroupSummaryDTO, 0, len(groups))
	for _, g := range groups {
		dtos = append(dtos, GroupSummaryDTO{GroupDTO: toGroupDTO(g.Group), MemberCount: g.MemberCount})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetGroup returns a group with its members and expenses.
// GET /api/groups/{id}
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	groupID := engine.GroupID(chi.URLParam(r, "id"))
	detail, err := h.Engine.GetGroup(r.Context(), userFromContext(r.Context()), groupID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupDetailDTO(detail))
}

// CreateGroup creates a group with the caller as its first member.
// POST /api/groups
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	g, err := h.Engine.CreateGroup(r.Context(), userFromContext(r.Context()), req.Name, engine.Currency(req.Currency))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupDTO(*g))
}

// AddGroupMember adds someone to a group the caller belongs to.
// POST /api/groups/{id}/members
func (h *Handler) AddGroupMember(w http.ResponseWriter, r *http.Request) {
	var req AddMemberRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	groupID := engine.GroupID(chi.URLParam(r, "id"))
	u, err := h.Engine.AddGroupMember(r.Context(), userFromContext(r.Context()), groupID, req.Email)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(*u))
}

// ListNotifications returns the caller's latest notifications.
// GET /api/notifications
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	items, err := h.Engine.ListNotifications(r.Context(), userFromContext(r.Context()))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dtos := make([]NotificationDTO, 0, len(items))
	for _, n := range items {
		dtos = append(dtos, toNotificationDTO(n))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// MarkNotificationRead marks one of the caller's notifications read.
// POST /api/notifications/{id}/read
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id := engine.NotificationID(chi.URLParam(r, "id"))
	if err := h.Engine.MarkNotificationRead(r.Context(), userFromContext(r.Context()), id); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// OPERATIONS
// =============================================================================

// RunRecurring runs one recurrence sweep now.
// POST /api/cron/recurring
func (h *Handler) RunRecurring(w http.ResponseWriter, r *http.Request) {
	var (
		result *engine.RecurrenceResult
		err    error
	)
	if h.Scheduler != nil {
		result, err = h.Scheduler.RunNow(r.Context())
	} else {
		result, err = h.Engine.ProcessDueRecurring(r.Context(), time.Now())
	}
	if errors.Is(err, ErrSweepLocked) {
		writeError(w, http.StatusConflict, "Recurring sweep already running", nil)
		return
	}
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecurrenceResultDTO(result))
}

// =============================================================================
// HELPERS
// =============================================================================

// decodeAndValidate decodes the JSON body into dst and runs validator tags.
// It writes the error response itself and returns false on failure.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.Validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Details: validationDetails(verrs)})
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// validationDetails maps each failing field (by JSON path) to the rule it broke.
func validationDetails(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i+1:]
		}
		out[ns] = fe.Tag()
	}
	return out
}

// writeEngineError maps engine errors onto HTTP status codes.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var mismatch *engine.SplitMismatchError
	var verr *engine.ValidationError
	switch {
	case errors.As(err, &mismatch):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   mismatch.Error(),
			Details: map[string]string{"total": mismatch.Total.String(), "sum": mismatch.Sum.String()},
		})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   verr.Message,
			Details: map[string]string{verr.Field: verr.Message},
		})
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case engine.IsUnauthorized(err):
		writeError(w, http.StatusForbidden, "Forbidden", err)
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case engine.IsConflict(err), engine.IsRetryable(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	default:
		h.Logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", nil)
	}
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

func currencyParam(r *http.Request) engine.Currency {
	return engine.Currency(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("currency"))))
}

// parseDate accepts YYYY-MM-DD or RFC3339. Empty means "now" to the engine.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}
