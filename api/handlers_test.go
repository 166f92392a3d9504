/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Authentication and the cron secret
- Expense, settlement and balance flows end to end
- Validation details and engine error status mapping
- Ledger, notifications, health and metrics endpoints
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/splitledger/auth"
	"github.com/warp/splitledger/engine"
	"github.com/warp/splitledger/factory"
	"github.com/warp/splitledger/logging"
	"github.com/warp/splitledger/store/sqlite"
)

const testCronSecret = "tick"

type testAPI struct {
	t         *testing.T
	eng       *engine.Engine
	scheduler *RecurrenceScheduler
	router    http.Handler
}

type session struct {
	user  UserDTO
	token string
}

func newTestAPI(t *testing.T, scheduler func(*engine.Engine) *RecurrenceScheduler) *testAPI {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	eng := engine.New(store, engine.Options{
		Codec:  factory.NewPlanFactory(),
		Logger: logging.Discard(),
	})
	var s *RecurrenceScheduler
	if scheduler != nil {
		s = scheduler(eng)
	}
	h := NewHandler(eng, auth.NewManager("test-secret", time.Hour), s, logging.Discard())
	router := NewRouter(h, RouterOptions{CronSecret: testCronSecret, Health: store.Ping})
	return &testAPI{t: t, eng: eng, scheduler: s, router: router}
}

func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(a.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) register(name string) session {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/users", "", map[string]string{
		"name":  name,
		"email": strings.ToLower(name) + "@example.com",
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[RegisterUserResponse](a.t, rec)
	return session{user: resp.User, token: resp.Token}
}

// groupWith creates a group owned by owner and adds every other session.
func (a *testAPI) groupWith(owner session, name string, others ...session) GroupDTO {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/groups", owner.token, map[string]string{"name": name})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	g := decode[GroupDTO](a.t, rec)
	for _, o := range others {
		rec := a.do(http.MethodPost, "/api/groups/"+g.ID+"/members", owner.token, map[string]string{"email": o.user.Email})
		require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	return g
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func splitOf(userID string, amount float64) map[string]any {
	return map[string]any{"user_id": userID, "amount": amount}
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

// =============================================================================
// AUTH
// =============================================================================

func TestAPI_RequiresBearerToken(t *testing.T) {
	api := newTestAPI(t, nil)
	alice := api.register("Alice")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + alice.token, want: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer " + alice.token, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			api.router.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	me := decode[UserDTO](t, api.do(http.MethodGet, "/api/me", alice.token, nil))
	assert.Equal(t, alice.user.ID, me.ID)
	assert.Equal(t, "alice@example.com", me.Email)
}

func TestAPI_RegisterUser(t *testing.T) {
	api := newTestAPI(t, nil)
	api.register("Alice")

	// Same address, different case
	rec := api.do(http.MethodPost, "/api/users", "", map[string]string{"name": "Again", "email": "ALICE@example.com"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(http.MethodPost, "/api/users", "", map[string]string{"name": "X", "email": "not-an-email"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "Validation failed", resp.Error)
	assert.Equal(t, map[string]any{"email": "email"}, resp.Details)
}

func TestAPI_CronRequiresSecret(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(http.MethodPost, "/api/cron/recurring", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/cron/recurring", nil)
	req.Header.Set("X-Cron-Secret", "wrong")
	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/cron/recurring", nil)
	req.Header.Set("X-Cron-Secret", testCronSecret)
	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[RecurrenceResultDTO](t, rec)
	assert.Equal(t, 0, result.Processed)
}

func TestRequireCronSecret_EmptySecretRejectsEverything(t *testing.T) {
	called := false
	h := RequireCronSecret("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodPost, "/api/cron/recurring", nil)
	req.Header.Set("X-Cron-Secret", "")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

// =============================================================================
// EXPENSES AND BALANCES
// =============================================================================

func TestAPI_GroupExpenseAndSettlement(t *testing.T) {
	// GIVEN: Alice and Bob share a group
	api := newTestAPI(t, nil)
	alice, bob := api.register("Alice"), api.register("Bob")
	g := api.groupWith(alice, "Apartment", bob)
	assert.Equal(t, "USD", g.Currency)

	// WHEN: Alice pays 100 split evenly
	rec := api.do(http.MethodPost, "/api/expenses", alice.token, map[string]any{
		"description": "Dinner",
		"amount":      100,
		"group_id":    g.ID,
		"date":        "2025-03-01",
		"category":    "food",
		"splits":      []any{splitOf(alice.user.ID, 50), splitOf(bob.user.ID, 50)},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	exp := decode[ExpenseDTO](t, rec)
	assert.Equal(t, alice.user.ID, exp.PayerID)
	assert.Equal(t, "FOOD", exp.Category)
	assert.Equal(t, "USD", exp.Currency)
	require.Len(t, exp.Splits, 2)

	// THEN: Bob owes Alice 50
	rec = api.do(http.MethodGet, "/api/groups/"+g.ID+"/balances", bob.token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[GroupBalancesDTO](t, rec)
	require.Len(t, report.Debts, 1)
	assert.Equal(t, bob.user.ID, report.Debts[0].From)
	assert.Equal(t, alice.user.ID, report.Debts[0].To)
	assertAmount(t, "50", report.Debts[0].Amount)
	require.Len(t, report.Balances, 2)

	summary := decode[PersonalSummaryDTO](t, api.do(http.MethodGet, "/api/balances/summary", alice.token, nil))
	assertAmount(t, "50", summary.NetBalance)
	assertAmount(t, "50", summary.TotalOwed)
	require.Len(t, summary.Details, 1)
	assert.Equal(t, bob.user.ID, summary.Details[0].UserID)
	assert.Equal(t, "owes_you", summary.Details[0].Direction)
	assert.Equal(t, "Apartment", summary.Details[0].GroupName)

	// WHEN: Bob settles up
	rec = api.do(http.MethodPost, "/api/settlements", bob.token, map[string]any{
		"recipient_id": alice.user.ID,
		"amount":       "50",
		"group_id":     g.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	settlement := decode[ExpenseDTO](t, rec)
	assert.Equal(t, engine.CategorySettlement, settlement.Category)

	// THEN: Nobody owes anything
	report = decode[GroupBalancesDTO](t, api.do(http.MethodGet, "/api/groups/"+g.ID+"/balances", alice.token, nil))
	assert.Empty(t, report.Debts)
	for _, b := range report.Balances {
		assertAmount(t, "0", b.Balance)
	}

	expenses := decode[[]ExpenseDTO](t, api.do(http.MethodGet, "/api/groups/"+g.ID+"/expenses", bob.token, nil))
	assert.Len(t, expenses, 2)
}

func TestAPI_ExpenseValidation(t *testing.T) {
	api := newTestAPI(t, nil)
	alice := api.register("Alice")
	id := alice.user.ID

	tests := []struct {
		name        string
		body        any
		wantError   string
		wantDetails map[string]any
	}{
		{
			name:        "missing description",
			body:        map[string]any{"amount": 10, "splits": []any{splitOf(id, 10)}},
			wantError:   "Validation failed",
			wantDetails: map[string]any{"description": "required"},
		},
		{
			name:        "split without amount",
			body:        map[string]any{"description": "Lunch", "amount": 10, "splits": []any{map[string]any{"user_id": id}}},
			wantError:   "Validation failed",
			wantDetails: map[string]any{"splits[0].amount": "required"},
		},
		{
			name:        "unknown recurrence",
			body:        map[string]any{"description": "Rent", "amount": 10, "splits": []any{splitOf(id, 10)}, "recurrence": "DAILY"},
			wantError:   "Validation failed",
			wantDetails: map[string]any{"recurrence": "oneof"},
		},
		{
			name:        "split mismatch",
			body:        map[string]any{"description": "Lunch", "amount": 100, "splits": []any{splitOf(id, 95)}},
			wantError:   "Split mismatch: Total 100 does not match sum of splits 95",
			wantDetails: map[string]any{"total": "100", "sum": "95"},
		},
		{
			name:        "no splits",
			body:        map[string]any{"description": "Lunch", "amount": 10, "splits": []any{}},
			wantDetails: map[string]any{"splits": "at least one split is required"},
		},
		{
			name:      "unknown field",
			body:      `{"description":"Lunch","amount":10,"tip":2}`,
			wantError: "Invalid request body",
		},
		{
			name:      "bad date",
			body:      map[string]any{"description": "Lunch", "amount": 10, "splits": []any{splitOf(id, 10)}, "date": "03/01/2025"},
			wantError: "Invalid date (use YYYY-MM-DD or RFC3339)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(http.MethodPost, "/api/expenses", alice.token, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			resp := decode[ErrorResponse](t, rec)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, resp.Error)
			}
			if tt.wantDetails != nil {
				assert.Equal(t, tt.wantDetails, resp.Details)
			}
		})
	}

	// Nothing was persisted
	expenses := decode[[]ExpenseDTO](t, api.do(http.MethodGet, "/api/expenses", alice.token, nil))
	assert.Empty(t, expenses)
}

func TestAPI_ErrorStatusMapping(t *testing.T) {
	// GIVEN: A group Carol is not part of, and an existing friendship
	api := newTestAPI(t, nil)
	alice, bob, carol := api.register("Alice"), api.register("Bob"), api.register("Carol")
	g := api.groupWith(alice, "Apartment", bob)
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/api/friends", alice.token, map[string]string{"email": bob.user.Email}).Code)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{name: "non-member reads balances", method: http.MethodGet, path: "/api/groups/" + g.ID + "/balances", token: carol.token, want: http.StatusForbidden},
		{name: "non-member adds expense", method: http.MethodPost, path: "/api/expenses", token: carol.token, want: http.StatusForbidden,
			body: map[string]any{"description": "Sneaky", "amount": 5, "group_id": g.ID, "splits": []any{splitOf(carol.user.ID, 5)}}},
		{name: "unknown group", method: http.MethodGet, path: "/api/groups/missing/balances", token: alice.token, want: http.StatusNotFound},
		{name: "non-member reads group", method: http.MethodGet, path: "/api/groups/" + g.ID, token: carol.token, want: http.StatusForbidden},
		{name: "unknown group detail", method: http.MethodGet, path: "/api/groups/missing", token: alice.token, want: http.StatusNotFound},
		{name: "unknown friend email", method: http.MethodPost, path: "/api/friends", token: alice.token, want: http.StatusNotFound,
			body: map[string]string{"email": "ghost@example.com"}},
		{name: "duplicate friend", method: http.MethodPost, path: "/api/friends", token: bob.token, want: http.StatusConflict,
			body: map[string]string{"email": alice.user.Email}},
		{name: "befriend yourself", method: http.MethodPost, path: "/api/friends", token: alice.token, want: http.StatusBadRequest,
			body: map[string]string{"email": alice.user.Email}},
		{name: "duplicate member", method: http.MethodPost, path: "/api/groups/" + g.ID + "/members", token: alice.token, want: http.StatusConflict,
			body: map[string]string{"email": bob.user.Email}},
		{name: "unknown recurring template", method: http.MethodDelete, path: "/api/recurring/missing", token: alice.token, want: http.StatusNotFound},
		{name: "unknown notification", method: http.MethodPost, path: "/api/notifications/missing/read", token: alice.token, want: http.StatusNotFound},
		{name: "transactions without counterparty", method: http.MethodGet, path: "/api/transactions", token: alice.token, want: http.StatusBadRequest},
		{name: "transactions bad order", method: http.MethodGet, path: "/api/transactions?friend_id=" + bob.user.ID + "&order=sideways", token: alice.token, want: http.StatusBadRequest},
		{name: "transactions bad start date", method: http.MethodGet, path: "/api/transactions?group_id=" + g.ID + "&start_date=yesterday", token: alice.token, want: http.StatusBadRequest},
		{name: "bad group currency", method: http.MethodPost, path: "/api/groups", token: alice.token, want: http.StatusBadRequest,
			body: map[string]string{"name": "Trip", "currency": "EURO"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestAPI_ListAndGetGroups(t *testing.T) {
	// GIVEN: Alice in two groups, one of them shared with Bob and holding an expense
	api := newTestAPI(t, nil)
	alice, bob := api.register("Alice"), api.register("Bob")
	trip := api.groupWith(alice, "Trip", bob)
	api.groupWith(alice, "Book club")
	rec := api.do(http.MethodPost, "/api/expenses", bob.token, map[string]any{
		"description": "Fuel", "amount": 40, "group_id": trip.ID,
		"splits": []any{splitOf(alice.user.ID, 20), splitOf(bob.user.ID, 20)},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: Listing Alice's groups
	rec = api.do(http.MethodGet, "/api/groups", alice.token, nil)

	// THEN: Both groups come back by name with member counts
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	groups := decode[[]GroupSummaryDTO](t, rec)
	require.Len(t, groups, 2)
	assert.Equal(t, "Book club", groups[0].Name)
	assert.Equal(t, 1, groups[0].MemberCount)
	assert.Equal(t, trip.ID, groups[1].ID)
	assert.Equal(t, 2, groups[1].MemberCount)

	// AND: Bob only sees the shared group
	assert.Len(t, decode[[]GroupSummaryDTO](t, api.do(http.MethodGet, "/api/groups", bob.token, nil)), 1)

	// WHEN: Bob opens the trip
	rec = api.do(http.MethodGet, "/api/groups/"+trip.ID, bob.token, nil)

	// THEN: Members and expenses are included
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	detail := decode[GroupDetailDTO](t, rec)
	assert.Equal(t, "Trip", detail.Group.Name)
	require.Len(t, detail.Members, 2)
	assert.ElementsMatch(t, []string{alice.user.ID, bob.user.ID}, []string{detail.Members[0].ID, detail.Members[1].ID})
	require.Len(t, detail.Expenses, 1)
	assert.Equal(t, "Fuel", detail.Expenses[0].Description)
	assertAmount(t, "40", detail.Expenses[0].Amount)
}

func TestAPI_FriendLedger(t *testing.T) {
	// GIVEN: Two direct expenses between friends
	api := newTestAPI(t, nil)
	alice, bob := api.register("Alice"), api.register("Bob")
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/api/friends", alice.token, map[string]string{"email": bob.user.Email}).Code)

	for _, body := range []map[string]any{
		{"description": "Taxi", "amount": 30, "date": "2025-03-01", "splits": []any{splitOf(bob.user.ID, 30)}},
		{"description": "Coffee", "amount": 8, "date": "2025-03-02", "payer_id": bob.user.ID, "splits": []any{splitOf(alice.user.ID, 8)}},
	} {
		rec := api.do(http.MethodPost, "/api/expenses", alice.token, body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	// WHEN: Alice reads the ledger newest first
	rec := api.do(http.MethodGet, "/api/transactions?friend_id="+bob.user.ID+"&order=desc", alice.token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ledger := decode[LedgerDTO](t, rec)

	// THEN: Running balances accumulate oldest first and are listed newest first
	require.Len(t, ledger.Transactions, 2)
	assert.Equal(t, "Coffee", ledger.Transactions[0].Expense.Description)
	assertAmount(t, "-8", ledger.Transactions[0].UserAmount)
	assertAmount(t, "22", ledger.Transactions[0].RunningBalance)
	assertAmount(t, "30", ledger.Transactions[1].RunningBalance)
	assert.Equal(t, 2, ledger.Summary.TotalExpenses)
	assertAmount(t, "22", ledger.Summary.NetBalance)
	assert.Equal(t, "owes_you", ledger.Summary.Direction)

	// AND: The date range narrows it
	ledger = decode[LedgerDTO](t, api.do(http.MethodGet,
		"/api/transactions?friend_id="+bob.user.ID+"&start_date=2025-03-02&end_date=2025-03-02", alice.token, nil))
	require.Len(t, ledger.Transactions, 1)
	assert.Equal(t, "Coffee", ledger.Transactions[0].Expense.Description)

	// AND: Friend balances show the same net from Bob's side
	friends := decode[[]FriendBalanceDTO](t, api.do(http.MethodGet, "/api/friends/balances", bob.token, nil))
	require.Len(t, friends, 1)
	assertAmount(t, "-22", friends[0].Balance)
	assert.Equal(t, "you_owe", friends[0].Direction)
}

func TestAPI_Notifications(t *testing.T) {
	// GIVEN: Bob is added to a group and charged for an expense
	api := newTestAPI(t, nil)
	alice, bob := api.register("Alice"), api.register("Bob")
	g := api.groupWith(alice, "Apartment", bob)
	rec := api.do(http.MethodPost, "/api/expenses", alice.token, map[string]any{
		"description": "Groceries",
		"amount":      "40",
		"group_id":    g.ID,
		"splits":      []any{splitOf(alice.user.ID, 20), splitOf(bob.user.ID, 20)},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: Listing Bob's notifications
	notes := decode[[]NotificationDTO](t, api.do(http.MethodGet, "/api/notifications", bob.token, nil))

	// THEN: Both side effects were delivered, unread
	require.Len(t, notes, 2)
	var expenseNote *NotificationDTO
	for i := range notes {
		assert.False(t, notes[i].IsRead)
		if notes[i].Type == string(engine.NotifyExpenseAdded) {
			expenseNote = &notes[i]
		}
	}
	require.NotNil(t, expenseNote)
	assert.Contains(t, expenseNote.Message, "you owe 20.00 USD")

	// AND: Only the recipient can mark it read
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodPost, "/api/notifications/"+expenseNote.ID+"/read", alice.token, nil).Code)
	assert.Equal(t, http.StatusNoContent, api.do(http.MethodPost, "/api/notifications/"+expenseNote.ID+"/read", bob.token, nil).Code)

	// Alice paid, so she was not notified
	assert.Empty(t, decode[[]NotificationDTO](t, api.do(http.MethodGet, "/api/notifications", alice.token, nil)))
}

func TestAPI_RecurringExpenseViaCron(t *testing.T) {
	// GIVEN: A weekly expense dated in the past
	api := newTestAPI(t, nil)
	alice, bob := api.register("Alice"), api.register("Bob")
	rec := api.do(http.MethodPost, "/api/expenses", alice.token, map[string]any{
		"description": "Cleaner",
		"amount":      60,
		"date":        "2025-01-06",
		"recurrence":  "WEEKLY",
		"splits":      []any{splitOf(alice.user.ID, 30), splitOf(bob.user.ID, 30)},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: The cron endpoint fires
	req := httptest.NewRequest(http.MethodPost, "/api/cron/recurring", nil)
	req.Header.Set("X-Cron-Secret", testCronSecret)
	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	// THEN: One occurrence is created per sweep
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[RecurrenceResultDTO](t, rec)
	assert.Equal(t, 1, result.Processed)
	require.Len(t, result.Created, 1)
	assert.Empty(t, result.Skipped)

	expenses := decode[[]ExpenseDTO](t, api.do(http.MethodGet, "/api/expenses", bob.token, nil))
	require.Len(t, expenses, 2)
	assert.Equal(t, result.Created[0].ExpenseID, expenses[0].ID)
	assert.Equal(t, "Cleaner", expenses[0].Description)
	assertAmount(t, "60", expenses[0].Amount)
}

func TestAPI_Analytics(t *testing.T) {
	api := newTestAPI(t, nil)
	alice, bob := api.register("Alice"), api.register("Bob")
	rec := api.do(http.MethodPost, "/api/expenses", bob.token, map[string]any{
		"description": "Tickets",
		"amount":      45,
		"category":    "fun",
		"splits":      []any{splitOf(alice.user.ID, 45)},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(http.MethodGet, "/api/analytics", alice.token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	a := decode[AnalyticsDTO](t, rec)
	assert.Equal(t, "USD", a.Currency)
	assertAmount(t, "45", a.TotalSpent)
	require.Len(t, a.ByCategory, 1)
	assert.Equal(t, "FUN", a.ByCategory[0].Category)
	assert.Len(t, a.Monthly, engine.TrendMonths)
}

// =============================================================================
// OPERATIONS
// =============================================================================

func TestAPI_HealthAndMetrics(t *testing.T) {
	api := newTestAPI(t, nil)
	api.register("Alice")

	rec := api.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = api.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "splitledger_http_requests_total")
	assert.Contains(t, rec.Body.String(), `route="/api/users"`)
}
