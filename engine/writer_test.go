package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/splitledger/engine"
	"github.com/warp/splitledger/engine/store"
)

// failingRecurringStore fails every InsertRecurring made inside a transaction.
type failingRecurringStore struct {
	*store.TxMemory
}

func (s failingRecurringStore) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	return s.TxMemory.WithTx(ctx, func(tx engine.Store) error {
		return fn(failingRecurringTx{Store: tx})
	})
}

type failingRecurringTx struct {
	engine.Store
}

func (failingRecurringTx) InsertRecurring(context.Context, engine.RecurringExpense) error {
	return errors.New("disk full")
}

type brokenNotifier struct{ calls int }

func (n *brokenNotifier) Notify(context.Context, engine.Notification) error {
	n.calls++
	return errors.New("mailer down")
}

func TestCreateExpense_PersistsAndNotifiesSplitUsers(t *testing.T) {
	// GIVEN: A group of three
	f := newFixture(t)
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	g := f.group(t, "flat", alice, bob, carol)

	// WHEN: Alice pays $90 split three ways
	exp, err := f.eng.CreateExpense(f.ctx, alice, engine.ExpenseRequest{
		Description: "  Groceries ",
		Amount:      dec("90"),
		GroupID:     &g,
		Splits:      []engine.Split{split(alice, "30"), split(bob, "30"), split(carol, "30")},
		LineItems:   []engine.LineItem{{Name: "milk", Price: dec("3")}},
	})
	require.NoError(t, err)

	// THEN: The expense is stored with defaults filled in
	assert.Equal(t, "Groceries", exp.Description)
	assert.Equal(t, alice, exp.PayerID)
	assert.Equal(t, engine.CategoryExpense, exp.Category)
	assert.Equal(t, engine.Currency("USD"), exp.Currency)
	assert.True(t, exp.Date.Equal(testNow))
	require.Len(t, exp.LineItems, 1)
	assert.Equal(t, 1, exp.LineItems[0].Quantity)

	stored, err := f.eng.ListExpenses(f.ctx, engine.ByGroup{GroupID: g})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, exp.ID, stored[0].ID)
	assert.Len(t, stored[0].Splits, 3)

	// AND: Bob and Carol are notified, the payer is not
	for _, u := range []engine.UserID{bob, carol} {
		notes, err := f.eng.ListNotifications(f.ctx, u)
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Equal(t, engine.NotifyExpenseAdded, notes[0].Type)
		assert.Contains(t, notes[0].Message, "30.00")
	}
	notes, err := f.eng.ListNotifications(f.ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestCreateExpense_GroupMembership(t *testing.T) {
	tests := []struct {
		name     string
		actor    string
		payer    string
		wantRole string
	}{
		{name: "actor outside the group", actor: "carol", payer: "", wantRole: "actor"},
		{name: "payer outside the group", actor: "alice", payer: "carol", wantRole: "payer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			users := map[string]engine.UserID{
				"alice": f.user(t, "alice"),
				"bob":   f.user(t, "bob"),
				"carol": f.user(t, "carol"),
			}
			g := f.group(t, "flat", users["alice"], users["bob"])

			_, err := f.eng.CreateExpense(f.ctx, users[tt.actor], engine.ExpenseRequest{
				Description: "Dinner",
				Amount:      dec("20"),
				PayerID:     users[tt.payer],
				GroupID:     &g,
				Splits:      []engine.Split{split(users["bob"], "20")},
			})

			var authErr *engine.AuthorizationError
			require.True(t, errors.As(err, &authErr), "got %v", err)
			assert.Equal(t, tt.wantRole, authErr.Role)
			assert.True(t, engine.IsUnauthorized(err))

			stored, err := f.eng.ListExpenses(f.ctx, engine.ByGroup{GroupID: g})
			require.NoError(t, err)
			assert.Empty(t, stored)
		})
	}
}

func TestCreateExpense_SplitUsersOutsideGroupAreAccepted(t *testing.T) {
	// GIVEN: Carol is not in the group
	f := newFixture(t)
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	g := f.group(t, "flat", alice, bob)

	// WHEN: Alice splits with her anyway
	_, err := f.eng.CreateExpense(f.ctx, alice, engine.ExpenseRequest{
		Description: "Taxi",
		Amount:      dec("30"),
		GroupID:     &g,
		Splits:      []engine.Split{split(bob, "15"), split(carol, "15")},
	})

	// THEN: Only the actor and payer are checked
	require.NoError(t, err)

	report, err := f.eng.GroupBalances(f.ctx, alice, g)
	require.NoError(t, err)
	assertDecimal(t, "-15", report.Balances[carol])
	assert.True(t, engine.Sum(report.Balances).IsZero())
}

func TestCreateExpense_Rejections(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	missing := engine.GroupID("missing")
	yearly := engine.Interval("YEARLY")

	tests := []struct {
		name  string
		req   engine.ExpenseRequest
		check func(error) bool
	}{
		{
			name:  "blank description",
			req:   engine.ExpenseRequest{Description: " ", Amount: dec("10"), Splits: []engine.Split{split(bob, "10")}},
			check: engine.IsClientError,
		},
		{
			name:  "split mismatch",
			req:   engine.ExpenseRequest{Description: "x", Amount: dec("100"), Splits: []engine.Split{split(bob, "95")}},
			check: engine.IsClientError,
		},
		{
			name:  "unknown interval",
			req:   engine.ExpenseRequest{Description: "x", Amount: dec("10"), Splits: []engine.Split{split(bob, "10")}, Recurrence: &yearly},
			check: engine.IsClientError,
		},
		{
			name:  "unknown group",
			req:   engine.ExpenseRequest{Description: "x", Amount: dec("10"), Splits: []engine.Split{split(bob, "10")}, GroupID: &missing},
			check: engine.IsNotFound,
		},
		{
			name:  "unknown payer",
			req:   engine.ExpenseRequest{Description: "x", Amount: dec("10"), Splits: []engine.Split{split(bob, "10")}, PayerID: "ghost"},
			check: engine.IsNotFound,
		},
		{
			name:  "unknown split user",
			req:   engine.ExpenseRequest{Description: "x", Amount: dec("100"), Splits: []engine.Split{split(alice, "50"), split("no-such-user", "50")}},
			check: engine.IsNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.eng.CreateExpense(f.ctx, alice, tt.req)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error %v", err)
		})
	}

	stored, err := f.eng.ListExpenses(f.ctx, engine.ByUser{UserID: alice})
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestCreateExpense_RecurringTemplate(t *testing.T) {
	// GIVEN: A weekly expense dated March 1st
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	weekly := engine.IntervalWeekly
	date := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

	_, err := f.eng.CreateExpense(f.ctx, alice, engine.ExpenseRequest{
		Description: "Cleaner",
		Amount:      dec("40"),
		Date:        date,
		Splits:      []engine.Split{split(alice, "20"), split(bob, "20")},
		Recurrence:  &weekly,
	})
	require.NoError(t, err)

	// THEN: A template is due one interval after the expense date
	due, err := f.mem.ListDueRecurring(f.ctx, date.AddDate(1, 0, 0))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.True(t, due[0].NextRun.Equal(date.AddDate(0, 0, 7)))
	assert.True(t, due[0].IsActive)
	assert.Equal(t, alice, due[0].PayerID)
	assert.JSONEq(t, `[{"userId":"`+string(alice)+`","amount":20},{"userId":"`+string(bob)+`","amount":20}]`, due[0].SplitPlan)
}

func TestCreateExpense_RollsBackWhenTemplateWriteFails(t *testing.T) {
	// GIVEN: A store that cannot write templates
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	eng := f.engineOver(failingRecurringStore{TxMemory: f.mem})
	monthly := engine.IntervalMonthly

	// WHEN: Creating a recurring expense
	_, err := eng.CreateExpense(f.ctx, alice, engine.ExpenseRequest{
		Description: "Rent",
		Amount:      dec("1000"),
		Splits:      []engine.Split{split(bob, "1000")},
		Recurrence:  &monthly,
	})

	// THEN: Neither the expense nor its splits survive
	require.Error(t, err)
	stored, err := f.eng.ListExpenses(f.ctx, engine.ByUser{UserID: alice})
	require.NoError(t, err)
	assert.Empty(t, stored)

	notes, err := f.eng.ListNotifications(f.ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, notes, "nothing is emitted for a rolled back write")
}

func TestCreateExpense_NotificationFailureIsSwallowed(t *testing.T) {
	// GIVEN: A notifier that always fails
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	notifier := &brokenNotifier{}
	eng := engine.New(f.mem, engine.Options{Notifier: notifier, Clock: func() time.Time { return testNow }})

	// WHEN: Creating an expense
	exp, err := eng.CreateExpense(f.ctx, alice, engine.ExpenseRequest{
		Description: "Coffee",
		Amount:      dec("4"),
		Splits:      []engine.Split{split(bob, "4")},
	})

	// THEN: The expense stands
	require.NoError(t, err)
	assert.Equal(t, 1, notifier.calls)

	stored, err := f.eng.ListExpenses(f.ctx, engine.ByUser{UserID: bob})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, exp.ID, stored[0].ID)
}

func TestCreateExpense_UnknownSplitUserKeepsReportsWorking(t *testing.T) {
	// GIVEN: Alice's group
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	g := f.group(t, "flat", alice, bob)

	// WHEN: A split names a user that does not exist
	_, err := f.eng.CreateExpense(f.ctx, alice, engine.ExpenseRequest{
		Description: "Dinner",
		Amount:      dec("100"),
		GroupID:     &g,
		Splits:      []engine.Split{split(alice, "50"), split("no-such-user", "50")},
	})

	// THEN: The write is refused with the missing user
	var nf *engine.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "user", nf.Kind)
	assert.Equal(t, "no-such-user", nf.ID)

	summary, err := f.eng.PersonalSummary(f.ctx, alice, "")
	require.NoError(t, err)
	assertDecimal(t, "0", summary.NetBalance)
}

func TestPersonalSummary_MissingParticipantShownAsUnknown(t *testing.T) {
	// GIVEN: A stored expense whose split user has no record
	f := newFixture(t)
	alice := f.user(t, "alice")
	require.NoError(t, f.mem.InsertExpense(f.ctx, engine.Expense{
		ID:        "legacy",
		Amount:    dec("40"),
		Currency:  engine.DefaultCurrency,
		Date:      testNow,
		Category:  engine.CategoryExpense,
		PayerID:   alice,
		Splits:    []engine.Split{split("gone", "40")},
		CreatedAt: testNow,
	}))

	// WHEN: Building Alice's summary
	summary, err := f.eng.PersonalSummary(f.ctx, alice, "")

	// THEN: The report still renders with a placeholder name
	require.NoError(t, err)
	require.Len(t, summary.Details, 1)
	assert.Equal(t, engine.UserID("gone"), summary.Details[0].PersonID)
	assert.Equal(t, engine.UnknownUserName, summary.Details[0].Name)
	assertDecimal(t, "40", summary.NetBalance)
}

func TestCreateExpense_SplitsAreNotShared(t *testing.T) {
	// GIVEN: An expense created from a caller-owned splits slice
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	g := f.group(t, "flat", alice, bob)
	splits := []engine.Split{split(alice, "30"), split(bob, "30")}
	created, err := f.eng.CreateExpense(f.ctx, alice, engine.ExpenseRequest{
		Description: "Groceries",
		Amount:      dec("60"),
		GroupID:     &g,
		Splits:      splits,
	})
	require.NoError(t, err)

	// WHEN: The caller reuses its slice and edits the returned and listed copies
	splits[0] = split(bob, "99")
	created.Splits[1].Amount = dec("1")
	listed, err := f.eng.ListGroupExpenses(f.ctx, alice, g)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	listed[0].Splits[0].UserID = "mallory"

	// THEN: The stored expense keeps its original splits
	again, err := f.eng.ListGroupExpenses(f.ctx, bob, g)
	require.NoError(t, err)
	require.Len(t, again, 1)
	require.Len(t, again[0].Splits, 2)
	assert.Equal(t, alice, again[0].Splits[0].UserID)
	assertDecimal(t, "30", again[0].Splits[0].Amount)
	assert.Equal(t, bob, again[0].Splits[1].UserID)
	assertDecimal(t, "30", again[0].Splits[1].Amount)
}
