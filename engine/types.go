/*
Package engine provides the balance and settlement engine for shared expenses.

PURPOSE:
  Turns a stream of expense records (who paid, who owes which share) into
  per-member net positions, short lists of settling payments, pairwise
  running ledgers and recurring expenses. Everything outside the engine
  (HTTP, SQL, Redis) talks to it through the Store interfaces and the
  Engine facade.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: an amount with its currency code
  - Expense / Split: the only financial records; balances are derived
  - RecurringExpense: a template that spawns expenses on a schedule
  - Typed IDs: UserID, GroupID, ExpenseID, ...

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, rounding only for display
  2. Derivation: no stored balances, every projection replays expenses
  3. Type Safety: distinct ID types so a GroupID never lands in a UserID slot

USAGE:
  exp := engine.Expense{
      Description: "Dinner",
      Amount:      decimal.NewFromInt(100),
      PayerID:     "alice",
      Splits: []engine.Split{
          {UserID: "alice", Amount: decimal.NewFromInt(50)},
          {UserID: "bob", Amount: decimal.NewFromInt(50)},
      },
  }

SEE ALSO:
  - balance.go: Group and personal aggregation
  - simplify.go: Debt simplification
  - store.go: Persistence interfaces
*/
package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Amount with currency
// =============================================================================

type Currency string

const DefaultCurrency Currency = "USD"

// Epsilon is the tolerance below which an amount counts as settled.
var Epsilon = decimal.NewFromFloat(0.01)

type Money struct {
	Amount   decimal.Decimal
	Currency Currency
}

func NewMoney(amount decimal.Decimal, currency Currency) Money {
	return Money{Amount: amount, Currency: currency}
}

// Add sums two amounts of the same currency. Mixed currencies are never summed.
func (m Money) Add(b Money) (Money, error) {
	if m.Currency != b.Currency {
		return Money{}, &CurrencyMismatchError{Want: m.Currency, Got: b.Currency}
	}
	return Money{Amount: m.Amount.Add(b.Amount), Currency: m.Currency}, nil
}

func (m Money) Round2() Money  { return Money{Amount: m.Amount.Round(2), Currency: m.Currency} }
func (m Money) String() string { return m.Amount.StringFixed(2) + " " + string(m.Currency) }

// Settled reports whether v is within Epsilon of zero.
func Settled(v decimal.Decimal) bool {
	return v.Abs().LessThan(Epsilon)
}

// Round2 rounds to cents for display. Accumulation always happens unrounded.
func Round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type GroupID string
type ExpenseID string
type RecurringID string
type NotificationID string

// NewID returns a random identifier for any of the typed IDs.
func NewID() string {
	return uuid.NewString()
}

// =============================================================================
// PEOPLE AND GROUPS
// =============================================================================

type User struct {
	ID        UserID
	Name      string
	Email     string
	CreatedAt time.Time
}

// DisplayName falls back to the email when no name was given.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

type Group struct {
	ID        GroupID
	Name      string
	Currency  Currency
	CreatedBy UserID
	CreatedAt time.Time
}

type GroupMember struct {
	GroupID  GroupID
	UserID   UserID
	JoinedAt time.Time
}

type FriendshipStatus string

const FriendshipAccepted FriendshipStatus = "ACCEPTED"

// Friendship is one directed edge. Friends always exist as a pair of edges.
type Friendship struct {
	UserID    UserID
	FriendID  UserID
	Status    FriendshipStatus
	CreatedAt time.Time
}

// =============================================================================
// EXPENSES
// =============================================================================

const (
	CategoryExpense    = "EXPENSE"
	CategorySettlement = "SETTLEMENT"
)

type Split struct {
	UserID UserID
	Amount decimal.Decimal
}

type LineItem struct {
	Name     string
	Price    decimal.Decimal
	Quantity int
}

type Expense struct {
	ID          ExpenseID
	Description string
	Amount      decimal.Decimal
	Currency    Currency
	Date        time.Time
	Category    string
	PayerID     UserID
	GroupID     *GroupID // nil for direct expenses between friends
	Splits      []Split
	LineItems   []LineItem
	CreatedAt   time.Time
}

func (e Expense) Total() Money {
	return Money{Amount: e.Amount, Currency: e.Currency}
}

func (e Expense) IsSettlement() bool {
	return e.Category == CategorySettlement
}

// SplitFor returns the share owed by user and whether the user has one.
func (e Expense) SplitFor(user UserID) (decimal.Decimal, bool) {
	found := false
	total := decimal.Zero
	for _, s := range e.Splits {
		if s.UserID == user {
			total = total.Add(s.Amount)
			found = true
		}
	}
	return total, found
}

// InGroup reports whether the expense belongs to the given group.
func (e Expense) InGroup(id GroupID) bool {
	return e.GroupID != nil && *e.GroupID == id
}

// =============================================================================
// RECURRING TEMPLATES
// =============================================================================

type Interval string

const (
	IntervalWeekly  Interval = "WEEKLY"
	IntervalMonthly Interval = "MONTHLY"
)

func (i Interval) Valid() bool {
	return i == IntervalWeekly || i == IntervalMonthly
}

// RecurringExpense spawns a concrete Expense each time NextRun passes.
// SplitPlan holds the splits exactly as they were submitted.
type RecurringExpense struct {
	ID          RecurringID
	Description string
	Amount      decimal.Decimal
	Currency    Currency
	Category    string
	Interval    Interval
	PayerID     UserID
	GroupID     *GroupID
	SplitPlan   string
	NextRun     time.Time
	IsActive    bool
	CreatedAt   time.Time
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

type NotificationType string

const (
	NotifyExpenseAdded NotificationType = "EXPENSE_ADDED"
	NotifyFriendAdd    NotificationType = "FRIEND_ADD"
	NotifyGroupAdd     NotificationType = "GROUP_ADD"
)

type Notification struct {
	ID        NotificationID
	UserID    UserID
	Type      NotificationType
	Message   string
	IsRead    bool
	CreatedAt time.Time
}
