/*
store.go - Persistence interfaces for the settlement engine

PURPOSE:
  Defines the boundary between engine logic and the database. The engine
  never issues queries directly; it reads and writes through Store, and
  wraps every financial mutation in TxStore.WithTx so an expense and its
  splits persist together or not at all.

KEY INTERFACES:
  Reader:  Lookups and the tagged expense filter
  Writer:  Inserts plus the few permitted updates (template claim and
           deactivation, notification read flag)
  TxStore: Store + WithTx for atomic units of work

EXPENSE FILTER:
  ListExpenses takes an ExpenseFilter, a closed set of query shapes:

    ByGroup{GroupID}                every expense of one group
    ByUser{UserID}                  user is payer or has a split
    ByFriendPair{UserID, FriendID}  one paid and the other has a split

  The marker method is unexported so no other package can add shapes;
  implementations switch over the three cases and fail on anything else.

NOT-FOUND CONTRACT:
  Get* methods return a *NotFoundError (errors.Is ErrNotFound) when the
  row does not exist.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite via database/sql
  - engine/store/memory.go: In-memory for tests

SEE ALSO:
  - engine.go: Uses TxStore for every operation
  - writer.go: Atomic expense writes
*/
package engine

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// EXPENSE FILTER - Tagged query shapes
// =============================================================================

type ExpenseFilter interface {
	isExpenseFilter()
}

type ByGroup struct {
	GroupID GroupID
}

type ByUser struct {
	UserID UserID
}

type ByFriendPair struct {
	UserID   UserID
	FriendID UserID
}

func (ByGroup) isExpenseFilter()      {}
func (ByUser) isExpenseFilter()       {}
func (ByFriendPair) isExpenseFilter() {}

// Matches evaluates the filter against an expense in memory.
func Matches(f ExpenseFilter, e Expense) bool {
	switch f := f.(type) {
	case ByGroup:
		return e.InGroup(f.GroupID)
	case ByUser:
		_, hasSplit := e.SplitFor(f.UserID)
		return e.PayerID == f.UserID || hasSplit
	case ByFriendPair:
		_, friendSplit := e.SplitFor(f.FriendID)
		_, userSplit := e.SplitFor(f.UserID)
		return (e.PayerID == f.UserID && friendSplit) ||
			(e.PayerID == f.FriendID && userSplit)
	default:
		return false
	}
}

// UnknownFilterError is returned by stores handed a filter they cannot translate.
func UnknownFilterError(f ExpenseFilter) error {
	return fmt.Errorf("unsupported expense filter %T", f)
}

// =============================================================================
// STORE
// =============================================================================

type Reader interface {
	GetUser(ctx context.Context, id UserID) (*User, error)

	// GetUserByEmail matches case-insensitively.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	GetGroup(ctx context.Context, id GroupID) (*Group, error)
	ListGroupMembers(ctx context.Context, id GroupID) ([]UserID, error)
	IsMember(ctx context.Context, groupID GroupID, userID UserID) (bool, error)

	// ListUserGroups returns the groups the user belongs to.
	ListUserGroups(ctx context.Context, userID UserID) ([]Group, error)

	// ListExpenses returns matching expenses with splits and line items,
	// newest first (date DESC, created DESC).
	ListExpenses(ctx context.Context, filter ExpenseFilter) ([]Expense, error)

	ListFriends(ctx context.Context, userID UserID) ([]Friendship, error)
	AreFriends(ctx context.Context, userID, friendID UserID) (bool, error)

	// ListDueRecurring returns active templates with NextRun <= now, oldest first.
	ListDueRecurring(ctx context.Context, now time.Time) ([]RecurringExpense, error)
	GetRecurring(ctx context.Context, id RecurringID) (*RecurringExpense, error)

	// ListNotifications returns the newest notifications first.
	ListNotifications(ctx context.Context, userID UserID, limit int) ([]Notification, error)
}

type Writer interface {
	CreateUser(ctx context.Context, u User) error
	CreateGroup(ctx context.Context, g Group) error
	AddGroupMember(ctx context.Context, m GroupMember) error

	// InsertExpense persists the expense, its splits and its line items.
	InsertExpense(ctx context.Context, e Expense) error

	InsertRecurring(ctx context.Context, r RecurringExpense) error

	// ClaimRecurring moves NextRun from prev to next only if it still equals
	// prev. Returns ErrConcurrentModification otherwise.
	ClaimRecurring(ctx context.Context, id RecurringID, prev, next time.Time) error

	SetRecurringActive(ctx context.Context, id RecurringID, active bool) error

	// AddFriendship writes one directed edge. Callers add both directions
	// inside one WithTx.
	AddFriendship(ctx context.Context, f Friendship) error

	InsertNotification(ctx context.Context, n Notification) error

	// MarkNotificationRead flags the notification only if userID owns it.
	MarkNotificationRead(ctx context.Context, userID UserID, id NotificationID) error
}

type Store interface {
	Reader
	Writer
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
