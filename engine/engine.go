/*
engine.go - Engine facade over the store and the projections

PURPOSE:
  Engine is what application handlers call. It owns the TxStore, the
  split-plan codec and the notifier, enforces group membership on writes,
  and feeds store reads into the pure projections (balance.go,
  simplify.go, friends.go, ledger.go).

OPERATIONS:
  Writes:  CreateExpense, ProcessDueRecurring, DeactivateRecurring,
           AddFriend, CreateGroup, AddGroupMember, RegisterUser,
           MarkNotificationRead
  Reads:   ListExpenses, ListGroupExpenses, GroupBalances, PersonalSummary, FriendBalances,
           Ledger, Analytics, ListFriends, ListNotifications

NOTIFICATIONS:
  Notifications are queued while a write runs and emitted only after the
  transaction commits. Emission errors are logged and dropped.

USAGE:
  eng := engine.New(store, engine.Options{
      Codec:  factory.NewPlanFactory(),
      Logger: slog.Default(),
  })
  exp, err := eng.CreateExpense(ctx, actor, req)

SEE ALSO:
  - writer.go: CreateExpense
  - recurrence.go: ProcessDueRecurring
  - social.go: Friends, groups, notifications
*/
package engine

import (
	"context"
	"log/slog"
	"time"
)

// PlanCodec serializes the split plan stored on recurring templates.
type PlanCodec interface {
	EncodePlan(splits []Split) (string, error)
	DecodePlan(plan string) ([]Split, error)
}

// Notifier delivers notifications. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// StoreNotifier persists notifications as rows for clients to poll.
type StoreNotifier struct {
	Store Writer
}

func (s StoreNotifier) Notify(ctx context.Context, n Notification) error {
	return s.Store.InsertNotification(ctx, n)
}

type Options struct {
	Codec    PlanCodec
	Notifier Notifier      // defaults to StoreNotifier over the engine's store
	Logger   *slog.Logger  // defaults to slog.Default()
	Clock    func() time.Time

	// DefaultCurrency applies to expenses outside any group.
	DefaultCurrency Currency
}

type Engine struct {
	store    TxStore
	codec    PlanCodec
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
	currency Currency
}

func New(store TxStore, opts Options) *Engine {
	e := &Engine{
		store:    store,
		codec:    opts.Codec,
		notifier: opts.Notifier,
		log:      opts.Logger,
		now:      opts.Clock,
		currency: opts.DefaultCurrency,
	}
	if e.notifier == nil {
		e.notifier = StoreNotifier{Store: store}
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.currency == "" {
		e.currency = DefaultCurrency
	}
	return e
}

// DefaultCurrency is the reporting currency used when callers pass none.
func (e *Engine) DefaultCurrency() Currency {
	return e.currency
}

func (e *Engine) reportingCurrency(c Currency) Currency {
	if c == "" {
		return e.currency
	}
	return c
}

// notify emits queued notifications after commit. Failures never reach the caller.
func (e *Engine) notify(ctx context.Context, pending []Notification) {
	for _, n := range pending {
		if err := e.notifier.Notify(ctx, n); err != nil {
			e.log.WarnContext(ctx, "notification dropped",
				"error", &SideEffectError{Op: "notify " + string(n.Type), Err: err},
				"user_id", n.UserID)
		}
	}
}

func (e *Engine) newNotification(user UserID, typ NotificationType, msg string) Notification {
	return Notification{
		ID:        NotificationID(NewID()),
		UserID:    user,
		Type:      typ,
		Message:   msg,
		CreatedAt: e.now().UTC(),
	}
}

// requireMember returns an AuthorizationError unless user belongs to the group.
func requireMember(ctx context.Context, r Reader, group GroupID, user UserID, role string) error {
	ok, err := r.IsMember(ctx, group, user)
	if err != nil {
		return err
	}
	if !ok {
		return &AuthorizationError{UserID: user, GroupID: group, Role: role}
	}
	return nil
}

// ListExpenses returns expenses matching one of the tagged filters.
func (e *Engine) ListExpenses(ctx context.Context, filter ExpenseFilter) ([]Expense, error) {
	return e.store.ListExpenses(ctx, filter)
}

// ListGroupExpenses lists a group's expenses for one of its members.
func (e *Engine) ListGroupExpenses(ctx context.Context, actor UserID, groupID GroupID) ([]Expense, error) {
	if _, err := e.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	if err := requireMember(ctx, e.store, groupID, actor, "actor"); err != nil {
		return nil, err
	}
	return e.store.ListExpenses(ctx, ByGroup{GroupID: groupID})
}
