/*
ledger.go - Pairwise ledger with running balance

PURPOSE:
  Replays the expenses shared between the user and one counterparty in
  date order and accumulates a running balance, like a bank statement
  between two parties.

COUNTERPARTIES:
  FriendCounterparty: expenses where one of the pair paid and the other
                      has a split. userAmount = +friend's split when the
                      user paid, -user's split when the friend paid.
  GroupCounterparty:  expenses of one group touching the user.
                      userAmount = paid - own split.

  Positive userAmount means the counterparty owes the user more.

ORDER:
  Date ascending, then CreatedAt, then ID. Callers that display newest
  first reverse the finished slice; running balances stay chronological.

SEE ALSO:
  - friends.go: Same rule without history
  - api/handlers.go: GetTransactions
*/
package engine

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COUNTERPARTY - Tagged
// =============================================================================

type Counterparty interface {
	isCounterparty()
}

type FriendCounterparty struct {
	FriendID UserID
}

type GroupCounterparty struct {
	GroupID GroupID
}

func (FriendCounterparty) isCounterparty() {}
func (GroupCounterparty) isCounterparty()  {}

// =============================================================================
// LEDGER
// =============================================================================

type LedgerFilter struct {
	Range    DateRange
	Category string
	GroupID  *GroupID // only with FriendCounterparty: restrict to one group
	Currency Currency
}

type LedgerEntry struct {
	Expense        Expense
	UserAmount     decimal.Decimal
	RunningBalance decimal.Decimal
}

type LedgerSummary struct {
	TotalExpenses int
	TotalAmount   decimal.Decimal
	NetBalance    decimal.Decimal
}

type Ledger struct {
	Entries []LedgerEntry
	Summary LedgerSummary
}

// BuildLedger computes the running balance between user and counterparty.
// Expenses that do not involve both sides are ignored.
func BuildLedger(user UserID, cp Counterparty, expenses []Expense, filter LedgerFilter) *Ledger {
	selected := make([]Expense, 0, len(expenses))
	for _, exp := range expenses {
		if !filter.Range.Contains(exp.Date) {
			continue
		}
		if filter.Category != "" && exp.Category != filter.Category {
			continue
		}
		if filter.GroupID != nil && !exp.InGroup(*filter.GroupID) {
			continue
		}
		if filter.Currency != "" && exp.Currency != filter.Currency {
			continue
		}
		if _, ok := userAmount(user, cp, exp); ok {
			selected = append(selected, exp)
		}
	}

	sort.SliceStable(selected, func(i, j int) bool {
		a, b := selected[i], selected[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	ledger := &Ledger{
		Entries: make([]LedgerEntry, 0, len(selected)),
		Summary: LedgerSummary{TotalAmount: decimal.Zero, NetBalance: decimal.Zero},
	}
	running := decimal.Zero
	for _, exp := range selected {
		amt, _ := userAmount(user, cp, exp)
		running = running.Add(amt)
		ledger.Entries = append(ledger.Entries, LedgerEntry{
			Expense:        exp,
			UserAmount:     amt,
			RunningBalance: running,
		})
		ledger.Summary.TotalAmount = ledger.Summary.TotalAmount.Add(exp.Amount)
	}
	ledger.Summary.TotalExpenses = len(ledger.Entries)
	ledger.Summary.NetBalance = running
	return ledger
}

// userAmount is the signed effect of exp on the user's position against cp.
func userAmount(user UserID, cp Counterparty, exp Expense) (decimal.Decimal, bool) {
	switch cp := cp.(type) {
	case FriendCounterparty:
		if exp.PayerID == user {
			share, ok := exp.SplitFor(cp.FriendID)
			return share, ok
		}
		if exp.PayerID == cp.FriendID {
			share, ok := exp.SplitFor(user)
			return share.Neg(), ok
		}
		return decimal.Zero, false
	case GroupCounterparty:
		if !exp.InGroup(cp.GroupID) {
			return decimal.Zero, false
		}
		share, hasSplit := exp.SplitFor(user)
		if exp.PayerID == user {
			return exp.Amount.Sub(share), true
		}
		return share.Neg(), hasSplit
	default:
		return decimal.Zero, false
	}
}

// Ledger loads the expenses for the counterparty and builds the ledger.
func (e *Engine) Ledger(ctx context.Context, user UserID, cp Counterparty, filter LedgerFilter) (*Ledger, error) {
	var (
		expenses []Expense
		err      error
	)
	switch cp := cp.(type) {
	case FriendCounterparty:
		if _, err := e.store.GetUser(ctx, cp.FriendID); err != nil {
			return nil, err
		}
		filter.Currency = e.reportingCurrency(filter.Currency)
		expenses, err = e.store.ListExpenses(ctx, ByFriendPair{UserID: user, FriendID: cp.FriendID})
	case GroupCounterparty:
		if err := requireMember(ctx, e.store, cp.GroupID, user, "actor"); err != nil {
			return nil, err
		}
		filter.GroupID = nil
		filter.Currency = ""
		expenses, err = e.store.ListExpenses(ctx, ByGroup{GroupID: cp.GroupID})
	default:
		return nil, &ValidationError{Field: "counterparty", Message: "friend or group required"}
	}
	if err != nil {
		return nil, err
	}
	return BuildLedger(user, cp, expenses, filter), nil
}
