/*
writer.go - Expense Writer

PURPOSE:
  The only user-driven mutation path for financial records. A request is
  validated, checked against group membership, then written as one unit:
  expense row, line items, splits and (optionally) a recurring template.
  Split participants other than the payer are notified after commit.

FAILURE SEMANTICS:
  Validation, authorization and not-found errors return before any write.
  Any store error inside the transaction rolls the whole unit back.
  Notification errors are logged and swallowed.

SEE ALSO:
  - validate.go: ValidateSplits
  - recurrence.go: Replays templates created here
*/
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ExpenseRequest is a proposed expense from the acting user.
type ExpenseRequest struct {
	Description string
	Amount      decimal.Decimal
	Splits      []Split
	PayerID     UserID    // defaults to the acting user
	GroupID     *GroupID  // nil for a direct expense
	Date        time.Time // defaults to now
	Category    string    // defaults to EXPENSE
	LineItems   []LineItem
	Recurrence  *Interval
}

// CreateExpense validates and atomically persists an expense.
func (e *Engine) CreateExpense(ctx context.Context, actor UserID, req ExpenseRequest) (*Expense, error) {
	if strings.TrimSpace(req.Description) == "" {
		return nil, &ValidationError{Field: "description", Message: "description is required"}
	}
	if err := ValidateSplits(req.Amount, req.Splits); err != nil {
		return nil, err
	}
	if req.Recurrence != nil && !req.Recurrence.Valid() {
		return nil, &ValidationError{Field: "recurrence", Message: fmt.Sprintf("unknown interval %q", *req.Recurrence)}
	}

	payer := req.PayerID
	if payer == "" {
		payer = actor
	}

	currency := e.currency
	if req.GroupID != nil {
		group, err := e.store.GetGroup(ctx, *req.GroupID)
		if err != nil {
			return nil, err
		}
		currency = group.Currency
		if err := requireMember(ctx, e.store, group.ID, actor, "actor"); err != nil {
			return nil, err
		}
		if payer != actor {
			if err := requireMember(ctx, e.store, group.ID, payer, "payer"); err != nil {
				return nil, err
			}
		}
	}

	payerUser, err := e.store.GetUser(ctx, payer)
	if err != nil {
		return nil, err
	}
	if err := e.requireSplitUsers(ctx, payer, req.Splits); err != nil {
		return nil, err
	}

	now := e.now().UTC()
	exp := Expense{
		ID:          ExpenseID(NewID()),
		Description: strings.TrimSpace(req.Description),
		Amount:      req.Amount,
		Currency:    currency,
		Date:        req.Date,
		Category:    req.Category,
		PayerID:     payer,
		GroupID:     req.GroupID,
		Splits:      append([]Split{}, req.Splits...),
		LineItems:   normalizeLineItems(req.LineItems),
		CreatedAt:   now,
	}
	if exp.Date.IsZero() {
		exp.Date = now
	}
	if exp.Category == "" {
		exp.Category = CategoryExpense
	}

	var template *RecurringExpense
	if req.Recurrence != nil {
		template, err = e.newTemplate(exp, *req.Recurrence)
		if err != nil {
			return nil, err
		}
	}

	err = e.store.WithTx(ctx, func(tx Store) error {
		if err := tx.InsertExpense(ctx, exp); err != nil {
			return fmt.Errorf("insert expense: %w", err)
		}
		if template != nil {
			if err := tx.InsertRecurring(ctx, *template); err != nil {
				return fmt.Errorf("insert recurring expense: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.InfoContext(ctx, "expense created",
		"expense_id", exp.ID, "payer_id", exp.PayerID, "amount", exp.Total().String(),
		"recurring", template != nil)

	e.notify(ctx, e.expenseNotifications(exp, payerUser.DisplayName()))
	return &exp, nil
}

// requireSplitUsers resolves every participant so an unknown ID fails the
// write instead of every later report that touches the expense.
func (e *Engine) requireSplitUsers(ctx context.Context, payer UserID, splits []Split) error {
	seen := map[UserID]bool{payer: true}
	for _, s := range splits {
		if seen[s.UserID] {
			continue
		}
		seen[s.UserID] = true
		if _, err := e.store.GetUser(ctx, s.UserID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) newTemplate(exp Expense, interval Interval) (*RecurringExpense, error) {
	if e.codec == nil {
		return nil, fmt.Errorf("recurring expenses need a plan codec")
	}
	plan, err := e.codec.EncodePlan(exp.Splits)
	if err != nil {
		return nil, fmt.Errorf("encode split plan: %w", err)
	}
	next, err := NextRun(interval, exp.Date)
	if err != nil {
		return nil, err
	}
	return &RecurringExpense{
		ID:          RecurringID(NewID()),
		Description: exp.Description,
		Amount:      exp.Amount,
		Currency:    exp.Currency,
		Category:    exp.Category,
		Interval:    interval,
		PayerID:     exp.PayerID,
		GroupID:     exp.GroupID,
		SplitPlan:   plan,
		NextRun:     next,
		IsActive:    true,
		CreatedAt:   exp.CreatedAt,
	}, nil
}

// expenseNotifications builds one notification per split user other than the payer.
func (e *Engine) expenseNotifications(exp Expense, payerName string) []Notification {
	var out []Notification
	seen := make(map[UserID]bool)
	for _, s := range exp.Splits {
		if s.UserID == exp.PayerID || seen[s.UserID] {
			continue
		}
		seen[s.UserID] = true
		msg := fmt.Sprintf("%s added %q: you owe %s",
			payerName, exp.Description, NewMoney(s.Amount, exp.Currency).Round2())
		out = append(out, e.newNotification(s.UserID, NotifyExpenseAdded, msg))
	}
	return out
}

func normalizeLineItems(items []LineItem) []LineItem {
	out := make([]LineItem, 0, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			it.Quantity = 1
		}
		out = append(out, it)
	}
	return out
}
