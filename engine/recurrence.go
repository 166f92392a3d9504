/*
recurrence.go - Recurrence sweep

PURPOSE:
  Materializes due recurring templates into concrete expenses. Each
  template is handled in its own transaction so one bad template never
  aborts the sweep.

PER TEMPLATE:
  1. Decode the stored split plan. Failure -> MalformedRecurrenceError,
     logged, template skipped.
  2. In one transaction:
     a. Claim: move NextRun from its previous value to previous+interval,
        conditional on NextRun being unchanged since it was read. A lost
        race returns ErrConcurrentModification and the template is skipped,
        so two overlapping sweeps cannot both spawn the same occurrence.
     b. Insert the expense dated "now" with the template's fields and splits.
  3. After commit, notify split users other than the payer.

DRIFT:
  NextRun advances from the previous NextRun, never from "now", so late
  sweeps do not shift the schedule. A template that is several intervals
  behind catches up one occurrence per sweep.

SEE ALSO:
  - api/scheduler.go: Ticker and distributed lock around sweeps
  - time.go: NextRun
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type CreatedExpense struct {
	TemplateID RecurringID
	ExpenseID  ExpenseID
}

type SkippedTemplate struct {
	TemplateID RecurringID
	Reason     string
}

type RecurrenceResult struct {
	Processed int
	Created   []CreatedExpense
	Skipped   []SkippedTemplate
}

// ProcessDueRecurring runs one sweep over templates due at now.
func (e *Engine) ProcessDueRecurring(ctx context.Context, now time.Time) (*RecurrenceResult, error) {
	if e.codec == nil {
		return nil, fmt.Errorf("recurring expenses need a plan codec")
	}

	due, err := e.store.ListDueRecurring(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list due recurring expenses: %w", err)
	}

	result := &RecurrenceResult{Created: []CreatedExpense{}, Skipped: []SkippedTemplate{}}
	for _, tmpl := range due {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		exp, err := e.processTemplate(ctx, tmpl, now)
		if err != nil {
			e.log.WarnContext(ctx, "recurring expense skipped",
				"template_id", tmpl.ID, "error", err)
			result.Skipped = append(result.Skipped, SkippedTemplate{TemplateID: tmpl.ID, Reason: err.Error()})
			continue
		}

		result.Processed++
		result.Created = append(result.Created, CreatedExpense{TemplateID: tmpl.ID, ExpenseID: exp.ID})
		e.notify(ctx, e.expenseNotifications(*exp, e.payerName(ctx, exp.PayerID)))
	}

	if result.Processed > 0 || len(result.Skipped) > 0 {
		e.log.InfoContext(ctx, "recurring sweep finished",
			"processed", result.Processed, "skipped", len(result.Skipped))
	}
	return result, nil
}

func (e *Engine) processTemplate(ctx context.Context, tmpl RecurringExpense, now time.Time) (*Expense, error) {
	splits, err := e.codec.DecodePlan(tmpl.SplitPlan)
	if err != nil {
		return nil, &MalformedRecurrenceError{TemplateID: tmpl.ID, Err: err}
	}
	next, err := NextRun(tmpl.Interval, tmpl.NextRun)
	if err != nil {
		return nil, &MalformedRecurrenceError{TemplateID: tmpl.ID, Err: err}
	}

	category := tmpl.Category
	if category == "" {
		category = CategoryExpense
	}
	exp := Expense{
		ID:          ExpenseID(NewID()),
		Description: tmpl.Description,
		Amount:      tmpl.Amount,
		Currency:    tmpl.Currency,
		Date:        now.UTC(),
		Category:    category,
		PayerID:     tmpl.PayerID,
		GroupID:     tmpl.GroupID,
		Splits:      splits,
		LineItems:   []LineItem{},
		CreatedAt:   e.now().UTC(),
	}

	err = e.store.WithTx(ctx, func(tx Store) error {
		if err := tx.ClaimRecurring(ctx, tmpl.ID, tmpl.NextRun, next); err != nil {
			return err
		}
		return tx.InsertExpense(ctx, exp)
	})
	if err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			return nil, fmt.Errorf("recurring expense %s already claimed: %w", tmpl.ID, err)
		}
		return nil, fmt.Errorf("materialize recurring expense %s: %w", tmpl.ID, err)
	}
	return &exp, nil
}

func (e *Engine) payerName(ctx context.Context, id UserID) string {
	u, err := e.store.GetUser(ctx, id)
	if err != nil {
		return "Someone"
	}
	return u.DisplayName()
}

// DeactivateRecurring stops a template. Only its payer may do this.
func (e *Engine) DeactivateRecurring(ctx context.Context, actor UserID, id RecurringID) error {
	tmpl, err := e.store.GetRecurring(ctx, id)
	if err != nil {
		return err
	}
	if tmpl.PayerID != actor {
		return notFound("recurring expense", id)
	}
	return e.store.SetRecurringActive(ctx, id, false)
}
