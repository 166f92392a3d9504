/*
Package factory converts between JSON split plans and engine splits.

PURPOSE:
  Recurring templates store their split plan as JSON so it can be
  replayed later exactly as submitted. PlanFactory is the codec the
  engine uses to write and read that column, and EvenSplits builds the
  plan most clients want: the total divided evenly to the cent.

JSON SCHEMA:
  [
    {"userId": "u-alice", "amount": 50},
    {"userId": "u-bob",   "amount": 50}
  ]

  Amounts are written as JSON numbers. Quoted amounts ("50.00") are
  accepted on read as well.

DECODE RULES:
  - The plan must be a non-empty array
  - Every entry needs a userId and an amount > 0
  Anything else is an error; the scheduler turns it into a
  MalformedRecurrenceError and skips the template.

USAGE:
  f := factory.NewPlanFactory()
  plan, err := f.EncodePlan(splits)
  splits, err := f.DecodePlan(plan)

  splits := factory.EvenSplits(decimal.NewFromInt(100), []engine.UserID{"a", "b", "c"})
  // 33.34, 33.33, 33.33

SEE ALSO:
  - engine/recurrence.go: Decodes plans during sweeps
  - engine/writer.go: Encodes plans for new templates
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/splitledger/engine"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type planEntryJSON struct {
	UserID string      `json:"userId"`
	Amount json.Number `json:"amount"`
}

type planEntryIn struct {
	UserID string           `json:"userId"`
	Amount *decimal.Decimal `json:"amount"`
}

// =============================================================================
// FACTORY
// =============================================================================

// PlanFactory implements engine.PlanCodec.
type PlanFactory struct{}

func NewPlanFactory() *PlanFactory {
	return &PlanFactory{}
}

var errEmptyPlan = errors.New("split plan is empty")

func (f *PlanFactory) EncodePlan(splits []engine.Split) (string, error) {
	if len(splits) == 0 {
		return "", errEmptyPlan
	}
	entries := make([]planEntryJSON, 0, len(splits))
	for _, s := range splits {
		entries = append(entries, planEntryJSON{
			UserID: string(s.UserID),
			Amount: json.Number(s.Amount.String()),
		})
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("failed to encode split plan: %w", err)
	}
	return string(data), nil
}

func (f *PlanFactory) DecodePlan(plan string) ([]engine.Split, error) {
	var entries []planEntryIn
	if err := json.Unmarshal([]byte(plan), &entries); err != nil {
		return nil, fmt.Errorf("invalid split plan JSON: %w", err)
	}
	if len(entries) == 0 {
		return nil, errEmptyPlan
	}

	splits := make([]engine.Split, 0, len(entries))
	for i, e := range entries {
		if e.UserID == "" {
			return nil, fmt.Errorf("split %d: missing userId", i)
		}
		if e.Amount == nil || !e.Amount.IsPositive() {
			return nil, fmt.Errorf("split %d: amount must be greater than zero", i)
		}
		splits = append(splits, engine.Split{UserID: engine.UserID(e.UserID), Amount: *e.Amount})
	}
	return splits, nil
}

var _ engine.PlanCodec = (*PlanFactory)(nil)

// =============================================================================
// EVEN SPLITS
// =============================================================================

// EvenSplits divides total evenly across users to the cent. Leftover cents
// go one each to the first users, so the splits always sum to total.
func EvenSplits(total decimal.Decimal, users []engine.UserID) []engine.Split {
	if len(users) == 0 {
		return nil
	}
	cents := total.Shift(2).Truncate(0)
	n := decimal.NewFromInt(int64(len(users)))
	base := cents.Div(n).Truncate(0)
	remainder := cents.Sub(base.Mul(n)).IntPart()

	splits := make([]engine.Split, 0, len(users))
	for i, u := range users {
		share := base
		if int64(i) < remainder {
			share = share.Add(decimal.NewFromInt(1))
		}
		splits = append(splits, engine.Split{UserID: u, Amount: share.Shift(-2)})
	}
	return splits
}
