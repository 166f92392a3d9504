package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidateSplits checks a proposed expense before anything is written.
//
// The total must be positive, every split needs a user and a positive
// amount, and the splits must sum to the total within Epsilon. Group
// membership of split participants is not checked here or by the writer:
// only the acting user and an explicit payer are checked against the group.
func ValidateSplits(total decimal.Decimal, splits []Split) error {
	if !total.IsPositive() {
		return &ValidationError{Field: "amount", Message: "amount must be greater than zero"}
	}
	if len(splits) == 0 {
		return &ValidationError{Field: "splits", Message: "at least one split is required"}
	}

	sum := decimal.Zero
	for i, s := range splits {
		if s.UserID == "" {
			return &ValidationError{Field: "splits", Message: splitMessage(i, "missing userId")}
		}
		if !s.Amount.IsPositive() {
			return &ValidationError{Field: "splits", Message: splitMessage(i, "amount must be greater than zero")}
		}
		sum = sum.Add(s.Amount)
	}

	if sum.Sub(total).Abs().GreaterThan(Epsilon) {
		return &SplitMismatchError{Total: total, Sum: sum}
	}
	return nil
}

func splitMessage(i int, msg string) string {
	return fmt.Sprintf("split %d: %s", i, msg)
}
