/*
simplify.go - Debt simplification

PURPOSE:
  Reduces a group balance vector to a short list of directed payments.
  Greedy two-cursor matching: the largest debtor pays the largest
  creditor, the settled side drops out, repeat. Not guaranteed minimal,
  but never more than (debtors + creditors - 1) payments.

ALGORITHM:
  1. Debtors: balance < -0.01, sorted ascending (most negative first).
     Creditors: balance > 0.01, sorted descending.
  2. amount = min(|debtor|, creditor). Emit {from, to, round2(amount)}
     when the rounded amount is positive.
  3. Apply the unrounded amount to both running balances.
  4. Advance each cursor whose party is within 0.01 of zero; both may
     advance in the same step.
  5. Stop when either list runs out. Residue below 0.01 is discarded.

SEE ALSO:
  - balance.go: GroupBalances produces the input
*/
package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Debt is a payment instruction: From pays To Amount.
type Debt struct {
	From   UserID
	To     UserID
	Amount decimal.Decimal
}

type party struct {
	id      UserID
	balance decimal.Decimal
}

// SimplifyDebts turns net balances (positive = is owed) into payments.
// Equal balances are ordered by user ID so output is deterministic.
func SimplifyDebts(balances map[UserID]decimal.Decimal) []Debt {
	var debtors, creditors []party
	negEpsilon := Epsilon.Neg()
	for id, b := range balances {
		switch {
		case b.LessThan(negEpsilon):
			debtors = append(debtors, party{id: id, balance: b})
		case b.GreaterThan(Epsilon):
			creditors = append(creditors, party{id: id, balance: b})
		}
	}

	sort.Slice(debtors, func(i, j int) bool {
		if !debtors[i].balance.Equal(debtors[j].balance) {
			return debtors[i].balance.LessThan(debtors[j].balance)
		}
		return debtors[i].id < debtors[j].id
	})
	sort.Slice(creditors, func(i, j int) bool {
		if !creditors[i].balance.Equal(creditors[j].balance) {
			return creditors[i].balance.GreaterThan(creditors[j].balance)
		}
		return creditors[i].id < creditors[j].id
	})

	debts := []Debt{}
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		debtor, creditor := &debtors[i], &creditors[j]

		amount := decimal.Min(debtor.balance.Abs(), creditor.balance)
		if rounded := Round2(amount); rounded.IsPositive() {
			debts = append(debts, Debt{From: debtor.id, To: creditor.id, Amount: rounded})
		}

		debtor.balance = debtor.balance.Add(amount)
		creditor.balance = creditor.balance.Sub(amount)

		if debtor.balance.Abs().LessThan(Epsilon) {
			i++
		}
		if creditor.balance.LessThan(Epsilon) {
			j++
		}
	}
	return debts
}

// Apply replays debts onto a copy of balances: debtor += amount, creditor -= amount.
func Apply(balances map[UserID]decimal.Decimal, debts []Debt) map[UserID]decimal.Decimal {
	out := make(map[UserID]decimal.Decimal, len(balances))
	for id, b := range balances {
		out[id] = b
	}
	for _, d := range debts {
		out[d.From] = out[d.From].Add(d.Amount)
		out[d.To] = out[d.To].Sub(d.Amount)
	}
	return out
}
