/*
balance.go - Balance aggregation

PURPOSE:
  Derives net positions from expenses. Nothing here touches the store;
  the same expense slice always yields the same result.

TWO MODES:
  GroupBalances:    member -> net, positive = the member is owed.
                    Payer += amount, each splitter -= split. Every dollar
                    credited is debited somewhere, so the sum is exactly
                    zero for any input (decimal arithmetic, no drift).
  PersonalBalances: counterparty -> net from one user's viewpoint,
                    positive = the counterparty owes the user, broken
                    down by group with a "direct" bucket for expenses
                    outside any group.

SIGN CONVENTION:
  Both modes read "positive = is owed" from the subject's side: in group
  mode the subject is each member, in personal mode it is the user
  looking at their counterparties. Presentation code that wants the
  opposite view negates once at the boundary.

SEE ALSO:
  - simplify.go: Turns GroupBalances output into payments
  - friends.go: Same pairwise rule restricted to friends
*/
package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// DirectBucket keys personal breakdown entries for expenses outside any group.
const DirectBucket GroupID = "direct"

// DirectGroupName is shown for the direct bucket.
const DirectGroupName = "Direct"

// UnknownUserName stands in for a participant whose user record is gone.
const UnknownUserName = "Unknown"

// =============================================================================
// GROUP MODE
// =============================================================================

// GroupBalances computes each member's net position over the expenses.
// Members start at zero. Participants missing from the roster still get
// an entry so the balances always sum to zero.
func GroupBalances(members []UserID, expenses []Expense) map[UserID]decimal.Decimal {
	balances := make(map[UserID]decimal.Decimal, len(members))
	for _, m := range members {
		balances[m] = decimal.Zero
	}
	for _, exp := range expenses {
		balances[exp.PayerID] = balances[exp.PayerID].Add(exp.Amount)
		for _, s := range exp.Splits {
			balances[s.UserID] = balances[s.UserID].Sub(s.Amount)
		}
	}
	return balances
}

// Sum adds every balance. Zero for any output of GroupBalances.
func Sum(balances map[UserID]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range balances {
		total = total.Add(v)
	}
	return total
}

// =============================================================================
// PERSONAL MODE
// =============================================================================

// BalanceDetail is one (counterparty, group) entry of a personal summary.
type BalanceDetail struct {
	PersonID  UserID
	Name      string
	Email     string
	Amount    decimal.Decimal // positive = PersonID owes the user
	GroupID   GroupID
	GroupName string
}

type PersonalSummary struct {
	Currency   Currency
	TotalOwed  decimal.Decimal // others owe the user
	TotalOwe   decimal.Decimal // the user owes others
	NetBalance decimal.Decimal
	Details    []BalanceDetail
}

type personBalance struct {
	total   decimal.Decimal
	byGroup map[GroupID]decimal.Decimal
}

// PersonalBalances builds the cross-group summary for user.
//
// For each expense the user paid, every other splitter owes the user
// their split. For each expense someone else paid where the user has a
// split, the user owes the payer that split. Counterparties whose total
// is within Epsilon of zero are dropped.
func PersonalBalances(user UserID, expenses []Expense, groups map[GroupID]Group, people map[UserID]User, currency Currency) *PersonalSummary {
	persons := make(map[UserID]*personBalance)
	add := func(person UserID, bucket GroupID, amount decimal.Decimal) {
		pb, ok := persons[person]
		if !ok {
			pb = &personBalance{total: decimal.Zero, byGroup: make(map[GroupID]decimal.Decimal)}
			persons[person] = pb
		}
		pb.total = pb.total.Add(amount)
		pb.byGroup[bucket] = pb.byGroup[bucket].Add(amount)
	}

	for _, exp := range expenses {
		bucket := DirectBucket
		if exp.GroupID != nil {
			bucket = *exp.GroupID
		}
		if exp.PayerID == user {
			for _, s := range exp.Splits {
				if s.UserID != user {
					add(s.UserID, bucket, s.Amount)
				}
			}
			continue
		}
		if share, ok := exp.SplitFor(user); ok {
			add(exp.PayerID, bucket, share.Neg())
		}
	}

	summary := &PersonalSummary{
		Currency:   currency,
		TotalOwed:  decimal.Zero,
		TotalOwe:   decimal.Zero,
		NetBalance: decimal.Zero,
		Details:    []BalanceDetail{},
	}

	for id, pb := range persons {
		if !pb.total.Abs().GreaterThan(Epsilon) {
			continue
		}
		if pb.total.IsPositive() {
			summary.TotalOwed = summary.TotalOwed.Add(pb.total)
		} else {
			summary.TotalOwe = summary.TotalOwe.Add(pb.total.Abs())
		}

		person := people[id]
		for bucket, amount := range pb.byGroup {
			if !amount.Abs().GreaterThan(Epsilon) {
				continue
			}
			name := DirectGroupName
			if bucket != DirectBucket {
				name = groups[bucket].Name
			}
			summary.Details = append(summary.Details, BalanceDetail{
				PersonID:  id,
				Name:      person.DisplayName(),
				Email:     person.Email,
				Amount:    Round2(amount),
				GroupID:   bucket,
				GroupName: name,
			})
		}
	}

	summary.TotalOwed = Round2(summary.TotalOwed)
	summary.TotalOwe = Round2(summary.TotalOwe)
	summary.NetBalance = summary.TotalOwed.Sub(summary.TotalOwe)

	sort.SliceStable(summary.Details, func(i, j int) bool {
		a, b := summary.Details[i], summary.Details[j]
		if !a.Amount.Equal(b.Amount) {
			return a.Amount.LessThan(b.Amount)
		}
		if a.PersonID != b.PersonID {
			return a.PersonID < b.PersonID
		}
		return a.GroupID < b.GroupID
	})
	return summary
}

// SettleUpDirection labels a personal-mode amount for display.
func SettleUpDirection(amount decimal.Decimal) string {
	switch {
	case Settled(amount):
		return "settled"
	case amount.IsPositive():
		return "owes_you"
	default:
		return "you_owe"
	}
}
