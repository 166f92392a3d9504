package engine

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// FriendBalance is the net between the user and one friend.
// Positive = the friend owes the user.
type FriendBalance struct {
	Friend  User
	Balance decimal.Decimal
}

// FriendBalances nets every expense between user and each friend,
// regardless of group. Friends with nothing shared get zero.
func FriendBalances(user UserID, friends []UserID, expenses []Expense) map[UserID]decimal.Decimal {
	out := make(map[UserID]decimal.Decimal, len(friends))
	isFriend := make(map[UserID]bool, len(friends))
	for _, f := range friends {
		out[f] = decimal.Zero
		isFriend[f] = true
	}

	for _, exp := range expenses {
		if exp.PayerID == user {
			for _, s := range exp.Splits {
				if isFriend[s.UserID] {
					out[s.UserID] = out[s.UserID].Add(s.Amount)
				}
			}
			continue
		}
		if !isFriend[exp.PayerID] {
			continue
		}
		if share, ok := exp.SplitFor(user); ok {
			out[exp.PayerID] = out[exp.PayerID].Sub(share)
		}
	}

	for id, b := range out {
		out[id] = Round2(b)
	}
	return out
}

// FriendBalances loads the user's friends and expenses once and nets them
// in the reporting currency.
func (e *Engine) FriendBalances(ctx context.Context, user UserID, currency Currency) ([]FriendBalance, error) {
	currency = e.reportingCurrency(currency)

	edges, err := e.store.ListFriends(ctx, user)
	if err != nil {
		return nil, err
	}
	expenses, err := e.store.ListExpenses(ctx, ByUser{UserID: user})
	if err != nil {
		return nil, err
	}

	ids := make([]UserID, 0, len(edges))
	for _, f := range edges {
		ids = append(ids, f.FriendID)
	}
	nets := FriendBalances(user, ids, inCurrency(expenses, currency))

	out := make([]FriendBalance, 0, len(ids))
	for _, id := range ids {
		friend, err := e.store.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, FriendBalance{Friend: *friend, Balance: nets[id]})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Friend.DisplayName() < out[j].Friend.DisplayName()
	})
	return out, nil
}

func inCurrency(expenses []Expense, currency Currency) []Expense {
	out := make([]Expense, 0, len(expenses))
	for _, exp := range expenses {
		if exp.Currency == currency {
			out = append(out, exp)
		}
	}
	return out
}
