package engine

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// GroupBalanceReport is a group's balance vector plus suggested payments.
type GroupBalanceReport struct {
	Group    Group
	Members  []User
	Balances map[UserID]decimal.Decimal // positive = is owed
	Debts    []Debt
}

// GroupBalances aggregates a group's expenses and simplifies the result.
// The acting user must be a member.
func (e *Engine) GroupBalances(ctx context.Context, actor UserID, groupID GroupID) (*GroupBalanceReport, error) {
	group, err := e.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, e.store, groupID, actor, "actor"); err != nil {
		return nil, err
	}

	memberIDs, err := e.store.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	expenses, err := e.store.ListExpenses(ctx, ByGroup{GroupID: groupID})
	if err != nil {
		return nil, err
	}

	members := make([]User, 0, len(memberIDs))
	for _, id := range memberIDs {
		u, err := e.store.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		members = append(members, *u)
	}

	balances := GroupBalances(memberIDs, expenses)
	return &GroupBalanceReport{
		Group:    *group,
		Members:  members,
		Balances: balances,
		Debts:    SimplifyDebts(balances),
	}, nil
}

// PersonalSummary nets the user against everyone they share expenses with,
// in the reporting currency.
func (e *Engine) PersonalSummary(ctx context.Context, user UserID, currency Currency) (*PersonalSummary, error) {
	currency = e.reportingCurrency(currency)

	expenses, err := e.store.ListExpenses(ctx, ByUser{UserID: user})
	if err != nil {
		return nil, err
	}
	expenses = inCurrency(expenses, currency)

	groups := make(map[GroupID]Group)
	userGroups, err := e.store.ListUserGroups(ctx, user)
	if err != nil {
		return nil, err
	}
	for _, g := range userGroups {
		groups[g.ID] = g
	}

	people := make(map[UserID]User)
	for _, exp := range expenses {
		if exp.GroupID != nil {
			if _, ok := groups[*exp.GroupID]; !ok {
				if g, err := e.store.GetGroup(ctx, *exp.GroupID); err == nil {
					groups[g.ID] = *g
				}
			}
		}
		ids := []UserID{exp.PayerID}
		for _, s := range exp.Splits {
			ids = append(ids, s.UserID)
		}
		for _, id := range ids {
			if _, ok := people[id]; ok || id == user {
				continue
			}
			u, err := e.store.GetUser(ctx, id)
			if IsNotFound(err) {
				people[id] = User{ID: id, Name: UnknownUserName}
				continue
			}
			if err != nil {
				return nil, err
			}
			people[id] = *u
		}
	}

	return PersonalBalances(user, expenses, groups, people, currency), nil
}

// =============================================================================
// ANALYTICS
// =============================================================================

type CategorySpend struct {
	Category string
	Amount   decimal.Decimal
}

type MonthSpend struct {
	Month  string // YYYY-MM
	Amount decimal.Decimal
}

type Analytics struct {
	Currency   Currency
	TotalSpent decimal.Decimal
	ByCategory []CategorySpend
	Monthly    []MonthSpend
}

// TrendMonths is how many months the spending trend covers, current month included.
const TrendMonths = 6

// SpendingAnalytics sums the user's own shares. Settlements are payoffs,
// not spending, and are left out.
func SpendingAnalytics(user UserID, expenses []Expense, now time.Time, currency Currency) *Analytics {
	a := &Analytics{Currency: currency, ByCategory: []CategorySpend{}}
	total := NewMoney(decimal.Zero, currency)

	byCategory := make(map[string]decimal.Decimal)
	firstMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -(TrendMonths - 1), 0)
	monthly := make(map[string]decimal.Decimal, TrendMonths)
	for i := 0; i < TrendMonths; i++ {
		monthly[MonthKey(firstMonth.AddDate(0, i, 0))] = decimal.Zero
	}

	for _, exp := range expenses {
		if exp.IsSettlement() {
			continue
		}
		share, ok := exp.SplitFor(user)
		if !ok {
			continue
		}
		next, err := total.Add(NewMoney(share, exp.Currency))
		if err != nil {
			continue
		}
		total = next
		byCategory[exp.Category] = byCategory[exp.Category].Add(share)
		key := MonthKey(exp.Date.In(now.Location()))
		if _, tracked := monthly[key]; tracked {
			monthly[key] = monthly[key].Add(share)
		}
	}

	for cat, amt := range byCategory {
		a.ByCategory = append(a.ByCategory, CategorySpend{Category: cat, Amount: Round2(amt)})
	}
	sort.Slice(a.ByCategory, func(i, j int) bool {
		if !a.ByCategory[i].Amount.Equal(a.ByCategory[j].Amount) {
			return a.ByCategory[i].Amount.GreaterThan(a.ByCategory[j].Amount)
		}
		return a.ByCategory[i].Category < a.ByCategory[j].Category
	})

	for i := 0; i < TrendMonths; i++ {
		key := MonthKey(firstMonth.AddDate(0, i, 0))
		a.Monthly = append(a.Monthly, MonthSpend{Month: key, Amount: Round2(monthly[key])})
	}
	a.TotalSpent = Round2(total.Amount)
	return a
}

func (e *Engine) Analytics(ctx context.Context, user UserID, currency Currency) (*Analytics, error) {
	currency = e.reportingCurrency(currency)
	expenses, err := e.store.ListExpenses(ctx, ByUser{UserID: user})
	if err != nil {
		return nil, err
	}
	return SpendingAnalytics(user, inCurrency(expenses, currency), e.now(), currency), nil
}
