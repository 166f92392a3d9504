/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes of the HTTP API. Engine types carry no JSON tags; everything
  the wire sees is declared here and converted in the to*DTO helpers.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts are decimal.Decimal. Responses encode them as strings ("50.5")
  so no client parses money as a float. Requests accept numbers or strings.

SIGNS:
  Personal, friend and ledger amounts are positive when the other side
  owes the caller. Each carries a "direction" label (owes_you, you_owe,
  settled) so clients never have to interpret the sign.

VALIDATION:
  Request types carry go-playground/validator tags. Shape errors become a
  400 with a field -> rule map in "details". Business rules (split sums,
  membership) are enforced by the engine.

SEE ALSO:
  - handlers.go: Uses these types
  - engine/types.go: Domain types
*/
package api

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/splitledger/engine"
)

const dateLayout = "2006-01-02"

// =============================================================================
// USERS
// =============================================================================

type UserDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type RegisterUserRequest struct {
	Name  string `json:"name" validate:"max=100"`
	Email string `json:"email" validate:"required,email"`
}

// RegisterUserResponse includes a token so dev clients can call the API right away.
type RegisterUserResponse struct {
	User  UserDTO `json:"user"`
	Token string  `json:"token"`
}

// =============================================================================
// EXPENSES
// =============================================================================

type SplitDTO struct {
	UserID string           `json:"user_id" validate:"required"`
	Amount *decimal.Decimal `json:"amount" validate:"required"`
}

type LineItemDTO struct {
	Name     string           `json:"name" validate:"required,max=200"`
	Price    *decimal.Decimal `json:"price" validate:"required"`
	Quantity int              `json:"quantity" validate:"gte=0"`
}

// CreateExpenseRequest is the body of POST /api/expenses.
type CreateExpenseRequest struct {
	Description string           `json:"description" validate:"required,max=200"`
	Amount      *decimal.Decimal `json:"amount" validate:"required"`
	Splits      []SplitDTO       `json:"splits" validate:"dive"`
	PayerID     string           `json:"payer_id,omitempty"`
	GroupID     string           `json:"group_id,omitempty"`
	Date        string           `json:"date,omitempty"` // YYYY-MM-DD or RFC3339
	Category    string           `json:"category,omitempty" validate:"max=50"`
	LineItems   []LineItemDTO    `json:"line_items,omitempty" validate:"dive"`
	Recurrence  string           `json:"recurrence,omitempty" validate:"omitempty,oneof=WEEKLY MONTHLY"`
}

// SettlementRequest records the caller paying recipient back.
type SettlementRequest struct {
	RecipientID string           `json:"recipient_id" validate:"required"`
	Amount      *decimal.Decimal `json:"amount" validate:"required"`
	GroupID     string           `json:"group_id,omitempty"`
	Date        string           `json:"date,omitempty"`
}

type SplitOutDTO struct {
	UserID string          `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
}

type LineItemOutDTO struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type ExpenseDTO struct {
	ID          string           `json:"id"`
	Description string           `json:"description"`
	Amount      decimal.Decimal  `json:"amount"`
	Currency    string           `json:"currency"`
	Date        string           `json:"date"`
	Category    string           `json:"category"`
	PayerID     string           `json:"payer_id"`
	GroupID     *string          `json:"group_id"`
	Splits      []SplitOutDTO    `json:"splits"`
	LineItems   []LineItemOutDTO `json:"line_items"`
	CreatedAt   string           `json:"created_at"`
}

// =============================================================================
// BALANCES
// =============================================================================

type BalanceDetailDTO struct {
	UserID    string          `json:"user_id"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	Amount    decimal.Decimal `json:"amount"`
	Direction string          `json:"direction"`
	GroupID   string          `json:"group_id"`
	GroupName string          `json:"group_name"`
}

type PersonalSummaryDTO struct {
	Currency   string             `json:"currency"`
	TotalOwed  decimal.Decimal    `json:"total_owed"`
	TotalOwe   decimal.Decimal    `json:"total_owe"`
	NetBalance decimal.Decimal    `json:"net_balance"`
	Details    []BalanceDetailDTO `json:"details"`
}

type FriendBalanceDTO struct {
	Friend    UserDTO         `json:"friend"`
	Balance   decimal.Decimal `json:"balance"`
	Direction string          `json:"direction"`
}

type MemberBalanceDTO struct {
	User    UserDTO         `json:"user"`
	Balance decimal.Decimal `json:"balance"` // positive = is owed
}

type DebtDTO struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

type GroupBalancesDTO struct {
	Group    GroupDTO           `json:"group"`
	Balances []MemberBalanceDTO `json:"balances"`
	Debts    []DebtDTO          `json:"debts"`
}

// =============================================================================
// SOCIAL
// =============================================================================

type AddFriendRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type CreateGroupRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Currency string `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
}

type AddMemberRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type GroupDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Currency  string `json:"currency"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
}

type GroupSummaryDTO struct {
	GroupDTO
	MemberCount int `json:"member_count"`
}

type GroupDetailDTO struct {
	Group    GroupDTO     `json:"group"`
	Members  []UserDTO    `json:"members"`
	Expenses []ExpenseDTO `json:"expenses"`
}

type NotificationDTO struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	IsRead    bool   `json:"is_read"`
	CreatedAt string `json:"created_at"`
}

// =============================================================================
// LEDGER AND ANALYTICS
// =============================================================================

type LedgerEntryDTO struct {
	Expense        ExpenseDTO      `json:"expense"`
	UserAmount     decimal.Decimal `json:"user_amount"`
	RunningBalance decimal.Decimal `json:"running_balance"`
}

type LedgerSummaryDTO struct {
	TotalExpenses int             `json:"total_expenses"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	NetBalance    decimal.Decimal `json:"net_balance"`
	Direction     string          `json:"direction"`
}

type LedgerDTO struct {
	Transactions []LedgerEntryDTO `json:"transactions"`
	Summary      LedgerSummaryDTO `json:"summary"`
}

type CategorySpendDTO struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

type MonthSpendDTO struct {
	Month  string          `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

type AnalyticsDTO struct {
	Currency   string             `json:"currency"`
	TotalSpent decimal.Decimal    `json:"total_spent"`
	ByCategory []CategorySpendDTO `json:"by_category"`
	Monthly    []MonthSpendDTO    `json:"monthly"`
}

// =============================================================================
// RECURRENCE
// =============================================================================

type RecurrenceResultDTO struct {
	Processed int                 `json:"processed"`
	Created   []CreatedExpenseDTO `json:"created"`
	Skipped   []SkippedDTO        `json:"skipped"`
}

type CreatedExpenseDTO struct {
	TemplateID string `json:"template_id"`
	ExpenseID  string `json:"expense_id"`
}

type SkippedDTO struct {
	TemplateID string `json:"template_id"`
	Reason     string `json:"reason"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ScenarioResultDTO lists the users a scenario created, with tokens to act as them.
type ScenarioResultDTO struct {
	ScenarioID string            `json:"scenario_id"`
	GroupID    string            `json:"group_id,omitempty"`
	Users      []ScenarioUserDTO `json:"users"`
	Balances   *GroupBalancesDTO `json:"balances,omitempty"`
}

type ScenarioUserDTO struct {
	User  UserDTO `json:"user"`
	Token string  `json:"token"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toUserDTO(u engine.User) UserDTO {
	return UserDTO{ID: string(u.ID), Name: u.Name, Email: u.Email}
}

func toGroupDTO(g engine.Group) GroupDTO {
	return GroupDTO{
		ID:        string(g.ID),
		Name:      g.Name,
		Currency:  string(g.Currency),
		CreatedBy: string(g.CreatedBy),
		CreatedAt: g.CreatedAt.Format(time.RFC3339),
	}
}

func toExpenseDTO(e engine.Expense) ExpenseDTO {
	dto := ExpenseDTO{
		ID:          string(e.ID),
		Description: e.Description,
		Amount:      e.Amount,
		Currency:    string(e.Currency),
		Date:        e.Date.Format(time.RFC3339),
		Category:    e.Category,
		PayerID:     string(e.PayerID),
		Splits:      make([]SplitOutDTO, 0, len(e.Splits)),
		LineItems:   make([]LineItemOutDTO, 0, len(e.LineItems)),
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
	if e.GroupID != nil {
		gid := string(*e.GroupID)
		dto.GroupID = &gid
	}
	for _, s := range e.Splits {
		dto.Splits = append(dto.Splits, SplitOutDTO{UserID: string(s.UserID), Amount: s.Amount})
	}
	for _, it := range e.LineItems {
		dto.LineItems = append(dto.LineItems, LineItemOutDTO{Name: it.Name, Price: it.Price, Quantity: it.Quantity})
	}
	return dto
}

func toExpenseDTOs(expenses []engine.Expense) []ExpenseDTO {
	out := make([]ExpenseDTO, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, toExpenseDTO(e))
	}
	return out
}

func toGroupDetailDTO(d *engine.GroupDetail) GroupDetailDTO {
	dto := GroupDetailDTO{
		Group:    toGroupDTO(d.Group),
		Members:  make([]UserDTO, 0, len(d.Members)),
		Expenses: toExpenseDTOs(d.Expenses),
	}
	for _, m := range d.Members {
		dto.Members = append(dto.Members, toUserDTO(m))
	}
	return dto
}

func toGroupBalancesDTO(report *engine.GroupBalanceReport) *GroupBalancesDTO {
	dto := &GroupBalancesDTO{
		Group:    toGroupDTO(report.Group),
		Balances: make([]MemberBalanceDTO, 0, len(report.Balances)),
		Debts:    make([]DebtDTO, 0, len(report.Debts)),
	}
	seen := make(map[engine.UserID]bool, len(report.Members))
	for _, m := range report.Members {
		seen[m.ID] = true
		dto.Balances = append(dto.Balances, MemberBalanceDTO{
			User:    toUserDTO(m),
			Balance: engine.Round2(report.Balances[m.ID]),
		})
	}
	// Participants who are no longer on the roster still carry a balance.
	var extras []engine.UserID
	for id := range report.Balances {
		if !seen[id] {
			extras = append(extras, id)
		}
	}
	sort.Slice(extras, func(i, j int) bool { return extras[i] < extras[j] })
	for _, id := range extras {
		dto.Balances = append(dto.Balances, MemberBalanceDTO{
			User:    UserDTO{ID: string(id)},
			Balance: engine.Round2(report.Balances[id]),
		})
	}
	for _, d := range report.Debts {
		dto.Debts = append(dto.Debts, DebtDTO{From: string(d.From), To: string(d.To), Amount: d.Amount})
	}
	return dto
}

func toPersonalSummaryDTO(s *engine.PersonalSummary) PersonalSummaryDTO {
	dto := PersonalSummaryDTO{
		Currency:   string(s.Currency),
		TotalOwed:  s.TotalOwed,
		TotalOwe:   s.TotalOwe,
		NetBalance: s.NetBalance,
		Details:    make([]BalanceDetailDTO, 0, len(s.Details)),
	}
	for _, d := range s.Details {
		dto.Details = append(dto.Details, BalanceDetailDTO{
			UserID:    string(d.PersonID),
			Name:      d.Name,
			Email:     d.Email,
			Amount:    d.Amount,
			Direction: engine.SettleUpDirection(d.Amount),
			GroupID:   string(d.GroupID),
			GroupName: d.GroupName,
		})
	}
	return dto
}

func toLedgerDTO(l *engine.Ledger, newestFirst bool) LedgerDTO {
	dto := LedgerDTO{
		Transactions: make([]LedgerEntryDTO, 0, len(l.Entries)),
		Summary: LedgerSummaryDTO{
			TotalExpenses: l.Summary.TotalExpenses,
			TotalAmount:   engine.Round2(l.Summary.TotalAmount),
			NetBalance:    engine.Round2(l.Summary.NetBalance),
			Direction:     engine.SettleUpDirection(l.Summary.NetBalance),
		},
	}
	for _, e := range l.Entries {
		dto.Transactions = append(dto.Transactions, LedgerEntryDTO{
			Expense:        toExpenseDTO(e.Expense),
			UserAmount:     engine.Round2(e.UserAmount),
			RunningBalance: engine.Round2(e.RunningBalance),
		})
	}
	if newestFirst {
		for i, j := 0, len(dto.Transactions)-1; i < j; i, j = i+1, j-1 {
			dto.Transactions[i], dto.Transactions[j] = dto.Transactions[j], dto.Transactions[i]
		}
	}
	return dto
}

func toAnalyticsDTO(a *engine.Analytics) AnalyticsDTO {
	dto := AnalyticsDTO{
		Currency:   string(a.Currency),
		TotalSpent: a.TotalSpent,
		ByCategory: make([]CategorySpendDTO, 0, len(a.ByCategory)),
		Monthly:    make([]MonthSpendDTO, 0, len(a.Monthly)),
	}
	for _, c := range a.ByCategory {
		dto.ByCategory = append(dto.ByCategory, CategorySpendDTO{Category: c.Category, Amount: c.Amount})
	}
	for _, m := range a.Monthly {
		dto.Monthly = append(dto.Monthly, MonthSpendDTO{Month: m.Month, Amount: m.Amount})
	}
	return dto
}

func toNotificationDTO(n engine.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        string(n.ID),
		Type:      string(n.Type),
		Message:   n.Message,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
	}
}

func toRecurrenceResultDTO(r *engine.RecurrenceResult) RecurrenceResultDTO {
	dto := RecurrenceResultDTO{
		Processed: r.Processed,
		Created:   make([]CreatedExpenseDTO, 0, len(r.Created)),
		Skipped:   make([]SkippedDTO, 0, len(r.Skipped)),
	}
	for _, c := range r.Created {
		dto.Created = append(dto.Created, CreatedExpenseDTO{TemplateID: string(c.TemplateID), ExpenseID: string(c.ExpenseID)})
	}
	for _, s := range r.Skipped {
		dto.Skipped = append(dto.Skipped, SkippedDTO{TemplateID: string(s.TemplateID), Reason: s.Reason})
	}
	return dto
}
