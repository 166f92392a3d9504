/*
scenarios.go - Demo scenario loaders

PURPOSE:

	Populates the engine with small, known data sets so the API can be
	explored by hand. Each scenario creates fresh users (unique emails per
	load), one group and a few expenses through the normal engine write
	path, then returns tokens for every user and the group's balances.

AVAILABLE SCENARIOS:

	even-split:      Alice pays $100 split evenly with Bob
	one-owes-all:    Alice pays $100, Bob owes all of it
	three-way:       A pays $90 for three, B pays $30 owed by C
	settle-up:       Alice pays $100 split evenly, Bob settles $50

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "three-way"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, s)
 3. Register it in scenarioLoaders

NOTE:

	Scenarios only add data. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler
  - factory/plan.go: EvenSplits
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/splitledger/engine"
	"github.com/warp/splitledger/factory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "even-split",
		Name:        "Even Split",
		Description: "Alice pays $100 for dinner, split evenly with Bob. Bob owes Alice $50.",
	},
	{
		ID:          "one-owes-all",
		Name:        "One Owes Everything",
		Description: "Alice pays $100 and Bob owes the whole amount.",
	},
	{
		ID:          "three-way",
		Name:        "Three-Way Netting",
		Description: "A pays $90 split three ways; B pays $30 owed by C. B nets out and C pays A $60.",
	},
	{
		ID:          "settle-up",
		Name:        "Settle Up",
		Description: "Alice pays $100 split evenly, then Bob records a $50 settlement. Everyone is square.",
	},
}

type scenarioLoader func(ctx context.Context, s *scenarioSession) error

var scenarioLoaders = map[string]scenarioLoader{
	"even-split":   loadEvenSplitScenario,
	"one-owes-all": loadOneOwesAllScenario,
	"three-way":    loadThreeWayScenario,
	"settle-up":    loadSettleUpScenario,
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a demo scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	s := &scenarioSession{h: h, suffix: engine.NewID()[:8]}
	if err := load(ctx, s); err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	result := ScenarioResultDTO{ScenarioID: req.ScenarioID, Users: s.users}
	if s.group != nil {
		result.GroupID = string(s.group.ID)
		report, err := h.Engine.GroupBalances(ctx, s.owner, s.group.ID)
		if err != nil {
			h.writeEngineError(w, r, err)
			return
		}
		result.Balances = toGroupBalancesDTO(report)
	}

	h.Logger.InfoContext(ctx, "scenario loaded", "scenario", req.ScenarioID, "users", len(s.users))
	writeJSON(w, http.StatusCreated, result)
}

// =============================================================================
// SCENARIO SESSION - shared helpers for loaders
// =============================================================================

type scenarioSession struct {
	h      *Handler
	suffix string
	owner  engine.UserID
	group  *engine.Group
	users  []ScenarioUserDTO
}

func (s *scenarioSession) user(ctx context.Context, name string) (engine.UserID, error) {
	email := fmt.Sprintf("%s+%s@example.com", strings.ToLower(name), s.suffix)
	u, err := s.h.Engine.RegisterUser(ctx, name, email)
	if err != nil {
		return "", err
	}
	token, err := s.h.Tokens.Generate(string(u.ID), u.Email)
	if err != nil {
		return "", err
	}
	s.users = append(s.users, ScenarioUserDTO{User: toUserDTO(*u), Token: token})
	return u.ID, nil
}

// groupOf creates a group owned by the first member and adds the others.
func (s *scenarioSession) groupOf(ctx context.Context, name string, members ...engine.UserID) error {
	s.owner = members[0]
	g, err := s.h.Engine.CreateGroup(ctx, s.owner, name, engine.DefaultCurrency)
	if err != nil {
		return err
	}
	s.group = g
	for _, m := range members[1:] {
		u, err := s.h.Engine.GetUser(ctx, m)
		if err != nil {
			return err
		}
		if _, err := s.h.Engine.AddGroupMember(ctx, s.owner, g.ID, u.Email); err != nil {
			return err
		}
	}
	return nil
}

func (s *scenarioSession) expense(ctx context.Context, payer engine.UserID, desc, category string, amount int64, splits []engine.Split) error {
	gid := s.group.ID
	_, err := s.h.Engine.CreateExpense(ctx, payer, engine.ExpenseRequest{
		Description: desc,
		Amount:      decimal.NewFromInt(amount),
		Splits:      splits,
		GroupID:     &gid,
		Category:    category,
	})
	return err
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadEvenSplitScenario(ctx context.Context, s *scenarioSession) error {
	alice, bob, err := aliceAndBob(ctx, s)
	if err != nil {
		return err
	}
	return s.expense(ctx, alice, "Dinner", "FOOD", 100,
		factory.EvenSplits(decimal.NewFromInt(100), []engine.UserID{alice, bob}))
}

func loadOneOwesAllScenario(ctx context.Context, s *scenarioSession) error {
	alice, bob, err := aliceAndBob(ctx, s)
	if err != nil {
		return err
	}
	return s.expense(ctx, alice, "Concert tickets", "ENTERTAINMENT", 100,
		[]engine.Split{{UserID: bob, Amount: decimal.NewFromInt(100)}})
}

func loadThreeWayScenario(ctx context.Context, s *scenarioSession) error {
	a, err := s.user(ctx, "Avery")
	if err != nil {
		return err
	}
	b, err := s.user(ctx, "Blake")
	if err != nil {
		return err
	}
	c, err := s.user(ctx, "Casey")
	if err != nil {
		return err
	}
	if err := s.groupOf(ctx, "Road Trip", a, b, c); err != nil {
		return err
	}
	if err := s.expense(ctx, a, "Fuel", "TRAVEL", 90,
		factory.EvenSplits(decimal.NewFromInt(90), []engine.UserID{a, b, c})); err != nil {
		return err
	}
	return s.expense(ctx, b, "Snacks", "FOOD", 30,
		[]engine.Split{{UserID: c, Amount: decimal.NewFromInt(30)}})
}

func loadSettleUpScenario(ctx context.Context, s *scenarioSession) error {
	alice, bob, err := aliceAndBob(ctx, s)
	if err != nil {
		return err
	}
	if err := s.expense(ctx, alice, "Dinner", "FOOD", 100,
		factory.EvenSplits(decimal.NewFromInt(100), []engine.UserID{alice, bob})); err != nil {
		return err
	}
	return s.expense(ctx, bob, "Settlement", engine.CategorySettlement, 50,
		[]engine.Split{{UserID: alice, Amount: decimal.NewFromInt(50)}})
}

func aliceAndBob(ctx context.Context, s *scenarioSession) (engine.UserID, engine.UserID, error) {
	alice, err := s.user(ctx, "Alice")
	if err != nil {
		return "", "", err
	}
	bob, err := s.user(ctx, "Bob")
	if err != nil {
		return "", "", err
	}
	if err := s.groupOf(ctx, "Apartment", alice, bob); err != nil {
		return "", "", err
	}
	return alice, bob, nil
}
