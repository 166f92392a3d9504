package api

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/splitledger/engine"
)

func TestToGroupBalancesDTO_OffRosterOrderedByID(t *testing.T) {
	// GIVEN: A report whose balances include four people no longer on the roster
	report := &engine.GroupBalanceReport{
		Group:   engine.Group{ID: "g1", Name: "Flat"},
		Members: []engine.User{{ID: "m2", Name: "Mia"}, {ID: "m1", Name: "Max"}},
		Balances: map[engine.UserID]decimal.Decimal{
			"m1": decimal.NewFromInt(5),
			"m2": decimal.NewFromInt(-5),
			"u4": decimal.NewFromInt(4),
			"u1": decimal.NewFromInt(-1),
			"u3": decimal.NewFromInt(3),
			"u2": decimal.NewFromInt(-6),
		},
	}

	// WHEN: Mapping it repeatedly
	for i := 0; i < 20; i++ {
		dto := toGroupBalancesDTO(report)

		// THEN: Roster members keep roster order and the rest follow sorted by ID
		require.Len(t, dto.Balances, 6)
		ids := make([]string, 0, len(dto.Balances))
		for _, b := range dto.Balances {
			ids = append(ids, b.User.ID)
		}
		assert.Equal(t, []string{"m2", "m1", "u1", "u2", "u3", "u4"}, ids)
		assertAmount(t, "-6", dto.Balances[3].Balance)
	}
}
