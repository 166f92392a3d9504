package factory

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/splitledger/engine"
)

func TestPlanFactory_Encode(t *testing.T) {
	f := NewPlanFactory()

	plan, err := f.EncodePlan([]engine.Split{
		{UserID: "u-alice", Amount: decimal.RequireFromString("33.34")},
		{UserID: "u-bob", Amount: decimal.RequireFromString("66.66")},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"userId":"u-alice","amount":33.34},{"userId":"u-bob","amount":66.66}]`, plan)

	_, err = f.EncodePlan(nil)
	assert.Error(t, err)
}

func TestPlanFactory_Decode(t *testing.T) {
	tests := []struct {
		name    string
		plan    string
		want    []engine.Split
		wantErr bool
	}{
		{
			name: "numeric amounts",
			plan: `[{"userId":"a","amount":50},{"userId":"b","amount":49.99}]`,
			want: []engine.Split{
				{UserID: "a", Amount: decimal.NewFromInt(50)},
				{UserID: "b", Amount: decimal.RequireFromString("49.99")},
			},
		},
		{
			name: "quoted amounts",
			plan: `[{"userId":"a","amount":"12.50"}]`,
			want: []engine.Split{{UserID: "a", Amount: decimal.RequireFromString("12.5")}},
		},
		{name: "not json", plan: `splits`, wantErr: true},
		{name: "object instead of list", plan: `{"userId":"a","amount":1}`, wantErr: true},
		{name: "empty list", plan: `[]`, wantErr: true},
		{name: "missing user", plan: `[{"amount":5}]`, wantErr: true},
		{name: "missing amount", plan: `[{"userId":"a"}]`, wantErr: true},
		{name: "zero amount", plan: `[{"userId":"a","amount":0}]`, wantErr: true},
		{name: "negative amount", plan: `[{"userId":"a","amount":-3}]`, wantErr: true},
	}

	f := NewPlanFactory()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.DecodePlan(tt.plan)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i].UserID, got[i].UserID)
				assert.True(t, tt.want[i].Amount.Equal(got[i].Amount), "split %d: %s", i, got[i].Amount)
			}
		})
	}
}

func TestPlanFactory_DecodeKeepsEncodedPlanIntact(t *testing.T) {
	// GIVEN: Splits with sub-cent precision
	f := NewPlanFactory()
	in := []engine.Split{
		{UserID: "a", Amount: decimal.RequireFromString("3.333")},
		{UserID: "b", Amount: decimal.RequireFromString("6.667")},
	}

	// WHEN: Storing and replaying the plan
	plan, err := f.EncodePlan(in)
	require.NoError(t, err)
	out, err := f.DecodePlan(plan)
	require.NoError(t, err)

	// THEN: Nothing is rounded away
	require.Len(t, out, 2)
	assert.True(t, out[0].Amount.Equal(in[0].Amount))
	assert.True(t, out[1].Amount.Equal(in[1].Amount))
}

func TestEvenSplits(t *testing.T) {
	tests := []struct {
		name  string
		total string
		users []engine.UserID
		want  []string
	}{
		{name: "divides evenly", total: "100", users: []engine.UserID{"a", "b"}, want: []string{"50", "50"}},
		{name: "leftover cent goes first", total: "100", users: []engine.UserID{"a", "b", "c"}, want: []string{"33.34", "33.33", "33.33"}},
		{name: "two leftover cents", total: "0.05", users: []engine.UserID{"a", "b", "c"}, want: []string{"0.02", "0.02", "0.01"}},
		{name: "single user", total: "12.34", users: []engine.UserID{"a"}, want: []string{"12.34"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total := decimal.RequireFromString(tt.total)
			got := EvenSplits(total, tt.users)
			require.Len(t, got, len(tt.want))

			sum := decimal.Zero
			for i, s := range got {
				assert.Equal(t, tt.users[i], s.UserID)
				assert.True(t, decimal.RequireFromString(tt.want[i]).Equal(s.Amount), "split %d: %s", i, s.Amount)
				sum = sum.Add(s.Amount)
			}
			assert.True(t, sum.Equal(total))
			assert.NoError(t, engine.ValidateSplits(total, got))
		})
	}

	assert.Nil(t, EvenSplits(decimal.NewFromInt(10), nil))
}
