package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRuleSetRejectsDuplicates(t *testing.T) {
	_, err := NewRuleSet("dup", []Rule{
		{Action: ActionBuy, Signal: "A1"},
		{Action: ActionBuy, Signal: "A1"},
	})
	require.Error(t, err)

	// The same signal on both sides is fine.
	_, err = NewRuleSet("both-sides", []Rule{
		{Action: ActionBuy, Signal: "A1"},
		{Action: ActionSell, Signal: "A1"},
	})
	require.NoError(t, err)
}

func TestNewRuleSetRejectsUnknownAction(t *testing.T) {
	_, err := NewRuleSet("bad", []Rule{{Action: "HOLD", Signal: "A1"}})
	require.Error(t, err)
}

func TestFirstMatchScansCodeOrder(t *testing.T) {
	rs, err := NewRuleSet("s", []Rule{
		{Action: ActionBuy, Signal: "C1"},
		{Action: ActionBuy, Signal: "A1"},
		{Action: ActionSell, Signal: "D1"},
	})
	require.NoError(t, err)

	// The day's code order decides, not the rule insertion order.
	sig, ok := rs.FirstBuyMatch([]string{"A1", "C1"})
	require.True(t, ok)
	assert.Equal(t, "A1", sig)

	sig, ok = rs.FirstBuyMatch([]string{"B1", "C1"})
	require.True(t, ok)
	assert.Equal(t, "C1", sig)

	_, ok = rs.FirstBuyMatch([]string{"D1"})
	assert.False(t, ok)

	sig, ok = rs.FirstSellMatch([]string{"B1", "D1"})
	require.True(t, ok)
	assert.Equal(t, "D1", sig)
}
