package lifecycle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shipflow/internal/lifecycle"
	"shipflow/internal/shipment"
)

func TestRank_Order(t *testing.T) {
	prev := 0
	for _, p := range lifecycle.Phases {
		r, err := lifecycle.Rank(p)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, r, prev, string(p))
		prev = r
	}

	picking, _ := lifecycle.Rank(shipment.PhasePicking)
	issues, _ := lifecycle.Rank(shipment.PhasePickingIssues)
	assert.Equal(t, picking, issues)
}

func TestRank_Unknown(t *testing.T) {
	_, err := lifecycle.Rank("teleported")
	require.ErrorIs(t, err, lifecycle.ErrUnknownPhase)

	_, err = lifecycle.Compare(shipment.PhasePicking, "")
	require.ErrorIs(t, err, lifecycle.ErrUnknownPhase)
}

func TestCompare(t *testing.T) {
	c, err := lifecycle.Compare(shipment.PhaseAwaitingDecisions, shipment.PhaseReadyToFulfill)
	require.NoError(t, err)
	assert.Equal(t, 1, c)

	c, err = lifecycle.Compare(shipment.PhasePickingIssues, shipment.PhasePicking)
	require.NoError(t, err)
	assert.Equal(t, 0, c)

	c, err = lifecycle.Compare(shipment.PhaseOnDock, shipment.PhaseInTransit)
	require.NoError(t, err)
	assert.Equal(t, -1, c)
}

func TestIsTerminal(t *testing.T) {
	for _, p := range shipment.TerminalPhases {
		assert.True(t, lifecycle.IsTerminal(p), string(p))
	}
	assert.False(t, lifecycle.IsTerminal(shipment.PhaseInTransit))
	assert.False(t, lifecycle.IsTerminal("bogus"))
}

func TestParse(t *testing.T) {
	p, err := lifecycle.ParsePhase("packing_ready")
	require.NoError(t, err)
	assert.Equal(t, shipment.PhasePackingReady, p)

	_, err = lifecycle.ParsePhase("packed")
	assert.ErrorIs(t, err, lifecycle.ErrUnknownPhase)

	s, err := lifecycle.ParseSubphase("needs_rate_check")
	require.NoError(t, err)
	assert.Equal(t, shipment.SubphaseNeedsRateCheck, s)

	s, err = lifecycle.ParseSubphase("")
	require.NoError(t, err)
	assert.Equal(t, shipment.SubphaseNone, s)

	_, err = lifecycle.ParseSubphase("needs_love")
	assert.ErrorIs(t, err, lifecycle.ErrUnknownPhase)

	r, err := lifecycle.ParseReason("label_queue")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.ReasonLabelQueue, r)

	_, err = lifecycle.ParseReason("teleport")
	assert.Error(t, err)
}
