package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStateManager_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	sm, err := NewStateManager(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)
	assert.Empty(t, sm.GetFullState().RiskLevels)
}

func TestStateManager_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	sm, err := NewStateManager(path)
	require.NoError(t, err)

	levels := map[string]LevelState{
		"BTCUSDT": {Direction: "LONG", EntryPrice: 100, StopLoss: 95, TakeProfit: 110, CreatedAt: time.Unix(1700000000, 0).UTC()},
	}
	require.NoError(t, sm.UpdateRiskLevels(levels))
	require.NoError(t, sm.UpdateRealizedPNL(-12.5))

	reloaded, err := NewStateManager(path)
	require.NoError(t, err)
	st := reloaded.GetFullState()
	assert.Equal(t, levels, st.RiskLevels)
	assert.Equal(t, -12.5, st.RealizedPNL)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestGetFullState_ReturnsCopy(t *testing.T) {
	sm, err := NewStateManager(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	require.NoError(t, sm.UpdateRiskLevels(map[string]LevelState{"A": {EntryPrice: 1}}))

	st := sm.GetFullState()
	delete(st.RiskLevels, "A")
	assert.Contains(t, sm.GetFullState().RiskLevels, "A")
}
