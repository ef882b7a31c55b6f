package state_test

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clambin/tado-scheduler/internal/schedule"
	"github.com/clambin/tado-scheduler/internal/state"
)

func TestStore_ActiveSchedule(t *testing.T) {
	store := state.New(t.TempDir())

	_, err := store.ActiveSchedule()
	assert.ErrorIs(t, err, fs.ErrNotExist)

	variables := schedule.NewVariables()
	variables.AddDefaults(map[string]string{"wake": "07:00"})
	variables.AddOverrides(map[string]string{"sleep": "23:00"})

	require.NoError(t, store.SetActiveSchedule(state.ActiveSchedule{Schedule: "workday", Variables: variables}))

	record, err := store.ActiveSchedule()
	require.NoError(t, err)
	assert.Equal(t, "workday", record.Schedule)
	require.NotNil(t, record.Variables)
	assert.True(t, variables.Equal(record.Variables))
	// tiers survive the roundtrip
	assert.Equal(t, variables.Entries(), record.Variables.Entries())
}

func TestStore_GlobalVariables(t *testing.T) {
	store := state.New(t.TempDir())

	// a missing file is an empty set
	variables, err := store.GlobalVariables()
	require.NoError(t, err)
	assert.Empty(t, variables)

	variables, err = store.UpdateGlobalVariables(map[string]string{"wake": "07:00"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"wake": "07:00"}, variables)

	// updates merge with the stored values
	variables, err = store.UpdateGlobalVariables(map[string]string{"sleep": "23:00", "wake": "08:00"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"wake": "08:00", "sleep": "23:00"}, variables)

	variables, err = store.GlobalVariables()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"wake": "08:00", "sleep": "23:00"}, variables)
}
