package manager_test

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clambin/tado-scheduler/internal/manager"
	"github.com/clambin/tado-scheduler/internal/schedule"
	"github.com/clambin/tado-scheduler/internal/state"
	"github.com/clambin/tado-scheduler/internal/tadoclient"
)

const testSchedule = `[metadata]
name = "workday"
wake = "07:00"
sleep = "23:00"

[[living_room]]
time = "{wake}"
temperature = 21

[[living_room]]
time = "{sleep}"
temperature = 16

[[bedroom]]
time = "00:00"
temperature = 18
`

type fakeTado struct {
	zones  []tadoclient.Zone
	blocks map[int][]schedule.WireBlock
	pushes int
}

func (f *fakeTado) Zones(_ context.Context) ([]tadoclient.Zone, error) {
	return f.zones, nil
}

func (f *fakeTado) ActiveTimetable(_ context.Context, _ int) (int, error) {
	return 1, nil
}

func (f *fakeTado) Blocks(_ context.Context, zoneID, _ int) ([]schedule.WireBlock, error) {
	return f.blocks[zoneID], nil
}

func (f *fakeTado) SetBlocks(_ context.Context, zoneID, _ int, blocks []schedule.WireBlock) error {
	f.blocks[zoneID] = blocks
	f.pushes++
	return nil
}

type fakeStore struct {
	record  *state.ActiveSchedule
	globals map[string]string
}

func (f *fakeStore) ActiveSchedule() (state.ActiveSchedule, error) {
	if f.record == nil {
		return state.ActiveSchedule{}, fmt.Errorf("active schedule: %w", fs.ErrNotExist)
	}
	return *f.record, nil
}

func (f *fakeStore) SetActiveSchedule(record state.ActiveSchedule) error {
	f.record = &record
	return nil
}

func (f *fakeStore) GlobalVariables() (map[string]string, error) {
	return f.globals, nil
}

func (f *fakeStore) UpdateGlobalVariables(update map[string]string) (map[string]string, error) {
	for name, value := range update {
		f.globals[name] = value
	}
	return f.globals, nil
}

type fakeNotifier struct {
	notifications []string
}

func (f *fakeNotifier) Notify(schedule string, _ map[string]string) {
	f.notifications = append(f.notifications, schedule)
}

func makeManager(t *testing.T) (*manager.Manager, *fakeTado, *fakeStore, *fakeNotifier) {
	t.Helper()
	client := &fakeTado{
		zones: []tadoclient.Zone{
			{ID: 1, Name: "Living Room"},
			{ID: 2, Name: "Bedroom"},
		},
		blocks: make(map[int][]schedule.WireBlock),
	}
	store := &fakeStore{globals: make(map[string]string)}
	registry := schedule.NewRegistry(fstest.MapFS{
		"workday.toml": &fstest.MapFile{Data: []byte(testSchedule)},
	}, store)
	notifier := &fakeNotifier{}
	return manager.New(client, registry, store, notifier, slog.Default()), client, store, notifier
}

func TestManager_Activate(t *testing.T) {
	ctx := context.Background()
	m, client, store, notifier := makeManager(t)

	require.NoError(t, m.Activate(ctx, "workday", false, nil))
	assert.Equal(t, 2, client.pushes)
	require.NotNil(t, store.record)
	assert.Equal(t, "workday", store.record.Schedule)
	assert.Equal(t, []string{"workday"}, notifier.notifications)

	// zone names map to schedule keys; the wrapping night interval splits at
	// midnight, so the living room renders as three blocks
	require.Len(t, client.blocks[1], 3)
	assert.Equal(t, "00:00", client.blocks[1][0].Start)
	assert.Equal(t, "07:00", client.blocks[1][1].Start)
	require.Len(t, client.blocks[2], 1)
	assert.Equal(t, 18.0, client.blocks[2][0].Setting.Temperature.Celsius)

	// re-activating the same schedule does not touch the device
	require.NoError(t, m.Activate(ctx, "workday", false, nil))
	assert.Equal(t, 2, client.pushes)
	assert.Len(t, notifier.notifications, 1)

	// a changed variable forces a push
	require.NoError(t, m.Activate(ctx, "workday", false, map[string]string{"wake": "08:00"}))
	assert.Equal(t, 4, client.pushes)
	assert.Len(t, notifier.notifications, 2)
	assert.Equal(t, "08:00", client.blocks[1][1].Start)

	// refreshing keeps the override
	require.NoError(t, m.Activate(ctx, "", true, nil))
	assert.Equal(t, 4, client.pushes)
}

func TestManager_Activate_Errors(t *testing.T) {
	ctx := context.Background()
	m, _, store, _ := makeManager(t)

	err := m.Activate(ctx, "weekend", false, nil)
	assert.ErrorIs(t, err, schedule.ErrScheduleNotFound)

	// no persisted schedule to refresh
	err = m.Activate(ctx, "", true, nil)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	// a persisted record without a schedule name cannot be re-activated
	store.record = &state.ActiveSchedule{}
	err = m.Activate(ctx, "", true, nil)
	assert.ErrorIs(t, err, schedule.ErrScheduleNotFound)
}

func TestManager_SetVariables(t *testing.T) {
	ctx := context.Background()
	m, client, store, notifier := makeManager(t)

	require.NoError(t, m.Activate(ctx, "workday", false, map[string]string{"wake": "08:00"}))
	assert.Equal(t, 2, client.pushes)

	// the override-tier value shields the variable from the global update
	require.NoError(t, m.SetVariables(ctx, map[string]string{"wake": "09:00"}))
	assert.Equal(t, 2, client.pushes)
	assert.Equal(t, "09:00", store.globals["wake"])

	// an unshielded variable picks up the global and forces a push
	require.NoError(t, m.SetVariables(ctx, map[string]string{"sleep": "22:00"}))
	assert.Equal(t, 4, client.pushes)
	assert.Equal(t, "22:00", client.blocks[1][2].Start)
	assert.Len(t, notifier.notifications, 2)
}

func TestManager_Push_NoScheduleSet(t *testing.T) {
	m, _, _, _ := makeManager(t)
	assert.ErrorIs(t, m.Push(context.Background()), manager.ErrNoScheduleSet)
	_, err := m.IsActive()
	assert.ErrorIs(t, err, manager.ErrNoScheduleSet)
}

func TestManager_Push_MissingZone(t *testing.T) {
	ctx := context.Background()
	m, client, _, _ := makeManager(t)
	client.zones = append(client.zones, tadoclient.Zone{ID: 3, Name: "Kitchen"})

	err := m.Activate(ctx, "workday", false, nil)
	assert.ErrorContains(t, err, "Kitchen")
}

func TestManager_Pull(t *testing.T) {
	ctx := context.Background()
	m, client, _, _ := makeManager(t)
	client.blocks[1] = schedule.NewBlocks("00:00", "00:00", 20)

	timetables, err := m.Pull(ctx)
	require.NoError(t, err)
	require.Contains(t, timetables, "living_room")
	require.Contains(t, timetables, "bedroom")
	require.Len(t, timetables["living_room"], 1)
	assert.Equal(t, 20.0, timetables["living_room"][0].Setting.Temperature.Celsius)
	assert.Empty(t, timetables["bedroom"])
}
