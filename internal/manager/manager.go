// Package manager orchestrates schedule activation: it resolves a schedule
// through the registry, pushes the rendered timetables to the thermostats and
// records what the device was told to run, so that re-activating the same
// schedule with the same variables does not touch the device again.
package manager

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"

	"github.com/clambin/tado-scheduler/internal/notifier"
	"github.com/clambin/tado-scheduler/internal/schedule"
	"github.com/clambin/tado-scheduler/internal/state"
	"github.com/clambin/tado-scheduler/internal/tadoclient"
)

// ErrNoScheduleSet indicates a push was requested before any schedule was resolved.
var ErrNoScheduleSet = errors.New("no schedule set")

type TadoClient interface {
	Zones(context.Context) ([]tadoclient.Zone, error)
	ActiveTimetable(context.Context, int) (int, error)
	Blocks(context.Context, int, int) ([]schedule.WireBlock, error)
	SetBlocks(context.Context, int, int, []schedule.WireBlock) error
}

type ScheduleSource interface {
	Schedules(schedule.Request) (map[string]schedule.Schedule, error)
}

type Store interface {
	ActiveSchedule() (state.ActiveSchedule, error)
	SetActiveSchedule(state.ActiveSchedule) error
	UpdateGlobalVariables(map[string]string) (map[string]string, error)
}

type Manager struct {
	client    TadoClient
	schedules ScheduleSource
	store     Store
	notifier  notifier.Notifier
	logger    *slog.Logger

	lock    sync.Mutex
	current *schedule.Schedule
}

func New(client TadoClient, schedules ScheduleSource, store Store, n notifier.Notifier, logger *slog.Logger) *Manager {
	return &Manager{
		client:    client,
		schedules: schedules,
		store:     store,
		notifier:  n,
		logger:    logger,
	}
}

// Set resolves a schedule and makes it current, without pushing it to the
// device. An empty name re-resolves the persisted active schedule; refresh
// then keeps only its override-tier variables.
func (m *Manager) Set(name string, refresh bool, overrides map[string]string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.set(name, refresh, overrides)
}

// Push renders the current schedule and writes each zone's timetable to the
// device, then persists the active-schedule record.
func (m *Manager) Push(ctx context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.push(ctx)
}

// IsActive reports whether the current schedule is already active on the device.
func (m *Manager) IsActive() (bool, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.isActive()
}

// Activate resolves the named schedule and pushes it, unless the result is
// already active.
func (m *Manager) Activate(ctx context.Context, name string, refresh bool, overrides map[string]string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if err := m.set(name, refresh, overrides); err != nil {
		return err
	}
	active, err := m.isActive()
	if err != nil {
		return err
	}
	if active {
		m.logger.Debug("schedule already active", slog.String("schedule", m.current.Name))
		return nil
	}
	if err = m.push(ctx); err != nil {
		return err
	}
	m.notifier.Notify(m.current.Name, m.current.Variables.Values())
	return nil
}

// SetVariables updates the persisted global variables and re-activates the
// current schedule if the update changes its resolution.
func (m *Manager) SetVariables(ctx context.Context, update map[string]string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, err := m.store.UpdateGlobalVariables(update); err != nil {
		return err
	}
	if err := m.set("", true, nil); err != nil {
		return err
	}
	active, err := m.isActive()
	if err != nil {
		return err
	}
	if active {
		m.logger.Debug("schedule unchanged", slog.String("schedule", m.current.Name))
		return nil
	}
	if err = m.push(ctx); err != nil {
		return err
	}
	m.notifier.Notify(m.current.Name, m.current.Variables.Values())
	return nil
}

// Pull reads the device's current timetable for every zone.
func (m *Manager) Pull(ctx context.Context) (map[string][]schedule.WireBlock, error) {
	zones, err := m.client.Zones(ctx)
	if err != nil {
		return nil, fmt.Errorf("zones: %w", err)
	}
	timetables := make(map[string][]schedule.WireBlock, len(zones))
	for _, zone := range zones {
		timetableID, err := m.client.ActiveTimetable(ctx, zone.ID)
		if err != nil {
			return nil, fmt.Errorf("zone %q: %w", zone.Name, err)
		}
		blocks, err := m.client.Blocks(ctx, zone.ID, timetableID)
		if err != nil {
			return nil, fmt.Errorf("zone %q: %w", zone.Name, err)
		}
		timetables[zoneKey(zone.Name)] = blocks
	}
	return timetables, nil
}

// ActiveSchedule returns the persisted active-schedule record.
func (m *Manager) ActiveSchedule() (state.ActiveSchedule, error) {
	return m.store.ActiveSchedule()
}

func (m *Manager) set(name string, refresh bool, overrides map[string]string) error {
	var seed *schedule.Variables
	if name == "" {
		record, err := m.store.ActiveSchedule()
		if err != nil {
			return fmt.Errorf("active schedule: %w", err)
		}
		if record.Schedule == "" {
			return fmt.Errorf("active schedule record is empty: %w", schedule.ErrScheduleNotFound)
		}
		name = record.Schedule
		seed = record.Variables
		if refresh && seed != nil {
			seed = seed.OverridesOnly()
		}
	}

	schedules, err := m.schedules.Schedules(schedule.Request{Name: name, Variables: seed, Overrides: overrides})
	if err != nil {
		return err
	}
	current := schedules[name]
	m.current = &current
	return nil
}

func (m *Manager) push(ctx context.Context) error {
	if m.current == nil {
		return ErrNoScheduleSet
	}
	zones, err := m.client.Zones(ctx)
	if err != nil {
		return fmt.Errorf("zones: %w", err)
	}
	for _, zone := range zones {
		timetable, ok := m.current.Zones[zoneKey(zone.Name)]
		if !ok {
			return fmt.Errorf("schedule %q has no timetable for zone %q", m.current.Name, zone.Name)
		}
		timetableID, err := m.client.ActiveTimetable(ctx, zone.ID)
		if err != nil {
			return fmt.Errorf("zone %q: %w", zone.Name, err)
		}
		if err = m.client.SetBlocks(ctx, zone.ID, timetableID, schedule.Render(timetable)); err != nil {
			return fmt.Errorf("zone %q: %w", zone.Name, err)
		}
		m.logger.Debug("timetable pushed", slog.String("zone", zone.Name))
	}
	return m.store.SetActiveSchedule(state.ActiveSchedule{Schedule: m.current.Name, Variables: m.current.Variables})
}

func (m *Manager) isActive() (bool, error) {
	if m.current == nil {
		return false, ErrNoScheduleSet
	}
	record, err := m.store.ActiveSchedule()
	if err != nil {
		// nothing was ever activated
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if record.Schedule != m.current.Name {
		return false, nil
	}
	if record.Variables == nil {
		return m.current.Variables == nil || m.current.Variables.Len() == 0, nil
	}
	return record.Variables.Equal(m.current.Variables), nil
}

// zoneKey converts a zone's display name to its schedule key.
func zoneKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}
