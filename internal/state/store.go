// Package state persists the scheduler's mutable state: the record of the
// schedule the device was last told to run, and the global variable values.
// Both live as JSON files in a single data directory. The store assumes a
// single writer; a mutex serializes in-process access.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/clambin/tado-scheduler/internal/schedule"
)

const (
	activeScheduleFile = "active_schedule.json"
	variablesFile      = "variables.json"
)

type Store struct {
	dataDir string
	lock    sync.Mutex
}

func New(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

// ActiveSchedule is the schedule + variables combination the device was last
// instructed to run.
type ActiveSchedule struct {
	Schedule  string              `json:"schedule"`
	Variables *schedule.Variables `json:"variables"`
}

func (s *Store) ActiveSchedule() (ActiveSchedule, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	var record ActiveSchedule
	body, err := os.ReadFile(filepath.Join(s.dataDir, activeScheduleFile))
	if err != nil {
		return record, fmt.Errorf("active schedule: %w", err)
	}
	if err = json.Unmarshal(body, &record); err != nil {
		return record, fmt.Errorf("active schedule: %w", err)
	}
	return record, nil
}

func (s *Store) SetActiveSchedule(record ActiveSchedule) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("active schedule: %w", err)
	}
	if err = os.WriteFile(filepath.Join(s.dataDir, activeScheduleFile), body, 0644); err != nil {
		return fmt.Errorf("active schedule: %w", err)
	}
	return nil
}

// GlobalVariables returns the persisted global variables. A missing file is
// an empty set, not an error.
func (s *Store) GlobalVariables() (map[string]string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.globalVariables()
}

// UpdateGlobalVariables merges update into the persisted global variables and
// returns the result.
func (s *Store) UpdateGlobalVariables(update map[string]string) (map[string]string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	variables, err := s.globalVariables()
	if err != nil {
		return nil, err
	}
	for name, value := range update {
		variables[name] = value
	}
	body, err := json.Marshal(variables)
	if err != nil {
		return nil, fmt.Errorf("variables: %w", err)
	}
	if err = os.WriteFile(filepath.Join(s.dataDir, variablesFile), body, 0644); err != nil {
		return nil, fmt.Errorf("variables: %w", err)
	}
	return variables, nil
}

func (s *Store) globalVariables() (map[string]string, error) {
	variables := make(map[string]string)
	body, err := os.ReadFile(filepath.Join(s.dataDir, variablesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return variables, nil
		}
		return nil, fmt.Errorf("variables: %w", err)
	}
	if err = json.Unmarshal(body, &variables); err != nil {
		return nil, fmt.Errorf("variables: %w", err)
	}
	return variables, nil
}
