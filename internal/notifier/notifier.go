// Package notifier reports schedule activations.
package notifier

import (
	"log/slog"
	"sort"
	"strings"
)

type Notifier interface {
	Notify(schedule string, variables map[string]string)
}

var _ Notifier = Notifiers{}

// Notifiers fans out to a set of notifiers.
type Notifiers []Notifier

func (n Notifiers) Notify(schedule string, variables map[string]string) {
	for _, notifier := range n {
		notifier.Notify(schedule, variables)
	}
}

var _ Notifier = &SLogNotifier{}

type SLogNotifier struct {
	Logger *slog.Logger
}

func (s *SLogNotifier) Notify(schedule string, variables map[string]string) {
	s.Logger.Info("schedule activated",
		slog.String("schedule", schedule),
		slog.String("variables", formatVariables(variables)),
	)
}

func formatVariables(variables map[string]string) string {
	pairs := make([]string, 0, len(variables))
	for name, value := range variables {
		pairs = append(pairs, name+"="+value)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ", ")
}
