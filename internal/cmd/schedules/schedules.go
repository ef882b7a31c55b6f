// Package schedules lists the available schedules and their resolved variables.
package schedules

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/clambin/tado-scheduler/internal/schedule"
	"github.com/clambin/tado-scheduler/internal/state"
)

var Cmd = cobra.Command{
	Use:   "schedules",
	Short: "List available schedules and their variables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return list(os.Stdout, viper.GetViper())
	},
}

func list(w io.Writer, v *viper.Viper) error {
	dataDir := v.GetString("data.dir")
	registry := schedule.NewRegistry(os.DirFS(filepath.Join(dataDir, "schedules")), state.New(dataDir))

	variables, err := registry.Variables(schedule.Request{})
	if err != nil {
		return err
	}

	names := make([]string, 0, len(variables))
	for name := range variables {
		names = append(names, name)
	}
	slices.Sort(names)

	const formatString = "%-20s %-20s %-20s %s\n"
	_, _ = fmt.Fprintf(w, formatString, "SCHEDULE", "VARIABLE", "VALUE", "TIER")
	for _, name := range names {
		entries := variables[name].Entries()
		varNames := make([]string, 0, len(entries))
		for varName := range entries {
			varNames = append(varNames, varName)
		}
		slices.Sort(varNames)
		for _, varName := range varNames {
			entry := entries[varName]
			_, _ = fmt.Fprintf(w, formatString, name, varName, entry.Value, entry.Tier.String())
		}
	}
	return nil
}
