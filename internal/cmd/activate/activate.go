// Package activate compiles a schedule and pushes it to the thermostats.
package activate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/clambin/go-common/charmer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/clambin/tado-scheduler/internal/manager"
	"github.com/clambin/tado-scheduler/internal/notifier"
	"github.com/clambin/tado-scheduler/internal/schedule"
	"github.com/clambin/tado-scheduler/internal/state"
	"github.com/clambin/tado-scheduler/internal/tadoclient"
)

var Cmd = cobra.Command{
	Use:   "activate [schedule] [variable=value ...]",
	Short: "Activate a schedule on the thermostats",
	RunE: func(cmd *cobra.Command, args []string) error {
		refresh, _ := cmd.Flags().GetBool("refresh")
		return activate(cmd.Context(), viper.GetViper(), args, refresh, charmer.GetLogger(cmd))
	},
}

func init() {
	Cmd.Flags().Bool("refresh", false, "Re-resolve the active schedule's variables")
}

func activate(ctx context.Context, v *viper.Viper, args []string, refresh bool, logger *slog.Logger) error {
	var name string
	if len(args) > 0 {
		name = args[0]
		args = args[1:]
	}
	if name == "" && !refresh {
		return fmt.Errorf("missing schedule name")
	}
	overrides, err := parseOverrides(args)
	if err != nil {
		return err
	}

	dataDir := v.GetString("data.dir")
	store := state.New(dataDir)
	registry := schedule.NewRegistry(os.DirFS(filepath.Join(dataDir, "schedules")), store)
	client := tadoclient.New(
		v.GetString("tado.username"),
		v.GetString("tado.password"),
		v.GetString("tado.clientSecret"),
		logger.With(slog.String("component", "tado")),
	)
	mgr := manager.New(client, registry, store, &notifier.SLogNotifier{Logger: logger}, logger)

	return mgr.Activate(ctx, name, refresh, overrides)
}

func parseOverrides(args []string) (map[string]string, error) {
	overrides := make(map[string]string, len(args))
	for _, arg := range args {
		name, value, found := strings.Cut(arg, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("invalid variable override: %q", arg)
		}
		overrides[name] = value
	}
	return overrides, nil
}
