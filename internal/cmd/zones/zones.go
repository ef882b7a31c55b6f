// Package zones reports the zones configured on the Tadoº account, with the
// keys a schedule file should use to refer to them.
package zones

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/clambin/go-common/charmer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/clambin/tado-scheduler/internal/tadoclient"
)

var Cmd = cobra.Command{
	Use:   "zones",
	Short: "List the zones on the Tadoº account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		v := viper.GetViper()
		client := tadoclient.New(
			v.GetString("tado.username"),
			v.GetString("tado.password"),
			v.GetString("tado.clientSecret"),
			charmer.GetLogger(cmd),
		)
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return showZones(cmd.Context(), client, encoder)
	},
}

type ZoneLister interface {
	Zones(context.Context) ([]tadoclient.Zone, error)
}

type Encoder interface {
	Encode(any) error
}

type entry struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Key  string `json:"key"`
}

func showZones(ctx context.Context, c ZoneLister, e Encoder) error {
	zones, err := c.Zones(ctx)
	if err != nil {
		return fmt.Errorf("tado: zones: %w", err)
	}
	report := make([]entry, 0, len(zones))
	for _, zone := range zones {
		report = append(report, entry{
			ID:   zone.ID,
			Name: zone.Name,
			Key:  strings.ReplaceAll(strings.ToLower(zone.Name), " ", "_"),
		})
	}
	return e.Encode(report)
}
