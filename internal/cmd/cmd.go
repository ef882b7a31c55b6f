// Package cmd implements the tado-scheduler command line interface.
package cmd

import (
	"errors"
	"log/slog"
	"os"

	"github.com/clambin/go-common/charmer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/clambin/tado-scheduler/internal/cmd/activate"
	"github.com/clambin/tado-scheduler/internal/cmd/schedules"
	"github.com/clambin/tado-scheduler/internal/cmd/serve"
	"github.com/clambin/tado-scheduler/internal/cmd/zones"
)

var (
	configFilename string
	RootCmd        = cobra.Command{
		Use:   "tado-scheduler",
		Short: "Schedule compiler for Tadoº thermostats",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			charmer.SetJSONLogger(cmd, viper.GetBool("debug"))
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&configFilename, "config", "", "Configuration file")
	RootCmd.PersistentFlags().Bool("debug", false, "Log debug messages")
	_ = viper.BindPFlag("debug", RootCmd.PersistentFlags().Lookup("debug"))

	RootCmd.AddCommand(&serve.Cmd, &schedules.Cmd, &activate.Cmd, &zones.Cmd)
}

var args = charmer.Arguments{
	"debug":             charmer.Argument{Default: false, Help: "Log debug messages"},
	"tado.username":     charmer.Argument{Default: "", Help: "Tadoº username"},
	"tado.password":     charmer.Argument{Default: "", Help: "Tadoº password"},
	"tado.clientSecret": charmer.Argument{Default: "", Help: "Tadoº client secret"},
	"data.dir":          charmer.Argument{Default: "/var/lib/tado-scheduler", Help: "Directory holding schedules and state"},
	"server.addr":       charmer.Argument{Default: ":8080", Help: "Address of the API server"},
	"server.apiKey":     charmer.Argument{Default: "", Help: "API key for the API server"},
	"slack.token":       charmer.Argument{Default: "", Help: "Slack token"},
}

func initConfig() {
	if configFilename != "" {
		viper.SetConfigFile(configFilename)
	} else {
		viper.AddConfigPath("/etc/tado-scheduler/")
		viper.AddConfigPath("$HOME/.tado-scheduler")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
	}

	if err := charmer.SetDefaults(viper.GetViper(), args); err != nil {
		panic("failed to set viper defaults: " + err.Error())
	}

	viper.SetEnvPrefix("TADO_SCHEDULER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Error("failed to read config file", "err", err)
			os.Exit(1)
		}
	}
}
