// Package serve runs the scheduler as a long-running service: the JSON API,
// the Prometheus metrics endpoint and, when a token is configured, the Slack
// bot.
package serve

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/clambin/go-common/charmer"
	"github.com/clambin/go-common/slackbot"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/slack-go/slack"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/clambin/tado-scheduler/internal/bot"
	"github.com/clambin/tado-scheduler/internal/manager"
	"github.com/clambin/tado-scheduler/internal/notifier"
	"github.com/clambin/tado-scheduler/internal/schedule"
	"github.com/clambin/tado-scheduler/internal/server"
	"github.com/clambin/tado-scheduler/internal/state"
	"github.com/clambin/tado-scheduler/internal/tadoclient"
)

var Cmd = cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context(), viper.GetViper(), cmd.Root().Version, charmer.GetLogger(cmd))
	},
}

func run(ctx context.Context, v *viper.Viper, version string, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dataDir := v.GetString("data.dir")
	store := state.New(dataDir)
	registry := schedule.NewRegistry(os.DirFS(filepath.Join(dataDir, "schedules")), store)

	tadoMetrics := tadoclient.NewMetrics("tado_scheduler", "", nil)
	prometheus.MustRegister(tadoMetrics)
	client := tadoclient.New(
		v.GetString("tado.username"),
		v.GetString("tado.password"),
		v.GetString("tado.clientSecret"),
		logger.With(slog.String("component", "tado")),
		tadoclient.WithMetrics(tadoMetrics),
	)

	notifiers := notifier.Notifiers{
		&notifier.SLogNotifier{Logger: logger.With(slog.String("component", "notifier"))},
	}

	var app *slackbot.SlackBot
	if token := v.GetString("slack.token"); token != "" {
		app = slackbot.New(
			token,
			slackbot.WithName("tado-scheduler "+version),
			slackbot.WithLogger(logger.With(slog.String("component", "slackbot"))),
		)
		notifiers = append(notifiers, &notifier.SlackNotifier{
			Logger:      logger.With(slog.String("component", "notifier")),
			SlackSender: slack.New(token),
		})
	}

	mgr := manager.New(client, registry, store, notifiers, logger.With(slog.String("component", "manager")))
	api := server.New(version, v.GetString("server.apiKey"), mgr, registry, client, logger.With(slog.String("component", "server")))

	httpServer := http.Server{Addr: v.GetString("server.addr"), Handler: api}

	var group errgroup.Group
	group.Go(func() error {
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if app != nil {
		b := bot.New(app, mgr, registry, client, logger.With(slog.String("component", "bot")))
		group.Go(func() error { return b.Run(ctx) })
	}

	logger.Info("tado-scheduler started", slog.String("version", version), slog.String("addr", httpServer.Addr))
	defer logger.Info("tado-scheduler stopped")
	return group.Wait()
}
