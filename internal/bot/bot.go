// Package bot exposes the scheduler as Slack slash commands.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"github.com/clambin/tado-scheduler/internal/schedule"
	"github.com/clambin/tado-scheduler/internal/state"
	"github.com/clambin/tado-scheduler/internal/tadoclient"
)

type Bot struct {
	SlackApp
	manager   Manager
	schedules ScheduleSource
	presence  PresenceClient
	logger    *slog.Logger
}

type Manager interface {
	Activate(ctx context.Context, name string, refresh bool, overrides map[string]string) error
	ActiveSchedule() (state.ActiveSchedule, error)
}

type ScheduleSource interface {
	Variables(schedule.Request) (map[string]*schedule.Variables, error)
}

type PresenceClient interface {
	SetPresence(context.Context, string) error
}

type SlackApp interface {
	AddSlashCommand(string, func(slack.SlashCommand, *socketmode.Client))
	Run(ctx context.Context) error
}

func New(app SlackApp, manager Manager, schedules ScheduleSource, presence PresenceClient, logger *slog.Logger) *Bot {
	b := Bot{
		SlackApp:  app,
		manager:   manager,
		schedules: schedules,
		presence:  presence,
		logger:    logger,
	}

	b.SlackApp.AddSlashCommand("/schedules", b.doAndPost(b.onSchedules))
	b.SlackApp.AddSlashCommand("/active", b.doAndPost(b.onActive))
	b.SlackApp.AddSlashCommand("/activate", b.doAndPost(b.onActivate))
	b.SlackApp.AddSlashCommand("/sethome", b.doAndPost(b.onSetHome))
	b.SlackApp.AddSlashCommand("/refresh", b.doAndPost(b.onRefresh))

	return &b
}

// Run the bot until the context is canceled.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Debug("bot started")
	defer b.logger.Debug("bot stopped")
	if err := b.SlackApp.Run(ctx); err != nil {
		return fmt.Errorf("bot: %w", err)
	}
	return nil
}

func (b *Bot) onSchedules(_ context.Context, _ ...string) slack.Attachment {
	variables, err := b.schedules.Variables(schedule.Request{})
	if err != nil {
		return slack.Attachment{Color: "bad", Text: err.Error()}
	}

	text := make([]string, 0, len(variables))
	for name, vars := range variables {
		text = append(text, name+": "+formatValues(vars.Values()))
	}

	slackColor := "bad"
	slackTitle := ""
	slackText := "no schedules found"

	if len(text) > 0 {
		slackColor = "good"
		slackTitle = "schedules:"
		slices.Sort(text)
		slackText = strings.Join(text, "\n")
	}

	return slack.Attachment{
		Color: slackColor,
		Title: slackTitle,
		Text:  slackText,
	}
}

func (b *Bot) onActive(_ context.Context, _ ...string) slack.Attachment {
	record, err := b.manager.ActiveSchedule()
	if err != nil {
		return slack.Attachment{Color: "bad", Text: "no active schedule: " + err.Error()}
	}
	var values map[string]string
	if record.Variables != nil {
		values = record.Variables.Values()
	}
	return slack.Attachment{
		Color: "good",
		Title: "active schedule: " + record.Schedule,
		Text:  formatValues(values),
	}
}

func (b *Bot) onActivate(ctx context.Context, args ...string) slack.Attachment {
	if len(args) == 0 {
		return slack.Attachment{Color: "bad", Text: "missing schedule name\nUsage: /activate <schedule> [variable=value ...]"}
	}
	name := args[0]
	overrides, err := parseOverrides(args[1:])
	if err != nil {
		return slack.Attachment{Color: "bad", Text: "invalid command: " + err.Error()}
	}
	if err = b.manager.Activate(ctx, name, false, overrides); err != nil {
		return slack.Attachment{Color: "bad", Text: "failed: " + err.Error()}
	}
	return slack.Attachment{Color: "good", Text: "activated schedule " + name}
}

func (b *Bot) onSetHome(ctx context.Context, args ...string) slack.Attachment {
	if len(args) != 1 {
		return slack.Attachment{Color: "bad", Text: "missing parameter\nUsage: /sethome [home|away]"}
	}

	var presence string
	switch args[0] {
	case "home":
		presence = tadoclient.PresenceHome
	case "away":
		presence = tadoclient.PresenceAway
	default:
		return slack.Attachment{Color: "bad", Text: "missing parameter\nUsage: /sethome [home|away]"}
	}

	if err := b.presence.SetPresence(ctx, presence); err != nil {
		return slack.Attachment{Color: "bad", Text: "failed: " + err.Error()}
	}
	return slack.Attachment{Color: "good", Text: "set home to " + args[0] + " mode"}
}

func (b *Bot) onRefresh(ctx context.Context, _ ...string) slack.Attachment {
	if err := b.manager.Activate(ctx, "", true, nil); err != nil {
		return slack.Attachment{Color: "bad", Text: "failed: " + err.Error()}
	}
	return slack.Attachment{Color: "good", Text: "refreshed the active schedule"}
}

func (b *Bot) doAndPost(f func(context.Context, ...string) slack.Attachment) func(cmd slack.SlashCommand, c *socketmode.Client) {
	return func(cmd slack.SlashCommand, c *socketmode.Client) {
		a := f(context.Background(), tokenizeText(cmd.Text)...)
		if _, _, err := c.PostMessage(cmd.ChannelID, slack.MsgOptionAttachments(a)); err != nil {
			b.logger.Error("failed to post response", "err", err)
		}
	}
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

func formatValues(values map[string]string) string {
	pairs := make([]string, 0, len(values))
	for name, value := range values {
		pairs = append(pairs, name+"="+value)
	}
	slices.Sort(pairs)
	return strings.Join(pairs, ", ")
}

func tokenizeText(input string) []string {
	cleanInput := input
	for _, quote := range []string{"“", "”", "'"} {
		cleanInput = strings.ReplaceAll(cleanInput, quote, "\"")
	}
	r := regexp.MustCompile(`[^\s"]+|"([^"]*)"`)
	output := r.FindAllString(cleanInput, -1)

	for index, word := range output {
		output[index] = strings.Trim(word, "\"")
	}
	return output
}
