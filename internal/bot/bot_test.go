package bot

import (
	"context"
	"log/slog"
	"testing"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clambin/tado-scheduler/internal/schedule"
	"github.com/clambin/tado-scheduler/internal/state"
)

type fakeSlackApp struct {
	commands map[string]func(slack.SlashCommand, *socketmode.Client)
}

func (f *fakeSlackApp) AddSlashCommand(command string, handler func(slack.SlashCommand, *socketmode.Client)) {
	f.commands[command] = handler
}

func (f *fakeSlackApp) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

type fakeManager struct {
	activated string
	refreshed bool
	overrides map[string]string
	err       error
}

func (f *fakeManager) Activate(_ context.Context, name string, refresh bool, overrides map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.activated = name
	f.refreshed = refresh
	f.overrides = overrides
	return nil
}

func (f *fakeManager) ActiveSchedule() (state.ActiveSchedule, error) {
	if f.err != nil {
		return state.ActiveSchedule{}, f.err
	}
	variables := schedule.NewVariables()
	variables.AddDefaults(map[string]string{"wake": "07:00"})
	return state.ActiveSchedule{Schedule: "workday", Variables: variables}, nil
}

type fakeSource struct{}

func (f fakeSource) Variables(_ schedule.Request) (map[string]*schedule.Variables, error) {
	workday := schedule.NewVariables()
	workday.AddDefaults(map[string]string{"wake": "07:00"})
	return map[string]*schedule.Variables{"workday": workday, "weekend": schedule.NewVariables()}, nil
}

type fakePresence struct {
	presence string
}

func (f *fakePresence) SetPresence(_ context.Context, presence string) error {
	f.presence = presence
	return nil
}

func makeBot() (*Bot, *fakeSlackApp, *fakeManager, *fakePresence) {
	app := &fakeSlackApp{commands: make(map[string]func(slack.SlashCommand, *socketmode.Client))}
	mgr := &fakeManager{}
	presence := &fakePresence{}
	b := New(app, mgr, fakeSource{}, presence, slog.Default())
	return b, app, mgr, presence
}

func TestBot_RegistersCommands(t *testing.T) {
	_, app, _, _ := makeBot()
	for _, command := range []string{"/schedules", "/active", "/activate", "/sethome", "/refresh"} {
		assert.Contains(t, app.commands, command)
	}
}

func TestBot_OnSchedules(t *testing.T) {
	b, _, _, _ := makeBot()
	a := b.onSchedules(context.Background())
	assert.Equal(t, "good", a.Color)
	assert.Equal(t, "schedules:", a.Title)
	assert.Equal(t, "weekend: \nworkday: wake=07:00", a.Text)
}

func TestBot_OnActive(t *testing.T) {
	b, _, mgr, _ := makeBot()
	a := b.onActive(context.Background())
	assert.Equal(t, "active schedule: workday", a.Title)
	assert.Equal(t, "wake=07:00", a.Text)

	mgr.err = assert.AnError
	a = b.onActive(context.Background())
	assert.Equal(t, "bad", a.Color)
}

func TestBot_OnActivate(t *testing.T) {
	b, _, mgr, _ := makeBot()

	a := b.onActivate(context.Background(), "workday", "wake=08:00")
	assert.Equal(t, "good", a.Color)
	assert.Equal(t, "workday", mgr.activated)
	assert.False(t, mgr.refreshed)
	assert.Equal(t, map[string]string{"wake": "08:00"}, mgr.overrides)

	a = b.onActivate(context.Background())
	assert.Equal(t, "bad", a.Color)

	a = b.onActivate(context.Background(), "workday", "=broken")
	assert.Equal(t, "bad", a.Color)

	mgr.err = assert.AnError
	a = b.onActivate(context.Background(), "workday")
	assert.Equal(t, "bad", a.Color)
}

func TestBot_OnSetHome(t *testing.T) {
	b, _, _, presence := makeBot()

	a := b.onSetHome(context.Background(), "away")
	assert.Equal(t, "good", a.Color)
	assert.Equal(t, "AWAY", presence.presence)

	a = b.onSetHome(context.Background(), "home")
	assert.Equal(t, "HOME", presence.presence)
	require.Equal(t, "good", a.Color)

	a = b.onSetHome(context.Background(), "auto")
	assert.Equal(t, "bad", a.Color)

	a = b.onSetHome(context.Background())
	assert.Equal(t, "bad", a.Color)
}

func TestBot_OnRefresh(t *testing.T) {
	b, _, mgr, _ := makeBot()
	a := b.onRefresh(context.Background())
	assert.Equal(t, "good", a.Color)
	assert.Equal(t, "", mgr.activated)
	assert.True(t, mgr.refreshed)
}

func TestTokenizeText(t *testing.T) {
	assert.Equal(t, []string{"workday", "wake=08:00"}, tokenizeText("workday wake=08:00"))
	assert.Equal(t, []string{"guest night", "wake=08:00"}, tokenizeText(`"guest night" wake=08:00`))
	assert.Equal(t, []string{"guest night"}, tokenizeText("“guest night”"))
}
