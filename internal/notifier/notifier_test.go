package notifier

import (
	"log/slog"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatVariables(t *testing.T) {
	assert.Equal(t, "", formatVariables(nil))
	assert.Equal(t, "sleep=23:00, wake=07:00", formatVariables(map[string]string{
		"wake":  "07:00",
		"sleep": "23:00",
	}))
}

type countingNotifier struct {
	count int
}

func (c *countingNotifier) Notify(_ string, _ map[string]string) {
	c.count++
}

func TestNotifiers(t *testing.T) {
	a := &countingNotifier{}
	b := &countingNotifier{}
	Notifiers{a, b}.Notify("workday", nil)
	assert.Equal(t, 1, a.count)
	assert.Equal(t, 1, b.count)
}

type fakeSlackSender struct {
	posted map[string][]slack.Attachment
}

func (f *fakeSlackSender) PostMessage(channelID string, options ...slack.MsgOption) (string, string, error) {
	f.posted[channelID] = append(f.posted[channelID], slack.Attachment{})
	return "", "", nil
}

func (f *fakeSlackSender) GetConversations(params *slack.GetConversationsParameters) ([]slack.Channel, string, error) {
	if params.Cursor == "" {
		channel := slack.Channel{IsMember: true}
		channel.ID = "C1"
		channel.Name = "general"
		archived := slack.Channel{IsMember: true}
		archived.ID = "C2"
		archived.IsArchived = true
		return []slack.Channel{channel, archived}, "next", nil
	}
	notMember := slack.Channel{}
	notMember.ID = "C3"
	return []slack.Channel{notMember}, "", nil
}

func (f *fakeSlackSender) AuthTest() (*slack.AuthTestResponse, error) {
	return &slack.AuthTestResponse{UserID: "U1"}, nil
}

func TestSlackNotifier(t *testing.T) {
	sender := &fakeSlackSender{posted: make(map[string][]slack.Attachment)}
	n := SlackNotifier{Logger: slog.Default(), SlackSender: sender}

	n.Notify("workday", map[string]string{"wake": "07:00"})

	// only joined, unarchived channels get the message
	require.Len(t, sender.posted, 1)
	assert.Len(t, sender.posted["C1"], 1)
	assert.Equal(t, "U1", n.userID)
}
