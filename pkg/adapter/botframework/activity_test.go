package botframework_test

import (
	"encoding/json"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/knowbot/pkg/adapter/botframework"
)

const inboundMessage = `{
  "type": "message",
  "id": "1700000000000",
  "serviceUrl": "https://smba.trafficmanager.net/amer/",
  "channelId": "msteams",
  "from": {"id": "29:abc", "name": "Alice", "aadObjectId": "11111111-2222-3333-4444-555555555555"},
  "conversation": {"id": "a:conv-1", "conversationType": "personal", "tenantId": "tenant"},
  "recipient": {"id": "28:bot", "name": "KnowBot"},
  "text": "<at>KnowBot</at> What is the leave policy?"
}`

func TestActivityTurn(t *testing.T) {
	var act botframework.Activity
	gt.NoError(t, json.Unmarshal([]byte(inboundMessage), &act))

	turn := act.Turn()
	gt.Equal(t, turn.UserID, "11111111-2222-3333-4444-555555555555")
	gt.Equal(t, turn.UserName, "Alice")
	gt.Equal(t, turn.ConversationID, "a:conv-1")
	gt.Equal(t, turn.ConversationType, "personal")
	gt.Equal(t, turn.Text, "What is the leave policy?")
	gt.True(t, turn.IsPersonal())
	gt.NotEqual(t, string(turn.ID), "")
}

func TestActivityTurnWithoutIdentity(t *testing.T) {
	act := botframework.Activity{Type: botframework.ActivityMessage, Text: "hi"}
	turn := act.Turn()
	gt.Equal(t, turn.UserID, "")
	gt.Equal(t, turn.UserName, "User")
}

func TestActivityReply(t *testing.T) {
	var act botframework.Activity
	gt.NoError(t, json.Unmarshal([]byte(inboundMessage), &act))

	reply := act.Reply(botframework.ActivityMessage)
	gt.Equal(t, reply.From.ID, "28:bot")
	gt.Equal(t, reply.Recipient.ID, "29:abc")
	gt.Equal(t, reply.ReplyToID, "1700000000000")
	gt.Equal(t, reply.Conversation.ID, "a:conv-1")
	gt.Equal(t, reply.ServiceURL, act.ServiceURL)
}

func TestActivityAddedMembers(t *testing.T) {
	act := botframework.Activity{
		Type:      botframework.ActivityConversationUpdate,
		Recipient: &botframework.ChannelAccount{ID: "28:bot"},
		MembersAdded: []botframework.ChannelAccount{
			{ID: "28:bot"},
			{ID: "29:alice"},
		},
	}
	members := act.AddedMembers()
	gt.A(t, members).Length(1)
	gt.Equal(t, members[0].ID, "29:alice")
}

func TestSupportsStreaming(t *testing.T) {
	gt.True(t, botframework.SupportsStreaming("msteams"))
	gt.True(t, botframework.SupportsStreaming("webchat"))
	gt.False(t, botframework.SupportsStreaming("emulator"))
	gt.False(t, botframework.SupportsStreaming(""))
}
