// Package botframework talks to Azure Bot Service: it decodes inbound
// activities, verifies their tokens and sends replies back through the
// channel's connector.
package botframework

import (
	"regexp"
	"strings"

	"github.com/m-mizutani/knowbot/pkg/model"
)

const (
	ActivityMessage            = "message"
	ActivityTyping             = "typing"
	ActivityConversationUpdate = "conversationUpdate"

	ChannelTeams      = "msteams"
	ChannelDirectLine = "directline"
	ChannelWebChat    = "webchat"
	ChannelEmulator   = "emulator"
)

type ChannelAccount struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	AADObjectID string `json:"aadObjectId,omitempty"`
}

type ConversationAccount struct {
	ID               string `json:"id,omitempty"`
	ConversationType string `json:"conversationType,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
	IsGroup          bool   `json:"isGroup,omitempty"`
}

// Entity is kept loosely typed; only streaminfo and mention entities are
// produced or read here.
type Entity map[string]any

// Activity is the subset of the Bot Framework activity schema the bot uses.
type Activity struct {
	Type         string               `json:"type"`
	ID           string               `json:"id,omitempty"`
	ServiceURL   string               `json:"serviceUrl,omitempty"`
	ChannelID    string               `json:"channelId,omitempty"`
	From         *ChannelAccount      `json:"from,omitempty"`
	Conversation *ConversationAccount `json:"conversation,omitempty"`
	Recipient    *ChannelAccount      `json:"recipient,omitempty"`
	Text         string               `json:"text,omitempty"`
	TextFormat   string               `json:"textFormat,omitempty"`
	ReplyToID    string               `json:"replyToId,omitempty"`
	Attachments  []model.Attachment   `json:"attachments,omitempty"`
	Entities     []Entity             `json:"entities,omitempty"`
	MembersAdded []ChannelAccount     `json:"membersAdded,omitempty"`
	ChannelData  map[string]any       `json:"channelData,omitempty"`
}

var mentionPattern = regexp.MustCompile(`(?s)<at>.*?</at>`)

// Turn converts a message activity into a transport independent turn.
// Mentions of the bot in group chats are stripped from the text.
func (a *Activity) Turn() *model.Turn {
	turn := &model.Turn{
		ID:   model.NewTurnID(),
		Text: strings.TrimSpace(mentionPattern.ReplaceAllString(a.Text, "")),
	}
	if a.From != nil {
		turn.UserID = a.From.AADObjectID
		turn.UserName = a.From.Name
	}
	if turn.UserName == "" {
		turn.UserName = "User"
	}
	if a.Conversation != nil {
		turn.ConversationID = a.Conversation.ID
		turn.ConversationType = a.Conversation.ConversationType
	}
	return turn
}

// AddedMembers returns members added to the conversation, excluding the bot.
func (a *Activity) AddedMembers() []ChannelAccount {
	var out []ChannelAccount
	for _, m := range a.MembersAdded {
		if a.Recipient != nil && m.ID == a.Recipient.ID {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Reply creates an outgoing activity addressed back to the sender.
func (a *Activity) Reply(activityType string) *Activity {
	reply := &Activity{
		Type:         activityType,
		ServiceURL:   a.ServiceURL,
		ChannelID:    a.ChannelID,
		Conversation: a.Conversation,
		ReplyToID:    a.ID,
	}
	if a.Recipient != nil {
		from := *a.Recipient
		reply.From = &from
	}
	if a.From != nil {
		to := *a.From
		reply.Recipient = &to
	}
	return reply
}

// SupportsStreaming reports whether the channel accepts incremental replies.
func SupportsStreaming(channelID string) bool {
	switch channelID {
	case ChannelTeams, ChannelDirectLine, ChannelWebChat:
		return true
	default:
		return false
	}
}
