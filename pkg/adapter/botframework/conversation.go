package botframework

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/knowbot/pkg/model"
)

const (
	DefaultStreamInterval = time.Second

	streamTypeInformative = "informative"
	streamTypeStreaming   = "streaming"
	streamTypeFinal       = "final"
)

// Conversation delivers replies for one inbound activity. It implements
// both interfaces.Replier and interfaces.Streamer.
type Conversation struct {
	sender   Sender
	inbound  *Activity
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	streamID string
	sequence int
	lastSent time.Time
}

type ConversationOption func(*Conversation)

// WithStreamInterval sets the minimum gap between streamed updates.
func WithStreamInterval(d time.Duration) ConversationOption {
	return func(c *Conversation) {
		c.interval = d
	}
}

func WithClock(now func() time.Time) ConversationOption {
	return func(c *Conversation) {
		c.now = now
	}
}

func NewConversation(sender Sender, inbound *Activity, opts ...ConversationOption) *Conversation {
	c := &Conversation{
		sender:   sender,
		inbound:  inbound,
		interval: DefaultStreamInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Conversation) send(ctx context.Context, activity *Activity) (string, error) {
	conversationID := ""
	if c.inbound.Conversation != nil {
		conversationID = c.inbound.Conversation.ID
	}
	id, err := c.sender.SendActivity(ctx, c.inbound.ServiceURL, conversationID, activity)
	if err != nil {
		return "", goerr.Wrap(err, "failed to deliver activity",
			goerr.V("conversation_id", conversationID),
			goerr.V("type", activity.Type))
	}
	return id, nil
}

func (c *Conversation) SendText(ctx context.Context, text string) error {
	reply := c.inbound.Reply(ActivityMessage)
	reply.Text = text
	reply.TextFormat = "markdown"
	_, err := c.send(ctx, reply)
	return err
}

func (c *Conversation) SendAttachment(ctx context.Context, text string, attachments ...model.Attachment) error {
	reply := c.inbound.Reply(ActivityMessage)
	reply.Text = text
	reply.TextFormat = "markdown"
	reply.Attachments = attachments
	_, err := c.send(ctx, reply)
	return err
}

func (c *Conversation) SendTyping(ctx context.Context) error {
	_, err := c.send(ctx, c.inbound.Reply(ActivityTyping))
	return err
}

// CanStream reports whether the inbound channel accepts streamed replies.
func (c *Conversation) CanStream() bool {
	return SupportsStreaming(c.inbound.ChannelID)
}

// StreamInformative shows a status line such as "Searching HR...".
func (c *Conversation) StreamInformative(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendChunk(ctx, streamTypeInformative, text)
}

// StreamUpdate sends the text produced so far. Updates arriving faster than
// the stream interval are dropped; the final message always carries the
// complete text.
func (c *Conversation) StreamUpdate(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sequence > 0 && c.now().Sub(c.lastSent) < c.interval {
		return nil
	}
	return c.sendChunk(ctx, streamTypeStreaming, text)
}

// StreamFinish closes the stream with the full reply. Without a prior
// update it is sent as a plain message.
func (c *Conversation) StreamFinish(ctx context.Context, text string, attachments ...model.Attachment) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	reply := c.inbound.Reply(ActivityMessage)
	reply.Text = text
	reply.TextFormat = "markdown"
	reply.Attachments = attachments
	reply.Entities = []Entity{aiGeneratedEntity()}
	if c.streamID != "" {
		reply.Entities = append(reply.Entities, Entity{
			"type":       "streaminfo",
			"streamId":   c.streamID,
			"streamType": streamTypeFinal,
		})
		reply.ChannelData = map[string]any{
			"streamId":   c.streamID,
			"streamType": streamTypeFinal,
		}
	}

	_, err := c.send(ctx, reply)
	return err
}

func (c *Conversation) sendChunk(ctx context.Context, streamType, text string) error {
	c.sequence++
	info := Entity{
		"type":           "streaminfo",
		"streamType":     streamType,
		"streamSequence": c.sequence,
	}
	channelData := map[string]any{
		"streamType":     streamType,
		"streamSequence": c.sequence,
	}
	if c.streamID != "" {
		info["streamId"] = c.streamID
		channelData["streamId"] = c.streamID
	}

	activity := c.inbound.Reply(ActivityTyping)
	activity.Text = text
	activity.Entities = []Entity{info}
	activity.ChannelData = channelData

	id, err := c.send(ctx, activity)
	if err != nil {
		return err
	}
	if c.streamID == "" {
		c.streamID = id
	}
	c.lastSent = c.now()
	return nil
}

func aiGeneratedEntity() Entity {
	return Entity{
		"type":           "https://schema.org/Message",
		"@type":          "Message",
		"@context":       "https://schema.org",
		"additionalType": []string{"AIGeneratedContent"},
	}
}
