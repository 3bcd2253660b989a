package interfaces

import (
	"context"
	"iter"

	"github.com/m-mizutani/knowbot/pkg/model"
)

// Directory resolves a chat user id to profile and group membership.
// Any failure is reported as an error wrapping model.ErrIdentity.
type Directory interface {
	GetUser(ctx context.Context, userID string) (*model.UserInfo, error)
}

// Backend is the retrieval backend that answers questions over notebooks.
type Backend interface {
	// Stream issues a question and yields typed chunks. An error ends the
	// sequence and wraps model.ErrBackend.
	Stream(ctx context.Context, query *model.Query) iter.Seq2[*model.Chunk, error]

	// Complete runs a non-streaming completion over the given messages.
	Complete(ctx context.Context, messages []model.Message, notebooks []string) (string, error)
}

// Replier delivers messages for one turn.
type Replier interface {
	SendText(ctx context.Context, text string) error
	SendAttachment(ctx context.Context, text string, attachments ...model.Attachment) error
	SendTyping(ctx context.Context) error
}

// Streamer is implemented by transports that can deliver a reply
// incrementally. Update always receives the full text produced so far.
type Streamer interface {
	CanStream() bool
	StreamInformative(ctx context.Context, text string) error
	StreamUpdate(ctx context.Context, text string) error
	StreamFinish(ctx context.Context, text string, attachments ...model.Attachment) error
}

// PolicySource loads the raw access-control document.
type PolicySource interface {
	Load(ctx context.Context) ([]byte, error)
	String() string
}
