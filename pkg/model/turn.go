package model

import "github.com/google/uuid"

type TurnID string

// NewTurnID generates a new unique TurnID
func NewTurnID() TurnID {
	return TurnID(uuid.New().String())
}

const (
	ConversationPersonal  = "personal"
	ConversationGroupChat = "groupChat"
	ConversationChannel   = "channel"
)

// Turn is one incoming user message, independent of the chat transport.
type Turn struct {
	ID               TurnID
	UserID           string
	UserName         string
	ConversationID   string
	ConversationType string
	Text             string
}

// IsPersonal reports whether the conversation is one-to-one. Transports that
// do not report a scope are treated as personal.
func (t *Turn) IsPersonal() bool {
	return t.ConversationType == "" || t.ConversationType == ConversationPersonal
}

// Outcome is how a turn ended.
type Outcome string

const (
	OutcomeAnswered        Outcome = "answered"
	OutcomeEcho            Outcome = "echo"
	OutcomeCleared         Outcome = "cleared"
	OutcomeMissingIdentity Outcome = "missing_identity"
	OutcomeIdentityError   Outcome = "identity_error"
	OutcomeDenied          Outcome = "access_denied"
	OutcomeBackendError    Outcome = "backend_error"
)
