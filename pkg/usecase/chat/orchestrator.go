// Package chat runs one user turn end to end: identity, access control,
// the backend call and reply delivery.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/knowbot/pkg/interfaces"
	"github.com/m-mizutani/knowbot/pkg/model"
	"github.com/m-mizutani/knowbot/pkg/session"
	"github.com/m-mizutani/knowbot/pkg/utils/logging"
)

// User facing messages. Internal error text never reaches the chat.
const (
	MsgWelcome         = "Hello! I'm the NotebookLM Bot.\n\nAsk me anything about your organization's knowledge bases."
	MsgMissingIdentity = "Unable to identify your account. Please ensure you're signed into Teams with your work account."
	MsgIdentityError   = "Unable to verify your permissions. Please try again later."
	MsgAccessDenied    = "You don't have access to any knowledge bases.\nPlease contact your administrator for access."
	MsgBackendError    = "I encountered an error. Please try again."
	MsgCleared         = "Conversation memory cleared. I'll treat your next message as a fresh conversation."

	clearCommand = "/clear"
)

// Policy answers access questions against the current ACL snapshot.
type Policy interface {
	Resolve(groupIDs []string) model.Access
	NotebookName(id string) (string, bool)
}

// Metrics receives turn level observations.
type Metrics interface {
	ObserveTurn(outcome model.Outcome)
	ObserveBackend(mode string, d time.Duration)
}

type Orchestrator struct {
	directory    interfaces.Directory
	policy       Policy
	backend      interfaces.Backend
	continuation *session.Continuation
	memory       *session.Memory
	metrics      Metrics

	enableRewrite  bool
	enableFollowup bool
}

type Option func(*Orchestrator)

func WithDirectory(d interfaces.Directory) Option {
	return func(o *Orchestrator) {
		o.directory = d
	}
}

func WithPolicy(p Policy) Option {
	return func(o *Orchestrator) {
		o.policy = p
	}
}

// WithBackend enables answering. Without a backend, granted users get an
// echo of their message with the notebooks they could query.
func WithBackend(b interfaces.Backend) Option {
	return func(o *Orchestrator) {
		o.backend = b
	}
}

func WithContinuation(c *session.Continuation) Option {
	return func(o *Orchestrator) {
		o.continuation = c
	}
}

func WithMemory(m *session.Memory) Option {
	return func(o *Orchestrator) {
		o.memory = m
	}
}

func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithRewrite turns follow-up questions into standalone ones using the
// conversation memory before they are sent to the backend.
func WithRewrite(enabled bool) Option {
	return func(o *Orchestrator) {
		o.enableRewrite = enabled
	}
}

// WithFollowup suggests follow-up questions after each answer.
func WithFollowup(enabled bool) Option {
	return func(o *Orchestrator) {
		o.enableFollowup = enabled
	}
}

// New creates an orchestrator. Without a directory or policy the bot runs
// in plain echo mode and performs no access control.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type nopMetrics struct{}

func (nopMetrics) ObserveTurn(model.Outcome)            {}
func (nopMetrics) ObserveBackend(string, time.Duration) {}

func (o *Orchestrator) aclEnabled() bool {
	return o.directory != nil && o.policy != nil
}

// Welcome greets a user who added the bot.
func (o *Orchestrator) Welcome(ctx context.Context, replier interfaces.Replier) error {
	return replier.SendText(ctx, MsgWelcome)
}

// HandleTurn processes one user message. If replier also implements
// interfaces.Streamer and the conversation is personal, the answer is
// streamed. Every failure is answered with a fixed message and reported
// through the returned outcome.
func (o *Orchestrator) HandleTurn(ctx context.Context, turn *model.Turn, replier interfaces.Replier) model.Outcome {
	ctx = logging.WithAttrs(ctx,
		"turn_id", turn.ID,
		"user_id", turn.UserID,
		"conversation_id", turn.ConversationID)

	outcome := o.handle(ctx, turn, replier)
	o.metrics.ObserveTurn(outcome)
	logging.From(ctx).Info("turn_done", "outcome", outcome)
	return outcome
}

func (o *Orchestrator) handle(ctx context.Context, turn *model.Turn, replier interfaces.Replier) model.Outcome {
	logger := logging.From(ctx)

	if !o.aclEnabled() {
		logger.Info("echo_mode", "user_name", turn.UserName)
		o.reply(ctx, replier, "**Echo from "+turn.UserName+":** "+turn.Text)
		return model.OutcomeEcho
	}

	if turn.UserID == "" {
		logger.Warn("no_user_id", "user_name", turn.UserName)
		o.reply(ctx, replier, MsgMissingIdentity)
		return model.OutcomeMissingIdentity
	}

	logger.Info("message_received", "user_name", turn.UserName, "message_length", len(turn.Text))

	user, err := o.directory.GetUser(ctx, turn.UserID)
	if err != nil {
		logger.Error("directory_lookup_failed", "error", err)
		o.reply(ctx, replier, MsgIdentityError)
		return model.OutcomeIdentityError
	}

	groupIDs := user.GroupIDs()
	logger.Info("user_authenticated", "user_name", user.DisplayName, "group_count", len(groupIDs))

	access := o.policy.Resolve(groupIDs)
	if access.Denied() {
		logger.Warn("acl_denied", "user_name", user.DisplayName, "group_count", len(groupIDs))
		o.reply(ctx, replier, MsgAccessDenied)
		return model.OutcomeDenied
	}
	logger.Info("acl_granted",
		"user_name", user.DisplayName,
		"wildcard_access", access.IsWildcard(),
		"notebooks", o.describeAccess(access))

	if o.backend == nil {
		o.reply(ctx, replier, "**"+turn.UserName+":** "+turn.Text+"\n\n---\n*Allowed notebooks: "+o.allowedNames(access)+"*")
		return model.OutcomeEcho
	}

	if strings.EqualFold(strings.TrimSpace(turn.Text), clearCommand) {
		o.clear(turn)
		logger.Info("conversation_cleared", "user_name", turn.UserName)
		o.reply(ctx, replier, MsgCleared)
		return model.OutcomeCleared
	}

	return o.answer(ctx, turn, access, replier)
}

func (o *Orchestrator) answer(ctx context.Context, turn *model.Turn, access model.Access, replier interfaces.Replier) model.Outcome {
	logger := logging.From(ctx)

	query := &model.Query{
		Question:  o.rewrite(ctx, turn, access),
		Notebooks: access.IDs(),
		ChatID:    turn.ConversationID,
	}
	if o.continuation != nil {
		if token, ok := o.continuation.Get(turn.UserID); ok {
			query.ContinuationToken = token
		}
	}

	s := o.selectSink(turn, replier)
	logger.Info("nlm_query_start",
		"mode", s.mode(),
		"conversation_type", turn.ConversationType,
		"notebook_count", len(query.Notebooks))

	started := time.Now()
	result, err := o.run(ctx, query, s)
	o.metrics.ObserveBackend(s.mode(), time.Since(started))
	if err != nil {
		logger.Error("nlm_query_failed", "error", err, "mode", s.mode())
		o.reply(ctx, replier, MsgBackendError)
		return model.OutcomeBackendError
	}

	logger.Info("nlm_query_delivered",
		"notebook_id", result.notebookID,
		"finish_reason", result.finishReason,
		"mode", s.mode())

	if o.memory != nil && turn.ConversationID != "" {
		o.memory.AddExchange(turn.ConversationID, turn.Text, result.content)
	}
	if o.continuation != nil && result.continuationToken != "" {
		o.continuation.Set(turn.UserID, result.continuationToken)
	}

	if o.enableFollowup {
		o.suggest(ctx, turn.Text, result.content, access, replier)
	}

	return model.OutcomeAnswered
}

func (o *Orchestrator) clear(turn *model.Turn) {
	if o.memory != nil {
		o.memory.Clear(turn.ConversationID)
	}
	if o.continuation != nil {
		o.continuation.Clear(turn.UserID)
	}
}

func (o *Orchestrator) reply(ctx context.Context, replier interfaces.Replier, text string) {
	if err := replier.SendText(ctx, text); err != nil {
		logging.From(ctx).Error("reply_failed", "error", err)
	}
}

func (o *Orchestrator) notebookName(id string) string {
	if name, ok := o.policy.NotebookName(id); ok {
		return name
	}
	return id
}

func (o *Orchestrator) describeAccess(access model.Access) []string {
	if access.IsWildcard() {
		return []string{"* (All Notebooks)"}
	}
	out := make([]string, 0, len(access.Notebooks))
	for _, id := range access.Notebooks {
		name, ok := o.policy.NotebookName(id)
		if !ok {
			name = "Unknown"
		}
		out = append(out, id+" ("+name+")")
	}
	return out
}

func (o *Orchestrator) allowedNames(access model.Access) string {
	if access.IsWildcard() {
		return "All Notebooks (wildcard access)"
	}
	names := make([]string, 0, len(access.Notebooks))
	for _, id := range access.Notebooks {
		names = append(names, o.notebookName(id))
	}
	return strings.Join(names, ", ")
}
