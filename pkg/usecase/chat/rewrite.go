package chat

import (
	"context"
	_ "embed"

	"github.com/m-mizutani/knowbot/pkg/model"
	"github.com/m-mizutani/knowbot/pkg/utils/logging"
)

//go:embed prompt/rewrite.md
var rewritePrompt string

// The "### Task:" prefix makes nlm-proxy route the request to its plain LLM
// task handler instead of notebook retrieval.
const rewriteTemplate = "### Task: Rewrite this follow-up as a standalone question: "

// rewrite returns a standalone version of the question when the
// conversation has history. Any failure falls back to the original text.
func (o *Orchestrator) rewrite(ctx context.Context, turn *model.Turn, access model.Access) string {
	if !o.enableRewrite || o.memory == nil || turn.ConversationID == "" {
		return turn.Text
	}
	history := o.memory.GetMessages(turn.ConversationID)
	if len(history) == 0 {
		return turn.Text
	}

	messages := make([]model.Message, 0, len(history)+2)
	messages = append(messages, model.SystemMessage(rewritePrompt))
	messages = append(messages, history...)
	messages = append(messages, model.HumanMessage(rewriteTemplate+turn.Text))

	rewritten, err := o.backend.Complete(ctx, messages, access.IDs())
	if err != nil {
		logging.From(ctx).Warn("nlm_rewrite_failed", "error", err)
		return turn.Text
	}
	if rewritten == "" || rewritten == turn.Text {
		return turn.Text
	}

	logging.From(ctx).Info("nlm_question_rewritten",
		"original", truncate(turn.Text, 100),
		"rewritten", truncate(rewritten, 100))
	return rewritten
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
