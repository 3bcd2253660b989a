package chat

import (
	"context"
	_ "embed"
	"strings"

	"github.com/m-mizutani/knowbot/pkg/interfaces"
	"github.com/m-mizutani/knowbot/pkg/model"
	"github.com/m-mizutani/knowbot/pkg/utils/logging"
)

//go:embed prompt/followup.md
var followupPrompt string

const (
	maxFollowups       = 3
	followupAnswerSize = 500
)

// suggest sends follow-up question buttons. Failures are logged and never
// affect the answer already delivered.
func (o *Orchestrator) suggest(ctx context.Context, question, answer string, access model.Access, replier interfaces.Replier) {
	logger := logging.From(ctx)

	messages := []model.Message{
		model.SystemMessage(followupPrompt),
		model.HumanMessage("### Task: Suggest follow-up questions for this exchange:\n" +
			"Question: " + question + "\n" +
			"Answer: " + truncate(answer, followupAnswerSize)),
	}

	raw, err := o.backend.Complete(ctx, messages, access.IDs())
	if err != nil {
		logger.Warn("nlm_followup_failed", "error", err)
		return
	}

	questions := parseFollowups(raw)
	if len(questions) == 0 {
		return
	}
	if len(questions) > maxFollowups {
		questions = questions[:maxFollowups]
	}

	if err := replier.SendAttachment(ctx, "", followupCard(questions)); err != nil {
		logger.Warn("nlm_followup_failed", "error", err)
		return
	}
	logger.Info("nlm_followups_sent", "count", len(questions))
}

// parseFollowups keeps one question per line, dropping numbering and
// bullets, and discards lines that are not questions.
func parseFollowups(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && line[0] >= '0' && line[0] <= '9' {
			line = strings.TrimSpace(strings.TrimLeft(line, "0123456789.)"))
		}
		line = strings.TrimSpace(strings.TrimLeft(line, "-•"))
		if line != "" && strings.HasSuffix(line, "?") {
			out = append(out, line)
		}
	}
	return out
}
