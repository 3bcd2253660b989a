package chat

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/knowbot/pkg/interfaces"
	"github.com/m-mizutani/knowbot/pkg/model"
	"github.com/m-mizutani/knowbot/pkg/utils/logging"
)

const (
	modeStreaming = "streaming"
	modeBuffered  = "buffered"

	analyzingText = "Analyzing your question..."
)

// sink is where an answer goes while it is being produced. Both delivery
// modes share run and differ only here.
type sink interface {
	mode() string
	start(ctx context.Context) error
	informative(ctx context.Context, text string) error
	// progress receives the full answer text produced so far.
	progress(ctx context.Context, text string) error
	finish(ctx context.Context, text string, attachments []model.Attachment) error
}

// streamSink pushes every step to a streaming-capable transport.
type streamSink struct {
	streamer interfaces.Streamer
}

func (s *streamSink) mode() string                { return modeStreaming }
func (s *streamSink) start(context.Context) error { return nil }
func (s *streamSink) informative(ctx context.Context, text string) error {
	return s.streamer.StreamInformative(ctx, text)
}
func (s *streamSink) progress(ctx context.Context, text string) error {
	return s.streamer.StreamUpdate(ctx, text)
}
func (s *streamSink) finish(ctx context.Context, text string, attachments []model.Attachment) error {
	return s.streamer.StreamFinish(ctx, text, attachments...)
}

// bufferSink shows a typing indicator and sends the answer once.
type bufferSink struct {
	replier interfaces.Replier
}

func (s *bufferSink) mode() string { return modeBuffered }
func (s *bufferSink) start(ctx context.Context) error {
	return s.replier.SendTyping(ctx)
}
func (s *bufferSink) informative(context.Context, string) error { return nil }
func (s *bufferSink) progress(context.Context, string) error    { return nil }
func (s *bufferSink) finish(ctx context.Context, text string, attachments []model.Attachment) error {
	if len(attachments) == 0 {
		return s.replier.SendText(ctx, text)
	}
	return s.replier.SendAttachment(ctx, text, attachments...)
}

// selectSink streams only in personal conversations on transports that
// support it. The choice holds for the whole turn.
func (o *Orchestrator) selectSink(turn *model.Turn, replier interfaces.Replier) sink {
	if streamer, ok := replier.(interfaces.Streamer); ok && streamer.CanStream() && turn.IsPersonal() {
		return &streamSink{streamer: streamer}
	}
	return &bufferSink{replier: replier}
}

type result struct {
	content           string
	reasoning         string
	notebookID        string
	continuationToken string
	finishReason      string
}

// run drives one backend stream into s. Chunks are classified as they
// arrive; the reply is completed with the source line and the reasoning
// card once the stream ends.
func (o *Orchestrator) run(ctx context.Context, query *model.Query, s sink) (*result, error) {
	logger := logging.From(ctx)

	if err := s.start(ctx); err != nil {
		logger.Warn("sink_start_failed", "error", err)
	}

	var (
		res              result
		content          strings.Builder
		reasoning        strings.Builder
		reasoningStarted bool
	)

	for chunk, err := range o.backend.Stream(ctx, query) {
		if err != nil {
			return nil, err
		}

		switch chunk.Kind {
		case model.ChunkMeta:
			if chunk.NotebookID != "" && res.notebookID == "" {
				res.notebookID = chunk.NotebookID
				if name, ok := o.policy.NotebookName(chunk.NotebookID); ok {
					o.notify(ctx, s, "Searching "+name+"...")
				}
			}
			if chunk.ContinuationToken != "" {
				res.continuationToken = chunk.ContinuationToken
			}
			if chunk.FinishReason != "" {
				res.finishReason = chunk.FinishReason
			}

		case model.ChunkReasoning:
			reasoning.WriteString(chunk.Text)
			if !reasoningStarted {
				reasoningStarted = true
				o.notify(ctx, s, analyzingText)
			}

		case model.ChunkContent:
			if chunk.Text == "" {
				continue
			}
			content.WriteString(chunk.Text)
			if err := s.progress(ctx, content.String()); err != nil {
				logger.Warn("stream_update_failed", "error", err)
			}
		}
	}

	res.content = content.String()
	res.reasoning = reasoning.String()

	text := res.content + o.sourceLine(res.notebookID)
	var attachments []model.Attachment
	if res.reasoning != "" {
		attachments = append(attachments, reasoningCard(res.reasoning))
	}

	if err := s.finish(ctx, text, attachments); err != nil {
		return nil, goerr.Wrap(err, "failed to deliver answer", goerr.V("mode", s.mode()))
	}
	return &res, nil
}

func (o *Orchestrator) notify(ctx context.Context, s sink, text string) {
	if err := s.informative(ctx, text); err != nil {
		logging.From(ctx).Warn("informative_update_failed", "error", err)
	}
}

// sourceLine names the notebook that answered. It is empty until a
// notebook id has been reported.
func (o *Orchestrator) sourceLine(notebookID string) string {
	if notebookID == "" {
		return ""
	}
	return "\n---\n*Source: " + o.notebookName(notebookID) + "*"
}
