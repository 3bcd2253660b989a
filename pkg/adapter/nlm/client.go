// Package nlm is a client for nlm-proxy, an OpenAI-compatible chat
// completions endpoint that answers from access-controlled notebooks.
package nlm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/knowbot/pkg/model"
	"github.com/m-mizutani/knowbot/pkg/utils/logging"
	"github.com/tmaxmax/go-sse"
)

const (
	DefaultModel   = "knowledge-finder"
	DefaultTimeout = 60 * time.Second

	streamDone = "[DONE]"
)

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

type clientConfig struct {
	httpClient *http.Client
	timeout    time.Duration
}

type Option func(*clientConfig)

// WithHTTPClient sets the transport settings to use. The client is copied, so
// the caller's value is not modified.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *clientConfig) {
		cfg.httpClient = c
	}
}

// WithTimeout bounds a whole call, including reading the stream.
func WithTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) {
		cfg.timeout = d
	}
}

// New creates a client for baseURL, e.g. http://localhost:8080/v1.
func New(baseURL, apiKey, modelName string, opts ...Option) *Client {
	if modelName == "" {
		modelName = DefaultModel
	}
	cfg := clientConfig{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	hc := &http.Client{}
	if cfg.httpClient != nil {
		copied := *cfg.httpClient
		hc = &copied
	}
	hc.Timeout = cfg.timeout

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      modelName,
		httpClient: hc,
	}
}

type chatRequest struct {
	Model    string          `json:"model"`
	Messages []chatMessage   `json:"messages"`
	Stream   bool            `json:"stream"`
	Metadata requestMetadata `json:"metadata"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type requestMetadata struct {
	AllowedNotebooks []string `json:"allowed_notebooks"`
	ChatID           string   `json:"chat_id,omitempty"`
	ConversationID   string   `json:"conversation_id,omitempty"`
}

type streamChunk struct {
	Model          string         `json:"model"`
	ConversationID string         `json:"conversation_id"`
	Choices        []streamChoice `json:"choices"`
	Error          *apiError      `json:"error"`
}

type streamChoice struct {
	Delta struct {
		Content          string `json:"content"`
		ReasoningContent string `json:"reasoning_content"`
	} `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func toWireRole(role model.Role) string {
	switch role {
	case model.RoleHuman:
		return "user"
	case model.RoleAssistant:
		return "assistant"
	default:
		return string(role)
	}
}

// Stream asks query.Question and yields chunks as they arrive. The first
// model name reported by the proxy is the notebook that answered and is
// yielded as a meta chunk, as is any conversation id and finish reason.
func (c *Client) Stream(ctx context.Context, query *model.Query) iter.Seq2[*model.Chunk, error] {
	return func(yield func(*model.Chunk, error) bool) {
		req := chatRequest{
			Model:    c.model,
			Messages: []chatMessage{{Role: "user", Content: query.Question}},
			Stream:   true,
			Metadata: requestMetadata{
				AllowedNotebooks: query.Notebooks,
				ChatID:           query.ChatID,
				ConversationID:   query.ContinuationToken,
			},
		}

		logging.From(ctx).Info("nlm_stream_start",
			"model", c.model,
			"notebook_count", len(query.Notebooks),
			"notebooks", query.Notebooks,
			"chat_id", query.ChatID)

		resp, err := c.post(ctx, &req)
		if err != nil {
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		var (
			modelEmitted bool
			lastToken    string
			count        int
		)
		emit := func(chunk *model.Chunk) bool {
			count++
			return yield(chunk, nil)
		}

		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				yield(nil, goerr.Wrap(errors.Join(model.ErrBackend, err), "failed to read stream"))
				return
			}
			if ev.Data == streamDone {
				break
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
				yield(nil, goerr.Wrap(errors.Join(model.ErrBackend, err), "failed to parse stream chunk", goerr.V("data", ev.Data)))
				return
			}
			if chunk.Error != nil {
				yield(nil, goerr.Wrap(model.ErrBackend, "stream error",
					goerr.V("type", chunk.Error.Type),
					goerr.V("message", chunk.Error.Message)))
				return
			}

			if chunk.Model != "" && !modelEmitted {
				modelEmitted = true
				if !emit(&model.Chunk{Kind: model.ChunkMeta, NotebookID: chunk.Model}) {
					return
				}
			}
			if chunk.ConversationID != "" && chunk.ConversationID != lastToken {
				lastToken = chunk.ConversationID
				if !emit(&model.Chunk{Kind: model.ChunkMeta, ContinuationToken: chunk.ConversationID}) {
					return
				}
			}

			for _, choice := range chunk.Choices {
				if text := choice.Delta.ReasoningContent; text != "" {
					if !emit(&model.Chunk{Kind: model.ChunkReasoning, Text: text}) {
						return
					}
				}
				if text := choice.Delta.Content; text != "" {
					if !emit(&model.Chunk{Kind: model.ChunkContent, Text: text}) {
						return
					}
				}
				if choice.FinishReason != nil && *choice.FinishReason != "" {
					if !emit(&model.Chunk{Kind: model.ChunkMeta, FinishReason: *choice.FinishReason}) {
						return
					}
				}
			}
		}

		logging.From(ctx).Info("nlm_stream_complete", "model", c.model, "chunks", count)
	}
}

// Complete runs a non-streaming completion, used for question rewriting and
// follow-up suggestions.
func (c *Client) Complete(ctx context.Context, messages []model.Message, notebooks []string) (string, error) {
	req := chatRequest{
		Model:    c.model,
		Messages: make([]chatMessage, 0, len(messages)),
		Metadata: requestMetadata{AllowedNotebooks: notebooks},
	}
	for _, msg := range messages {
		req.Messages = append(req.Messages, chatMessage{Role: toWireRole(msg.Role), Content: msg.Text})
	}

	resp, err := c.post(ctx, &req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", goerr.Wrap(errors.Join(model.ErrBackend, err), "failed to decode completion")
	}
	if out.Error != nil {
		return "", goerr.Wrap(model.ErrBackend, "completion error",
			goerr.V("type", out.Error.Type),
			goerr.V("message", out.Error.Message))
	}
	if len(out.Choices) == 0 {
		return "", goerr.Wrap(model.ErrBackend, "completion has no choices")
	}

	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (c *Client) post(ctx context.Context, body *chatRequest) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, goerr.Wrap(errors.Join(model.ErrBackend, err), "failed to marshal request")
	}

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, goerr.Wrap(errors.Join(model.ErrBackend, err), "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if body.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(errors.Join(model.ErrBackend, err), "failed to call nlm-proxy", goerr.V("url", endpoint))
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, goerr.Wrap(model.ErrBackend, "unexpected nlm-proxy status",
			goerr.V("url", endpoint),
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(msg)))
	}

	return resp, nil
}
