// Package openai is an agent adapter backed by an OpenAI-compatible chat
// completion endpoint. It answers every submission inline, so the reconcile
// engine never has to poll it.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OFFIS-RIT/proteus/backend/pkg/agent"
	"github.com/OFFIS-RIT/proteus/backend/pkg/ai"
	"github.com/OFFIS-RIT/proteus/backend/pkg/analysis"
	"github.com/OFFIS-RIT/proteus/backend/pkg/logger"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const defaultSystemPrompt = `You are a protein engineering assistant. Answer with a single JSON object ` +
	`containing analysis_summary, edited_protein and graph. The graph holds at most 10 nodes, ` +
	`node ids are unique and every edge connects existing nodes.`

// ClientParams configures the adapter. ChatURL may be empty for the public
// OpenAI endpoint or point at any compatible server.
type ClientParams struct {
	ChatURL      string
	ChatKey      string
	Model        string
	SystemPrompt string
	Thinking     string
}

// Client implements the agent interface on top of chat completions.
type Client struct {
	chat    *openai.Client
	chatURL string
	options ai.GenerateOptions

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics
}

// NewClient creates the adapter. Extra request options are passed to the
// underlying OpenAI client.
func NewClient(params ClientParams, opts ...option.RequestOption) *Client {
	options := []option.RequestOption{option.WithAPIKey(params.ChatKey)}
	if params.ChatURL != "" {
		options = append(options, option.WithBaseURL(params.ChatURL))
	}
	options = append(options, opts...)
	chat := openai.NewClient(options...)

	systemPrompt := params.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	return &Client{
		chat:    &chat,
		chatURL: params.ChatURL,
		options: ai.GenerateOptions{
			Model:         params.Model,
			SystemPrompts: []string{systemPrompt},
			Temperature:   0.1,
			Thinking:      params.Thinking,
		},
	}
}

type envelopeMessage struct {
	Role        string `json:"role"`
	MessageType string `json:"message_type"`
	Content     string `json:"content"`
}

type envelope struct {
	AgentID  string            `json:"agent_id,omitempty"`
	Messages []envelopeMessage `json:"messages"`
}

// Submit runs one structured completion and wraps the reply in a message
// envelope that the extractor understands.
func (c *Client) Submit(ctx context.Context, agentID, message string) ([]byte, error) {
	content, err := c.complete(ctx, message)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{
		AgentID: agentID,
		Messages: []envelopeMessage{{
			Role:        "assistant",
			MessageType: "assistant_message",
			Content:     content,
		}},
	})
}

// RunStatus is not available; completions never create runs.
func (c *Client) RunStatus(context.Context, string) (string, error) {
	return "", fmt.Errorf("openai run status: %w", agent.ErrUnsupported)
}

// RunMessages is not available; completions never create runs.
func (c *Client) RunMessages(context.Context, string) ([]byte, error) {
	return nil, fmt.Errorf("openai run messages: %w", agent.ErrUnsupported)
}

// GetMetrics returns the usage accumulated since the client was created.
func (c *Client) GetMetrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

func (c *Client) modifyMetrics(m ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics = c.metrics.Add(m)
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	options := c.options

	// optional fields rule out strict mode
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "analysis_result",
		Description: openai.String("Protein-edit analysis with interaction graph"),
		Schema:      analysis.Schema(),
		Strict:      openai.Bool(false),
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(options.SystemPrompts)+1)
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, openai.SystemMessage(sp))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	body := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(options.Model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
		Messages:    msgs,
		Temperature: openai.Float(options.Temperature),
	}
	if options.Thinking != "" {
		// reasoning models on the public endpoint only accept the default temperature
		if c.chatURL == "" {
			body.Temperature = openai.Float(1.0)
		}
		body.ReasoningEffort = shared.ReasoningEffort(options.Thinking)
	}

	start := time.Now()
	response, err := c.chat.Chat.Completions.New(ctx, body)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &agent.UpstreamProtocolError{Op: "chat completion", StatusCode: apiErr.StatusCode, Body: apiErr.Message}
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}

	metrics := ai.ModelMetrics{
		Requests:     1,
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   time.Since(start).Milliseconds(),
	}
	c.modifyMetrics(metrics)
	logger.Debug("Chat completion finished", "model", options.Model, "tokens", metrics.TotalTokens, "duration_ms", metrics.DurationMs)

	if len(response.Choices) == 0 {
		return "", &agent.UpstreamProtocolError{Op: "chat completion", Err: errors.New("no choices in response from model")}
	}
	message := response.Choices[0].Message.Content
	if message == "" {
		return "", &agent.UpstreamProtocolError{
			Op:  "chat completion",
			Err: fmt.Errorf("empty response from model (finish_reason: %s)", response.Choices[0].FinishReason),
		}
	}
	return message, nil
}
