package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = time.Second
)

// responseFormatPrompt pins the JSON shape every completion must follow.
const responseFormatPrompt = `Respond only with a JSON object of the form {"flashcards":[{"front":"question","back":"answer"}]}.
Do not wrap the JSON in prose. Keep each front under 200 characters and each back under 500 characters.`

// Message is one chat message sent to the completion API.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=system user"`
	Content string `json:"content" validate:"required"`
}

type messageList struct {
	Messages []Message `validate:"required,min=1,dive"`
}

// GeneratedFlashcard is a front/back pair as returned by the model.
type GeneratedFlashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

type flashcardPayload struct {
	Flashcards []GeneratedFlashcard `json:"flashcards" validate:"required"`
}

// Completion is the parsed result of one successful LLM call.
type Completion struct {
	Flashcards []GeneratedFlashcard
	// Reference is the provider's completion id.
	Reference string
}

// Completer produces flashcards from chat messages.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (*Completion, error)
}

type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// LLMClient wraps an OpenAI-compatible chat completion endpoint with
// schema validation, tolerant response parsing and retries.
type LLMClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	retryPolicy
	logger *zap.Logger
}

// retryPolicy retries NetworkErrors with exponential backoff.
type retryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	sleep      func(context.Context, time.Duration) error
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{maxRetries: defaultMaxRetries, baseDelay: defaultBaseDelay, sleep: sleepContext}
}

// do runs op until it succeeds, fails with a non-network error, or the
// retries are used up. The delay before retry n is baseDelay * 2^(n-1).
func (p retryPolicy) do(ctx context.Context, logger *zap.Logger, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			delay := p.baseDelay * time.Duration(1<<(attempt-1))
			logger.Warn("retrying llm request",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			if err := p.sleep(ctx, delay); err != nil {
				return err
			}
		}

		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		var netErr *NetworkError
		if !errors.As(err, &netErr) {
			return err
		}
	}
	return fmt.Errorf("llm request failed after %d retries: %w", p.maxRetries, lastErr)
}

func NewLLMClient(cfg LLMConfig, logger *zap.Logger) *LLMClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIKey == "" {
		return &LLMClient{logger: logger}
	}

	return &LLMClient{
		client:      newOpenAIClient(cfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		retryPolicy: defaultRetryPolicy(),
		logger:      logger,
	}
}

func newOpenAIClient(cfg LLMConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}
	return openai.NewClientWithConfig(clientCfg)
}

func (c *LLMClient) disabled() bool {
	return c == nil || c.client == nil || c.model == ""
}

// SendMessage sends text as a single user message.
func (c *LLMClient) SendMessage(ctx context.Context, text string) (*Completion, error) {
	return c.Complete(ctx, []Message{{Role: openai.ChatMessageRoleUser, Content: text}})
}

// Complete validates messages, sends them with the response format instruction and
// retries network failures with exponential backoff.
func (c *LLMClient) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	if c.disabled() {
		return nil, ErrAIUnavailable
	}
	if err := validate.Struct(messageList{Messages: messages}); err != nil {
		return nil, &ValidationError{Message: "invalid chat messages", Issues: []string{describeValidation(err)}}
	}

	req := c.buildRequest(messages)

	var result *Completion
	err := c.do(ctx, c.logger, func() error {
		var err error
		result, err = c.completeOnce(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *LLMClient) buildRequest(messages []Message) openai.ChatCompletionRequest {
	chat := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	chat = append(chat, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: responseFormatPrompt,
	})
	for _, m := range messages {
		chat = append(chat, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	return openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chat,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
}

func (c *LLMClient) completeOnce(ctx context.Context, req openai.ChatCompletionRequest) (*Completion, error) {
	attemptCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.client.CreateChatCompletion(attemptCtx, req)
	if err != nil {
		return nil, classifyError(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ValidationError{Message: "completion returned no choices"}
	}

	content := resp.Choices[0].Message.Content
	payload, err := parseFlashcards(content)
	if err != nil {
		c.logger.Debug("unparseable completion", zap.String("id", resp.ID), zap.String("content", content))
		return nil, err
	}

	return &Completion{Flashcards: payload.Flashcards, Reference: resp.ID}, nil
}

// classifyError sorts a client error into NetworkError (retried) or APIError.
func classifyError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode >= http.StatusInternalServerError {
			return &NetworkError{StatusCode: apiErr.HTTPStatusCode, Err: err}
		}
		return &APIError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode >= http.StatusInternalServerError {
			return &NetworkError{StatusCode: reqErr.HTTPStatusCode, Err: err}
		}
		return &APIError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &ValidationError{Message: "malformed completion response", Issues: []string{err.Error()}}
	}

	return &NetworkError{Err: err}
}

var jsonObjectPattern = regexp.MustCompile(`\{[\s\S]*\}`)

// parseFlashcards tries, in order: the content as JSON, the content as a full
// chat completion object, a fenced code block, and the outermost {...} substring.
func parseFlashcards(content string) (*flashcardPayload, error) {
	content = strings.TrimSpace(content)

	if payload, err := decodeFlashcards(content); err == nil {
		return payload, nil
	}

	var wrapped openai.ChatCompletionResponse
	if err := json.Unmarshal([]byte(content), &wrapped); err == nil && len(wrapped.Choices) > 0 {
		if payload, err := decodeFlashcards(wrapped.Choices[0].Message.Content); err == nil {
			return payload, nil
		}
	}

	if block, ok := extractFencedBlock(content); ok {
		if payload, err := decodeFlashcards(block); err == nil {
			return payload, nil
		}
	}

	if match := jsonObjectPattern.FindString(content); match != "" {
		if payload, err := decodeFlashcards(match); err == nil {
			return payload, nil
		}
	}

	return nil, &ValidationError{Message: "completion did not contain a valid flashcards object"}
}

func decodeFlashcards(raw string) (*flashcardPayload, error) {
	var payload flashcardPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &payload); err != nil {
		return nil, err
	}
	if err := validate.Struct(payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// extractFencedBlock returns the body of the first ``` block, skipping an
// optional language tag.
func extractFencedBlock(content string) (string, bool) {
	open := strings.Index(content, "```")
	if open == -1 {
		return "", false
	}
	start := open + 3
	if nl := strings.Index(content[start:], "\n"); nl != -1 {
		start += nl + 1
	}
	end := strings.Index(content[start:], "```")
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(content[start : start+end]), true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
