package services

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const ocrPrompt = `Transcribe all readable text in this image exactly as written.
Keep paragraphs and headings in reading order. Describe diagrams in one short sentence each.
Output only the transcription.`

// SupportedImageTypes lists the upload types the vision model accepts.
var SupportedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
}

// TextRecognizer turns an image into plain text.
type TextRecognizer interface {
	Recognize(ctx context.Context, contentType string, data []byte) (string, error)
}

// VisionOCR transcribes images with a multimodal chat model.
type VisionOCR struct {
	client    *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
	retryPolicy
	logger *zap.Logger
}

// NewVisionOCR returns nil when no API key or model is configured.
func NewVisionOCR(cfg LLMConfig, logger *zap.Logger) *VisionOCR {
	if cfg.APIKey == "" || cfg.Model == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VisionOCR{
		client:      newOpenAIClient(cfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		retryPolicy: defaultRetryPolicy(),
		logger:      logger,
	}
}

func (v *VisionOCR) Recognize(ctx context.Context, contentType string, data []byte) (string, error) {
	if !SupportedImageTypes[contentType] {
		return "", validationErr("unsupported image type " + contentType)
	}

	dataURI := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
	req := openai.ChatCompletionRequest{
		Model:     v.model,
		MaxTokens: v.maxTokens,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: dataURI, Detail: openai.ImageURLDetailHigh},
				},
				{Type: openai.ChatMessagePartTypeText, Text: ocrPrompt},
			},
		}},
	}

	var text string
	err := v.do(ctx, v.logger, func() error {
		attemptCtx := ctx
		if v.timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, v.timeout)
			defer cancel()
		}

		resp, err := v.client.CreateChatCompletion(attemptCtx, req)
		if err != nil {
			return classifyError(ctx, err)
		}
		if len(resp.Choices) == 0 {
			return &ValidationError{Message: "vision model returned no choices"}
		}
		text = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	})
	if err != nil {
		return "", err
	}

	v.logger.Debug("image transcribed", zap.Int("bytes", len(data)), zap.Int("chars", len([]rune(text))))
	return text, nil
}

// DetectImageType sniffs the content type of an uploaded image.
func DetectImageType(data []byte) string {
	return http.DetectContentType(data)
}
