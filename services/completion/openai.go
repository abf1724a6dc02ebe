// Package completion adapts the hosted chat-completion API for the
// student assistant. Ask never fails: every outcome resolves to a
// displayable reply in the language the question was asked in.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/lumenedu/lumen/core"
)

const (
	systemMsgEnglish = "You are a helpful educational assistant. The user is asking in English, so respond only in English."
	systemMsgArabic  = "You are a helpful educational assistant. The user is asking in Arabic, so respond only in Arabic."

	// fixed replies; the bilingual ones are shown as-is
	msgMissingKey = "Please configure the completion service API key to use this feature.\n\n" +
		"يرجى تكوين مفتاح واجهة برمجة التطبيقات لاستخدام هذه الميزة."
	msgQuotaExceeded = "You have exceeded your API quota. Please check your plan and billing details.\n\n" +
		"لقد تجاوزت حصتك من واجهة برمجة التطبيقات. يرجى التحقق من خطتك وتفاصيل الفوترة."
	msgGenericErrorEnglish = "Sorry, I encountered an error processing your question."
	msgGenericErrorArabic  = "عذراً، واجهت خطأ في معالجة سؤالك."

	quotaErrorCode = "insufficient_quota"
)

// Service is any service that can answer a free-text question.
type Service interface {
	Ask(ctx context.Context, question string) string
}

// OpenAIService calls an OpenAI-compatible chat-completion endpoint.
type OpenAIService struct {
	url         string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	http        *http.Client
	logger      core.Logger
}

var _ Service = (*OpenAIService)(nil)

func NewOpenAIService(conf *core.Config, logger core.Logger) *OpenAIService {
	return &OpenAIService{
		url:         conf.Completion.URL,
		apiKey:      conf.Completion.APIKey,
		model:       conf.Completion.Model,
		maxTokens:   conf.Completion.MaxTokens,
		temperature: conf.Completion.Temperature,
		http:        &http.Client{Timeout: 60 * time.Second},
		logger:      logger,
	}
}

// IsArabic reports whether s contains at least one character of the
// Arabic Unicode block. It is a script check, not a language classifier:
// mixed-script input counts as Arabic.
func IsArabic(s string) bool {
	for _, r := range s {
		if r >= 0x0600 && r <= 0x06FF {
			return true
		}
	}
	return false
}

type (
	message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	completionRequest struct {
		Model       string    `json:"model"`
		Messages    []message `json:"messages"`
		MaxTokens   int       `json:"max_tokens"`
		Temperature float64   `json:"temperature"`
	}

	completionResponse struct {
		Choices []struct {
			Message message `json:"message"`
		} `json:"choices"`
	}

	completionError struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
)

// Ask sends the question to the completion endpoint, instructing the
// model to mirror the question's language. Failures are mapped to
// localized reply strings and never propagated. No retry is attempted.
func (svc *OpenAIService) Ask(ctx context.Context, question string) string {
	if svc.apiKey == "" {
		return msgMissingKey
	}

	systemMsg := systemMsgEnglish
	if IsArabic(question) {
		systemMsg = systemMsgArabic
	}

	reqBody := completionRequest{
		Model: svc.model,
		Messages: []message{
			{Role: "system", Content: systemMsg},
			{Role: "user", Content: question},
		},
		MaxTokens:   svc.maxTokens,
		Temperature: svc.temperature,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		svc.logger.Error("completion: marshalling request", errors.Wrap(err, "marshalling request"))
		return svc.genericError(question)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.url, bytes.NewReader(data))
	if err != nil {
		svc.logger.Error("completion: building request", errors.Wrap(err, "building request"))
		return svc.genericError(question)
	}
	req.Header.Set("Authorization", "Bearer "+svc.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := svc.http.Do(req)
	if err != nil {
		svc.logger.Error("completion: calling service", errors.Wrap(err, "calling service"))
		return svc.genericError(question)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var payload completionError
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		if resp.StatusCode == http.StatusTooManyRequests && payload.Error.Code == quotaErrorCode {
			return msgQuotaExceeded
		}
		svc.logger.Error("completion: service error", errors.Errorf("status %d: %s", resp.StatusCode, payload.Error.Message))
		return svc.genericError(question)
	}

	var payload completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		svc.logger.Error("completion: decoding response", errors.Wrap(err, "decoding response"))
		return svc.genericError(question)
	}
	if len(payload.Choices) == 0 {
		svc.logger.Error("completion: empty choices")
		return svc.genericError(question)
	}
	return payload.Choices[0].Message.Content
}

func (svc *OpenAIService) genericError(question string) string {
	if IsArabic(question) {
		return msgGenericErrorArabic
	}
	return msgGenericErrorEnglish
}
