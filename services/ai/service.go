package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/enquira/mailtriage/config"
	"github.com/enquira/mailtriage/dto"
	"github.com/enquira/mailtriage/interfaces"
	mterrors "github.com/enquira/mailtriage/internal/errors"
	"github.com/enquira/mailtriage/internal/tracing"
)

const maxAttachmentChars = 12000

type aiService struct {
	cfg    *config.AIConfig
	client *http.Client
}

func NewAIService(cfg *config.AIConfig) interfaces.AIService {
	return &aiService{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (s *aiService) SummarizeEmail(ctx context.Context, body, subject, sender string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "aiService.SummarizeEmail")
	defer span.Finish()
	tracing.TagComponentService(span)

	prompt := fmt.Sprintf(
		"Summarize the following email in two or three sentences. Focus on what the sender wants.\n\nFrom: %s\nSubject: %s\n\n%s",
		sender, subject, body,
	)

	content, err := s.complete(ctx, prompt, false)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	return strings.TrimSpace(content), nil
}

func (s *aiService) ExtractProjectID(ctx context.Context, body, subject string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "aiService.ExtractProjectID")
	defer span.Finish()
	tracing.TagComponentService(span)

	prompt := fmt.Sprintf(
		"Extract the project or reference identifier mentioned in this email, if any. "+
			"Respond with JSON: {\"project_id\": \"...\"} using an empty string when none is present.\n\nSubject: %s\n\n%s",
		subject, body,
	)

	content, err := s.complete(ctx, prompt, true)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	var parsed struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		// Model ignored the JSON instruction; treat the raw line as the id
		return strings.TrimSpace(content), nil
	}
	return strings.TrimSpace(parsed.ProjectID), nil
}

func (s *aiService) AnalyzeAttachments(ctx context.Context, request dto.AttachmentAnalysisContext) (*dto.AttachmentAnalysisResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "aiService.AnalyzeAttachments")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.LogKV("attachments", strings.Join(request.AttachmentFilenames, ","))

	var sb strings.Builder
	sb.WriteString("Analyze the following documents attached to an email. Respond with JSON: ")
	sb.WriteString(`{"summary": "...", "document_type": "...", "key_points": ["..."], "technical_details": {"...": "..."}}`)
	sb.WriteString("\n\nEmail context:\n")
	sb.WriteString(request.EmailContext)
	for _, filename := range request.AttachmentFilenames {
		content, ok := request.AttachmentContents[filename]
		if !ok {
			continue
		}
		if len(content) > maxAttachmentChars {
			content = content[:maxAttachmentChars]
		}
		sb.WriteString("\n\n--- ")
		sb.WriteString(filename)
		sb.WriteString(" ---\n")
		sb.WriteString(content)
	}

	content, err := s.complete(ctx, sb.String(), true)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	var result dto.AttachmentAnalysisResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		// Degrade to a plain-text summary when the model returns prose
		result = dto.AttachmentAnalysisResult{
			Summary:      strings.TrimSpace(content),
			DocumentType: "Unknown",
		}
	}
	return &result, nil
}

// complete performs one chat completion round trip with retries.
func (s *aiService) complete(ctx context.Context, prompt string, jsonResponse bool) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "aiService.complete")
	defer span.Finish()
	tracing.TagComponentService(span)

	request := chatRequest{
		Model: s.cfg.Model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	}
	if jsonResponse {
		request.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal payload")
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", s.mapErr(ctx.Err())
			case <-time.After(time.Second * time.Duration(attempt)):
			}
		}

		content, err := s.doRequest(ctx, payload)
		if err == nil {
			return content, nil
		}
		lastErr = err
		span.LogKV("attempt", attempt+1, "error", err.Error())
	}

	return "", s.mapErr(lastErr)
}

func (s *aiService) doRequest(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", s.cfg.APIBase+"/chat/completions", bytes.NewBuffer(payload))
	if err != nil {
		return "", errors.Wrap(err, "failed to create request")
	}

	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "unable to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("request failed with status code %d: %s", resp.StatusCode, string(body))
	}

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", errors.Wrap(err, "failed to unmarshal response")
	}
	if len(response.Choices) == 0 {
		return "", errors.New("empty completion response")
	}

	return response.Choices[0].Message.Content, nil
}

func (s *aiService) mapErr(err error) error {
	if err == nil {
		return mterrors.ErrUpstreamFailure
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
		return errors.Wrap(mterrors.ErrUpstreamTimeout, err.Error())
	}
	return errors.Wrap(mterrors.ErrUpstreamFailure, err.Error())
}
