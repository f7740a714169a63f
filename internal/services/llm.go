package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dlsdud9098/voice-summary-api/internal/config"
	"github.com/dlsdud9098/voice-summary-api/internal/domain"
)

const (
	summarizeTimeout = 60 * time.Second
	maxCustomFields  = 5
	maxFieldNameLen  = 20

	summaryFallback = "요약을 생성할 수 없습니다."
)

var reservedFieldNames = map[string]struct{}{
	"summary":    {},
	"key_points": {},
	"id":         {},
	"status":     {},
	"error":      {},
	"transcript": {},
}

var customFieldPattern = regexp.MustCompile(`^[\w\p{Hangul} ]+$`)

// Each template names the exact JSON keys the model must emit for its
// summary type; everything beyond summary/key_points lands in extra_data.
var promptTemplates = map[domain.SummaryType]string{
	domain.SummaryGeneral: `당신은 음성 녹음 내용을 요약하는 전문가입니다.
주어진 텍스트를 분석하여 다음 JSON 형식으로 응답해주세요:

{
    "summary": "전체 내용을 2-3문장으로 요약한 내용",
    "key_points": ["핵심 포인트 1", "핵심 포인트 2", "핵심 포인트 3"]
}`,
	domain.SummaryMeeting: `당신은 회의 녹음 내용을 정리하는 전문가입니다.
주어진 회의 내용을 분석하여 다음 JSON 형식으로 응답해주세요:

{
    "summary": "회의 내용을 2-3문장으로 요약한 내용",
    "key_points": ["핵심 논의 사항 1", "핵심 논의 사항 2"],
    "action_items": ["실행 항목 1", "실행 항목 2"],
    "decisions": ["결정 사항 1"],
    "next_steps": ["다음 단계 1"]
}`,
	domain.SummaryLecture: `당신은 강의 녹음 내용을 정리하는 전문가입니다.
주어진 강의 내용을 분석하여 다음 JSON 형식으로 응답해주세요:

{
    "summary": "강의 내용을 2-3문장으로 요약한 내용",
    "key_points": ["핵심 내용 1", "핵심 내용 2"],
    "concepts": ["주요 개념 1", "주요 개념 2"],
    "examples": ["언급된 예시 1"],
    "study_tips": ["학습 팁 1"]
}`,
	domain.SummaryInterview: `당신은 인터뷰 녹음 내용을 정리하는 전문가입니다.
주어진 인터뷰 내용을 분석하여 다음 JSON 형식으로 응답해주세요:

{
    "summary": "인터뷰 내용을 2-3문장으로 요약한 내용",
    "key_points": ["핵심 내용 1", "핵심 내용 2"],
    "questions": ["주요 질문 1", "주요 질문 2"],
    "answers": ["주요 답변 1"],
    "insights": ["인사이트 1"]
}`,
	domain.SummaryMemo: `당신은 음성 메모 내용을 정리하는 전문가입니다.
주어진 메모 내용을 분석하여 다음 JSON 형식으로 응답해주세요:

{
    "summary": "메모 내용을 1-2문장으로 요약한 내용",
    "key_points": ["핵심 내용 1"],
    "ideas": ["아이디어 1"],
    "todos": ["할 일 1"],
    "reminders": ["리마인더 1"]
}`,
}

const promptRules = `

규칙:
1. 반드시 한국어로 작성해주세요.
2. 요약은 명확하고 간결하게 작성합니다.
3. 핵심 포인트는 3-5개로 정리합니다.
4. 중요한 정보나 행동 항목을 우선적으로 포함합니다.
5. 반드시 유효한 JSON 형식으로만 응답해주세요.`

// SummaryOutput is the parsed result of one summarization call.
type SummaryOutput struct {
	Summary   string
	KeyPoints []string
	ExtraData map[string]any
}

// LLMService sends transcripts to a Cerebras chat-completions endpoint and
// parses the JSON-shaped reply.
type LLMService struct {
	apiKey     string
	apiURL     string
	model      string
	httpClient *http.Client
}

func NewLLMService(cfg config.Config) *LLMService {
	return &LLMService{
		apiKey:     cfg.CerebrasAPIKey,
		apiURL:     cfg.CerebrasAPIURL,
		model:      cfg.CerebrasModel,
		httpClient: &http.Client{Timeout: summarizeTimeout},
	}
}

// ValidateCustomFields rejects the first invalid custom field name, before
// any remote call is made.
func ValidateCustomFields(fields []string) error {
	if len(fields) > maxCustomFields {
		return &ValidationError{Message: fmt.Sprintf("custom fields are limited to %d, got %d", maxCustomFields, len(fields))}
	}

	for _, field := range fields {
		name := strings.TrimSpace(field)
		if name == "" {
			return &ValidationError{Message: "custom field name must not be empty"}
		}
		if utf8.RuneCountInString(name) > maxFieldNameLen {
			return &ValidationError{Message: fmt.Sprintf("custom field %q exceeds %d characters", name, maxFieldNameLen)}
		}
		if _, reserved := reservedFieldNames[strings.ToLower(name)]; reserved {
			return &ValidationError{Message: fmt.Sprintf("custom field %q is a reserved name", name)}
		}
		if !customFieldPattern.MatchString(name) {
			return &ValidationError{Message: fmt.Sprintf("custom field %q contains invalid characters", name)}
		}
	}
	return nil
}

func (s *LLMService) Summarize(ctx context.Context, transcript string, summaryType domain.SummaryType, customFields []string) (SummaryOutput, error) {
	if err := ValidateCustomFields(customFields); err != nil {
		return SummaryOutput{}, err
	}
	if strings.TrimSpace(s.apiKey) == "" {
		return SummaryOutput{}, errors.New("cerebras api key is not configured")
	}

	template, ok := promptTemplates[summaryType]
	if !ok {
		template = promptTemplates[domain.SummaryGeneral]
	}

	systemPrompt := template
	if len(customFields) > 0 {
		var extra []string
		for _, field := range customFields {
			extra = append(extra, fmt.Sprintf("\"%s\": [\"항목 1\", \"항목 2\"]", strings.TrimSpace(field)))
		}
		systemPrompt += "\n\n추가로 다음 키를 JSON 배열로 포함해주세요:\n" + strings.Join(extra, "\n")
	}
	systemPrompt += promptRules

	userPrompt := fmt.Sprintf("다음 음성 녹음 내용을 요약해주세요:\n\n---\n%s\n---\n\nJSON 형식으로 응답해주세요.", transcript)

	content, err := s.chatCompletion(ctx, systemPrompt, userPrompt)
	if err != nil {
		return SummaryOutput{}, err
	}

	return parseSummaryReply(content), nil
}

func (s *LLMService) chatCompletion(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload := map[string]any{
		"model": s.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature": 0.3,
		"max_tokens":  2048,
	}

	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return "", fmt.Errorf("encode summary payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, buf)
	if err != nil {
		return "", fmt.Errorf("create summary request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("cerebras request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(resp.Body)
		return "", &APIError{Service: "cerebras", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode summary response: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", errors.New("no summary returned")
	}

	return response.Choices[0].Message.Content, nil
}

// parseSummaryReply extracts the JSON candidate from the model's reply and
// maps it onto SummaryOutput. A reply that fails strict JSON parsing is kept
// verbatim as the summary rather than raising an error.
func parseSummaryReply(content string) SummaryOutput {
	candidate := extractJSONCandidate(content)

	var parsed map[string]any
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return SummaryOutput{
			Summary:   content,
			KeyPoints: []string{},
			ExtraData: map[string]any{},
		}
	}

	out := SummaryOutput{
		Summary:   summaryFallback,
		KeyPoints: []string{},
		ExtraData: map[string]any{},
	}

	if v, ok := parsed["summary"].(string); ok {
		out.Summary = v
	}
	if items, ok := parsed["key_points"].([]any); ok {
		for _, item := range items {
			if s, ok := item.(string); ok {
				out.KeyPoints = append(out.KeyPoints, s)
			}
		}
	}
	for key, value := range parsed {
		if key == "summary" || key == "key_points" {
			continue
		}
		out.ExtraData[key] = value
	}

	return out
}

func extractJSONCandidate(content string) string {
	if strings.Contains(content, "```json") {
		after := strings.SplitN(content, "```json", 2)[1]
		return strings.TrimSpace(strings.SplitN(after, "```", 2)[0])
	}
	if strings.Contains(content, "```") {
		parts := strings.Split(content, "```")
		if len(parts) >= 2 {
			return strings.TrimSpace(parts[1])
		}
	}
	return strings.TrimSpace(content)
}
