package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"github.com/dlsdud9098/voice-summary-api/internal/config"
)

const (
	transcribeTimeout = 120 * time.Second
	downloadTimeout   = 60 * time.Second
)

var audioContentTypes = map[string]string{
	".webm": "audio/webm",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
}

// STTService sends audio to a Groq Whisper-compatible transcription endpoint.
type STTService struct {
	apiKey         string
	apiURL         string
	model          string
	httpClient     *http.Client
	downloadClient *http.Client
}

func NewSTTService(cfg config.Config) *STTService {
	return &STTService{
		apiKey:         cfg.GroqAPIKey,
		apiURL:         cfg.GroqAPIURL,
		model:          cfg.GroqModel,
		httpClient:     &http.Client{Timeout: transcribeTimeout},
		downloadClient: &http.Client{Timeout: downloadTimeout},
	}
}

// Transcribe sends one audio payload and returns the plain-text transcript.
// The response format is requested as text, so the body is the transcript.
func (s *STTService) Transcribe(ctx context.Context, content []byte, fileName, language string) (string, error) {
	if strings.TrimSpace(s.apiKey) == "" {
		return "", errors.New("groq api key is not configured")
	}
	if language == "" {
		language = "ko"
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	header.Set("Content-Type", audioContentType(fileName))

	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("create multipart file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("copy audio data: %w", err)
	}

	fields := map[string]string{
		"model":           s.model,
		"language":        language,
		"response_format": "text",
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return "", fmt.Errorf("write %s field: %w", name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, body)
	if err != nil {
		return "", fmt.Errorf("create transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("groq request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read transcription response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return "", &APIError{Service: "groq", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return strings.TrimSpace(string(respBody)), nil
}

// TranscribeFromURL downloads the audio first, then transcribes it.
func (s *STTService) TranscribeFromURL(ctx context.Context, audioURL, fileName, language string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return "", fmt.Errorf("create download request: %w", err)
	}

	resp, err := s.downloadClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("audio download failed: %s returned status %d", audioURL, resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read downloaded audio: %w", err)
	}

	return s.Transcribe(ctx, content, fileName, language)
}

func audioContentType(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ct, ok := audioContentTypes[ext]; ok {
		return ct
	}
	return "audio/webm"
}
