package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/dlsdud9098/voice-summary-api/internal/config"
	"github.com/dlsdud9098/voice-summary-api/internal/domain"
	"github.com/dlsdud9098/voice-summary-api/internal/services"
	"github.com/dlsdud9098/voice-summary-api/internal/storage"
	"github.com/dlsdud9098/voice-summary-api/pkg/executor"
)

type testEnv struct {
	engine   *gin.Engine
	store    *storage.Store
	files    *storage.FileManager
	sttCalls int32
	llmCalls int32
}

// setupTestServer wires the full handler stack against httptest stand-ins
// for the remote STT and LLM endpoints. sttReply is served as the plain-text
// transcription body; llmReply as the chat completion message content.
func setupTestServer(t *testing.T, sttReply, llmReply string, sttStatus, llmStatus int) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{}
	tmpDir := t.TempDir()

	sttSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&env.sttCalls, 1)
		if sttStatus != http.StatusOK {
			w.WriteHeader(sttStatus)
		}
		fmt.Fprint(w, sttReply)
	}))
	t.Cleanup(sttSrv.Close)

	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&env.llmCalls, 1)
		if llmStatus != http.StatusOK {
			w.WriteHeader(llmStatus)
			fmt.Fprint(w, llmReply)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": llmReply}},
			},
		})
	}))
	t.Cleanup(llmSrv.Close)

	cfg := config.Config{
		Port:            "8080",
		AppName:         "Voice Recording Summarization API",
		GroqAPIKey:      "test-key",
		GroqAPIURL:      sttSrv.URL,
		GroqModel:       "whisper-large-v3",
		CerebrasAPIKey:  "test-key",
		CerebrasAPIURL:  llmSrv.URL,
		CerebrasModel:   "llama-3.3-70b",
		StoragePath:     tmpDir,
		MaxUploadBytes:  1 * 1024 * 1024,
		DefaultLanguage: "ko",
	}

	fm, err := storage.NewFileManager(cfg.StoragePath)
	if err != nil {
		t.Fatalf("file manager: %v", err)
	}
	store, err := storage.NewStore(cfg.StoragePath)
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	stt := services.NewSTTService(cfg)
	transcriber := services.NewChunkTranscriber(stt, executor.New())
	llm := services.NewLLMService(cfg)
	pdf := services.NewPDFService()

	engine := gin.New()
	engine.Use(gin.Recovery())
	api := NewAPI(cfg, fm, store, transcriber, llm, pdf)
	registerRoutes(engine, api)

	env.engine = engine
	env.store = store
	env.files = fm
	return env
}

func uploadRequest(t *testing.T, fileName string, content []byte, fields map[string]string) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	for name, value := range fields {
		writer.WriteField(name, value)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/recordings/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func TestHealthHandler(t *testing.T) {
	env := setupTestServer(t, "", "{}", http.StatusOK, http.StatusOK)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	decodeJSON(t, rec, &body)
	if body["status"] != "healthy" {
		t.Fatalf("expected healthy, body=%v", body)
	}
}

func TestUploadMissingFile(t *testing.T) {
	env := setupTestServer(t, "", "{}", http.StatusOK, http.StatusOK)

	req := httptest.NewRequest(http.MethodPost, "/api/recordings/upload", nil)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	env := setupTestServer(t, "", "{}", http.StatusOK, http.StatusOK)

	req := uploadRequest(t, "notes.txt", []byte("not audio"), nil)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unsupported file extension") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	env := setupTestServer(t, "", "{}", http.StatusOK, http.StatusOK)

	req := uploadRequest(t, "big.mp3", bytes.Repeat([]byte{0x01}, 1024*1024+1), nil)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUploadCreatesRecording(t *testing.T) {
	env := setupTestServer(t, "", "{}", http.StatusOK, http.StatusOK)

	req := uploadRequest(t, "memo.webm", []byte("webm-bytes"), map[string]string{
		"title":    "아침 메모",
		"duration": "12.5",
	})
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created domain.Recording
	decodeJSON(t, rec, &created)

	if created.Status != domain.StatusUploaded {
		t.Fatalf("expected uploaded status, got %s", created.Status)
	}
	if created.Title != "아침 메모" {
		t.Fatalf("unexpected title %q", created.Title)
	}
	if created.Duration != 12.5 {
		t.Fatalf("unexpected duration %v", created.Duration)
	}
	if created.FileSize != int64(len("webm-bytes")) {
		t.Fatalf("unexpected size %d", created.FileSize)
	}

	content, err := env.files.Read(created.FilePath)
	if err != nil {
		t.Fatalf("stored file unreadable: %v", err)
	}
	if string(content) != "webm-bytes" {
		t.Fatalf("stored content mismatch: %q", content)
	}
}

func TestUploadTranscribeSummarizeMemoScenario(t *testing.T) {
	memoReply := "```json\n" + `{
  "summary": "오늘의 메모 요약",
  "key_points": ["포인트"],
  "ideas": ["새 프로젝트"],
  "todos": ["회의 잡기"],
  "reminders": ["금요일 마감"]
}` + "\n```"
	env := setupTestServer(t, "오늘 할 일을 기록합니다", memoReply, http.StatusOK, http.StatusOK)

	req := uploadRequest(t, "memo.webm", []byte("webm-bytes"), nil)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d", rec.Code)
	}
	var created domain.Recording
	decodeJSON(t, rec, &created)

	rec = httptest.NewRecorder()
	env.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recordings/"+created.ID+"/transcribe", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("transcribe: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var tr domain.TranscriptionResult
	decodeJSON(t, rec, &tr)
	if tr.Status != domain.StatusTranscribed {
		t.Fatalf("expected transcribed, got %s", tr.Status)
	}
	if tr.Transcript != "오늘 할 일을 기록합니다" {
		t.Fatalf("unexpected transcript %q", tr.Transcript)
	}

	rec = httptest.NewRecorder()
	env.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recordings/"+created.ID+"/summarize?summary_type=memo", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("summarize: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var sum domain.SummaryResult
	decodeJSON(t, rec, &sum)

	if sum.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", sum.Status)
	}
	if sum.SummaryType != domain.SummaryMemo {
		t.Fatalf("unexpected summary type %s", sum.SummaryType)
	}
	allowed := map[string]struct{}{"ideas": {}, "todos": {}, "reminders": {}}
	if len(sum.ExtraData) == 0 {
		t.Fatal("expected extra_data to be populated")
	}
	for key := range sum.ExtraData {
		if _, ok := allowed[key]; !ok {
			t.Fatalf("unexpected extra_data key %q", key)
		}
	}

	stored, err := env.store.Get(created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.StatusCompleted {
		t.Fatalf("stored status should be completed, got %s", stored.Status)
	}
}

func TestTranscribeNotFound(t *testing.T) {
	env := setupTestServer(t, "", "{}", http.StatusOK, http.StatusOK)

	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recordings/missing/transcribe", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestTranscribeShortCircuitsWhenTranscriptExists(t *testing.T) {
	env := setupTestServer(t, "새 변환", "{}", http.StatusOK, http.StatusOK)

	created, err := env.store.Create(domain.Recording{
		FileName:   "done.mp3",
		FilePath:   "done.mp3",
		Transcript: "기존 변환 결과",
		Status:     domain.StatusTranscribed,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recordings/"+created.ID+"/transcribe", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var tr domain.TranscriptionResult
	decodeJSON(t, rec, &tr)
	if tr.Transcript != "기존 변환 결과" {
		t.Fatalf("expected stored transcript, got %q", tr.Transcript)
	}
	if atomic.LoadInt32(&env.sttCalls) != 0 {
		t.Fatalf("expected zero STT calls, got %d", env.sttCalls)
	}
}

func TestTranscribeRemoteFailureSetsErrorStatus(t *testing.T) {
	env := setupTestServer(t, "quota exceeded", "{}", http.StatusTooManyRequests, http.StatusOK)

	req := uploadRequest(t, "memo.webm", []byte("webm-bytes"), nil)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	var created domain.Recording
	decodeJSON(t, rec, &created)

	rec = httptest.NewRecorder()
	env.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recordings/"+created.ID+"/transcribe", nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}

	stored, err := env.store.Get(created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.StatusError {
		t.Fatalf("expected error status, got %s", stored.Status)
	}
}

func TestSummarizeRequiresTranscript(t *testing.T) {
	env := setupTestServer(t, "", "{}", http.StatusOK, http.StatusOK)

	created, err := env.store.Create(domain.Recording{FileName: "raw.wav", FilePath: "raw.wav"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recordings/"+created.ID+"/summarize", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	stored, _ := env.store.Get(created.ID)
	if stored.Status != domain.StatusUploaded {
		t.Fatalf("status must not change on precondition failure, got %s", stored.Status)
	}
	if atomic.LoadInt32(&env.llmCalls) != 0 {
		t.Fatalf("expected zero LLM calls, got %d", env.llmCalls)
	}
}

func TestSummarizeInvalidType(t *testing.T) {
	env := setupTestServer(t, "", "{}", http.StatusOK, http.StatusOK)

	created, _ := env.store.Create(domain.Recording{FileName: "a.mp3", Transcript: "내용"})

	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recordings/"+created.ID+"/summarize?summary_type=podcast", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSummarizeRejectsInvalidCustomFields(t *testing.T) {
	env := setupTestServer(t, "", "{}", http.StatusOK, http.StatusOK)

	created, _ := env.store.Create(domain.Recording{
		FileName:   "a.mp3",
		Transcript: "내용",
		Status:     domain.StatusTranscribed,
	})

	body := `{"custom_fields": ["a", "b", "c", "d", "e", "f"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/recordings/"+created.ID+"/summarize", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if atomic.LoadInt32(&env.llmCalls) != 0 {
		t.Fatalf("expected zero LLM calls, got %d", env.llmCalls)
	}

	stored, _ := env.store.Get(created.ID)
	if stored.Status != domain.StatusTranscribed {
		t.Fatalf("status must not change on validation failure, got %s", stored.Status)
	}
}

func TestSummarizeIdempotentForSameType(t *testing.T) {
	lectureReply := `{"summary": "강의 요약", "key_points": ["개념"], "concepts": ["포인터"]}`
	env := setupTestServer(t, "", lectureReply, http.StatusOK, http.StatusOK)

	created, err := env.store.Create(domain.Recording{
		FileName:    "talk.m4a",
		Transcript:  "강의 내용",
		Summary:     "저장된 메모 요약",
		SummaryType: domain.SummaryMemo,
		KeyPoints:   []string{"기존 포인트"},
		Status:      domain.StatusCompleted,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recordings/"+created.ID+"/summarize?summary_type=memo", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var sum domain.SummaryResult
	decodeJSON(t, rec, &sum)
	if sum.Summary != "저장된 메모 요약" {
		t.Fatalf("expected stored summary unchanged, got %q", sum.Summary)
	}
	if atomic.LoadInt32(&env.llmCalls) != 0 {
		t.Fatalf("repeat summarize must make zero remote calls, got %d", env.llmCalls)
	}

	// A different type goes back to the model exactly once.
	rec = httptest.NewRecorder()
	env.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recordings/"+created.ID+"/summarize?summary_type=lecture", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	decodeJSON(t, rec, &sum)
	if sum.Summary != "강의 요약" {
		t.Fatalf("expected new summary, got %q", sum.Summary)
	}
	if sum.SummaryType != domain.SummaryLecture {
		t.Fatalf("expected lecture type, got %s", sum.SummaryType)
	}
	if atomic.LoadInt32(&env.llmCalls) != 1 {
		t.Fatalf("expected exactly one LLM call, got %d", env.llmCalls)
	}
}

func TestSummarizeRemoteFailureSetsErrorStatus(t *testing.T) {
	env := setupTestServer(t, "", "upstream busy", http.StatusOK, http.StatusServiceUnavailable)

	created, _ := env.store.Create(domain.Recording{
		FileName:   "a.mp3",
		Transcript: "내용",
		Status:     domain.StatusTranscribed,
	})

	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recordings/"+created.ID+"/summarize", nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}

	stored, _ := env.store.Get(created.ID)
	if stored.Status != domain.StatusError {
		t.Fatalf("expected error status, got %s", stored.Status)
	}
}

func TestListPagination(t *testing.T) {
	env := setupTestServer(t, "", "{}", http.StatusOK, http.StatusOK)

	for i := 1; i <= 3; i++ {
		_, err := env.store.Create(domain.Recording{
			ID:        fmt.Sprintf("rec-%d", i),
			FileName:  fmt.Sprintf("rec-%d.mp3", i),
			CreatedAt: int64(1000 + i),
		})
		if err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/recordings?page=1&page_size=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var page domain.RecordingPage
	decodeJSON(t, rec, &page)
	if page.Total != 3 || len(page.Items) != 2 {
		t.Fatalf("unexpected page: total=%d items=%d", page.Total, len(page.Items))
	}
	if page.Items[0].ID != "rec-3" {
		t.Fatalf("expected newest first, got %s", page.Items[0].ID)
	}

	// Out-of-range page size falls back to the default.
	rec = httptest.NewRecorder()
	env.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/recordings?page_size=500", nil))
	decodeJSON(t, rec, &page)
	if page.PageSize != 20 {
		t.Fatalf("expected default page size 20, got %d", page.PageSize)
	}
}

func TestDeleteRemovesFileAndMetadata(t *testing.T) {
	env := setupTestServer(t, "", "{}", http.StatusOK, http.StatusOK)

	req := uploadRequest(t, "gone.ogg", []byte("ogg-bytes"), nil)
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	var created domain.Recording
	decodeJSON(t, rec, &created)

	fullPath := filepath.Join(env.files.FilesDir(), created.FilePath)
	if _, err := os.Stat(fullPath); err != nil {
		t.Fatalf("uploaded file missing before delete: %v", err)
	}

	rec = httptest.NewRecorder()
	env.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/recordings/"+created.ID, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	if _, err := os.Stat(fullPath); !os.IsNotExist(err) {
		t.Fatal("audio file should be removed")
	}

	rec = httptest.NewRecorder()
	env.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/recordings/"+created.ID, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestExportPDF(t *testing.T) {
	env := setupTestServer(t, "", "{}", http.StatusOK, http.StatusOK)

	created, _ := env.store.Create(domain.Recording{
		FileName:   "talk.mp3",
		Title:      "Weekly sync",
		Transcript: "transcript text",
		Summary:    "summary text",
		KeyPoints:  []string{"one", "two"},
		Status:     domain.StatusCompleted,
	})

	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/recordings/"+created.ID+"/pdf", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatal("response does not look like a PDF")
	}
}

func TestExportPDFRequiresTranscript(t *testing.T) {
	env := setupTestServer(t, "", "{}", http.StatusOK, http.StatusOK)

	created, _ := env.store.Create(domain.Recording{FileName: "raw.wav"})

	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/recordings/"+created.ID+"/pdf", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
