package http

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dlsdud9098/voice-summary-api/internal/config"
	"github.com/dlsdud9098/voice-summary-api/internal/domain"
	"github.com/dlsdud9098/voice-summary-api/internal/services"
	"github.com/dlsdud9098/voice-summary-api/internal/storage"
)

var allowedExtensions = map[string]struct{}{
	".webm": {},
	".mp3":  {},
	".wav":  {},
	".m4a":  {},
	".ogg":  {},
	".flac": {},
}

type API struct {
	cfg         config.Config
	files       *storage.FileManager
	store       *storage.Store
	transcriber *services.ChunkTranscriber
	llm         *services.LLMService
	pdf         *services.PDFService
}

func NewAPI(cfg config.Config, fm *storage.FileManager, store *storage.Store, transcriber *services.ChunkTranscriber, llm *services.LLMService, pdf *services.PDFService) *API {
	return &API{cfg: cfg, files: fm, store: store, transcriber: transcriber, llm: llm, pdf: pdf}
}

func registerRoutes(r *gin.Engine, api *API) {
	r.GET("/health", api.handleHealth)

	apiGroup := r.Group("/api")
	{
		recordings := apiGroup.Group("/recordings")
		recordings.POST("/upload", api.handleUpload)
		recordings.GET("", api.handleList)
		recordings.GET("/:id", api.handleGet)
		recordings.DELETE("/:id", api.handleDelete)
		recordings.POST("/:id/transcribe", api.handleTranscribe)
		recordings.POST("/:id/summarize", api.handleSummarize)
		recordings.GET("/:id/pdf", api.handleExportPDF)
	}

	r.Static("/files", api.files.FilesDir())
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": a.cfg.AppName})
}

func (a *API) handleUpload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "missing audio file")
		return
	}

	if fileHeader.Filename == "" {
		respondMessage(c, http.StatusBadRequest, "file name is empty")
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if _, ok := allowedExtensions[ext]; !ok {
		respondMessage(c, http.StatusBadRequest, fmt.Sprintf("unsupported file extension %q, allowed: webm, mp3, wav, m4a, ogg, flac", ext))
		return
	}

	if fileHeader.Size > a.cfg.MaxUploadBytes {
		respondMessage(c, http.StatusBadRequest, fmt.Sprintf("file exceeds the %d MB upload limit", a.cfg.MaxUploadBytes/1024/1024))
		return
	}

	upload, err := fileHeader.Open()
	if err != nil {
		respondMessage(c, http.StatusInternalServerError, "unable to read uploaded file")
		return
	}
	defer upload.Close()

	content, err := io.ReadAll(upload)
	if err != nil {
		respondMessage(c, http.StatusInternalServerError, "unable to read uploaded file")
		return
	}

	filePath, fileURL, err := a.files.Save(content, fileHeader.Filename)
	if err != nil {
		log.Printf("error saving uploaded audio: %v", err)
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "audio/webm"
	}

	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		title = fileHeader.Filename
	}

	var duration float64
	if raw := c.PostForm("duration"); raw != "" {
		duration, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			respondMessage(c, http.StatusBadRequest, "invalid duration")
			return
		}
	}

	rec, err := a.store.Create(domain.Recording{
		FileURL:  fileURL,
		FileName: fileHeader.Filename,
		FilePath: filePath,
		FileSize: int64(len(content)),
		MimeType: mimeType,
		Title:    title,
		Duration: duration,
		Status:   domain.StatusUploaded,
	})
	if err != nil {
		log.Printf("recording save failed: %v", err)
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusCreated, rec)
}

func (a *API) handleTranscribe(c *gin.Context) {
	id := c.Param("id")

	rec, err := a.store.Get(id)
	if err != nil {
		respondMessage(c, http.StatusNotFound, "recording not found")
		return
	}

	// Already transcribed: return the stored result without another call.
	if rec.Transcript != "" {
		c.JSON(http.StatusOK, domain.TranscriptionResult{
			RecordingID: id,
			Transcript:  rec.Transcript,
			Status:      rec.Status,
		})
		return
	}

	if _, err := a.store.SetStatus(id, domain.StatusTranscribing); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	content, err := a.files.Read(rec.FilePath)
	if err != nil {
		a.failRecording(id, "read audio", err)
		if errors.Is(err, storage.ErrNotFound) {
			respondMessage(c, http.StatusNotFound, "audio file not found")
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	transcript, err := a.transcriber.Transcribe(c.Request.Context(), content, rec.FileName, a.cfg.DefaultLanguage)
	if err != nil {
		a.failRecording(id, "transcription", err)
		respondMessage(c, http.StatusBadGateway, "transcription failed: "+err.Error())
		return
	}

	updated, err := a.store.Update(id, func(r *domain.Recording) {
		r.Transcript = transcript
		r.Status = domain.StatusTranscribed
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, domain.TranscriptionResult{
		RecordingID: id,
		Transcript:  updated.Transcript,
		Status:      updated.Status,
	})
}

func (a *API) handleSummarize(c *gin.Context) {
	id := c.Param("id")

	rec, err := a.store.Get(id)
	if err != nil {
		respondMessage(c, http.StatusNotFound, "recording not found")
		return
	}

	summaryType := domain.SummaryType(c.DefaultQuery("summary_type", string(domain.SummaryGeneral)))
	if !summaryType.Valid() {
		respondMessage(c, http.StatusBadRequest, fmt.Sprintf("invalid summary_type %q", summaryType))
		return
	}

	var payload struct {
		CustomFields []string `json:"custom_fields"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			respondMessage(c, http.StatusBadRequest, "invalid payload")
			return
		}
	}

	if rec.Transcript == "" {
		respondMessage(c, http.StatusBadRequest, "recording has no transcript, run transcribe first")
		return
	}

	if err := services.ValidateCustomFields(payload.CustomFields); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	// Same type already summarized: return the stored result as-is.
	if rec.Summary != "" && rec.SummaryType == summaryType {
		c.JSON(http.StatusOK, domain.SummaryResult{
			RecordingID: id,
			Summary:     rec.Summary,
			SummaryType: rec.SummaryType,
			KeyPoints:   keyPointsOrEmpty(rec.KeyPoints),
			ExtraData:   rec.ExtraData,
			Status:      rec.Status,
		})
		return
	}

	if _, err := a.store.SetStatus(id, domain.StatusSummarizing); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	out, err := a.llm.Summarize(c.Request.Context(), rec.Transcript, summaryType, payload.CustomFields)
	if err != nil {
		a.failRecording(id, "summarization", err)
		respondMessage(c, http.StatusBadGateway, "summarization failed: "+err.Error())
		return
	}

	updated, err := a.store.Update(id, func(r *domain.Recording) {
		r.Summary = out.Summary
		r.SummaryType = summaryType
		r.KeyPoints = out.KeyPoints
		r.ExtraData = out.ExtraData
		r.Status = domain.StatusCompleted
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, domain.SummaryResult{
		RecordingID: id,
		Summary:     updated.Summary,
		SummaryType: updated.SummaryType,
		KeyPoints:   keyPointsOrEmpty(updated.KeyPoints),
		ExtraData:   updated.ExtraData,
		Status:      updated.Status,
	})
}

func (a *API) handleList(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil || pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	items, total := a.store.List(page, pageSize)

	c.JSON(http.StatusOK, domain.RecordingPage{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

func (a *API) handleGet(c *gin.Context) {
	rec, err := a.store.Get(c.Param("id"))
	if err != nil {
		respondMessage(c, http.StatusNotFound, "recording not found")
		return
	}

	c.JSON(http.StatusOK, rec)
}

func (a *API) handleDelete(c *gin.Context) {
	id := c.Param("id")

	rec, err := a.store.Get(id)
	if err != nil {
		respondMessage(c, http.StatusNotFound, "recording not found")
		return
	}

	if err := a.files.Delete(rec.FilePath); err != nil {
		log.Printf("error deleting audio for %s: %v", id, err)
	}

	if err := a.store.Delete(id); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) handleExportPDF(c *gin.Context) {
	rec, err := a.store.Get(c.Param("id"))
	if err != nil {
		respondMessage(c, http.StatusNotFound, "recording not found")
		return
	}

	if rec.Transcript == "" {
		respondMessage(c, http.StatusBadRequest, "recording has no transcript, run transcribe first")
		return
	}

	data, err := a.pdf.Generate(rec)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.ID+".pdf"))
	c.Data(http.StatusOK, "application/pdf", data)
}

func (a *API) failRecording(id, stage string, cause error) {
	log.Printf("%s failed for %s: %v", stage, id, cause)
	if _, err := a.store.SetStatus(id, domain.StatusError); err != nil {
		log.Printf("error status update failed for %s: %v", id, err)
	}
}

func keyPointsOrEmpty(points []string) []string {
	if points == nil {
		return []string{}
	}
	return points
}

func respondError(c *gin.Context, status int, err error) {
	respondMessage(c, status, err.Error())
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
