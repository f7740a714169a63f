package http

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/dlsdud9098/voice-summary-api/internal/config"
	"github.com/dlsdud9098/voice-summary-api/internal/services"
	"github.com/dlsdud9098/voice-summary-api/internal/storage"
	"github.com/dlsdud9098/voice-summary-api/pkg/executor"
)

type Server struct {
	engine *gin.Engine
	cfg    config.Config
}

func NewServer(cfg config.Config) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	fm, err := storage.NewFileManager(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init file manager: %w", err)
	}

	store, err := storage.NewStore(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	stt := services.NewSTTService(cfg)
	transcriber := services.NewChunkTranscriber(stt, executor.New())
	llm := services.NewLLMService(cfg)
	pdf := services.NewPDFService()

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger())
	// Headroom over the file cap for multipart framing and form fields.
	engine.Use(MaxBodySize(cfg.MaxUploadBytes + 1024*1024))
	engine.Use(CORS())

	api := NewAPI(cfg, fm, store, transcriber, llm, pdf)
	registerRoutes(engine, api)

	return &Server{engine: engine, cfg: cfg}, nil
}

func (s *Server) Run() error {
	addr := fmt.Sprintf(":%s", s.cfg.Port)
	return s.engine.Run(addr)
}
