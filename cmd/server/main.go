package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/dlsdud9098/voice-summary-api/internal/config"
	httpserver "github.com/dlsdud9098/voice-summary-api/internal/http"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	log.Printf("%s starting on port %s", cfg.AppName, cfg.Port)
	log.Printf("stt model: %s, llm model: %s, storage: %s", cfg.GroqModel, cfg.CerebrasModel, cfg.StoragePath)

	srv, err := httpserver.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	if err := srv.Run(); err != nil {
		log.Fatalf("server stopped with error: %v", err)
	}
}
