package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"game-contract/ai-daemon/internal/config"
	"game-contract/ai-daemon/internal/engine"
	"game-contract/ai-daemon/internal/server"
	sharedLogger "game-contract/shared/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// AI-демон живет между раундами контракта: супервизор запускает его один раз,
// дальше процесс усыновляется по PID-файлу. SIGTERM/SIGINT - единственный
// штатный способ его остановить.
func main() {
	_ = godotenv.Load()

	role := flag.String("role", "", "роль демона: game или jury")
	modelPath := flag.String("model", "", "путь к gguf-файлу модели")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}
	if *role != "" {
		cfg.Role = *role
	}
	if *modelPath != "" {
		cfg.ModelPath = *modelPath
	}
	if err := cfg.ApplyRoleDefaults(); err != nil {
		log.Fatalf("Ошибка конфигурации: %v", err)
	}

	logger, err := sharedLogger.New(sharedLogger.Config{Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer logger.Sync()
	logger.Info("AI Daemon запускается",
		zap.String("role", cfg.Role),
		zap.Int("port", cfg.Port),
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.String("model_path", cfg.ModelPath))

	var eng engine.Engine
	switch cfg.Provider {
	case "openai":
		eng = engine.NewOpenAIEngine(cfg.BaseURL, os.Getenv("AI_API_KEY"), cfg.Model, cfg.Timeout, logger)
	default:
		eng, err = engine.NewOllamaEngine(cfg.BaseURL, cfg.Model, cfg.ContextWindow, cfg.KeepAlive, cfg.Timeout, logger)
		if err != nil {
			logger.Fatal("Ollama движок не создан", zap.Error(err))
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	daemon := server.New(cfg, eng, logger)
	if err := daemon.Run(ctx); err != nil {
		logger.Fatal("Демон упал", zap.Error(err))
	}
	logger.Info("Демон завершился штатно")
}
