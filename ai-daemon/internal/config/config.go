package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Роли демона: генерация игры и бинарная валидация жюри.
// Один бинарь, две дисциплины промтов; супервизор контракта поднимает
// по процессу на роль с разными портами.
const (
	RoleGame = "game"
	RoleJury = "jury"
)

// Config содержит конфигурацию AI-демона.
type Config struct {
	Role     string `envconfig:"AI_DAEMON_ROLE" default:"game"`
	Port     int    `envconfig:"AI_DAEMON_PORT"` // 0 - выбрать по роли
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Бэкенд инференса: ollama (нативный API) или openai-совместимый
	// сервер llama.cpp (llama-server).
	Provider  string        `envconfig:"AI_PROVIDER" default:"ollama"`
	BaseURL   string        `envconfig:"AI_BASE_URL" default:"http://127.0.0.1:11434"`
	Model     string        `envconfig:"AI_MODEL" default:"gpt-oss-20b"`
	ModelPath string        `envconfig:"AI_MODEL_PATH"` // Путь gguf-файла, переопределяется флагом --model
	Timeout   time.Duration `envconfig:"AI_TIMEOUT" default:"180s"`
	KeepAlive time.Duration `envconfig:"AI_KEEP_ALIVE" default:"24h"`

	// Окно контекста и бюджет промта
	ContextWindow int `envconfig:"AI_CONTEXT_WINDOW" default:"8192"`
	BatchSize     int `envconfig:"AI_BATCH_SIZE" default:"2048"`

	PIDFile string `envconfig:"AI_DAEMON_PID_FILE"` // Пусто - выбрать по роли

	HeartbeatInterval time.Duration `envconfig:"AI_HEARTBEAT_INTERVAL" default:"60s"`
}

// LoadConfig загружает конфигурацию демона и доводит ролевые дефолты.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации ai-daemon: %w", err)
	}
	if err := cfg.ApplyRoleDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyRoleDefaults заполняет порт и PID-файл по роли, если они не заданы.
// Вызывается повторно после разбора флагов командной строки.
func (c *Config) ApplyRoleDefaults() error {
	switch c.Role {
	case RoleGame:
		if c.Port == 0 {
			c.Port = 8765
		}
		if c.PIDFile == "" {
			c.PIDFile = "ai_daemon.pid"
		}
	case RoleJury:
		if c.Port == 0 {
			c.Port = 8766
		}
		if c.PIDFile == "" {
			c.PIDFile = "ai_jury_daemon.pid"
		}
	default:
		return fmt.Errorf("неизвестная роль демона: %q", c.Role)
	}
	return nil
}
