package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит конфигурацию контрактного оркестратора.
type Config struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Каталоги персистентного состояния
	GameDataDir string `envconfig:"GAME_DATA_DIR" default:"game_data"`
	ModelDir    string `envconfig:"MODEL_DIR" default:"model"`

	// Артефакт модели (докачивается по чанку за раунд)
	ModelName      string `envconfig:"MODEL_NAME" default:"gpt-oss-20b-Q5_K_M.gguf"`
	ModelSizeBytes int64  `envconfig:"MODEL_SIZE_BYTES" default:"11717357248"`
	ModelSHA256    string `envconfig:"MODEL_SHA256" default:"9c3814533c5b4c84d42b5dce4376bbdfd7227e990b8733a3a1c4f741355b3e75"`
	ModelSourceURL string `envconfig:"MODEL_SOURCE_URL" default:"https://huggingface.co/unsloth/gpt-oss-20b-GGUF/resolve/main/gpt-oss-20b-Q5_K_M.gguf"`
	ModelChunkSize int64  `envconfig:"MODEL_CHUNK_SIZE" default:"268435456"`

	// AI-демоны: игровой и валидатор жюри
	DaemonBinary      string        `envconfig:"AI_DAEMON_BINARY" default:"./ai-daemon"`
	GameDaemonAddr    string        `envconfig:"GAME_DAEMON_ADDR" default:"127.0.0.1:8765"`
	JuryDaemonAddr    string        `envconfig:"JURY_DAEMON_ADDR" default:"127.0.0.1:8766"`
	GameDaemonPIDFile string        `envconfig:"GAME_DAEMON_PID_FILE" default:"ai_daemon.pid"`
	JuryDaemonPIDFile string        `envconfig:"JURY_DAEMON_PID_FILE" default:"ai_jury_daemon.pid"`
	GenerationTimeout time.Duration `envconfig:"GENERATION_TIMEOUT" default:"120s"`

	// Полярность fallback-голоса при недоступном валидаторе.
	// true = живучесть (игра идет), false = безопасность (стопор на старте).
	JuryFallbackValid bool `envconfig:"JURY_FALLBACK_VALID" default:"true"`

	// NFT-минтинг через внешний signing-сервис
	NFTEnabled        bool   `envconfig:"NFT_ENABLED" default:"true"`
	SigningServiceURL string `envconfig:"SIGNING_SERVICE_URL" default:"http://localhost:3001"`
	SignerSentinel    string `envconfig:"SIGNER_SENTINEL" default:"xahau_signer.started"`
	// Секретное поле БЕЗ envconfig тега
	MinterWalletSeed string

	// Сокет NPL-агента хоста (пусто - NPL недоступен)
	NPLSocket string `envconfig:"NPL_SOCKET"`
}

// LoadConfig загружает конфигурацию из переменных окружения и секретов.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации контракта: %w", err)
	}

	// Секрет кошелька минтера обязателен только при включенном NFT-триггере.
	cfg.MinterWalletSeed = os.Getenv("MINTER_WALLET_SEED")
	if cfg.NFTEnabled && cfg.MinterWalletSeed == "" {
		return nil, fmt.Errorf("MINTER_WALLET_SEED не задан, а NFT_ENABLED=true")
	}

	return &cfg, nil
}
