package interfaces

import (
	"context"
	"encoding/json"

	"game-contract/shared/models"
)

// DecisionEngine - движок локальной оценки транзиции для жюри.
// Боевая реализация ходит во второй AI-демон; в тестах подменяется моком.
type DecisionEngine interface {
	// MakeDecision оценивает утверждение messageData в рамках context.
	// Не возвращает ошибку: деградация движка выражается fallback-решением
	// с низкой уверенностью, чтобы консенсус продолжал работать.
	MakeDecision(ctx context.Context, messageType, messageData, decisionContext string) models.Decision
	EngineInfo() string
}

// GameStateRepository - персистентность партий: world (статика) и state (динамика).
// Реализация файловая; формат и имена файлов реплицируются на всех узлах.
type GameStateRepository interface {
	GenerateGameID(prompt, userKey string) (string, error)
	SaveWorld(gameID, content string) error
	SaveState(gameID, content string) error
	LoadWorld(gameID string) (string, error)
	LoadState(gameID string) (string, error)
	ListGames() ([]string, error)
	// SeparateContent делит свободный текст генерации на world и state.
	SeparateContent(full string) (world, state string)
}

// DaemonRunState - трехзначный статус демона с точки зрения клиента.
type DaemonRunState int

const (
	DaemonStopped DaemonRunState = iota
	DaemonLoading
	DaemonRunning
)

func (s DaemonRunState) String() string {
	switch s {
	case DaemonRunning:
		return "running"
	case DaemonLoading:
		return "loading"
	default:
		return "stopped"
	}
}

// InferenceClient - типизированный клиент AI-демона (игрового или жюри).
type InferenceClient interface {
	Ping(ctx context.Context) (models.PingResponse, error)
	// Status сводит ping и PID-файл в трехзначное состояние.
	Status(ctx context.Context) DaemonRunState
	// RawStatus возвращает сырой JSON ответа ping для вставки в stat.
	RawStatus(ctx context.Context) json.RawMessage
	IsModelReady(ctx context.Context) bool
	CreateGame(ctx context.Context, prompt, userID string) (string, error)
	PlayerAction(ctx context.Context, gameID, action, oldState, world string, continueConversation bool) (string, error)
	Validate(ctx context.Context, statement string) (models.ValidateResponse, error)
	ResetConversation(ctx context.Context) error
}
