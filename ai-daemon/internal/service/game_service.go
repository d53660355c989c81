package service

import (
	"context"
	"strings"
	"sync"

	"game-contract/ai-daemon/internal/engine"
	"game-contract/shared/models"

	"go.uber.org/zap"
)

// GameService - игровая дисциплина демона: генерация мира и обновление
// состояния игрока. Разговорная непрерывность реализована историей чата,
// живущей в памяти демона между запросами (persistent-контекст): в режиме
// продолжения к ней дописывается только короткий пользовательский ход.
type GameService struct {
	eng           engine.Engine
	contextWindow int
	logger        *zap.Logger

	// Persistent-контекст. Один писатель: генерации player_action
	// сериализуются мьютексом (CreateGame историю не трогает и мьютекс
	// не берет), у демона жюри история не используется вовсе.
	mu                 sync.Mutex
	history            []engine.Message
	conversationActive bool
	actionCount        int
}

// Сэмплирование игровых запросов.
var (
	createGameSampling = engine.SamplingParams{
		TopK:        20,
		TopP:        0.7,
		Temperature: 0.3,
		MaxTokens:   500,
	}
	playerActionSampling = engine.SamplingParams{
		TopK:        40,
		TopP:        0.9,
		Temperature: 0.8,
		MaxTokens:   400,
		Stop:        []string{models.EndStateMarker},
	}
)

func NewGameService(eng engine.Engine, contextWindow int, logger *zap.Logger) *GameService {
	return &GameService{
		eng:           eng,
		contextWindow: contextWindow,
		logger:        logger.Named("game_service"),
	}
}

// CreateGame генерирует полный структурированный мир по промту пользователя.
// Ответ - свободный текст; контракт сам делит его на world и state.
func (s *GameService) CreateGame(ctx context.Context, prompt string) (string, error) {
	messages := []engine.Message{
		{Role: "user", Content: buildCreateGamePrompt(prompt)},
	}
	return s.eng.Generate(ctx, messages, createGameSampling)
}

// PlayerAction возвращает блок нового состояния игрока.
//
// Начальный режим (continueConversation=false) собирает полный контекст
// (мир + старое состояние + действие) и после успешной генерации засевает
// persistent-историю. Режим продолжения дописывает к истории только
// короткий ход; при пустой истории или ошибке декодирования прозрачно
// откатывается в начальный режим.
func (s *GameService) PlayerAction(ctx context.Context, gameID, action, oldState, world string, continueConversation bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw string
	var err error

	if continueConversation && s.conversationActive {
		raw, err = s.generateContinuation(ctx, action)
		if err != nil {
			s.logger.Warn("Продолжение разговора не удалось, откат в начальный режим",
				zap.String("game_id", gameID), zap.Error(err))
			s.resetLocked()
			raw, err = s.generateInitial(ctx, action, oldState, world)
		}
	} else {
		raw, err = s.generateInitial(ctx, action, oldState, world)
	}
	if err != nil {
		return "", err
	}

	s.actionCount++
	return ExtractStateBlock(raw), nil
}

func (s *GameService) generateInitial(ctx context.Context, action, oldState, world string) (string, error) {
	s.logger.Info("Начальный режим: собираем полный контекст")

	messages := []engine.Message{
		{Role: "system", Content: playerActionSystemPrompt},
		{Role: "user", Content: buildPlayerActionContent(world, oldState, action)},
	}

	raw, err := s.eng.Generate(ctx, messages, playerActionSampling)
	if err != nil {
		return "", err
	}

	// Засеваем persistent-контекст: тот же промт плюс ответ ассистента.
	// Позиция в контексте - это длина истории.
	s.history = append(messages[:len(messages):len(messages)], engine.Message{Role: "assistant", Content: raw})
	s.conversationActive = true
	s.logger.Info("Persistent-контекст установлен", zap.Int("position", len(s.history)))

	return raw, nil
}

func (s *GameService) generateContinuation(ctx context.Context, action string) (string, error) {
	s.logger.Info("Режим продолжения: дописываем ход к persistent-контексту",
		zap.Int("position", len(s.history)))

	messages := append(s.history, engine.Message{Role: "user", Content: buildContinuationContent(action)})
	// Окно контекста ограничено; старые ходы выбрасываются.
	messages = engine.TrimHistory(messages, s.contextWindow-playerActionSampling.MaxTokens)

	raw, err := s.eng.Generate(ctx, messages, playerActionSampling)
	if err != nil {
		return "", err
	}

	s.history = append(messages, engine.Message{Role: "assistant", Content: raw})
	return raw, nil
}

// Reset сбрасывает persistent-контекст разговора.
func (s *GameService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *GameService) resetLocked() {
	s.history = nil
	s.conversationActive = false
	s.actionCount = 0
	s.logger.Info("Persistent-контекст сброшен")
}

// ConversationActive - установлен ли persistent-контекст (для тестов и логов).
func (s *GameService) ConversationActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationActive
}

// ExtractStateBlock вырезает блок состояния из сырого вывода модели.
// Берется ПОСЛЕДНИЙ begin-маркер и первый end-маркер после него: модель
// может повторить формат из промта до настоящего ответа. Без маркеров
// возвращается сырой вывод - оркестратор расценит его как кандидата
// в невалидную транзицию.
func ExtractStateBlock(raw string) string {
	begin := strings.LastIndex(raw, models.BeginStateMarker)
	if begin < 0 {
		return raw
	}
	rest := raw[begin+len(models.BeginStateMarker):]
	end := strings.Index(rest, models.EndStateMarker)
	if end < 0 {
		// Генерация могла остановиться по stop-последовательности до того,
		// как end-маркер попал в вывод.
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}
