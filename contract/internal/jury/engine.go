package jury

import (
	"context"
	"fmt"

	"game-contract/shared/interfaces"
	"game-contract/shared/models"

	"go.uber.org/zap"
)

// AIDecisionEngine - боевой движок решений: бинарная валидация через демон жюри.
// Когда демон недоступен или грузит модель, движок отдает fallback-голос.
// Дефолт {valid, 0.1} - осознанный сдвиг в сторону живучести: игра продолжает
// идти при офлайновых валидаторах, но вес такого голоса минимален. Полярность
// настраивается (альтернатива - INVALID при отсутствии, безопаснее, но стопорит
// игру на время старта).
type AIDecisionEngine struct {
	client             interfaces.InferenceClient
	fallbackValid      bool
	fallbackConfidence float64
	logger             *zap.Logger
}

var _ interfaces.DecisionEngine = (*AIDecisionEngine)(nil)

func NewAIDecisionEngine(client interfaces.InferenceClient, fallbackValid bool, logger *zap.Logger) *AIDecisionEngine {
	return &AIDecisionEngine{
		client:             client,
		fallbackValid:      fallbackValid,
		fallbackConfidence: 0.1,
		logger:             logger.Named("decision_engine"),
	}
}

func (e *AIDecisionEngine) fallback(reason string) models.Decision {
	e.logger.Warn("Fallback-решение жюри: валидатор недоступен",
		zap.String("reason", reason),
		zap.Bool("fallback_valid", e.fallbackValid))
	return models.Decision{
		IsValid:    e.fallbackValid,
		Confidence: e.fallbackConfidence,
		Reason:     reason,
	}
}

// MakeDecision оценивает утверждение через validate-запрос демона жюри.
func (e *AIDecisionEngine) MakeDecision(ctx context.Context, messageType, messageData, decisionContext string) models.Decision {
	ping, err := e.client.Ping(ctx)
	if err != nil {
		return e.fallback("AI daemon not running")
	}
	if ping.Status != models.DaemonStatusReady || !ping.ModelLoaded {
		return e.fallback(fmt.Sprintf("AI model not ready (%s)", ping.Status))
	}

	resp, err := e.client.Validate(ctx, messageData)
	if err != nil {
		return e.fallback(fmt.Sprintf("AI error: %v", err))
	}

	reason := "AI validation"
	if resp.RawResponse != "" {
		reason = fmt.Sprintf("AI validation: %s", resp.RawResponse)
	}
	return models.Decision{
		IsValid:    resp.Valid,
		Confidence: resp.Confidence,
		Reason:     reason,
		Metadata:   resp.RawResponse,
	}
}

func (e *AIDecisionEngine) EngineInfo() string {
	return "AIDecisionEngine v1.0 - jury daemon backed"
}
