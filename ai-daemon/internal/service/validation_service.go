package service

import (
	"context"
	"strings"

	"game-contract/ai-daemon/internal/engine"
	"game-contract/shared/models"

	"go.uber.org/zap"
)

// ValidationService - дисциплина жюри: бинарная валидация утверждения.
// Сэмплирование предельно зажато (top-k 2, температура 0.01, 5 токенов):
// модель должна выдать одно слово YES или NO.
type ValidationService struct {
	eng    engine.Engine
	logger *zap.Logger
}

var validationSampling = engine.SamplingParams{
	TopK:        2,
	Temperature: 0.01,
	MaxTokens:   5,
}

func NewValidationService(eng engine.Engine, logger *zap.Logger) *ValidationService {
	return &ValidationService{
		eng:    eng,
		logger: logger.Named("validation_service"),
	}
}

// Validate оценивает утверждение и возвращает (valid, confidence, raw).
func (s *ValidationService) Validate(ctx context.Context, statement string) (models.ValidateResponse, error) {
	messages := []engine.Message{
		{Role: "user", Content: buildValidationPrompt(statement)},
	}

	raw, err := s.eng.Generate(ctx, messages, validationSampling)
	if err != nil {
		return models.ValidateResponse{}, err
	}

	valid, confidence := ParseBinaryVerdict(raw)
	s.logger.Info("Валидация завершена",
		zap.Bool("valid", valid),
		zap.Float64("confidence", confidence),
		zap.String("raw", raw))

	return models.ValidateResponse{
		Valid:       valid,
		Confidence:  confidence,
		RawResponse: raw,
	}, nil
}

// ParseBinaryVerdict разбирает ответ валидатора оборонительно: точное
// совпадение, префикс, подстрока и неоднозначность дают убывающую
// уверенность. Неясный ответ - (false, 0.3): безопасный дефолт.
func ParseBinaryVerdict(raw string) (bool, float64) {
	cleaned := strings.ToLower(raw)
	// Убираем все пробельные символы, модель любит переводы строк.
	cleaned = strings.Join(strings.Fields(cleaned), "")

	containsYes := strings.Contains(cleaned, "yes")
	containsNo := strings.Contains(cleaned, "no")
	containsTrue := strings.Contains(cleaned, "true")
	containsFalse := strings.Contains(cleaned, "false")
	// "invalid" содержит "valid": различаем явно.
	containsInvalid := strings.Contains(cleaned, "invalid")
	containsValid := strings.Contains(cleaned, "valid") && !containsInvalid

	switch {
	case cleaned == "yes" || cleaned == "y":
		return true, 1.0
	case cleaned == "no" || cleaned == "n":
		return false, 1.0
	case cleaned == "true":
		return true, 0.95
	case cleaned == "false":
		return false, 0.95
	case containsYes && !containsNo:
		return true, 0.8
	case containsNo && !containsYes:
		return false, 0.8
	case containsTrue && !containsFalse:
		return true, 0.75
	case containsFalse && !containsTrue:
		return false, 0.75
	case containsValid:
		return true, 0.7
	case containsInvalid:
		return false, 0.7
	default:
		// Неоднозначный ответ - безопасный дефолт.
		return false, 0.3
	}
}
