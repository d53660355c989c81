package engine

import (
	"context"
	"errors"
)

// Пакет engine прячет бэкенд инференса за одним интерфейсом.
// Сам llama-рантайм живет отдельным процессом (ollama либо llama-server);
// демон владеет дисциплиной промтов и состоянием разговора, бэкенд - весами.

// Message - одна реплика чата.
type Message struct {
	Role    string // system | user | assistant
	Content string
}

// SamplingParams - параметры сэмплирования одного запроса.
// Нулевые значения не передаются бэкенду (остаются его дефолты).
type SamplingParams struct {
	TopK        int
	TopP        float64
	Temperature float64
	MaxTokens   int
	Stop        []string
}

// ErrGenerationFailed - ошибка генерации текста AI.
var ErrGenerationFailed = errors.New("ошибка генерации текста AI")

// Engine - бэкенд инференса.
type Engine interface {
	// Warmup прогружает модель в резидентную память бэкенда.
	// Блокируется до готовности; вызывается из фоновой горутины демона.
	Warmup(ctx context.Context) error
	// Generate выполняет один чат-запрос и возвращает полный текст ответа.
	Generate(ctx context.Context, messages []Message, params SamplingParams) (string, error)
	Info() string
}
