package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// ollamaEngine - бэкенд через нативный API ollama.
// Модель остается резидентной в ollama-сервере благодаря длинному keep_alive:
// повторные запросы не платят за загрузку весов.
type ollamaEngine struct {
	client    *api.Client
	model     string
	numCtx    int
	keepAlive time.Duration
	logger    *zap.Logger
}

// NewOllamaEngine создает движок поверх ollama-сервера baseURL.
func NewOllamaEngine(baseURL, model string, numCtx int, keepAlive, timeout time.Duration, logger *zap.Logger) (Engine, error) {
	// api.NewClient требует URL без суффикса /v1
	trimmed := strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/v1")
	parsedURL, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга Ollama Base URL '%s': %w", trimmed, err)
	}

	client := api.NewClient(parsedURL, &http.Client{Timeout: timeout})
	logger.Info("Ollama движок создан",
		zap.String("base_url", trimmed),
		zap.String("model", model),
		zap.Duration("timeout", timeout))

	return &ollamaEngine{
		client:    client,
		model:     model,
		numCtx:    numCtx,
		keepAlive: keepAlive,
		logger:    logger.Named("ollama"),
	}, nil
}

// Warmup гоняет пустой запрос с keep_alive: ollama грузит веса и держит их.
func (e *ollamaEngine) Warmup(ctx context.Context) error {
	req := &api.ChatRequest{
		Model:     e.model,
		KeepAlive: &api.Duration{Duration: e.keepAlive},
	}
	err := e.client.Chat(ctx, req, func(api.ChatResponse) error { return nil })
	if err != nil {
		return fmt.Errorf("%w: warmup: %v", ErrGenerationFailed, err)
	}
	e.logger.Info("Модель прогрета и резидентна", zap.String("model", e.model))
	return nil
}

func (e *ollamaEngine) Generate(ctx context.Context, messages []Message, params SamplingParams) (string, error) {
	apiMessages := make([]api.Message, 0, len(messages))
	promptChars := 0
	for _, m := range messages {
		apiMessages = append(apiMessages, api.Message{Role: m.Role, Content: m.Content})
		promptChars += len(m.Content)
	}

	options := map[string]any{
		"num_ctx": e.numCtx,
	}
	if params.Temperature > 0 {
		options["temperature"] = params.Temperature
	}
	if params.TopK > 0 {
		options["top_k"] = params.TopK
	}
	if params.TopP > 0 {
		options["top_p"] = params.TopP
	}
	if params.MaxTokens > 0 {
		options["num_predict"] = params.MaxTokens
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}

	stream := false
	req := &api.ChatRequest{
		Model:     e.model,
		Messages:  apiMessages,
		Stream:    &stream,
		Options:   options,
		KeepAlive: &api.Duration{Duration: e.keepAlive},
	}

	startTime := time.Now()
	var content strings.Builder
	var final api.ChatResponse
	err := e.client.Chat(ctx, req, func(r api.ChatResponse) error {
		content.WriteString(r.Message.Content)
		if r.Done {
			final = r
		}
		return nil
	})
	duration := time.Since(startTime)

	labels := prometheus.Labels{"provider": "ollama", "model": e.model}
	if err != nil {
		aiRequestsTotal.With(prometheus.Labels{"provider": "ollama", "model": e.model, "status": "error"}).Inc()
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if content.Len() == 0 {
		aiRequestsTotal.With(prometheus.Labels{"provider": "ollama", "model": e.model, "status": "error_empty_response"}).Inc()
		return "", fmt.Errorf("%w: получен пустой ответ", ErrGenerationFailed)
	}

	aiRequestsTotal.With(prometheus.Labels{"provider": "ollama", "model": e.model, "status": "success"}).Inc()
	aiRequestDuration.With(labels).Observe(duration.Seconds())
	if final.PromptEvalCount > 0 {
		aiPromptTokens.With(labels).Observe(float64(final.PromptEvalCount))
	}
	if final.EvalCount > 0 {
		aiCompletionTokens.With(labels).Observe(float64(final.EvalCount))
	}

	e.logger.Debug("Генерация завершена",
		zap.Duration("duration", duration),
		zap.Int("prompt_chars", promptChars),
		zap.Int("response_chars", content.Len()))

	return content.String(), nil
}

func (e *ollamaEngine) Info() string {
	return fmt.Sprintf("ollama engine (model=%s)", e.model)
}
