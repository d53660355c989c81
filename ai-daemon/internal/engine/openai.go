package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// openAIEngine - бэкенд через OpenAI-совместимый endpoint.
// Рабочий сценарий - llama-server из llama.cpp (--port, /v1/chat/completions):
// та же резидентная модель, но стандартный протокол. top_k этим протоколом
// не передается; для дисциплины валидатора это компенсируется температурой.
type openAIEngine struct {
	client *openaigo.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIEngine создает движок поверх OpenAI-совместимого сервера.
func NewOpenAIEngine(baseURL, apiKey, model string, timeout time.Duration, logger *zap.Logger) Engine {
	clientConfig := openaigo.DefaultConfig(apiKey)
	clientConfig.BaseURL = strings.TrimSuffix(baseURL, "/")
	if !strings.HasSuffix(clientConfig.BaseURL, "/v1") {
		clientConfig.BaseURL += "/v1"
	}

	logger.Info("OpenAI-совместимый движок создан",
		zap.String("base_url", clientConfig.BaseURL),
		zap.String("model", model))

	return &openAIEngine{
		client: openaigo.NewClientWithConfig(clientConfig),
		model:  model,
		logger: logger.Named("openai"),
	}
}

// Warmup выполняет минимальный запрос, чтобы сервер поднял модель.
func (e *openAIEngine) Warmup(ctx context.Context) error {
	_, err := e.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model:     e.model,
		Messages:  []openaigo.ChatCompletionMessage{{Role: openaigo.ChatMessageRoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	if err != nil {
		return fmt.Errorf("%w: warmup: %v", ErrGenerationFailed, err)
	}
	e.logger.Info("Модель прогрета", zap.String("model", e.model))
	return nil
}

func (e *openAIEngine) Generate(ctx context.Context, messages []Message, params SamplingParams) (string, error) {
	apiMessages := make([]openaigo.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		apiMessages = append(apiMessages, openaigo.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	req := openaigo.ChatCompletionRequest{
		Model:       e.model,
		Messages:    apiMessages,
		Temperature: float32(params.Temperature),
		TopP:        float32(params.TopP),
		MaxTokens:   params.MaxTokens,
		Stop:        params.Stop,
	}

	startTime := time.Now()
	resp, err := e.client.CreateChatCompletion(ctx, req)
	duration := time.Since(startTime)

	labels := prometheus.Labels{"provider": "openai", "model": e.model}
	if err != nil {
		aiRequestsTotal.With(prometheus.Labels{"provider": "openai", "model": e.model, "status": "error"}).Inc()
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		aiRequestsTotal.With(prometheus.Labels{"provider": "openai", "model": e.model, "status": "error_empty_response"}).Inc()
		return "", fmt.Errorf("%w: получен пустой ответ", ErrGenerationFailed)
	}

	aiRequestsTotal.With(prometheus.Labels{"provider": "openai", "model": e.model, "status": "success"}).Inc()
	aiRequestDuration.With(labels).Observe(duration.Seconds())
	if resp.Usage.PromptTokens > 0 {
		aiPromptTokens.With(labels).Observe(float64(resp.Usage.PromptTokens))
	}
	if resp.Usage.CompletionTokens > 0 {
		aiCompletionTokens.With(labels).Observe(float64(resp.Usage.CompletionTokens))
	}

	return resp.Choices[0].Message.Content, nil
}

func (e *openAIEngine) Info() string {
	return fmt.Sprintf("openai-compatible engine (model=%s)", e.model)
}
