package mocks

import (
	"context"
	"encoding/json"

	"game-contract/shared/interfaces"
	"game-contract/shared/models"

	"github.com/stretchr/testify/mock"
)

// DecisionEngine - мок interfaces.DecisionEngine.
type DecisionEngine struct {
	mock.Mock
}

func (m *DecisionEngine) MakeDecision(ctx context.Context, messageType, messageData, decisionContext string) models.Decision {
	args := m.Called(ctx, messageType, messageData, decisionContext)
	return args.Get(0).(models.Decision)
}

func (m *DecisionEngine) EngineInfo() string {
	args := m.Called()
	return args.String(0)
}

// GameStateRepository - мок interfaces.GameStateRepository.
type GameStateRepository struct {
	mock.Mock
}

func (m *GameStateRepository) GenerateGameID(prompt, userKey string) (string, error) {
	args := m.Called(prompt, userKey)
	return args.String(0), args.Error(1)
}

func (m *GameStateRepository) SaveWorld(gameID, content string) error {
	args := m.Called(gameID, content)
	return args.Error(0)
}

func (m *GameStateRepository) SaveState(gameID, content string) error {
	args := m.Called(gameID, content)
	return args.Error(0)
}

func (m *GameStateRepository) LoadWorld(gameID string) (string, error) {
	args := m.Called(gameID)
	return args.String(0), args.Error(1)
}

func (m *GameStateRepository) LoadState(gameID string) (string, error) {
	args := m.Called(gameID)
	return args.String(0), args.Error(1)
}

func (m *GameStateRepository) ListGames() ([]string, error) {
	args := m.Called()
	var games []string
	if v := args.Get(0); v != nil {
		games = v.([]string)
	}
	return games, args.Error(1)
}

func (m *GameStateRepository) SeparateContent(full string) (string, string) {
	args := m.Called(full)
	return args.String(0), args.String(1)
}

// InferenceClient - мок interfaces.InferenceClient.
type InferenceClient struct {
	mock.Mock
}

func (m *InferenceClient) Ping(ctx context.Context) (models.PingResponse, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.PingResponse), args.Error(1)
}

func (m *InferenceClient) Status(ctx context.Context) interfaces.DaemonRunState {
	args := m.Called(ctx)
	return args.Get(0).(interfaces.DaemonRunState)
}

func (m *InferenceClient) RawStatus(ctx context.Context) json.RawMessage {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.(json.RawMessage)
	}
	return nil
}

func (m *InferenceClient) IsModelReady(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *InferenceClient) CreateGame(ctx context.Context, prompt, userID string) (string, error) {
	args := m.Called(ctx, prompt, userID)
	return args.String(0), args.Error(1)
}

func (m *InferenceClient) PlayerAction(ctx context.Context, gameID, action, oldState, world string, continueConversation bool) (string, error) {
	args := m.Called(ctx, gameID, action, oldState, world, continueConversation)
	return args.String(0), args.Error(1)
}

func (m *InferenceClient) Validate(ctx context.Context, statement string) (models.ValidateResponse, error) {
	args := m.Called(ctx, statement)
	return args.Get(0).(models.ValidateResponse), args.Error(1)
}

func (m *InferenceClient) ResetConversation(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
