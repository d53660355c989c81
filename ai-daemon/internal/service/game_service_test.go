package service_test

import (
	"context"
	"errors"
	"testing"

	"game-contract/ai-daemon/internal/engine"
	"game-contract/ai-daemon/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeEngine - движок в памяти: отдает заготовленные ответы и запоминает
// полученные сообщения.
type fakeEngine struct {
	responses []string
	errs      []error
	calls     [][]engine.Message
	params    []engine.SamplingParams
}

func (f *fakeEngine) Warmup(context.Context) error { return nil }

func (f *fakeEngine) Generate(_ context.Context, messages []engine.Message, params engine.SamplingParams) (string, error) {
	f.calls = append(f.calls, messages)
	f.params = append(f.params, params)
	idx := len(f.calls) - 1
	if idx < len(f.errs) && f.errs[idx] != nil {
		return "", f.errs[idx]
	}
	if idx < len(f.responses) {
		return f.responses[idx], nil
	}
	return "", errors.New("no scripted response")
}

func (f *fakeEngine) Info() string { return "fake" }

const markedState = "<<BEGIN_PLAYER_STATE>>\nPlayer_Location: tunnel\nPlayer_Health: 90\n<<END_PLAYER_STATE>>"

func TestExtractStateBlock(t *testing.T) {
	t.Run("Plain block", func(t *testing.T) {
		got := service.ExtractStateBlock(markedState)
		assert.Equal(t, "Player_Location: tunnel\nPlayer_Health: 90", got)
	})

	t.Run("Last begin marker wins", func(t *testing.T) {
		// Модель повторила формат из промта перед настоящим ответом.
		raw := "<<BEGIN_PLAYER_STATE>>\nPlayer_Location: [location_name]\n<<END_PLAYER_STATE>>\n" +
			"Here is the update:\n" +
			"<<BEGIN_PLAYER_STATE>>\nPlayer_Location: tunnel\n<<END_PLAYER_STATE>>"
		got := service.ExtractStateBlock(raw)
		assert.Equal(t, "Player_Location: tunnel", got)
	})

	t.Run("Missing end marker after stop sequence", func(t *testing.T) {
		raw := "<<BEGIN_PLAYER_STATE>>\nPlayer_Location: tunnel\n"
		got := service.ExtractStateBlock(raw)
		assert.Equal(t, "Player_Location: tunnel", got)
	})

	t.Run("No markers returns raw output", func(t *testing.T) {
		raw := "I cannot process this action."
		assert.Equal(t, raw, service.ExtractStateBlock(raw))
	})
}

func TestPlayerActionInitialMode(t *testing.T) {
	eng := &fakeEngine{responses: []string{markedState}}
	svc := service.NewGameService(eng, 8192, zap.NewNop())

	state, err := svc.PlayerAction(context.Background(), "game_1", "move north", "old state", "world", false)
	require.NoError(t, err)
	assert.Equal(t, "Player_Location: tunnel\nPlayer_Health: 90", state)

	// Полный контекст: system + user с миром, состоянием и действием.
	require.Len(t, eng.calls, 1)
	require.Len(t, eng.calls[0], 2)
	assert.Equal(t, "system", eng.calls[0][0].Role)
	assert.Contains(t, eng.calls[0][1].Content, "GAME WORLD:\nworld")
	assert.Contains(t, eng.calls[0][1].Content, "CURRENT PLAYER STATE:\nold state")
	assert.Contains(t, eng.calls[0][1].Content, "PLAYER ACTION: move north")

	// Игровое сэмплирование.
	assert.Equal(t, 40, eng.params[0].TopK)
	assert.Equal(t, 0.9, eng.params[0].TopP)
	assert.Equal(t, 0.8, eng.params[0].Temperature)
	assert.Equal(t, 400, eng.params[0].MaxTokens)

	assert.True(t, svc.ConversationActive())
}

func TestPlayerActionContinuationMode(t *testing.T) {
	eng := &fakeEngine{responses: []string{markedState, markedState}}
	svc := service.NewGameService(eng, 8192, zap.NewNop())
	ctx := context.Background()

	_, err := svc.PlayerAction(ctx, "game_1", "move north", "old", "world", false)
	require.NoError(t, err)

	_, err = svc.PlayerAction(ctx, "game_1", "open door", "ignored", "ignored", true)
	require.NoError(t, err)

	// Продолжение дописывает только короткий ход, без мира и состояния.
	require.Len(t, eng.calls, 2)
	cont := eng.calls[1]
	last := cont[len(cont)-1]
	assert.Equal(t, "user", last.Role)
	assert.Equal(t, "Player Action: open door\n\nUpdate the player state:", last.Content)
	// История содержит предыдущий ответ ассистента.
	assert.Equal(t, "assistant", cont[len(cont)-2].Role)
}

func TestContinuationWithoutContextFallsBack(t *testing.T) {
	eng := &fakeEngine{responses: []string{markedState}}
	svc := service.NewGameService(eng, 8192, zap.NewNop())

	// continue=true при пустой истории обязан прозрачно собрать полный контекст.
	state, err := svc.PlayerAction(context.Background(), "game_1", "move", "old", "world", true)
	require.NoError(t, err)
	assert.Contains(t, state, "Player_Location: tunnel")
	require.Len(t, eng.calls, 1)
	assert.Contains(t, eng.calls[0][1].Content, "GAME WORLD:")
}

func TestContinuationErrorFallsBackToInitial(t *testing.T) {
	eng := &fakeEngine{
		responses: []string{markedState, "", markedState},
		errs:      []error{nil, errors.New("decode failed"), nil},
	}
	svc := service.NewGameService(eng, 8192, zap.NewNop())
	ctx := context.Background()

	_, err := svc.PlayerAction(ctx, "game_1", "move", "old", "world", false)
	require.NoError(t, err)

	state, err := svc.PlayerAction(ctx, "game_1", "open door", "current", "world", true)
	require.NoError(t, err)
	assert.Contains(t, state, "Player_Location: tunnel")

	// Третий вызов - начальный режим после провала продолжения.
	require.Len(t, eng.calls, 3)
	assert.Contains(t, eng.calls[2][1].Content, "GAME WORLD:")
}

func TestReset(t *testing.T) {
	eng := &fakeEngine{responses: []string{markedState}}
	svc := service.NewGameService(eng, 8192, zap.NewNop())

	_, err := svc.PlayerAction(context.Background(), "game_1", "move", "old", "world", false)
	require.NoError(t, err)
	require.True(t, svc.ConversationActive())

	svc.Reset()
	assert.False(t, svc.ConversationActive())
}

func TestCreateGameSampling(t *testing.T) {
	eng := &fakeEngine{responses: []string{"Game Title: X\n"}}
	svc := service.NewGameService(eng, 8192, zap.NewNop())

	content, err := svc.CreateGame(context.Background(), "cave survival")
	require.NoError(t, err)
	assert.Equal(t, "Game Title: X\n", content)

	require.Len(t, eng.params, 1)
	assert.Equal(t, 20, eng.params[0].TopK)
	assert.Equal(t, 0.7, eng.params[0].TopP)
	assert.Equal(t, 0.3, eng.params[0].Temperature)
	assert.Contains(t, eng.calls[0][0].Content, "User request: cave survival")
}
