package service_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"game-contract/contract/internal/downloader"
	"game-contract/contract/internal/host"
	"game-contract/contract/internal/jury"
	"game-contract/contract/internal/repository"
	"game-contract/contract/internal/service"
	"game-contract/contract/internal/supervisor"
	"game-contract/shared/interfaces"
	"game-contract/shared/interfaces/mocks"
	"game-contract/shared/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeHost - хостовый контекст в памяти: NPL-рассылка возвращается эхом,
// плюс заранее запрограммированные голоса "других" узлов.
type fakeHost struct {
	readonly  bool
	peerCount int
	users     []host.User

	// peerVotes вызывается на каждый broadcast и возвращает голоса,
	// которые "другие узлы" шлют в ответ на собственный.
	peerVotes func(own []byte) [][]byte

	nplQueue [][]byte
	sent     [][]byte
}

func (f *fakeHost) Users() []host.User { return f.users }
func (f *fakeHost) Readonly() bool     { return f.readonly }
func (f *fakeHost) PeerCount() int     { return f.peerCount }

func (f *fakeHost) WriteUserMessage(_ host.User, payload []byte) error {
	f.sent = append(f.sent, append([]byte(nil), payload...))
	return nil
}

func (f *fakeHost) BroadcastNPL(payload []byte) error {
	f.nplQueue = append(f.nplQueue, append([]byte(nil), payload...))
	if f.peerVotes != nil {
		f.nplQueue = append(f.nplQueue, f.peerVotes(payload)...)
	}
	return nil
}

func (f *fakeHost) ReadNPLMessage(time.Duration) (host.NPLMessage, bool) {
	if len(f.nplQueue) == 0 {
		return host.NPLMessage{}, false
	}
	msg := f.nplQueue[0]
	f.nplQueue = f.nplQueue[1:]
	return host.NPLMessage{Sender: "peer", Payload: msg}, true
}

// fakeSigner - signing-сервис в памяти.
type fakeSigner struct {
	healthy bool
	batch   models.NFTMintBatch
	err     error
	called  bool
}

func (f *fakeSigner) Healthy(context.Context) bool { return f.healthy }
func (f *fakeSigner) MintInventory(_ context.Context, gameID string, items []string, unixNow int64) (models.NFTMintBatch, error) {
	f.called = true
	return f.batch, f.err
}

type fixture struct {
	svc    *service.ContractService
	repo   *repository.FileGameStateRepository
	client *mocks.InferenceClient
	engine *mocks.DecisionEngine
	signer *fakeSigner
	dir    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	repo, err := repository.NewFileGameStateRepository(dir, zap.NewNop())
	require.NoError(t, err)

	client := new(mocks.InferenceClient)
	engine := new(mocks.DecisionEngine)
	signer := &fakeSigner{healthy: true}

	// Пустая спецификация модели: файл "полон" сразу, сеть не трогается.
	dl := downloader.New(downloader.ModelSpec{Name: "test.gguf"}, filepath.Join(dir, "model"), zap.NewNop())

	svc := service.NewContractService(repo, client, dl, signer, []*supervisor.Supervisor{}, zap.NewNop())
	svc.SetDataDir(dir)
	svc.SetClock(func() int64 { return 1700000000 })

	return &fixture{svc: svc, repo: repo, client: client, engine: engine, signer: signer, dir: dir}
}

// wireJury подключает жюри с локальным движком поверх мока.
func (fx *fixture) wireJury(hostCtx *fakeHost) *jury.Module {
	m := jury.NewModule(fx.engine, hostCtx.BroadcastNPL, fx.svc.RespondConsensus, zap.NewNop())
	m.SetClock(func() int64 { return 1700000000 })
	fx.svc.SetJury(m)
	return m
}

func interfacesRunning() interfaces.DaemonRunState {
	return interfaces.DaemonRunning
}

func replies(t *testing.T, hostCtx *fakeHost) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, raw := range hostCtx.sent {
		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		out = append(out, m)
	}
	return out
}

const validNewState = `Player_Location: tunnel
Player_Health: 90
Player_Score: 10
Player_Inventory: [torch, rope]
Game_Status: active
Messages: ["You move north into the tunnel."]
Turn_Count: 2`

const preState = `Player_Location: entrance
Player_Health: 100
Player_Score: 0
Player_Inventory: [torch]
Game_Status: active
Messages: ["You stand at the entrance."]
Turn_Count: 1`

func TestCreateGamePath(t *testing.T) {
	fx := newFixture(t)
	hostCtx := &fakeHost{peerCount: 1, users: []host.User{{
		PublicKey: "pk1",
		Inputs:    []string{`{"create_game":"cave survival"}`},
	}}}
	fx.wireJury(hostCtx)

	generated := "Game Title: Cave Survival\nWorld Description: Dark caves.\n" +
		"Objectives: Escape.\nCurrent Situation: You wake up underground.\n"

	fx.client.On("Status", mock.Anything).Return(interfacesRunning()).Maybe()
	fx.client.On("IsModelReady", mock.Anything).Return(true)
	fx.client.On("CreateGame", mock.Anything, "cave survival", "pk1").Return(generated, nil)

	fx.svc.RunRound(context.Background(), hostCtx)

	rs := replies(t, hostCtx)
	require.Len(t, rs, 1)
	assert.Equal(t, "gameCreated", rs[0]["type"])
	assert.Equal(t, "success", rs[0]["status"])
	gameID := rs[0]["game_id"].(string)

	worldData, err := os.ReadFile(filepath.Join(fx.dir, "game_world_"+gameID+".txt"))
	require.NoError(t, err)
	assert.Contains(t, string(worldData), "Game Title: Cave Survival")

	stateData, err := os.ReadFile(filepath.Join(fx.dir, "game_state_"+gameID+".txt"))
	require.NoError(t, err)
	assert.Contains(t, string(stateData), "Current Situation:")
}

func TestPlayerActionValid(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.repo.SaveWorld("game_1_5", "Game Title: Cave\n"))
	require.NoError(t, fx.repo.SaveState("game_1_5", preState))

	hostCtx := &fakeHost{peerCount: 1, users: []host.User{{
		PublicKey: "pk1",
		Inputs:    []string{`{"game_id":"game_1_5","action":"move north","continue_conversation":"false"}`},
	}}}
	fx.wireJury(hostCtx)

	fx.client.On("Status", mock.Anything).Return(interfacesRunning())
	fx.client.On("IsModelReady", mock.Anything).Return(true)
	fx.client.On("PlayerAction", mock.Anything, "game_1_5", "move north", preState, "Game Title: Cave\n", false).
		Return(validNewState, nil)
	fx.engine.On("MakeDecision", mock.Anything, "validate_game_action", mock.Anything, mock.Anything).
		Return(models.Decision{IsValid: true, Confidence: 0.9, Reason: "ok"})

	fx.svc.RunRound(context.Background(), hostCtx)

	state, err := fx.repo.LoadState("game_1_5")
	require.NoError(t, err)
	assert.Equal(t, validNewState, state)

	rs := replies(t, hostCtx)
	require.Len(t, rs, 1)
	assert.Equal(t, "consensus", rs[0]["type"])
	assert.Equal(t, "valid", rs[0]["decision"])
	assert.Equal(t, "success", rs[0]["action_result"])
	assert.Equal(t, "game_1_5", rs[0]["game_id"])
	assert.Equal(t, "move north", rs[0]["player_action"])
	assert.Equal(t, validNewState, rs[0]["game_state"])
}

func TestPlayerActionInvalidReverts(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.repo.SaveWorld("game_1_5", "Game Title: Cave\n"))
	require.NoError(t, fx.repo.SaveState("game_1_5", preState))

	hostCtx := &fakeHost{peerCount: 2, users: []host.User{{
		PublicKey: "pk1",
		Inputs:    []string{`{"game_id":"game_1_5","action":"move north","continue_conversation":"false"}`},
	}}}
	// Голос второго узла: INVALID. Вместе с локальным VALID - ничья, итог INVALID.
	hostCtx.peerVotes = func(own []byte) [][]byte {
		peer, _ := models.Vote{
			RequestID: 0, IsValid: false, Confidence: 1.0,
			Reason: "peer disagrees", JuryID: "jury_peer",
		}.ToJSON()
		return [][]byte{peer}
	}
	fx.wireJury(hostCtx)

	fx.client.On("Status", mock.Anything).Return(interfacesRunning())
	fx.client.On("IsModelReady", mock.Anything).Return(true)
	fx.client.On("PlayerAction", mock.Anything, "game_1_5", "move north", preState, "Game Title: Cave\n", false).
		Return(validNewState, nil)
	fx.engine.On("MakeDecision", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(models.Decision{IsValid: true, Confidence: 0.9})

	fx.svc.RunRound(context.Background(), hostCtx)

	// Откат: файл состояния побайтно равен состоянию на начало раунда.
	state, err := fx.repo.LoadState("game_1_5")
	require.NoError(t, err)
	assert.Equal(t, preState, state)

	rs := replies(t, hostCtx)
	require.Len(t, rs, 1)
	assert.Equal(t, "invalid", rs[0]["decision"])
	assert.Equal(t, "failed", rs[0]["action_result"])
	assert.Equal(t, preState, rs[0]["game_state"])
}

func TestPlayerActionMalformedStateRejected(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.repo.SaveWorld("game_1_5", "Game Title: Cave\n"))
	require.NoError(t, fx.repo.SaveState("game_1_5", preState))

	hostCtx := &fakeHost{peerCount: 1, users: []host.User{{
		PublicKey: "pk1",
		Inputs:    []string{`{"game_id":"game_1_5","action":"jump","continue_conversation":"false"}`},
	}}}
	fx.wireJury(hostCtx)

	// Вывод без обязательных заголовков: отклоняется структурной проверкой,
	// даже если жюри проголосует "valid".
	fx.client.On("Status", mock.Anything).Return(interfacesRunning())
	fx.client.On("IsModelReady", mock.Anything).Return(true)
	fx.client.On("PlayerAction", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("You jump. Nothing happens.", nil)
	fx.engine.On("MakeDecision", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(models.Decision{IsValid: true, Confidence: 0.9})

	fx.svc.RunRound(context.Background(), hostCtx)

	state, err := fx.repo.LoadState("game_1_5")
	require.NoError(t, err)
	assert.Equal(t, preState, state)

	rs := replies(t, hostCtx)
	require.Len(t, rs, 1)
	assert.Equal(t, "failed", rs[0]["action_result"])
}

func TestWinTriggersNFTRecord(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.repo.SaveWorld("game_1_5", "Game Title: Cave\n"))
	require.NoError(t, fx.repo.SaveState("game_1_5", preState))

	wonState := `Player_Location: treasure room
Player_Health: 80
Player_Score: 100
Player_Inventory: [golden idol, torch]
Game_Status: won
Messages: ["You claim the idol and win!"]
Turn_Count: 7`

	hostCtx := &fakeHost{peerCount: 1, users: []host.User{{
		PublicKey: "pk1",
		Inputs:    []string{`{"game_id":"game_1_5","action":"take idol","continue_conversation":"false"}`},
	}}}
	fx.wireJury(hostCtx)

	fx.client.On("Status", mock.Anything).Return(interfacesRunning())
	fx.client.On("IsModelReady", mock.Anything).Return(true)
	fx.client.On("PlayerAction", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(wonState, nil)
	fx.engine.On("MakeDecision", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(models.Decision{IsValid: true, Confidence: 1.0})

	fx.svc.RunRound(context.Background(), hostCtx)

	data, err := os.ReadFile(filepath.Join(fx.dir, "nft_game_1_5.json"))
	require.NoError(t, err)

	var record models.NFTRecord
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, "game_1_5", record.GameID)
	assert.Equal(t, models.NFTStatusWon, record.Status)
	assert.Equal(t, "take idol", record.WinningAction)
	assert.Equal(t, "treasure room", record.FinalLocation)
	assert.Equal(t, "100", record.FinalScore)
	assert.Equal(t, "[golden idol, torch]", record.PlayerInventory)
	assert.Equal(t, int64(1700000000), record.CompletionTime)

	// Последующий get_game_state возвращает победное состояние.
	state, err := fx.repo.LoadState("game_1_5")
	require.NoError(t, err)
	assert.Equal(t, wonState, state)
}

func TestPlayerActionWhileModelLoading(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.repo.SaveWorld("game_1_5", "w"))
	require.NoError(t, fx.repo.SaveState("game_1_5", preState))

	hostCtx := &fakeHost{peerCount: 1, users: []host.User{{
		PublicKey: "pk1",
		Inputs:    []string{`{"game_id":"game_1_5","action":"move","continue_conversation":"false"}`},
	}}}
	fx.wireJury(hostCtx)

	fx.client.On("Status", mock.Anything).Return(interfacesRunning())
	fx.client.On("IsModelReady", mock.Anything).Return(false)

	fx.svc.RunRound(context.Background(), hostCtx)

	rs := replies(t, hostCtx)
	require.Len(t, rs, 1)
	assert.Equal(t, "error", rs[0]["type"])
	assert.Contains(t, rs[0]["error"], "still loading")

	// Файл состояния не тронут.
	state, err := fx.repo.LoadState("game_1_5")
	require.NoError(t, err)
	assert.Equal(t, preState, state)
}

func TestLegacyColonFormat(t *testing.T) {
	fx := newFixture(t)
	hostCtx := &fakeHost{peerCount: 1, users: []host.User{{
		PublicKey: "pk1",
		Inputs:    []string{"list_games:"},
	}}}
	fx.wireJury(hostCtx)

	fx.svc.RunRound(context.Background(), hostCtx)

	rs := replies(t, hostCtx)
	require.Len(t, rs, 1)
	assert.Equal(t, "gamesList", rs[0]["type"])
}

func TestUnknownMessage(t *testing.T) {
	fx := newFixture(t)
	hostCtx := &fakeHost{peerCount: 1, users: []host.User{{
		PublicKey: "pk1",
		Inputs:    []string{"just some text"},
	}}}
	fx.wireJury(hostCtx)

	fx.svc.RunRound(context.Background(), hostCtx)

	rs := replies(t, hostCtx)
	require.Len(t, rs, 1)
	assert.Equal(t, "error", rs[0]["type"])
	assert.Equal(t, "just some text", rs[0]["received"])
}

func TestQueryRefusedInReadonlyRound(t *testing.T) {
	fx := newFixture(t)
	hostCtx := &fakeHost{readonly: true, peerCount: 1, users: []host.User{{
		PublicKey: "pk1",
		Inputs:    []string{`{"type":"query","data":"is the sky blue"}`},
	}}}
	fx.wireJury(hostCtx)

	fx.svc.RunRound(context.Background(), hostCtx)

	rs := replies(t, hostCtx)
	require.Len(t, rs, 1)
	assert.Equal(t, "error", rs[0]["type"])
	assert.Contains(t, rs[0]["error"], "read only")
}

func TestMintNFTRefusedInConsensusRound(t *testing.T) {
	fx := newFixture(t)
	hostCtx := &fakeHost{readonly: false, peerCount: 1, users: []host.User{{
		PublicKey: "pk1",
		Inputs:    []string{`{"mint_nft":"game_1_5"}`},
	}}}
	fx.wireJury(hostCtx)

	fx.svc.RunRound(context.Background(), hostCtx)

	rs := replies(t, hostCtx)
	require.Len(t, rs, 1)
	assert.Equal(t, "error", rs[0]["type"])
	assert.Contains(t, rs[0]["error"], "read-only")
}

func TestMintNFTReadonlySuccess(t *testing.T) {
	fx := newFixture(t)

	record := models.NFTRecord{
		GameID:          "game_1_5",
		CompletionTime:  1699999999,
		WinningAction:   "take idol",
		Status:          models.NFTStatusWon,
		PlayerInventory: "[golden idol, torch]",
	}
	data, err := json.MarshalIndent(record, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(fx.dir, "nft_game_1_5.json"), data, 0o644))

	fx.signer.batch = models.NFTMintBatch{
		Success:          true,
		TotalRequested:   2,
		SuccessfulMints:  2,
		BatchTimestamp:   1700000000,
		FirstSuccessHash: "ABCDEF",
		Results: []models.NFTMintResult{
			{Success: true, ItemName: "golden idol", URITokenID: "T1", TransactionHash: "ABCDEF"},
			{Success: true, ItemName: "torch", URITokenID: "T2", TransactionHash: "ABCDF0"},
		},
	}

	hostCtx := &fakeHost{readonly: true, peerCount: 1, users: []host.User{{
		PublicKey: "pk1",
		Inputs:    []string{`{"mint_nft":"game_1_5"}`},
	}}}
	fx.wireJury(hostCtx)

	fx.svc.RunRound(context.Background(), hostCtx)

	rs := replies(t, hostCtx)
	require.Len(t, rs, 1)
	assert.Equal(t, "nft_mint_result", rs[0]["type"])
	assert.Equal(t, true, rs[0]["success"])
	assert.Equal(t, true, rs[0]["readonly_mode"])
	assert.True(t, fx.signer.called)

	// NFT-файл переведен в minted с хешем транзакции.
	updated, err := os.ReadFile(filepath.Join(fx.dir, "nft_game_1_5.json"))
	require.NoError(t, err)
	var updatedRecord models.NFTRecord
	require.NoError(t, json.Unmarshal(updated, &updatedRecord))
	assert.Equal(t, models.NFTStatusMinted, updatedRecord.Status)
	assert.Equal(t, "ABCDEF", updatedRecord.MintTxHash)
	assert.Len(t, updatedRecord.NFTTokens, 2)
}

func TestMintNFTAlreadyMinted(t *testing.T) {
	fx := newFixture(t)

	record := models.NFTRecord{GameID: "game_1_5", Status: models.NFTStatusMinted}
	data, _ := json.Marshal(record)
	require.NoError(t, os.WriteFile(filepath.Join(fx.dir, "nft_game_1_5.json"), data, 0o644))

	hostCtx := &fakeHost{readonly: true, peerCount: 1, users: []host.User{{
		PublicKey: "pk1",
		Inputs:    []string{`{"mint_nft":"game_1_5"}`},
	}}}
	fx.wireJury(hostCtx)

	fx.svc.RunRound(context.Background(), hostCtx)

	rs := replies(t, hostCtx)
	require.Len(t, rs, 1)
	assert.Equal(t, true, rs[0]["already_minted"])
	assert.False(t, fx.signer.called)
}
