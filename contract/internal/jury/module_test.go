package jury_test

import (
	"context"
	"testing"
	"time"

	"game-contract/contract/internal/host"
	hostMocks "game-contract/contract/internal/host/mocks"
	"game-contract/contract/internal/jury"
	"game-contract/shared/interfaces/mocks"
	"game-contract/shared/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capture struct {
	broadcasts [][]byte
	replies    []models.ConsensusReply
}

func newModule(t *testing.T, decision models.Decision) (*jury.Module, *capture) {
	t.Helper()
	engine := new(mocks.DecisionEngine)
	engine.On("MakeDecision", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(decision).Maybe()

	cap := &capture{}
	m := jury.NewModule(engine,
		func(payload []byte) error {
			cap.broadcasts = append(cap.broadcasts, payload)
			return nil
		},
		func(_ host.User, reply models.ConsensusReply) {
			cap.replies = append(cap.replies, reply)
		},
		zap.NewNop())
	m.SetClock(func() int64 { return 1700000000 })
	return m, cap
}

func voteJSON(t *testing.T, requestID int, valid bool, confidence float64, juryID string) []byte {
	t.Helper()
	data, err := models.Vote{
		RequestID:  requestID,
		IsValid:    valid,
		Confidence: confidence,
		Reason:     "test",
		JuryID:     juryID,
	}.ToJSON()
	require.NoError(t, err)
	return data
}

func TestProcessRequestBroadcastsVote(t *testing.T) {
	m, cap := newModule(t, models.Decision{IsValid: true, Confidence: 0.9, Reason: "ok"})

	err := m.ProcessRequest(context.Background(), host.User{PublicKey: "pk"}, "validate_game_action", "data", 7, 3, "ctx")
	require.NoError(t, err)

	require.Len(t, cap.broadcasts, 1)
	vote, err := models.VoteFromJSON(cap.broadcasts[0])
	require.NoError(t, err)
	assert.Equal(t, 7, vote.RequestID)
	assert.True(t, vote.IsValid)
	assert.Equal(t, 0.9, vote.Confidence)
	assert.Equal(t, m.JuryID(), vote.JuryID)
	assert.Equal(t, 1, m.ActiveRequestCount())
	assert.False(t, m.IsConsensusReached(7))
}

func TestSinglePeerResolvesOnOwnVote(t *testing.T) {
	m, cap := newModule(t, models.Decision{IsValid: true, Confidence: 0.8})
	require.NoError(t, m.ProcessRequest(context.Background(), host.User{}, "validate_game_action", "d", 1, 1, ""))

	// Собственный голос возвращается эхом NPL и закрывает запрос при peerCount=1.
	m.ProcessVote(cap.broadcasts[0], 1)

	assert.True(t, m.IsConsensusReached(1))
	require.Len(t, cap.replies, 1)
	reply := cap.replies[0]
	assert.Equal(t, models.DecisionValid, reply.Decision)
	assert.Equal(t, 1, reply.TotalVotes)
	assert.Equal(t, 0.8, reply.Confidence)
	assert.Equal(t, int64(1700000000), reply.Timestamp)
}

func TestVoteIdempotence(t *testing.T) {
	m, cap := newModule(t, models.Decision{IsValid: true, Confidence: 0.5})
	require.NoError(t, m.ProcessRequest(context.Background(), host.User{}, "t", "d", 3, 2, ""))

	dup := voteJSON(t, 3, true, 0.9, "jury_other")
	m.ProcessVote(dup, 2)
	m.ProcessVote(dup, 2) // Дубликат (juryId, requestId) должен быть отброшен.

	assert.False(t, m.IsConsensusReached(3))
	assert.Empty(t, cap.replies)

	// Второй уникальный голос закрывает запрос; счетчик продвинулся один раз.
	m.ProcessVote(voteJSON(t, 3, true, 0.7, "jury_second"), 2)
	assert.True(t, m.IsConsensusReached(3))
	require.Len(t, cap.replies, 1)
	assert.Equal(t, 2, cap.replies[0].TotalVotes)
}

func TestTieResolvesInvalid(t *testing.T) {
	m, cap := newModule(t, models.Decision{IsValid: true, Confidence: 0.5})
	require.NoError(t, m.ProcessRequest(context.Background(), host.User{}, "t", "d", 4, 2, ""))

	m.ProcessVote(voteJSON(t, 4, true, 1.0, "jury_a"), 2)
	m.ProcessVote(voteJSON(t, 4, false, 1.0, "jury_b"), 2)

	require.Len(t, cap.replies, 1)
	// Равенство голосов: большинство требует строгого >, итог INVALID.
	assert.Equal(t, models.DecisionInvalid, cap.replies[0].Decision)
	assert.Equal(t, 1, cap.replies[0].ValidVotes)
	assert.Equal(t, 1, cap.replies[0].InvalidVotes)
}

func TestMajorityInvalid(t *testing.T) {
	m, cap := newModule(t, models.Decision{IsValid: true, Confidence: 0.5})
	require.NoError(t, m.ProcessRequest(context.Background(), host.User{}, "t", "d", 5, 3, ""))

	m.ProcessVote(voteJSON(t, 5, false, 0.9, "jury_a"), 3)
	m.ProcessVote(voteJSON(t, 5, false, 0.8, "jury_b"), 3)
	m.ProcessVote(voteJSON(t, 5, true, 1.0, "jury_c"), 3)

	require.Len(t, cap.replies, 1)
	reply := cap.replies[0]
	assert.Equal(t, models.DecisionInvalid, reply.Decision)
	assert.Equal(t, 3, reply.TotalVotes)
	assert.InDelta(t, (0.9+0.8+1.0)/3, reply.Confidence, 1e-9)
}

func TestVoteForUnknownRequestIgnored(t *testing.T) {
	m, cap := newModule(t, models.Decision{})
	m.ProcessVote(voteJSON(t, 99, true, 1.0, "jury_x"), 1)
	assert.Empty(t, cap.replies)
	// Неизвестный запрос считается разрешенным - цикл ожидания не виснет.
	assert.True(t, m.IsConsensusReached(99))
}

func TestResolvedRequestIgnoresLateVotes(t *testing.T) {
	m, cap := newModule(t, models.Decision{IsValid: true, Confidence: 0.5})
	require.NoError(t, m.ProcessRequest(context.Background(), host.User{}, "t", "d", 6, 1, ""))

	m.ProcessVote(voteJSON(t, 6, true, 1.0, "jury_a"), 1)
	require.Len(t, cap.replies, 1)

	m.ProcessVote(voteJSON(t, 6, false, 1.0, "jury_b"), 1)
	assert.Len(t, cap.replies, 1, "поздний голос не должен переоткрыть запрос")
}

func TestWaitForConsensusProcessesNPLVotes(t *testing.T) {
	m, cap := newModule(t, models.Decision{IsValid: true, Confidence: 0.9})
	require.NoError(t, m.ProcessRequest(context.Background(), host.User{}, "t", "d", 8, 2, ""))

	hostCtx := new(hostMocks.Context)
	// Первое NPL-сообщение - чужого формата: должно быть молча отброшено.
	hostCtx.On("ReadNPLMessage", 100*time.Millisecond).
		Return(host.NPLMessage{Payload: []byte(`{"type":"nft_coordination"}`)}, true).Once()
	hostCtx.On("ReadNPLMessage", 100*time.Millisecond).
		Return(host.NPLMessage{Payload: cap.broadcasts[0]}, true).Once()
	hostCtx.On("ReadNPLMessage", 100*time.Millisecond).
		Return(host.NPLMessage{Payload: voteJSON(t, 8, true, 0.7, "jury_peer")}, true).Once()

	m.WaitForConsensus(hostCtx, 8, 2)

	assert.True(t, m.IsConsensusReached(8))
	require.Len(t, cap.replies, 1)
	assert.Equal(t, models.DecisionValid, cap.replies[0].Decision)
	assert.Equal(t, 2, cap.replies[0].TotalVotes)
	hostCtx.AssertExpectations(t)
}
