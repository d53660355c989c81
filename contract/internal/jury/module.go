package jury

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"game-contract/contract/internal/host"
	"game-contract/shared/interfaces"
	"game-contract/shared/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Пакет jury реализует протокол консенсуса по запросу:
// локальное решение -> рассылка голоса -> подсчет -> разрешение.
// Вывод модели недетерминирован между репликами; именно голосование жюри
// поглощает это расхождение ("предлагаем локально, соглашаемся глобально").

// requestState - аккумулятор консенсуса одного запроса. Живет один раунд.
type requestState struct {
	user        host.User
	requestID   int
	messageType string
	messageData string
	context     string

	resolved      bool
	received      int
	tally         [2]int     // [invalid, valid]
	confidenceSum [2]float64 // [invalid, valid]
	seenJuries    map[string]bool
}

// ResponseFunc доставляет итог консенсуса пользователю.
// Оркестратор обогащает ответ игровыми полями до отправки.
type ResponseFunc func(user host.User, reply models.ConsensusReply)

// BroadcastFunc рассылает голос по NPL-каналу хоста.
type BroadcastFunc func(payload []byte) error

// Module - жюри одного узла.
type Module struct {
	engine    interfaces.DecisionEngine
	juryID    string
	broadcast BroadcastFunc
	respond   ResponseFunc
	now       func() int64

	active map[int]*requestState
	logger *zap.Logger
}

func NewModule(engine interfaces.DecisionEngine, broadcast BroadcastFunc, respond ResponseFunc, logger *zap.Logger) *Module {
	return &Module{
		engine:    engine,
		juryID:    "jury_" + uuid.NewString()[:8],
		broadcast: broadcast,
		respond:   respond,
		now:       func() int64 { return time.Now().Unix() },
		active:    make(map[int]*requestState),
		logger:    logger.Named("jury"),
	}
}

// JuryID - идентификатор этого жюри в голосах.
func (m *Module) JuryID() string {
	return m.juryID
}

// SetClock подменяет источник времени (для тестов).
func (m *Module) SetClock(now func() int64) {
	m.now = now
}

// ActiveRequestCount - число неразрешенных запросов (для stat и тестов).
func (m *Module) ActiveRequestCount() int {
	n := 0
	for _, st := range m.active {
		if !st.resolved {
			n++
		}
	}
	return n
}

// ProcessRequest выполняет локальную оценку, рассылает голос ровно один раз
// и регистрирует запрос для подсчета. Собственный голос придет обратно эхом
// NPL-канала и будет посчитан наравне с чужими.
func (m *Module) ProcessRequest(ctx context.Context, user host.User, messageType, messageData string, requestID, peerCount int, decisionContext string) error {
	m.logger.Info("Обрабатываем запрос жюри",
		zap.Int("request_id", requestID),
		zap.String("message_type", messageType),
		zap.Int("peer_count", peerCount))

	decision := m.engine.MakeDecision(ctx, messageType, messageData, decisionContext)

	vote := models.Vote{
		RequestID:  requestID,
		IsValid:    decision.IsValid,
		Confidence: decision.Confidence,
		Reason:     decision.Reason,
		JuryID:     m.juryID,
		Context:    decisionContext,
	}

	payload, err := vote.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal vote: %w", err)
	}
	if err := m.broadcast(payload); err != nil {
		return fmt.Errorf("broadcast vote: %w", err)
	}

	m.active[requestID] = &requestState{
		user:        user,
		requestID:   requestID,
		messageType: messageType,
		messageData: messageData,
		context:     decisionContext,
		seenJuries:  make(map[string]bool),
	}

	m.logger.Info("Голос разослан",
		zap.Int("request_id", requestID),
		zap.Bool("is_valid", decision.IsValid),
		zap.Float64("confidence", decision.Confidence),
		zap.String("reason", decision.Reason))
	return nil
}

// ProcessVote учитывает один входящий голос.
// Дубликаты (juryId, requestId) и голоса по разрешенным запросам игнорируются;
// подсчет коммутативен, порядок прихода голосов значения не имеет.
func (m *Module) ProcessVote(voteJSON []byte, peerCount int) {
	vote, err := models.VoteFromJSON(voteJSON)
	if err != nil {
		m.logger.Warn("Голос не разобран", zap.Error(err))
		return
	}

	state, ok := m.active[vote.RequestID]
	if !ok {
		m.logger.Debug("Голос по неизвестному запросу", zap.Int("request_id", vote.RequestID))
		return
	}
	if state.resolved {
		return
	}
	if state.seenJuries[vote.JuryID] {
		m.logger.Debug("Дубликат голоса отброшен",
			zap.Int("request_id", vote.RequestID), zap.String("jury_id", vote.JuryID))
		return
	}
	state.seenJuries[vote.JuryID] = true

	idx := 0
	if vote.IsValid {
		idx = 1
	}
	state.tally[idx]++
	state.confidenceSum[idx] += vote.Confidence
	state.received++

	m.logger.Info("Голос учтен",
		zap.Int("request_id", vote.RequestID),
		zap.Int("received", state.received),
		zap.Int("peer_count", peerCount))

	if state.received >= peerCount {
		m.resolve(state)
	}
}

// resolve подводит итог: валидность по строгому большинству (равенство
// голосов = INVALID, безопасный дефолт), уверенность усредняется.
func (m *Module) resolve(state *requestState) {
	validVotes := state.tally[1]
	invalidVotes := state.tally[0]
	majorityValid := validVotes > invalidVotes
	avgConfidence := (state.confidenceSum[0] + state.confidenceSum[1]) / float64(state.received)

	decision := models.DecisionInvalid
	if majorityValid {
		decision = models.DecisionValid
	}

	result := models.ConsensusResult{
		Type:         "consensus",
		RequestID:    state.requestID,
		Decision:     decision,
		Confidence:   avgConfidence,
		ValidVotes:   validVotes,
		InvalidVotes: invalidVotes,
		TotalVotes:   state.received,
		MessageType:  state.messageType,
	}
	details, _ := json.Marshal(result)

	reply := models.ConsensusReply{
		ConsensusResult: result,
		Details:         string(details),
		Timestamp:       m.now(),
	}

	state.resolved = true
	m.logger.Info("Консенсус достигнут",
		zap.Int("request_id", state.requestID),
		zap.String("decision", decision),
		zap.Int("valid_votes", validVotes),
		zap.Int("total_votes", state.received))

	if m.respond != nil {
		m.respond(state.user, reply)
	}
}

// IsConsensusReached - разрешен ли запрос. Неизвестный запрос считается
// разрешенным, чтобы цикл ожидания не завис на отброшенном состоянии.
func (m *Module) IsConsensusReached(requestID int) bool {
	state, ok := m.active[requestID]
	if !ok {
		return true
	}
	return state.resolved
}

// WaitForConsensus крутит NPL-канал 100-мс срезами до разрешения запроса.
// Внутреннего таймаута нет: верхняя граница - дедлайн раунда хоста, который
// убивает процесс вместе с незакрытыми запросами.
func (m *Module) WaitForConsensus(hostCtx host.Context, requestID, peerCount int) {
	m.logger.Info("Ждем консенсус", zap.Int("request_id", requestID), zap.Int("peer_count", peerCount))
	for !m.IsConsensusReached(requestID) {
		msg, ok := hostCtx.ReadNPLMessage(100 * time.Millisecond)
		if !ok {
			continue
		}
		if looksLikeVote(msg.Payload) {
			m.ProcessVote(msg.Payload, peerCount)
		} else {
			m.logger.Debug("NPL-сообщение неизвестного формата отброшено")
		}
	}
}

// looksLikeVote - быстрый отбор NPL-сообщений: голос обязан нести requestId.
func looksLikeVote(payload []byte) bool {
	var probe struct {
		RequestID *int `json:"requestId"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}
	return probe.RequestID != nil
}
