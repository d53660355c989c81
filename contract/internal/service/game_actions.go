package service

import (
	"context"
	"encoding/json"
	"strings"

	"game-contract/contract/internal/host"
	"game-contract/shared/interfaces"
	"game-contract/shared/models"

	"go.uber.org/zap"
)

// Игровые обработчики. Только player_action и query требуют консенсуса жюри;
// создание партии терпит недетерминизм (контент игры непрозрачен для контракта,
// детерминирован только GameID), чтения вообще не трогают состояние.

// aiGateReady проверяет готовность игрового демона перед AI-операцией.
func (s *ContractService) aiGateReady(ctx context.Context, user host.User) bool {
	if s.gameClient.Status(ctx) == interfaces.DaemonStopped {
		s.replyError(user, "AI Daemon not running")
		return false
	}
	if !s.gameClient.IsModelReady(ctx) {
		s.replyError(user, "AI model still loading, please try again in a few minutes")
		return false
	}
	return true
}

// handleCreateGame создает новую партию. Голосование не нужно: мир сохраняется
// как вернула модель, а идентификатор детерминирован входами раунда.
func (s *ContractService) handleCreateGame(ctx context.Context, user host.User, prompt string) {
	if !s.aiGateReady(ctx, user) {
		return
	}

	content, err := s.gameClient.CreateGame(ctx, prompt, user.PublicKey)
	if err != nil || strings.TrimSpace(content) == "" {
		s.logger.Error("Генерация мира не удалась", zap.Error(err))
		s.replyError(user, "Failed to generate game content")
		return
	}

	gameID, err := s.repo.GenerateGameID(prompt, user.PublicKey)
	if err != nil {
		s.logger.Error("GameID не сгенерирован", zap.Error(err))
		s.replyError(user, "Failed to save game data")
		return
	}

	world, state := s.repo.SeparateContent(content)
	if err := s.repo.SaveWorld(gameID, world); err != nil {
		s.logger.Error("Мир не сохранен", zap.Error(err))
		s.replyError(user, "Failed to save game data")
		return
	}
	if err := s.repo.SaveState(gameID, state); err != nil {
		s.logger.Error("Состояние не сохранено", zap.Error(err))
		s.replyError(user, "Failed to save game data")
		return
	}

	s.logger.Info("Партия создана", zap.String("game_id", gameID))
	s.reply(user, models.GameCreatedReply{Type: "gameCreated", GameID: gameID, Status: "success"})
}

func (s *ContractService) handleListGames(user host.User) {
	games, err := s.repo.ListGames()
	if err != nil {
		s.replyError(user, "Failed to list games")
		return
	}
	if games == nil {
		games = []string{}
	}
	s.reply(user, models.GamesListReply{Type: "gamesList", Games: games})
}

func (s *ContractService) handleGetGameState(user host.User, gameID string) {
	state, err := s.repo.LoadState(gameID)
	if err != nil || state == "" {
		s.replyError(user, "Game not found")
		return
	}
	s.reply(user, models.GameStateReply{Type: "gameState", GameID: gameID, State: state})
}

// looksLikeErrorOutput - эвристика ошибочного вывода генерации.
// Модель не обязана возвращать структурированные ошибки, поэтому ловим
// подстроки; финальное слово все равно за жюри.
func looksLikeErrorOutput(output string) bool {
	if strings.TrimSpace(output) == "" {
		return true
	}
	lower := strings.ToLower(output)
	for _, marker := range []string{"error:", "failed", "invalid", "cannot"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// handlePlayerAction - горячий путь:
// загрузка world+state -> генерация нового состояния -> предварительное
// сохранение -> голос жюри -> ожидание консенсуса. Коммит или откат
// выполняется в RespondConsensus, когда жюри разрешит запрос.
func (s *ContractService) handlePlayerAction(ctx context.Context, user host.User, gameID, action string, continueConv bool, requestID, peerCount int) {
	if s.juryModule == nil {
		s.replyError(user, "Game systems not initialized")
		return
	}
	if !s.aiGateReady(ctx, user) {
		return
	}

	state := &actionState{
		user:         user,
		gameID:       gameID,
		playerAction: action,
	}

	oldState, _ := s.repo.LoadState(gameID)
	world, _ := s.repo.LoadWorld(gameID)
	state.oldState = oldState

	if oldState == "" || world == "" {
		// Партия не найдена: контекст для голосования все равно формируется,
		// жюри почти наверняка ответит INVALID.
		state.newState = oldState
	} else {
		s.logger.Info("Обрабатываем действие игрока",
			zap.String("game_id", gameID),
			zap.String("action", action),
			zap.Bool("continue_conversation", continueConv))

		output, err := s.gameClient.PlayerAction(ctx, gameID, action, oldState, world, continueConv)
		if err != nil {
			s.logger.Warn("Генерация нового состояния не удалась", zap.Error(err))
			output = ""
		}

		// Структурно неполное состояние отклоняется задним числом:
		// все шесть заголовков обязаны присутствовать.
		if !looksLikeErrorOutput(output) && models.HasAllStateFields(output) {
			state.newState = output
			state.proposeValid = true
			// Предварительное сохранение; откат выполнит консенсусный callback.
			if err := s.repo.SaveState(gameID, output); err != nil {
				s.logger.Warn("Предварительное сохранение не удалось", zap.Error(err))
			}
		} else {
			s.logger.Info("Вывод модели отклонен локально",
				zap.Bool("has_all_fields", models.HasAllStateFields(output)))
			state.newState = oldState
		}
	}

	s.pending[requestID] = state

	transitionContext := "GameWorld: " + world +
		" -> OldState: " + oldState +
		" -> PlayerAction: " + action +
		" -> NewState: " + state.newState

	if err := s.juryModule.ProcessRequest(ctx, user, "validate_game_action", transitionContext, requestID, peerCount, transitionContext); err != nil {
		s.logger.Error("Запрос жюри не отправлен", zap.Error(err))
		s.replyError(user, "Failed to submit action for validation")
		delete(s.pending, requestID)
		return
	}

	s.juryModule.WaitForConsensus(s.hostCtx, requestID, peerCount)
}

// handleQuery - валидированный свободный запрос. Только в консенсусных раундах.
func (s *ContractService) handleQuery(ctx context.Context, user host.User, data json.RawMessage, requestID, peerCount int) {
	if s.hostCtx.Readonly() {
		s.replyError(user, "query interface must not be read only")
		return
	}
	if len(data) == 0 {
		s.replyError(user, "must provide a data field to query message")
		return
	}

	// data может быть строкой или объектом {"query":"..."}.
	var query string
	if err := json.Unmarshal(data, &query); err != nil {
		var obj struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			s.replyError(user, "must provide a data field to query message")
			return
		}
		query = obj.Query
	}
	if strings.TrimSpace(query) == "" {
		s.replyError(user, "query field cannot be empty")
		return
	}

	if s.juryModule == nil {
		s.reply(user, map[string]string{"type": "queryResult", "result": "AI Jury not available"})
		return
	}

	// Отдельное пространство идентификаторов, чтобы не пересечься с игровыми.
	queryRequestID := 10000 + requestID
	if err := s.juryModule.ProcessRequest(ctx, user, "validate_query", query, queryRequestID, peerCount, "query_interface_context"); err != nil {
		s.logger.Error("Запрос жюри не отправлен", zap.Error(err))
		s.replyError(user, "Failed to submit query for validation")
		return
	}
	s.juryModule.WaitForConsensus(s.hostCtx, queryRequestID, peerCount)
}

// RespondConsensus - callback жюри: обогащает консенсусный ответ игровыми
// полями и коммитит либо откатывает предварительную запись состояния.
func (s *ContractService) RespondConsensus(user host.User, reply models.ConsensusReply) {
	if reply.MessageType != "validate_game_action" {
		s.reply(user, reply)
		return
	}

	state, ok := s.pending[reply.RequestID]
	if !ok {
		s.reply(user, reply)
		return
	}

	reply.GameID = state.gameID
	reply.PlayerAction = state.playerAction

	validAction := reply.Decision == models.DecisionValid
	if validAction && state.newState != "" && state.proposeValid {
		reply.ActionResult = models.ActionResultSuccess
		reply.GameState = state.newState

		if models.IsWonState(state.newState) {
			s.logger.Info("Партия выиграна, формируем NFT-данные",
				zap.String("game_id", state.gameID))
			if err := s.extractWinningInventory(state.gameID, state.newState, state.playerAction); err != nil {
				s.logger.Error("NFT-данные не сформированы", zap.Error(err))
			}
		}
	} else {
		reply.ActionResult = models.ActionResultFailed
		reply.GameState = state.oldState

		// Откат предварительной записи: файл состояния обязан побайтно
		// совпасть с состоянием на начало раунда.
		if state.gameID != "" && state.oldState != "" && state.proposeValid {
			s.logger.Info("Откатываем состояние партии",
				zap.String("game_id", state.gameID))
			if err := s.repo.SaveState(state.gameID, state.oldState); err != nil {
				s.logger.Error("Откат состояния не удался", zap.Error(err))
			}
		}
	}

	s.reply(user, reply)
}
