package service

import (
	"context"
	"encoding/json"
	"strings"

	"game-contract/contract/internal/host"
	"game-contract/shared/models"

	"go.uber.org/zap"
)

// Маршрутизация клиентских сообщений. Основной формат - JSON с ключом-действием
// ({"create_game":"..."}, {"game_id":...,"action":...}); старый колоночный
// формат "action:data" принимается как fallback. Нераспознанное сообщение
// получает ошибку с эхом полученного текста.

// truncateReceived ограничивает эхо сырого сообщения в ответе об ошибке.
func truncateReceived(msg string) string {
	const limit = 200
	if len(msg) <= limit {
		return msg
	}
	return msg[:limit] + "..."
}

// routeMessage разбирает одно входящее сообщение и вызывает обработчик.
func (s *ContractService) routeMessage(ctx context.Context, user host.User, message string, requestID, peerCount int) {
	s.logger.Info("Входящее сообщение",
		zap.Int("request_id", requestID),
		zap.Int("bytes", len(message)))

	trimmed := strings.TrimSpace(message)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		if s.routeJSON(ctx, user, trimmed, requestID, peerCount) {
			return
		}
	}

	// Fallback: колоночный формат "action:data".
	if action, data, found := strings.Cut(trimmed, ":"); found {
		s.routeLegacy(ctx, user, action, data, requestID, peerCount)
		return
	}

	s.reply(user, map[string]string{
		"type":     "error",
		"error":    "Unsupported message type",
		"received": truncateReceived(message),
	})
}

// routeJSON обрабатывает JSON-грамматику. Возвращает false, если сообщение
// не подошло ни под один известный ключ (тогда пробуется legacy-формат).
func (s *ContractService) routeJSON(ctx context.Context, user host.User, message string, requestID, peerCount int) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(message), &fields); err != nil {
		return false
	}

	asString := func(key string) (string, bool) {
		raw, ok := fields[key]
		if !ok {
			return "", false
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	}

	if typ, ok := asString("type"); ok {
		switch typ {
		case "stat":
			s.handleStat(ctx, user)
			return true
		case "query":
			s.handleQuery(ctx, user, fields["data"], requestID, peerCount)
			return true
		}
	}

	if prompt, ok := asString("create_game"); ok {
		s.handleCreateGame(ctx, user, prompt)
		return true
	}

	if _, ok := fields["list_games"]; ok {
		s.handleListGames(user)
		return true
	}

	if gameID, ok := asString("get_game_state"); ok {
		s.handleGetGameState(user, gameID)
		return true
	}

	if gameID, ok := asString("mint_nft"); ok {
		s.handleMintNFT(ctx, user, gameID)
		return true
	}

	if gameID, ok := asString("game_id"); ok {
		if action, ok := asString("action"); ok {
			continueConv := false
			if cc, ok := asString("continue_conversation"); ok {
				continueConv = cc == "true" || cc == "1"
			} else if raw, ok := fields["continue_conversation"]; ok {
				// Допускаем и нормальный булев JSON.
				_ = json.Unmarshal(raw, &continueConv)
			}
			s.handlePlayerAction(ctx, user, gameID, action, continueConv, requestID, peerCount)
			return true
		}
	}

	return false
}

// routeLegacy обрабатывает колоночный формат "action:data".
func (s *ContractService) routeLegacy(ctx context.Context, user host.User, action, data string, requestID, peerCount int) {
	switch action {
	case "stat":
		s.handleStat(ctx, user)
	case "create_game":
		s.handleCreateGame(ctx, user, data)
	case "list_games":
		s.handleListGames(user)
	case "get_game_state":
		s.handleGetGameState(user, data)
	case "mint_nft":
		s.handleMintNFT(ctx, user, data)
	case "player_action":
		// data: "game_id:action_text[:continue]"
		gameID, rest, found := strings.Cut(data, ":")
		if !found {
			s.replyError(user, "player_action requires game_id:action format")
			return
		}
		actionText, continueStr, _ := strings.Cut(rest, ":")
		continueConv := continueStr == "true" || continueStr == "1"
		s.handlePlayerAction(ctx, user, gameID, actionText, continueConv, requestID, peerCount)
	default:
		s.reply(user, models.ErrorReply{
			Type:     "error",
			Error:    "Unknown action: " + action,
			Received: truncateReceived(action + ":" + data),
		})
	}
}
