package models

import "encoding/json"

// DTO ответов клиенту. Оркестратор - единственное место, где решается,
// что уходит пользователю; ответ queryResult и ошибка на неподдержанный
// формат сообщения собираются как map, остальные - через эти структуры.

// StatsReply - снимок состояния узла для сообщения {"type":"stat"}.
type StatsReply struct {
	Type          string          `json:"type"` // "stats"
	ModelProgress float64         `json:"model_progress"`
	ModelPath     string          `json:"model_path"`
	DaemonStatus  string          `json:"daemon_status"` // "running" | "stopped"
	ModelReady    bool            `json:"model_ready"`
	DaemonDetails json.RawMessage `json:"daemon_details,omitempty"` // Сырой ответ ping демона
	SignerStarted bool            `json:"signer_started"`
	TotalGames    int             `json:"total_games"`
}

// GameCreatedReply - ответ на create_game.
type GameCreatedReply struct {
	Type   string `json:"type"` // "gameCreated"
	GameID string `json:"game_id"`
	Status string `json:"status"` // "success"
}

// GamesListReply - ответ на list_games.
type GamesListReply struct {
	Type  string   `json:"type"` // "gamesList"
	Games []string `json:"games"`
}

// GameStateReply - ответ на get_game_state.
type GameStateReply struct {
	Type   string `json:"type"` // "gameState"
	GameID string `json:"game_id"`
	State  string `json:"state"`
}

// ConsensusReply - обогащенный ответ по player_action после разрешения жюри.
type ConsensusReply struct {
	ConsensusResult
	Details      string `json:"details,omitempty"`
	Timestamp    int64  `json:"timestamp"`
	GameID       string `json:"game_id,omitempty"`
	PlayerAction string `json:"player_action,omitempty"`
	ActionResult string `json:"action_result,omitempty"` // "success" | "failed"
	GameState    string `json:"game_state,omitempty"`
}

const (
	ActionResultSuccess = "success"
	ActionResultFailed  = "failed"
)

// NFTMintReply - ответ на mint_nft (выполняется только в readonly-раундах).
type NFTMintReply struct {
	Type            string          `json:"type"` // "nft_mint_result"
	GameID          string          `json:"game_id"`
	Success         bool            `json:"success"`
	ReadonlyMode    bool            `json:"readonly_mode"`
	AlreadyMinted   bool            `json:"already_minted,omitempty"`
	Message         string          `json:"message,omitempty"`
	MintTimestamp   int64           `json:"mint_timestamp,omitempty"`
	TotalRequested  int             `json:"total_requested,omitempty"`
	SuccessfulMints int             `json:"successful_mints,omitempty"`
	FailedMints     int             `json:"failed_mints,omitempty"`
	BatchTxHash     string          `json:"batch_tx_hash,omitempty"`
	MintedItems     []NFTToken      `json:"minted_items,omitempty"`
	FailedItems     []NFTFailedItem `json:"failed_items,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// NFTFailedItem - предмет, который не удалось сминтить.
type NFTFailedItem struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// ErrorReply - ответ об ошибке. Received заполняется для нераспознанных сообщений.
type ErrorReply struct {
	Type     string `json:"type"` // "error"
	Error    string `json:"error"`
	Received string `json:"received,omitempty"`
}

// NewErrorReply - краткий конструктор для самого частого ответа.
func NewErrorReply(msg string) ErrorReply {
	return ErrorReply{Type: "error", Error: msg}
}
