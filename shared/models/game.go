package models

import "strings"

// GameStatus определяет возможные статусы партии внутри блока состояния.
// Значения пишутся моделью в строку "Game_Status:" и сравниваются дословно.
type GameStatus string

const (
	GameStatusActive GameStatus = "active" // Партия продолжается
	GameStatusWon    GameStatus = "won"    // Игрок победил, триггерится NFT
	GameStatusLost   GameStatus = "lost"   // Игрок проиграл
)

// Маркеры блока состояния в выводе модели.
// Между ними демон возвращает авторитетное состояние игрока за ход.
const (
	BeginStateMarker = "<<BEGIN_PLAYER_STATE>>"
	EndStateMarker   = "<<END_PLAYER_STATE>>"
)

// Заголовки строк блока состояния. Зафиксированы промтом демона;
// транзиция без всех шести строк считается невалидной задним числом.
const (
	FieldLocation  = "Player_Location:"
	FieldHealth    = "Player_Health:"
	FieldScore     = "Player_Score:"
	FieldInventory = "Player_Inventory:"
	FieldStatus    = "Game_Status:"
	FieldTurnCount = "Turn_Count:"
)

// RequiredStateFields - полный набор обязательных заголовков состояния.
var RequiredStateFields = []string{
	FieldLocation,
	FieldHealth,
	FieldScore,
	FieldInventory,
	FieldStatus,
	FieldTurnCount,
}

// ExtractStateField возвращает значение строки "Имя_Поля: значение" из блока состояния.
// Пустая строка - поле не найдено.
func ExtractStateField(state, field string) string {
	idx := strings.Index(state, field)
	if idx < 0 {
		return ""
	}
	rest := state[idx+len(field):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	return strings.TrimSpace(rest)
}

// HasAllStateFields проверяет структурную полноту предложенного состояния.
func HasAllStateFields(state string) bool {
	for _, f := range RequiredStateFields {
		if !strings.Contains(state, f) {
			return false
		}
	}
	return true
}

// IsWonState сообщает, зафиксирована ли в состоянии победа.
func IsWonState(state string) bool {
	return GameStatus(ExtractStateField(state, FieldStatus)) == GameStatusWon
}
