package models

import "encoding/json"

// Vote - голос одного узла жюри по конкретному запросу.
// Сериализуется в JSON и рассылается остальным узлам через NPL-канал хоста.
// Формат полей фиксирован протоколом: узлы на других версиях обязаны уметь его читать.
type Vote struct {
	RequestID  int     `json:"requestId"`
	IsValid    bool    `json:"isValid"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	JuryID     string  `json:"juryId"`
	Context    string  `json:"context"`
}

// ToJSON сериализует голос для NPL-рассылки.
func (v Vote) ToJSON() ([]byte, error) {
	return json.Marshal(v)
}

// VoteFromJSON разбирает голос, полученный по NPL.
// Неизвестные поля игнорируются: старые узлы могут слать расширенные сообщения.
func VoteFromJSON(data []byte) (Vote, error) {
	var v Vote
	err := json.Unmarshal(data, &v)
	return v, err
}

// Decision - результат локальной оценки транзиции движком принятия решений.
type Decision struct {
	IsValid    bool
	Confidence float64 // 0.0 .. 1.0
	Reason     string  // Человекочитаемое объяснение
	Metadata   string  // Сырой ответ движка, если есть
}

// ConsensusResult - итог подсчета голосов по запросу.
// Отдается оркестратору через callback и дальше обогащается игровыми полями.
type ConsensusResult struct {
	Type         string  `json:"type"` // Всегда "consensus"
	RequestID    int     `json:"requestId"`
	Decision     string  `json:"decision"` // "valid" | "invalid"
	Confidence   float64 `json:"confidence"`
	ValidVotes   int     `json:"validVotes"`
	InvalidVotes int     `json:"invalidVotes"`
	TotalVotes   int     `json:"totalVotes"`
	MessageType  string  `json:"messageType"`
}

const (
	DecisionValid   = "valid"
	DecisionInvalid = "invalid"
)
