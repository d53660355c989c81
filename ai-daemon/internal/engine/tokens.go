package engine

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Бюджетирование промта: прежде чем отдать историю бэкенду, демон считает
// токены и отбрасывает старые ходы, чтобы уложиться в окно контекста.
// Точный токенизатор модели недоступен (он внутри бэкенда), cl100k_base
// дает достаточную оценку сверху для обрезки.

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// CountTokens оценивает число токенов в тексте.
// Если токенизатор недоступен (нет словаря в окружении), берется грубая
// оценка len/4 - для обрезки этого хватает.
func CountTokens(text string) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	if encoding == nil {
		return len(text) / 4
	}
	return len(encoding.Encode(text, nil, nil))
}

// TrimHistory укорачивает историю разговора до бюджета токенов.
// Системная реплика и последняя пара ходов сохраняются всегда; выбрасываются
// самые старые пользовательские/ассистентские ходы.
func TrimHistory(messages []Message, budget int) []Message {
	if len(messages) == 0 {
		return messages
	}

	total := 0
	for _, m := range messages {
		total += CountTokens(m.Content)
	}
	if total <= budget {
		return messages
	}

	// Первая реплика (system) закреплена; режем из начала остальной части.
	head := messages[:1]
	tail := messages[1:]
	for len(tail) > 2 && total > budget {
		total -= CountTokens(tail[0].Content)
		tail = tail[1:]
	}

	trimmed := make([]Message, 0, len(head)+len(tail))
	trimmed = append(trimmed, head...)
	trimmed = append(trimmed, tail...)
	return trimmed
}
