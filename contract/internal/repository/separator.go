package repository

import "strings"

// Разделение свободного текста генерации на статичный мир и динамичное
// состояние. Модель размечает вывод секционными заголовками; строки без
// заголовка классифицируются эвристикой по ключевым словам. Это известная
// хрупкость формата, а не скрытый контракт: более строгая грамматика
// потребовала бы переработки промта генерации.

// Заголовки секций мира (статика).
var worldSectionTags = []string{
	"game title:",
	"world description:",
	"world lore:",
	"objectives:",
	"win conditions:",
	"game rules:",
}

// Заголовки секций состояния (динамика).
var stateSectionTags = []string{
	"current situation:",
	"location:",
	"starting status:",
}

// Ключевые слова, относящие бесхозную строку к состоянию.
var stateKeywords = []string{
	"you are",
	"you have",
	"you find yourself",
	"currently",
	"health",
	"inventory",
	"score",
}

// defaultState подставляется, когда модель не выдала ни одной строки состояния:
// пустой state-файл недопустим, партия обязана стартовать играбельной.
const defaultState = "Current Situation: You are just beginning your adventure.\n" +
	"Location: Starting location\n" +
	"Starting Status: You are ready to begin.\n"

func matchesAny(lowerLine string, tags []string) bool {
	for _, tag := range tags {
		if strings.Contains(lowerLine, tag) {
			return true
		}
	}
	return false
}

// SeparateContent делит полный текст генерации на (world, state).
func (r *FileGameStateRepository) SeparateContent(full string) (string, string) {
	var world, state strings.Builder
	inWorld := false
	inState := false

	for _, line := range strings.Split(full, "\n") {
		lower := strings.ToLower(line)

		switch {
		case matchesAny(lower, worldSectionTags):
			inWorld, inState = true, false
			world.WriteString(line + "\n")
		case matchesAny(lower, stateSectionTags):
			inWorld, inState = false, true
			state.WriteString(line + "\n")
		case inWorld:
			world.WriteString(line + "\n")
		case inState:
			state.WriteString(line + "\n")
		case line != "":
			// Строка вне секций: состояние по ключевым словам, иначе мир.
			if matchesAny(lower, stateKeywords) {
				state.WriteString(line + "\n")
			} else {
				world.WriteString(line + "\n")
			}
		}
	}

	worldContent := world.String()
	stateContent := state.String()

	if stateContent == "" {
		stateContent = defaultState
	}
	if worldContent == "" {
		worldContent = full
	}
	return worldContent, stateContent
}
