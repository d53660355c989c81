package host

import "time"

// Пакет host абстрагирует контрактную платформу: раундовый цикл, пользовательский
// ввод-вывод и NPL-канал узел-узел. Сама платформа вне репозитория; контракт
// получает готовую реализацию Context при старте раунда.

// User - подключенный пользователь раунда с упорядоченным списком его сообщений.
// Порядок пользователей и их сообщений одинаков на всех репликах - на этом
// держится детерминизм GameID и индексов запросов.
type User struct {
	PublicKey string
	Inputs    []string
}

// NPLMessage - сообщение, полученное из канала узел-узел.
type NPLMessage struct {
	Sender  string
	Payload []byte
}

// Context - контекст одного раунда исполнения контракта.
type Context interface {
	// Users возвращает пользователей раунда в порядке, заданном хостом.
	Users() []User
	// Readonly - раунд только для чтения: мутации состояния и NPL-рассылка запрещены.
	Readonly() bool
	// PeerCount - мощность UNL; число голосов, необходимое для разрешения запроса.
	// Минимум 1 (одиночный узел голосует сам за себя).
	PeerCount() int
	// WriteUserMessage отправляет ответ конкретному пользователю.
	WriteUserMessage(user User, payload []byte) error
	// BroadcastNPL рассылает сообщение всем узлам UNL (включая эхо самому себе).
	BroadcastNPL(payload []byte) error
	// ReadNPLMessage ждет одно входящее NPL-сообщение не дольше timeout.
	// ok=false - за отведенное время ничего не пришло.
	ReadNPLMessage(timeout time.Duration) (NPLMessage, bool)
}
