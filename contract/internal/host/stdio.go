package host

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"
)

// StdioContext - связка с контрактной платформой через stdin/stdout плюс
// датаграммный сокет NPL-агента. Платформа подает раундовый документ одним
// JSON на stdin и разбирает построчные JSON-ответы со stdout; NPL-агент
// рассылает датаграммы остальным узлам и доставляет входящие.
// Продакшен-обвязка хоста реализует тот же интерфейс Context.

// RoundInput - раундовый документ от платформы.
type RoundInput struct {
	Readonly  bool        `json:"readonly"`
	PeerCount int         `json:"peer_count"`
	Users     []RoundUser `json:"users"`
}

// RoundUser - пользователь раунда в раундовом документе.
type RoundUser struct {
	PublicKey string   `json:"public_key"`
	Inputs    []string `json:"inputs"`
}

// nplEnvelope - конверт датаграммы NPL-агента.
type nplEnvelope struct {
	Sender  string          `json:"sender"`
	Payload json.RawMessage `json:"payload"`
}

// userEnvelope - конверт исходящего пользовательского сообщения.
type userEnvelope struct {
	To      string          `json:"to"`
	Payload json.RawMessage `json:"payload"`
}

type StdioContext struct {
	round RoundInput
	out   *bufio.Writer
	npl   net.Conn // nil без NPL-агента; в readonly-раунде рассылка запрещена и при npl != nil
}

var _ Context = (*StdioContext)(nil)

// NewStdioContext читает раундовый документ из r; ответы пойдут в w.
// npl может быть nil - тогда рассылка запрещена, чтение всегда пустое.
func NewStdioContext(r io.Reader, w io.Writer, npl net.Conn) (*StdioContext, error) {
	var round RoundInput
	if err := json.NewDecoder(r).Decode(&round); err != nil {
		return nil, fmt.Errorf("decode round input: %w", err)
	}
	if round.PeerCount < 1 {
		round.PeerCount = 1
	}
	return &StdioContext{
		round: round,
		out:   bufio.NewWriter(w),
		npl:   npl,
	}, nil
}

func (c *StdioContext) Users() []User {
	users := make([]User, 0, len(c.round.Users))
	for _, u := range c.round.Users {
		users = append(users, User{PublicKey: u.PublicKey, Inputs: u.Inputs})
	}
	return users
}

func (c *StdioContext) Readonly() bool {
	return c.round.Readonly
}

func (c *StdioContext) PeerCount() int {
	return c.round.PeerCount
}

func (c *StdioContext) WriteUserMessage(user User, payload []byte) error {
	env := userEnvelope{To: user.PublicKey, Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal user envelope: %w", err)
	}
	if _, err := c.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write user message: %w", err)
	}
	return c.out.Flush()
}

func (c *StdioContext) BroadcastNPL(payload []byte) error {
	if c.round.Readonly {
		return fmt.Errorf("npl broadcast is not permitted in readonly round")
	}
	if c.npl == nil {
		return fmt.Errorf("npl transport is not connected")
	}
	if _, err := c.npl.Write(payload); err != nil {
		return fmt.Errorf("npl write: %w", err)
	}
	return nil
}

func (c *StdioContext) ReadNPLMessage(timeout time.Duration) (NPLMessage, bool) {
	if c.npl == nil {
		time.Sleep(timeout)
		return NPLMessage{}, false
	}
	_ = c.npl.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 64*1024)
	n, err := c.npl.Read(buf)
	if err != nil || n == 0 {
		return NPLMessage{}, false
	}

	var env nplEnvelope
	if err := json.Unmarshal(buf[:n], &env); err == nil && len(env.Payload) > 0 {
		return NPLMessage{Sender: env.Sender, Payload: env.Payload}, true
	}
	// Агент может слать и голые сообщения без конверта.
	return NPLMessage{Payload: append([]byte(nil), buf[:n]...)}, true
}
