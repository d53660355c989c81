package mocks

import (
	"time"

	"game-contract/contract/internal/host"

	"github.com/stretchr/testify/mock"
)

// Context - мок host.Context для юнит-тестов оркестратора и жюри.
type Context struct {
	mock.Mock
}

func (m *Context) Users() []host.User {
	args := m.Called()
	var users []host.User
	if v := args.Get(0); v != nil {
		users = v.([]host.User)
	}
	return users
}

func (m *Context) Readonly() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *Context) PeerCount() int {
	args := m.Called()
	return args.Int(0)
}

func (m *Context) WriteUserMessage(user host.User, payload []byte) error {
	args := m.Called(user, payload)
	return args.Error(0)
}

func (m *Context) BroadcastNPL(payload []byte) error {
	args := m.Called(payload)
	return args.Error(0)
}

func (m *Context) ReadNPLMessage(timeout time.Duration) (host.NPLMessage, bool) {
	args := m.Called(timeout)
	return args.Get(0).(host.NPLMessage), args.Bool(1)
}
