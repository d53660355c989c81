package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"game-contract/shared/interfaces"
	"game-contract/shared/models"

	"go.uber.org/zap"
)

// DaemonClient - типизированный клиент AI-демона поверх локального TCP.
// Каждый запрос одноразовый: connect -> полный JSON -> чтение до EOF -> close.
// Мультиплексирования и keep-alive нет - демон отвечает одним блобом.
type DaemonClient struct {
	addr        string
	pidFile     string
	pingTimeout time.Duration
	genTimeout  time.Duration
	logger      *zap.Logger
}

var _ interfaces.InferenceClient = (*DaemonClient)(nil)

// ErrDaemonUnavailable - не удалось установить соединение с демоном.
var ErrDaemonUnavailable = errors.New("ai daemon unavailable")

func NewDaemonClient(addr, pidFile string, logger *zap.Logger) *DaemonClient {
	return &DaemonClient{
		addr:        addr,
		pidFile:     pidFile,
		pingTimeout: 10 * time.Second,
		genTimeout:  120 * time.Second,
		logger:      logger.Named("daemon_client").With(zap.String("addr", addr)),
	}
}

// SetGenerationTimeout переопределяет таймаут генеративных запросов.
func (c *DaemonClient) SetGenerationTimeout(d time.Duration) {
	c.genTimeout = d
}

func (c *DaemonClient) send(ctx context.Context, req models.DaemonRequest, timeout time.Duration) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal daemon request: %w", err)
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("write daemon request: %w", err)
	}
	// Демон закрывает соединение после ответа - читаем до EOF.
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}

	resp, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("read daemon response: %w", err)
	}
	return resp, nil
}

// Ping - дешевый статусный запрос. Connect-fail при живом PID-файле
// трактуется как загрузка модели, а не как отсутствие демона.
func (c *DaemonClient) Ping(ctx context.Context) (models.PingResponse, error) {
	raw, err := c.send(ctx, models.DaemonRequest{Type: models.DaemonRequestPing}, c.pingTimeout)
	if err != nil {
		if c.pidAlive() {
			return models.PingResponse{
				Status:       models.DaemonStatusSocketUnavailable,
				ModelLoading: true,
				Reason:       "daemon_loading_model",
			}, nil
		}
		return models.PingResponse{Status: models.DaemonStatusSocketUnavailable, Reason: "no_pid_file"}, err
	}

	var resp models.PingResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return models.PingResponse{}, fmt.Errorf("parse ping response: %w", err)
	}
	return resp, nil
}

// Status сводит ping в трехзначное состояние для оркестратора.
func (c *DaemonClient) Status(ctx context.Context) interfaces.DaemonRunState {
	resp, err := c.Ping(ctx)
	switch {
	case err == nil && (resp.Status == models.DaemonStatusReady || resp.Status == models.DaemonStatusError):
		return interfaces.DaemonRunning
	case resp.Status == models.DaemonStatusLoading:
		return interfaces.DaemonRunning
	case resp.Status == models.DaemonStatusSocketUnavailable && resp.ModelLoading:
		return interfaces.DaemonLoading
	default:
		return interfaces.DaemonStopped
	}
}

// RawStatus - сырой JSON ответа ping для вставки в stat-ответ клиенту.
func (c *DaemonClient) RawStatus(ctx context.Context) json.RawMessage {
	resp, err := c.Ping(ctx)
	if err != nil && resp.Status == "" {
		return nil
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil
	}
	return raw
}

// IsModelReady - модель загружена и демон готов к генерации.
func (c *DaemonClient) IsModelReady(ctx context.Context) bool {
	resp, err := c.Ping(ctx)
	return err == nil && resp.Status == models.DaemonStatusReady && resp.ModelLoaded
}

// CreateGame запрашивает генерацию нового мира. Ответ - свободный текст.
func (c *DaemonClient) CreateGame(ctx context.Context, prompt, userID string) (string, error) {
	raw, err := c.send(ctx, models.DaemonRequest{
		Type:   models.DaemonRequestCreateGame,
		Prompt: prompt,
		UserID: userID,
	}, c.genTimeout)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// PlayerAction запрашивает новое состояние после действия игрока.
// Ответ - блок состояния (уже без маркеров) либо сырой вывод модели.
func (c *DaemonClient) PlayerAction(ctx context.Context, gameID, action, oldState, world string, continueConversation bool) (string, error) {
	raw, err := c.send(ctx, models.DaemonRequest{
		Type:                 models.DaemonRequestPlayerAction,
		GameID:               gameID,
		Action:               action,
		GameState:            oldState,
		GameWorld:            world,
		ContinueConversation: continueConversation,
	}, c.genTimeout)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Validate - бинарная валидация утверждения демоном жюри.
func (c *DaemonClient) Validate(ctx context.Context, statement string) (models.ValidateResponse, error) {
	raw, err := c.send(ctx, models.DaemonRequest{
		Type:      models.DaemonRequestValidate,
		Statement: statement,
	}, c.genTimeout)
	if err != nil {
		return models.ValidateResponse{}, err
	}
	var resp models.ValidateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return models.ValidateResponse{}, fmt.Errorf("parse validate response: %w", err)
	}
	if resp.Error != "" {
		return resp, fmt.Errorf("validator error: %s", resp.Error)
	}
	return resp, nil
}

// ResetConversation сбрасывает persistent-контекст игрового демона.
func (c *DaemonClient) ResetConversation(ctx context.Context) error {
	raw, err := c.send(ctx, models.DaemonRequest{Type: models.DaemonRequestResetConversation}, c.pingTimeout)
	if err != nil {
		return err
	}
	var resp models.ResetResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("parse reset response: %w", err)
	}
	if resp.Status != "conversation_reset" {
		return fmt.Errorf("unexpected reset status %q", resp.Status)
	}
	return nil
}

func (c *DaemonClient) pidAlive() bool {
	data, err := os.ReadFile(c.pidFile)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}
