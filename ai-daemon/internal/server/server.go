package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"game-contract/ai-daemon/internal/config"
	"game-contract/ai-daemon/internal/engine"
	"game-contract/ai-daemon/internal/service"
	"game-contract/shared/models"

	"go.uber.org/zap"
)

// Daemon - TCP-сервер инференса на 127.0.0.1:<port>.
// Сокет принимает соединения ДО окончания загрузки модели: ping отвечает
// "loading", пока фоновый Warmup не завершится. PID-файл пишется в момент
// бинда - с этой секунды супервизор контракта считает демона живым.
type Daemon struct {
	cfg     *config.Config
	eng     engine.Engine
	gameSvc *service.GameService
	valSvc  *service.ValidationService
	logger  *zap.Logger

	listener net.Listener

	mu           sync.RWMutex
	modelLoaded  bool
	modelLoading bool
	modelError   string
}

func New(cfg *config.Config, eng engine.Engine, logger *zap.Logger) *Daemon {
	d := &Daemon{
		cfg:    cfg,
		eng:    eng,
		logger: logger.Named("daemon").With(zap.String("role", cfg.Role)),
	}
	switch cfg.Role {
	case config.RoleGame:
		d.gameSvc = service.NewGameService(eng, cfg.ContextWindow, logger)
	case config.RoleJury:
		d.valSvc = service.NewValidationService(eng, logger)
	}
	return d
}

// Run поднимает сервер и блокируется до отмены контекста.
func (d *Daemon) Run(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", d.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}
	d.listener = listener
	d.logger.Info("TCP-сервер поднят", zap.String("addr", addr), zap.Int("pid", os.Getpid()))

	if err := os.WriteFile(d.cfg.PIDFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		d.logger.Warn("PID-файл не записан", zap.Error(err))
	}

	// Модель грузится асинхронно - соединения принимаются сразу.
	go d.warmupModel(ctx)
	go d.heartbeat(ctx)

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				d.cleanup()
				return nil
			}
			d.logger.Warn("Accept не удался", zap.Error(err))
			time.Sleep(100 * time.Millisecond)
			continue
		}
		go d.handleConn(ctx, conn)
	}
}

// Addr возвращает фактический адрес слушателя (порт 0 в конфиге - эфемерный).
func (d *Daemon) Addr() string {
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

func (d *Daemon) cleanup() {
	_ = os.Remove(d.cfg.PIDFile)
	d.logger.Info("Демон остановлен, PID-файл убран")
}

// warmupModel прогревает бэкенд в фоне и переводит статус в ready/error.
func (d *Daemon) warmupModel(ctx context.Context) {
	d.mu.Lock()
	d.modelLoading = true
	d.mu.Unlock()

	startTime := time.Now()
	d.logger.Info("Начинаем загрузку модели", zap.String("engine", d.eng.Info()))

	err := d.eng.Warmup(ctx)

	d.mu.Lock()
	d.modelLoading = false
	if err != nil {
		d.modelError = err.Error()
		d.logger.Error("Загрузка модели провалена",
			zap.Duration("duration", time.Since(startTime)), zap.Error(err))
	} else {
		d.modelLoaded = true
		d.logger.Info("Модель загружена и готова",
			zap.Duration("duration", time.Since(startTime)))
	}
	d.mu.Unlock()
}

// heartbeat периодически пишет строку живости со статусом.
func (d *Daemon) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.HeartbeatInterval)
	defer ticker.Stop()
	beat := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat++
			d.logger.Info("HEARTBEAT",
				zap.Int("beat", beat),
				zap.String("status", d.status()),
				zap.Int("pid", os.Getpid()))
		}
	}
}

func (d *Daemon) status() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	switch {
	case d.modelLoaded:
		return models.DaemonStatusReady
	case d.modelLoading:
		return models.DaemonStatusLoading
	case d.modelError != "":
		return models.DaemonStatusError
	default:
		return models.DaemonStatusLoading
	}
}

// handleConn обслуживает одно одноразовое соединение:
// полный запрос до EOF -> один ответ -> close.
func (d *Daemon) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(d.cfg.Timeout))

	data, err := io.ReadAll(conn)
	if err != nil || len(data) == 0 {
		d.logger.Warn("Запрос не прочитан", zap.Error(err))
		return
	}

	response := d.handleRequest(ctx, data)
	if _, err := conn.Write(response); err != nil {
		d.logger.Warn("Ответ не отправлен", zap.Error(err))
	}
}

func errorJSON(msg string) []byte {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return data
}

// handleRequest маршрутизирует запрос по типу с учетом роли демона.
func (d *Daemon) handleRequest(ctx context.Context, data []byte) []byte {
	var req models.DaemonRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return errorJSON("Failed to parse request: " + err.Error())
	}

	d.logger.Info("Запрос принят", zap.String("type", req.Type), zap.Int("bytes", len(data)))

	switch req.Type {
	case models.DaemonRequestPing:
		return d.handlePing()
	case models.DaemonRequestCreateGame:
		return d.handleCreateGame(ctx, req)
	case models.DaemonRequestPlayerAction:
		return d.handlePlayerAction(ctx, req)
	case models.DaemonRequestResetConversation:
		return d.handleReset()
	case models.DaemonRequestValidate:
		return d.handleValidate(ctx, req)
	default:
		return errorJSON("Unknown request type")
	}
}

func (d *Daemon) handlePing() []byte {
	d.mu.RLock()
	resp := models.PingResponse{
		Status:       d.status(),
		ModelLoaded:  d.modelLoaded,
		ModelLoading: d.modelLoading,
		Error:        d.modelError,
	}
	d.mu.RUnlock()
	data, _ := json.Marshal(resp)
	return data
}

func (d *Daemon) requireReady() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.modelLoaded {
		return errorJSON("Model not loaded")
	}
	return nil
}

func (d *Daemon) handleCreateGame(ctx context.Context, req models.DaemonRequest) []byte {
	if d.gameSvc == nil {
		return errorJSON("create_game is not served by this daemon role")
	}
	if msg := d.requireReady(); msg != nil {
		return msg
	}
	content, err := d.gameSvc.CreateGame(ctx, req.Prompt)
	if err != nil {
		return errorJSON(err.Error())
	}
	// Нарративный текст уходит как есть, без JSON-обертки.
	return []byte(content)
}

func (d *Daemon) handlePlayerAction(ctx context.Context, req models.DaemonRequest) []byte {
	if d.gameSvc == nil {
		return errorJSON("player_action is not served by this daemon role")
	}
	if msg := d.requireReady(); msg != nil {
		return msg
	}
	state, err := d.gameSvc.PlayerAction(ctx, req.GameID, req.Action, req.GameState, req.GameWorld, req.ContinueConversation)
	if err != nil {
		return errorJSON(err.Error())
	}
	return []byte(state)
}

func (d *Daemon) handleReset() []byte {
	if d.gameSvc == nil {
		return errorJSON("reset_conversation is not served by this daemon role")
	}
	d.gameSvc.Reset()
	data, _ := json.Marshal(models.ResetResponse{
		Status:  "conversation_reset",
		Message: "Conversation context has been reset",
	})
	return data
}

func (d *Daemon) handleValidate(ctx context.Context, req models.DaemonRequest) []byte {
	if d.valSvc == nil {
		return errorJSON("validate is not served by this daemon role")
	}
	if req.Statement == "" {
		return errorJSON("No statement provided for validation")
	}
	if msg := d.requireReady(); msg != nil {
		return msg
	}
	resp, err := d.valSvc.Validate(ctx, req.Statement)
	if err != nil {
		return errorJSON(err.Error())
	}
	data, _ := json.Marshal(resp)
	return data
}
