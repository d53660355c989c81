package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Пакет supervisor гарантирует ровно один живой AI-демон на роль между раундами.
// Демон переживает раунды контракта: при teardown раунда его никто не трогает,
// PID-файл - авторитетный источник правды о запущенном процессе.

// Role - роль демона: генерация игры или бинарная валидация жюри.
type Role string

const (
	RoleGame Role = "game"
	RoleJury Role = "jury"
)

// Supervisor находит, усыновляет или запускает демона одной роли.
type Supervisor struct {
	role       Role
	binaryPath string
	args       []string
	pidFile    string
	socketFile string // Устаревший артефакт сокета; убирается только вместе с мертвым PID
	logger     *zap.Logger
}

func New(role Role, binaryPath string, args []string, pidFile string, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		role:       role,
		binaryPath: binaryPath,
		args:       args,
		pidFile:    pidFile,
		logger:     logger.Named("supervisor").With(zap.String("role", string(role))),
	}
}

// SetSocketFile задает путь сокет-артефакта для зачистки мертвых демонов.
func (s *Supervisor) SetSocketFile(path string) {
	s.socketFile = path
}

// EnsureRunning вызывается в начале каждого не-readonly раунда.
//
// 1. Живой PID из файла усыновляется без подключения к сокету: демон может
// глубоко сидеть в загрузке модели и на connect не ответить.
// 2. Иначе PID-файл чистится, демон форкается заново, пишется новый PID,
// через 500 мс процесс перепроверяется probe-сигналом.
func (s *Supervisor) EnsureRunning() (int, error) {
	if pid, ok := s.existingPID(); ok {
		if processAlive(pid) {
			s.logger.Info("Используем существующий демон",
				zap.Int("pid", pid))
			return pid, nil
		}
		s.logger.Info("Процесс из PID-файла мертв, чистим артефакты", zap.Int("pid", pid))
		s.cleanupDead()
	}

	if _, err := os.Stat(s.binaryPath); err != nil {
		return 0, fmt.Errorf("daemon binary not found at %s: %w", s.binaryPath, err)
	}

	cmd := exec.Command(s.binaryPath, s.args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// Демон живет в своей сессии, чтобы не умереть вместе с раундом.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start daemon: %w", err)
	}
	pid := cmd.Process.Pid
	if err := s.writePID(pid); err != nil {
		s.logger.Warn("Не удалось записать PID-файл", zap.Error(err))
	}
	// Фоновый Wait нужен, чтобы умерший демон не остался зомби:
	// зомби отвечает на probe-сигнал и выглядел бы живым.
	go func() { _ = cmd.Wait() }()

	s.logger.Info("Демон запущен", zap.Int("pid", pid), zap.String("binary", s.binaryPath))

	time.Sleep(500 * time.Millisecond)
	if !processAlive(pid) {
		_ = os.Remove(s.pidFile)
		return 0, fmt.Errorf("daemon exited immediately after start (pid %d)", pid)
	}
	return pid, nil
}

// AlivePID возвращает PID живого демона, если он есть.
func (s *Supervisor) AlivePID() (int, bool) {
	pid, ok := s.existingPID()
	if !ok || !processAlive(pid) {
		return 0, false
	}
	return pid, true
}

// cleanupDead убирает PID-файл и сокет-артефакт подтвержденно мертвого демона.
// Живой демон никогда не трогается: во время загрузки модели он занят, но жив.
func (s *Supervisor) cleanupDead() {
	_ = os.Remove(s.pidFile)
	if s.socketFile != "" {
		_ = os.Remove(s.socketFile)
	}
}

func (s *Supervisor) existingPID() (int, bool) {
	data, err := os.ReadFile(s.pidFile)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func (s *Supervisor) writePID(pid int) error {
	return os.WriteFile(s.pidFile, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// processAlive - probe сигналом 0: процесс существует и доступен.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}
