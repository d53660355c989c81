package repository

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"

	"game-contract/shared/interfaces"

	"go.uber.org/zap"
)

// FileGameStateRepository хранит партии в плоских UTF-8 файлах каталога game_data:
// game_world_<id>.txt (статика, пишется один раз) и game_state_<id>.txt
// (динамика, перезаписывается на каждом принятом ходе). Формат и имена файлов
// одинаковы на всех репликах - по ним сверяется сошедшееся состояние узлов.
type FileGameStateRepository struct {
	dataDir string
	logger  *zap.Logger
}

var _ interfaces.GameStateRepository = (*FileGameStateRepository)(nil)

const (
	worldFilePrefix = "game_world_"
	stateFilePrefix = "game_state_"
	fileSuffix      = ".txt"
)

func NewFileGameStateRepository(dataDir string, logger *zap.Logger) (*FileGameStateRepository, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create game data dir: %w", err)
	}
	return &FileGameStateRepository{
		dataDir: dataDir,
		logger:  logger.Named("game_repo"),
	}, nil
}

// GenerateGameID строит детерминированный идентификатор партии.
// Входы (промт, ключ пользователя, число существующих партий) упорядочены
// хостом одинаково на всех репликах, поэтому ID совпадает без координации.
func (r *FileGameStateRepository) GenerateGameID(prompt, userKey string) (string, error) {
	games, err := r.ListGames()
	if err != nil {
		return "", err
	}
	gameNumber := len(games) + 1

	h := fnv.New64a()
	_, _ = h.Write([]byte(prompt + userKey))
	return fmt.Sprintf("game_%d_%d", gameNumber, h.Sum64()%100000), nil
}

func (r *FileGameStateRepository) worldPath(gameID string) string {
	return filepath.Join(r.dataDir, worldFilePrefix+gameID+fileSuffix)
}

func (r *FileGameStateRepository) statePath(gameID string) string {
	return filepath.Join(r.dataDir, stateFilePrefix+gameID+fileSuffix)
}

// SaveWorld пишет статичный мир партии. Вызывается один раз при создании.
func (r *FileGameStateRepository) SaveWorld(gameID, content string) error {
	if err := os.WriteFile(r.worldPath(gameID), []byte(content), 0o644); err != nil {
		return fmt.Errorf("save game world %s: %w", gameID, err)
	}
	r.logger.Info("Мир партии сохранен", zap.String("game_id", gameID), zap.Int("bytes", len(content)))
	return nil
}

// SaveState перезаписывает состояние партии целиком.
// Откат невалидной транзиции - это SaveState со старым содержимым.
func (r *FileGameStateRepository) SaveState(gameID, content string) error {
	if err := os.WriteFile(r.statePath(gameID), []byte(content), 0o644); err != nil {
		return fmt.Errorf("save game state %s: %w", gameID, err)
	}
	r.logger.Info("Состояние партии сохранено", zap.String("game_id", gameID), zap.Int("bytes", len(content)))
	return nil
}

func (r *FileGameStateRepository) LoadWorld(gameID string) (string, error) {
	data, err := os.ReadFile(r.worldPath(gameID))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("load game world %s: %w", gameID, err)
	}
	return string(data), nil
}

func (r *FileGameStateRepository) LoadState(gameID string) (string, error) {
	data, err := os.ReadFile(r.statePath(gameID))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("load game state %s: %w", gameID, err)
	}
	return string(data), nil
}

// ListGames перечисляет партии по файлам миров.
func (r *FileGameStateRepository) ListGames() ([]string, error) {
	entries, err := os.ReadDir(r.dataDir)
	if err != nil {
		return nil, fmt.Errorf("list game data dir: %w", err)
	}
	var games []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, worldFilePrefix) && strings.HasSuffix(name, fileSuffix) {
			games = append(games, strings.TrimSuffix(strings.TrimPrefix(name, worldFilePrefix), fileSuffix))
		}
	}
	return games, nil
}
