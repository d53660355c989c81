package service

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"game-contract/contract/internal/downloader"
	"game-contract/contract/internal/host"
	"game-contract/contract/internal/jury"
	"game-contract/contract/internal/supervisor"
	"game-contract/shared/interfaces"
	"game-contract/shared/models"

	"go.uber.org/zap"
)

// ContractService - точка входа раунда: маршрутизация сообщений, связка
// хранилища состояний с жюри, обогащенные ответы клиенту. Оркестратор
// однопоточен в пределах раунда; границы раундов сериализуют его исполнение.
type ContractService struct {
	repo       interfaces.GameStateRepository
	gameClient interfaces.InferenceClient
	juryModule *jury.Module
	downloader *downloader.Downloader
	signing    SigningService
	supers     []*supervisor.Supervisor
	signerSent string // Sentinel-файл запущенного signing-сервиса (для stat)
	dataDir    string // Каталог game_data: файлы партий и NFT-записи
	now        func() int64
	logger     *zap.Logger

	// Контекст текущего раунда и незакрытые player_action запросы.
	// Живут ровно один раунд: неразрешенные записи отбрасываются без ответа.
	hostCtx host.Context
	pending map[int]*actionState
}

// SigningService - минтинг через внешний signing-сервис (readonly-раунды).
type SigningService interface {
	Healthy(ctx context.Context) bool
	MintInventory(ctx context.Context, gameID string, items []string, unixNow int64) (models.NFTMintBatch, error)
}

// actionState - контекст одного player_action для обогащения ответа жюри.
type actionState struct {
	user         host.User
	gameID       string
	playerAction string
	oldState     string
	newState     string
	proposeValid bool // Локально транзиция выглядела валидной и была сохранена
}

func NewContractService(
	repo interfaces.GameStateRepository,
	gameClient interfaces.InferenceClient,
	dl *downloader.Downloader,
	signing SigningService,
	supers []*supervisor.Supervisor,
	logger *zap.Logger,
) *ContractService {
	return &ContractService{
		repo:       repo,
		gameClient: gameClient,
		downloader: dl,
		signing:    signing,
		supers:     supers,
		signerSent: "xahau_signer.started",
		dataDir:    "game_data",
		now:        func() int64 { return time.Now().Unix() },
		logger:     logger.Named("contract"),
		pending:    make(map[int]*actionState),
	}
}

// SetJury подключает модуль жюри. Вызывается после конструктора, потому что
// responder жюри замыкается на сам сервис (обогащение ответов).
func (s *ContractService) SetJury(m *jury.Module) {
	s.juryModule = m
}

// SetClock подменяет источник времени (для тестов).
func (s *ContractService) SetClock(now func() int64) {
	s.now = now
}

// SetSignerSentinel задает путь sentinel-файла signing-сервиса.
func (s *ContractService) SetSignerSentinel(path string) {
	s.signerSent = path
}

// SetDataDir задает каталог game_data (файлы партий и NFT-записи).
func (s *ContractService) SetDataDir(dir string) {
	s.dataDir = dir
}

// RunRound исполняет один раунд контракта.
// Не-readonly раунд начинается с подготовки модели и демонов; затем входы
// пользователей обрабатываются строго в порядке, заданном хостом, - он
// одинаков на всех репликах. В конце одним чтением дренируется NPL:
// голоса, пришедшие вне циклов ожидания, тоже должны быть учтены.
func (s *ContractService) RunRound(ctx context.Context, hostCtx host.Context) {
	s.hostCtx = hostCtx
	s.pending = make(map[int]*actionState)
	defer func() { s.hostCtx = nil }()

	if !hostCtx.Readonly() {
		s.prepareModelAndDaemons(ctx)
	}

	peerCount := hostCtx.PeerCount()
	if peerCount < 1 {
		peerCount = 1
	}

	for u, user := range hostCtx.Users() {
		for i, input := range user.Inputs {
			if input == "" {
				continue
			}
			requestID := u*1000 + i
			s.routeMessage(ctx, user, input, requestID, peerCount)
		}
	}

	s.drainNPL(peerCount)
}

// prepareModelAndDaemons скачивает очередной чанк модели и, когда артефакт
// полон и проверен, поднимает оба демона. Ошибки здесь транзиентны: раунд
// продолжается, AI-операции ответят "модель грузится".
func (s *ContractService) prepareModelAndDaemons(ctx context.Context) {
	status := s.downloader.EnsureModel(ctx)
	switch status.Kind {
	case downloader.StatusComplete:
		for _, sup := range s.supers {
			if _, err := sup.EnsureRunning(); err != nil {
				s.logger.Warn("Демон не запустился", zap.Error(err))
			}
		}
	case downloader.StatusPartial:
		s.logger.Info("Модель докачивается",
			zap.Float64("progress", status.Progress))
	case downloader.StatusFailed:
		s.logger.Error("Подготовка модели провалена", zap.String("reason", status.Reason))
	}
}

// drainNPL обрабатывает голоса, пришедшие после разрешения всех запросов
// этого узла (чужие раунды могли стартовать позже).
func (s *ContractService) drainNPL(peerCount int) {
	if s.juryModule == nil || s.hostCtx == nil {
		return
	}
	msg, ok := s.hostCtx.ReadNPLMessage(100 * time.Millisecond)
	if !ok {
		return
	}
	var probe struct {
		RequestID *int   `json:"requestId"`
		Type      string `json:"type"`
	}
	if err := json.Unmarshal(msg.Payload, &probe); err == nil && probe.RequestID != nil {
		s.juryModule.ProcessVote(msg.Payload, peerCount)
		return
	}
	s.logger.Debug("NPL-сообщение неизвестного формата отброшено",
		zap.String("type", probe.Type))
}

// reply сериализует и отправляет ответ пользователю.
func (s *ContractService) reply(user host.User, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Ответ не сериализован", zap.Error(err))
		return
	}
	if err := s.hostCtx.WriteUserMessage(user, data); err != nil {
		s.logger.Error("Ответ не доставлен пользователю", zap.Error(err))
	}
}

func (s *ContractService) replyError(user host.User, msg string) {
	s.reply(user, models.NewErrorReply(msg))
}

// handleStat собирает снимок состояния узла.
func (s *ContractService) handleStat(ctx context.Context, user host.User) {
	statsReply := models.StatsReply{
		Type:          "stats",
		ModelProgress: s.downloader.Progress(),
		ModelPath:     s.downloader.ModelPath(),
		DaemonStatus:  "stopped",
	}

	state := s.gameClient.Status(ctx)
	if state != interfaces.DaemonStopped {
		statsReply.DaemonStatus = "running"
		statsReply.DaemonDetails = s.gameClient.RawStatus(ctx)
	}
	statsReply.ModelReady = s.gameClient.IsModelReady(ctx)

	if _, err := os.Stat(s.signerSent); err == nil {
		statsReply.SignerStarted = true
	}

	if games, err := s.repo.ListGames(); err == nil {
		statsReply.TotalGames = len(games)
	}

	s.reply(user, statsReply)
}
