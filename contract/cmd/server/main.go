package main

import (
	"context"
	"log"
	"net"
	"os"

	"game-contract/contract/internal/clients"
	"game-contract/contract/internal/config"
	"game-contract/contract/internal/downloader"
	"game-contract/contract/internal/host"
	"game-contract/contract/internal/jury"
	"game-contract/contract/internal/repository"
	"game-contract/contract/internal/service"
	"game-contract/contract/internal/supervisor"
	sharedLogger "game-contract/shared/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Контрактный бинарь исполняется платформой один раз на раунд: раундовый
// документ приходит на stdin, ответы пользователям уходят в stdout,
// голоса жюри ходят через датаграммный сокет NPL-агента.
func main() {
	_ = godotenv.Load()
	log.Println("Запуск Game Contract...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger, err := sharedLogger.New(sharedLogger.Config{Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer logger.Sync()
	logger.Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))

	// NPL-сокет опционален: без него раунд работает, но голосование деградирует.
	var nplConn net.Conn
	if cfg.NPLSocket != "" {
		nplConn, err = net.Dial("unixgram", cfg.NPLSocket)
		if err != nil {
			logger.Warn("NPL-сокет недоступен", zap.String("socket", cfg.NPLSocket), zap.Error(err))
			nplConn = nil
		} else {
			defer nplConn.Close()
		}
	}

	hostCtx, err := host.NewStdioContext(os.Stdin, os.Stdout, nplConn)
	if err != nil {
		logger.Fatal("Раундовый документ не разобран", zap.Error(err))
	}

	repo, err := repository.NewFileGameStateRepository(cfg.GameDataDir, logger)
	if err != nil {
		logger.Fatal("Хранилище партий не инициализировано", zap.Error(err))
	}

	dl := downloader.New(downloader.ModelSpec{
		Name:      cfg.ModelName,
		Size:      cfg.ModelSizeBytes,
		SHA256:    cfg.ModelSHA256,
		SourceURL: cfg.ModelSourceURL,
		ChunkSize: cfg.ModelChunkSize,
	}, cfg.ModelDir, logger)

	modelPath := dl.ModelPath()
	gameSup := supervisor.New(supervisor.RoleGame, cfg.DaemonBinary,
		[]string{"--role=game", "--model=" + modelPath}, cfg.GameDaemonPIDFile, logger)
	jurySup := supervisor.New(supervisor.RoleJury, cfg.DaemonBinary,
		[]string{"--role=jury", "--model=" + modelPath}, cfg.JuryDaemonPIDFile, logger)

	gameClient := clients.NewDaemonClient(cfg.GameDaemonAddr, cfg.GameDaemonPIDFile, logger)
	gameClient.SetGenerationTimeout(cfg.GenerationTimeout)
	juryClient := clients.NewDaemonClient(cfg.JuryDaemonAddr, cfg.JuryDaemonPIDFile, logger)
	juryClient.SetGenerationTimeout(cfg.GenerationTimeout)

	var signing service.SigningService
	if cfg.NFTEnabled {
		signing = clients.NewSigningClient(cfg.SigningServiceURL, cfg.MinterWalletSeed, logger)
	}

	svc := service.NewContractService(repo, gameClient, dl, signing,
		[]*supervisor.Supervisor{gameSup, jurySup}, logger)
	svc.SetDataDir(cfg.GameDataDir)
	svc.SetSignerSentinel(cfg.SignerSentinel)

	engine := jury.NewAIDecisionEngine(juryClient, cfg.JuryFallbackValid, logger)
	juryModule := jury.NewModule(engine, hostCtx.BroadcastNPL, svc.RespondConsensus, logger)
	svc.SetJury(juryModule)
	logger.Info("AI Jury готово", zap.String("jury_id", juryModule.JuryID()))

	svc.RunRound(context.Background(), hostCtx)

	logger.Info("Раунд завершен; демоны остаются жить до следующего раунда")
}
