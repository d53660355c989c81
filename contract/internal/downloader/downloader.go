package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Пакет downloader докачивает файл модели по чанку за раунд.
// Раунды контракта ограничены по времени, поэтому за одно исполнение
// выполняется ровно один Range-запрос; хост терпит многораундовую подготовку.

// ModelSpec - ожидаемые параметры артефакта модели.
type ModelSpec struct {
	Name      string
	Size      int64
	SHA256    string
	SourceURL string
	ChunkSize int64
}

// StatusKind - результат очередной попытки обеспечить наличие модели.
type StatusKind int

const (
	StatusComplete StatusKind = iota
	StatusPartial
	StatusFailed
)

// Status несет вид результата и прогресс в процентах для stat-ответа.
type Status struct {
	Kind     StatusKind
	Progress float64
	Reason   string
}

// ErrHashMismatch - скачанный файл не совпал с ожидаемым хешем.
// Артефакт испорчен и удален; докачка начнется с нуля.
var ErrHashMismatch = errors.New("model hash mismatch")

const defaultChunkSize = 256 << 20 // 256 MiB

// Downloader обеспечивает наличие проверенной модели на диске.
type Downloader struct {
	spec     ModelSpec
	modelDir string
	client   *http.Client
	logger   *zap.Logger

	fileSize int64
}

func New(spec ModelSpec, modelDir string, logger *zap.Logger) *Downloader {
	if spec.ChunkSize <= 0 {
		spec.ChunkSize = defaultChunkSize
	}
	return &Downloader{
		spec:     spec,
		modelDir: modelDir,
		client: &http.Client{
			Timeout: 90 * time.Second,
		},
		logger: logger.Named("downloader"),
	}
}

// ModelPath - целевой путь файла модели.
func (d *Downloader) ModelPath() string {
	return filepath.Join(d.modelDir, d.spec.Name)
}

// sentinelPath - файл-отметка об успешной проверке хеша, чтобы не
// перечитывать многогигабайтный файл каждый раунд.
func (d *Downloader) sentinelPath() string {
	return d.ModelPath() + ".verified"
}

// Progress возвращает процент скачанного на момент последней проверки.
func (d *Downloader) Progress() float64 {
	if d.spec.Size == 0 {
		return 0
	}
	return float64(d.fileSize) / float64(d.spec.Size) * 100.0
}

// EnsureModel проверяет файл модели и при необходимости докачивает один чанк.
// Сетевые ошибки транзиентны: частичный файл остается на месте, возвращается
// Partial. Несовпадение хеша фатально для артефакта: файл удаляется.
func (d *Downloader) EnsureModel(ctx context.Context) Status {
	if err := os.MkdirAll(d.modelDir, 0o755); err != nil {
		return Status{Kind: StatusFailed, Reason: fmt.Sprintf("create model dir: %v", err)}
	}

	path := d.ModelPath()
	info, err := os.Stat(path)
	switch {
	case err == nil:
		d.fileSize = info.Size()
	case os.IsNotExist(err):
		d.fileSize = 0
	default:
		return Status{Kind: StatusFailed, Progress: d.Progress(), Reason: fmt.Sprintf("stat model: %v", err)}
	}

	if d.fileSize == d.spec.Size {
		if d.verified() {
			return Status{Kind: StatusComplete, Progress: 100}
		}
		if err := d.verifyHash(path); err != nil {
			d.logger.Error("Проверка хеша модели не прошла, файл удален", zap.Error(err))
			_ = os.Remove(path)
			_ = os.Remove(d.sentinelPath())
			d.fileSize = 0
			return Status{Kind: StatusFailed, Reason: err.Error()}
		}
		d.markVerified()
		d.logger.Info("Модель скачана и проверена", zap.String("path", path))
		return Status{Kind: StatusComplete, Progress: 100}
	}

	if d.fileSize > d.spec.Size {
		// Файл длиннее ожидаемого - остаток от другой версии модели.
		d.logger.Warn("Файл модели больше ожидаемого, начинаем заново",
			zap.Int64("size", d.fileSize), zap.Int64("expected", d.spec.Size))
		_ = os.Remove(path)
		_ = os.Remove(d.sentinelPath())
		d.fileSize = 0
	}

	if err := d.downloadChunk(ctx, path); err != nil {
		d.logger.Warn("Чанк не скачан, повтор в следующем раунде", zap.Error(err))
		return Status{Kind: StatusPartial, Progress: d.Progress(), Reason: err.Error()}
	}

	if info, err := os.Stat(path); err == nil {
		d.fileSize = info.Size()
	}
	d.logger.Info("Чанк модели скачан",
		zap.Int64("size", d.fileSize),
		zap.Int64("expected", d.spec.Size),
		zap.Float64("progress", d.Progress()))

	if d.fileSize >= d.spec.Size {
		if err := d.verifyHash(path); err != nil {
			d.logger.Error("Проверка хеша модели не прошла, файл удален", zap.Error(err))
			_ = os.Remove(path)
			d.fileSize = 0
			return Status{Kind: StatusFailed, Reason: err.Error()}
		}
		d.markVerified()
		return Status{Kind: StatusComplete, Progress: 100}
	}
	return Status{Kind: StatusPartial, Progress: d.Progress()}
}

// downloadChunk выполняет один Range-запрос и дописывает тело в конец файла.
func (d *Downloader) downloadChunk(ctx context.Context, path string) error {
	start := d.fileSize
	end := start + d.spec.ChunkSize - 1
	if end >= d.spec.Size {
		end = d.spec.Size - 1
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.spec.SourceURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	req.Header.Set("User-Agent", "game-contract/1.0")

	d.logger.Info("Скачиваем байты модели", zap.Int64("from", start), zap.Int64("to", end))

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected http status %d", resp.StatusCode)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open model file: %w", err)
	}
	defer file.Close()

	// Ограничиваем чтение размером чанка: сервер мог проигнорировать Range.
	n, err := io.Copy(file, io.LimitReader(resp.Body, end-start+1))
	if err != nil {
		// Частично записанные байты валидны, докачаем с нового смещения.
		d.fileSize += n
		return fmt.Errorf("copy chunk body: %w", err)
	}
	d.fileSize += n
	return nil
}

func (d *Downloader) verifyHash(path string) error {
	if d.spec.SHA256 == "" {
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open for hashing: %w", err)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return fmt.Errorf("hash model: %w", err)
	}
	got := hex.EncodeToString(h.Sum(nil))
	if got != d.spec.SHA256 {
		return fmt.Errorf("%w: expected %s, got %s", ErrHashMismatch, d.spec.SHA256, got)
	}
	return nil
}

func (d *Downloader) verified() bool {
	_, err := os.Stat(d.sentinelPath())
	return err == nil
}

func (d *Downloader) markVerified() {
	if err := os.WriteFile(d.sentinelPath(), []byte(d.spec.SHA256+"\n"), 0o644); err != nil {
		d.logger.Warn("Не удалось записать sentinel проверки", zap.Error(err))
	}
}
