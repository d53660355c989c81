package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"game-contract/shared/models"

	"go.uber.org/zap"
)

// SigningClient - HTTP-клиент внешнего signing-сервиса (Node.js),
// который строит, подписывает и сабмитит URIToken-транзакции.
// Вызывается только из readonly-раундов: минтинг в консенсусном раунде
// разошелся бы по узлам и сжег бы внешние nonce дважды.
type SigningClient struct {
	baseURL    string
	walletSeed string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewSigningClient(baseURL, walletSeed string, logger *zap.Logger) *SigningClient {
	baseURL = strings.TrimSuffix(baseURL, "/")
	return &SigningClient{
		baseURL:    baseURL,
		walletSeed: walletSeed,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.Named("signing_client"),
	}
}

func (c *SigningClient) post(ctx context.Context, endpoint string, body any, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal signing request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("create signing request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("signing service call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("signing service %s returned status %d", endpoint, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode signing response: %w", err)
		}
	}
	return nil
}

// Healthy проверяет доступность signing-сервиса.
func (c *SigningClient) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// batchMintResponse - формат ответа /mint_batch signing-сервиса.
type batchMintResponse struct {
	Success bool `json:"success"`
	Results []struct {
		Success         bool   `json:"success"`
		ItemName        string `json:"item_name"`
		URITokenID      string `json:"uritoken_id"`
		TransactionHash string `json:"transaction_hash"`
		MetadataURI     string `json:"metadata_uri"`
		Error           string `json:"error,omitempty"`
	} `json:"results"`
}

// MintInventory минтит все предметы инвентаря одной batch-операцией.
// unixNow передается вызывающим: контракт подставляет свои часы (ContractService.now).
func (c *SigningClient) MintInventory(ctx context.Context, gameID string, items []string, unixNow int64) (models.NFTMintBatch, error) {
	batch := models.NFTMintBatch{
		TotalRequested: len(items),
		BatchTimestamp: unixNow,
	}
	if len(items) == 0 {
		batch.Success = true
		return batch, nil
	}

	type batchItem struct {
		ItemName string `json:"item_name"`
		Flags    int    `json:"flags"`
	}
	batchItems := make([]batchItem, 0, len(items))
	for _, item := range items {
		batchItems = append(batchItems, batchItem{ItemName: item, Flags: 1}) // Burnable
	}

	request := struct {
		AccountSeed string      `json:"account_seed"`
		GameID      string      `json:"game_id"`
		Items       []batchItem `json:"items"`
	}{
		AccountSeed: c.walletSeed,
		GameID:      gameID,
		Items:       batchItems,
	}

	c.logger.Info("Отправляем batch-минт в signing-сервис",
		zap.String("game_id", gameID), zap.Int("items", len(items)))

	var resp batchMintResponse
	if err := c.post(ctx, "/mint_batch", request, &resp); err != nil {
		return batch, err
	}

	batch.Success = true
	for _, r := range resp.Results {
		result := models.NFTMintResult{
			Success:         r.Success,
			ItemName:        r.ItemName,
			URITokenID:      r.URITokenID,
			TransactionHash: r.TransactionHash,
			MetadataURI:     r.MetadataURI,
			ErrorMessage:    r.Error,
		}
		batch.Results = append(batch.Results, result)
		if r.Success {
			batch.SuccessfulMints++
			if batch.FirstSuccessHash == "" {
				batch.FirstSuccessHash = r.TransactionHash
			}
		} else {
			batch.FailedMints++
			batch.Success = false
		}
	}
	return batch, nil
}
