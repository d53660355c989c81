package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"game-contract/contract/internal/host"
	"game-contract/shared/models"

	"go.uber.org/zap"
)

// NFT-триггер: при победной транзиции инвентарь игрока выгружается в
// game_data/nft_<gameId>.json. Сам минтинг (HTTP к внешнему signing-сервису)
// выполняется только в readonly-раундах: в консенсусном раунде попытки
// минтинга разных узлов разошлись бы и сожгли внешние nonce дважды.
// Слот под детерминированный выбор минтера (lex-min публичный ключ UNL)
// зарезервирован дизайном, но сейчас выключен.

func (s *ContractService) nftPath(gameID string) string {
	return filepath.Join(s.dataDir, "nft_"+gameID+".json")
}

// extractWinningInventory пишет NFT-запись выигранной партии.
// Вызывается из консенсусного callback при Game_Status: won.
func (s *ContractService) extractWinningInventory(gameID, finalState, winningAction string) error {
	record := models.NFTRecord{
		GameID:          gameID,
		CompletionTime:  s.now(),
		WinningAction:   winningAction,
		Status:          models.NFTStatusWon,
		FinalLocation:   models.ExtractStateField(finalState, models.FieldLocation),
		FinalHealth:     models.ExtractStateField(finalState, models.FieldHealth),
		FinalScore:      models.ExtractStateField(finalState, models.FieldScore),
		PlayerInventory: models.ExtractStateField(finalState, models.FieldInventory),
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal nft record: %w", err)
	}
	if err := os.WriteFile(s.nftPath(gameID), data, 0o644); err != nil {
		return fmt.Errorf("save nft record: %w", err)
	}
	s.logger.Info("NFT-данные сохранены",
		zap.String("game_id", gameID),
		zap.String("inventory", record.PlayerInventory))
	return nil
}

// parseInventoryItems разбирает сырой список инвентаря модели:
// "[sword, old map, torch]" -> ["sword", "old map", "torch"].
func parseInventoryItems(inventory string) []string {
	trimmed := strings.TrimSpace(inventory)
	trimmed = strings.TrimPrefix(trimmed, "[")
	trimmed = strings.TrimSuffix(trimmed, "]")
	if trimmed == "" {
		return nil
	}
	var items []string
	for _, part := range strings.Split(trimmed, ",") {
		item := strings.Trim(strings.TrimSpace(part), `"'`)
		if item != "" && !strings.EqualFold(item, "none") && !strings.EqualFold(item, "empty") {
			items = append(items, item)
		}
	}
	return items
}

// handleMintNFT минтит NFT выигранной партии. Только readonly-раунды.
func (s *ContractService) handleMintNFT(ctx context.Context, user host.User, gameID string) {
	if !s.hostCtx.Readonly() {
		s.replyError(user, "NFT minting is temporarily disabled - only read-only mode supported")
		return
	}
	if s.signing == nil {
		s.replyError(user, "NFT minting client not initialized")
		return
	}
	if !s.signing.Healthy(ctx) {
		s.replyError(user, "Signing service is not available")
		return
	}

	data, err := os.ReadFile(s.nftPath(gameID))
	if err != nil {
		s.replyError(user, "NFT data file not found for game: "+gameID)
		return
	}

	var record models.NFTRecord
	if err := json.Unmarshal(data, &record); err != nil {
		s.reply(user, models.NFTMintReply{
			Type:         "nft_mint_result",
			GameID:       gameID,
			Success:      false,
			ReadonlyMode: true,
			Error:        "Failed to parse NFT data: " + err.Error(),
		})
		return
	}

	if record.Status == models.NFTStatusMinted {
		s.reply(user, models.NFTMintReply{
			Type:          "nft_mint_result",
			GameID:        gameID,
			Success:       true,
			ReadonlyMode:  true,
			AlreadyMinted: true,
			Message:       "NFTs already minted for this game",
		})
		return
	}

	items := parseInventoryItems(record.PlayerInventory)
	s.logger.Info("Минтим NFT в readonly-режиме",
		zap.String("game_id", gameID), zap.Int("items", len(items)))

	batch, err := s.signing.MintInventory(ctx, gameID, items, s.now())
	if err != nil {
		s.reply(user, models.NFTMintReply{
			Type:         "nft_mint_result",
			GameID:       gameID,
			Success:      false,
			ReadonlyMode: true,
			Error:        err.Error(),
		})
		return
	}

	mintReply := models.NFTMintReply{
		Type:            "nft_mint_result",
		GameID:          gameID,
		Success:         batch.Success,
		ReadonlyMode:    true,
		MintTimestamp:   batch.BatchTimestamp,
		TotalRequested:  batch.TotalRequested,
		SuccessfulMints: batch.SuccessfulMints,
		FailedMints:     batch.FailedMints,
	}

	if batch.Success {
		mintReply.BatchTxHash = batch.FirstSuccessHash
		for _, r := range batch.Results {
			mintReply.MintedItems = append(mintReply.MintedItems, models.NFTToken{
				Item:            r.ItemName,
				NFTTokenID:      r.URITokenID,
				TransactionHash: r.TransactionHash,
				MetadataURI:     r.MetadataURI,
			})
		}
		if err := s.updateNFTFileWithMintResults(gameID, record, batch); err != nil {
			s.logger.Warn("NFT-файл не обновлен после минтинга", zap.Error(err))
		}
	} else {
		mintReply.Error = "Some NFTs failed to mint"
		for _, r := range batch.Results {
			if !r.Success {
				mintReply.FailedItems = append(mintReply.FailedItems, models.NFTFailedItem{
					Name:  r.ItemName,
					Error: r.ErrorMessage,
				})
			}
		}
	}

	s.reply(user, mintReply)
}

// updateNFTFileWithMintResults переводит NFT-запись в status=minted
// и дописывает хеш транзакции со списком токенов.
func (s *ContractService) updateNFTFileWithMintResults(gameID string, record models.NFTRecord, batch models.NFTMintBatch) error {
	record.Status = models.NFTStatusMinted
	ts := batch.BatchTimestamp
	record.MintTimestamp = &ts
	record.MintTxHash = batch.FirstSuccessHash
	record.NFTTokens = record.NFTTokens[:0]
	for _, r := range batch.Results {
		if r.Success {
			record.NFTTokens = append(record.NFTTokens, models.NFTToken{
				Item:            r.ItemName,
				NFTTokenID:      r.URITokenID,
				TransactionHash: r.TransactionHash,
				MetadataURI:     r.MetadataURI,
			})
		}
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal updated nft record: %w", err)
	}
	if err := os.WriteFile(s.nftPath(gameID), data, 0o644); err != nil {
		return fmt.Errorf("save updated nft record: %w", err)
	}
	return nil
}
