package models

// NFTRecord - данные о выигранной партии, сохраняемые в game_data/nft_<gameId>.json.
// Файл создается в момент победы, а после фактического минтинга (readonly-раунд)
// дополняется хешем транзакции и списком токенов.
type NFTRecord struct {
	GameID         string     `json:"game_id"`
	CompletionTime int64      `json:"completion_time"` // Unix-секунды
	WinningAction  string     `json:"winning_action"`
	Status         string     `json:"status"` // "won" -> "minted"
	FinalLocation  string     `json:"final_location"`
	FinalHealth    string     `json:"final_health"`
	FinalScore     string     `json:"final_score"`
	PlayerInventory string    `json:"player_inventory"` // Сырой список, как его вернула модель
	MintTimestamp  *int64     `json:"mint_timestamp,omitempty"`
	MintTxHash     string     `json:"mint_tx_hash,omitempty"`
	NFTTokens      []NFTToken `json:"nft_tokens,omitempty"`
}

const (
	NFTStatusWon    = "won"
	NFTStatusMinted = "minted"
)

// NFTToken - один сминченный URIToken.
type NFTToken struct {
	Item            string `json:"item"`
	NFTTokenID      string `json:"nft_token_id"`
	TransactionHash string `json:"transaction_hash"`
	MetadataURI     string `json:"metadata_uri"`
}

// NFTMintResult - результат минтинга одного предмета, как его вернул signing-сервис.
type NFTMintResult struct {
	Success         bool   `json:"success"`
	ItemName        string `json:"item_name"`
	URITokenID      string `json:"uritoken_id"`
	TransactionHash string `json:"transaction_hash"`
	MetadataURI     string `json:"metadata_uri"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// NFTMintBatch - агрегированный результат пакетного минтинга инвентаря.
type NFTMintBatch struct {
	Success          bool            `json:"success"` // true, если все предметы сминчены
	TotalRequested   int             `json:"total_requested"`
	SuccessfulMints  int             `json:"successful_mints"`
	FailedMints      int             `json:"failed_mints"`
	BatchTimestamp   int64           `json:"batch_timestamp"`
	FirstSuccessHash string          `json:"first_success_hash,omitempty"`
	Results          []NFTMintResult `json:"results"`
}
