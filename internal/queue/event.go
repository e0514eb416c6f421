// Package queue defines message payloads exchanged over the message broker.
package queue

// EntryScanEvent is published after every entry-scan request completes.
// It contains enough information for downstream consumers to log, reconcile
// or trigger analytics without touching the ledger again.
type EntryScanEvent struct {
    Channel          string `json:"channel"`
    Account          string `json:"account"`
    CollectionMint   string `json:"collection_mint,omitempty"`
    HasNFT           bool   `json:"has_nft"`
    TransactionReady bool   `json:"transaction_ready"`
    MarkUsed         bool   `json:"mark_used"`
    ScannedAt        string `json:"scanned_at"`
}
