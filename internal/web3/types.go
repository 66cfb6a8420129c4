package web3

import (
	"context"
)

// ChainSnapshot represents summarized network metadata for reporting.
type ChainSnapshot struct {
	ChainID     string `json:"chain_id"`
	BlockNumber string `json:"block_number"`
	Notes       string `json:"notes,omitempty"`
}

// Client defines the common interface that any chain implementation must
// provide so the action layer can interact with different networks
// uniformly.
type Client interface {
	Snapshot(ctx context.Context) (ChainSnapshot, error)
	BalanceOf(ctx context.Context, address string) (string, error)
	TransactionCount(ctx context.Context, address string) (string, error)
	Close()
}
