package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"OpenAgent-Chain/internal/web3"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name   string
	RPCURL string
	Notes  string
}

// chainBackend mirrors the subset of ethclient methods the agent's chain
// actions rely on. Tests provide their own implementation.
type chainBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// Client implements the web3.Client interface for EVM compatible chains.
type Client struct {
	name      string
	notes     string
	rpcClient *gethrpc.Client
	backend   chainBackend
	mu        sync.Mutex
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}

	return &Client{
		name:      cfg.Name,
		notes:     cfg.Notes,
		rpcClient: rpcClient,
		backend:   ethclient.NewClient(rpcClient),
	}, nil
}

// NewBackendClient wraps an existing backend, mainly used by tests.
func NewBackendClient(name string, backend chainBackend) *Client {
	return &Client{name: name, backend: backend, notes: "injected backend"}
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
	c.backend = nil
}

// Snapshot gathers lightweight metadata from the chain.
func (c *Client) Snapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	if c == nil || c.backend == nil {
		return web3.ChainSnapshot{}, errors.New("未初始化的以太坊客户端")
	}

	chainID, err := c.backend.ChainID(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	blockNumber, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	return web3.ChainSnapshot{
		ChainID:     toHexBig(chainID),
		BlockNumber: fmt.Sprintf("0x%x", blockNumber),
		Notes:       c.notes,
	}, nil
}

// BalanceOf returns the balance of the given address in hex wei.
func (c *Client) BalanceOf(ctx context.Context, address string) (string, error) {
	if c == nil || c.backend == nil {
		return "", errors.New("未初始化的以太坊客户端")
	}
	addr := strings.TrimSpace(address)
	if addr == "" {
		return "", errors.New("余额查询需要提供地址")
	}
	balance, err := c.backend.BalanceAt(ctx, common.HexToAddress(addr), nil)
	if err != nil {
		return "", fmt.Errorf("查询余额失败: %w", err)
	}
	return toHexBig(balance), nil
}

// TransactionCount returns the pending nonce of the given address.
func (c *Client) TransactionCount(ctx context.Context, address string) (string, error) {
	if c == nil || c.backend == nil {
		return "", errors.New("未初始化的以太坊客户端")
	}
	addr := strings.TrimSpace(address)
	if addr == "" {
		return "", errors.New("交易计数查询需要提供地址")
	}
	nonce, err := c.backend.PendingNonceAt(ctx, common.HexToAddress(addr))
	if err != nil {
		return "", fmt.Errorf("查询交易计数失败: %w", err)
	}
	return fmt.Sprintf("0x%x", nonce), nil
}

func toHexBig(n *big.Int) string {
	if n == nil {
		return "0x0"
	}
	return "0x" + n.Text(16)
}

var _ web3.Client = (*Client)(nil)
