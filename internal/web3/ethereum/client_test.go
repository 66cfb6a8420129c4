package ethereum

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

type stubBackend struct {
	chainID  *big.Int
	block    uint64
	balances map[common.Address]*big.Int
	nonces   map[common.Address]uint64
	err      error
}

func (s *stubBackend) ChainID(ctx context.Context) (*big.Int, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.chainID, nil
}

func (s *stubBackend) BlockNumber(ctx context.Context) (uint64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.block, nil
}

func (s *stubBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if s.err != nil {
		return nil, s.err
	}
	if balance, ok := s.balances[account]; ok {
		return balance, nil
	}
	return big.NewInt(0), nil
}

func (s *stubBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.nonces[account], nil
}

func TestNewClientRequiresRPCURL(t *testing.T) {
	if _, err := NewClient(context.Background(), Config{Name: "mainnet"}); err == nil {
		t.Fatal("expected error when rpc url is missing")
	}
}

func TestSnapshot(t *testing.T) {
	backend := &stubBackend{chainID: big.NewInt(1), block: 0x10f2c}
	client := NewBackendClient("mainnet", backend)

	snapshot, err := client.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.ChainID != "0x1" {
		t.Fatalf("unexpected chain id %q", snapshot.ChainID)
	}
	if snapshot.BlockNumber != "0x10f2c" {
		t.Fatalf("unexpected block number %q", snapshot.BlockNumber)
	}
}

func TestSnapshotBackendError(t *testing.T) {
	backend := &stubBackend{err: errors.New("rpc unavailable")}
	client := NewBackendClient("mainnet", backend)

	if _, err := client.Snapshot(context.Background()); err == nil {
		t.Fatal("expected backend error to propagate")
	}
}

func TestBalanceOf(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	backend := &stubBackend{
		balances: map[common.Address]*big.Int{addr: big.NewInt(0xde0b6b3a7640000)},
	}
	client := NewBackendClient("mainnet", backend)

	balance, err := client.BalanceOf(context.Background(), addr.Hex())
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	// 1 ETH in wei.
	if balance != "0xde0b6b3a7640000" {
		t.Fatalf("unexpected balance %q", balance)
	}

	if _, err := client.BalanceOf(context.Background(), "  "); err == nil {
		t.Fatal("expected empty address to be rejected")
	}
}

func TestTransactionCount(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	backend := &stubBackend{nonces: map[common.Address]uint64{addr: 42}}
	client := NewBackendClient("mainnet", backend)

	nonce, err := client.TransactionCount(context.Background(), addr.Hex())
	if err != nil {
		t.Fatalf("transaction count: %v", err)
	}
	if nonce != "0x2a" {
		t.Fatalf("unexpected nonce %q", nonce)
	}
}

func TestClientClose(t *testing.T) {
	client := NewBackendClient("mainnet", &stubBackend{chainID: big.NewInt(1)})
	client.Close()

	if _, err := client.Snapshot(context.Background()); err == nil {
		t.Fatal("closed client must reject calls")
	}
}
