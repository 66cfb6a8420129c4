package provider

import (
	"context"
	"errors"
	"testing"

	"OpenAgent-Chain/internal/action"
	"OpenAgent-Chain/internal/web3"
)

// fakeClient 以固定数据实现 web3.Client。
type fakeClient struct {
	name     string
	balance  string
	nonce    string
	closed   bool
	snapErr  error
	snapshot web3.ChainSnapshot
}

func (f *fakeClient) Snapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	if f.snapErr != nil {
		return web3.ChainSnapshot{}, f.snapErr
	}
	return f.snapshot, nil
}

func (f *fakeClient) BalanceOf(ctx context.Context, address string) (string, error) {
	if address == "" {
		return "", errors.New("missing address")
	}
	return f.balance, nil
}

func (f *fakeClient) TransactionCount(ctx context.Context, address string) (string, error) {
	return f.nonce, nil
}

func (f *fakeClient) Close() {
	f.closed = true
}

func newFakeRegistry(t *testing.T) (*Registry, *fakeClient, *fakeClient) {
	t.Helper()
	mainnet := &fakeClient{
		name:     "mainnet",
		balance:  "0xde0b6b3a7640000",
		nonce:    "0x2a",
		snapshot: web3.ChainSnapshot{ChainID: "0x1", BlockNumber: "0x10f2c"},
	}
	sepolia := &fakeClient{
		name:     "sepolia",
		balance:  "0x0",
		nonce:    "0x1",
		snapshot: web3.ChainSnapshot{ChainID: "0xaa36a7", BlockNumber: "0x5"},
	}
	registry, err := NewStaticRegistry("mainnet", map[string]web3.Client{
		"mainnet": mainnet,
		"sepolia": sepolia,
	})
	if err != nil {
		t.Fatalf("new static registry: %v", err)
	}
	return registry, mainnet, sepolia
}

func TestStaticRegistryValidation(t *testing.T) {
	if _, err := NewStaticRegistry("any", nil); err == nil {
		t.Fatal("expected empty client set to be rejected")
	}
	if _, err := NewStaticRegistry("missing", map[string]web3.Client{"mainnet": &fakeClient{}}); err == nil {
		t.Fatal("expected unknown default chain to be rejected")
	}
}

func TestRegistryResolve(t *testing.T) {
	registry, mainnet, sepolia := newFakeRegistry(t)

	// 留空回退到默认链。
	client, err := registry.Resolve("")
	if err != nil {
		t.Fatalf("resolve default: %v", err)
	}
	if client != web3.Client(mainnet) {
		t.Fatal("empty name must resolve to the default chain")
	}

	client, err = registry.Resolve("sepolia")
	if err != nil {
		t.Fatalf("resolve sepolia: %v", err)
	}
	if client != web3.Client(sepolia) {
		t.Fatal("named chain must resolve to its client")
	}

	if _, err := registry.Resolve("unknown"); err == nil {
		t.Fatal("expected unknown chain to be rejected")
	}
}

func TestRegistryChainsAndClose(t *testing.T) {
	registry, mainnet, sepolia := newFakeRegistry(t)

	chains := registry.Chains()
	if len(chains) != 2 || chains[0] != "mainnet" || chains[1] != "sepolia" {
		t.Fatalf("unexpected chain names %v", chains)
	}

	registry.Close()
	if !mainnet.closed || !sepolia.closed {
		t.Fatal("close must release every client")
	}
	if len(registry.Chains()) != 0 {
		t.Fatal("closed registry must not keep clients")
	}
}

func TestRegisterActions(t *testing.T) {
	registry, _, _ := newFakeRegistry(t)
	reg := action.NewRegistry()
	if err := RegisterActions(reg, registry); err != nil {
		t.Fatalf("register actions: %v", err)
	}

	types := reg.Types()
	want := map[string]bool{"chain.snapshot": true, "chain.balance": true, "chain.nonce": true}
	for _, name := range types {
		delete(want, name)
	}
	if len(want) != 0 {
		t.Fatalf("missing actions %v, registered %v", want, types)
	}

	ctx := context.Background()

	result, err := reg.Invoke(ctx, action.Invocation{}, "chain.snapshot", nil)
	if err != nil {
		t.Fatalf("invoke snapshot: %v", err)
	}
	snapshot, ok := result.(web3.ChainSnapshot)
	if !ok || snapshot.ChainID != "0x1" {
		t.Fatalf("unexpected snapshot result %+v", result)
	}

	result, err = reg.Invoke(ctx, action.Invocation{}, "chain.balance", map[string]any{
		"address": "0x00000000000000000000000000000000000000aa",
	})
	if err != nil {
		t.Fatalf("invoke balance: %v", err)
	}
	if result != "0xde0b6b3a7640000" {
		t.Fatalf("unexpected balance %v", result)
	}

	// 指定链名走对应客户端。
	result, err = reg.Invoke(ctx, action.Invocation{}, "chain.nonce", map[string]any{
		"chain":   "sepolia",
		"address": "0x00000000000000000000000000000000000000bb",
	})
	if err != nil {
		t.Fatalf("invoke nonce: %v", err)
	}
	if result != "0x1" {
		t.Fatalf("unexpected nonce %v", result)
	}

	// 缺少必填地址时处理器不会被调用。
	if _, err := reg.Invoke(ctx, action.Invocation{}, "chain.balance", nil); err == nil {
		t.Fatal("expected schema validation failure")
	}

	// 未注册的链名由处理器返回错误。
	if _, err := reg.Invoke(ctx, action.Invocation{}, "chain.snapshot", map[string]any{"chain": "unknown"}); err == nil {
		t.Fatal("expected unknown chain error")
	}
}
