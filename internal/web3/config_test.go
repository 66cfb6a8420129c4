package web3

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadChainDefinitions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chain.yaml")
	content := `chains:
  mainnet:
    type: evm
    rpc_url: https://rpc.example.org
    description: 以太坊主网
  sepolia:
    rpc_url: https://sepolia.example.org
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write chain config: %v", err)
	}

	defs, err := LoadChainDefinitions(path)
	if err != nil {
		t.Fatalf("load chain definitions: %v", err)
	}
	if len(defs.Chains) != 2 {
		t.Fatalf("expected 2 chains, got %d", len(defs.Chains))
	}
	mainnet := defs.Chains["mainnet"]
	if mainnet.Type != "evm" || mainnet.RPCURL != "https://rpc.example.org" {
		t.Fatalf("unexpected mainnet definition %+v", mainnet)
	}
	if defs.Chains["sepolia"].RPCURL == "" {
		t.Fatal("sepolia definition missing")
	}
}

func TestLoadChainDefinitionsEmptyPath(t *testing.T) {
	defs, err := LoadChainDefinitions("  ")
	if err != nil {
		t.Fatalf("empty path must not be an error: %v", err)
	}
	if defs.Chains == nil || len(defs.Chains) != 0 {
		t.Fatalf("expected empty chain map, got %+v", defs.Chains)
	}
}

func TestLoadChainDefinitionsErrors(t *testing.T) {
	if _, err := LoadChainDefinitions(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file must be an error")
	}

	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("chains: ["), 0o644); err != nil {
		t.Fatalf("write chain config: %v", err)
	}
	if _, err := LoadChainDefinitions(path); err == nil {
		t.Fatal("invalid yaml must be an error")
	}
}
