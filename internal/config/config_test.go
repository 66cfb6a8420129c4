package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "agentd.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `{}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected server address %q", cfg.Server.Address)
	}
	if cfg.Storage.RunStore.Driver != "memory" || cfg.Storage.RunStore.Retries != 3 {
		t.Fatalf("unexpected run store defaults %+v", cfg.Storage.RunStore)
	}
	if cfg.RunQueue.Driver != "memory" || cfg.RunQueue.Worker != 1 {
		t.Fatalf("unexpected queue defaults %+v", cfg.RunQueue)
	}
	if cfg.LLM.Provider != "openai" {
		t.Fatalf("unexpected llm provider %q", cfg.LLM.Provider)
	}
	if cfg.Memory.Driver != "inprocess" || cfg.Memory.MaxResults != 3 {
		t.Fatalf("unexpected memory defaults %+v", cfg.Memory)
	}
	if cfg.Agent.MemoryDepth != 5 || cfg.Agent.FailurePolicy != "continue" || cfg.Agent.EventBuffer != 128 {
		t.Fatalf("unexpected agent defaults %+v", cfg.Agent)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging defaults %+v", cfg.Logging)
	}
	if !filepath.IsAbs(cfg.Runtime.DataDir) {
		t.Fatalf("data dir must resolve to an absolute path, got %q", cfg.Runtime.DataDir)
	}
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{
		"memory": {"documents": "knowledge.json"},
		"web3": {"chain_config": "chain.yaml"},
		"runtime": {"data_dir": "state"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Memory.Documents != filepath.Join(dir, "knowledge.json") {
		t.Fatalf("documents path not resolved: %q", cfg.Memory.Documents)
	}
	if cfg.Web3.ChainConfig != filepath.Join(dir, "chain.yaml") {
		t.Fatalf("chain config path not resolved: %q", cfg.Web3.ChainConfig)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "state") {
		t.Fatalf("data dir not resolved: %q", cfg.Runtime.DataDir)
	}
}

func TestLoadTimeoutHelpers(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `{
		"llm": {"openai": {"timeout_seconds": 30}},
		"agent": {
			"think_timeout_seconds": 10,
			"decompose_timeout_seconds": 20,
			"action_timeout_seconds": 5
		}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.OpenAI.Timeout() != 30*time.Second {
		t.Fatalf("unexpected llm timeout %v", cfg.LLM.OpenAI.Timeout())
	}
	if cfg.Agent.ThinkTimeout() != 10*time.Second {
		t.Fatalf("unexpected think timeout %v", cfg.Agent.ThinkTimeout())
	}
	if cfg.Agent.DecomposeTimeout() != 20*time.Second {
		t.Fatalf("unexpected decompose timeout %v", cfg.Agent.DecomposeTimeout())
	}
	if cfg.Agent.ActionTimeout() != 5*time.Second {
		t.Fatalf("unexpected action timeout %v", cfg.Agent.ActionTimeout())
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("empty path must be rejected")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("missing file must be an error")
	}
	path := writeConfig(t, t.TempDir(), `{not json`)
	if _, err := Load(path); err == nil {
		t.Fatal("invalid json must be an error")
	}
}
