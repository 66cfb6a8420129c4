package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"OpenAgent-Chain/internal/config"
	"OpenAgent-Chain/internal/web3"
	"OpenAgent-Chain/internal/web3/ethereum"
)

// Registry manages a set of chain clients keyed by human readable names.
type Registry struct {
	defaultChain string
	clients      map[string]web3.Client
}

// NewRegistry loads chain definitions and instantiates concrete clients.
// 没有链配置文件时退化为 cfg.RPCURL 指向的单链注册表。
func NewRegistry(ctx context.Context, cfg config.Web3Config) (*Registry, error) {
	defs, err := web3.LoadChainDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, err
	}

	clients := make(map[string]web3.Client, len(defs.Chains))
	cleanup := func() {
		for _, client := range clients {
			client.Close()
		}
	}
	for _, name := range defs.Names() {
		client, err := buildClient(ctx, name, defs.Chains[name])
		if err != nil {
			cleanup()
			return nil, err
		}
		clients[name] = client
	}

	defaultChain := cfg.DefaultChain
	if len(clients) == 0 {
		if strings.TrimSpace(cfg.RPCURL) == "" {
			return nil, errors.New("未配置任何链的 RPC 端点")
		}
		client, err := ethereum.NewClient(ctx, ethereum.Config{RPCURL: cfg.RPCURL})
		if err != nil {
			return nil, err
		}
		clients["default"] = client
		if defaultChain == "" {
			defaultChain = "default"
		}
	}

	if defaultChain == "" {
		defaultChain = sortedNames(clients)[0]
	}
	if _, ok := clients[defaultChain]; !ok {
		cleanup()
		return nil, fmt.Errorf("默认链 %s 未在配置中找到", defaultChain)
	}
	return &Registry{defaultChain: defaultChain, clients: clients}, nil
}

func buildClient(ctx context.Context, name string, def web3.ChainDefinition) (web3.Client, error) {
	chainType := strings.ToLower(strings.TrimSpace(def.Type))
	if chainType == "" {
		chainType = "evm"
	}
	if chainType != "evm" {
		return nil, fmt.Errorf("链 %s 使用了不支持的类型 %s", name, def.Type)
	}
	client, err := ethereum.NewClient(ctx, ethereum.Config{
		Name:   name,
		RPCURL: def.RPCURL,
		Notes:  def.Description,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
	}
	return client, nil
}

func sortedNames(clients map[string]web3.Client) []string {
	names := make([]string, 0, len(clients))
	for name := range clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewStaticRegistry builds a registry from pre-constructed clients, mainly
// used by tests.
func NewStaticRegistry(defaultChain string, clients map[string]web3.Client) (*Registry, error) {
	if len(clients) == 0 {
		return nil, errors.New("没有可注册的链客户端")
	}
	if _, ok := clients[defaultChain]; !ok {
		return nil, fmt.Errorf("默认链 %s 未在注册表中", defaultChain)
	}
	copied := make(map[string]web3.Client, len(clients))
	for name, client := range clients {
		copied[name] = client
	}
	return &Registry{defaultChain: defaultChain, clients: copied}, nil
}

// DefaultClient returns the client configured as default chain.
func (r *Registry) DefaultClient() (web3.Client, error) {
	if r == nil {
		return nil, errors.New("未初始化的链客户端注册表")
	}
	client, ok := r.clients[r.defaultChain]
	if !ok {
		return nil, fmt.Errorf("默认链 %s 未在注册表中", r.defaultChain)
	}
	return client, nil
}

// Client returns the chain client identified by name.
func (r *Registry) Client(name string) (web3.Client, bool) {
	if r == nil {
		return nil, false
	}
	client, ok := r.clients[name]
	return client, ok
}

// Resolve returns the named client, falling back to the default chain when
// name is empty.
func (r *Registry) Resolve(name string) (web3.Client, error) {
	if strings.TrimSpace(name) == "" {
		return r.DefaultClient()
	}
	client, ok := r.Client(name)
	if !ok {
		return nil, fmt.Errorf("链 %s 未在注册表中", name)
	}
	return client, nil
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, client := range r.clients {
		if client != nil {
			client.Close()
		}
		delete(r.clients, name)
	}
}

// Chains returns the list of registered chain names.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	return sortedNames(r.clients)
}
