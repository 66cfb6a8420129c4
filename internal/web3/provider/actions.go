package provider

import (
	"context"

	"OpenAgent-Chain/internal/action"
)

// RegisterActions 将链查询能力注册为可供推理引擎选择的动作。
func RegisterActions(reg *action.Registry, chains *Registry) error {
	chainField := action.Field{
		Type:        action.TypeString,
		Description: "目标链名称，留空使用默认链",
	}
	addressField := action.Field{
		Type:        action.TypeString,
		Required:    true,
		Description: "十六进制账户地址",
	}

	definitions := []action.Definition{
		{
			Type: "chain.snapshot",
			Metadata: action.Metadata{
				Description: "获取链 ID 与最新区块高度",
				Example:     map[string]any{"chain": "sepolia"},
			},
			Schema: action.Schema{
				Fields: map[string]action.Field{
					"chain": chainField,
				},
			},
			Handler: func(ctx context.Context, _ action.Invocation, payload map[string]any) (any, error) {
				client, err := chains.Resolve(stringField(payload, "chain"))
				if err != nil {
					return nil, err
				}
				return client.Snapshot(ctx)
			},
		},
		{
			Type: "chain.balance",
			Metadata: action.Metadata{
				Description: "查询账户余额（十六进制 wei）",
				Example:     map[string]any{"address": "0x0000000000000000000000000000000000000000"},
			},
			Schema: action.Schema{
				Fields: map[string]action.Field{
					"chain":   chainField,
					"address": addressField,
				},
			},
			Handler: func(ctx context.Context, _ action.Invocation, payload map[string]any) (any, error) {
				client, err := chains.Resolve(stringField(payload, "chain"))
				if err != nil {
					return nil, err
				}
				return client.BalanceOf(ctx, stringField(payload, "address"))
			},
		},
		{
			Type: "chain.nonce",
			Metadata: action.Metadata{
				Description: "查询账户的待处理交易计数",
				Example:     map[string]any{"address": "0x0000000000000000000000000000000000000000"},
			},
			Schema: action.Schema{
				Fields: map[string]action.Field{
					"chain":   chainField,
					"address": addressField,
				},
			},
			Handler: func(ctx context.Context, _ action.Invocation, payload map[string]any) (any, error) {
				client, err := chains.Resolve(stringField(payload, "chain"))
				if err != nil {
					return nil, err
				}
				return client.TransactionCount(ctx, stringField(payload, "address"))
			},
		},
	}

	for _, def := range definitions {
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func stringField(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	value, _ := payload[key].(string)
	return value
}
