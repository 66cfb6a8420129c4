package action

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	xerrors "OpenAgent-Chain/internal/errors"
)

// Registry 持有动作类型到处理器、输入模式与描述信息的映射。
// 注册是原子的：读到的定义要么完整存在，要么不存在。
// Registry 自身不做任何 I/O，副作用全部由被调用的处理器产生。
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]Definition
	order       []string
}

// NewRegistry 创建空的动作注册表。
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[string]Definition)}
}

// Register 注册一个动作定义。类型名大小写敏感且必须唯一，
// 重复注册返回 ACTION_DUPLICATE，原定义保持不变。
func (r *Registry) Register(def Definition) error {
	if strings.TrimSpace(def.Type) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "动作类型不能为空")
	}
	if def.Handler == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("动作 %s 未提供处理器", def.Type))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.definitions[def.Type]; ok {
		return xerrors.Wrap(CodeDuplicateAction, ErrDuplicateAction,
			fmt.Sprintf("动作类型 %s 已注册", def.Type),
			xerrors.WithMetadata("action", def.Type))
	}
	r.definitions[def.Type] = def
	r.order = append(r.order, def.Type)
	return nil
}

// Lookup 返回动作定义。
func (r *Registry) Lookup(actionType string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[actionType]
	if !ok {
		return Definition{}, xerrors.Wrap(CodeUnknownAction, ErrUnknownAction,
			fmt.Sprintf("动作类型 %s 未注册", actionType),
			xerrors.WithMetadata("action", actionType))
	}
	return def, nil
}

// Validate 校验载荷并返回归一化结果。未注册类型返回 ACTION_UNKNOWN，
// 违反模式约束返回携带字段级细节的 ACTION_SCHEMA_VALIDATION。
func (r *Registry) Validate(actionType string, payload map[string]any) (map[string]any, error) {
	def, err := r.Lookup(actionType)
	if err != nil {
		return nil, err
	}
	normalized, err := def.Schema.Validate(payload)
	if err != nil {
		return nil, xerrors.Wrap(CodeSchemaValidation, err,
			fmt.Sprintf("动作 %s 载荷校验失败", actionType),
			xerrors.WithMetadata("action", actionType))
	}
	return normalized, nil
}

// Invoke 先校验后执行。处理器失败被包裹为 ACTION_EXECUTION_FAILED，
// 原始错误保留在错误链上。校验失败时处理器绝不会被调用。
func (r *Registry) Invoke(ctx context.Context, inv Invocation, actionType string, payload map[string]any) (any, error) {
	normalized, err := r.Validate(actionType, payload)
	if err != nil {
		return nil, err
	}
	def, err := r.Lookup(actionType)
	if err != nil {
		return nil, err
	}
	result, err := def.Handler(ctx, inv, normalized)
	if err != nil {
		if _, ok := xerrors.From(err); ok {
			return nil, err
		}
		return nil, xerrors.Wrap(CodeActionExecution, err,
			fmt.Sprintf("动作 %s 执行失败", actionType),
			xerrors.WithMetadata("action", actionType))
	}
	return result, nil
}

// Types 按注册顺序返回全部动作类型名。
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Catalog 按类型名排序返回全部定义，供推理引擎组装提示词。
func (r *Registry) Catalog() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	catalog := make([]Definition, 0, len(r.definitions))
	for _, def := range r.definitions {
		catalog = append(catalog, def)
	}
	sort.Slice(catalog, func(i, j int) bool {
		return catalog[i].Type < catalog[j].Type
	})
	return catalog
}
