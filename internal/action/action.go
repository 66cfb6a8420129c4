package action

import (
	"context"

	xerrors "OpenAgent-Chain/internal/errors"
)

// Invocation 携带一次动作调用的执行上下文，便于处理器落库与审计。
type Invocation struct {
	RunID     string
	GoalID    string
	Objective string
}

// Handler 执行一个已通过模式校验的动作。payload 是 Validate 归一化
// 后的结果，处理器可以直接信任其结构。
type Handler func(ctx context.Context, inv Invocation, payload map[string]any) (any, error)

// Metadata 提供给推理引擎组装提示词的描述信息，核心逻辑不使用。
type Metadata struct {
	Description string         `json:"description"`
	Example     map[string]any `json:"example,omitempty"`
}

// Definition 将动作类型绑定到处理器、输入模式与描述信息。
type Definition struct {
	Type     string   `json:"type"`
	Handler  Handler  `json:"-"`
	Metadata Metadata `json:"metadata"`
	Schema   Schema   `json:"schema"`
}

var (
	// ErrDuplicateAction 表示动作类型已被注册，注册方需要显式换名。
	ErrDuplicateAction = xerrors.New(CodeDuplicateAction, "action type already registered", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrUnknownAction 表示请求的动作类型不存在。
	ErrUnknownAction = xerrors.New(CodeUnknownAction, "unknown action type")
	// ErrSchemaValidation 表示动作载荷未通过模式校验。
	ErrSchemaValidation = xerrors.New(CodeSchemaValidation, "action payload failed schema validation")
	// ErrActionExecution 表示处理器本身执行失败。
	ErrActionExecution = xerrors.New(CodeActionExecution, "action handler failed")
)

const (
	CodeDuplicateAction  xerrors.Code = "ACTION_DUPLICATE"
	CodeUnknownAction    xerrors.Code = "ACTION_UNKNOWN"
	CodeSchemaValidation xerrors.Code = "ACTION_SCHEMA_VALIDATION"
	CodeActionExecution  xerrors.Code = "ACTION_EXECUTION_FAILED"
)

func init() {
	xerrors.Register(CodeDuplicateAction, xerrors.Attributes{
		Message:   "action type already registered",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeUnknownAction, xerrors.Attributes{
		Message:   "unknown action type",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeSchemaValidation, xerrors.Attributes{
		Message:   "action payload failed schema validation",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeActionExecution, xerrors.Attributes{
		Message:   "action handler failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
}
