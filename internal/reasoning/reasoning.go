package reasoning

import (
	"context"

	"OpenAgent-Chain/internal/action"
	xerrors "OpenAgent-Chain/internal/errors"
	"OpenAgent-Chain/internal/memory"
)

// StepKind 区分思考步骤的种类。
type StepKind string

const (
	StepSystem    StepKind = "system"
	StepReasoning StepKind = "reasoning"
)

// ThoughtStep 是推理引擎产出的一个中间步骤，仅用于观测与汇报，
// 核心逻辑不持久化。
type ThoughtStep struct {
	Kind    StepKind `json:"kind"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

// Decision 是一次 Think 调用的最终产物：有限的思考步骤序列
// 终止于恰好一个动作决策。
type Decision struct {
	Steps   []ThoughtStep  `json:"steps,omitempty"`
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Query 描述一次面向单个目标的推理请求。
type Query struct {
	Objective string
	Goal      string
	GoalID    string
	Catalog   []action.Definition
	Episodes  []memory.Episode
	Documents []memory.Document
	World     map[string]string
}

// GoalDraft 是拆解模式下产出的目标草案，由编排器落入调度器。
type GoalDraft struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Horizon     string   `json:"horizon,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

// Engine 定义了推理引擎的统一接口。两个方法都必须尊重上下文的
// 取消与截止时间：超时由调用方通过 ctx 指定，实现不得挂起。
type Engine interface {
	// Decompose 将自然语言形式的总目标拆解为目标草案序列。
	Decompose(ctx context.Context, objective string) ([]GoalDraft, error)
	// Think 针对单个目标给出动作决策。
	Think(ctx context.Context, query Query) (*Decision, error)
}

var (
	// ErrReasoningTimeout 表示推理调用超出了调用方给定的时间预算。
	ErrReasoningTimeout = xerrors.New(CodeReasoningTimeout, "reasoning timed out")
	// ErrReasoningFailure 表示推理调用失败或产出无法解析。
	ErrReasoningFailure = xerrors.New(CodeReasoningFailure, "reasoning failed")
)

const (
	CodeReasoningTimeout xerrors.Code = "REASONING_TIMEOUT"
	CodeReasoningFailure xerrors.Code = "REASONING_FAILURE"
)

func init() {
	xerrors.Register(CodeReasoningTimeout, xerrors.Attributes{
		Message:   "reasoning timed out",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeReasoningFailure, xerrors.Attributes{
		Message:   "reasoning failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
}
