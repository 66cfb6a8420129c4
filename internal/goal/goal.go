package goal

import (
	xerrors "OpenAgent-Chain/internal/errors"
)

// Status 表示目标在生命周期中的状态。
//
// 合法的状态迁移只有 pending → ready → active → completed/failed，
// completed 与 failed 为终态。"blocked" 不是存储状态，而是对 pending
// 目标的派生视图，参见 Scheduler.Classify。
type Status string

const (
	StatusPending   Status = "pending"
	StatusReady     Status = "ready"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsValidStatus 检查给定的目标状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusReady, StatusActive, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal 判断状态是否为终态。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Horizon 描述目标的规划时间尺度，用于筛选近期可调度的目标。
type Horizon string

const (
	HorizonShort  Horizon = "short"
	HorizonMedium Horizon = "medium"
	HorizonLong   Horizon = "long"
)

// ParseHorizon 将自由文本归一化为 Horizon，无法识别时按 short 处理。
func ParseHorizon(raw string) Horizon {
	switch Horizon(raw) {
	case HorizonMedium:
		return HorizonMedium
	case HorizonLong:
		return HorizonLong
	default:
		return HorizonShort
	}
}

// Goal 描述拆解出的一个子目标。目标由调度器持有，创建后只能通过
// 状态迁移操作修改，永不删除，以保留整轮执行的审计痕迹。
type Goal struct {
	ID            string   `json:"id"`
	Description   string   `json:"description"`
	Horizon       Horizon  `json:"horizon"`
	DependsOn     []string `json:"depends_on,omitempty"`
	Status        Status   `json:"status"`
	Result        any      `json:"result,omitempty"`
	FailureReason string   `json:"failure_reason,omitempty"`
	CreatedAt     int64    `json:"created_at"`
	UpdatedAt     int64    `json:"updated_at"`
}

var (
	// ErrGoalNotFound 表示指定的目标不存在。
	ErrGoalNotFound = xerrors.New(CodeGoalNotFound, "goal not found")
	// ErrGoalConflict 表示目标 ID 已被占用。
	ErrGoalConflict = xerrors.New(CodeGoalConflict, "goal id already exists", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrCyclicDependency 表示新增目标会在依赖图中构成环。
	ErrCyclicDependency = xerrors.New(CodeCyclicDependency, "cyclic goal dependency")
	// ErrInvalidTransition 表示目标当前状态不允许所请求的迁移。
	ErrInvalidTransition = xerrors.New(CodeInvalidTransition, "invalid goal status transition")
)

const (
	CodeGoalNotFound      xerrors.Code = "GOAL_NOT_FOUND"
	CodeGoalConflict      xerrors.Code = "GOAL_CONFLICT"
	CodeCyclicDependency  xerrors.Code = "GOAL_CYCLE"
	CodeInvalidTransition xerrors.Code = "GOAL_INVALID_TRANSITION"
)

func init() {
	xerrors.Register(CodeGoalNotFound, xerrors.Attributes{
		Message:   "goal not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeGoalConflict, xerrors.Attributes{
		Message:   "goal id already exists",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeCyclicDependency, xerrors.Attributes{
		Message:   "cyclic goal dependency",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeInvalidTransition, xerrors.Attributes{
		Message:   "invalid goal status transition",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
}

func cloneGoal(g *Goal) *Goal {
	clone := *g
	if g.DependsOn != nil {
		clone.DependsOn = append([]string(nil), g.DependsOn...)
	}
	return &clone
}
