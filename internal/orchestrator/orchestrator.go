package orchestrator

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"OpenAgent-Chain/internal/action"
	xerrors "OpenAgent-Chain/internal/errors"
	"OpenAgent-Chain/internal/events"
	"OpenAgent-Chain/internal/goal"
	"OpenAgent-Chain/internal/memory"
	"OpenAgent-Chain/internal/reasoning"
	"OpenAgent-Chain/pkg/logger"
)

const (
	CodePlanningFailure      xerrors.Code = "PLANNING_FAILED"
	CodeNoExecutableGoals    xerrors.Code = "NO_EXECUTABLE_GOALS"
	CodeGoalExecutionFailure xerrors.Code = "GOAL_EXECUTION_FAILED"
	CodeRunCancelled         xerrors.Code = "RUN_CANCELLED"
)

func init() {
	xerrors.Register(CodePlanningFailure, xerrors.Attributes{
		Message:   "objective decomposition failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeNoExecutableGoals, xerrors.Attributes{
		Message:   "no executable goals remain",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeGoalExecutionFailure, xerrors.Attributes{
		Message:   "goal execution failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeRunCancelled, xerrors.Attributes{
		Message:   "run cancelled",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}

// defaultMemoryDepth 是推理时携带的历史经验条数默认值。
const defaultMemoryDepth = 5

// Orchestrator 驱动单个总目标的执行循环：拆解目标图、逐个选取
// 就绪目标、推理出动作决策、经注册表校验后执行并回写目标状态。
// 一次只执行一个目标，确保有副作用的动作不会相互竞争。
type Orchestrator struct {
	engine           reasoning.Engine
	registry         *action.Registry
	archive          memory.Archive
	bus              *events.Bus
	policy           FailurePolicy
	thinkTimeout     time.Duration
	actionTimeout    time.Duration
	decomposeTimeout time.Duration
	memoryDepth      int
	runID            string
	logger           *slog.Logger
}

// Option 定义可选的编排器配置。
type Option func(*Orchestrator)

// WithEventBus 配置可观测事件的发布目标。
func WithEventBus(bus *events.Bus) Option {
	return func(o *Orchestrator) {
		o.bus = bus
	}
}

// WithFailurePolicy 配置目标失败后的继续/停止策略。
func WithFailurePolicy(policy FailurePolicy) Option {
	return func(o *Orchestrator) {
		if policy != nil {
			o.policy = policy
		}
	}
}

// WithThinkTimeout 设置单次推理调用的时间预算。
func WithThinkTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.thinkTimeout = timeout
		}
	}
}

// WithActionTimeout 设置单次动作执行的时间预算。
func WithActionTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.actionTimeout = timeout
		}
	}
}

// WithDecomposeTimeout 设置拆解调用的时间预算。
func WithDecomposeTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.decomposeTimeout = timeout
		}
	}
}

// WithMemoryDepth 设置推理时携带的历史经验条数。
func WithMemoryDepth(depth int) Option {
	return func(o *Orchestrator) {
		if depth > 0 {
			o.memoryDepth = depth
		}
	}
}

// WithLogger 指定日志输出。
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = log
	}
}

// WithRunID 关联一次运行的标识，会透传给每次动作调用。
func WithRunID(id string) Option {
	return func(o *Orchestrator) {
		o.runID = id
	}
}

// New 创建一个编排器。archive 可以为 nil，此时经验与知识相关的
// 能力全部降级为空操作。
func New(engine reasoning.Engine, registry *action.Registry, archive memory.Archive, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:      engine,
		registry:    registry,
		archive:     archive,
		policy:      ContinueAlways(),
		memoryDepth: defaultMemoryDepth,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.logger == nil {
		o.logger = logger.Component("orchestrator")
	}
	return o
}

// Run 对单个总目标执行完整的编排循环，返回运行报告。
// 死锁（剩余 pending 目标永远无法就绪）不是错误：报告的 Stalled
// 字段携带诊断信息，err 为 nil。取消与拆解失败通过 err 返回。
func (o *Orchestrator) Run(ctx context.Context, objective string) (*Report, error) {
	if o.engine == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置推理引擎")
	}
	if o.registry == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置动作注册表")
	}
	objective = strings.TrimSpace(objective)
	if objective == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "总目标不能为空")
	}

	sched, err := o.plan(ctx, objective)
	if err != nil {
		return nil, err
	}

	report := &Report{Objective: objective}
	var queue []string

	for {
		for _, promoted := range sched.ReadyGoals() {
			queue = append(queue, promoted.ID)
		}

		if len(queue) == 0 {
			stats := sched.Stats()
			if stats.Pending > 0 {
				report.Stalled = o.diagnoseStall(sched)
				o.logger.Warn("没有可执行的目标，运行以部分完成告终",
					slog.String("objective", objective),
					slog.Int("pending", stats.Pending),
				)
			}
			break
		}

		id := queue[0]
		queue = queue[1:]

		cancelled, stop := o.executeGoal(ctx, sched, objective, id, report)
		if cancelled {
			o.finishReport(context.WithoutCancel(ctx), sched, report)
			return report, xerrors.Wrap(CodeRunCancelled, ctx.Err(), "运行被中断")
		}
		if stop {
			o.logger.Warn("失败策略要求停止剩余目标",
				slog.String("objective", objective),
				slog.Int("failed", report.Stats.Failed),
			)
			break
		}
	}

	o.finishReport(ctx, sched, report)
	logger.Audit().Info("运行结束",
		slog.String("objective", objective),
		slog.Int("completed", report.Stats.Completed),
		slog.Int("failed", report.Stats.Failed),
		slog.Int("stalled", len(report.Stalled)),
	)
	return report, nil
}

// plan 调用拆解模式构建目标图。全部草案先行校验，任何一条失败
// 都不会留下部分建好的图。
func (o *Orchestrator) plan(ctx context.Context, objective string) (*goal.Scheduler, error) {
	dctx := ctx
	if o.decomposeTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, o.decomposeTimeout)
		defer cancel()
	}

	drafts, err := o.engine.Decompose(dctx, objective)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			err = xerrors.Wrap(reasoning.CodeReasoningTimeout, err, "拆解调用超时")
		}
		return nil, xerrors.Wrap(CodePlanningFailure, err, "总目标拆解失败")
	}

	goals := make([]*goal.Goal, 0, len(drafts))
	for _, draft := range drafts {
		id := strings.TrimSpace(draft.ID)
		if id == "" {
			id = uuid.NewString()
		}
		goals = append(goals, &goal.Goal{
			ID:          id,
			Description: draft.Description,
			Horizon:     goal.ParseHorizon(draft.Horizon),
			DependsOn:   draft.DependsOn,
		})
	}

	sched := goal.NewScheduler(goal.WithEventBus(o.bus))
	for _, g := range goals {
		if err := sched.Add(g); err != nil {
			return nil, xerrors.Wrap(CodePlanningFailure, err, fmt.Sprintf("目标 %s 入图失败", g.ID))
		}
	}
	return sched, nil
}

// executeGoal 执行单个就绪目标。返回 (是否因取消中断, 是否停止循环)。
func (o *Orchestrator) executeGoal(ctx context.Context, sched *goal.Scheduler, objective, id string, report *Report) (cancelled, stop bool) {
	if err := sched.MarkActive(id); err != nil {
		o.logger.Error("标记目标为 active 失败", slog.Any("error", err), slog.String("goal_id", id))
		return false, false
	}
	g, err := sched.Get(id)
	if err != nil {
		return false, false
	}
	report.Stats.Attempted++

	decision, err := o.think(ctx, objective, g)
	var result any
	var actionType string
	if err == nil {
		actionType = decision.Action
		result, err = o.invoke(ctx, objective, g, decision)
	}

	if err != nil {
		if ctx.Err() != nil {
			reason := xerrors.Wrap(CodeRunCancelled, ctx.Err(), "目标执行被中断").Error()
			if markErr := sched.MarkFailed(id, reason); markErr != nil {
				o.logger.Error("标记被中断目标失败状态出错", slog.Any("error", markErr), slog.String("goal_id", id))
			}
			report.Stats.Failed++
			o.recordEpisode(context.WithoutCancel(ctx), objective, g, actionType, "cancelled", reason)
			return true, false
		}

		wrapped := xerrors.Wrap(CodeGoalExecutionFailure, err, fmt.Sprintf("目标 %s 执行失败", id),
			xerrors.WithMetadata("goal_id", id))
		if markErr := sched.MarkFailed(id, err.Error()); markErr != nil {
			o.logger.Error("标记目标失败状态出错", slog.Any("error", markErr), slog.String("goal_id", id))
		}
		report.Stats.Failed++
		o.recordEpisode(ctx, objective, g, actionType, "failed", err.Error())
		logger.Audit().Warn("目标执行失败",
			slog.String("goal_id", id),
			slog.String("goal", g.Description),
			slog.String("error", wrapped.Error()),
			slog.String("error_code", string(xerrors.CodeOf(err))),
		)
		return false, !o.policy(report.Stats.Failed, g)
	}

	if err := sched.MarkCompleted(id, result); err != nil {
		o.logger.Error("标记目标完成状态出错", slog.Any("error", err), slog.String("goal_id", id))
		return false, false
	}
	report.Stats.Completed++
	o.recordEpisode(ctx, objective, g, actionType, "completed", "")
	logger.Audit().Info("目标执行成功",
		slog.String("goal_id", id),
		slog.String("goal", g.Description),
		slog.String("action", actionType),
	)
	return false, false
}

// think 在时间预算内调用推理引擎，并发布 think:* 事件。
// 超时与失败都不在此处重试，直接交由失败策略裁决。
func (o *Orchestrator) think(ctx context.Context, objective string, g *goal.Goal) (*reasoning.Decision, error) {
	query := reasoning.Query{
		Objective: objective,
		Goal:      g.Description,
		GoalID:    g.ID,
		Catalog:   o.registry.Catalog(),
	}
	if o.archive != nil {
		if episodes, err := o.archive.RecentEpisodes(ctx, o.memoryDepth); err == nil {
			query.Episodes = episodes
			o.publish(events.NewMemory(events.KindMemoryExperienceRetrieved, len(episodes), 0))
		}
		if documents, err := o.archive.SimilarDocuments(ctx, g.Description, 0); err == nil && len(documents) > 0 {
			query.Documents = documents
			o.publish(events.NewMemory(events.KindMemoryKnowledgeRetrieved, 0, len(documents)))
		}
	}

	tctx := ctx
	if o.thinkTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, o.thinkTimeout)
		defer cancel()
	}

	o.publish(events.NewThink(events.KindThinkStart, g.Description, nil))
	decision, err := o.engine.Think(tctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		if stdErrors.Is(err, context.DeadlineExceeded) || xerrors.CodeOf(err) == reasoning.CodeReasoningTimeout {
			o.publish(events.NewThink(events.KindThinkTimeout, g.Description, err))
			return nil, xerrors.Wrap(reasoning.CodeReasoningTimeout, err, "推理调用超时")
		}
		o.publish(events.NewThink(events.KindThinkError, g.Description, err))
		if _, ok := xerrors.From(err); ok {
			return nil, err
		}
		return nil, xerrors.Wrap(reasoning.CodeReasoningFailure, err, "推理调用失败")
	}
	o.publish(events.NewThink(events.KindThinkComplete, g.Description, nil))
	return decision, nil
}

// invoke 经注册表校验并执行动作决策，发布 action:* 事件。
func (o *Orchestrator) invoke(ctx context.Context, objective string, g *goal.Goal, decision *reasoning.Decision) (any, error) {
	actx := ctx
	if o.actionTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, o.actionTimeout)
		defer cancel()
	}

	o.publish(events.NewAction(events.KindActionStart, decision.Action, nil, nil))
	result, err := o.registry.Invoke(actx, action.Invocation{
		RunID:     o.runID,
		GoalID:    g.ID,
		Objective: objective,
	}, decision.Action, decision.Payload)
	if err != nil {
		o.publish(events.NewAction(events.KindActionError, decision.Action, nil, err))
		return nil, err
	}
	o.publish(events.NewAction(events.KindActionComplete, decision.Action, result, nil))
	return result, nil
}

// recordEpisode 尽力而为地记录经验，失败只打日志。
func (o *Orchestrator) recordEpisode(ctx context.Context, objective string, g *goal.Goal, actionType, outcome, errText string) {
	if o.archive == nil {
		return
	}
	episode := memory.Episode{
		ID:        uuid.NewString(),
		Objective: objective,
		GoalID:    g.ID,
		Goal:      g.Description,
		Action:    actionType,
		Outcome:   outcome,
		Error:     errText,
		CreatedAt: time.Now().Unix(),
	}
	if err := o.archive.RecordEpisode(ctx, episode); err != nil {
		o.logger.Warn("记录经验失败", slog.Any("error", err), slog.String("goal_id", g.ID))
		return
	}
	o.publish(events.NewMemory(events.KindMemoryExperienceStored, 1, 0))
}

// diagnoseStall 为每个无法推进的 pending 目标收集未完成依赖。
func (o *Orchestrator) diagnoseStall(sched *goal.Scheduler) []StalledGoal {
	var stalled []StalledGoal
	for _, g := range sched.ByStatus(goal.StatusPending) {
		classification, err := sched.Classify(g.ID)
		if err != nil {
			continue
		}
		blocking, err := sched.BlockingGoals(g.ID)
		if err != nil {
			continue
		}
		unmet := make([]UnmetDependency, 0, len(blocking))
		for _, dep := range blocking {
			unmet = append(unmet, UnmetDependency{ID: dep.ID, Status: dep.Status})
		}
		stalled = append(stalled, StalledGoal{
			ID:             g.ID,
			Description:    g.Description,
			Classification: classification,
			Unmet:          unmet,
		})
	}
	return stalled
}

// finishReport 生成最终快照并尽力补充记忆侧的汇报材料。
// 记忆查询失败只打日志，绝不影响运行结果。
func (o *Orchestrator) finishReport(ctx context.Context, sched *goal.Scheduler, report *Report) {
	report.Goals = sched.Snapshot()
	if o.archive == nil {
		return
	}

	if episodes, err := o.archive.RecentEpisodes(ctx, o.memoryDepth); err != nil {
		o.logger.Warn("获取最近经验失败", slog.Any("error", err))
	} else {
		report.Episodes = episodes
		o.publish(events.NewMemory(events.KindMemoryExperienceRetrieved, len(episodes), 0))
	}

	if documents, err := o.archive.SimilarDocuments(ctx, report.Objective, 0); err != nil {
		o.logger.Warn("检索相关知识失败", slog.Any("error", err))
	} else {
		report.Documents = documents
		o.publish(events.NewMemory(events.KindMemoryKnowledgeRetrieved, 0, len(documents)))
	}
}

func (o *Orchestrator) publish(event events.Event) {
	if o.bus != nil {
		o.bus.Publish(event)
	}
}
