package goal

import (
	"fmt"
	"strings"
	"sync"
	"time"

	xerrors "OpenAgent-Chain/internal/errors"
	"OpenAgent-Chain/internal/events"
)

// Classification 是对 pending 目标的派生诊断视图。
type Classification string

const (
	// ClassEligible 表示目标已经 ready/active，可以被执行。
	ClassEligible Classification = "eligible"
	// ClassWaiting 表示目标仍在等待依赖完成，依赖均可望完成。
	ClassWaiting Classification = "waiting"
	// ClassUnreachable 表示某个祖先依赖已经失败，目标不可能再被执行。
	ClassUnreachable Classification = "unreachable"
	// ClassResolved 表示目标已经到达终态。
	ClassResolved Classification = "resolved"
)

// Stats 聚合目标图中各状态的数量，用于终止判定与汇报。
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Ready     int `json:"ready"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Scheduler 持有目标图：id → 目标、依赖边与状态迁移。
// 它是并发执行下唯一需要互斥保护的共享可变状态，所有迁移守卫
// 都在锁内完成，平手时按插入顺序决定调度次序以保证可复现。
type Scheduler struct {
	mu    sync.Mutex
	goals map[string]*Goal
	order []string
	bus   *events.Bus
}

// SchedulerOption 定义可选配置。
type SchedulerOption func(*Scheduler)

// WithEventBus 配置状态迁移事件的发布目标。
func WithEventBus(bus *events.Bus) SchedulerOption {
	return func(s *Scheduler) {
		s.bus = bus
	}
}

// NewScheduler 创建一个空的目标调度器。
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{goals: make(map[string]*Goal)}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Add 插入一个目标。若依赖链经由已有目标回到自身则拒绝并返回
// GOAL_CYCLE；重复 ID 返回 GOAL_CONFLICT。新目标总是以 pending 入图。
func (s *Scheduler) Add(g *Goal) error {
	if g == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "goal 不能为空")
	}
	if strings.TrimSpace(g.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "目标 ID 不能为空")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.goals[g.ID]; ok {
		return xerrors.Wrap(CodeGoalConflict, ErrGoalConflict, fmt.Sprintf("目标 %s 已存在", g.ID))
	}
	for _, dep := range g.DependsOn {
		if dep == g.ID {
			return xerrors.Wrap(CodeCyclicDependency, ErrCyclicDependency, fmt.Sprintf("目标 %s 依赖自身", g.ID))
		}
	}
	if from := s.findCycle(g); from != "" {
		return xerrors.Wrap(CodeCyclicDependency, ErrCyclicDependency,
			fmt.Sprintf("目标 %s 经由 %s 的依赖链回到自身", g.ID, from))
	}

	now := time.Now().Unix()
	clone := cloneGoal(g)
	clone.Status = StatusPending
	clone.Result = nil
	clone.FailureReason = ""
	if clone.Horizon == "" {
		clone.Horizon = HorizonShort
	}
	if clone.CreatedAt == 0 {
		clone.CreatedAt = now
	}
	clone.UpdatedAt = now

	s.goals[clone.ID] = clone
	s.order = append(s.order, clone.ID)

	s.publish(events.NewGoal(events.KindGoalCreated, events.GoalInfo{
		ID:          clone.ID,
		Description: clone.Description,
		Status:      string(clone.Status),
	}))
	return nil
}

// findCycle 检查从新目标的依赖出发，沿已有依赖边是否能回到新目标。
// 返回构成环的依赖 ID，未发现环时返回空串。
func (s *Scheduler) findCycle(g *Goal) string {
	visited := make(map[string]bool, len(s.goals))
	var reaches func(from string) bool
	reaches = func(from string) bool {
		if from == g.ID {
			return true
		}
		if visited[from] {
			return false
		}
		visited[from] = true
		node, ok := s.goals[from]
		if !ok {
			return false
		}
		for _, dep := range node.DependsOn {
			if reaches(dep) {
				return true
			}
		}
		return false
	}
	for _, dep := range g.DependsOn {
		if reaches(dep) {
			return dep
		}
	}
	return ""
}

// ReadyGoals 将所有依赖已全部完成的 pending 目标提升为 ready，
// 并按插入顺序返回本次新提升的目标。提升只发生一次：已经 ready
// 的目标不会被重复返回。
func (s *Scheduler) ReadyGoals() []*Goal {
	s.mu.Lock()
	defer s.mu.Unlock()

	var promoted []*Goal
	for _, id := range s.order {
		g := s.goals[id]
		if g.Status != StatusPending || !s.depsCompleted(g) {
			continue
		}
		g.Status = StatusReady
		g.UpdatedAt = time.Now().Unix()
		promoted = append(promoted, cloneGoal(g))
		s.publish(events.NewGoal(events.KindGoalUpdated, events.GoalInfo{
			ID:     g.ID,
			Status: string(g.Status),
		}))
	}
	return promoted
}

func (s *Scheduler) depsCompleted(g *Goal) bool {
	for _, dep := range g.DependsOn {
		node, ok := s.goals[dep]
		if !ok || node.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// Get 返回指定目标的副本。
func (s *Scheduler) Get(id string) (*Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return nil, ErrGoalNotFound
	}
	return cloneGoal(g), nil
}

// ByStatus 按插入顺序返回处于指定状态的目标。
func (s *Scheduler) ByStatus(status Status) []*Goal {
	s.mu.Lock()
	defer s.mu.Unlock()
	var results []*Goal
	for _, id := range s.order {
		if g := s.goals[id]; g.Status == status {
			results = append(results, cloneGoal(g))
		}
	}
	return results
}

// ByHorizon 按插入顺序返回指定时间尺度的目标，不改变任何状态。
func (s *Scheduler) ByHorizon(h Horizon) []*Goal {
	s.mu.Lock()
	defer s.mu.Unlock()
	var results []*Goal
	for _, id := range s.order {
		if g := s.goals[id]; g.Horizon == h {
			results = append(results, cloneGoal(g))
		}
	}
	return results
}

// BlockingGoals 返回目标的直接依赖中尚未完成的那些。
// 未注册的依赖 ID 以占位记录返回，状态为 pending。
func (s *Scheduler) BlockingGoals(id string) ([]*Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return nil, ErrGoalNotFound
	}
	var blocking []*Goal
	for _, dep := range g.DependsOn {
		node, exists := s.goals[dep]
		if !exists {
			blocking = append(blocking, &Goal{ID: dep, Status: StatusPending})
			continue
		}
		if node.Status != StatusCompleted {
			blocking = append(blocking, cloneGoal(node))
		}
	}
	return blocking, nil
}

// Classify 给出目标的派生诊断分类。pending 目标区分 waiting 与
// unreachable（某个祖先依赖已失败），该区分只在查询时计算，从不落盘。
func (s *Scheduler) Classify(id string) (Classification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return "", ErrGoalNotFound
	}
	switch {
	case g.Status.Terminal():
		return ClassResolved, nil
	case g.Status == StatusReady || g.Status == StatusActive:
		return ClassEligible, nil
	}
	if s.hasFailedAncestor(g, make(map[string]bool)) {
		return ClassUnreachable, nil
	}
	return ClassWaiting, nil
}

func (s *Scheduler) hasFailedAncestor(g *Goal, visited map[string]bool) bool {
	for _, dep := range g.DependsOn {
		if visited[dep] {
			continue
		}
		visited[dep] = true
		node, ok := s.goals[dep]
		if !ok {
			continue
		}
		if node.Status == StatusFailed {
			return true
		}
		if s.hasFailedAncestor(node, visited) {
			return true
		}
	}
	return false
}

// MarkActive 将 ready 状态的目标标记为执行中。
func (s *Scheduler) MarkActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return ErrGoalNotFound
	}
	if g.Status != StatusReady {
		return xerrors.Wrap(CodeInvalidTransition, ErrInvalidTransition,
			fmt.Sprintf("目标 %s 当前为 %s，无法标记为 active", id, g.Status))
	}
	g.Status = StatusActive
	g.UpdatedAt = time.Now().Unix()
	s.publish(events.NewGoal(events.KindGoalUpdated, events.GoalInfo{ID: id, Status: string(g.Status)}))
	return nil
}

// MarkCompleted 记录执行成功的结果。完成后依赖它的 pending 目标
// 将在下一次 ReadyGoals 调用中被惰性提升。
func (s *Scheduler) MarkCompleted(id string, result any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return ErrGoalNotFound
	}
	if g.Status != StatusActive {
		return xerrors.Wrap(CodeInvalidTransition, ErrInvalidTransition,
			fmt.Sprintf("目标 %s 当前为 %s，无法标记为 completed", id, g.Status))
	}
	g.Status = StatusCompleted
	g.Result = result
	g.FailureReason = ""
	g.UpdatedAt = time.Now().Unix()
	s.publish(events.NewGoal(events.KindGoalUpdated, events.GoalInfo{ID: id, Status: string(g.Status)}))
	s.publish(events.NewGoal(events.KindGoalCompleted, events.GoalInfo{ID: id, Result: result}))
	return nil
}

// MarkFailed 标记目标失败。失败为终态，本轮执行内不会自动重试。
func (s *Scheduler) MarkFailed(id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return ErrGoalNotFound
	}
	if g.Status != StatusActive {
		return xerrors.Wrap(CodeInvalidTransition, ErrInvalidTransition,
			fmt.Sprintf("目标 %s 当前为 %s，无法标记为 failed", id, g.Status))
	}
	g.Status = StatusFailed
	g.FailureReason = reason
	g.UpdatedAt = time.Now().Unix()
	s.publish(events.NewGoal(events.KindGoalUpdated, events.GoalInfo{ID: id, Status: string(g.Status)}))
	s.publish(events.NewGoal(events.KindGoalFailed, events.GoalInfo{ID: id, Error: reason}))
	return nil
}

// Stats 统计各状态的目标数量。
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := Stats{Total: len(s.order)}
	for _, g := range s.goals {
		switch g.Status {
		case StatusPending:
			stats.Pending++
		case StatusReady:
			stats.Ready++
		case StatusActive:
			stats.Active++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats
}

// Snapshot 按插入顺序返回全部目标的副本。
func (s *Scheduler) Snapshot() []*Goal {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]*Goal, 0, len(s.order))
	for _, id := range s.order {
		results = append(results, cloneGoal(s.goals[id]))
	}
	return results
}

func (s *Scheduler) publish(event events.Event) {
	if s.bus != nil {
		s.bus.Publish(event)
	}
}
