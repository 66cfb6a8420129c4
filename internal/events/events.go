package events

import "time"

// Kind 标识一类可观测事件。事件集合是封闭的，新增事件必须同时约定载荷结构。
type Kind string

const (
	KindThinkStart    Kind = "think:start"
	KindThinkComplete Kind = "think:complete"
	KindThinkTimeout  Kind = "think:timeout"
	KindThinkError    Kind = "think:error"

	KindActionStart    Kind = "action:start"
	KindActionComplete Kind = "action:complete"
	KindActionError    Kind = "action:error"

	KindGoalCreated   Kind = "goal:created"
	KindGoalUpdated   Kind = "goal:updated"
	KindGoalCompleted Kind = "goal:completed"
	KindGoalFailed    Kind = "goal:failed"

	KindMemoryExperienceStored    Kind = "memory:experience_stored"
	KindMemoryKnowledgeStored     Kind = "memory:knowledge_stored"
	KindMemoryExperienceRetrieved Kind = "memory:experience_retrieved"
	KindMemoryKnowledgeRetrieved  Kind = "memory:knowledge_retrieved"
)

// ThinkInfo 是 think:* 事件的载荷。
type ThinkInfo struct {
	Query string `json:"query"`
	Error string `json:"error,omitempty"`
}

// ActionInfo 是 action:* 事件的载荷。
type ActionInfo struct {
	Action string `json:"action"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// GoalInfo 是 goal:* 事件的载荷。
type GoalInfo struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	Result      any    `json:"result,omitempty"`
	Error       string `json:"error,omitempty"`
}

// MemoryInfo 是 memory:* 事件的载荷。
type MemoryInfo struct {
	Experiences int `json:"experiences,omitempty"`
	Documents   int `json:"documents,omitempty"`
}

// Event 携带一次状态变化的完整上下文。Kind 决定哪个载荷字段非空。
type Event struct {
	Kind   Kind
	At     time.Time
	Think  *ThinkInfo
	Action *ActionInfo
	Goal   *GoalInfo
	Memory *MemoryInfo
}

// NewThink 构造 think:* 事件。
func NewThink(kind Kind, query string, err error) Event {
	info := &ThinkInfo{Query: query}
	if err != nil {
		info.Error = err.Error()
	}
	return Event{Kind: kind, At: time.Now(), Think: info}
}

// NewAction 构造 action:* 事件。
func NewAction(kind Kind, action string, result any, err error) Event {
	info := &ActionInfo{Action: action, Result: result}
	if err != nil {
		info.Error = err.Error()
	}
	return Event{Kind: kind, At: time.Now(), Action: info}
}

// NewGoal 构造 goal:* 事件。
func NewGoal(kind Kind, info GoalInfo) Event {
	return Event{Kind: kind, At: time.Now(), Goal: &info}
}

// NewMemory 构造 memory:* 事件。
func NewMemory(kind Kind, experiences, documents int) Event {
	return Event{Kind: kind, At: time.Now(), Memory: &MemoryInfo{Experiences: experiences, Documents: documents}}
}
