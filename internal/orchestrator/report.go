package orchestrator

import (
	"OpenAgent-Chain/internal/goal"
	"OpenAgent-Chain/internal/memory"
)

// Stats 是单轮运行的执行计数，每个总目标重置一次。
type Stats struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Attempted int `json:"attempted"`
}

// UnmetDependency 描述卡住某个目标的一条未完成依赖。
type UnmetDependency struct {
	ID     string      `json:"id"`
	Status goal.Status `json:"status"`
}

// StalledGoal 描述死锁诊断中一个无法推进的 pending 目标。
type StalledGoal struct {
	ID             string              `json:"id"`
	Description    string              `json:"description"`
	Classification goal.Classification `json:"classification"`
	Unmet          []UnmetDependency   `json:"unmet"`
}

// Report 汇总一轮运行的最终状态。Stalled 非空表示运行以部分完成
// 告终：剩余目标因依赖失败或缺失而永远无法就绪，这是汇报而非错误。
type Report struct {
	Objective string            `json:"objective"`
	Stats     Stats             `json:"stats"`
	Goals     []*goal.Goal      `json:"goals"`
	Stalled   []StalledGoal     `json:"stalled,omitempty"`
	Episodes  []memory.Episode  `json:"episodes,omitempty"`
	Documents []memory.Document `json:"documents,omitempty"`
}
