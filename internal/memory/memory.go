package memory

import (
	"context"

	xerrors "OpenAgent-Chain/internal/errors"
)

// Episode 记录一次目标执行的经验：做了什么、结果如何。
// 经验按时间倒序供推理引擎与运行汇报消费。
type Episode struct {
	ID        string `json:"id"`
	Objective string `json:"objective"`
	GoalID    string `json:"goal_id"`
	Goal      string `json:"goal"`
	Action    string `json:"action,omitempty"`
	Outcome   string `json:"outcome"`
	Error     string `json:"error,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// Document 是可供推理引擎引用的一段知识。
type Document struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Gateway 定义核心对记忆存储的只读依赖。两个查询都是尽力而为：
// 失败只降级汇报，绝不升级为整轮运行的失败。
type Gateway interface {
	// RecentEpisodes 返回最近的经验记录，最新的在前。
	RecentEpisodes(ctx context.Context, n int) ([]Episode, error)
	// SimilarDocuments 按相关度返回与给定文本主题相近的知识文档。
	SimilarDocuments(ctx context.Context, text string, n int) ([]Document, error)
}

// Recorder 定义经验写入能力，由编排器在每个目标落定后调用。
type Recorder interface {
	RecordEpisode(ctx context.Context, episode Episode) error
}

// Archive 同时具备读写能力。
type Archive interface {
	Gateway
	Recorder
}

const (
	CodeMemoryStorage xerrors.Code = "MEMORY_STORAGE_FAILED"
)

func init() {
	xerrors.Register(CodeMemoryStorage, xerrors.Attributes{
		Message:   "memory storage failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     false,
	})
}
