package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InProcessArchive 在进程内保存经验与知识，主要用于测试与单机运行。
// 经验保存在有界环形缓冲中，知识通过关键词匹配打分检索。
type InProcessArchive struct {
	mu         sync.RWMutex
	episodes   []Episode
	capacity   int
	documents  []Document
	maxResults int
}

// ArchiveOption 定义可选配置。
type ArchiveOption func(*InProcessArchive)

// WithCapacity 设置经验缓冲的容量。
func WithCapacity(capacity int) ArchiveOption {
	return func(a *InProcessArchive) {
		if capacity > 0 {
			a.capacity = capacity
		}
	}
}

// WithDocuments 预置知识文档。
func WithDocuments(documents []Document) ArchiveOption {
	return func(a *InProcessArchive) {
		a.documents = append(a.documents, documents...)
	}
}

// WithMaxResults 限制单次知识检索返回的条数。
func WithMaxResults(n int) ArchiveOption {
	return func(a *InProcessArchive) {
		if n > 0 {
			a.maxResults = n
		}
	}
}

// NewInProcessArchive 创建进程内记忆档案。
func NewInProcessArchive(opts ...ArchiveOption) *InProcessArchive {
	a := &InProcessArchive{capacity: 512, maxResults: 3}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// LoadDocuments 从 JSON 文件加载知识条目。
func LoadDocuments(path string) ([]Document, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("知识库文件路径不能为空")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析知识库路径失败: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取知识库文件失败: %w", err)
	}
	defer file.Close()

	var documents []Document
	if err := json.NewDecoder(file).Decode(&documents); err != nil {
		return nil, fmt.Errorf("解析知识库文件失败: %w", err)
	}
	return documents, nil
}

// RecordEpisode 实现 Recorder 接口。
func (a *InProcessArchive) RecordEpisode(_ context.Context, episode Episode) error {
	if episode.ID == "" {
		episode.ID = uuid.NewString()
	}
	if episode.CreatedAt == 0 {
		episode.CreatedAt = time.Now().Unix()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.episodes = append(a.episodes, episode)
	if len(a.episodes) > a.capacity {
		a.episodes = a.episodes[len(a.episodes)-a.capacity:]
	}
	return nil
}

// RecentEpisodes 实现 Gateway 接口，最新的经验在前。
func (a *InProcessArchive) RecentEpisodes(_ context.Context, n int) ([]Episode, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if n <= 0 || n > len(a.episodes) {
		n = len(a.episodes)
	}
	results := make([]Episode, 0, n)
	for i := len(a.episodes) - 1; i >= len(a.episodes)-n; i-- {
		results = append(results, a.episodes[i])
	}
	return results, nil
}

// SimilarDocuments 通过关键词命中数为文档打分，按得分降序返回。
func (a *InProcessArchive) SimilarDocuments(_ context.Context, text string, n int) ([]Document, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if n <= 0 {
		n = a.maxResults
	}
	text = strings.ToLower(strings.TrimSpace(text))

	type scored struct {
		doc   Document
		score int
		index int
	}
	var matches []scored
	for i, doc := range a.documents {
		score := scoreDocument(doc, text)
		if score > 0 {
			matches = append(matches, scored{doc: doc, score: score, index: i})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score == matches[j].score {
			return matches[i].index < matches[j].index
		}
		return matches[i].score > matches[j].score
	})

	if len(matches) > n {
		matches = matches[:n]
	}
	results := make([]Document, 0, len(matches))
	for _, m := range matches {
		results = append(results, m.doc)
	}
	return results, nil
}

func scoreDocument(doc Document, text string) int {
	if text == "" {
		return 0
	}
	score := 0
	for _, keyword := range doc.Keywords {
		normalized := strings.ToLower(strings.TrimSpace(keyword))
		if normalized == "" {
			continue
		}
		if strings.Contains(text, normalized) {
			score += 2
		}
	}
	for _, tag := range doc.Tags {
		normalized := strings.ToLower(strings.TrimSpace(tag))
		if normalized == "" {
			continue
		}
		if strings.Contains(text, normalized) {
			score++
		}
	}
	return score
}

// Ensure InProcessArchive 实现 Archive 接口。
var _ Archive = (*InProcessArchive)(nil)
