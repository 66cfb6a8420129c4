package run

import (
	"context"
	"errors"
	"sync"
)

// MemoryQueue 进程内队列,底层是一个有缓冲 channel。
// 单进程部署与测试场景使用,不跨进程持久化。
type MemoryQueue struct {
	ch     chan string
	mu     sync.Mutex
	closed bool
}

var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue 创建容量为 size 的内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{ch: make(chan string, size)}
}

// Publish 将运行 ID 入队,队列已关闭时报错。
func (q *MemoryQueue) Publish(ctx context.Context, runID string) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return errors.New("队列已关闭")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- runID:
		return nil
	}
}

// Consume 启动 workerCount 个消费协程,阻塞到 ctx 取消。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer wg.Done()
			q.serve(ctx, handler)
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func (q *MemoryQueue) serve(ctx context.Context, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case runID, ok := <-q.ch:
			if !ok {
				return
			}
			_ = handler(ctx, runID)
		}
	}
}

// Close 关闭队列,之后的 Publish 一律失败。
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}
