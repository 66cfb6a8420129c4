package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisBlockWait = 5 * time.Second

// RedisQueueConfig 描述 Redis 运行队列的连接参数。
type RedisQueueConfig struct {
	Address   string
	Password  string
	DB        int
	Queue     string
	BlockWait time.Duration
}

// RedisQueue 用 Redis list 承载运行队列:LPush 入队,BRPop 出队。
type RedisQueue struct {
	client *redis.Client
	key    string
	wait   time.Duration
}

var _ Queue = (*RedisQueue)(nil)

// NewRedisQueue 建立 Redis 连接并校验可达。
func NewRedisQueue(cfg RedisQueueConfig) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	q := &RedisQueue{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		key:  cfg.Queue,
		wait: cfg.BlockWait,
	}
	if q.key == "" {
		q.key = "agentd:runs"
	}
	if q.wait <= 0 {
		q.wait = defaultRedisBlockWait
	}
	if err := q.client.Ping(context.Background()).Err(); err != nil {
		_ = q.client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return q, nil
}

// Publish 将运行 ID 入队。
func (q *RedisQueue) Publish(ctx context.Context, runID string) error {
	if err := q.client.LPush(ctx, q.key, runID).Err(); err != nil {
		return fmt.Errorf("Redis 发布运行失败: %w", err)
	}
	return nil
}

// Consume 启动 workerCount 个消费协程,返回第一个致命错误或 ctx 取消。
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	fatal := make(chan error, workerCount)
	for i := 0; i < workerCount; i++ {
		go q.poll(ctx, handler, fatal)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-fatal:
		return err
	}
}

func (q *RedisQueue) poll(ctx context.Context, handler Handler, fatal chan<- error) {
	for {
		if err := ctx.Err(); err != nil {
			fatal <- err
			return
		}
		runID, err := q.pop(ctx)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				fatal <- err
				return
			}
			fatal <- fmt.Errorf("Redis 取运行失败: %w", err)
			return
		}
		if runID == "" {
			continue
		}
		if handlerErr := handler(ctx, runID); handlerErr != nil {
			// 处理失败时退回队尾,等待下一次领取。
			_ = q.client.RPush(ctx, q.key, runID).Err()
		}
	}
}

func (q *RedisQueue) pop(ctx context.Context) (string, error) {
	values, err := q.client.BRPop(ctx, q.wait, q.key).Result()
	if err != nil {
		return "", err
	}
	if len(values) != 2 {
		return "", nil
	}
	return values[1], nil
}

// Close 关闭 Redis 连接。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}
