// Package rediscache 用 Redis list 为经验档案提供跨进程的
// 最近经验缓存：写入时同时落到底层档案与 Redis，读取时优先
// 走 Redis，失败再回退底层档案。
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"OpenAgent-Chain/internal/memory"
)

// Config 描述 Redis 连接参数。
type Config struct {
	Address  string
	Password string
	DB       int
	Key      string
	MaxLen   int64
}

// Cache 包装一个底层档案并在 Redis 中维护最近经验列表。
type Cache struct {
	client  *redis.Client
	backend memory.Archive
	key     string
	maxLen  int64
}

// New 创建 Redis 经验缓存。
func New(cfg Config, backend memory.Archive) (*Cache, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	if backend == nil {
		return nil, errors.New("必须提供底层经验档案")
	}
	key := cfg.Key
	if key == "" {
		key = "agentd:episodes"
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 512
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &Cache{client: client, backend: backend, key: key, maxLen: maxLen}, nil
}

// RecordEpisode 先写底层档案，成功后推入 Redis。缓存写入失败
// 不影响记录结果，下次读取会回退到底层档案。
func (c *Cache) RecordEpisode(ctx context.Context, episode memory.Episode) error {
	if err := c.backend.RecordEpisode(ctx, episode); err != nil {
		return err
	}
	encoded, err := json.Marshal(episode)
	if err != nil {
		return nil
	}
	pipe := c.client.Pipeline()
	pipe.LPush(ctx, c.key, encoded)
	pipe.LTrim(ctx, c.key, 0, c.maxLen-1)
	_, _ = pipe.Exec(ctx)
	return nil
}

// RecentEpisodes 优先从 Redis 读取，失败时回退底层档案。
func (c *Cache) RecentEpisodes(ctx context.Context, n int) ([]memory.Episode, error) {
	if n <= 0 {
		n = 20
	}
	values, err := c.client.LRange(ctx, c.key, 0, int64(n-1)).Result()
	if err != nil {
		return c.backend.RecentEpisodes(ctx, n)
	}
	episodes := make([]memory.Episode, 0, len(values))
	for _, value := range values {
		var episode memory.Episode
		if err := json.Unmarshal([]byte(value), &episode); err != nil {
			continue
		}
		episodes = append(episodes, episode)
	}
	if len(episodes) == 0 {
		return c.backend.RecentEpisodes(ctx, n)
	}
	return episodes, nil
}

// SimilarDocuments 知识检索直接委托底层档案。
func (c *Cache) SimilarDocuments(ctx context.Context, text string, n int) ([]memory.Document, error) {
	return c.backend.SimilarDocuments(ctx, text, n)
}

// Close 关闭 Redis 连接。
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

var _ memory.Archive = (*Cache)(nil)
