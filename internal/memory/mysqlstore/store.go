// Package mysqlstore 提供基于 MySQL 的经验档案实现。知识检索
// 仍交由进程内档案处理，本包只负责经验记录的持久化。
package mysqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"OpenAgent-Chain/internal/memory"
)

// Config 描述 MySQL 连接参数。
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store 将经验记录写入 MySQL，并按时间倒序读取。
type Store struct {
	db        *sql.DB
	documents memory.Gateway
}

// New 创建连接池并初始化数据表。documents 是可选的知识检索后备，
// 传 nil 时 SimilarDocuments 返回空结果。
func New(ctx context.Context, cfg Config, documents memory.Gateway) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("无法连接到 MySQL: %w", err)
	}

	store := &Store{db: db, documents: documents}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `CREATE TABLE IF NOT EXISTS episodes (
        id VARCHAR(64) PRIMARY KEY,
        objective TEXT NOT NULL,
        goal_id VARCHAR(64) DEFAULT '',
        goal TEXT NOT NULL,
        action VARCHAR(255) DEFAULT '',
        outcome TEXT NOT NULL,
        error TEXT,
        created_at BIGINT NOT NULL,
        INDEX idx_created_at (created_at)
)`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("初始化 episodes 表失败: %w", err)
	}
	return nil
}

// RecordEpisode 将经验记录写入 MySQL。
func (s *Store) RecordEpisode(ctx context.Context, episode memory.Episode) error {
	const stmt = `INSERT INTO episodes
        (id, objective, goal_id, goal, action, outcome, error, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	if episode.CreatedAt == 0 {
		episode.CreatedAt = time.Now().Unix()
	}
	if _, err := s.db.ExecContext(ctx, stmt,
		episode.ID,
		episode.Objective,
		episode.GoalID,
		episode.Goal,
		episode.Action,
		episode.Outcome,
		episode.Error,
		episode.CreatedAt,
	); err != nil {
		return fmt.Errorf("写入经验记录失败: %w", err)
	}
	return nil
}

// RecentEpisodes 查询最近的若干条经验记录。
func (s *Store) RecentEpisodes(ctx context.Context, n int) ([]memory.Episode, error) {
	if n <= 0 {
		n = 20
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, objective, goal_id, goal, action, outcome, error, created_at
        FROM episodes ORDER BY created_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("查询经验记录失败: %w", err)
	}
	defer rows.Close()

	var episodes []memory.Episode
	for rows.Next() {
		var episode memory.Episode
		var errText sql.NullString
		if err := rows.Scan(&episode.ID, &episode.Objective, &episode.GoalID, &episode.Goal,
			&episode.Action, &episode.Outcome, &errText, &episode.CreatedAt); err != nil {
			return nil, fmt.Errorf("解析经验记录失败: %w", err)
		}
		episode.Error = errText.String
		episodes = append(episodes, episode)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历经验记录失败: %w", err)
	}
	return episodes, nil
}

// SimilarDocuments 委托给配置的知识检索后备。
func (s *Store) SimilarDocuments(ctx context.Context, text string, n int) ([]memory.Document, error) {
	if s.documents == nil {
		return nil, nil
	}
	return s.documents.SimilarDocuments(ctx, text, n)
}

// Close 关闭底层数据库连接。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ memory.Archive = (*Store)(nil)
