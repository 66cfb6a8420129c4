package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestInProcessArchiveRecentEpisodesNewestFirst(t *testing.T) {
	archive := NewInProcessArchive()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		episode := Episode{
			GoalID:    fmt.Sprintf("g%d", i),
			Goal:      fmt.Sprintf("目标 %d", i),
			Outcome:   "completed",
			CreatedAt: int64(100 + i),
		}
		if err := archive.RecordEpisode(ctx, episode); err != nil {
			t.Fatalf("record episode: %v", err)
		}
	}

	episodes, err := archive.RecentEpisodes(ctx, 3)
	if err != nil {
		t.Fatalf("recent episodes: %v", err)
	}
	if len(episodes) != 3 {
		t.Fatalf("expected 3 episodes, got %d", len(episodes))
	}
	for i, want := range []string{"g4", "g3", "g2"} {
		if episodes[i].GoalID != want {
			t.Fatalf("expected newest first, got %v", episodes)
		}
	}

	// n 为 0 时返回全部。
	all, err := archive.RecentEpisodes(ctx, 0)
	if err != nil {
		t.Fatalf("recent episodes: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected all 5 episodes, got %d", len(all))
	}
	// 未指定 ID 的经验会被自动补齐。
	if all[0].ID == "" {
		t.Fatal("recorded episode must receive an id")
	}
}

func TestInProcessArchiveRingCapacity(t *testing.T) {
	archive := NewInProcessArchive(WithCapacity(3))
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if err := archive.RecordEpisode(ctx, Episode{GoalID: fmt.Sprintf("g%d", i)}); err != nil {
			t.Fatalf("record episode: %v", err)
		}
	}

	episodes, err := archive.RecentEpisodes(ctx, 0)
	if err != nil {
		t.Fatalf("recent episodes: %v", err)
	}
	if len(episodes) != 3 {
		t.Fatalf("capacity must cap retained episodes, got %d", len(episodes))
	}
	for i, want := range []string{"g5", "g4", "g3"} {
		if episodes[i].GoalID != want {
			t.Fatalf("oldest episodes must be evicted first, got %v", episodes)
		}
	}
}

func TestInProcessArchiveSimilarDocumentsScoring(t *testing.T) {
	docs := []Document{
		{Title: "以太坊节点运维", Keywords: []string{"以太坊", "节点"}, Tags: []string{"运维"}},
		{Title: "余额查询指南", Keywords: []string{"余额"}},
		{Title: "无关文档", Keywords: []string{"烹饪"}},
	}
	archive := NewInProcessArchive(WithDocuments(docs))
	ctx := context.Background()

	results, err := archive.SimilarDocuments(ctx, "查询以太坊节点上的余额", 0)
	if err != nil {
		t.Fatalf("similar documents: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 matches, got %v", results)
	}
	// 关键词命中更多的文档排在前面。
	if results[0].Title != "以太坊节点运维" || results[1].Title != "余额查询指南" {
		t.Fatalf("unexpected ranking: %v", results)
	}

	none, err := archive.SimilarDocuments(ctx, "完全不相关的内容", 0)
	if err != nil {
		t.Fatalf("similar documents: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no matches, got %v", none)
	}
}

func TestInProcessArchiveMaxResults(t *testing.T) {
	docs := make([]Document, 0, 5)
	for i := 0; i < 5; i++ {
		docs = append(docs, Document{
			Title:    fmt.Sprintf("doc-%d", i),
			Keywords: []string{"链"},
		})
	}
	archive := NewInProcessArchive(WithDocuments(docs), WithMaxResults(2))

	results, err := archive.SimilarDocuments(context.Background(), "链上盘点", 0)
	if err != nil {
		t.Fatalf("similar documents: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("default limit must apply, got %d", len(results))
	}

	// 显式的 n 覆盖默认上限。
	results, err = archive.SimilarDocuments(context.Background(), "链上盘点", 4)
	if err != nil {
		t.Fatalf("similar documents: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("explicit limit must win, got %d", len(results))
	}
}

func TestLoadDocuments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "knowledge.json")
	docs := []Document{
		{Title: "链上数据入门", Content: "……", Keywords: []string{"链"}},
	}
	payload, err := json.Marshal(docs)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	loaded, err := LoadDocuments(path)
	if err != nil {
		t.Fatalf("load documents: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Title != "链上数据入门" {
		t.Fatalf("unexpected documents %v", loaded)
	}

	if _, err := LoadDocuments(""); err == nil {
		t.Fatal("empty path must be rejected")
	}
	if _, err := LoadDocuments(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("missing file must be an error")
	}
}
