package run

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedRun(t *testing.T, store *MemoryStore, r *Run) {
	t.Helper()
	if r.MaxRetries == 0 {
		r.MaxRetries = 3
	}
	if err := store.Create(context.Background(), r); err != nil {
		t.Fatalf("create run %s: %v", r.ID, err)
	}
}

func rewriteTimestamps(store *MemoryStore, stamps map[string]int64) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for id, ts := range stamps {
		if r, ok := store.runs[id]; ok {
			r.UpdatedAt = ts
			r.CreatedAt = ts
		}
	}
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seedRun(t, store, &Run{ID: "run-1", Objective: "盘点链上资产", Status: StatusPending})

	if err := store.Create(ctx, &Run{ID: "run-1", Objective: "重复"}); !errors.Is(err, ErrRunConflict) {
		t.Fatalf("expected ErrRunConflict, got %v", err)
	}

	r, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if r.Status != StatusPending || r.UpdatedAt == 0 {
		t.Fatalf("unexpected run %+v", r)
	}
	// Get 返回副本，调用方的修改不能穿透存储。
	r.Status = StatusFailed
	again, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if again.Status != StatusPending {
		t.Fatalf("mutation leaked into store: %s", again.Status)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestMemoryStoreClaimGuards(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedRun(t, store, &Run{ID: "run-1", Objective: "obj", Status: StatusPending, MaxRetries: 2})

	claimed, err := store.Claim(ctx, "run-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusRunning || claimed.Attempts != 1 {
		t.Fatalf("unexpected claimed run %+v", claimed)
	}

	// 正在运行中的运行不能被再次领取。
	if _, err := store.Claim(ctx, "run-1"); !errors.Is(err, ErrRunConflict) {
		t.Fatalf("expected ErrRunConflict, got %v", err)
	}

	if err := store.MarkFailed(ctx, "run-1", CodeRunProcessing, "boom", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "run-1"); err != nil {
		t.Fatalf("failed run with remaining attempts must be claimable: %v", err)
	}
	if err := store.MarkFailed(ctx, "run-1", CodeRunProcessing, "boom", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	// 重试次数耗尽。
	if _, err := store.Claim(ctx, "run-1"); !errors.Is(err, ErrRunExhausted) {
		t.Fatalf("expected ErrRunExhausted, got %v", err)
	}
}

func TestMemoryStoreClaimCompletedRun(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedRun(t, store, &Run{ID: "run-1", Objective: "obj", Status: StatusPending})

	if _, err := store.Claim(ctx, "run-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "run-1", Outcome{Completed: 2, Attempted: 2, Summary: "完成 2/2 个目标"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	r, err := store.Claim(ctx, "run-1")
	if !errors.Is(err, ErrRunCompleted) {
		t.Fatalf("expected ErrRunCompleted, got %v", err)
	}
	if r == nil || r.Outcome == nil || r.Outcome.Completed != 2 {
		t.Fatalf("completed run should be returned with its outcome, got %+v", r)
	}
	if r.LastError != "" || r.ErrorCode != "" {
		t.Fatalf("succeeded run must clear error fields, got %+v", r)
	}
}

func TestMemoryStoreListWithFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seedRun(t, store, &Run{ID: "run-a", Objective: "查询以太坊余额", Status: StatusPending})
	seedRun(t, store, &Run{ID: "run-b", Objective: "归档旧数据", Status: StatusPending})
	seedRun(t, store, &Run{ID: "run-c", Objective: "同步区块头", Status: StatusPending})

	if _, err := store.Claim(ctx, "run-b"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "run-b", Outcome{Completed: 1, Attempted: 1, Summary: "完成 1/1 个目标"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	if _, err := store.Claim(ctx, "run-c"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkFailed(ctx, "run-c", CodeRunProcessing, "rpc unavailable", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	// 固定时间戳让排序断言稳定。
	rewriteTimestamps(store, map[string]int64{
		"run-a": 100,
		"run-b": 200,
		"run-c": 300,
	})

	all, err := store.List(ctx, buildListOptions(nil))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != "run-c" || all[2].ID != "run-a" {
		t.Fatalf("default order must be newest first, got %v", runIDs(all))
	}

	asc, err := store.List(ctx, buildListOptions([]ListOption{WithSortOrder(SortByUpdatedAsc)}))
	if err != nil {
		t.Fatalf("list asc: %v", err)
	}
	if asc[0].ID != "run-a" {
		t.Fatalf("ascending order should start with oldest, got %v", runIDs(asc))
	}

	failed, err := store.List(ctx, buildListOptions([]ListOption{WithStatuses(StatusFailed)}))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "run-c" {
		t.Fatalf("status filter mismatch: %v", runIDs(failed))
	}

	since, err := store.List(ctx, buildListOptions([]ListOption{WithUpdatedSince(time.Unix(200, 0))}))
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(since) != 2 {
		t.Fatalf("expected 2 runs updated since 200, got %v", runIDs(since))
	}

	withOutcome, err := store.List(ctx, buildListOptions([]ListOption{WithOutcomePresence(true)}))
	if err != nil {
		t.Fatalf("list with outcome: %v", err)
	}
	if len(withOutcome) != 1 || withOutcome[0].ID != "run-b" {
		t.Fatalf("outcome filter mismatch: %v", runIDs(withOutcome))
	}

	matched, err := store.List(ctx, buildListOptions([]ListOption{WithQuery("以太坊")}))
	if err != nil {
		t.Fatalf("list query: %v", err)
	}
	if len(matched) != 1 || matched[0].ID != "run-a" {
		t.Fatalf("query filter mismatch: %v", runIDs(matched))
	}

	paged, err := store.List(ctx, buildListOptions([]ListOption{WithLimit(1), WithOffset(1)}))
	if err != nil {
		t.Fatalf("list paged: %v", err)
	}
	if len(paged) != 1 || paged[0].ID != "run-b" {
		t.Fatalf("pagination mismatch: %v", runIDs(paged))
	}
}

func TestMemoryStoreStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seedRun(t, store, &Run{ID: "run-a", Objective: "a", Status: StatusPending})
	seedRun(t, store, &Run{ID: "run-b", Objective: "b", Status: StatusPending})
	seedRun(t, store, &Run{ID: "run-c", Objective: "c", Status: StatusPending})

	if _, err := store.Claim(ctx, "run-b"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := store.Claim(ctx, "run-c"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "run-c", Outcome{Completed: 1}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	rewriteTimestamps(store, map[string]int64{
		"run-a": 100,
		"run-b": 200,
		"run-c": 300,
	})

	stats, err := store.Stats(ctx, buildListOptions(nil))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 1 || stats.Running != 1 || stats.Succeeded != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.OldestUpdatedAt != 100 || stats.NewestUpdatedAt != 300 {
		t.Fatalf("unexpected time range %+v", stats)
	}

	empty, err := store.Stats(ctx, buildListOptions([]ListOption{WithStatuses(StatusFailed)}))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if empty.Total != 0 || empty.OldestUpdatedAt != 0 || empty.NewestUpdatedAt != 0 {
		t.Fatalf("empty stats must zero the time range, got %+v", empty)
	}
}

func runIDs(runs []*Run) []string {
	ids := make([]string, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	return ids
}
