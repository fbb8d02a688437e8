package execlog

import (
	"context"
	"errors"
	"testing"
)

func seedLogs(t *testing.T, repo *Repository) []ExecutionLog {
	t.Helper()
	ctx := context.Background()
	records := []ExecutionLog{
		{TenantID: 1, ProjectID: 10, PromptID: 100, Version: 1, IsSuccess: true, DurationMs: int64Ptr(100)},
		{TenantID: 1, ProjectID: 10, PromptID: 101, Version: 2, IsSuccess: false, ErrorMessage: "boom"},
		{TenantID: 1, ProjectID: 11, PromptID: 110, Version: 1, IsSuccess: true, TraceID: "0af7651916cd43dd8448eb211c80319c"},
		{TenantID: 2, ProjectID: 10, PromptID: 100, Version: 1, IsSuccess: true},
	}
	for i := range records {
		if err := repo.Create(ctx, &records[i]); err != nil {
			t.Fatalf("seed create failed: %v", err)
		}
	}
	return records
}

func TestRepositoryGetByIDIsTenantScoped(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(initTestDB(t))
	records := seedLogs(t, repo)

	got, err := repo.GetByID(ctx, 1, records[0].ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.ID != records[0].ID || got.TenantID != 1 {
		t.Fatalf("unexpected record: %+v", got)
	}

	// 相同 ID，错误的租户
	if _, err := repo.GetByID(ctx, 2, records[0].ID); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("cross-tenant read must fail with ErrRecordNotFound, got %v", err)
	}

	// 完全不存在的 ID
	if _, err := repo.GetByID(ctx, 1, 99999); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestRepositoryListFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(initTestDB(t))
	seedLogs(t, repo)

	// 租户隔离
	records, total, err := repo.List(ctx, 1, ListFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 3 || len(records) != 3 {
		t.Fatalf("expected 3 logs for tenant 1, got total=%d len=%d", total, len(records))
	}
	for _, rec := range records {
		if rec.TenantID != 1 {
			t.Fatalf("foreign tenant row leaked: %+v", rec)
		}
	}

	// 项目过滤
	records, total, err = repo.List(ctx, 1, ListFilter{ProjectID: 10})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 logs in project 10, got %d", total)
	}

	// 结果过滤
	success := false
	records, total, err = repo.List(ctx, 1, ListFilter{IsSuccess: &success})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 1 || records[0].ErrorMessage != "boom" {
		t.Fatalf("expected the single failed log, got total=%d", total)
	}

	// trace 过滤
	_, total, err = repo.List(ctx, 1, ListFilter{TraceID: "0af7651916cd43dd8448eb211c80319c"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected 1 log for trace, got %d", total)
	}
}

func TestRepositoryFindByIDList(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(initTestDB(t))
	records := seedLogs(t, repo)

	got, err := repo.FindByIDList(ctx, 1, []int64{records[0].ID, records[2].ID, records[3].ID})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	// records[3] 属于租户 2，必须被过滤
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	for _, rec := range got {
		if rec.TenantID != 1 {
			t.Fatalf("foreign tenant row leaked: %+v", rec)
		}
	}

	got, err = repo.FindByIDList(ctx, 1, nil)
	if err != nil {
		t.Fatalf("empty id list must not fail: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("empty id list must return nothing, got %d", len(got))
	}
}

func TestRepositoryDeleteIsTenantScoped(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(initTestDB(t))
	records := seedLogs(t, repo)

	// 错误租户删除不生效
	if err := repo.Delete(ctx, 2, records[0].ID); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("cross-tenant delete must fail, got %v", err)
	}
	if _, err := repo.GetByID(ctx, 1, records[0].ID); err != nil {
		t.Fatalf("record must survive cross-tenant delete: %v", err)
	}

	// 正确租户删除
	if err := repo.Delete(ctx, 1, records[0].ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := repo.GetByID(ctx, 1, records[0].ID); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("record must be gone after delete, got %v", err)
	}
}

func TestRepositoryDeleteByProject(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(initTestDB(t))
	seedLogs(t, repo)

	if err := repo.DeleteByProject(ctx, 1, 10); err != nil {
		t.Fatalf("delete by project failed: %v", err)
	}

	_, total, err := repo.List(ctx, 1, ListFilter{ProjectID: 10})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected project 10 logs removed, got %d", total)
	}

	// 其他项目与其他租户不受影响
	_, total, err = repo.List(ctx, 1, ListFilter{ProjectID: 11})
	if err != nil || total != 1 {
		t.Fatalf("project 11 must be untouched: total=%d err=%v", total, err)
	}
	_, total, err = repo.List(ctx, 2, ListFilter{})
	if err != nil || total != 1 {
		t.Fatalf("tenant 2 must be untouched: total=%d err=%v", total, err)
	}
}
