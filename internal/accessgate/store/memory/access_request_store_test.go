package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/investable/accessgate/internal/accessgate/store"
	"github.com/investable/accessgate/internal/accessgate/store/memory"
	"github.com/investable/accessgate/internal/accessgate/types"
)

func TestAccessRequestStore_UpdateStatusIsCompareAndSet(t *testing.T) {
	s := memory.NewAccessRequestStore()
	ctx := context.Background()

	rec := types.AccessRequest{ID: "r-1", RequesterID: "inv@x.com", ResourceID: "c-1", Status: types.StatusPending, CreatedAt: time.Now()}
	if err := s.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, rec); !errors.Is(err, store.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}

	if _, err := s.UpdateStatus(ctx, "r-1", types.StatusPending, types.StatusDenied); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got, err := s.UpdateStatus(ctx, "r-1", types.StatusPending, types.StatusApproved)
	if !errors.Is(err, store.ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict, got %v", err)
	}
	if got.Status != types.StatusDenied {
		t.Errorf("status = %q, want denied", got.Status)
	}
	if _, err := s.UpdateStatus(ctx, "nope", types.StatusPending, types.StatusApproved); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAccessRequestStore_ListOrderingAndDeleteAll(t *testing.T) {
	s := memory.NewAccessRequestStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_ = s.Create(ctx, types.AccessRequest{ID: "b", RequesterID: "inv@x.com", CreatedAt: base})
	_ = s.Create(ctx, types.AccessRequest{ID: "a", RequesterID: "inv@x.com", CreatedAt: base})
	_ = s.Create(ctx, types.AccessRequest{ID: "c", RequesterID: "other@x.com", CreatedAt: base.Add(-time.Hour)})

	mine, _ := s.ListByRequester(ctx, "inv@x.com")
	if len(mine) != 2 || mine[0].ID != "a" || mine[1].ID != "b" {
		t.Fatalf("unexpected order: %+v", mine)
	}
	all, _ := s.List(ctx)
	if len(all) != 3 || all[0].ID != "c" {
		t.Fatalf("unexpected full list: %+v", all)
	}

	n, err := s.DeleteAll(ctx)
	if err != nil || n != 3 {
		t.Fatalf("DeleteAll = %d, %v", n, err)
	}
}
