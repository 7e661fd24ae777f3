package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/investable/accessgate/internal/accessgate/lifecycle"
	"github.com/investable/accessgate/internal/accessgate/service"
	"github.com/investable/accessgate/internal/accessgate/store"
	"github.com/investable/accessgate/internal/accessgate/store/memory"
	sqlitestore "github.com/investable/accessgate/internal/accessgate/store/sqlite"
	"github.com/investable/accessgate/internal/accessgate/types"
	"github.com/investable/accessgate/internal/db"
	"github.com/investable/accessgate/internal/metrics"
)

func newService(t *testing.T) (*service.LedgerService, *metrics.Ledger, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	m := metrics.NewLedger(prometheus.NewRegistry())
	svc := service.NewLedgerService(memory.NewAccessRequestStore(),
		service.WithClock(clock),
		service.WithMetrics(m),
	)
	return svc, m, clock
}

func validCreate() types.CreateAccessRequest {
	return types.CreateAccessRequest{
		ResourceID:    "c-1",
		ResourceName:  "Acme",
		RequesterID:   "inv@x.com",
		RequesterName: "Ivy Investor",
	}
}

func TestCreate_AssignsIDAndPending(t *testing.T) {
	svc, m, clock := newService(t)

	rec, err := svc.Create(context.Background(), validCreate())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID == "" {
		t.Error("expected ledger-assigned id")
	}
	if rec.Status != types.StatusPending {
		t.Errorf("status = %q, want pending", rec.Status)
	}
	if !rec.CreatedAt.Equal(clock.Now()) {
		t.Errorf("createdAt = %v, want %v", rec.CreatedAt, clock.Now())
	}
	if got := testutil.ToFloat64(m.Created); got != 1 {
		t.Errorf("created counter = %v, want 1", got)
	}

	again, _ := svc.Create(context.Background(), validCreate())
	if again.ID == rec.ID {
		t.Error("ids must be unique")
	}
}

func TestCreate_NormalizesRequester(t *testing.T) {
	svc, _, _ := newService(t)
	req := validCreate()
	req.RequesterID = "  Inv@X.com "

	rec, err := svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.RequesterID != "inv@x.com" {
		t.Errorf("requesterId = %q", rec.RequesterID)
	}

	list, _ := svc.ListByRequester(context.Background(), "INV@x.com")
	if len(list) != 1 {
		t.Errorf("expected lookup by any casing, got %d", len(list))
	}
}

func TestCreate_Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*types.CreateAccessRequest)
		want   error
	}{
		{"missing resource id", func(r *types.CreateAccessRequest) { r.ResourceID = " " }, service.ErrInvalidResourceID},
		{"missing resource name", func(r *types.CreateAccessRequest) { r.ResourceName = "" }, service.ErrInvalidResourceName},
		{"requester not email", func(r *types.CreateAccessRequest) { r.RequesterID = "investor" }, service.ErrInvalidRequesterID},
		{"requester display form", func(r *types.CreateAccessRequest) { r.RequesterID = "Ivy <inv@x.com>" }, service.ErrInvalidRequesterID},
		{"missing requester name", func(r *types.CreateAccessRequest) { r.RequesterName = "" }, service.ErrInvalidRequesterName},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _, _ := newService(t)
			req := validCreate()
			tc.mutate(&req)

			if _, err := svc.Create(context.Background(), req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestUpdateStatus_IdempotentRejection(t *testing.T) {
	svc, m, _ := newService(t)
	ctx := context.Background()
	rec, _ := svc.Create(ctx, validCreate())

	got, err := svc.UpdateStatus(ctx, rec.ID, types.StatusApproved)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got.Status != types.StatusApproved {
		t.Fatalf("status = %q", got.Status)
	}

	if _, err := svc.UpdateStatus(ctx, rec.ID, types.StatusApproved); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("second approve: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, rec.ID, types.StatusDenied); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("deny after approve: expected ErrInvalidTransition, got %v", err)
	}

	list, _ := svc.ListByRequester(ctx, "inv@x.com")
	if list[0].Status != types.StatusApproved {
		t.Errorf("record changed: %q", list[0].Status)
	}

	if got := testutil.ToFloat64(m.Transitions.WithLabelValues("approved", "applied")); got != 1 {
		t.Errorf("applied counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Transitions.WithLabelValues("approved", "rejected")); got != 1 {
		t.Errorf("rejected counter = %v, want 1", got)
	}
}

func TestUpdateStatus_Errors(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	rec, _ := svc.Create(ctx, validCreate())

	if _, err := svc.UpdateStatus(ctx, "nope", types.StatusApproved); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, rec.ID, types.StatusPending); !errors.Is(err, lifecycle.ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, rec.ID, types.Status("revoked")); !errors.Is(err, lifecycle.ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, "", types.StatusApproved); !errors.Is(err, service.ErrInvalidID) {
		t.Errorf("expected ErrInvalidID, got %v", err)
	}
}

func TestUpdateStatus_ConcurrentDecisionsOnlyOneWins(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	rec, _ := svc.Create(ctx, validCreate())

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 16; i++ {
		target := types.StatusApproved
		if i%2 == 1 {
			target = types.StatusDenied
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.UpdateStatus(ctx, rec.ID, target); err == nil {
				mu.Lock()
				applied++
				mu.Unlock()
			} else if !errors.Is(err, lifecycle.ErrInvalidTransition) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if applied != 1 {
		t.Fatalf("applied = %d, want exactly 1", applied)
	}
}

func TestClear(t *testing.T) {
	svc, m, _ := newService(t)
	ctx := context.Background()
	_, _ = svc.Create(ctx, validCreate())
	_, _ = svc.Create(ctx, validCreate())

	n, err := svc.Clear(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Clear = %d, %v", n, err)
	}
	all, _ := svc.List(ctx)
	if len(all) != 0 {
		t.Errorf("expected empty ledger, got %d", len(all))
	}
	if got := testutil.ToFloat64(m.Cleared); got != 2 {
		t.Errorf("cleared counter = %v", got)
	}
}

func TestCreate_CreatedAtMatchesStoredValue(t *testing.T) {
	conn, err := db.OpenDSN(context.Background(), db.MemoryDSN("service_created_at"), db.SchemaLedger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	w := db.NewWorker(conn)
	t.Cleanup(func() {
		w.Close()
		conn.Close()
	})

	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 12, 0, 0, 123456789, time.UTC))
	svc := service.NewLedgerService(sqlitestore.NewAccessRequestStore(conn, w), service.WithClock(clock))

	rec, err := svc.Create(context.Background(), validCreate())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.CreatedAt.Nanosecond()%int(time.Millisecond) != 0 {
		t.Fatalf("createdAt %v carries sub-millisecond precision", rec.CreatedAt)
	}

	list, err := svc.ListByRequester(context.Background(), "inv@x.com")
	if err != nil {
		t.Fatalf("ListByRequester: %v", err)
	}
	if len(list) != 1 || !list[0].CreatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("stored createdAt %v differs from created %v", list, rec.CreatedAt)
	}
}
