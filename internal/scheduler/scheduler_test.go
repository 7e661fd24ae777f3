package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/investable/accessgate/internal/accessgate/types"
	"github.com/investable/accessgate/internal/scheduler"
	"github.com/investable/accessgate/internal/statuscache"
)

var epoch = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type fakeResp struct {
	recs []types.AccessRequest
	err  error
}

// fakeLedger answers ListByRequester from its records, or from scripted
// responses when script is set.
type fakeLedger struct {
	mu      sync.Mutex
	recs    []types.AccessRequest
	err     error
	calls   int
	release chan struct{}
	script  chan fakeResp
}

func (f *fakeLedger) ListByRequester(ctx context.Context, requesterID string) ([]types.AccessRequest, error) {
	f.mu.Lock()
	f.calls++
	release, script := f.release, f.script
	f.mu.Unlock()

	if release != nil {
		<-release
	}
	if script != nil {
		r := <-script
		return r.recs, r.err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []types.AccessRequest
	for _, r := range f.recs {
		if r.RequesterID == requesterID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeLedger) setStatus(id string, status types.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.recs {
		if f.recs[i].ID == id {
			f.recs[i].Status = status
		}
	}
}

func (f *fakeLedger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func acmeRequest(status types.Status) types.AccessRequest {
	return types.AccessRequest{
		ID:            "r-1",
		ResourceID:    "c-1",
		ResourceName:  "Acme",
		RequesterID:   "inv@x.com",
		RequesterName: "Ivy",
		Status:        status,
		CreatedAt:     epoch.Add(-time.Hour),
	}
}

type harness struct {
	clock  *clockwork.FakeClock
	cache  *statuscache.Cache
	ledger *fakeLedger
	sched  *scheduler.Scheduler
}

func newHarness(t *testing.T, ledger *fakeLedger) *harness {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	cache := statuscache.New(statuscache.NewMemoryBackend(), statuscache.WithClock(clock))
	sched := scheduler.New(cache, ledger, scheduler.Config{Clock: clock}, zap.NewNop())
	return &harness{clock: clock, cache: cache, ledger: ledger, sched: sched}
}

func viewer() scheduler.Target {
	return scheduler.Target{RequesterID: "inv@x.com", ResourceID: "c-1", Kind: types.PrincipalGatedViewer}
}

func recorder() (chan scheduler.Resolution, func(scheduler.Resolution)) {
	ch := make(chan scheduler.Resolution, 64)
	return ch, func(r scheduler.Resolution) { ch <- r }
}

func next(t *testing.T, ch <-chan scheduler.Resolution) scheduler.Resolution {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for resolution")
	}
	return scheduler.Resolution{}
}

// waitFor drains resolutions until one matches.
func waitFor(t *testing.T, ch <-chan scheduler.Resolution, match func(scheduler.Resolution) bool) scheduler.Resolution {
	t.Helper()
	for {
		if r := next(t, ch); match(r) {
			return r
		}
	}
}

func resolvedAs(status types.Status) func(scheduler.Resolution) bool {
	return func(r scheduler.Resolution) bool { return r.Resolved && r.Status == status }
}

func TestMount_FreshCacheResolvesWithoutFetch(t *testing.T) {
	h := newHarness(t, &fakeLedger{})
	ctx := context.Background()
	if err := h.cache.Put(ctx, "inv@x.com", "c-1", types.StatusApproved); err != nil {
		t.Fatalf("Put: %v", err)
	}
	h.clock.Advance(4 * time.Minute)

	v := h.sched.Mount(ctx, viewer(), nil)
	defer v.Close()

	res := v.Resolution()
	if !res.Resolved || res.Status != types.StatusApproved || res.Source != scheduler.SourceCache {
		t.Fatalf("unexpected resolution: %+v", res)
	}
	h.sched.Wait()
	if n := h.ledger.callCount(); n != 0 {
		t.Fatalf("expected zero fetches, got %d", n)
	}
}

func TestMount_MissIsUnresolvedUntilFetchLands(t *testing.T) {
	release := make(chan struct{})
	ledger := &fakeLedger{recs: []types.AccessRequest{acmeRequest(types.StatusDenied)}, release: release}
	h := newHarness(t, ledger)
	ch, onChange := recorder()

	v := h.sched.Mount(context.Background(), viewer(), onChange)
	defer v.Close()

	if res := v.Resolution(); res.Resolved {
		t.Fatalf("view must be unresolved while the fetch is in flight: %+v", res)
	}
	if first := next(t, ch); first.Resolved {
		t.Fatalf("first notification should be unresolved: %+v", first)
	}

	close(release)
	res := waitFor(t, ch, resolvedAs(types.StatusDenied))
	if res.Source != scheduler.SourceLedger {
		t.Errorf("source = %q, want ledger", res.Source)
	}

	e, ok := h.cache.Get(context.Background(), "inv@x.com", "c-1")
	if !ok || e.Status != types.StatusDenied {
		t.Fatalf("fetch result should be cached, got %+v ok=%v", e, ok)
	}
}

func TestMount_NoRequestIsUnknown(t *testing.T) {
	h := newHarness(t, &fakeLedger{})
	ch, onChange := recorder()

	v := h.sched.Mount(context.Background(), viewer(), onChange)
	defer v.Close()

	waitFor(t, ch, resolvedAs(types.StatusUnknown))
}

func TestApprovalScenario(t *testing.T) {
	ledger := &fakeLedger{recs: []types.AccessRequest{acmeRequest(types.StatusPending)}}
	h := newHarness(t, ledger)
	ch, onChange := recorder()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v := h.sched.Mount(context.Background(), viewer(), onChange)
	defer v.Close()

	waitFor(t, ch, resolvedAs(types.StatusPending))
	if err := h.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("poll timer not armed: %v", err)
	}

	// An approver acts in another session.
	ledger.setStatus("r-1", types.StatusApproved)
	h.clock.Advance(31 * time.Second)

	waitFor(t, ch, resolvedAs(types.StatusApproved))
	if n := ledger.callCount(); n != 2 {
		t.Fatalf("expected 2 fetches, got %d", n)
	}

	e, ok := h.cache.Get(context.Background(), "inv@x.com", "c-1")
	if !ok || e.Status != types.StatusApproved {
		t.Fatalf("cache should hold approved, got %+v ok=%v", e, ok)
	}
}

func TestPollStopsOnceTerminal(t *testing.T) {
	ledger := &fakeLedger{recs: []types.AccessRequest{acmeRequest(types.StatusPending)}}
	h := newHarness(t, ledger)
	ch, onChange := recorder()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v := h.sched.Mount(context.Background(), viewer(), onChange)
	defer v.Close()
	waitFor(t, ch, resolvedAs(types.StatusPending))

	// Still pending after one poll: the timer is re-armed.
	if err := h.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("poll timer not armed: %v", err)
	}
	h.clock.Advance(30 * time.Second)
	waitFor(t, ch, resolvedAs(types.StatusPending))
	if err := h.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("poll timer not re-armed: %v", err)
	}

	ledger.setStatus("r-1", types.StatusDenied)
	h.clock.Advance(30 * time.Second)
	waitFor(t, ch, resolvedAs(types.StatusDenied))
	calls := ledger.callCount()

	for i := 0; i < 5; i++ {
		h.clock.Advance(time.Minute)
	}
	time.Sleep(50 * time.Millisecond)
	h.sched.Wait()
	if n := ledger.callCount(); n != calls {
		t.Fatalf("poll continued after terminal status: %d -> %d fetches", calls, n)
	}
}

func TestFetchFailureFailsClosed(t *testing.T) {
	ledger := &fakeLedger{err: errors.New("connection refused")}
	h := newHarness(t, ledger)
	ch, onChange := recorder()

	v := h.sched.Mount(context.Background(), viewer(), onChange)
	defer v.Close()

	res := waitFor(t, ch, func(r scheduler.Resolution) bool { return r.Err != nil })
	if res.Resolved {
		t.Fatalf("failed fetch must leave the view unresolved: %+v", res)
	}
	if _, ok := h.cache.Get(context.Background(), "inv@x.com", "c-1"); ok {
		t.Fatal("failed fetch must not write the cache")
	}
}

func TestFetchFailureWhilePendingKeepsPolling(t *testing.T) {
	ledger := &fakeLedger{recs: []types.AccessRequest{acmeRequest(types.StatusPending)}}
	h := newHarness(t, ledger)
	ch, onChange := recorder()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v := h.sched.Mount(context.Background(), viewer(), onChange)
	defer v.Close()
	waitFor(t, ch, resolvedAs(types.StatusPending))

	ledger.mu.Lock()
	ledger.err = errors.New("503")
	ledger.mu.Unlock()

	if err := h.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("poll timer not armed: %v", err)
	}
	h.clock.Advance(30 * time.Second)
	waitFor(t, ch, func(r scheduler.Resolution) bool { return r.Err != nil && !r.Resolved })

	ledger.mu.Lock()
	ledger.err = nil
	ledger.mu.Unlock()
	ledger.setStatus("r-1", types.StatusApproved)

	if err := h.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("poll timer not re-armed after failure: %v", err)
	}
	h.clock.Advance(30 * time.Second)
	waitFor(t, ch, resolvedAs(types.StatusApproved))
}

func TestFocus_ForcesFetchDespiteFreshCache(t *testing.T) {
	ledger := &fakeLedger{recs: []types.AccessRequest{acmeRequest(types.StatusApproved)}}
	h := newHarness(t, ledger)
	_ = h.cache.Put(context.Background(), "inv@x.com", "c-1", types.StatusPending)
	ch, onChange := recorder()

	v := h.sched.Mount(context.Background(), viewer(), onChange)
	defer v.Close()
	waitFor(t, ch, resolvedAs(types.StatusPending))

	focus := make(chan struct{})
	v.ListenFocus(focus)
	focus <- struct{}{}

	res := waitFor(t, ch, resolvedAs(types.StatusApproved))
	if res.Source != scheduler.SourceLedger {
		t.Fatalf("source = %q, want ledger", res.Source)
	}
}

func TestNonGatedPrincipalsBypass(t *testing.T) {
	for _, kind := range []types.PrincipalKind{types.PrincipalOperator, types.PrincipalApprover} {
		t.Run(kind.String(), func(t *testing.T) {
			h := newHarness(t, &fakeLedger{})
			target := viewer()
			target.Kind = kind

			v := h.sched.Mount(context.Background(), target, nil)
			defer v.Close()

			res := v.Resolution()
			if !res.Resolved || res.Source != scheduler.SourceBypass {
				t.Fatalf("unexpected resolution: %+v", res)
			}
			v.Focus()
			v.Reload()
			h.sched.Wait()
			if n := h.ledger.callCount(); n != 0 {
				t.Fatalf("expected no fetches, got %d", n)
			}
		})
	}
}

func TestClose_DiscardsInFlightResults(t *testing.T) {
	release := make(chan struct{})
	ledger := &fakeLedger{recs: []types.AccessRequest{acmeRequest(types.StatusApproved)}, release: release}
	h := newHarness(t, ledger)
	ch, onChange := recorder()

	v := h.sched.Mount(context.Background(), viewer(), onChange)
	next(t, ch)

	v.Close()
	v.Close()
	close(release)
	h.sched.Wait()

	if res := v.Resolution(); res.Resolved {
		t.Fatalf("closed view must not resolve: %+v", res)
	}
	if _, ok := h.cache.Get(context.Background(), "inv@x.com", "c-1"); ok {
		t.Fatal("closed view must not write the cache")
	}
	select {
	case r := <-ch:
		t.Fatalf("unexpected notification after close: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}

	v.Focus()
	h.sched.Wait()
	if n := ledger.callCount(); n != 1 {
		t.Fatalf("focus on closed view fetched: %d calls", n)
	}
}

func TestLastReceivedResponseWins(t *testing.T) {
	script := make(chan fakeResp)
	ledger := &fakeLedger{script: script}
	h := newHarness(t, ledger)
	ch, onChange := recorder()

	v := h.sched.Mount(context.Background(), viewer(), onChange)
	defer v.Close()
	next(t, ch)
	v.Focus()

	// Two fetches are in flight; answer one with pending, the other later
	// with approved.
	script <- fakeResp{recs: []types.AccessRequest{acmeRequest(types.StatusPending)}}
	waitFor(t, ch, resolvedAs(types.StatusPending))
	script <- fakeResp{recs: []types.AccessRequest{acmeRequest(types.StatusApproved)}}
	waitFor(t, ch, resolvedAs(types.StatusApproved))

	e, ok := h.cache.Get(context.Background(), "inv@x.com", "c-1")
	if !ok || e.Status != types.StatusApproved {
		t.Fatalf("cache should reflect the last response, got %+v ok=%v", e, ok)
	}
}

func TestParentContextCancelClosesView(t *testing.T) {
	h := newHarness(t, &fakeLedger{})
	ctx, cancel := context.WithCancel(context.Background())

	v := h.sched.Mount(ctx, viewer(), nil)
	cancel()

	select {
	case <-v.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("view not torn down")
	}
}

func TestMountOnDoneContext(t *testing.T) {
	h := newHarness(t, &fakeLedger{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 200; i++ {
		v := h.sched.Mount(ctx, viewer(), nil)
		select {
		case <-v.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("view mounted on a done context was not torn down")
		}
		v.Close()
	}
	h.sched.Wait()
}
