package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/investable/accessgate/internal/accessgate/types"
)

type Source string

const (
	SourceNone   Source = ""
	SourceCache  Source = "cache"
	SourceLedger Source = "ledger"
	SourceBypass Source = "bypass"
)

// Resolution is what a view currently knows. Status is meaningful only
// when Resolved is true; an unresolved view must render as loading.
type Resolution struct {
	Status     types.Status
	Resolved   bool
	Source     Source
	ObservedAt time.Time

	// Err is the failure of the most recent fetch, if it failed.
	Err error
}

// Target names the pair a view watches and who is looking.
type Target struct {
	RequesterID string
	ResourceID  string
	Kind        types.PrincipalKind
}

// View is one mounted (requester, resource) pair.
type View struct {
	s         *Scheduler
	target    Target
	onChange  func(Resolution)
	ctx       context.Context
	cancel    context.CancelFunc
	stopWatch func() bool

	mu        sync.Mutex
	closed    bool
	res       Resolution
	lastKnown types.Status
	pollTimer clockwork.Timer
	pollGen   uint64

	qmu   sync.Mutex
	queue []Resolution
	wake  chan struct{}
}

// Mount starts watching target. onChange, if set, receives every
// resolution change in order on a dedicated goroutine, so it may call back
// into the view. Cancelling ctx closes the view.
func (s *Scheduler) Mount(ctx context.Context, target Target, onChange func(Resolution)) *View {
	target.RequesterID = types.NormalizeIdentity(target.RequesterID)

	vctx, cancel := context.WithCancel(ctx)
	v := &View{
		s:        s,
		target:   target,
		onChange: onChange,
		ctx:      vctx,
		cancel:   cancel,
		wake:     make(chan struct{}, 1),
	}
	// Close may run as soon as AfterFunc registers when ctx is already
	// done; it reads stopWatch under mu.
	v.mu.Lock()
	v.stopWatch = context.AfterFunc(ctx, v.Close)
	v.mu.Unlock()

	if onChange != nil {
		go v.dispatch()
	}

	if !target.Kind.Gated() {
		v.mu.Lock()
		v.res = Resolution{Status: types.StatusUnknown, Resolved: true, Source: SourceBypass}
		v.publishLocked()
		v.mu.Unlock()
		return v
	}

	v.Reload()
	return v
}

func (v *View) Target() Target { return v.target }

func (v *View) Resolution() Resolution {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.res
}

// Reload runs the cold-read path again: resolve from a fresh cache entry,
// or go unresolved and fetch.
func (v *View) Reload() {
	if !v.target.Kind.Gated() {
		return
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}

	if e, ok := v.s.cache.Get(v.ctx, v.target.RequesterID, v.target.ResourceID); ok {
		v.res = Resolution{Status: e.Status, Resolved: true, Source: SourceCache, ObservedAt: e.ObservedAt}
		v.lastKnown = e.Status
		v.syncPollLocked()
		v.publishLocked()
		v.mu.Unlock()
		return
	}

	v.res = Resolution{Status: types.StatusUnknown}
	v.publishLocked()
	v.startFetchLocked("miss")
	v.mu.Unlock()
}

// Focus forces a fetch regardless of cache freshness. It is a no-op for
// non-gated principals and closed views.
func (v *View) Focus() {
	if !v.target.Kind.Gated() {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.startFetchLocked("focus")
}

// ListenFocus calls Focus for every signal on ch until the view closes.
func (v *View) ListenFocus(ch <-chan struct{}) {
	go func() {
		for {
			select {
			case <-v.ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				v.Focus()
			}
		}
	}()
}

// Close tears the view down: the poll timer stops, focus handling detaches,
// and results of fetches still in flight are discarded. Safe to call more
// than once.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.stopPollLocked()
	stopWatch := v.stopWatch
	v.mu.Unlock()

	v.cancel()
	if stopWatch != nil {
		stopWatch()
	}
}

// Done is closed once the view has been torn down.
func (v *View) Done() <-chan struct{} { return v.ctx.Done() }

func (v *View) startFetchLocked(trigger string) {
	v.s.inflight.Add(1)
	go func() {
		defer v.s.inflight.Done()
		v.refresh(trigger)
	}()
}

func (v *View) refresh(trigger string) {
	status, err := v.s.Fetch(v.ctx, v.target.RequesterID, v.target.ResourceID)
	v.apply(trigger, status, err)
}

// apply records a fetch result. Results land in completion order, so the
// last response received wins.
func (v *View) apply(trigger string, status types.Status, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	log := v.s.logger.With(
		zap.String("requester_id", v.target.RequesterID),
		zap.String("resource_id", v.target.ResourceID),
		zap.String("trigger", trigger),
	)

	if v.closed || v.ctx.Err() != nil {
		log.Debug("discarding fetch result for closed view")
		return
	}

	if err != nil {
		log.Warn("status fetch failed", zap.Error(err))
		v.res = Resolution{Status: types.StatusUnknown, Err: err}
		v.syncPollLocked()
		v.publishLocked()
		return
	}

	if err := v.s.cache.Put(v.ctx, v.target.RequesterID, v.target.ResourceID, status); err != nil {
		log.Warn("status cache write failed", zap.Error(err))
	}
	v.res = Resolution{
		Status:     status,
		Resolved:   true,
		Source:     SourceLedger,
		ObservedAt: v.s.clock.Now().UTC(),
	}
	v.lastKnown = status
	v.syncPollLocked()
	v.publishLocked()

	log.Debug("status revalidated", zap.String("status", string(status)))
}

// syncPollLocked arms the poll timer while the last known status is
// pending, or while a view that never resolved keeps failing, and stops it
// otherwise.
func (v *View) syncPollLocked() {
	want := v.lastKnown == types.StatusPending ||
		(v.lastKnown == "" && v.res.Err != nil)

	switch {
	case want && v.pollTimer == nil:
		v.pollGen++
		gen := v.pollGen
		v.pollTimer = v.s.clock.AfterFunc(v.s.pollInterval, func() {
			go v.onPollTimer(gen)
		})
	case !want && v.pollTimer != nil:
		v.stopPollLocked()
	}
}

func (v *View) stopPollLocked() {
	if v.pollTimer != nil {
		v.pollTimer.Stop()
		v.pollTimer = nil
	}
	v.pollGen++
}

func (v *View) onPollTimer(gen uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	// A timer stopped after it fired, or replaced since, is stale.
	if v.closed || gen != v.pollGen {
		return
	}
	v.pollTimer = nil
	v.startFetchLocked("poll")
}

func (v *View) publishLocked() {
	if v.onChange == nil {
		return
	}
	v.qmu.Lock()
	v.queue = append(v.queue, v.res)
	v.qmu.Unlock()

	select {
	case v.wake <- struct{}{}:
	default:
	}
}

func (v *View) dispatch() {
	for {
		select {
		case <-v.ctx.Done():
			return
		case <-v.wake:
		}

		for {
			v.qmu.Lock()
			batch := v.queue
			v.queue = nil
			v.qmu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, res := range batch {
				if v.ctx.Err() != nil {
					return
				}
				v.onChange(res)
			}
		}
	}
}
