package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/providers"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/repositories"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/outpatient-scheduling/pkg/errors"
	"github.com/zatekoja/outpatient-scheduling/pkg/retry"
)

// QueueRuntime is the operator's view of today's queue. The store is
// authoritative for membership and order; the local cache is authoritative
// for exclusions (unavailable and completed entries).
type QueueRuntime struct {
	repo     repositories.QueueRepository
	store    providers.QueueCacheStore
	eventBus providers.EventBus
	metrics  *observability.Metrics
	clock    *Clock
	retryCfg retry.Config

	mu     sync.Mutex
	day    time.Time
	view   *entities.QueueView
	cache  *entities.QueueCache
	loaded bool
	// stale is set when the store no longer holds an entry the view lists
	stale bool
}

// NewQueueRuntime creates a runtime. eventBus and metrics may be nil.
func NewQueueRuntime(
	repo repositories.QueueRepository,
	store providers.QueueCacheStore,
	eventBus providers.EventBus,
	metrics *observability.Metrics,
	clock *Clock,
) *QueueRuntime {
	if clock == nil {
		clock = NewClock(nil, nil)
	}
	return &QueueRuntime{
		repo:     repo,
		store:    store,
		eventBus: eventBus,
		metrics:  metrics,
		clock:    clock,
		retryCfg: retry.QuickConfig(),
	}
}

// SetRetryConfig overrides the retry policy for store writes
func (r *QueueRuntime) SetRetryConfig(cfg retry.Config) {
	r.retryCfg = cfg
}

// Reconcile merges a fresh store snapshot with the local cache.
// Completed is the union of locally and remotely completed entries, keyed
// by id. Unavailable is the local set plus store-side unavailable entries,
// minus completed. Active is the snapshot order minus both. Only ids present
// in the snapshot are considered.
func Reconcile(day time.Time, snapshot []*entities.QueueEntry, cache *entities.QueueCache) *entities.QueueView {
	view := &entities.QueueView{
		QueueDate:   entities.DayOf(day),
		Active:      []*entities.QueueEntry{},
		Completed:   []*entities.QueueEntry{},
		Unavailable: []*entities.QueueEntry{},
	}
	if cache == nil || !cache.IsFor(day) {
		cache = entities.NewQueueCache(day)
	}

	snapshotByID := make(map[string]*entities.QueueEntry, len(snapshot))
	for _, e := range snapshot {
		snapshotByID[e.ID] = e
	}

	completedIdx := make(map[string]int)
	addCompleted := func(e *entities.QueueEntry, replace bool) {
		if i, ok := completedIdx[e.ID]; ok {
			if replace {
				view.Completed[i] = e.Clone()
			}
			return
		}
		completedIdx[e.ID] = len(view.Completed)
		view.Completed = append(view.Completed, e.Clone())
	}
	// Cached ids the store no longer holds belong to a queue that has since
	// been rebuilt.
	for _, e := range cache.Completed {
		if _, ok := snapshotByID[e.ID]; ok {
			addCompleted(e, false)
		}
	}
	// A store-confirmed completion replaces the optimistic local copy.
	for _, e := range snapshot {
		if e.IsCompleted() {
			addCompleted(e, true)
		}
	}

	unavailable := make(map[string]bool)
	addUnavailable := func(e *entities.QueueEntry) {
		if _, done := completedIdx[e.ID]; done || unavailable[e.ID] {
			return
		}
		unavailable[e.ID] = true
		c := e.Clone()
		c.Status = entities.QueueEntryStatusUnavailable
		view.Unavailable = append(view.Unavailable, c)
	}
	for _, e := range cache.Unavailable {
		if _, ok := snapshotByID[e.ID]; ok {
			addUnavailable(e)
		}
	}
	for _, e := range snapshot {
		if e.Status == entities.QueueEntryStatusUnavailable {
			addUnavailable(e)
		}
	}

	for _, e := range snapshot {
		if _, done := completedIdx[e.ID]; done || unavailable[e.ID] {
			continue
		}
		view.Active = append(view.Active, e.Clone())
	}

	for _, id := range cache.PendingSync {
		if _, ok := completedIdx[id]; !ok {
			continue
		}
		if e, ok := snapshotByID[id]; ok && e.IsCompleted() {
			continue
		}
		view.PendingSync = append(view.PendingSync, id)
	}

	return view
}

// Load fetches the store snapshot, retries unsynced completions and
// reconciles it with the local cache
func (r *QueueRuntime) Load(ctx context.Context) (*entities.QueueView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(ctx); err != nil {
		return nil, err
	}
	return r.copyView(), nil
}

func (r *QueueRuntime) loadLocked(ctx context.Context) error {
	logger := observability.LoggerFromContext(ctx)
	day := r.clock.Today()

	snapshot, err := r.repo.ListByDay(ctx, day)
	if err != nil {
		return apperrors.NewInternalError("failed to load today's queue", err)
	}

	cache := r.cache
	if cache == nil || !cache.IsFor(day) {
		cache, err = r.store.Load(ctx, day)
		if err != nil {
			logger.Warn().Err(err).Msg("queue cache unreadable, starting with an empty one")
			cache = nil
		}
	}
	if cache == nil || !cache.IsFor(day) {
		cache = entities.NewQueueCache(day)
	}

	snapshot = r.syncPending(ctx, snapshot, cache)

	r.day = day
	r.cache = cache
	r.view = Reconcile(day, snapshot, cache)
	r.loaded = true
	r.stale = false
	r.persistLocked(ctx, snapshot)

	logger.Debug().
		Int("active", len(r.view.Active)).
		Int("completed", len(r.view.Completed)).
		Int("unavailable", len(r.view.Unavailable)).
		Int("pending_sync", len(r.view.PendingSync)).
		Msg("queue reconciled")
	return nil
}

// syncPending retries store writes for optimistic completions and returns
// the snapshot with confirmed entries replaced
func (r *QueueRuntime) syncPending(ctx context.Context, snapshot []*entities.QueueEntry, cache *entities.QueueCache) []*entities.QueueEntry {
	if len(cache.PendingSync) == 0 {
		return snapshot
	}

	byID := make(map[string]int, len(snapshot))
	for i, e := range snapshot {
		byID[e.ID] = i
	}
	local := make(map[string]*entities.QueueEntry, len(cache.Completed))
	for _, e := range cache.Completed {
		local[e.ID] = e
	}

	remaining := cache.PendingSync[:0]
	for _, id := range cache.PendingSync {
		i, ok := byID[id]
		if !ok {
			// Gone from the store; nothing left to confirm.
			continue
		}
		if snapshot[i].IsCompleted() {
			continue
		}

		completedAt := r.clock.Now()
		if e, ok := local[id]; ok && e.CompletedTime != nil {
			completedAt = *e.CompletedTime
		}
		updated, err := r.repo.UpdateStatus(ctx, id, entities.QueueEntryStatusCompleted, &completedAt)
		if err != nil {
			observability.LoggerFromContext(ctx).Warn().Err(err).Str("entry_id", id).Msg("completion still not synced")
			remaining = append(remaining, id)
			continue
		}
		snapshot[i] = updated
	}
	cache.PendingSync = remaining
	return snapshot
}

func (r *QueueRuntime) ensureLoaded(ctx context.Context) error {
	if r.loaded && r.day.Equal(r.clock.Today()) {
		return nil
	}
	return r.loadLocked(ctx)
}

// Invalidate makes the next operation reload from the store
func (r *QueueRuntime) Invalidate() {
	r.mu.Lock()
	r.loaded = false
	r.mu.Unlock()
}

// Watch invalidates the view whenever a queue rebuild is announced on the
// event bus, so a batch run in this or another process is picked up without
// a manual reload. It subscribes before returning and stops when ctx is done.
func (r *QueueRuntime) Watch(ctx context.Context) error {
	if r.eventBus == nil {
		return nil
	}
	events, err := r.eventBus.Subscribe(ctx, providers.EventChannelQueueUpdates)
	if err != nil {
		return fmt.Errorf("watch queue rebuilds: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				if event != nil && event.EventType == entities.QueueEventRebuilt {
					observability.LoggerFromContext(ctx).Info().
						Time("queue_date", event.QueueDate).
						Msg("queue rebuilt, reloading on next operation")
					r.Invalidate()
				}
			}
		}
	}()
	return nil
}

// missing flags the view stale when the store reports an entry gone
func (r *QueueRuntime) missing(err error) error {
	if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		r.stale = true
		r.loaded = false
	}
	return err
}

// withReload runs op and, when op found the view stale, once more against a
// fresh snapshot
func withReload[T any](r *QueueRuntime, ctx context.Context, op func(context.Context) (T, error)) (T, error) {
	v, err := op(ctx)
	if err != nil && r.stale {
		observability.LoggerFromContext(ctx).Info().Err(err).Msg("queue changed in the store, retrying on a fresh snapshot")
		return op(ctx)
	}
	return v, err
}

// persistLocked writes the cache; failures are logged, the in-memory state
// stays authoritative until the next save
func (r *QueueRuntime) persistLocked(ctx context.Context, snapshot []*entities.QueueEntry) {
	if snapshot == nil {
		snapshot = r.knownEntries()
	}
	r.cache.LastKnown = cloneEntries(snapshot)
	r.cache.Completed = cloneEntries(r.view.Completed)
	r.cache.Unavailable = cloneEntries(r.view.Unavailable)
	r.cache.PendingSync = append([]string(nil), r.view.PendingSync...)
	r.cache.UpdatedAt = r.clock.Now()

	if err := r.store.Save(ctx, r.cache); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("failed to persist queue cache")
	}
}

func (r *QueueRuntime) knownEntries() []*entities.QueueEntry {
	all := make([]*entities.QueueEntry, 0, len(r.view.Active)+len(r.view.Completed)+len(r.view.Unavailable))
	all = append(all, r.view.Active...)
	all = append(all, r.view.Unavailable...)
	all = append(all, r.view.Completed...)
	return all
}

// CallNext marks the head of the line in progress. It fails with a
// conflict if an entry is already in progress.
func (r *QueueRuntime) CallNext(ctx context.Context) (*entities.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, err := withReload(r, ctx, r.callNextLocked)
	observability.RecordQueueTransition(ctx, r.metrics, "call_next", err == nil)
	return entry, err
}

func (r *QueueRuntime) callNextLocked(ctx context.Context) (*entities.QueueEntry, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	head := r.view.Head()
	if head == nil {
		return nil, apperrors.NewNotFoundError("the queue is empty")
	}
	if head.Status == entities.QueueEntryStatusInProgress {
		return nil, apperrors.NewConflictError(fmt.Sprintf("queue entry %s is already in progress", head.ID))
	}

	updated, err := r.repo.CallNext(ctx, r.day, head.ID)
	if err != nil {
		return nil, r.missing(err)
	}

	r.view.Active[0] = updated.Clone()
	r.persistLocked(ctx, nil)
	publishQueueEvent(ctx, r.eventBus, entities.QueueEventEntryUpdated, r.day, updated, nil)
	return updated.Clone(), nil
}

// Skip swaps the head with the entry behind it. A head that was already
// called goes back to approved. With fewer than two active entries it does
// nothing.
func (r *QueueRuntime) Skip(ctx context.Context) (*entities.QueueView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	view, err := withReload(r, ctx, r.skipLocked)
	observability.RecordQueueTransition(ctx, r.metrics, "skip", err == nil)
	return view, err
}

func (r *QueueRuntime) skipLocked(ctx context.Context) (*entities.QueueView, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	if len(r.view.Active) < 2 {
		return r.copyView(), nil
	}

	head := r.view.Active[0]
	if head.Status == entities.QueueEntryStatusInProgress {
		updated, err := r.repo.UpdateStatus(ctx, head.ID, entities.QueueEntryStatusApproved, nil)
		if err != nil {
			return nil, r.missing(err)
		}
		r.view.Active[0] = updated.Clone()
	}

	r.view.Active[0], r.view.Active[1] = r.view.Active[1], r.view.Active[0]
	r.persistOrderLocked(ctx)
	r.persistLocked(ctx, nil)
	publishQueueEvent(ctx, r.eventBus, entities.QueueEventReordered, r.day, nil, nil)
	return r.copyView(), nil
}

// MarkUnavailable moves the head into the unavailable set. The local
// exclusion holds even if the store write fails.
func (r *QueueRuntime) MarkUnavailable(ctx context.Context) (*entities.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, err := withReload(r, ctx, r.markUnavailableLocked)
	observability.RecordQueueTransition(ctx, r.metrics, "mark_unavailable", err == nil)
	return entry, err
}

func (r *QueueRuntime) markUnavailableLocked(ctx context.Context) (*entities.QueueEntry, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	head := r.view.Head()
	if head == nil {
		return nil, apperrors.NewNotFoundError("the queue is empty")
	}

	entry := head.Clone()
	if updated, err := r.repo.UpdateStatus(ctx, head.ID, entities.QueueEntryStatusUnavailable, nil); apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		return nil, r.missing(err)
	} else if err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("entry_id", head.ID).Msg("store did not record unavailable, keeping local exclusion")
	} else {
		entry = updated.Clone()
	}
	entry.Status = entities.QueueEntryStatusUnavailable

	r.view.Active = r.view.Active[1:]
	r.view.Unavailable = append(r.view.Unavailable, entry)
	r.persistLocked(ctx, nil)
	publishQueueEvent(ctx, r.eventBus, entities.QueueEventEntryUpdated, r.day, entry, nil)
	return entry.Clone(), nil
}

// MarkCompleted completes the in-progress head. If the store write fails the
// completion is kept locally and flagged for sync on the next load.
func (r *QueueRuntime) MarkCompleted(ctx context.Context) (*entities.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, err := withReload(r, ctx, r.markCompletedLocked)
	observability.RecordQueueTransition(ctx, r.metrics, "mark_completed", err == nil)
	return entry, err
}

func (r *QueueRuntime) markCompletedLocked(ctx context.Context) (*entities.QueueEntry, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	head := r.view.Head()
	if head == nil {
		return nil, apperrors.NewNotFoundError("the queue is empty")
	}
	if head.Status != entities.QueueEntryStatusInProgress {
		return nil, apperrors.NewConflictError(fmt.Sprintf("queue entry %s has not been called", head.ID))
	}

	completedAt := r.clock.Now()
	var updated *entities.QueueEntry
	err := retry.DoWithLog(ctx, r.retryCfg, "queue-store", func() error {
		var err error
		updated, err = r.repo.UpdateStatus(ctx, head.ID, entities.QueueEntryStatusCompleted, &completedAt)
		if apperrors.IsType(err, apperrors.ErrorTypeNotFound) || apperrors.IsType(err, apperrors.ErrorTypeConflict) {
			return retry.Permanent(err)
		}
		return err
	}, nil)

	switch {
	case err == nil:
	case apperrors.IsType(err, apperrors.ErrorTypeNotFound), apperrors.IsType(err, apperrors.ErrorTypeConflict):
		return nil, r.missing(err)
	default:
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("entry_id", head.ID).Msg("completion not stored, keeping it locally until the next load")
		updated = head.Clone()
		updated.Status = entities.QueueEntryStatusCompleted
		updated.CompletedTime = &completedAt
		r.view.PendingSync = append(r.view.PendingSync, head.ID)
	}

	r.view.Active = r.view.Active[1:]
	r.view.Completed = append(r.view.Completed, updated.Clone())
	r.persistLocked(ctx, nil)
	publishQueueEvent(ctx, r.eventBus, entities.QueueEventEntryUpdated, r.day, updated, nil)
	return updated.Clone(), nil
}

// Restore returns an unavailable entry to the line as next up (position 2,
// or 1 when nobody is waiting)
func (r *QueueRuntime) Restore(ctx context.Context, id string) (*entities.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, err := withReload(r, ctx, func(ctx context.Context) (*entities.QueueEntry, error) {
		return r.restoreLocked(ctx, id)
	})
	observability.RecordQueueTransition(ctx, r.metrics, "restore", err == nil)
	return entry, err
}

func (r *QueueRuntime) restoreLocked(ctx context.Context, id string) (*entities.QueueEntry, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	idx := indexOf(r.view.Unavailable, id)
	if idx < 0 {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("queue entry %s is not unavailable", id))
	}

	updated, err := r.repo.UpdateStatus(ctx, id, entities.QueueEntryStatusApproved, nil)
	if apperrors.IsType(err, apperrors.ErrorTypeConflict) {
		// The store may never have recorded the exclusion.
		current, getErr := r.repo.GetByID(ctx, id)
		if getErr == nil && current.Status == entities.QueueEntryStatusApproved {
			updated, err = current, nil
		}
	}
	if err != nil {
		return nil, r.missing(err)
	}

	r.view.Unavailable = append(r.view.Unavailable[:idx], r.view.Unavailable[idx+1:]...)
	pos := 1
	if len(r.view.Active) == 0 {
		pos = 0
	}
	r.view.Active = insertAt(r.view.Active, pos, updated.Clone())

	r.persistOrderLocked(ctx)
	r.persistLocked(ctx, nil)
	publishQueueEvent(ctx, r.eventBus, entities.QueueEventEntryUpdated, r.day, updated, nil)
	return updated.Clone(), nil
}

// SetStatus applies a single-entry status change, keeping the local sets
// consistent with it
func (r *QueueRuntime) SetStatus(ctx context.Context, id string, status entities.QueueEntryStatus) (*entities.QueueEntry, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown queue status %q", status))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, err := withReload(r, ctx, func(ctx context.Context) (*entities.QueueEntry, error) {
		return r.setStatusLocked(ctx, id, status)
	})
	observability.RecordQueueTransition(ctx, r.metrics, "set_status", err == nil)
	return entry, err
}

func (r *QueueRuntime) setStatusLocked(ctx context.Context, id string, status entities.QueueEntryStatus) (*entities.QueueEntry, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	if status == entities.QueueEntryStatusApproved && indexOf(r.view.Unavailable, id) >= 0 {
		return r.restoreLocked(ctx, id)
	}
	if status == entities.QueueEntryStatusInProgress && len(r.view.Active) > 0 && r.view.Active[0].ID == id {
		return r.callNextLocked(ctx)
	}

	var completedAt *time.Time
	if status == entities.QueueEntryStatusCompleted {
		now := r.clock.Now()
		completedAt = &now
	}

	updated, err := r.repo.UpdateStatus(ctx, id, status, completedAt)
	if err != nil {
		return nil, r.missing(err)
	}

	r.removeEverywhere(id)
	switch status {
	case entities.QueueEntryStatusCompleted:
		r.view.Completed = append(r.view.Completed, updated.Clone())
	case entities.QueueEntryStatusUnavailable:
		r.view.Unavailable = append(r.view.Unavailable, updated.Clone())
	default:
		r.view.Active = insertByPosition(r.view.Active, updated.Clone())
	}

	r.persistLocked(ctx, nil)
	publishQueueEvent(ctx, r.eventBus, entities.QueueEventEntryUpdated, r.day, updated, nil)
	return updated.Clone(), nil
}

// persistOrderLocked writes the active order to the store. Best effort: the
// next load takes the store's order.
func (r *QueueRuntime) persistOrderLocked(ctx context.Context) {
	ids := make([]string, len(r.view.Active))
	for i, e := range r.view.Active {
		ids[i] = e.ID
		e.QueuePosition = i + 1
	}
	if err := r.repo.Reorder(ctx, r.day, ids); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("failed to persist queue order")
	}
}

func (r *QueueRuntime) removeEverywhere(id string) {
	r.view.Active = removeID(r.view.Active, id)
	r.view.Completed = removeID(r.view.Completed, id)
	r.view.Unavailable = removeID(r.view.Unavailable, id)
}

// View returns the reconciled view, loading it on first use
func (r *QueueRuntime) View(ctx context.Context) (*entities.QueueView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return r.copyView(), nil
}

// Snapshot returns the store's entries for today without reconciliation
func (r *QueueRuntime) Snapshot(ctx context.Context) ([]*entities.QueueEntry, error) {
	return r.repo.ListByDay(ctx, r.clock.Today())
}

// Stats returns the store's counts by status for today
func (r *QueueRuntime) Stats(ctx context.Context) (*entities.QueueStats, error) {
	return r.repo.Stats(ctx, r.clock.Today())
}

// Current returns the in-progress entry, or nil
func (r *QueueRuntime) Current(ctx context.Context) (*entities.QueueEntry, error) {
	view, err := r.View(ctx)
	if err != nil {
		return nil, err
	}
	if head := view.Head(); head != nil && head.Status == entities.QueueEntryStatusInProgress {
		return head, nil
	}
	return nil, nil
}

// Next returns the first waiting entry, or nil
func (r *QueueRuntime) Next(ctx context.Context) (*entities.QueueEntry, error) {
	view, err := r.View(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range view.Active {
		if e.Status == entities.QueueEntryStatusApproved {
			return e, nil
		}
	}
	return nil, nil
}

func (r *QueueRuntime) copyView() *entities.QueueView {
	return &entities.QueueView{
		QueueDate:   r.view.QueueDate,
		Active:      cloneEntries(r.view.Active),
		Completed:   cloneEntries(r.view.Completed),
		Unavailable: cloneEntries(r.view.Unavailable),
		PendingSync: append([]string(nil), r.view.PendingSync...),
	}
}

func cloneEntries(entries []*entities.QueueEntry) []*entities.QueueEntry {
	out := make([]*entities.QueueEntry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out
}

func indexOf(entries []*entities.QueueEntry, id string) int {
	for i, e := range entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func removeID(entries []*entities.QueueEntry, id string) []*entities.QueueEntry {
	if i := indexOf(entries, id); i >= 0 {
		return append(entries[:i], entries[i+1:]...)
	}
	return entries
}

func insertAt(entries []*entities.QueueEntry, i int, e *entities.QueueEntry) []*entities.QueueEntry {
	if i > len(entries) {
		i = len(entries)
	}
	entries = append(entries, nil)
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	return entries
}

func insertByPosition(entries []*entities.QueueEntry, e *entities.QueueEntry) []*entities.QueueEntry {
	i := 0
	for i < len(entries) && entries[i].QueuePosition <= e.QueuePosition {
		i++
	}
	return insertAt(entries, i, e)
}
