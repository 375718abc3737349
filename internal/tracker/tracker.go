// Package tracker owns the per-item split and expand state machine.
//
// Each item is split once; its two halves are then expanded independently
// and concurrently. A failed half stays in the error state until it is
// retried on its own. In-flight calls are never cancelled by Remove or
// Clear; their results are dropped when they arrive.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oukeidos/splitfill/internal/apperrors"
	"github.com/oukeidos/splitfill/internal/gemini"
	"github.com/oukeidos/splitfill/internal/logger"
	"github.com/oukeidos/splitfill/internal/media"
	"github.com/oukeidos/splitfill/internal/splitter"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	DefaultConcurrency = 7
	MaxConcurrency     = 20
	DefaultQPS         = 3
)

// Options tunes a Tracker.
type Options struct {
	// Concurrency caps in-flight expansion calls. Zero selects the default.
	Concurrency int
	// QPS paces call starts. Zero selects the default; negative disables pacing.
	QPS float64
	// OnChange is called after every applied transition, outside the lock.
	OnChange func(Event)
	// OnRemove is called with a snapshot of each item dropped by Remove or
	// Clear, outside the lock. Halves still expanding will not emit a
	// terminal event.
	OnRemove func(WorkItem)
	// Now is used for CreatedAt; defaults to time.Now.
	Now func() time.Time
}

// Tracker holds the work items and drives their halves.
type Tracker struct {
	mu       sync.Mutex
	items    map[string]*WorkItem
	order    []string
	expander gemini.Expander

	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	onChange func(Event)
	onRemove func(WorkItem)
	now      func() time.Time

	wg sync.WaitGroup
}

// New creates a tracker that expands halves with exp.
func New(exp gemini.Expander, opts Options) *Tracker {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if concurrency > MaxConcurrency {
		concurrency = MaxConcurrency
	}
	limit := rate.Limit(opts.QPS)
	switch {
	case opts.QPS == 0:
		limit = rate.Limit(DefaultQPS)
	case opts.QPS < 0:
		limit = rate.Inf
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		items:    make(map[string]*WorkItem),
		expander: exp,
		sem:      semaphore.NewWeighted(int64(concurrency)),
		limiter:  rate.NewLimiter(limit, 1),
		onChange: opts.OnChange,
		onRemove: opts.OnRemove,
		now:      now,
	}
}

// SetExpander swaps the client used for calls started from now on.
func (t *Tracker) SetExpander(exp gemini.Expander) {
	t.mu.Lock()
	t.expander = exp
	t.mu.Unlock()
}

// Expander returns the current client.
func (t *Tracker) Expander() gemini.Expander {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expander
}

// Add registers an upload. Both halves start idle.
func (t *Tracker) Add(up media.Upload) (WorkItem, error) {
	if !media.IsImage(up.Image.MIMEType) {
		return WorkItem{}, fmt.Errorf("%s: %w", up.Name, ErrNotImage)
	}
	item := &WorkItem{
		ID:        uuid.NewString(),
		Name:      up.Name,
		Original:  up.Image,
		SourceRef: up.SourceRef,
		CreatedAt: t.now(),
	}
	t.mu.Lock()
	t.items[item.ID] = item
	t.order = append(t.order, item.ID)
	snapshot := item.clone()
	t.mu.Unlock()

	logger.Info("Item added", "item", item.ID, "name", up.Name, "mime", up.Image.MIMEType)
	return snapshot, nil
}

// Get returns a snapshot of one item. Image payloads are shared and must
// be treated as read-only.
func (t *Tracker) Get(id string) (WorkItem, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.items[id]
	if !ok {
		return WorkItem{}, false
	}
	return item.clone(), true
}

// List returns snapshots of every item in insertion order.
func (t *Tracker) List() []WorkItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]WorkItem, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.items[id].clone())
	}
	return out
}

// Remove deletes an item. A missing id is a no-op.
func (t *Tracker) Remove(id string) bool {
	t.mu.Lock()
	item, ok := t.items[id]
	if !ok {
		t.mu.Unlock()
		return false
	}
	snapshot := item.clone()
	delete(t.items, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	t.mu.Unlock()
	t.removed(snapshot)
	return true
}

// Clear removes every item and returns how many were removed.
func (t *Tracker) Clear() int {
	t.mu.Lock()
	snapshots := make([]WorkItem, 0, len(t.order))
	for _, id := range t.order {
		snapshots = append(snapshots, t.items[id].clone())
	}
	t.items = make(map[string]*WorkItem)
	t.order = nil
	t.mu.Unlock()
	t.removed(snapshots...)
	return len(snapshots)
}

func (t *Tracker) removed(items ...WorkItem) {
	for _, item := range items {
		logger.Debug("Item removed", "item", item.ID, "name", item.Name)
		if t.onRemove != nil {
			t.onRemove(item)
		}
	}
}

// Wait blocks until every split and expansion started so far has finished.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

func (t *Tracker) checkCredential(exp gemini.Expander) error {
	if exp == nil {
		return ErrNoCredential
	}
	if c, ok := exp.(interface{ Configured() error }); ok {
		return c.Configured()
	}
	return nil
}

// Process splits and expands every pending item in the background and
// returns how many were started. Nothing is started without a credential.
func (t *Tracker) Process(ctx context.Context, axis splitter.Axis) (int, error) {
	if err := t.checkCredential(t.Expander()); err != nil {
		return 0, err
	}

	t.mu.Lock()
	var claimed []string
	var events []Event
	for _, id := range t.order {
		evs, err := t.claimSplit(t.items[id], axis)
		if err != nil {
			continue
		}
		claimed = append(claimed, id)
		events = append(events, evs...)
	}
	t.mu.Unlock()
	t.emit(events...)

	for _, id := range claimed {
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			if err := t.split(id, axis); err != nil {
				return
			}
			t.expandBoth(ctx, id)
		}()
	}
	if len(claimed) > 0 {
		logger.Info("Processing started", "items", len(claimed), "axis", axis)
	}
	return len(claimed), nil
}

// expandBoth runs the two halves of one item side by side. A failure in
// one half never cancels the other.
func (t *Tracker) expandBoth(ctx context.Context, id string) {
	var g errgroup.Group
	for _, p := range Parts {
		crop, exp, err := t.begin(id, p, StatusIdle)
		if err != nil {
			logger.Debug("Half not dispatched", "item", id, "part", p, "error", err)
			continue
		}
		g.Go(func() error {
			t.run(ctx, id, p, crop, exp)
			return nil
		})
	}
	_ = g.Wait()
}

// Prepare splits an item once. Both halves pass through splitting and
// return to idle; on success they carry their crops. A local failure is
// logged and leaves the item unprocessed.
func (t *Tracker) Prepare(id string, axis splitter.Axis) error {
	t.mu.Lock()
	item, ok := t.items[id]
	if !ok {
		t.mu.Unlock()
		return ErrItemNotFound
	}
	events, err := t.claimSplit(item, axis)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	t.emit(events...)
	return t.split(id, axis)
}

// claimSplit moves both halves of a pending item to splitting. The caller
// holds t.mu.
func (t *Tracker) claimSplit(item *WorkItem, axis splitter.Axis) ([]Event, error) {
	if !item.Pending() {
		return nil, fmt.Errorf("%w: item %s was already split", ErrInvalidTransition, item.ID)
	}
	events := make([]Event, 0, len(Parts))
	for _, p := range Parts {
		ev, err := t.transition(item, p, StatusSplitting, "")
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	item.Axis = axis
	return events, nil
}

// split crops a claimed item and returns both halves to idle.
func (t *Tracker) split(id string, axis splitter.Axis) error {
	t.mu.Lock()
	item, ok := t.items[id]
	if !ok {
		t.mu.Unlock()
		return ErrItemNotFound
	}
	original := item.Original
	t.mu.Unlock()

	a, b, splitErr := splitter.Split(original, axis)

	t.mu.Lock()
	item, ok = t.items[id]
	if !ok {
		t.mu.Unlock()
		logger.Debug("Split result dropped for removed item", "item", id)
		return ErrItemNotFound
	}
	if splitErr == nil {
		item.PartA.Cropped = &a
		item.PartB.Cropped = &b
	}
	events := make([]Event, 0, len(Parts))
	for _, p := range Parts {
		if ev, err := t.transition(item, p, StatusIdle, ""); err == nil {
			events = append(events, ev)
		}
	}
	name := item.Name
	t.mu.Unlock()
	t.emit(events...)

	if splitErr != nil {
		logger.Error("Split failed", "item", id, "name", name, "error", splitErr)
		return splitErr
	}
	return nil
}

// Dispatch starts expansion of one ready half in the background.
func (t *Tracker) Dispatch(ctx context.Context, id string, part Part) error {
	crop, exp, err := t.begin(id, part, StatusIdle)
	if err != nil {
		return err
	}
	t.goRun(ctx, id, part, crop, exp)
	return nil
}

// Retry re-expands one failed half from its existing crop.
func (t *Tracker) Retry(ctx context.Context, id string, part Part) error {
	if err := t.checkCredential(t.Expander()); err != nil {
		return err
	}
	crop, exp, err := t.begin(id, part, StatusError)
	if err != nil {
		return err
	}
	logger.Info("Retrying half", "item", id, "part", part)
	t.goRun(ctx, id, part, crop, exp)
	return nil
}

func (t *Tracker) goRun(ctx context.Context, id string, part Part, crop media.Image, exp gemini.Expander) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run(ctx, id, part, crop, exp)
	}()
}

// begin moves a half from want to expanding and returns what the call needs.
func (t *Tracker) begin(id string, part Part, want Status) (media.Image, gemini.Expander, error) {
	t.mu.Lock()
	item, ok := t.items[id]
	if !ok {
		t.mu.Unlock()
		return media.Image{}, nil, ErrItemNotFound
	}
	h := item.half(part)
	if h.Status != want {
		t.mu.Unlock()
		if want == StatusError {
			return media.Image{}, nil, ErrNotRetryable
		}
		return media.Image{}, nil, fmt.Errorf("%w: %s half is %s", ErrInvalidTransition, part, h.Status)
	}
	if h.Cropped == nil {
		t.mu.Unlock()
		return media.Image{}, nil, fmt.Errorf("%w: %s half has no crop", ErrInvalidTransition, part)
	}
	exp := t.expander
	if exp == nil {
		t.mu.Unlock()
		return media.Image{}, nil, ErrNoCredential
	}
	crop := *h.Cropped
	ev, err := t.transition(item, part, StatusExpanding, "")
	t.mu.Unlock()
	if err != nil {
		return media.Image{}, nil, err
	}
	t.emit(ev)
	return crop, exp, nil
}

func (t *Tracker) run(ctx context.Context, id string, part Part, crop media.Image, exp gemini.Expander) {
	out, err := t.call(ctx, crop, exp)
	t.finish(id, part, out, err)
}

func (t *Tracker) call(ctx context.Context, crop media.Image, exp gemini.Expander) (media.Image, error) {
	if err := t.sem.Acquire(ctx, 1); err != nil {
		return media.Image{}, apperrors.Transient(err)
	}
	defer t.sem.Release(1)
	if err := t.limiter.Wait(ctx); err != nil {
		return media.Image{}, apperrors.Transient(err)
	}
	return exp.Expand(ctx, crop)
}

// finish records the outcome. Results for removed items, or halves that
// are no longer expanding, are dropped.
func (t *Tracker) finish(id string, part Part, out media.Image, callErr error) {
	t.mu.Lock()
	item, ok := t.items[id]
	if !ok || item.half(part).Status != StatusExpanding {
		t.mu.Unlock()
		logger.Debug("Expansion result dropped", "item", id, "part", part)
		return
	}
	var ev Event
	var err error
	if callErr == nil {
		item.half(part).Expanded = &out
		ev, err = t.transition(item, part, StatusDone, "")
	} else {
		ev, err = t.transition(item, part, StatusError, apperrors.PublicMessage(callErr))
	}
	name := item.Name
	t.mu.Unlock()
	if err != nil {
		logger.Error("Transition rejected", "item", id, "part", part, "error", err)
		return
	}
	if callErr != nil {
		logger.Error("Expansion failed", "item", id, "name", name, "part", part, "error", callErr)
	}
	t.emit(ev)
}

// transition applies one state change. The caller holds t.mu.
func (t *Tracker) transition(item *WorkItem, part Part, to Status, errMsg string) (Event, error) {
	h := item.half(part)
	from := h.Status
	if !CanTransition(from, to) {
		return Event{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if from == StatusIdle && to == StatusExpanding && h.Cropped == nil {
		return Event{}, fmt.Errorf("%w: %s half has no crop", ErrInvalidTransition, part)
	}
	h.Status = to
	switch to {
	case StatusError:
		h.Err = errMsg
	case StatusExpanding:
		h.Err = ""
		h.Expanded = nil
	}
	return Event{ItemID: item.ID, Part: part, From: from, To: to, Err: h.Err}, nil
}

func (t *Tracker) emit(events ...Event) {
	for _, ev := range events {
		logger.Debug("Half transition", "item", ev.ItemID, "part", ev.Part, "from", ev.From, "to", ev.To)
		if t.onChange != nil {
			t.onChange(ev)
		}
	}
}

// IsUserError reports whether err is caused by the caller rather than by
// the tracker or the remote API.
func IsUserError(err error) bool {
	return errors.Is(err, ErrItemNotFound) || errors.Is(err, ErrNotRetryable) ||
		errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotImage)
}
