package sensor

import (
	"slices"

	"github.com/aukilabs/go-tooling/pkg/logs"
)

// Tracker aggregates primitive overlap events into item level transitions.
//
// A tracker is not safe for concurrent use. RecordBegin, RecordEnd, Clear and
// Sweep must be called from a single goroutine. Calls made from inside one of
// the tracker callbacks are queued and run once the current dispatch returns.
type Tracker[P, T any] struct {
	// Called when an item starts overlapping.
	Entered func()

	// Called when an item stops overlapping.
	Exited func()

	name    string
	resolve Resolver[P, T]
	opts    Options[P, T]

	initialized bool
	closed      bool
	records     map[ItemID]*Record[P, T]

	dispatching bool
	pending     []func()
}

type transition[T any] struct {
	item    T
	entered bool
	cause   string
}

// New creates an initialized tracker.
func New[P, T any](name string, resolve Resolver[P, T], opts Options[P, T]) *Tracker[P, T] {
	t := &Tracker[P, T]{
		name:    name,
		resolve: resolve,
		opts:    opts,
	}
	t.Init()
	return t
}

// Init allocates the tracker state. Calling it more than once has no effect.
func (t *Tracker[P, T]) Init() {
	if t.initialized || t.closed {
		return
	}

	t.initialized = true
	t.records = make(map[ItemID]*Record[P, T])
}

func (t *Tracker[P, T]) Name() string {
	return t.name
}

// Clear drops all the tracked items without invoking any callback.
func (t *Tracker[P, T]) Clear() {
	if t.dispatching {
		t.pending = append(t.pending, t.Clear)
		return
	}

	if !t.initialized {
		return
	}

	clear(t.records)
	instrumentClear(t.opts.World, t.name)
	t.refreshDebug()
}

// Close drops the tracked items without invoking any callback and removes the
// tracker metrics. The tracker ignores every call afterwards.
func (t *Tracker[P, T]) Close() {
	if t.dispatching {
		t.pending = append(t.pending, t.Close)
		return
	}

	if t.closed {
		return
	}

	t.closed = true
	t.initialized = false
	clear(t.records)
	instrumentRemove(t.opts.World, t.name)
	t.refreshDebug()
}

// RecordBegin handles the start of an overlap with the given primitive.
func (t *Tracker[P, T]) RecordBegin(p P) {
	if t.dispatching {
		logs.WithTag("sensor", t.name).Debug("queuing reentrant overlap begin")
		t.pending = append(t.pending, func() { t.RecordBegin(p) })
		return
	}

	res, ok := t.accept(p)
	if !ok {
		return
	}

	var transitions []transition[T]

	record, ok := t.records[res.ItemID]
	if !ok {
		record = newRecord[P](res.Item)
		t.records[res.ItemID] = record
	}

	if record.Add(res.PrimitiveID, p) {
		transitions = append(transitions, transition[T]{
			item:    record.Item,
			entered: true,
			cause:   causeEvent,
		})
	}

	if !t.opts.DeferredSweep {
		stale, _ := t.sweep()
		transitions = append(transitions, stale...)
	}

	t.refreshDebug()
	t.dispatch(transitions)
}

// RecordEnd handles the end of an overlap with the given primitive.
func (t *Tracker[P, T]) RecordEnd(p P) {
	if t.dispatching {
		logs.WithTag("sensor", t.name).Debug("queuing reentrant overlap end")
		t.pending = append(t.pending, func() { t.RecordEnd(p) })
		return
	}

	res, ok := t.accept(p)
	if !ok {
		return
	}

	record, ok := t.records[res.ItemID]
	if !ok {
		return
	}

	var transitions []transition[T]

	if record.Remove(res.PrimitiveID) {
		delete(t.records, res.ItemID)
		transitions = append(transitions, transition[T]{
			item:  record.Item,
			cause: causeEvent,
		})
	}

	if !t.opts.DeferredSweep {
		stale, _ := t.sweep()
		transitions = append(transitions, stale...)
	}

	t.refreshDebug()
	t.dispatch(transitions)
}

// Sweep removes the primitives that are no longer alive and prunes the items
// left without primitives. It is a no-op when no liveness predicate is set.
func (t *Tracker[P, T]) Sweep() {
	if t.dispatching {
		t.pending = append(t.pending, t.Sweep)
		return
	}

	if !t.initialized {
		return
	}

	transitions, changed := t.sweep()
	if !changed {
		return
	}

	t.refreshDebug()
	t.dispatch(transitions)
}

// Count returns the number of items currently overlapping.
func (t *Tracker[P, T]) Count() int {
	return len(t.records)
}

// Items returns the primitive ids recorded for each overlapping item.
func (t *Tracker[P, T]) Items() map[ItemID][]PrimitiveID {
	items := make(map[ItemID][]PrimitiveID, len(t.records))
	for id, r := range t.records {
		items[id] = r.PrimitiveIDs()
	}
	return items
}

// Item returns the item with the given id when it is overlapping.
func (t *Tracker[P, T]) Item(id ItemID) (T, bool) {
	r, ok := t.records[id]
	if !ok {
		var zero T
		return zero, false
	}
	return r.Item, true
}

func (t *Tracker[P, T]) accept(p P) (Resolution[T], bool) {
	if t.closed {
		return Resolution[T]{}, false
	}

	if !t.initialized {
		logs.WithTag("sensor", t.name).Debug("overlap event on uninitialized sensor ignored")
		return Resolution[T]{}, false
	}

	if t.resolve == nil {
		return Resolution[T]{}, false
	}

	res, ok := t.resolve(p)
	if !ok {
		instrumentReject(t.opts.World, t.name, rejectUnresolved)
		return Resolution[T]{}, false
	}

	if reject := t.opts.Policy.RejectCollider; reject != nil && reject(p) {
		instrumentReject(t.opts.World, t.name, rejectCollider)
		return Resolution[T]{}, false
	}

	if reject := t.opts.Policy.RejectItem; reject != nil && reject(res.Item) {
		instrumentReject(t.opts.World, t.name, rejectItem)
		return Resolution[T]{}, false
	}

	return res, true
}

func (t *Tracker[P, T]) sweep() ([]transition[T], bool) {
	alive := t.opts.Liveness
	if alive == nil {
		return nil, false
	}

	var stale int
	var pruned []ItemID

	for itemID, r := range t.records {
		for id, handle := range r.primitives {
			if alive(handle) {
				continue
			}

			delete(r.primitives, id)
			stale++
		}

		if r.Count() == 0 {
			pruned = append(pruned, itemID)
		}
	}

	if stale == 0 {
		return nil, false
	}
	instrumentStalePrimitives(t.opts.World, t.name, stale)

	slices.Sort(pruned)

	transitions := make([]transition[T], 0, len(pruned))
	for _, itemID := range pruned {
		r := t.records[itemID]
		delete(t.records, itemID)

		logs.WithTag("sensor", t.name).
			WithTag("item_id", itemID).
			WithTag("silent", t.opts.SilentStalePrune).
			Debug("stale item pruned")

		if t.opts.SilentStalePrune {
			instrumentSilentPrune(t.opts.World, t.name)
			continue
		}

		transitions = append(transitions, transition[T]{
			item:  r.Item,
			cause: causeStale,
		})
	}
	return transitions, true
}

func (t *Tracker[P, T]) dispatch(transitions []transition[T]) {
	instrumentState(t.opts.World, t.name, t.records)
	t.notify(transitions)

	for len(t.pending) != 0 {
		next := t.pending[0]
		t.pending = t.pending[1:]
		next()
	}
}

func (t *Tracker[P, T]) notify(transitions []transition[T]) {
	t.dispatching = true
	defer func() {
		t.dispatching = false
	}()

	for _, tr := range transitions {
		instrumentTransition(t.opts.World, t.name, tr.entered, tr.cause)

		if tr.entered {
			if h := t.opts.Hooks.OnItemAdded; h != nil {
				h(tr.item)
			}
			if t.Entered != nil {
				t.Entered()
			}
			continue
		}

		if h := t.opts.Hooks.OnItemRemoved; h != nil {
			h(tr.item)
		}
		if t.Exited != nil {
			t.Exited()
		}
	}
}

func (t *Tracker[P, T]) refreshDebug() {
	if t.opts.Debug == nil {
		return
	}
	t.opts.Debug(t.Snapshot())
}
