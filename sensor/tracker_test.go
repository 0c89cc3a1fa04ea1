package sensor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testItem struct {
	id      uint32
	name    string
	kind    string
	invalid bool
}

type testCollider struct {
	id       uint32
	owner    *testItem
	layer    string
	disabled bool
}

func resolveTestCollider(c *testCollider) (Resolution[*testItem], bool) {
	if c == nil || c.owner == nil {
		return Resolution[*testItem]{}, false
	}

	return Resolution[*testItem]{
		Item:        c.owner,
		ItemID:      ItemID(c.owner.id),
		PrimitiveID: PrimitiveID(c.id),
	}, true
}

func isTestColliderAlive(c *testCollider) bool {
	return !c.disabled
}

type testCounter struct {
	entered int
	exited  int
	added   []uint32
	removed []uint32
	events  []string
}

func newTestTracker(opts Options[*testCollider, *testItem]) (*Tracker[*testCollider, *testItem], *testCounter) {
	var c testCounter

	onItemAdded := opts.Hooks.OnItemAdded
	opts.Hooks.OnItemAdded = func(i *testItem) {
		c.added = append(c.added, i.id)
		c.events = append(c.events, "added")
		if onItemAdded != nil {
			onItemAdded(i)
		}
	}

	onItemRemoved := opts.Hooks.OnItemRemoved
	opts.Hooks.OnItemRemoved = func(i *testItem) {
		c.removed = append(c.removed, i.id)
		c.events = append(c.events, "removed")
		if onItemRemoved != nil {
			onItemRemoved(i)
		}
	}

	tracker := New("test", resolveTestCollider, opts)
	tracker.Entered = func() {
		c.entered++
		c.events = append(c.events, "entered")
	}
	tracker.Exited = func() {
		c.exited++
		c.events = append(c.events, "exited")
	}
	return tracker, &c
}

func TestTrackerInit(t *testing.T) {
	t.Run("init is idempotent", func(t *testing.T) {
		tracker, _ := newTestTracker(Options[*testCollider, *testItem]{})
		item := &testItem{id: 1}
		tracker.RecordBegin(&testCollider{id: 1, owner: item})

		tracker.Init()
		require.Equal(t, 1, tracker.Count())
	})

	t.Run("uninitialized tracker ignores events", func(t *testing.T) {
		var tracker Tracker[*testCollider, *testItem]
		item := &testItem{id: 1}

		tracker.RecordBegin(&testCollider{id: 1, owner: item})
		tracker.RecordEnd(&testCollider{id: 1, owner: item})
		tracker.Sweep()
		tracker.Clear()
		require.Zero(t, tracker.Count())
		require.Empty(t, tracker.Items())
	})
}

func TestTrackerRecordBegin(t *testing.T) {
	t.Run("entered is raised once per item", func(t *testing.T) {
		tracker, c := newTestTracker(Options[*testCollider, *testItem]{})
		item := &testItem{id: 1}

		for i := uint32(1); i <= 5; i++ {
			tracker.RecordBegin(&testCollider{id: i, owner: item})
			require.Equal(t, 1, tracker.Count())
		}

		require.Equal(t, 1, c.entered)
		require.Equal(t, []uint32{1}, c.added)
		require.Len(t, tracker.Items()[1], 5)
	})

	t.Run("hook is called before entered", func(t *testing.T) {
		tracker, c := newTestTracker(Options[*testCollider, *testItem]{})
		tracker.RecordBegin(&testCollider{id: 1, owner: &testItem{id: 1}})
		require.Equal(t, []string{"added", "entered"}, c.events)
	})

	t.Run("duplicate begin is idempotent", func(t *testing.T) {
		tracker, c := newTestTracker(Options[*testCollider, *testItem]{})
		collider := &testCollider{id: 1, owner: &testItem{id: 1}}

		tracker.RecordBegin(collider)
		tracker.RecordBegin(collider)
		require.Equal(t, 1, tracker.Count())
		require.Equal(t, []PrimitiveID{1}, tracker.Items()[1])
		require.Equal(t, 1, c.entered)

		tracker.RecordEnd(collider)
		require.Zero(t, tracker.Count())
		require.Equal(t, 1, c.exited)
	})

	t.Run("unresolved primitive is ignored", func(t *testing.T) {
		tracker, c := newTestTracker(Options[*testCollider, *testItem]{})

		tracker.RecordBegin(&testCollider{id: 1})
		tracker.RecordBegin(nil)
		require.Zero(t, tracker.Count())
		require.Zero(t, c.entered)
		require.Empty(t, c.events)
	})

	t.Run("distinct items are tracked separately", func(t *testing.T) {
		tracker, c := newTestTracker(Options[*testCollider, *testItem]{})

		tracker.RecordBegin(&testCollider{id: 1, owner: &testItem{id: 1}})
		tracker.RecordBegin(&testCollider{id: 2, owner: &testItem{id: 2}})
		require.Equal(t, 2, tracker.Count())
		require.Equal(t, 2, c.entered)
	})

	t.Run("item is returned while overlapping", func(t *testing.T) {
		tracker, _ := newTestTracker(Options[*testCollider, *testItem]{})
		item := &testItem{id: 7}
		tracker.RecordBegin(&testCollider{id: 1, owner: item})

		i, ok := tracker.Item(7)
		require.True(t, ok)
		require.Same(t, item, i)

		i, ok = tracker.Item(8)
		require.False(t, ok)
		require.Nil(t, i)
	})
}

func TestTrackerRecordEnd(t *testing.T) {
	t.Run("two primitives scenario", func(t *testing.T) {
		tracker, c := newTestTracker(Options[*testCollider, *testItem]{})
		item := &testItem{id: 1}
		c1 := &testCollider{id: 1, owner: item}
		c2 := &testCollider{id: 2, owner: item}

		tracker.RecordBegin(c1)
		require.Equal(t, 1, tracker.Count())
		require.Equal(t, 1, c.entered)

		tracker.RecordBegin(c2)
		require.Equal(t, 1, tracker.Count())
		require.Equal(t, 1, c.entered)

		tracker.RecordEnd(c1)
		require.Equal(t, 1, tracker.Count())
		require.Zero(t, c.exited)

		tracker.RecordEnd(c2)
		require.Zero(t, tracker.Count())
		require.Equal(t, 1, c.exited)
		require.Equal(t, []uint32{1}, c.removed)
		require.Equal(t, []string{"added", "entered", "removed", "exited"}, c.events)
	})

	t.Run("end for an item never begun is ignored", func(t *testing.T) {
		tracker, c := newTestTracker(Options[*testCollider, *testItem]{})

		tracker.RecordEnd(&testCollider{id: 1, owner: &testItem{id: 1}})
		tracker.RecordEnd(nil)
		require.Zero(t, tracker.Count())
		require.Empty(t, c.events)
	})

	t.Run("end for an unknown primitive keeps the item", func(t *testing.T) {
		tracker, c := newTestTracker(Options[*testCollider, *testItem]{})
		item := &testItem{id: 1}

		tracker.RecordBegin(&testCollider{id: 1, owner: item})
		tracker.RecordEnd(&testCollider{id: 2, owner: item})
		require.Equal(t, 1, tracker.Count())
		require.Zero(t, c.exited)
	})

	t.Run("item can enter again after exiting", func(t *testing.T) {
		tracker, c := newTestTracker(Options[*testCollider, *testItem]{})
		collider := &testCollider{id: 1, owner: &testItem{id: 1}}

		tracker.RecordBegin(collider)
		tracker.RecordEnd(collider)
		tracker.RecordBegin(collider)
		require.Equal(t, 2, c.entered)
		require.Equal(t, 1, c.exited)
		require.Equal(t, 1, tracker.Count())
	})
}

func TestTrackerPolicy(t *testing.T) {
	t.Run("rejected collider is ignored", func(t *testing.T) {
		tracker, c := newTestTracker(Options[*testCollider, *testItem]{
			Policy: Policy[*testCollider, *testItem]{
				RejectCollider: func(c *testCollider) bool {
					return c.layer == "ghost"
				},
			},
		})
		item := &testItem{id: 1}

		tracker.RecordBegin(&testCollider{id: 1, owner: item, layer: "ghost"})
		require.Zero(t, tracker.Count())
		require.Empty(t, c.events)

		tracker.RecordBegin(&testCollider{id: 2, owner: item, layer: "body"})
		require.Equal(t, 1, tracker.Count())
		require.Equal(t, []PrimitiveID{2}, tracker.Items()[1])
	})

	t.Run("rejected item is ignored", func(t *testing.T) {
		tracker, c := newTestTracker(Options[*testCollider, *testItem]{
			Policy: Policy[*testCollider, *testItem]{
				RejectItem: func(i *testItem) bool {
					return i.kind == "spectator"
				},
			},
		})

		tracker.RecordBegin(&testCollider{id: 1, owner: &testItem{id: 1, kind: "spectator"}})
		require.Zero(t, tracker.Count())
		require.Empty(t, c.events)

		tracker.RecordBegin(&testCollider{id: 2, owner: &testItem{id: 2, kind: "player"}})
		require.Equal(t, 1, tracker.Count())
	})

	t.Run("rejected end leaves state untouched", func(t *testing.T) {
		reject := false
		tracker, c := newTestTracker(Options[*testCollider, *testItem]{
			Policy: Policy[*testCollider, *testItem]{
				RejectCollider: func(*testCollider) bool {
					return reject
				},
			},
		})
		collider := &testCollider{id: 1, owner: &testItem{id: 1}}

		tracker.RecordBegin(collider)
		reject = true
		tracker.RecordEnd(collider)
		require.Equal(t, 1, tracker.Count())
		require.Zero(t, c.exited)
	})
}

func TestTrackerSweep(t *testing.T) {
	t.Run("stale primitive is removed on next event", func(t *testing.T) {
		tracker, c := newTestTracker(Options[*testCollider, *testItem]{
			Liveness: isTestColliderAlive,
		})
		item := &testItem{id: 1}
		c1 := &testCollider{id: 1, owner: item}
		c2 := &testCollider{id: 2, owner: item}

		tracker.RecordBegin(c1)
		tracker.RecordBegin(c2)
		c1.disabled = true

		tracker.RecordBegin(&testCollider{id: 3, owner: &testItem{id: 3}})
		require.Equal(t, 2, tracker.Count())
		require.Equal(t, []PrimitiveID{2}, tracker.Items()[1])
		require.Zero(t, c.exited)
	})

	t.Run("stale item exits by default", func(t *testing.T) {
		tracker, c := newTestTracker(Options[*testCollider, *testItem]{
			Liveness: isTestColliderAlive,
		})
		c1 := &testCollider{id: 1, owner: &testItem{id: 1}}
		c2 := &testCollider{id: 2, owner: &testItem{id: 2}}

		tracker.RecordBegin(c1)
		c1.disabled = true

		tracker.RecordBegin(c2)
		require.Equal(t, 1, tracker.Count())
		require.Equal(t, 2, c.entered)
		require.Equal(t, 1, c.exited)
		require.Equal(t, []uint32{1}, c.removed)
		require.Equal(t, []string{
			"added", "entered",
			"added", "entered",
			"removed", "exited",
		}, c.events)
	})

	t.Run("stale item is pruned silently", func(t *testing.T) {
		tracker, c := newTestTracker(Options[*testCollider, *testItem]{
			Liveness:         isTestColliderAlive,
			SilentStalePrune: true,
		})
		c1 := &testCollider{id: 1, owner: &testItem{id: 1}}

		tracker.RecordBegin(c1)
		c1.disabled = true

		tracker.RecordBegin(&testCollider{id: 2, owner: &testItem{id: 2}})
		require.Equal(t, 1, tracker.Count())
		_, ok := tracker.Item(1)
		require.False(t, ok)
		require.Zero(t, c.exited)
	})

	t.Run("begin with a dead primitive enters then exits", func(t *testing.T) {
		tracker, c := newTestTracker(Options[*testCollider, *testItem]{
			Liveness: isTestColliderAlive,
		})

		tracker.RecordBegin(&testCollider{id: 1, owner: &testItem{id: 1}, disabled: true})
		require.Zero(t, tracker.Count())
		require.Equal(t, []string{"added", "entered", "removed", "exited"}, c.events)
	})

	t.Run("deferred sweep waits for sweep call", func(t *testing.T) {
		tracker, c := newTestTracker(Options[*testCollider, *testItem]{
			Liveness:      isTestColliderAlive,
			DeferredSweep: true,
		})
		c1 := &testCollider{id: 1, owner: &testItem{id: 1}}

		tracker.RecordBegin(c1)
		c1.disabled = true

		tracker.RecordBegin(&testCollider{id: 2, owner: &testItem{id: 2}})
		require.Equal(t, 2, tracker.Count())

		tracker.Sweep()
		require.Equal(t, 1, tracker.Count())
		require.Equal(t, 1, c.exited)
	})

	t.Run("sweep without liveness is a no-op", func(t *testing.T) {
		tracker, c := newTestTracker(Options[*testCollider, *testItem]{})
		c1 := &testCollider{id: 1, owner: &testItem{id: 1}}

		tracker.RecordBegin(c1)
		c1.disabled = true

		tracker.Sweep()
		tracker.RecordBegin(&testCollider{id: 2, owner: &testItem{id: 2}})
		require.Equal(t, 2, tracker.Count())
		require.Zero(t, c.exited)
	})

	t.Run("stale exits are raised in item id order", func(t *testing.T) {
		tracker, c := newTestTracker(Options[*testCollider, *testItem]{
			Liveness:      isTestColliderAlive,
			DeferredSweep: true,
		})

		var colliders []*testCollider
		for i := uint32(1); i <= 4; i++ {
			collider := &testCollider{id: i, owner: &testItem{id: 10 - i}}
			colliders = append(colliders, collider)
			tracker.RecordBegin(collider)
		}

		for _, collider := range colliders {
			collider.disabled = true
		}

		tracker.Sweep()
		require.Zero(t, tracker.Count())
		require.Equal(t, []uint32{6, 7, 8, 9}, c.removed)
	})
}

func TestTrackerClear(t *testing.T) {
	tracker, c := newTestTracker(Options[*testCollider, *testItem]{})
	tracker.RecordBegin(&testCollider{id: 1, owner: &testItem{id: 1}})
	tracker.RecordBegin(&testCollider{id: 2, owner: &testItem{id: 2}})
	require.Equal(t, 2, tracker.Count())

	tracker.Clear()
	require.Zero(t, tracker.Count())
	require.Empty(t, tracker.Items())
	require.Zero(t, c.exited)
	require.Empty(t, c.removed)
}

func TestTrackerReentrancy(t *testing.T) {
	t.Run("begin from a callback is queued", func(t *testing.T) {
		item := &testItem{id: 2}
		var tracker *Tracker[*testCollider, *testItem]
		var countInCallback int

		tracker, c := newTestTracker(Options[*testCollider, *testItem]{
			Hooks: Hooks[*testItem]{
				OnItemAdded: func(i *testItem) {
					if i.id != 1 {
						return
					}
					tracker.RecordBegin(&testCollider{id: 2, owner: item})
					countInCallback = tracker.Count()
				},
			},
		})

		tracker.RecordBegin(&testCollider{id: 1, owner: &testItem{id: 1}})
		require.Equal(t, 1, countInCallback)
		require.Equal(t, 2, tracker.Count())
		require.Equal(t, []uint32{1, 2}, c.added)
		require.Equal(t, []string{"added", "entered", "added", "entered"}, c.events)
	})

	t.Run("clear from a callback is queued", func(t *testing.T) {
		var tracker *Tracker[*testCollider, *testItem]

		tracker, c := newTestTracker(Options[*testCollider, *testItem]{
			Hooks: Hooks[*testItem]{
				OnItemAdded: func(*testItem) {
					tracker.Clear()
				},
			},
		})

		tracker.RecordBegin(&testCollider{id: 1, owner: &testItem{id: 1}})
		require.Zero(t, tracker.Count())
		require.Equal(t, 1, c.entered)
	})
}
