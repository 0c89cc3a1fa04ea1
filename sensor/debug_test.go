package sensor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func nameTestItem(i *testItem) (string, bool) {
	if i.invalid {
		return "", false
	}
	if i.name == "panic" {
		panic("item is gone")
	}
	return i.name, true
}

func TestTrackerSnapshot(t *testing.T) {
	t.Run("snapshot is ordered by item id", func(t *testing.T) {
		tracker, _ := newTestTracker(Options[*testCollider, *testItem]{
			ItemName: nameTestItem,
		})
		ted := &testItem{id: 2, name: "ted"}
		bob := &testItem{id: 1, name: "bob"}

		tracker.RecordBegin(&testCollider{id: 1, owner: ted})
		tracker.RecordBegin(&testCollider{id: 2, owner: ted})
		tracker.RecordBegin(&testCollider{id: 3, owner: bob})

		s := tracker.Snapshot()
		require.Equal(t, "test", s.Sensor)
		require.Equal(t, 2, s.Count)
		require.Equal(t, []SnapshotEntry{
			{ItemID: 1, Name: "bob", Primitives: 1},
			{ItemID: 2, Name: "ted", Primitives: 2},
		}, s.Items)
		require.Equal(t, "bob (1)\nted (2)\n", s.String())
	})

	t.Run("invalid items are skipped", func(t *testing.T) {
		tracker, _ := newTestTracker(Options[*testCollider, *testItem]{
			ItemName: nameTestItem,
		})
		ted := &testItem{id: 1, name: "ted"}
		ghost := &testItem{id: 2, name: "ghost"}
		boom := &testItem{id: 3, name: "panic"}

		tracker.RecordBegin(&testCollider{id: 1, owner: ted})
		tracker.RecordBegin(&testCollider{id: 2, owner: ghost})
		tracker.RecordBegin(&testCollider{id: 3, owner: boom})
		ghost.invalid = true

		var s Snapshot
		require.NotPanics(t, func() {
			s = tracker.Snapshot()
		})
		require.Equal(t, 3, s.Count)
		require.Len(t, s.Items, 1)
		require.Equal(t, "ted", s.Items[0].Name)
	})

	t.Run("unnamed items use their id", func(t *testing.T) {
		tracker, _ := newTestTracker(Options[*testCollider, *testItem]{})
		tracker.RecordBegin(&testCollider{id: 1, owner: &testItem{id: 42}})
		require.Equal(t, "item-42 (1)\n", tracker.Snapshot().String())
	})

	t.Run("debug receives a snapshot after each mutation", func(t *testing.T) {
		var snapshots []Snapshot
		tracker, _ := newTestTracker(Options[*testCollider, *testItem]{
			Debug: func(s Snapshot) {
				snapshots = append(snapshots, s)
			},
		})
		collider := &testCollider{id: 1, owner: &testItem{id: 1}}

		tracker.RecordBegin(collider)
		tracker.RecordEnd(collider)
		tracker.RecordBegin(collider)
		tracker.Clear()

		require.Len(t, snapshots, 4)
		require.Equal(t, 1, snapshots[0].Count)
		require.Zero(t, snapshots[1].Count)
		require.Equal(t, 1, snapshots[2].Count)
		require.Zero(t, snapshots[3].Count)
	})
}
