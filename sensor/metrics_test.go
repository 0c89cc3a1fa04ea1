package sensor

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerMetrics(t *testing.T) {
	t.Run("trackers sharing a name in different worlds", func(t *testing.T) {
		a, _ := newTestTracker(Options[*testCollider, *testItem]{World: "world-a"})
		b, _ := newTestTracker(Options[*testCollider, *testItem]{World: "world-b"})
		defer a.Close()
		defer b.Close()

		ted := &testItem{id: 1}
		bob := &testItem{id: 2}

		a.RecordBegin(&testCollider{id: 1, owner: ted})
		a.RecordBegin(&testCollider{id: 2, owner: ted})

		c := &testCollider{id: 3, owner: bob}
		b.RecordBegin(c)
		b.RecordEnd(c)

		require.Equal(t, 1, a.Count())
		require.Equal(t, 0, b.Count())
		require.Equal(t, float64(1), testutil.ToFloat64(sensorItems.WithLabelValues("world-a", "test")))
		require.Equal(t, float64(2), testutil.ToFloat64(sensorPrimitives.WithLabelValues("world-a", "test")))
		require.Equal(t, float64(0), testutil.ToFloat64(sensorItems.WithLabelValues("world-b", "test")))
		require.Equal(t, float64(1), testutil.ToFloat64(sensorTransitions.WithLabelValues("world-b", "test", edgeExited, causeEvent)))
	})

	t.Run("close removes the tracker series", func(t *testing.T) {
		tracker, counter := newTestTracker(Options[*testCollider, *testItem]{World: "world-c"})

		c := &testCollider{id: 1, owner: &testItem{id: 1}}
		tracker.RecordBegin(c)
		require.Equal(t, float64(1), testutil.ToFloat64(sensorItems.WithLabelValues("world-c", "test")))

		tracker.Close()
		require.Zero(t, tracker.Count())
		require.Zero(t, counter.exited)
		require.False(t, sensorItems.DeleteLabelValues("world-c", "test"))
		require.False(t, sensorTransitions.DeleteLabelValues("world-c", "test", edgeEntered, causeEvent))

		tracker.RecordBegin(c)
		tracker.Init()
		tracker.RecordBegin(c)
		require.Zero(t, tracker.Count())
		require.Equal(t, 1, counter.entered)
		require.False(t, sensorItems.DeleteLabelValues("world-c", "test"))
	})

	t.Run("close from a callback is queued", func(t *testing.T) {
		var tracker *Tracker[*testCollider, *testItem]
		tracker, counter := newTestTracker(Options[*testCollider, *testItem]{
			World: "world-d",
			Hooks: Hooks[*testItem]{
				OnItemAdded: func(*testItem) {
					tracker.Close()
				},
			},
		})

		tracker.RecordBegin(&testCollider{id: 1, owner: &testItem{id: 1}})
		require.Equal(t, 1, counter.entered)
		require.Zero(t, tracker.Count())
		require.False(t, sensorItems.DeleteLabelValues("world-d", "test"))
	})
}
