package sensor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	worldLabel  = "world"
	sensorLabel = "sensor"
	edgeLabel   = "edge"
	causeLabel  = "cause"
	reasonLabel = "reason"

	edgeEntered = "entered"
	edgeExited  = "exited"

	causeEvent = "event"
	causeStale = "stale"

	rejectUnresolved = "unresolved"
	rejectCollider   = "collider"
	rejectItem       = "item"
)

var (
	sensorItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sensor_items",
		Help: "The number of items overlapping a sensor.",
	}, []string{worldLabel, sensorLabel})

	sensorPrimitives = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sensor_primitives",
		Help: "The number of primitives overlapping a sensor.",
	}, []string{worldLabel, sensorLabel})

	sensorTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sensor_transitions_total",
		Help: "The number of item transitions raised by a sensor.",
	}, []string{worldLabel, sensorLabel, edgeLabel, causeLabel})

	sensorStalePrimitives = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sensor_stale_primitives_total",
		Help: "The number of primitives removed by the stale sweep.",
	}, []string{worldLabel, sensorLabel})

	sensorSilentPrunes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sensor_silent_prunes_total",
		Help: "The number of items pruned by the stale sweep without exit.",
	}, []string{worldLabel, sensorLabel})

	sensorRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sensor_rejections_total",
		Help: "The number of overlap events ignored by a sensor.",
	}, []string{worldLabel, sensorLabel, reasonLabel})
)

func instrumentState[P, T any](world, sensor string, records map[ItemID]*Record[P, T]) {
	var primitives int
	for _, r := range records {
		primitives += r.Count()
	}

	sensorItems.
		With(prometheus.Labels{worldLabel: world, sensorLabel: sensor}).
		Set(float64(len(records)))
	sensorPrimitives.
		With(prometheus.Labels{worldLabel: world, sensorLabel: sensor}).
		Set(float64(primitives))
}

func instrumentClear(world, sensor string) {
	sensorItems.
		With(prometheus.Labels{worldLabel: world, sensorLabel: sensor}).
		Set(0)
	sensorPrimitives.
		With(prometheus.Labels{worldLabel: world, sensorLabel: sensor}).
		Set(0)
}

func instrumentTransition(world, sensor string, entered bool, cause string) {
	edge := edgeExited
	if entered {
		edge = edgeEntered
	}

	sensorTransitions.
		With(prometheus.Labels{
			worldLabel:  world,
			sensorLabel: sensor,
			edgeLabel:   edge,
			causeLabel:  cause,
		}).
		Inc()
}

func instrumentStalePrimitives(world, sensor string, n int) {
	sensorStalePrimitives.
		With(prometheus.Labels{worldLabel: world, sensorLabel: sensor}).
		Add(float64(n))
}

func instrumentSilentPrune(world, sensor string) {
	sensorSilentPrunes.
		With(prometheus.Labels{worldLabel: world, sensorLabel: sensor}).
		Inc()
}

func instrumentReject(world, sensor, reason string) {
	sensorRejections.
		With(prometheus.Labels{
			worldLabel:  world,
			sensorLabel: sensor,
			reasonLabel: reason,
		}).
		Inc()
}

// instrumentRemove deletes every series of the given sensor.
func instrumentRemove(world, sensor string) {
	labels := prometheus.Labels{
		worldLabel:  world,
		sensorLabel: sensor,
	}

	sensorItems.DeletePartialMatch(labels)
	sensorPrimitives.DeletePartialMatch(labels)
	sensorTransitions.DeletePartialMatch(labels)
	sensorStalePrimitives.DeletePartialMatch(labels)
	sensorSilentPrunes.DeletePartialMatch(labels)
	sensorRejections.DeletePartialMatch(labels)
}
