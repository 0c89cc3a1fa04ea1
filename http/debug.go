package http

import (
	"net/http"

	"github.com/aukilabs/overlap/models"
	"github.com/aukilabs/overlap/sensor"
)

// WorldSensors is the debug view of the sensors of a world.
type WorldSensors struct {
	WorldID      string            `json:"world_id"`
	WorldUUID    string            `json:"world_uuid"`
	Participants int               `json:"participants"`
	Sensors      []sensor.Snapshot `json:"sensors"`
}

// HandleSensorSnapshots serves the last published sensor snapshots of every
// world. The world query parameter restricts the output to a single world.
func HandleSensorSnapshots(worlds *models.WorldStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		if id := r.URL.Query().Get("world"); id != "" {
			world, ok := worlds.GetByGlobalID(id)
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}

			writeJSON(w, http.StatusOK, worldSensors(worlds, world))
			return
		}

		res := []WorldSensors{}
		for _, world := range worlds.Worlds() {
			res = append(res, worldSensors(worlds, world))
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func worldSensors(worlds *models.WorldStore, w *models.World) WorldSensors {
	return WorldSensors{
		WorldID:      worlds.GlobalWorldID(w.ID),
		WorldUUID:    w.WorldUUID,
		Participants: w.ParticipantCount(),
		Sensors:      w.Snapshots(),
	}
}
