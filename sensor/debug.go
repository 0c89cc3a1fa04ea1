package sensor

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// Snapshot is a point in time view of a tracker, meant for debugging.
type Snapshot struct {
	Sensor string          `json:"sensor"`
	Count  int             `json:"count"`
	Items  []SnapshotEntry `json:"items"`
}

type SnapshotEntry struct {
	ItemID     ItemID `json:"item_id"`
	Name       string `json:"name,omitempty"`
	Primitives int    `json:"primitives"`
}

func (s Snapshot) String() string {
	var b strings.Builder
	for _, e := range s.Items {
		name := e.Name
		if name == "" {
			name = fmt.Sprintf("item-%d", e.ItemID)
		}
		fmt.Fprintf(&b, "%s (%d)\n", name, e.Primitives)
	}
	return b.String()
}

// Snapshot returns the overlapping items ordered by id. Items that can't be
// named are left out.
func (t *Tracker[P, T]) Snapshot() Snapshot {
	ids := make([]ItemID, 0, len(t.records))
	for id := range t.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	snapshot := Snapshot{
		Sensor: t.name,
		Count:  len(t.records),
		Items:  make([]SnapshotEntry, 0, len(ids)),
	}

	for _, id := range ids {
		r := t.records[id]

		name, ok := t.nameItem(id, r.Item)
		if !ok {
			continue
		}

		snapshot.Items = append(snapshot.Items, SnapshotEntry{
			ItemID:     id,
			Name:       name,
			Primitives: r.Count(),
		})
	}
	return snapshot
}

func (t *Tracker[P, T]) nameItem(id ItemID, item T) (name string, ok bool) {
	if t.opts.ItemName == nil {
		return "", true
	}

	defer func() {
		if r := recover(); r != nil {
			logs.WithTag("sensor", t.name).
				WithTag("item_id", id).
				Debug(errors.New("naming item failed").WithTag("panic", fmt.Sprint(r)))
			name, ok = "", false
		}
	}()

	return t.opts.ItemName(item)
}
