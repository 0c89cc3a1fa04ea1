package sensor

import (
	"slices"
)

// ItemID identifies a logical item for the lifetime of the item.
type ItemID uint32

// PrimitiveID identifies a primitive for the lifetime of the tracker.
type PrimitiveID uint32

// Record is the aggregation of the primitives currently touching an item.
type Record[P, T any] struct {
	Item T

	primitives map[PrimitiveID]P
}

func newRecord[P, T any](item T) *Record[P, T] {
	return &Record[P, T]{
		Item:       item,
		primitives: make(map[PrimitiveID]P),
	}
}

// Add inserts the primitive and reports whether the record multiplicity went
// from zero to one.
func (r *Record[P, T]) Add(id PrimitiveID, handle P) bool {
	if r.primitives == nil {
		r.primitives = make(map[PrimitiveID]P)
	}

	if _, ok := r.primitives[id]; ok {
		return false
	}

	r.primitives[id] = handle
	return len(r.primitives) == 1
}

// Remove deletes the primitive and reports whether the record multiplicity
// went back to zero.
func (r *Record[P, T]) Remove(id PrimitiveID) bool {
	if _, ok := r.primitives[id]; !ok {
		return false
	}

	delete(r.primitives, id)
	return len(r.primitives) == 0
}

func (r *Record[P, T]) Count() int {
	return len(r.primitives)
}

func (r *Record[P, T]) Has(id PrimitiveID) bool {
	_, ok := r.primitives[id]
	return ok
}

// PrimitiveIDs returns the recorded primitive ids in ascending order.
func (r *Record[P, T]) PrimitiveIDs() []PrimitiveID {
	ids := make([]PrimitiveID, 0, len(r.primitives))
	for id := range r.primitives {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
