package models

import (
	"sync"
)

// Entity is a logical item that can overlap sensors through its colliders.
type Entity struct {
	ID            uint32
	ParticipantID uint32
	Name          string
	Kind          string
	Persist       bool

	mutex       sync.RWMutex
	destroyed   bool
	colliderIDs map[uint32]struct{}
}

func (e *Entity) Destroy() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.destroyed = true
}

func (e *Entity) Destroyed() bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.destroyed
}

func (e *Entity) addCollider(c *Collider) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.colliderIDs == nil {
		e.colliderIDs = make(map[uint32]struct{})
	}
	e.colliderIDs[c.ID] = struct{}{}
}

// ColliderIDs returns the ids of the colliders attached to the entity.
func (e *Entity) ColliderIDs() []uint32 {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	ids := make([]uint32, 0, len(e.colliderIDs))
	for id := range e.colliderIDs {
		ids = append(ids, id)
	}
	return ids
}

// DisplayName returns the entity name. It returns false once the entity is
// destroyed.
func (e *Entity) DisplayName() (string, bool) {
	if e == nil || e.Destroyed() {
		return "", false
	}

	if e.Name == "" {
		return e.Kind, true
	}
	return e.Name, true
}

// Collider is an overlap primitive attached to an entity.
type Collider struct {
	ID       uint32
	EntityID uint32
	Layer    string

	mutex    sync.RWMutex
	disabled bool
	removed  bool
}

func (c *Collider) SetEnabled(v bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.disabled = !v
}

func (c *Collider) Enabled() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return !c.disabled && !c.removed
}

func (c *Collider) remove() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.removed = true
}

func (c *Collider) Removed() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.removed
}
