package models

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/overlap/dispatch"
	"github.com/aukilabs/overlap/sensor"
	"github.com/google/uuid"
)

const (
	ErrTypeEntityNotFound   = "entity-not-found"
	ErrTypeColliderNotFound = "collider-not-found"
	ErrTypeSensorNotFound   = "sensor-not-found"
)

// EntityTracker is a sensor tracking world entities through their colliders.
type EntityTracker = sensor.Tracker[*Collider, *Entity]

// SensorDefinition describes a sensor created in every world.
type SensorDefinition struct {
	Name             string
	Policy           sensor.Policy[*Collider, *Entity]
	DeferredSweep    bool
	SilentStalePrune bool
}

type EventKind int

const (
	OverlapBegin EventKind = iota
	OverlapEnd
	SensorClear
)

func (k EventKind) String() string {
	switch k {
	case OverlapBegin:
		return "overlap_begin"
	case OverlapEnd:
		return "overlap_end"
	case SensorClear:
		return "sensor_clear"
	default:
		return "unknown"
	}
}

// OverlapEvent is a sensor event waiting to be applied on the frame goroutine.
type OverlapEvent struct {
	Kind       EventKind
	Sensor     string
	ColliderID uint32
}

// Transition is emitted when an entity enters or exits a sensor.
type Transition struct {
	Sensor   string
	EntityID uint32
	Entered  bool
}

// Occupancy is emitted after a transition with the number of entities inside
// the sensor.
type Occupancy struct {
	Sensor string
	Count  int
}

// World contains the entities, colliders and sensors shared by a group of
// participants.
//
// Sensors are only touched from the frame goroutine. Other goroutines queue
// events with EnqueueOverlap and read the published snapshots.
type World struct {
	ID        uint32
	WorldUUID string

	Transitions dispatch.Signal[Transition]
	Occupancy   dispatch.Signal[Occupancy]

	participantIDs   SequentialIDGenerator
	participantMutex sync.RWMutex
	participants     map[uint32]*Participant

	entityIDs   SequentialIDGenerator
	colliderIDs SequentialIDGenerator
	entityMutex sync.RWMutex
	entities    map[uint32]*Entity
	colliders   map[uint32]*Collider

	sensors     map[string]*EntityTracker
	sensorNames []string
	deferred    []*EntityTracker

	eventMutex sync.Mutex
	events     []OverlapEvent

	stepMutex sync.Mutex
	closed    bool

	snapshotMutex sync.RWMutex
	snapshots     map[string]sensor.Snapshot

	startFrameOnce  sync.Once
	closeFrameChan  chan struct{}
	frameTicker     *time.Ticker
	frameHandlerIDs SequentialIDGenerator
	frameHandlers   map[uint32]func()
	frameMutex      sync.RWMutex

	closeOnce sync.Once
}

func NewWorld(id uint32, frameDuration time.Duration, sensors ...SensorDefinition) *World {
	w := &World{
		ID:             id,
		WorldUUID:      uuid.New().String(),
		closeFrameChan: make(chan struct{}, 1),
		frameTicker:    time.NewTicker(frameDuration),
		participants:   make(map[uint32]*Participant),
		entities:       make(map[uint32]*Entity),
		colliders:      make(map[uint32]*Collider),
		sensors:        make(map[string]*EntityTracker, len(sensors)),
		snapshots:      make(map[string]sensor.Snapshot, len(sensors)),
		frameHandlers:  make(map[uint32]func()),
	}

	for _, d := range sensors {
		w.addSensor(d)
	}
	slices.Sort(w.sensorNames)

	return w
}

func (w *World) addSensor(d SensorDefinition) {
	name := d.Name
	if _, ok := w.sensors[name]; ok {
		logs.WithTag("world_id", w.ID).
			WithTag("sensor", name).
			Warn(errors.New("duplicated sensor ignored"))
		return
	}

	var t *EntityTracker
	occupancy := func() Occupancy {
		return Occupancy{
			Sensor: name,
			Count:  t.Count(),
		}
	}

	t = sensor.New(name, w.Resolve, sensor.Options[*Collider, *Entity]{
		World:  w.WorldUUID,
		Policy: d.Policy,
		Hooks: sensor.Hooks[*Entity]{
			OnItemAdded: func(e *Entity) {
				w.Transitions.Emit(Transition{
					Sensor:   name,
					EntityID: e.ID,
					Entered:  true,
				})
			},
			OnItemRemoved: func(e *Entity) {
				w.Transitions.Emit(Transition{
					Sensor:   name,
					EntityID: e.ID,
				})
			},
		},
		Liveness:         w.IsAlive,
		DeferredSweep:    d.DeferredSweep,
		SilentStalePrune: d.SilentStalePrune,
		ItemName:         (*Entity).DisplayName,
		Debug:            w.publishSnapshot,
	})
	t.Entered = w.Occupancy.Func(occupancy)
	t.Exited = w.Occupancy.Func(occupancy)

	w.sensors[name] = t
	w.sensorNames = append(w.sensorNames, name)
	if d.DeferredSweep {
		w.deferred = append(w.deferred, t)
	}
	w.publishSnapshot(t.Snapshot())
}

// Close stops the frame dispatch and closes the sensors. It waits for a
// running Step to complete.
func (w *World) Close() {
	w.closeOnce.Do(func() {
		w.frameTicker.Stop()
		w.closeFrameChan <- struct{}{}

		w.stepMutex.Lock()
		defer w.stepMutex.Unlock()

		w.closed = true
		for _, name := range w.sensorNames {
			w.sensors[name].Close()
		}
	})
}

func (w *World) NewParticipantID() uint32 {
	return w.participantIDs.New()
}

func (w *World) AddParticipant(p *Participant) {
	w.participantMutex.Lock()
	defer w.participantMutex.Unlock()

	w.participants[p.ID] = p
}

func (w *World) RemoveParticipant(p *Participant) {
	w.participantMutex.Lock()
	defer w.participantMutex.Unlock()

	delete(w.participants, p.ID)
	w.participantIDs.Reuse(p.ID)
}

func (w *World) GetParticipants() []*Participant {
	w.participantMutex.RLock()
	defer w.participantMutex.RUnlock()

	participants := make([]*Participant, 0, len(w.participants))
	for _, p := range w.participants {
		participants = append(participants, p)
	}
	return participants
}

func (w *World) ParticipantCount() int {
	w.participantMutex.RLock()
	defer w.participantMutex.RUnlock()

	return len(w.participants)
}

// AddEntity registers a new entity. Entity ids are never reused within a
// world so that a sensor can not mistake a new entity for a removed one.
func (w *World) AddEntity(p *Participant, name, kind string, persist bool) *Entity {
	e := &Entity{
		ID:            w.entityIDs.New(),
		ParticipantID: p.ID,
		Name:          name,
		Kind:          kind,
		Persist:       persist,
	}

	w.entityMutex.Lock()
	w.entities[e.ID] = e
	w.entityMutex.Unlock()

	p.AddEntity(e)
	return e
}

// RemoveEntity destroys an entity and its colliders. No overlap end event is
// produced: sensors notice the removal through their liveness check.
func (w *World) RemoveEntity(e *Entity) {
	w.entityMutex.Lock()
	defer w.entityMutex.Unlock()

	e.Destroy()
	for _, id := range e.ColliderIDs() {
		if c, ok := w.colliders[id]; ok {
			c.remove()
			delete(w.colliders, id)
		}
	}
	delete(w.entities, e.ID)
}

func (w *World) EntityByID(id uint32) (*Entity, bool) {
	w.entityMutex.RLock()
	defer w.entityMutex.RUnlock()

	e, ok := w.entities[id]
	return e, ok
}

func (w *World) Entities() []*Entity {
	w.entityMutex.RLock()
	defer w.entityMutex.RUnlock()

	entities := make([]*Entity, 0, len(w.entities))
	for _, e := range w.entities {
		entities = append(entities, e)
	}
	return entities
}

// AddCollider attaches a new collider to the given entity. Collider ids are
// never reused within a world.
func (w *World) AddCollider(entityID uint32, layer string) (*Collider, error) {
	w.entityMutex.Lock()
	defer w.entityMutex.Unlock()

	e, ok := w.entities[entityID]
	if !ok || e.Destroyed() {
		return nil, errors.New("entity not found").
			WithType(ErrTypeEntityNotFound).
			WithTag("entity_id", entityID)
	}

	c := &Collider{
		ID:       w.colliderIDs.New(),
		EntityID: entityID,
		Layer:    layer,
	}
	w.colliders[c.ID] = c
	e.addCollider(c)
	return c, nil
}

func (w *World) ColliderByID(id uint32) (*Collider, bool) {
	w.entityMutex.RLock()
	defer w.entityMutex.RUnlock()

	c, ok := w.colliders[id]
	return c, ok
}

// Resolve returns the entity that owns the given collider. Disabled colliders
// still resolve so that their overlap end is applied. Step never begins an
// overlap with them.
func (w *World) Resolve(c *Collider) (sensor.Resolution[*Entity], bool) {
	if c == nil || c.Removed() {
		return sensor.Resolution[*Entity]{}, false
	}

	e, ok := w.EntityByID(c.EntityID)
	if !ok || e.Destroyed() {
		return sensor.Resolution[*Entity]{}, false
	}

	return sensor.Resolution[*Entity]{
		Item:        e,
		ItemID:      sensor.ItemID(e.ID),
		PrimitiveID: sensor.PrimitiveID(c.ID),
	}, true
}

// IsAlive reports whether a collider is still registered and enabled, and
// whether its entity still exists.
func (w *World) IsAlive(c *Collider) bool {
	if c == nil || !c.Enabled() {
		return false
	}

	w.entityMutex.RLock()
	defer w.entityMutex.RUnlock()

	if registered, ok := w.colliders[c.ID]; !ok || registered != c {
		return false
	}

	e, ok := w.entities[c.EntityID]
	return ok && !e.Destroyed()
}

// SensorNames returns the sorted names of the world sensors.
func (w *World) SensorNames() []string {
	return slices.Clone(w.sensorNames)
}

func (w *World) HasSensor(name string) bool {
	_, ok := w.sensors[name]
	return ok
}

// EnqueueOverlap queues a sensor event. It is safe to call from any
// goroutine. The event is applied during the next Step.
func (w *World) EnqueueOverlap(e OverlapEvent) error {
	if !w.HasSensor(e.Sensor) {
		return errors.New("sensor not found").
			WithType(ErrTypeSensorNotFound).
			WithTag("sensor", e.Sensor)
	}

	w.eventMutex.Lock()
	defer w.eventMutex.Unlock()

	w.events = append(w.events, e)
	return nil
}

// Step applies the queued events in order then runs the deferred sweeps. It
// must only be called from the frame goroutine.
func (w *World) Step() {
	w.stepMutex.Lock()
	defer w.stepMutex.Unlock()

	if w.closed {
		return
	}

	w.eventMutex.Lock()
	events := w.events
	w.events = nil
	w.eventMutex.Unlock()

	for _, e := range events {
		w.apply(e)
	}

	for _, t := range w.deferred {
		t.Sweep()
	}
}

func (w *World) apply(e OverlapEvent) {
	t := w.sensors[e.Sensor]

	switch e.Kind {
	case OverlapBegin:
		c, ok := w.ColliderByID(e.ColliderID)
		if !ok || !c.Enabled() {
			logs.WithTag("world_id", w.ID).
				WithTag("sensor", e.Sensor).
				WithTag("collider_id", e.ColliderID).
				Debug("overlap begin on dead collider skipped")
			return
		}
		t.RecordBegin(c)

	case OverlapEnd:
		c, _ := w.ColliderByID(e.ColliderID)
		t.RecordEnd(c)

	case SensorClear:
		t.Clear()

	default:
		logs.WithTag("world_id", w.ID).
			WithTag("sensor", e.Sensor).
			WithTag("kind", e.Kind).
			Debug("unknown sensor event skipped")
	}
}

func (w *World) publishSnapshot(s sensor.Snapshot) {
	w.snapshotMutex.Lock()
	defer w.snapshotMutex.Unlock()

	w.snapshots[s.Sensor] = s
}

// Snapshot returns the last published snapshot of the named sensor.
func (w *World) Snapshot(name string) (sensor.Snapshot, bool) {
	w.snapshotMutex.RLock()
	defer w.snapshotMutex.RUnlock()

	s, ok := w.snapshots[name]
	return s, ok
}

// Snapshots returns the last published snapshots sorted by sensor name.
func (w *World) Snapshots() []sensor.Snapshot {
	w.snapshotMutex.RLock()
	defer w.snapshotMutex.RUnlock()

	snapshots := make([]sensor.Snapshot, 0, len(w.sensorNames))
	for _, name := range w.sensorNames {
		snapshots = append(snapshots, w.snapshots[name])
	}
	return snapshots
}

func (w *World) HandleFrame(h func()) (cancel func()) {
	w.frameMutex.Lock()
	defer w.frameMutex.Unlock()

	id := w.frameHandlerIDs.New()
	w.frameHandlers[id] = h

	return func() {
		w.frameMutex.Lock()
		defer w.frameMutex.Unlock()

		delete(w.frameHandlers, id)
		w.frameHandlerIDs.Reuse(id)
	}
}

// StartDispatchFrames steps the world and calls the frame handlers on every
// tick until the world is closed.
func (w *World) StartDispatchFrames() {
	w.startFrameOnce.Do(func() {
		for {
			select {
			case <-w.closeFrameChan:
				return

			case <-w.frameTicker.C:
				w.Step()

				w.frameMutex.RLock()
				for _, h := range w.frameHandlers {
					h()
				}
				w.frameMutex.RUnlock()
			}
		}
	})
}

// WorldStore holds the worlds hosted by the server.
type WorldStore struct {
	// Prefix of the global world ids.
	ServerID string

	// The interval between two world steps.
	FrameDuration time.Duration

	// The sensors created in every world.
	Sensors []SensorDefinition

	initOnce sync.Once
	mutex    sync.RWMutex
	worlds   map[string]*World
	ids      SequentialIDGenerator
}

func (s *WorldStore) init() {
	s.worlds = map[string]*World{}

	if s.ServerID == "" {
		s.ServerID = "overlap"
	}
	if s.FrameDuration <= 0 {
		s.FrameDuration = time.Millisecond * 15
	}
}

// Create creates and registers a world. The caller starts its frame dispatch.
func (s *WorldStore) Create(ctx context.Context) *World {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	w := NewWorld(s.ids.New(), s.FrameDuration, s.Sensors...)
	s.worlds[s.globalWorldID(w.ID)] = w

	instrumentIncreaseWorldGauge()
	instrumentCountWorld()
	return w
}

// Remove unregisters and closes a world.
func (s *WorldStore) Remove(ctx context.Context, w *World) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	id := s.globalWorldID(w.ID)
	if _, ok := s.worlds[id]; !ok {
		return
	}

	delete(s.worlds, id)
	w.Close()
	s.ids.Reuse(w.ID)

	instrumentDecreaseWorldGauge()
}

func (s *WorldStore) GetByGlobalID(v string) (*World, bool) {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	w, ok := s.worlds[v]
	return w, ok
}

// Worlds returns the hosted worlds sorted by id.
func (s *WorldStore) Worlds() []*World {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	worlds := make([]*World, 0, len(s.worlds))
	for _, w := range s.worlds {
		worlds = append(worlds, w)
	}
	slices.SortFunc(worlds, func(a, b *World) int {
		return int(a.ID) - int(b.ID)
	})
	return worlds
}

func (s *WorldStore) GlobalWorldID(worldID uint32) string {
	s.initOnce.Do(s.init)
	return s.globalWorldID(worldID)
}

func (s *WorldStore) globalWorldID(worldID uint32) string {
	return fmt.Sprintf("%sx%x", s.ServerID, worldID)
}
