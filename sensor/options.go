package sensor

// Resolution is the owning item of a raw primitive.
type Resolution[T any] struct {
	Item        T
	ItemID      ItemID
	PrimitiveID PrimitiveID
}

// Resolver maps a raw primitive to the item that owns it. It returns false
// when the primitive has no owner.
type Resolver[P, T any] func(P) (Resolution[T], bool)

// Liveness reports whether a raw primitive still exists and is enabled.
type Liveness[P any] func(P) bool

// Policy filters candidate primitives and items before any state mutation.
// Returning true rejects the candidate. Nil members accept everything.
type Policy[P, T any] struct {
	RejectCollider func(P) bool
	RejectItem     func(T) bool
}

// Hooks are invoked synchronously on item transitions, before the Entered and
// Exited callbacks.
type Hooks[T any] struct {
	OnItemAdded   func(T)
	OnItemRemoved func(T)
}

// Options configures a tracker. The zero value accepts every primitive and
// item and never sweeps.
type Options[P, T any] struct {
	// Identifies the world owning the tracker in metrics. Trackers sharing
	// a name are told apart by it.
	World string

	Policy Policy[P, T]
	Hooks  Hooks[T]

	// Enables the stale sweep. Without it only explicit end events remove
	// primitives.
	Liveness Liveness[P]

	// Stops sweeping after every event. The owner then calls Sweep
	// periodically, typically once per frame.
	DeferredSweep bool

	// Prunes records emptied by the sweep without invoking OnItemRemoved and
	// Exited.
	SilentStalePrune bool

	// Names items in snapshots. Returning false marks the item as invalid and
	// skips it.
	ItemName func(T) (string, bool)

	// Receives a fresh snapshot after every mutation.
	Debug func(Snapshot)
}
