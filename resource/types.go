package resource

// Handle is an opaque reference to a resource in a table.
// Handle 0 is reserved and always invalid.
//
// The low 20 bits hold the slot index plus one and the high 12 bits hold the
// slot generation, so a handle that was already reclaimed does not resolve to
// a later value stored in the same slot.
type Handle uint32

const (
	indexBits = 20
	indexMask = 1<<indexBits - 1
	genMask   = 1<<(32-indexBits) - 1

	// MaxEntries is the maximum number of live resources in one backend.
	MaxEntries = indexMask
)

func makeHandle(index int, gen uint32) Handle {
	return Handle(gen<<indexBits | uint32(index+1))
}

func (h Handle) index() int {
	return int(uint32(h)&indexMask) - 1
}

func (h Handle) gen() uint32 {
	return uint32(h) >> indexBits
}

// Predefined type IDs for values the bridge leaks across the boundary.
const (
	TypeCompletion uint32 = iota + 1
	TypeWorkerBundle
)

// Event types for resource lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
	EventReclaimed
)

func (e EventType) String() string {
	switch e {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	case EventReclaimed:
		return "reclaimed"
	}
	return "unknown"
}

// Event represents a resource lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	TypeID uint32
	Type   EventType
}

// Observer receives notifications about resource lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// Backend provides the underlying storage mechanism for resources.
type Backend interface {
	// Create stores a value and returns a handle.
	Create(typeID uint32, value any) (Handle, error)

	// Get retrieves a value by handle.
	Get(handle Handle) (any, bool)

	// Take removes a resource and returns its value and type.
	// It succeeds at most once per handle.
	Take(handle Handle) (any, uint32, bool)

	// Close releases all resources held by the backend.
	Close() error
}

// Table manages resources with type information and observer support.
type Table interface {
	// Insert adds a value and returns its handle.
	Insert(typeID uint32, value any) Handle

	// Get retrieves a value by handle.
	Get(handle Handle) (any, bool)

	// GetTyped retrieves a value only if it matches the expected type.
	GetTyped(handle Handle, typeID uint32) (any, bool)

	// Take removes a value of the expected type without dropping it.
	Take(handle Handle, typeID uint32) (any, bool)

	// Remove drops a resource and returns (value, true) if found.
	Remove(handle Handle) (any, bool)

	// Subscribe adds an observer for lifecycle events.
	Subscribe(Observer)

	// Unsubscribe removes an observer.
	Unsubscribe(Observer)

	// Len returns the number of active resources.
	Len() int

	// Clear drops all resources.
	Clear()

	// Close releases all resources and stops accepting operations.
	Close() error
}

// Dropper is optionally implemented by resource values that need cleanup.
type Dropper interface {
	Drop()
}
