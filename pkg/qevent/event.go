package qevent

import "sync/atomic"

// Signal identifies the kind of an event. Values below SigUser are
// reserved for the HSM contract (entry/exit/init); application signals
// start at SigUser.
type Signal uint32

const (
	SigEmpty Signal = 0
	SigEntry Signal = 1
	SigExit  Signal = 2
	SigInit  Signal = 3

	// SigUser is the first signal value applications may assign freely.
	SigUser Signal = 16
)

// Flags is a bitset carried only by extended events.
type Flags uint8

const (
	FlagMergeable Flags = 1 << iota
	FlagCritical
	FlagNoDrop
)

// ExtFields holds the fields an extended event carries on top of the base
// event. A nil *ExtFields on an Event marks it as a base event.
type ExtFields struct {
	Timestamp  int64
	Priority   uint8
	Flags      Flags
	RetryCount uint8
}

// Event is a single posted unit of work. The zero value is not meaningful;
// events are produced by NewStatic or a Manager's Alloc/AllocExtended.
//
// poolID == 0 marks a static event: caller-owned, never refcounted, never
// recycled. poolID > 0 marks a dynamic event owned by the pool with that
// id (1-based, so the zero value stays reserved for "static").
type Event struct {
	sig    Signal
	poolID int32
	refCtr int32
	// state is 1 while a dynamic event is checked out of its pool and 0
	// once recycled; it exists solely so Manager.GC can tell a genuine
	// double free/use-after-free apart from a normal decrement. Static
	// events never touch it.
	state int32
	ext   *ExtFields
}

// NewStatic returns a caller-owned event that is never pool-managed. Static
// events may be posted any number of times and must never be passed to
// Manager.IncRef or Manager.GC.
func NewStatic(sig Signal) *Event {
	return &Event{sig: sig}
}

// NewStaticExtended is NewStatic for an event that also carries the
// extended fields (priority/flags used by qdispatch's classification).
func NewStaticExtended(sig Signal, priority uint8, flags Flags) *Event {
	return &Event{sig: sig, ext: &ExtFields{Priority: priority, Flags: flags}}
}

// Sig returns the event's signal.
func (e *Event) Sig() Signal { return e.sig }

// PoolID returns the owning pool's 1-based id, or 0 for a static event.
func (e *Event) PoolID() int32 { return atomic.LoadInt32(&e.poolID) }

// IsStatic reports whether e is caller-owned and never refcounted.
func (e *Event) IsStatic() bool { return e.PoolID() == 0 }

// Extended returns e's extended fields and whether e is an extended event.
// A base event's second return is false; callers must not assume Priority,
// Flags or RetryCount are meaningful unless ok is true.
func (e *Event) Extended() (*ExtFields, bool) {
	if e.ext == nil {
		return nil, false
	}
	return e.ext, true
}

// RefCount returns the current refcount. Always 0 for a static event.
func (e *Event) RefCount() int32 { return atomic.LoadInt32(&e.refCtr) }

// reset restores a recycled block to its just-allocated state before it is
// returned to a free list. Only called by Pool.put while the pool is the
// sole owner of e (refCtr has already reached zero or below).
func (e *Event) reset() {
	atomic.StoreInt32(&e.refCtr, 0)
	e.sig = SigEmpty
	e.ext = nil
}

func (e *Event) checkedOut() bool { return atomic.LoadInt32(&e.state) == 1 }
func (e *Event) markCheckedOut()  { atomic.StoreInt32(&e.state, 1) }
func (e *Event) markFree()        { atomic.StoreInt32(&e.state, 0) }
