package qevent

import (
	"sync/atomic"
	"time"
)

// Manager owns a set of Pools sorted ascending by block size and is the
// sole place refcount transitions on dynamic events happen. A Manager is
// safe for concurrent use by many AOs, the dispatcher and the ISR relay at
// once; each Pool guards its own free list independently.
type Manager struct {
	pools         []*Pool
	allocFailures uint64
}

// NewManager returns an empty Manager. Call Register to add size-class
// pools before allocating; Register must be called in ascending blockSize
// order, matching the invariant the dispatcher and allocator rely on.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a new size-class pool. Pools must be registered in
// ascending blockSize order; violating that is a configuration bug and
// panics with a Fault rather than silently misrouting allocations.
func (m *Manager) Register(blockSize, count, margin int) *Pool {
	if len(m.pools) > 0 && blockSize < m.pools[len(m.pools)-1].blockSize {
		panic(Fault{Msg: "qevent: pools must be registered in ascending blockSize order"})
	}
	id := int32(len(m.pools) + 1)
	p := newPool(id, blockSize, count, margin)
	m.pools = append(m.pools, p)
	return p
}

// Pools returns the registered pools in ascending blockSize order. The
// returned slice must not be mutated.
func (m *Manager) Pools() []*Pool { return m.pools }

// AllocFailures returns the number of Alloc/AllocExtended calls that
// returned ErrExhausted.
func (m *Manager) AllocFailures() uint64 { return atomic.LoadUint64(&m.allocFailures) }

// Alloc returns a fresh dynamic base event of the given signal, sized from
// the smallest pool whose blockSize covers size and whose effective margin
// (max of the pool's own margin and marginOverride) is not violated by the
// allocation. Returns ErrExhausted iff every candidate pool is below its
// effective margin, including the case where no pool is large enough.
func (m *Manager) Alloc(size int, sig Signal, marginOverride int) (*Event, error) {
	for _, p := range m.pools {
		if p.blockSize < size {
			continue
		}
		eff := marginOverride
		if p.margin > eff {
			eff = p.margin
		}
		if e, ok := p.tryGet(eff); ok {
			e.sig = sig
			return e, nil
		}
	}
	atomic.AddUint64(&m.allocFailures, 1)
	return nil, ErrExhausted
}

// AllocExtended is Alloc plus the extended fields the dispatcher's
// classification and retry logic need. Timestamp is stamped at allocation
// time.
func (m *Manager) AllocExtended(size int, sig Signal, priority uint8, flags Flags, marginOverride int) (*Event, error) {
	e, err := m.Alloc(size, sig, marginOverride)
	if err != nil {
		return nil, err
	}
	e.ext = &ExtFields{Timestamp: time.Now().UnixNano(), Priority: priority, Flags: flags}
	return e, nil
}

// IncRef adds one reference to a dynamic event. Calling it on a static
// event is a contract violation (static events are never refcounted) and
// panics with a Fault.
func (m *Manager) IncRef(e *Event) {
	if e.IsStatic() {
		panic(Fault{Msg: "incRef called on a static event"})
	}
	if !e.checkedOut() {
		panic(Fault{Msg: "incRef called on a freed event"})
	}
	atomic.AddInt32(&e.refCtr, 1)
}

// GC drops one reference. On a static event it is a documented no-op: it
// never touches poolId or refCtr.
//
// A freshly allocated dynamic event starts with refCtr 0, representing the
// allocating call site's own implicit hold; IncRef is called each time that
// event is handed to a holder (a queue, a staging ring, a subscriber), and
// each holder calls GC once when it is done. The GC call that brings the
// refcount down to zero (or below) is the one that returns the block to
// its pool: after n IncRef calls the n-th GC recycles it, and an event
// that was never handed out is recycled by its first GC.
//
// Calling GC on a block that has already been recycled (or never
// allocated) is a contract violation and panics with a Fault.
func (m *Manager) GC(e *Event) {
	if e.IsStatic() {
		return
	}
	if !e.checkedOut() {
		panic(Fault{Msg: "gc: event is already free (double free or use-after-free)"})
	}
	pool := m.poolByID(e.PoolID())
	if pool == nil {
		panic(Fault{Msg: "gc: event references an unknown pool id"})
	}
	n := atomic.AddInt32(&e.refCtr, -1)
	if n <= 0 {
		pool.put(e)
	}
}

func (m *Manager) poolByID(id int32) *Pool {
	idx := int(id) - 1
	if idx < 0 || idx >= len(m.pools) {
		return nil
	}
	return m.pools[idx]
}
