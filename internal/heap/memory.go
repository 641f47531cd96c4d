package heap

import (
	"github.com/taktoa/language-boogie/internal/value"
)

// Memory is the interpreter's full mutable state: locals, globals, an
// old-globals snapshot, the set of globals modified since procedure entry,
// constants, and the Heap. Like Heap, every mutating method returns a new
// Memory; callers that want to keep the receiver around (e.g. to retry a
// goto alternative) simply don't discard it.
type Memory struct {
	Locals     map[string]value.Value
	Globals    map[string]value.Value
	OldGlobals map[string]value.Value
	Modified   map[string]bool
	Constants  map[string]value.Value
	Heap       *Heap

	// InOld is set while evaluating inside an `old(...)` scope; nesting
	// does not re-save.
	InOld bool
}

func NewMemory() *Memory {
	return &Memory{
		Locals:     map[string]value.Value{},
		Globals:    map[string]value.Value{},
		OldGlobals: map[string]value.Value{},
		Modified:   map[string]bool{},
		Constants:  map[string]value.Value{},
		Heap:       New(),
	}
}

// clone makes a shallow copy of every map (cheap: maps hold only Values,
// which are themselves immutable) and shares the persistent Heap, which is
// already structurally shared.
func (m *Memory) clone() *Memory {
	cp := func(src map[string]value.Value) map[string]value.Value {
		dst := make(map[string]value.Value, len(src))
		for k, v := range src {
			dst[k] = v
		}
		return dst
	}
	cpb := func(src map[string]bool) map[string]bool {
		dst := make(map[string]bool, len(src))
		for k, v := range src {
			dst[k] = v
		}
		return dst
	}
	return &Memory{
		Locals:     cp(m.Locals),
		Globals:    cp(m.Globals),
		OldGlobals: cp(m.OldGlobals),
		Modified:   cpb(m.Modified),
		Constants:  cp(m.Constants),
		Heap:       m.Heap,
		InOld:      m.InOld,
	}
}

// Clone returns an independent branch of this memory, safe to diverge from
// the receiver; non-deterministic branches never observe each other's
// writes.
func (m *Memory) Clone() *Memory { return m.clone() }

func (m *Memory) WithHeap(h *Heap) *Memory {
	nm := m.clone()
	nm.Heap = h
	return nm
}

// GetLocal/SetLocal, GetGlobal/SetGlobal etc. are simple accessors; they do
// not manage reference counts themselves — callers that overwrite a Ref-
// valued slot are responsible for DecRef'ing the old value and IncRef'ing
// the new one, which internal/eval's slot helpers centralize.

func (m *Memory) GetLocal(name string) (value.Value, bool) {
	v, ok := m.Locals[name]
	return v, ok
}

func (m *Memory) SetLocal(name string, v value.Value) *Memory {
	nm := m.clone()
	nm.Locals[name] = v
	return nm
}

func (m *Memory) UnsetLocal(name string) *Memory {
	nm := m.clone()
	delete(nm.Locals, name)
	return nm
}

// GetGlobal reads a global, honoring InOld.
func (m *Memory) GetGlobal(name string) (value.Value, bool) {
	if m.InOld {
		v, ok := m.OldGlobals[name]
		return v, ok
	}
	v, ok := m.Globals[name]
	return v, ok
}

// SetGlobal writes a global and marks it modified. If the global has a
// current value that has not yet been mirrored into OldGlobals, that value
// is mirrored first so that a later `old(x)` sees it. A global that had no
// value before its first write is mirrored on its next write, so `old(x)`
// then sees the first written value.
func (m *Memory) SetGlobal(name string, v value.Value) *Memory {
	nm := m.clone()
	if _, hasOld := nm.OldGlobals[name]; !hasOld && !nm.InOld {
		if old, ok := nm.Globals[name]; ok {
			nm.OldGlobals[name] = old
		}
	}
	nm.Globals[name] = v
	nm.Modified[name] = true
	return nm
}

// MirrorToOld is called by internal/eval's lazy global initialization: the
// first time an uninitialized global is materialized outside an old-scope,
// its freshly-drawn value is also recorded as the old value.
func (m *Memory) MirrorToOld(name string, v value.Value) *Memory {
	nm := m.clone()
	nm.OldGlobals[name] = v
	return nm
}

// EnterOld/ExitOld toggle InOld. Nested Old is a no-op at the memory level
// (the caller's ExitOld restores whatever InOld was before its EnterOld, so
// nesting composes correctly without re-snapshotting).
func (m *Memory) EnterOld() *Memory {
	nm := m.clone()
	nm.InOld = true
	return nm
}

func (m *Memory) ExitOld(wasInOld bool) *Memory {
	nm := m.clone()
	nm.InOld = wasInOld
	return nm
}

// RestoreOld folds a callee's old values back in on return from a
// procedure call, partitioning on the caller's modified set: a global the
// caller had not yet modified adopts the callee's (possibly
// freshly-initialized) old value, while one the caller had already
// modified keeps the caller's own old value untouched.
func (m *Memory) RestoreOld(calleeOld map[string]value.Value) *Memory {
	nm := m.clone()
	for name, v := range calleeOld {
		if !nm.Modified[name] {
			nm.OldGlobals[name] = v
		}
	}
	return nm
}

// ForgetLocal removes a local's current value (havoc), letting the next
// read re-materialize it lazily. The caller decrements the heap refcount
// first if the old value was a *value.Ref.
func (m *Memory) ForgetLocal(name string) *Memory {
	return m.UnsetLocal(name)
}

// ForgetGlobal removes a global's current value and marks it modified, the
// global analogue of ForgetLocal.
func (m *Memory) ForgetGlobal(name string) *Memory {
	nm := m.clone()
	delete(nm.Globals, name)
	nm.Modified[name] = true
	return nm
}

func (m *Memory) GetConstant(name string) (value.Value, bool) {
	v, ok := m.Constants[name]
	return v, ok
}

func (m *Memory) SetConstant(name string, v value.Value) *Memory {
	nm := m.clone()
	nm.Constants[name] = v
	return nm
}

// InitGlobal records a lazily materialized global without marking it
// modified: materialization is not a program write, and a later first write
// must still see an unmodified global.
func (m *Memory) InitGlobal(name string, v value.Value) *Memory {
	nm := m.clone()
	nm.Globals[name] = v
	return nm
}

// UnsetGlobal removes a global's value without marking it modified, used to
// clear an under-construction sentinel when a definition turns out not to
// apply.
func (m *Memory) UnsetGlobal(name string) *Memory {
	nm := m.clone()
	delete(nm.Globals, name)
	return nm
}

func (m *Memory) UnsetConstant(name string) *Memory {
	nm := m.clone()
	delete(nm.Constants, name)
	return nm
}

// MarkModified records a modification without touching the value, used when
// merging a callee's modified set back into the caller's.
func (m *Memory) MarkModified(name string) *Memory {
	nm := m.clone()
	nm.Modified[name] = true
	return nm
}

// EnterCall opens a fresh procedure frame: empty locals, empty old store,
// empty modified set. Globals, constants, and the heap carry over.
func (m *Memory) EnterCall() *Memory {
	nm := m.clone()
	nm.Locals = map[string]value.Value{}
	nm.OldGlobals = map[string]value.Value{}
	nm.Modified = map[string]bool{}
	nm.InOld = false
	return nm
}

// ExitCall restores the caller's locals, old store, and modified set after
// a procedure frame ends. The callee's old values and modifications are
// folded back in separately (RestoreOld, MarkModified).
func (m *Memory) ExitCall(locals, oldGlobals map[string]value.Value, modified map[string]bool) *Memory {
	nm := m.clone()
	nm.Locals = locals
	nm.OldGlobals = oldGlobals
	nm.Modified = modified
	return nm
}

// ModifiedSet returns the names modified since procedure entry, used both
// by havoc-synthesis for procedures without an implementation and by
// RestoreOld.
func (m *Memory) ModifiedSet() map[string]bool {
	return m.Modified
}

// ResetModified clears the modified set, called on procedure entry.
func (m *Memory) ResetModified() *Memory {
	nm := m.clone()
	nm.Modified = map[string]bool{}
	return nm
}
