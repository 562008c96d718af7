// Package address supplies the typed machine-word wrappers the rest of the
// collector is built on: Address (an arbitrary location in the managed
// heap's virtual address space) and ObjectReference (the canonical "ref"
// point of an object, which may differ from its allocation start by a
// binding-chosen offset). Both are newtypes over uintptr so the compiler
// keeps them from being interchanged with plain integers or with each
// other at call sites that matter, the same distinction spec.md §3 draws.
package address

import (
	"fmt"
	"math/bits"
)

// Address is an opaque, totally-ordered machine word denoting a location
// in the heap's virtual address space. The zero Address (ZeroAddress) never
// designates a valid heap location.
type Address uintptr

// ZeroAddress is the distinguished "no address" value.
const ZeroAddress = Address(0)

// ObjectReference designates the canonical reference point of a live
// object. It is distinct from Address so that code paths operating on
// object identity (forwarding, tracing) can't be handed a raw interior
// pointer by accident.
type ObjectReference Address

// ZeroObjectReference is the distinguished "no object" value.
const ZeroObjectReference = ObjectReference(0)

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool { return a == ZeroAddress }

// IsZero reports whether r is the zero object reference.
func (r ObjectReference) IsZero() bool { return r == ZeroObjectReference }

// ToAddress reinterprets an ObjectReference as a plain Address, e.g. to feed
// it into region/chunk lookups that don't care about object identity.
func (r ObjectReference) ToAddress() Address { return Address(r) }

// ToObjectReference reinterprets an Address as an ObjectReference. Callers
// must only do this at a point where the binding's ObjectModel guarantees
// the address is the canonical ref point of a live object.
func (a Address) ToObjectReference() ObjectReference { return ObjectReference(a) }

// Add returns a+n, n may be negative.
func (a Address) Add(n int64) Address { return Address(int64(a) + n) }

// Sub returns the signed byte distance a-b.
func (a Address) Sub(b Address) int64 { return int64(a) - int64(b) }

// LT, LE, GT, GE, EQ give the total order spec.md §3 requires.
func (a Address) LT(b Address) bool { return a < b }
func (a Address) LE(b Address) bool { return a <= b }
func (a Address) GT(b Address) bool { return a > b }
func (a Address) GE(b Address) bool { return a >= b }
func (a Address) EQ(b Address) bool { return a == b }

// AlignDown rounds a down to the nearest multiple of 2^logBytes.
func (a Address) AlignDown(logBytes uint) Address {
	mask := Address(1)<<logBytes - 1
	return a &^ mask
}

// AlignUp rounds a up to the nearest multiple of 2^logBytes.
func (a Address) AlignUp(logBytes uint) Address {
	mask := Address(1)<<logBytes - 1
	return (a + mask) &^ mask
}

// IsAligned reports whether a is a multiple of 2^logBytes.
func (a Address) IsAligned(logBytes uint) bool {
	return uint64(a)&(1<<logBytes-1) == 0
}

// IsPowerOfTwo reports whether bytes is a nonzero power of two.
func IsPowerOfTwo(bytes uint64) bool {
	return bytes != 0 && bits.OnesCount64(bytes) == 1
}

// String renders the address as a 0x-prefixed hex literal, matching the
// teacher's hex() debug-print convention used throughout mheap.go/proc.go.
func (a Address) String() string { return fmt.Sprintf("0x%x", uintptr(a)) }

// String renders the object reference the same way.
func (r ObjectReference) String() string { return fmt.Sprintf("0x%x", uintptr(r)) }
