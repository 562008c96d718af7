package global

import "github.com/gopherheap/gcplan/binding"

// OutOfMemory reports a heap-exhaustion condition through the binding's
// Collection capability, per spec.md §7: "Heap OOM: GlobalState.OutOfMemory
// calls the binding's Collection.OutOfMemory and logs at warn." The logging
// half is the caller's responsibility (gcplan wires a telemetry logger
// around this call); this method only forwards the notification to the
// binding and changes no GlobalState field.
func (s *GlobalState) OutOfMemory(col binding.Collection, tls binding.TLS, kind binding.OutOfMemoryKind) {
	col.OutOfMemory(tls, kind)
}
