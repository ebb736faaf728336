package model

import "fmt"

// Record is an immutable tensor-port descriptor. It is produced once by a
// module's wiring declaration and never mutated by the scheduler — the
// scheduler only ever reads Hash, Locale, and Device off of it.
type Record struct {
	// DataType is an opaque tag (e.g. "f32", "cf32") never interpreted by
	// the scheduler.
	DataType string

	// Shape is the ordered list of extents, logging/introspection only.
	Shape []int

	// Device is the device this specific view of the tensor lives on.
	Device Device

	// DataPtr is an opaque address used only for equality/logging — the
	// scheduler never dereferences it.
	DataPtr uintptr

	// Hash is the 64-bit content-identity of the logical tensor. Two
	// Records with equal Hash are aliases of the same logical tensor,
	// possibly viewed from different Locales/devices.
	Hash uint64

	// Locale is this port's stable per-port identifier.
	Locale Locale
}

// String renders a Record the way the original logger prints a port:
// "[type] shape | [Device::X] | Pointer: 0x... | Hash: 0x... | [locale]".
func (r Record) String() string {
	return fmt.Sprintf("[%s] %v | [Device::%s] | Pointer: 0x%016x | Hash: 0x%016x | [%s]",
		r.DataType, r.Shape, r.Device, r.DataPtr, r.Hash, r.Locale)
}

// RecordMap maps pin name to Record. Keys are unique per module; order is
// irrelevant, matching the spec's RecordMap definition.
type RecordMap map[string]Record
