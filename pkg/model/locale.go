package model

import (
	"fmt"
	"hash/fnv"
)

// Locale identifies a tensor port: the module that owns it (BlockID, SubID)
// and the specific pin on that module (PinID). BlockID groups related
// modules (e.g. a multi-stage FFT block); SubID disambiguates instances
// within a block; PinID names the port ("input", "output", "taps", ...).
type Locale struct {
	BlockID string
	SubID   string
	PinID   string
}

// String renders "block:sub:pin", matching the original logger's "{}" format
// for Locale (e.g. in JST_INFO("[{}] ...", locale)).
func (l Locale) String() string {
	return fmt.Sprintf("%s:%s:%s", l.BlockID, l.SubID, l.PinID)
}

// Hash returns a 64-bit identity for the specific pin — two ports with the
// same Hash refer to the same physical locale across rebuilds.
func (l Locale) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(l.BlockID))
	h.Write([]byte{0})
	h.Write([]byte(l.SubID))
	h.Write([]byte{0})
	h.Write([]byte(l.PinID))
	return h.Sum64()
}

// SHash returns a 64-bit identity for the owning module (BlockID, SubID only),
// ignoring the pin. The scheduler keys its ModuleState maps by ModuleName,
// not by this hash.
func (l Locale) SHash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(l.BlockID))
	h.Write([]byte{0})
	h.Write([]byte(l.SubID))
	return h.Sum64()
}

// ModuleName returns a human-readable module identifier ("block:sub"),
// used as the map key throughout the scheduler's caches instead of the raw
// SHash so debug output and tests stay readable.
func (l Locale) ModuleName() string {
	return fmt.Sprintf("%s:%s", l.BlockID, l.SubID)
}
