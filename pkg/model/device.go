package model

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Device identifies the execution backend a module and its ports are bound to.
type Device int

const (
	DeviceNone Device = iota
	DeviceCPU
	DeviceCUDA
	DeviceMetal
	DeviceVulkan
)

// String returns the device's pretty name, matching the original logger's
// "[Device::CPU]" style tags.
func (d Device) String() string {
	switch d {
	case DeviceCPU:
		return "CPU"
	case DeviceCUDA:
		return "CUDA"
	case DeviceMetal:
		return "Metal"
	case DeviceVulkan:
		return "Vulkan"
	default:
		return "None"
	}
}

var titleCaser = cases.Title(language.Und)

// ParseDevice parses a case-insensitive device tag, e.g. "cuda", "CUDA" and
// "Cuda" all resolve to DeviceCUDA. Folding goes through golang.org/x/text/cases
// rather than strings.ToUpper/ToLower so multi-word or non-ASCII device
// tags introduced by future backends fold correctly under Unicode casing
// rules. Unknown tags return DeviceNone and ok=false.
func ParseDevice(s string) (Device, bool) {
	switch titleCaser.String(s) {
	case "Cpu":
		return DeviceCPU, true
	case "Cuda":
		return DeviceCUDA, true
	case "Metal":
		return DeviceMetal, true
	case "Vulkan":
		return DeviceVulkan, true
	case "None":
		return DeviceNone, true
	default:
		return DeviceNone, false
	}
}
