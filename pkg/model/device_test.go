package model

import "testing"

func TestParseDeviceCaseInsensitive(t *testing.T) {
	cases := map[string]Device{
		"CPU":    DeviceCPU,
		"cpu":    DeviceCPU,
		"Cuda":   DeviceCUDA,
		"CUDA":   DeviceCUDA,
		"metal":  DeviceMetal,
		"VULKAN": DeviceVulkan,
		"None":   DeviceNone,
	}
	for input, want := range cases {
		got, ok := ParseDevice(input)
		if !ok {
			t.Errorf("ParseDevice(%q) returned ok=false", input)
			continue
		}
		if got != want {
			t.Errorf("ParseDevice(%q) = %s, want %s", input, got, want)
		}
	}
}

func TestParseDeviceUnknown(t *testing.T) {
	if _, ok := ParseDevice("FPGA"); ok {
		t.Error("expected ok=false for an unrecognized device tag")
	}
}

func TestDeviceString(t *testing.T) {
	if got, want := DeviceCUDA.String(), "CUDA"; got != want {
		t.Errorf("DeviceCUDA.String() = %q, want %q", got, want)
	}
	if got, want := Device(99).String(), "None"; got != want {
		t.Errorf("unknown device should stringify to %q, got %q", want, got)
	}
}
