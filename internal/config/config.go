package config

import "time"

// SchedulerConfig holds configuration for the compute scheduler and its
// surrounding process, analogous to the teacher's ServerConfig.
type SchedulerConfig struct {
	Addr      string // Debug HTTP surface listen address (default ":8080")
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: text, json
	DBPath    string // SQLite introspection-history path (":memory:" for testing)

	// ReadinessTimeout bounds how long the compute loop's readiness
	// barrier (spec §4.B, Open Question 1) spins on ComputeReady==TIMEOUT
	// before giving up and skipping the frame.
	ReadinessTimeout time.Duration

	// ConflictPolicy selects how in-place aliasing conflicts are handled:
	// "warn" (default), "fatal", or "script" (see ScriptPath).
	ConflictPolicy string
	ScriptPath     string

	// S3Telemetry configures the optional S3 sink for periodic introspection
	// snapshots. The sink is only started when Bucket is set; Prefix/Region
	// default to sensible values so -s3-bucket alone is enough to enable it.
	S3Telemetry *S3TelemetryConfig

	// Affinity maps a device name to the CPU cores its worker goroutine
	// should be pinned to, e.g. {"CUDA": {2, 3}}.
	Affinity map[string][]int
}

// S3TelemetryConfig configures the optional aws-sdk-go-v2 telemetry sink.
type S3TelemetryConfig struct {
	Bucket string
	Prefix string
	Region string
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Addr:             ":8080",
		LogLevel:         "info",
		LogFormat:        "text",
		DBPath:           ":memory:",
		ReadinessTimeout: 5 * time.Second,
		ConflictPolicy:   "warn",
		S3Telemetry: &S3TelemetryConfig{
			Prefix: "gosched/",
			Region: "us-east-1",
		},
	}
}
