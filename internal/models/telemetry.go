package models

// Telemetry is the fixed set of client-side rendering and timing signals an
// extended challenge asks the client to echo back. None of these are
// verifiable server-side, so they never influence a verdict; they are logged
// for offline tuning only.
type Telemetry struct {
	ScreenResolution    string `json:"screen_resolution,omitempty"`
	TimezoneOffsetMin   int    `json:"timezone_offset_min,omitempty"`
	CanvasHash          string `json:"canvas_hash,omitempty"`
	WebGLRenderer       string `json:"webgl_renderer,omitempty"`
	DeviceMemoryGB      int    `json:"device_memory_gb,omitempty"`
	HardwareConcurrency int    `json:"hardware_concurrency,omitempty"`
	SolveTimeMs         int64  `json:"solve_time_ms,omitempty"`
	RenderTimeMs        int64  `json:"render_time_ms,omitempty"`
}

// TelemetryFields enumerates the field names an extended challenge requests.
// Returned verbatim in the issue response so clients know what to collect.
func TelemetryFields() []string {
	return []string{
		"screen_resolution",
		"timezone_offset_min",
		"canvas_hash",
		"webgl_renderer",
		"device_memory_gb",
		"hardware_concurrency",
		"solve_time_ms",
		"render_time_ms",
	}
}

// Empty reports whether no telemetry field was supplied.
func (t Telemetry) Empty() bool {
	return t == Telemetry{}
}
