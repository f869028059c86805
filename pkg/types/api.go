package types

// NameRequest asks for a generated character name.
type NameRequest struct {
	// Free-form descriptor folded into the prompt template.
	// example: a male orc.
	Descriptor string `json:"descriptor"`
}

// NameResponse carries the generated name. Name is the sentinel value
// "Unknown Name" when every generation attempt failed.
type NameResponse struct {
	Name string `json:"name"`
}

// ImageRequest asks for a generated portrait. Prompt is required; the
// remaining parameters default from configuration when zero.
type ImageRequest struct {
	Prompt string `json:"prompt"`
	ImageParams
}

// AssetStatus reports one required asset for GET /assets.
type AssetStatus struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Present bool   `json:"present"`
	// True when the file exists but its digest does not match.
	ChecksumMismatch bool `json:"checksum_mismatch,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Overall runtime state: idle, starting, ready or failed.
	ServerState string `json:"server_state"`
	// Assets required before generation can run.
	Assets []AssetStatus `json:"assets"`
	// Uptime of the daemon in seconds.
	UptimeSeconds int64 `json:"uptime_seconds"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: width and height must be positive
	Error string `json:"error"`
	// HTTP status code.
	// example: 400
	Code int `json:"code"`
}
