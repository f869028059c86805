package types

// AssetSpec identifies one downloadable model asset. Values are built from
// configuration at startup and never mutated afterwards.
type AssetSpec struct {
	// File name of the asset, e.g. dreamshaper_8.safetensors.
	Name string `json:"name"`
	// Absolute destination path on disk.
	Path string `json:"path"`
	// Identifier of the file on the remote host.
	RemoteID string `json:"remote_id"`
	// Optional hex-encoded SHA-256 digest. Empty means "do not verify".
	SHA256 string `json:"sha256,omitempty"`
}

// ProgressFunc receives transient progress events: a human-readable message
// and, when the total amount of work is known, a percentage in [0,100].
// percent is nil when no percentage can be computed. Callbacks must be fast;
// they run on the goroutine doing the work.
type ProgressFunc func(message string, percent *float64)

// Percent is a convenience for building the optional percentage argument.
func Percent(v float64) *float64 { return &v }

// Int and Int64 build optional numeric parameters.
func Int(v int) *int { return &v }

func Int64(v int64) *int64 { return &v }

// GenerationParams are opaque sampling parameters forwarded to the
// completion endpoint alongside the prompt.
type GenerationParams struct {
	NPredict    int      `json:"n_predict,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	CachePrompt bool     `json:"cache_prompt,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Model       string   `json:"model,omitempty"`
}

// ImageParams describe one image-generation run. Nil fields fall back to
// configured defaults; explicit values are validated as given, so a zero
// width is rejected rather than silently replaced.
type ImageParams struct {
	Width          *int    `json:"width,omitempty"`
	Height         *int    `json:"height,omitempty"`
	Steps          *int    `json:"steps,omitempty"`
	CfgScale       float64 `json:"cfg_scale,omitempty"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	// Seed pins the sampling seed; zero is a valid pinned value. Nil or a
	// negative value requests a randomly chosen seed.
	Seed *int64 `json:"seed,omitempty"`
	// Optional explicit output path. When empty a temporary file is used
	// and removed after the image bytes are read.
	OutputPath string `json:"output_path,omitempty"`
	// Extra raw arguments appended to the generator invocation.
	ExtraArgs []string `json:"extra_args,omitempty"`
}
