package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"inferd/internal/common/fsutil"
)

// Config holds the settings consumed by the orchestration core. Zero values
// mean "unspecified" and are replaced by defaults in Normalized.
type Config struct {
	// Addr is the control API listen address, e.g. 127.0.0.1:8090.
	Addr string `json:"addr" yaml:"addr" toml:"addr"`

	// AssetsDir anchors relative binary/model paths.
	AssetsDir string `json:"assets_dir" yaml:"assets_dir" toml:"assets_dir"`

	// TextBinary is the llamafile binary (server mode and one-shot CLI).
	TextBinary string `json:"text_binary" yaml:"text_binary" toml:"text_binary"`
	// ImageBinary is the sdfile image-generation binary.
	ImageBinary string `json:"image_binary" yaml:"image_binary" toml:"image_binary"`
	TextModel   string `json:"text_model" yaml:"text_model" toml:"text_model"`
	ImageModel  string `json:"image_model" yaml:"image_model" toml:"image_model"`

	// NamePrompt is the one-shot CLI prompt; ServerPromptTemplate the HTTP
	// server prompt. Both substitute {descriptor}.
	NamePrompt           string `json:"name_prompt" yaml:"name_prompt" toml:"name_prompt"`
	ServerPromptTemplate string `json:"server_prompt_template" yaml:"server_prompt_template" toml:"server_prompt_template"`

	ServerHost string `json:"server_host" yaml:"server_host" toml:"server_host"`
	ServerPort int    `json:"server_port" yaml:"server_port" toml:"server_port"`

	// Endpoints derived from host/port when left empty.
	ServerURL          string `json:"server_url" yaml:"server_url" toml:"server_url"`
	ModelsEndpoint     string `json:"models_endpoint" yaml:"models_endpoint" toml:"models_endpoint"`
	CompletionEndpoint string `json:"completion_endpoint" yaml:"completion_endpoint" toml:"completion_endpoint"`

	StartTimeoutSec   float64 `json:"start_timeout_sec" yaml:"start_timeout_sec" toml:"start_timeout_sec"`
	PollIntervalSec   float64 `json:"poll_interval_sec" yaml:"poll_interval_sec" toml:"poll_interval_sec"`
	RequestTimeoutSec float64 `json:"request_timeout_sec" yaml:"request_timeout_sec" toml:"request_timeout_sec"`

	// MaxAttempts bounds one-shot CLI generation attempts.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" toml:"max_attempts"`
	// NameParts is the exact word count a generated name must have.
	NameParts int `json:"name_parts" yaml:"name_parts" toml:"name_parts"`

	ImageSize     int     `json:"image_size" yaml:"image_size" toml:"image_size"`
	ImageSteps    int     `json:"image_steps" yaml:"image_steps" toml:"image_steps"`
	ImageCfgScale float64 `json:"image_cfg_scale" yaml:"image_cfg_scale" toml:"image_cfg_scale"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Normalized fills defaults, expands '~' and resolves relative paths under
// AssetsDir so downstream components only ever see absolute paths.
func (c Config) Normalized() (Config, error) {
	out := c
	if out.Addr == "" {
		out.Addr = "127.0.0.1:8090"
	}
	dir, err := fsutil.ExpandHome(out.AssetsDir)
	if err != nil {
		return out, err
	}
	out.AssetsDir = dir
	out.TextBinary = fsutil.ResolveUnder(out.AssetsDir, out.TextBinary)
	out.ImageBinary = fsutil.ResolveUnder(out.AssetsDir, out.ImageBinary)
	out.TextModel = fsutil.ResolveUnder(out.AssetsDir, out.TextModel)
	out.ImageModel = fsutil.ResolveUnder(out.AssetsDir, out.ImageModel)

	if out.ServerHost == "" {
		out.ServerHost = "127.0.0.1"
	}
	if out.ServerPort == 0 {
		out.ServerPort = 8080
	}
	if out.ServerURL == "" {
		out.ServerURL = fmt.Sprintf("http://%s:%d", out.ServerHost, out.ServerPort)
	}
	out.ServerURL = strings.TrimRight(out.ServerURL, "/")
	if out.ModelsEndpoint == "" {
		out.ModelsEndpoint = out.ServerURL + "/v1/models"
	}
	if out.CompletionEndpoint == "" {
		out.CompletionEndpoint = out.ServerURL + "/completion"
	}

	if out.StartTimeoutSec <= 0 {
		out.StartTimeoutSec = 120
	}
	if out.PollIntervalSec <= 0 {
		out.PollIntervalSec = 0.5
	}
	if out.RequestTimeoutSec <= 0 {
		out.RequestTimeoutSec = 60
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 3
	}
	if out.NameParts <= 0 {
		out.NameParts = 2
	}
	if out.ImageSize <= 0 {
		out.ImageSize = 256
	}
	if out.ImageSteps <= 0 {
		out.ImageSteps = 20
	}
	if out.ImageCfgScale <= 0 {
		out.ImageCfgScale = 7.0
	}
	if out.NamePrompt == "" {
		out.NamePrompt = defaultNamePrompt
	}
	if out.ServerPromptTemplate == "" {
		out.ServerPromptTemplate = defaultServerPrompt
	}
	return out, nil
}

// Validate rejects configurations that cannot possibly work. These are the
// fatal startup errors: everything else is handled at call time.
func (c Config) Validate() error {
	if strings.TrimSpace(c.TextBinary) == "" {
		return fmt.Errorf("config: text_binary is required")
	}
	if strings.TrimSpace(c.TextModel) == "" {
		return fmt.Errorf("config: text_model is required")
	}
	if strings.TrimSpace(c.ImageBinary) == "" {
		return fmt.Errorf("config: image_binary is required")
	}
	if strings.TrimSpace(c.ImageModel) == "" {
		return fmt.Errorf("config: image_model is required")
	}
	return nil
}

func (c Config) StartTimeout() time.Duration {
	return time.Duration(c.StartTimeoutSec * float64(time.Second))
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec * float64(time.Second))
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec * float64(time.Second))
}

// RenderPrompt substitutes the descriptor into a prompt template.
func RenderPrompt(template, descriptor string) string {
	return strings.ReplaceAll(template, "{descriptor}", descriptor)
}

const (
	defaultNamePrompt = "Print one full fantasy character name for {descriptor} " +
		"as 'START <name> END' and nothing else."
	defaultServerPrompt = "You are a fantasy name generator. Reply with exactly " +
		"one line of the form 'START <name> END' naming {descriptor}"
)
