package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"inferd/internal/common/fsutil"
	"inferd/internal/config"
	"inferd/pkg/types"
)

// assetMeta pairs a remote file identifier with an optional pinned digest.
type assetMeta struct {
	remoteID string
	sha256   string
}

// Known asset files. Keyed by lower-cased file name; files not listed here
// fall back to a per-suffix remote id with no digest.
var assetMetadata = map[string]assetMeta{
	"dreamshaper_8.safetensors": {
		remoteID: "1Aov0HExRaeSqg752nmXPLFbRHa1zd66n",
		sha256:   "879DB523C30D3B9017143D56705015E15A2CB5628762C11D086FED9538ABD7FD",
	},
	"google_gemma-3-4b-it-q6_k.llamafile": {
		remoteID: "1mxb-WDPJmA3LwQP19cxma_cLeEU-pMOs",
		sha256:   "F1777A23BCA3410BA4E7940E468790D559B54680B5DD35FBA6F55BFC302B8463",
	},
}

var suffixRemoteIDs = map[string]string{
	".safetensors": "1Aov0HExRaeSqg752nmXPLFbRHa1zd66n",
	".llamafile":   "1mxb-WDPJmA3LwQP19cxma_cLeEU-pMOs",
}

// Catalog enumerates the model assets required before generation can run.
// It is read-only and safe for concurrent use.
type Catalog struct {
	cfg config.Config
	log zerolog.Logger
}

func NewCatalog(cfg config.Config, log zerolog.Logger) *Catalog {
	return &Catalog{cfg: cfg, log: log}
}

// Requirements returns the configured assets that have a known remote
// source. An asset with no remote id for its file type is skipped: it
// cannot be auto-downloaded, but that is not an error.
func (c *Catalog) Requirements() []types.AssetSpec {
	var specs []types.AssetSpec
	for _, path := range []string{c.cfg.ImageModel, c.cfg.TextModel} {
		if spec, ok := specForPath(path); ok {
			specs = append(specs, spec)
		}
	}
	return specs
}

// Missing returns the required assets whose files are absent or whose
// digest does not match the pinned checksum. A mismatch is logged at warn
// level and treated as missing, not as a hard failure.
func (c *Catalog) Missing() []types.AssetSpec {
	var missing []types.AssetSpec
	for _, spec := range c.Requirements() {
		if c.needsDownload(spec) {
			missing = append(missing, spec)
		}
	}
	return missing
}

// Statuses reports every required asset for the control API.
func (c *Catalog) Statuses() []types.AssetStatus {
	var out []types.AssetStatus
	for _, spec := range c.Requirements() {
		st := types.AssetStatus{Name: spec.Name, Path: spec.Path, Present: fsutil.PathExists(spec.Path)}
		if st.Present && spec.SHA256 != "" {
			if actual, err := FileSHA256(spec.Path); err != nil || !hashesMatch(actual, spec.SHA256) {
				st.ChecksumMismatch = true
			}
		}
		out = append(out, st)
	}
	return out
}

func (c *Catalog) needsDownload(spec types.AssetSpec) bool {
	if !fsutil.PathExists(spec.Path) {
		return true
	}
	if spec.SHA256 == "" {
		return false
	}
	actual, err := FileSHA256(spec.Path)
	if err != nil {
		c.log.Warn().Err(err).Str("path", spec.Path).Msg("cannot hash asset; scheduling re-download")
		return true
	}
	if hashesMatch(actual, spec.SHA256) {
		return false
	}
	c.log.Warn().
		Str("path", spec.Path).
		Str("expected", spec.SHA256).
		Str("actual", actual).
		Msg("asset checksum mismatch")
	return true
}

func specForPath(path string) (types.AssetSpec, bool) {
	if path == "" {
		return types.AssetSpec{}, false
	}
	name := filepath.Base(path)
	meta, ok := assetMetadata[strings.ToLower(name)]
	if !ok {
		id, found := suffixRemoteIDs[strings.ToLower(filepath.Ext(path))]
		if !found {
			return types.AssetSpec{}, false
		}
		meta = assetMeta{remoteID: id}
	}
	return types.AssetSpec{Name: name, Path: path, RemoteID: meta.remoteID, SHA256: meta.sha256}, true
}

// FileSHA256 streams a file through sha256 and returns the hex digest.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashesMatch(left, right string) bool {
	if left == "" || right == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(left), strings.TrimSpace(right))
}
