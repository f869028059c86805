package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"inferd/pkg/types"
)

const (
	// driveDownloadURL is the default remote endpoint. Tests point BaseURL
	// at an httptest server instead.
	driveDownloadURL  = "https://drive.google.com/uc"
	downloadChunkSize = 8 << 20
	// confirmBodyLimit bounds how much of an interstitial page is scanned.
	confirmBodyLimit = 2 << 20
)

var downloadBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "inferd",
	Subsystem: "assets",
	Name:      "download_bytes_total",
	Help:      "Total bytes downloaded for model assets",
})

func init() {
	prometheus.MustRegister(downloadBytesTotal)
}

// Downloader fetches model assets from a remote host that may interpose a
// confirmation page for large files. One Downloader may be shared; each
// Fetch call owns its own session state.
type Downloader struct {
	// BaseURL is the download endpoint queried with ?export=download&id=.
	BaseURL string
	client  *http.Client
	log     zerolog.Logger
}

func NewDownloader(log zerolog.Logger) *Downloader {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: 60 * time.Second,
	}
	// The jar carries the host's warning cookies into the confirm retry;
	// the interstitial flow expects them back alongside the token.
	jar, _ := cookiejar.New(nil)
	// Client timeout stays 0: a multi-gigabyte stream must only be bounded
	// by the caller's context, not a flat deadline.
	return &Downloader{
		BaseURL: driveDownloadURL,
		client:  &http.Client{Transport: tr, Jar: jar, Timeout: 0},
		log:     log,
	}
}

// Fetch downloads spec into its destination path, reporting progress along
// the way. The payload streams to a temporary file next to the destination
// and is atomically renamed into place; the configured checksum, if any, is
// verified after publishing. A mismatch returns a checksum error and leaves
// the file on disk so the caller can decide whether to retry.
func (d *Downloader) Fetch(ctx context.Context, spec types.AssetSpec, progress types.ProgressFunc) error {
	if err := os.MkdirAll(filepath.Dir(spec.Path), 0o750); err != nil {
		return fmt.Errorf("create asset directory: %w", err)
	}
	d.log.Info().Str("name", spec.Name).Str("target", spec.Path).Msg("downloading asset")

	params := url.Values{}
	params.Set("export", "download")
	params.Set("id", spec.RemoteID)
	resp, err := d.get(ctx, d.BaseURL, params)
	if err != nil {
		return err
	}

	token := confirmFromCookies(resp)
	endpoint := d.BaseURL
	extra := url.Values{}
	if token == "" {
		var page confirmPage
		page, err = d.scanInterstitial(resp)
		if err != nil {
			resp.Body.Close()
			return err
		}
		token = page.token
		extra = page.extraParams
		if action := resolveActionURL(resp.Request.URL, page.actionURL); action != "" {
			endpoint = action
		}
	}
	if token != "" {
		resp.Body.Close()
		params.Set("confirm", token)
		for k, vs := range extra {
			for _, v := range vs {
				params.Set(k, v)
			}
		}
		resp, err = d.get(ctx, endpoint, params)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	if err := d.streamToFile(resp, spec, progress); err != nil {
		return err
	}
	return d.verify(spec)
}

func (d *Downloader) get(ctx context.Context, endpoint string, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request: %w", err)
	}
	return resp, nil
}

// scanInterstitial inspects a response that may be a confirmation page. For
// non-HTML responses it returns an empty page and leaves the body intact
// for streaming; for HTML it consumes the body.
func (d *Downloader) scanInterstitial(resp *http.Response) (confirmPage, error) {
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(ct, "text/html") {
		return confirmPage{}, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, confirmBodyLimit))
	if err != nil {
		return confirmPage{}, fmt.Errorf("read confirmation page: %w", err)
	}
	page := parseConfirmPage(string(body))
	if page.token == "" {
		d.log.Warn().Msg("interstitial page carried no confirmation token")
	}
	return page, nil
}

func (d *Downloader) streamToFile(resp *http.Response, spec types.AssetSpec, progress types.ProgressFunc) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("download %s: unexpected status %s", spec.Name, resp.Status)
	}
	total := resp.ContentLength
	if progress != nil {
		var pct *float64
		if total > 0 {
			pct = types.Percent(0)
		}
		progress(downloadMessage(spec.Name, 0, total), pct)
	}

	tmp, err := os.CreateTemp(filepath.Dir(spec.Path), spec.Name+".partial*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	pw := &progressWriter{label: spec.Name, total: total, progress: progress}
	buf := make([]byte, downloadChunkSize)
	_, err = io.CopyBuffer(io.MultiWriter(tmp, pw), resp.Body, buf)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rmErr := os.Remove(tmpPath); rmErr != nil {
			d.log.Warn().Err(rmErr).Str("path", tmpPath).Msg("failed to remove partial download")
		}
		return fmt.Errorf("stream %s: %w", spec.Name, err)
	}
	if err := os.Rename(tmpPath, spec.Path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("publish %s: %w", spec.Name, err)
	}
	if progress != nil {
		var pct *float64
		if total > 0 {
			pct = types.Percent(100)
		}
		progress(fmt.Sprintf("Finished downloading %s", spec.Name), pct)
	}
	return nil
}

func (d *Downloader) verify(spec types.AssetSpec) error {
	if spec.SHA256 == "" {
		return nil
	}
	actual, err := FileSHA256(spec.Path)
	if err != nil {
		return err
	}
	if hashesMatch(actual, spec.SHA256) {
		return nil
	}
	return ErrChecksumMismatch(spec.Name, spec.SHA256, actual)
}

// progressWriter forwards cumulative byte counts to the progress callback
// as the body streams through it.
type progressWriter struct {
	label    string
	total    int64
	written  int64
	progress types.ProgressFunc
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	pw.written += int64(len(p))
	downloadBytesTotal.Add(float64(len(p)))
	if pw.progress != nil {
		var pct *float64
		if pw.total > 0 {
			pct = types.Percent(float64(pw.written) / float64(pw.total) * 100)
		}
		pw.progress(downloadMessage(pw.label, pw.written, pw.total), pct)
	}
	return len(p), nil
}
