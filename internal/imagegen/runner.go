// Package imagegen invokes the one-shot external image-generation binary,
// streams its output as progress, and post-processes the result.
package imagegen

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/common/fsutil"
	"inferd/internal/config"
	"inferd/pkg/types"
)

const (
	outputWaitTimeout = 30 * time.Second
	outputPollEvery   = 100 * time.Millisecond
	upscaleFactor     = 4
	errorTailLines    = 10
)

// Runner executes image-generation runs. Each Run call owns its own
// subprocess and buffers, so a Runner may be shared across goroutines.
type Runner struct {
	cfg config.Config
	log zerolog.Logger
	// outputWait bounds how long Run waits for the output file.
	outputWait time.Duration
}

func NewRunner(cfg config.Config, log zerolog.Logger) *Runner {
	return &Runner{cfg: cfg, log: log, outputWait: outputWaitTimeout}
}

// Run generates one image and returns the upscaled PNG bytes. Parameters
// are validated before any subprocess is launched; nil dimensions fall
// back to configured defaults while explicit values, including zero, are
// validated as given. The temporary output file is removed unless the
// caller supplied an explicit path.
func (r *Runner) Run(ctx context.Context, prompt string, params types.ImageParams, progress types.ProgressFunc) ([]byte, error) {
	width := r.cfg.ImageSize
	if params.Width != nil {
		width = *params.Width
	}
	height := r.cfg.ImageSize
	if params.Height != nil {
		height = *params.Height
	}
	steps := r.cfg.ImageSteps
	if params.Steps != nil {
		steps = *params.Steps
	}
	cfgScale := params.CfgScale
	if cfgScale == 0 {
		cfgScale = r.cfg.ImageCfgScale
	}
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidParams("width and height must be positive")
	}
	if steps <= 0 {
		return nil, ErrInvalidParams("steps must be positive")
	}
	if !fsutil.PathExists(r.cfg.ImageModel) {
		return nil, ErrNotFound("image model", r.cfg.ImageModel)
	}
	bin, err := r.resolveExecutable()
	if err != nil {
		return nil, err
	}

	outputPath := params.OutputPath
	cleanup := outputPath == ""
	if cleanup {
		outputPath, err = allocateOutputPath()
		if err != nil {
			return nil, err
		}
	}
	seed := int64(-1)
	if params.Seed != nil {
		seed = *params.Seed
	}
	if seed < 0 {
		seed = int64(randomSeed())
	}

	args := []string{
		"-m", r.cfg.ImageModel,
		"-H", strconv.Itoa(height),
		"-W", strconv.Itoa(width),
		"-p", prompt,
		"--steps", strconv.Itoa(steps),
		"--cfg-scale", strconv.FormatFloat(cfgScale, 'f', -1, 64),
		"-o", outputPath,
	}
	if params.NegativePrompt != "" {
		args = append(args, "-n", params.NegativePrompt)
	}
	args = append(args, "--seed", strconv.FormatInt(seed, 10))
	args = append(args, params.ExtraArgs...)

	if err := r.runGenerator(ctx, bin, args, progress); err != nil {
		return nil, err
	}
	if !waitForFile(outputPath, r.outputWait) {
		r.log.Error().Str("path", outputPath).Msg("image generator completed without producing a file")
		return nil, ErrOutputTimeout(outputPath)
	}
	payload, err := os.ReadFile(outputPath)
	if cleanup {
		if rmErr := os.Remove(outputPath); rmErr != nil {
			r.log.Warn().Err(rmErr).Str("path", outputPath).Msg("failed to remove temporary image")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("read generated image: %w", err)
	}
	return upscaleBytes(payload, upscaleFactor)
}

// runGenerator launches the binary and streams its combined output
// line-by-line to the progress callback, keeping a tail for diagnostics.
func (r *Runner) runGenerator(ctx context.Context, bin string, args []string, progress types.ProgressFunc) error {
	emit(progress, "Starting image generation request...", nil)
	r.log.Debug().Str("binary", bin).Strs("args", args).Msg("launching image generator")

	cmd := exec.CommandContext(ctx, bin, args...)
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		r.log.Error().Err(err).Str("binary", bin).Msg("failed to execute image generator")
		return ErrSubprocess(fmt.Errorf("launch %s: %w", bin, err), nil)
	}
	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
		pw.Close()
	}()

	var captured []string
	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if line != "" {
			captured = append(captured, line)
		}
		emit(progress, line, nil)
	}
	if werr := <-waitCh; werr != nil {
		tail := captured
		if len(tail) > errorTailLines {
			tail = tail[len(tail)-errorTailLines:]
		}
		r.log.Error().AnErr("wait", werr).Strs("tail", tail).Msg("image generator exited with non-zero status")
		return ErrSubprocess(werr, tail)
	}
	emit(progress, "Image generation completed.", types.Percent(100))
	return nil
}

// resolveExecutable returns the generator binary path. On Windows a copy
// with an .exe suffix is created when needed, best-effort: on copy failure
// the original path is returned.
func (r *Runner) resolveExecutable() (string, error) {
	bin := r.cfg.ImageBinary
	if !fsutil.PathExists(bin) {
		return "", ErrNotFound("image binary", bin)
	}
	if runtime.GOOS != "windows" || strings.EqualFold(filepath.Ext(bin), ".exe") {
		return bin, nil
	}
	candidate := bin + ".exe"
	if fsutil.PathExists(candidate) {
		return candidate, nil
	}
	if err := copyFile(bin, candidate); err != nil {
		r.log.Warn().Err(err).Str("source", bin).Str("target", candidate).Msg("failed to create executable copy")
		return bin, nil
	}
	return candidate, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// allocateOutputPath reserves a fresh temporary file name for the generator
// to create. The placeholder is removed so waiting for the output file is
// meaningful.
func allocateOutputPath() (string, error) {
	f, err := os.CreateTemp("", "sdfile-*.png")
	if err != nil {
		return "", fmt.Errorf("allocate output path: %w", err)
	}
	path := f.Name()
	f.Close()
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("allocate output path: %w", err)
	}
	return path, nil
}

func waitForFile(path string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fsutil.PathExists(path) {
			return true
		}
		time.Sleep(outputPollEvery)
	}
	return fsutil.PathExists(path)
}

func randomSeed() int32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b[:]) % 2147483647)
}

func emit(progress types.ProgressFunc, msg string, pct *float64) {
	if progress != nil {
		progress(msg, pct)
	}
}
