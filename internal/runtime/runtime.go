// Package runtime owns the lifecycle of the background inference server
// process: non-blocking start, bounded readiness probing, failure detection
// and idempotent stop.
package runtime

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/common/fsutil"
	"inferd/internal/config"
)

// State is the runtime lifecycle state. Ready and Failed are terminal: a
// fresh Runtime must be constructed to retry after failure.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

const stopGrace = 2 * time.Second

// Runtime supervises a single inference-server process. All fields are
// private; IsReady and DidFail are lock-free latch reads so callers on a UI
// thread never block.
type Runtime struct {
	cfg   config.Config
	log   zerolog.Logger
	probe *prober

	mu    sync.Mutex
	state State
	cmd   *exec.Cmd

	ready      atomic.Bool
	failed     atomic.Bool
	procExited atomic.Bool
}

func New(cfg config.Config, log zerolog.Logger) *Runtime {
	return &Runtime{cfg: cfg, log: log, probe: newProber(cfg, log)}
}

// StartAsync spawns the background launch worker and returns immediately.
// It is a no-op when the runtime is ready, failed, or a launch is already
// in flight, so concurrent callers cannot spawn duplicate workers.
func (r *Runtime) StartAsync() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateIdle {
		return
	}
	r.state = StateStarting
	go r.launch()
}

// IsReady reports whether the HTTP server has accepted a probe.
func (r *Runtime) IsReady() bool { return r.ready.Load() }

// DidFail reports whether startup failed. IsReady and DidFail are never
// both true; both false means idle or still starting.
func (r *Runtime) DidFail() bool { return r.failed.Load() }

// State returns the current lifecycle state.
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Stop requests graceful termination of the server process. It is
// idempotent and swallows errors from an already-dead process.
func (r *Runtime) Stop() {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd == nil || cmd.Process == nil || r.procExited.Load() {
		return
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		r.log.Warn().Err(err).Msg("failed to terminate inference server")
		return
	}
	deadline := time.Now().Add(stopGrace)
	for time.Now().Before(deadline) {
		if r.procExited.Load() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err := cmd.Process.Kill(); err != nil {
		r.log.Warn().Err(err).Msg("failed to kill inference server")
	}
}

func (r *Runtime) markReady() {
	r.mu.Lock()
	r.state = StateReady
	r.mu.Unlock()
	r.ready.Store(true)
}

func (r *Runtime) markFailed() {
	r.mu.Lock()
	r.state = StateFailed
	r.mu.Unlock()
	r.failed.Store(true)
}

// launch runs on the background worker. It first checks whether a server is
// already answering (supports attaching to an externally started one), then
// spawns the binary and polls until ready, early exit, or timeout.
func (r *Runtime) launch() {
	if r.probe.healthy() {
		r.log.Info().Str("url", r.cfg.ServerURL).Msg("inference server already running")
		r.markReady()
		return
	}
	if !fsutil.PathExists(r.cfg.TextModel) {
		r.log.Error().Str("path", r.cfg.TextModel).Msg("text model not found")
		r.markFailed()
		return
	}

	seed := randomSeed()
	args := []string{
		"--server",
		"-m", r.cfg.TextModel,
		"--v2",
		"-ngl", "999",
		"--gpu", "auto",
		"--seed", fmt.Sprint(seed),
		"-l", fmt.Sprintf("%s:%d", r.cfg.ServerHost, r.cfg.ServerPort),
	}
	r.log.Debug().Str("binary", r.cfg.TextBinary).Strs("args", args).Msg("launching inference server")
	cmd := exec.Command(r.cfg.TextBinary, args...)
	// Stdout/Stderr stay nil: the server's own logging is discarded.
	if err := cmd.Start(); err != nil {
		r.log.Error().Err(err).Str("binary", r.cfg.TextBinary).Msg("failed to launch inference server")
		r.markFailed()
		return
	}
	r.mu.Lock()
	r.cmd = cmd
	r.mu.Unlock()

	waitCh := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		r.procExited.Store(true)
		waitCh <- err
	}()

	deadline := time.Now().Add(r.cfg.StartTimeout())
	for time.Now().Before(deadline) {
		select {
		case werr := <-waitCh:
			r.log.Error().AnErr("wait", werr).Msg("inference server exited during startup")
			r.markFailed()
			return
		default:
		}
		if r.probe.healthy() {
			r.log.Info().Int("port", r.cfg.ServerPort).Int("pid", cmd.Process.Pid).Msg("inference server ready")
			r.markReady()
			return
		}
		time.Sleep(r.cfg.PollInterval())
	}
	r.log.Error().Msg("timed out waiting for inference server")
	r.markFailed()
}

// randomSeed returns a non-negative int31 drawn from the system CSPRNG.
func randomSeed() int32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b[:]) % 2147483647)
}
