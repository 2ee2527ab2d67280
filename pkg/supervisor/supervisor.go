package supervisor

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zhom/donutbrowser-sub002/pkg/config"
	"github.com/zhom/donutbrowser-sub002/pkg/log"
	"github.com/zhom/donutbrowser-sub002/pkg/probe"
	"github.com/zhom/donutbrowser-sub002/pkg/registry"
	"github.com/zhom/donutbrowser-sub002/pkg/types"
)

// Options tunes the supervisor. Zero values fall back to the config
// package defaults.
type Options struct {
	// ExecPath is the worker binary; defaults to the current executable.
	ExecPath string
	// LogsDir receives one stderr log file per worker.
	LogsDir string

	ReadyAttempts int
	ReadyInterval time.Duration
	ProbeTimeout  time.Duration
	StopGrace     time.Duration
}

// StartRequest asks for a worker of one kind tied to a correlation key
// (the upstream URL for proxies, the VPN profile id for tunnels).
type StartRequest struct {
	Kind           types.WorkerKind
	CorrelationKey string
	ProfileID      string
}

// spawnFunc starts the worker process for a descriptor and pre-chosen
// port, returning the child pid. Tests substitute it.
type spawnFunc func(d *types.WorkerDescriptor, port uint16) (int, error)

// Supervisor spawns, probes and terminates detached worker processes. All
// state lives in the injected registry store; the supervisor itself holds
// no id-to-pid maps.
type Supervisor struct {
	store  registry.Store
	opts   Options
	proc   procControl
	probe  *probe.TCPProbe
	spawn  spawnFunc
	logger zerolog.Logger

	// startMu serializes the find-or-spawn section so concurrent starts
	// for the same correlation key cannot both spawn.
	startMu sync.Mutex
}

// New creates a supervisor backed by the given registry store.
func New(store registry.Store, opts Options) *Supervisor {
	if opts.ExecPath == "" {
		if exe, err := os.Executable(); err == nil {
			opts.ExecPath = exe
		}
	}
	if opts.ReadyAttempts <= 0 {
		opts.ReadyAttempts = config.DefaultReadyAttempts
	}
	if opts.ReadyInterval <= 0 {
		opts.ReadyInterval = config.DefaultReadyInterval
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = config.DefaultProbeTimeout
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = config.DefaultStopGrace
	}

	s := &Supervisor{
		store:  store,
		opts:   opts,
		probe:  probe.NewTCPProbe().WithTimeout(opts.ProbeTimeout),
		logger: log.WithComponent("supervisor"),
	}
	s.spawn = s.spawnWorker
	return s
}

// StartWorker starts a detached worker for the request, or returns the
// existing live worker for the same correlation key. At most one live
// worker exists per key; stale descriptors of dead processes are deleted
// before a new worker is spawned.
func (s *Supervisor) StartWorker(ctx context.Context, req StartRequest) (*types.WorkerDescriptor, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("unknown worker kind %q", req.Kind)
	}
	if req.CorrelationKey == "" {
		return nil, fmt.Errorf("correlation key is required")
	}

	s.startMu.Lock()

	existing, err := s.store.FindByCorrelationKey(req.CorrelationKey)
	if err != nil {
		s.startMu.Unlock()
		return nil, err
	}
	if existing != nil {
		if s.proc.alive(existing.PID) {
			s.startMu.Unlock()
			s.logger.Debug().
				Str("worker_id", existing.ID).
				Int("pid", existing.PID).
				Msg("reusing live worker")
			return existing, nil
		}
		s.logger.Info().
			Str("worker_id", existing.ID).
			Int("pid", existing.PID).
			Msg("deleting stale descriptor of dead worker")
		if _, err := s.store.Delete(existing.ID); err != nil {
			s.startMu.Unlock()
			return nil, err
		}
	}

	port, err := s.allocatePort()
	if err != nil {
		s.startMu.Unlock()
		return nil, err
	}

	d := &types.WorkerDescriptor{
		ID:             uuid.New().String(),
		CorrelationKey: req.CorrelationKey,
		Kind:           req.Kind,
		ProfileID:      req.ProfileID,
	}
	if err := s.store.Save(d); err != nil {
		s.startMu.Unlock()
		return nil, err
	}

	pid, err := s.spawn(d, port)
	if err != nil {
		s.store.Delete(d.ID)
		s.startMu.Unlock()
		return nil, fmt.Errorf("failed to spawn worker: %w", err)
	}

	// Re-read before writing the pid: a fast worker may have published its
	// port already, and this save must not erase it.
	if cur, err := s.store.Get(d.ID); err == nil && cur != nil {
		d = cur
	}
	d.PID = pid
	if err := s.store.Save(d); err != nil {
		s.startMu.Unlock()
		return nil, err
	}
	s.startMu.Unlock()
	s.logger.Info().
		Str("worker_id", d.ID).
		Str("kind", string(d.Kind)).
		Int("pid", pid).
		Uint16("port", port).
		Msg("worker spawned")

	return s.awaitReady(ctx, d.ID, pid)
}

// awaitReady polls the registry until the worker has written its port and
// a TCP probe confirms it is accepting connections. The loop re-reads the
// file every iteration; nothing is cached.
func (s *Supervisor) awaitReady(ctx context.Context, id string, pid int) (*types.WorkerDescriptor, error) {
	var last *types.WorkerDescriptor
	for attempt := 0; attempt < s.opts.ReadyAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, &StartError{Descriptor: last, ProcessAlive: s.proc.alive(pid), Err: ctx.Err()}
		case <-time.After(s.opts.ReadyInterval):
		}

		d, err := s.store.Get(id)
		if err != nil || d == nil {
			continue
		}
		last = d
		if d.LocalPort == 0 {
			continue
		}
		if s.probe.Check(ctx, net.JoinHostPort("127.0.0.1", strconv.Itoa(int(d.LocalPort)))) {
			s.logger.Info().
				Str("worker_id", id).
				Str("local_url", d.LocalURL).
				Msg("worker ready")
			return d, nil
		}
	}

	// The process is deliberately left running: it may still come up and
	// will be found alive on the next start for the same key.
	return nil, &StartError{
		Descriptor:   last,
		ProcessAlive: s.proc.alive(pid),
		Err:          fmt.Errorf("readiness poll exhausted after %d attempts", s.opts.ReadyAttempts),
	}
}

// StopWorker terminates the worker and removes its descriptor and log
// file. Cleanup proceeds regardless of whether the process actually
// exited within the grace period. Returns false when no descriptor
// existed, which is a no-op rather than an error.
func (s *Supervisor) StopWorker(id string) (bool, error) {
	d, err := s.store.Get(id)
	if err != nil {
		return false, err
	}
	if d == nil {
		return false, nil
	}

	if d.PID > 0 && s.proc.alive(d.PID) {
		if err := s.proc.terminate(d.PID); err != nil {
			s.logger.Warn().Err(err).Int("pid", d.PID).Msg("graceful terminate failed")
		}

		deadline := time.Now().Add(s.opts.StopGrace)
		for time.Now().Before(deadline) && s.proc.alive(d.PID) {
			time.Sleep(50 * time.Millisecond)
		}
		if s.proc.alive(d.PID) {
			s.logger.Warn().Int("pid", d.PID).Msg("worker ignored terminate, killing")
			if err := s.proc.kill(d.PID); err != nil {
				s.logger.Warn().Err(err).Int("pid", d.PID).Msg("kill failed, cleaning up anyway")
			}
		}
	}

	if _, err := s.store.Delete(id); err != nil {
		return false, err
	}
	if s.opts.LogsDir != "" {
		os.Remove(s.workerLogPath(id))
	}
	s.logger.Info().Str("worker_id", id).Msg("worker stopped")
	return true, nil
}

// List returns every descriptor in the registry.
func (s *Supervisor) List() ([]*types.WorkerDescriptor, error) {
	return s.store.List()
}

// IsAlive reports whether the descriptor's process is live, not merely
// whether its file exists.
func (s *Supervisor) IsAlive(d *types.WorkerDescriptor) bool {
	return d != nil && s.proc.alive(d.PID)
}

// allocatePort reserves an ephemeral port by binding and immediately
// releasing it. Another process can grab the port before the child binds
// it; that race is deliberate — the child surfaces the bind failure and
// the readiness timeout reports it, with no silent retry here.
func (s *Supervisor) allocatePort() (uint16, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPortBindFailure, err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return uint16(port), nil
}

// spawnWorker starts the detached worker process. Stdio goes to null
// except stderr, which lands in a per-worker log file for diagnostics.
func (s *Supervisor) spawnWorker(d *types.WorkerDescriptor, port uint16) (int, error) {
	if s.opts.ExecPath == "" {
		return 0, fmt.Errorf("worker binary path is not set")
	}

	args := workerArgs(d, port)
	cmd := exec.Command(s.opts.ExecPath, args...)
	cmd.SysProcAttr = s.proc.sysProcAttr()

	if s.opts.LogsDir != "" {
		if err := os.MkdirAll(s.opts.LogsDir, 0o700); err == nil {
			if f, err := os.OpenFile(s.workerLogPath(d.ID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600); err == nil {
				cmd.Stderr = f
				defer f.Close()
			}
		}
	}

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid

	if err := s.proc.raisePriority(pid); err != nil {
		s.logger.Debug().Err(err).Int("pid", pid).Msg("priority raise denied")
	}

	// Reap if the child dies while we are still around; the child owns no
	// relationship with us beyond that.
	go cmd.Wait()
	return pid, nil
}

func (s *Supervisor) workerLogPath(id string) string {
	return filepath.Join(s.opts.LogsDir, "worker-"+id+".log")
}

// workerArgs builds the entrypoint argv for a descriptor. The pre-chosen
// port travels by flag so the registry port field stays worker-owned.
func workerArgs(d *types.WorkerDescriptor, port uint16) []string {
	portArg := strconv.Itoa(int(port))
	if d.Kind == types.WorkerKindDirectProxy {
		return []string{"proxy-worker", "start", "--id", d.ID, "--port", portArg}
	}
	return []string{"vpn-worker", "start", "--id", d.ID, "--port", portArg}
}
