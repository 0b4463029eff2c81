package plugin

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kbukum/switchyard/logger"
	"github.com/kbukum/switchyard/process"
)

// runtime runs the code of one loaded plugin.
type runtime interface {
	kind() string
	activate(ctx context.Context, pc *Context) error
	deactivate(ctx context.Context) error
	// release drops every reference to plugin code.
	release()
}

type inprocRuntime struct {
	mu     sync.Mutex
	plugin Plugin
}

func (r *inprocRuntime) kind() string { return RuntimeInProc }

func (r *inprocRuntime) instance() (Plugin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.plugin == nil {
		return nil, fmt.Errorf("plugin instance released")
	}
	return r.plugin, nil
}

func (r *inprocRuntime) activate(ctx context.Context, pc *Context) error {
	p, err := r.instance()
	if err != nil {
		return err
	}
	return p.Activate(ctx, pc)
}

func (r *inprocRuntime) deactivate(ctx context.Context) error {
	p, err := r.instance()
	if err != nil {
		return err
	}
	return p.Deactivate(ctx)
}

func (r *inprocRuntime) release() {
	r.mu.Lock()
	r.plugin = nil
	r.mu.Unlock()
}

// processRuntime runs the first bundle path as an executable while the
// plugin is active.
type processRuntime struct {
	id          string
	cmd         process.Command
	stopTimeout time.Duration
	log         *logger.Logger

	mu   sync.Mutex
	proc *process.Process
}

func newProcessRuntime(d Descriptor, stopTimeout time.Duration, log *logger.Logger) *processRuntime {
	return &processRuntime{
		id: d.ID,
		cmd: process.Command{
			Binary:      d.ResolvedPaths()[0],
			Args:        strings.Fields(d.Manifest[ManifestArgs]),
			Dir:         d.BaseDir(),
			Env:         []string{"SWITCHYARD_PLUGIN_ID=" + d.ID, "SWITCHYARD_PLUGIN_VERSION=" + d.Version},
			GracePeriod: stopTimeout,
		},
		stopTimeout: stopTimeout,
		log:         log,
	}
}

func (r *processRuntime) kind() string { return RuntimeProcess }

// preflight runs the executable once with the manifest preflight args.
func (r *processRuntime) preflight(ctx context.Context, runner *process.Runner, args string) error {
	cmd := r.cmd
	cmd.Args = strings.Fields(args)
	result, err := runner.Run(ctx, cmd)
	if err != nil {
		if tail := result.StderrTail(512); tail != "" {
			return fmt.Errorf("preflight: %w: %s", err, tail)
		}
		return fmt.Errorf("preflight: %w", err)
	}
	r.log.Debug("plugin preflight passed", logger.Fields(
		logger.FieldPlugin, r.id,
		logger.FieldDuration, result.Duration.String(),
	))
	return nil
}

func (r *processRuntime) activate(_ context.Context, _ *Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.proc != nil && r.proc.Running() {
		return nil
	}
	proc, err := process.Start(r.cmd, r.writer("stdout"), r.writer("stderr"))
	if err != nil {
		return err
	}
	r.proc = proc
	r.log.Info("plugin process started", logger.Fields(logger.FieldPlugin, r.id, "pid", proc.Pid()))
	return nil
}

func (r *processRuntime) deactivate(ctx context.Context) error {
	r.mu.Lock()
	proc := r.proc
	r.proc = nil
	r.mu.Unlock()
	if proc == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.stopTimeout)
	defer cancel()
	if err := proc.Stop(ctx); err != nil {
		return err
	}
	r.log.Info("plugin process stopped", logger.Fields(
		logger.FieldPlugin, r.id,
		"exit_code", proc.ExitCode(),
	))
	return nil
}

func (r *processRuntime) release() {
	_ = r.deactivate(context.Background())
}

// running reports whether the plugin process is alive.
func (r *processRuntime) running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.proc != nil && r.proc.Running()
}

func (r *processRuntime) writer(stream string) *logWriter {
	return &logWriter{log: r.log, plugin: r.id, stream: stream}
}

// logWriter forwards process output to the plugin logger, one entry per line.
type logWriter struct {
	log    *logger.Logger
	plugin string
	stream string
}

func (w *logWriter) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(p, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		w.log.Debug(string(line), logger.Fields(logger.FieldPlugin, w.plugin, "stream", w.stream))
	}
	return len(p), nil
}
