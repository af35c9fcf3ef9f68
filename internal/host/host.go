// Package host runs executables on a simulator plugin with the stub
// registry, script hooks and an optional Winsock bridge attached, and
// turns the outcome into a user-facing report.
package host

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/JohnDoe6345789/winejs/internal/config"
	"github.com/JohnDoe6345789/winejs/internal/emulator"
	"github.com/JohnDoe6345789/winejs/internal/log"
	"github.com/JohnDoe6345789/winejs/internal/pe"
	"github.com/JohnDoe6345789/winejs/internal/script"
	"github.com/JohnDoe6345789/winejs/internal/stubs"
	_ "github.com/JohnDoe6345789/winejs/internal/stubs/all"
	"github.com/JohnDoe6345789/winejs/internal/trace"
	"github.com/JohnDoe6345789/winejs/internal/winsock"
)

// Host holds everything a run needs besides the binary itself.
type Host struct {
	cfg       *config.Config
	log       *log.Logger
	bridge    *winsock.Bridge
	scripts   []*script.Engine
	registry  *stubs.Registry
	plugins   []Plugin
	codeHooks []emulator.CodeHookFunc
	onEvent   func(*trace.Event)
	enrich    trace.Enricher
}

// Option configures a Host.
type Option func(*Host)

func WithLogger(l *log.Logger) Option { return func(h *Host) { h.log = l } }
func WithBridge(b *winsock.Bridge) Option { return func(h *Host) { h.bridge = b } }
func WithScripts(es ...*script.Engine) Option { return func(h *Host) { h.scripts = append(h.scripts, es...) } }
func WithRegistry(r *stubs.Registry) Option { return func(h *Host) { h.registry = r } }
func WithPlugins(ps ...Plugin) Option { return func(h *Host) { h.plugins = append(h.plugins, ps...) } }
func WithCodeHook(fn emulator.CodeHookFunc) Option {
	return func(h *Host) { h.codeHooks = append(h.codeHooks, fn) }
}

// WithEventHook receives every stub trace event as it happens.
func WithEventHook(fn func(*trace.Event)) Option { return func(h *Host) { h.onEvent = fn } }

// WithEnricher replaces trace.DefaultEnricher.
func WithEnricher(fn trace.Enricher) Option { return func(h *Host) { h.enrich = fn } }

// New creates a host without plugins. A nil cfg uses config.Default.
func New(cfg *config.Config, opts ...Option) *Host {
	if cfg == nil {
		cfg = config.Default()
	}
	h := &Host{
		cfg:      cfg,
		log:      log.L,
		registry: stubs.DefaultRegistry,
		enrich:   trace.DefaultEnricher,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Default creates a host with the built-in x86-64 plugin registered.
func Default(cfg *config.Config, opts ...Option) *Host {
	opts = append([]Option{WithPlugins(X86Plugin(emulator.NewSimulator))}, opts...)
	return New(cfg, opts...)
}

// Register adds a plugin. Plugins are tried in registration order.
func (h *Host) Register(p Plugin) {
	h.plugins = append(h.plugins, p)
}

func (h *Host) Config() *config.Config { return h.cfg }

// Run is a prepared execution: a CPU at the entry point with its session
// and hook chain bound.
type Run struct {
	Plugin  string
	CPU     *emulator.CPU
	Session *stubs.Session
	Hooks   emulator.ImportHooks

	host   *Host
	events []*trace.Event
}

// Prepare selects a plugin for data and binds a new session to it.
func (h *Host) Prepare(ctx context.Context, data []byte) (*Run, error) {
	sim, id, err := h.create(data)
	if err != nil {
		return nil, err
	}

	r := &Run{Plugin: id, host: h}
	logger := h.log.WithFields(zap.String("plugin", id))
	logger.SetOnTrace(r.record)

	r.Session = stubs.NewSession(sim.Image(), h.cfg,
		stubs.WithLogger(logger),
		stubs.WithContext(ctx),
		stubs.WithBridge(h.bridge),
	)
	r.CPU = sim.NewCPU()
	for _, fn := range h.codeHooks {
		r.CPU.HookCode(fn)
	}

	var chain []emulator.ImportHooks
	if len(h.scripts) > 0 {
		chain = append(chain, script.Hooks(h.scripts...))
	}
	chain = append(chain, h.registry.Hooks(r.Session))
	r.Hooks = emulator.Chain(chain...)
	return r, nil
}

func (r *Run) record(rip uint64, category, name, detail string) {
	e := trace.NewEvent(rip, category, name, detail)
	if r.host.enrich != nil {
		r.host.enrich(e)
	}
	r.events = append(r.events, e)
	if r.host.onEvent != nil {
		r.host.onEvent(e)
	}
}

// Events returns the trace events recorded so far.
func (r *Run) Events() []*trace.Event {
	return r.events
}

// Execute runs to completion within maxSteps. Zero uses the configured
// budget.
func (r *Run) Execute(maxSteps int) *Result {
	if maxSteps <= 0 {
		maxSteps = r.host.cfg.MaxSteps
	}
	res, err := r.CPU.Run(emulator.RunOptions{MaxSteps: maxSteps, Hooks: r.Hooks})
	return r.Result(res, err)
}

// Result summarizes a finished or interrupted execution.
func (r *Run) Result(res *emulator.RunResult, err error) *Result {
	s := r.Session
	r.flagGUIImports(res.ImportsVisited)
	return &Result{
		Plugin:       r.Plugin,
		ConsoleLines: res.ConsoleOutput,
		ImportTrace:  res.ImportsVisited,
		Events:       r.events,
		Steps:        res.Steps,
		Halted:       res.Halted,
		Stopped:      res.Stopped,
		GUIIntent:    s.GUIIntent,
		GUIReasons:   s.GUIReasons,
		DirectX:      s.DirectX,
		MessageBoxes: s.MessageBoxes,
		Exited:       s.Exited,
		ExitCode:     s.ExitCode,
		ImportErr:    r.CPU.Image().ImportErr,
		Err:          err,
	}
}

// flagGUIImports marks GUI intent for visited imports from a DLL that
// contains one of the configured markers.
func (r *Run) flagGUIImports(visited []pe.ImportSymbol) {
	for _, sym := range visited {
		for _, marker := range r.host.cfg.GUIMarkers {
			if marker != "" && strings.Contains(sym.DLL, strings.ToLower(marker)) {
				r.Session.FlagGUI(marker)
			}
		}
	}
}

// Result is the outcome of simulating one binary.
type Result struct {
	Plugin       string
	ConsoleLines []string
	ImportTrace  []pe.ImportSymbol
	Events       []*trace.Event
	Steps        int
	Halted       bool
	Stopped      bool
	GUIIntent    bool
	GUIReasons   []string
	DirectX      bool
	MessageBoxes []string
	Exited       bool
	ExitCode     uint32
	ImportErr    error // the import table was only partly read
	Err          error
}

// Exhausted reports whether the run ended on the step budget.
func (r *Result) Exhausted() bool {
	return r.Err == nil && !r.Halted && !r.Stopped
}

// Simulate runs data on the first plugin that accepts it.
func (h *Host) Simulate(ctx context.Context, data []byte) *Result {
	r, err := h.Prepare(ctx, data)
	if err != nil {
		h.log.Debug("simulate", zap.Error(err))
		return &Result{Err: err}
	}
	return r.Execute(h.cfg.MaxSteps)
}

// SimulateBase64 decodes payload with DecodeBase64Executable and simulates
// the result.
func (h *Host) SimulateBase64(ctx context.Context, payload string) *Result {
	data, err := DecodeBase64Executable(payload)
	if err != nil {
		return &Result{Err: err}
	}
	return h.Simulate(ctx, data)
}
