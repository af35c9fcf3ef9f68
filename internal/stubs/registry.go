// Package stubs provides a registry for self-registering Windows API stubs.
// Each stub package uses init() to register its hooks, enabling clean
// separation of concerns.
//
// Features:
//   - Self-registering stubs via init(), optionally bound to specific DLLs
//   - Matchers for families of imports (e.g. every CreateWindow variant)
//   - Detectors that activate on import patterns (e.g. DirectX, Winsock)
//   - A fallback that completes unknown imports with rax=0
package stubs

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JohnDoe6345789/winejs/internal/emulator"
	glog "github.com/JohnDoe6345789/winejs/internal/log"
	"github.com/JohnDoe6345789/winejs/internal/pe"
)

// HookFunc emulates one import. It returns emulator.Handled with the value
// for rax, or emulator.NotHandled to let the next hook try.
type HookFunc func(s *Session, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome

// StubDef defines a stub with its symbol name and hook function.
type StubDef struct {
	Name     string   // Symbol name (e.g., "WriteConsoleA")
	DLLs     []string // Modules exporting it; empty matches any DLL
	Aliases  []string // Alternative symbol names
	Hook     HookFunc
	Category string // For logging: "kernel32", "user32", "winsock", etc.
}

// Matcher handles every import its predicate accepts. Matchers run after
// exact stub lookup fails.
type Matcher struct {
	Name     string
	Match    func(s *Session, sym pe.ImportSymbol) bool
	Hook     HookFunc
	Category string
}

// DetectorFunc is called once per session when a detector's pattern
// matches one of the image's imports.
type DetectorFunc func(s *Session, matched []pe.ImportSymbol)

// Detector defines a pattern-based activation system.
type Detector struct {
	Name        string   // Detector name (e.g., "directx", "winsock")
	Patterns    []string // Qualified-name patterns to match (any match triggers)
	Match       func(s *Session, sym pe.ImportSymbol) bool // used instead of Patterns when set
	Enabled     func(s *Session) bool
	Activate    DetectorFunc
	Description string
}

// Registry holds all registered stub definitions.
type Registry struct {
	mu       sync.RWMutex
	stubs    map[string]*StubDef // "dll!name" or "name", lower-cased
	matchers []*Matcher

	detectorsMu sync.RWMutex
	detectors   []*Detector

	// OnCall is invoked for every stub log line.
	OnCall func(rip uint64, category, name, detail string)
}

// DefaultRegistry is the global registry used by init() functions.
var DefaultRegistry = NewRegistry()

// NewRegistry creates a new stub registry.
func NewRegistry() *Registry {
	return &Registry{
		stubs: make(map[string]*StubDef),
	}
}

func stubKey(dll, name string) string {
	name = strings.ToLower(name)
	if dll == "" {
		return name
	}
	return strings.ToLower(dll) + "!" + name
}

// Register adds a stub definition to the registry.
// Called from init() functions in stub packages.
func (r *Registry) Register(def StubDef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := append([]string{def.Name}, def.Aliases...)
	for _, name := range names {
		if len(def.DLLs) == 0 {
			r.stubs[stubKey("", name)] = &def
			continue
		}
		for _, dll := range def.DLLs {
			r.stubs[stubKey(dll, name)] = &def
		}
	}

	if Debug {
		glog.L.Debug("registered",
			zap.String("cat", def.Category),
			zap.String("fn", def.Name),
			zap.Strings("dlls", def.DLLs),
			zap.Strings("aliases", def.Aliases),
		)
	}
}

// RegisterFunc is a convenience method to register a stub for dlls.
func (r *Registry) RegisterFunc(category string, dlls []string, name string, hook HookFunc, aliases ...string) {
	r.Register(StubDef{
		Name:     name,
		DLLs:     dlls,
		Aliases:  aliases,
		Hook:     hook,
		Category: category,
	})
}

// RegisterMatcher adds a predicate-based stub.
func (r *Registry) RegisterMatcher(m Matcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matchers = append(r.matchers, &m)
}

// RegisterDetector adds a detector that activates on pattern match.
func (r *Registry) RegisterDetector(d Detector) {
	r.detectorsMu.Lock()
	defer r.detectorsMu.Unlock()
	r.detectors = append(r.detectors, &d)
}

// Lookup finds the stub for sym, preferring a DLL-qualified registration.
func (r *Registry) Lookup(sym pe.ImportSymbol) (*StubDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if def, ok := r.stubs[stubKey(sym.DLL, sym.Name)]; ok {
		return def, true
	}
	def, ok := r.stubs[stubKey("", sym.Name)]
	return def, ok
}

func (r *Registry) match(s *Session, sym pe.ImportSymbol) (*Matcher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.matchers {
		if m.Match(s, sym) {
			return m, true
		}
	}
	return nil, false
}

// activateDetectors runs every enabled detector against the session's
// imports. Each detector fires at most once per session.
func (r *Registry) activateDetectors(s *Session) {
	r.detectorsMu.RLock()
	defer r.detectorsMu.RUnlock()

	for _, det := range r.detectors {
		if s.activated[det.Name] {
			continue
		}
		if det.Enabled != nil && !det.Enabled(s) {
			continue
		}
		var matched []pe.ImportSymbol
		for _, sym := range s.Imports() {
			if det.matches(s, sym) {
				matched = append(matched, sym)
			}
		}
		if len(matched) == 0 {
			continue
		}
		s.activated[det.Name] = true
		s.Log.DetectorActivate(det.Name, det.Description)
		if det.Activate != nil {
			det.Activate(s, matched)
		}
	}
}

func (d *Detector) matches(s *Session, sym pe.ImportSymbol) bool {
	if d.Match != nil {
		return d.Match(s, sym)
	}
	q := strings.ToLower(sym.Qualified())
	for _, pattern := range d.Patterns {
		if MatchPattern(q, pattern) {
			return true
		}
	}
	return false
}

// MatchPattern checks if a lower-cased name matches a pattern.
// Patterns can use * for wildcard and can be substring matches.
func MatchPattern(name, pattern string) bool {
	pattern = strings.ToLower(pattern)
	if strings.Contains(pattern, "*") {
		switch {
		case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*"):
			return strings.Contains(name, pattern[1:len(pattern)-1])
		case strings.HasPrefix(pattern, "*"):
			return strings.HasSuffix(name, pattern[1:])
		case strings.HasSuffix(pattern, "*"):
			return strings.HasPrefix(name, pattern[:len(pattern)-1])
		}
	}
	return strings.Contains(name, pattern)
}

// Hooks binds the registry to s and returns the import hook chain entry
// the CPU calls. Detectors run immediately.
func (r *Registry) Hooks(s *Session) emulator.ImportHooks {
	s.registry = r
	r.activateDetectors(s)
	return &sessionHooks{r: r, s: s}
}

type sessionHooks struct {
	r *Registry
	s *Session
}

func (h *sessionHooks) HandleImport(name string, cpu *emulator.CPU, call *emulator.ImportCall) emulator.HookOutcome {
	s := h.s
	s.call = call
	defer func() { s.call = nil }()

	if def, ok := h.r.Lookup(call.Symbol); ok {
		if out := def.Hook(s, cpu, call); out.IsHandled() {
			return out
		}
	}
	if m, ok := h.r.match(s, call.Symbol); ok {
		if out := m.Hook(s, cpu, call); out.IsHandled() {
			return out
		}
	}
	if s.Config.Imports.Fallback {
		s.Log.StubFallback(name)
		h.r.log(s, call.Site, "fallback", name, "rax=0")
		return emulator.Handled(0)
	}
	return emulator.NotHandled()
}

// log calls the OnCall callback and logs via zap.
func (r *Registry) log(s *Session, rip uint64, category, name, detail string) {
	r.mu.RLock()
	cb := r.OnCall
	r.mu.RUnlock()
	if cb != nil {
		cb(rip, category, name, detail)
	}
	s.Log.Trace(rip, category, name, detail)
}

// Count returns the number of registered stub keys.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stubs)
}

// List returns all registered stub names, once per definition.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.stubs))
	seen := make(map[*StubDef]bool)
	for _, def := range r.stubs {
		if seen[def] {
			continue
		}
		seen[def] = true
		names = append(names, def.Name)
	}
	return names
}

// Debug enables verbose logging during registration.
var Debug = false

// Convenience functions for the default registry

// Register adds a stub to the default registry.
func Register(def StubDef) {
	DefaultRegistry.Register(def)
}

// RegisterFunc adds a stub to the default registry.
func RegisterFunc(category string, dlls []string, name string, hook HookFunc, aliases ...string) {
	DefaultRegistry.RegisterFunc(category, dlls, name, hook, aliases...)
}

// RegisterMatcher adds a matcher to the default registry.
func RegisterMatcher(m Matcher) {
	DefaultRegistry.RegisterMatcher(m)
}

// RegisterDetector adds a detector to the default registry.
func RegisterDetector(d Detector) {
	DefaultRegistry.RegisterDetector(d)
}
